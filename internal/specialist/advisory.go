package specialist

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/wolfman30/maison-chat-platform/internal/conversation"
	"github.com/wolfman30/maison-chat-platform/internal/llm"
	"github.com/wolfman30/maison-chat-platform/internal/property"
	"github.com/wolfman30/maison-chat-platform/pkg/logging"
)

const advisoryFallback = "That's a great question. Buying or selling a home involves lots of moving parts, so I'd recommend speaking to a mortgage adviser or solicitor for specifics. " +
	"In the meantime I can help you browse listings on MaiSON or answer questions about a particular property."

var areaPattern = regexp.MustCompile(`\b(?:[Ii]n|[Aa]round|[Nn]ear)\s+([A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)?)`)

// Advisory answers general real-estate questions, adding area insights from
// current listings when the message names a place.
type Advisory struct {
	base
	provider property.Provider
}

func NewAdvisory(client llm.Client, provider property.Provider, observer GenerationObserver, logger *logging.Logger) *Advisory {
	return &Advisory{base: newBase(client, observer, logger), provider: provider}
}

func (a *Advisory) Advise(ctx context.Context, req conversation.SpecialistRequest) string {
	system := "You are MaiSON's real-estate adviser for the UK market. Give balanced, practical guidance in a few short paragraphs. " +
		"Do not give regulated financial or legal advice; suggest a professional where appropriate."
	fallback := advisoryFallback
	if insights := a.areaInsights(ctx, req.Message); insights != "" {
		system += "\n\nCurrent MaiSON listing data:\n" + insights
		fallback = insights + "\n\n" + advisoryFallback
	}
	return a.generate(ctx, "advisory", system, req, req.Message, fallback)
}

// areaInsights summarises listings in the city the message mentions.
func (a *Advisory) areaInsights(ctx context.Context, message string) string {
	if a.provider == nil {
		return ""
	}
	m := areaPattern.FindStringSubmatch(message)
	if m == nil {
		return ""
	}
	city := strings.TrimSpace(m[1])
	listings, err := a.provider.Listings(ctx)
	if err != nil {
		a.logger.Warn("area insights unavailable", "city", city, "error", err)
		return ""
	}
	matched := property.Filter(listings, property.SearchCriteria{City: city})
	if len(matched) == 0 {
		return ""
	}
	total, priced := 0, 0
	for _, l := range matched {
		if l.Price > 0 {
			total += l.Price
			priced++
		}
	}
	out := fmt.Sprintf("There are currently %d properties listed on MaiSON in %s.", len(matched), city)
	if priced > 0 {
		out += fmt.Sprintf(" The average asking price is £%s.", formatPounds(total/priced))
	}
	return out
}
