package specialist

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/wolfman30/maison-chat-platform/internal/conversation"
	"github.com/wolfman30/maison-chat-platform/internal/intent"
	"github.com/wolfman30/maison-chat-platform/internal/llm"
	"github.com/wolfman30/maison-chat-platform/internal/property"
	"github.com/wolfman30/maison-chat-platform/pkg/logging"
)

const (
	greetingReply         = "Hello! I'm MaiSON's assistant. I can help you search for properties, answer questions about a listing, or explain how MaiSON works. What can I do for you today?"
	websiteFallback       = "I'm sorry, I couldn't find information about that feature. You can search, save and list properties from your MaiSON dashboard, or contact our support team for more help."
	companyFallback       = "I'm sorry, I couldn't retrieve our company information right now. Please visit the About page on the MaiSON website or contact our support team."
	listingsUnavailable   = "I'm sorry, I couldn't retrieve property listings information at the moment. Please try again later."
	noListingsMatch       = "I couldn't find any listed properties matching that search. Try widening your price range or location."
	unclearFallback       = "I'm not quite sure what you're looking for. I can help you search for properties, answer questions about a specific listing, explain how MaiSON works, or pass a message to a seller. Could you tell me a bit more?"
	maxListingsInFallback = 3
)

var (
	bedroomsPattern = regexp.MustCompile(`(?i)(\d+)\s*(?:\+\s*)?(?:bed|bedroom|bedrooms|br)\b`)
	maxPricePattern = regexp.MustCompile(`(?i)(?:under|below|less than|max(?:imum)?|up to)\s*£?\s*(\d+(?:[.,]\d+)*)\s*(k|m)?\b`)
)

// Communication handles greetings, website help, company information,
// listing search, general advice and messages with no clear intent.
type Communication struct {
	base
	provider property.Provider
	advisory *Advisory
	site     siteInfo
}

var _ conversation.CommunicationSpecialist = (*Communication)(nil)

// NewCommunication builds the communication specialist. provider may be nil,
// in which case listing search degrades to an apology.
func NewCommunication(client llm.Client, provider property.Provider, observer GenerationObserver, logger *logging.Logger) *Communication {
	b := newBase(client, observer, logger)
	site, err := loadSiteInfo()
	if err != nil {
		b.logger.Error("site info unavailable", "error", err)
	}
	return &Communication{
		base:     b,
		provider: provider,
		advisory: NewAdvisory(client, provider, observer, b.logger),
		site:     site,
	}
}

func (c *Communication) Respond(ctx context.Context, req conversation.SpecialistRequest) (string, error) {
	switch req.Intent {
	case intent.Greeting:
		return c.greet(ctx, req), nil
	case intent.WebsiteFunctionality:
		system := "You are MaiSON's help assistant. Explain how to use the website using only the feature information below.\n\nFeatures:\n" + c.site.featuresJSON()
		return c.generate(ctx, "website", system, req, req.Message, websiteFallback), nil
	case intent.CompanyInformation:
		system := "You are MaiSON's help assistant. Answer questions about the company using only the information below.\n\nCompany:\n" + c.site.companyJSON()
		return c.generate(ctx, "company", system, req, req.Message, companyFallback), nil
	case intent.PropertyListingsInquiry:
		return c.listings(ctx, req), nil
	case intent.GeneralQuestion:
		return c.advisory.Advise(ctx, req), nil
	}
	system := "You are MaiSON's assistant. The user's message is unclear. Politely ask a clarifying question and mention what you can help with: " +
		"searching properties, questions about a listing, how MaiSON works, and messaging a seller."
	return c.generate(ctx, "unclear", system, req, req.Message, unclearFallback), nil
}

func (c *Communication) greet(ctx context.Context, req conversation.SpecialistRequest) string {
	if req.UserID == "" || c.provider == nil {
		return greetingReply
	}
	dash, err := c.provider.UserDashboard(ctx, req.UserID)
	if err != nil || dash == nil {
		return greetingReply
	}
	name := dash.User.FirstName
	fallback := greetingReply
	if name != "" {
		fallback = fmt.Sprintf("Hello %s! Welcome back to MaiSON. How can I help you today?", name)
	}
	system := fmt.Sprintf("You are MaiSON's assistant. Greet the returning user %q warmly in one or two sentences. They have %d saved and %d listed properties.",
		name, len(dash.SavedProperties), len(dash.ListedProperties))
	return c.generate(ctx, "greeting", system, req, req.Message, fallback)
}

func (c *Communication) listings(ctx context.Context, req conversation.SpecialistRequest) string {
	if c.provider == nil {
		return listingsUnavailable
	}
	all, err := c.provider.Listings(ctx)
	if err != nil {
		c.logger.Warn("listings unavailable", "error", err)
		return listingsUnavailable
	}
	criteria := ParseCriteria(req.Message)
	matched := property.Filter(all, criteria)

	var saved string
	if req.UserID != "" {
		if dash, err := c.provider.UserDashboard(ctx, req.UserID); err == nil && dash != nil && len(dash.SavedProperties) > 0 {
			saved = fmt.Sprintf("\nThe user has %d saved properties.", len(dash.SavedProperties))
		}
	}
	if len(matched) == 0 {
		return noListingsMatch
	}

	var b strings.Builder
	for i, l := range matched {
		if i >= 10 {
			break
		}
		b.WriteString("- " + strings.ReplaceAll(l.Summary(), "\n", "; ") + "\n")
	}
	system := "You are MaiSON's property search assistant. Recommend suitable listings from the list below, briefly explaining why each fits." + saved +
		"\n\nListings:\n" + b.String()
	return c.generate(ctx, "listings", system, req, req.Message, listingsFallback(matched))
}

func listingsFallback(matched []property.Listing) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I found %d properties that might interest you:\n", len(matched))
	for i, l := range matched {
		if i >= maxListingsInFallback {
			break
		}
		beds := l.Bedrooms
		if l.Specs != nil && l.Specs.Bedrooms > 0 {
			beds = l.Specs.Bedrooms
		}
		line := fmt.Sprintf("- %d bedroom property", beds)
		if city := l.City(); city != "" {
			line += " in " + city
		}
		if l.Price > 0 {
			line += fmt.Sprintf(" for £%s", formatPounds(l.Price))
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimSpace(b.String())
}

// ParseCriteria extracts a bedroom minimum, price ceiling and city from a
// free-text search.
func ParseCriteria(message string) property.SearchCriteria {
	var c property.SearchCriteria
	if m := bedroomsPattern.FindStringSubmatch(message); m != nil {
		c.MinBedrooms, _ = strconv.Atoi(m[1])
	}
	if m := maxPricePattern.FindStringSubmatch(message); m != nil {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err == nil {
			switch strings.ToLower(m[2]) {
			case "k":
				v *= 1_000
			case "m":
				v *= 1_000_000
			}
			c.MaxPrice = int(v)
		}
	}
	if m := areaPattern.FindStringSubmatch(message); m != nil {
		c.City = strings.TrimSpace(m[1])
	}
	return c
}
