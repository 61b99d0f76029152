package specialist

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/maison-chat-platform/internal/conversation"
	"github.com/wolfman30/maison-chat-platform/internal/intent"
	"github.com/wolfman30/maison-chat-platform/internal/llm"
	"github.com/wolfman30/maison-chat-platform/internal/property"
	"github.com/wolfman30/maison-chat-platform/pkg/logging"
)

const (
	propertyUnavailable = "I'm sorry, I couldn't retrieve the details for this property right now. Please try again shortly."
	bookingFallback     = "I'd be happy to help you arrange a viewing. Let me know which days and times suit you and I'll pass your availability on to the seller."
)

// Property answers detail, price and viewing questions about one listing.
type Property struct {
	base
	listings conversation.ListingLookup
}

// NewProperty builds the property specialist. listings is used when the turn
// carries no listing snapshot and may be nil.
func NewProperty(client llm.Client, listings conversation.ListingLookup, observer GenerationObserver, logger *logging.Logger) *Property {
	return &Property{base: newBase(client, observer, logger), listings: listings}
}

var _ conversation.PropertySpecialist = (*Property)(nil)

func (p *Property) AnswerProperty(ctx context.Context, req conversation.SpecialistRequest) (string, error) {
	listing := req.Listing
	if listing == nil && p.listings != nil && req.PropertyID != "" {
		l, err := p.listings.Listing(ctx, req.PropertyID)
		if err != nil {
			p.logger.Warn("property lookup failed", "property_id", req.PropertyID, "error", err)
		} else {
			listing = l
		}
	}

	details := "No listing details are available."
	if listing != nil {
		details = listing.Summary()
	}
	system := "You are MaiSON's property assistant. Answer the user's question about this property using only the details below. " +
		"Be concise and friendly. If the details do not cover the question, say so plainly.\n\n" + focus(req.Intent) + "\n\nProperty details:\n" + details

	return p.generate(ctx, "property", system, req, req.Message, propertyFallback(req.Intent, listing)), nil
}

func focus(it intent.Intent) string {
	switch it {
	case intent.PriceInquiry:
		return "The user is asking about price. Quote the asking price exactly as listed and do not speculate about valuations."
	case intent.AvailabilityAndBooking:
		return "The user wants to arrange a viewing or check availability. Ask for their preferred days and times if they have not given them."
	default:
		return "The user is asking about the property's features or condition."
	}
}

func propertyFallback(it intent.Intent, listing *property.Listing) string {
	switch it {
	case intent.PriceInquiry:
		if listing != nil && listing.Price > 0 {
			return fmt.Sprintf("The asking price for this property is £%s.", formatPounds(listing.Price))
		}
		return "I don't have the asking price for this property at the moment."
	case intent.AvailabilityAndBooking:
		return bookingFallback
	}
	if listing == nil {
		return propertyUnavailable
	}
	return "Here's what I know about this property:\n" + listing.Summary()
}

// formatPounds renders 450000 as 450,000.
func formatPounds(n int) string {
	s := fmt.Sprintf("%d", n)
	if n < 0 {
		return "-" + formatPounds(-n)
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}
