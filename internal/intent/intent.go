// Package intent maps free-text chat messages onto a closed set of intents.
package intent

import "strings"

// Intent is the classified purpose of a message.
type Intent string

const (
	PropertyInquiry          Intent = "property_inquiry"
	AvailabilityAndBooking   Intent = "availability_and_booking_request"
	PriceInquiry             Intent = "price_inquiry"
	GeneralQuestion          Intent = "general_question"
	SellerMessage            Intent = "seller_message"
	BuyerSellerCommunication Intent = "buyer_seller_communication"
	Negotiation              Intent = "negotiation"
	WebsiteFunctionality     Intent = "website_functionality"
	CompanyInformation       Intent = "company_information"
	PropertyListingsInquiry  Intent = "property_listings_inquiry"
	Greeting                 Intent = "greeting"
	Unknown                  Intent = "unknown"
)

// definition is the prompt material for one intent.
type definition struct {
	intent      Intent
	description string
	examples    []string
}

var definitions = []definition{
	{PropertyInquiry, "questions about a specific property's features, rooms, location, condition or amenities",
		[]string{"How many bedrooms does this house have?", "Is there parking at this property?"}},
	{AvailabilityAndBooking, "requests to check availability or to book, schedule or change a viewing",
		[]string{"Can I book a viewing for Saturday?", "Is the flat still available?"}},
	{PriceInquiry, "questions about asking price, valuation, fees or costs of a property",
		[]string{"What is the asking price?", "How much is the council tax?"}},
	{GeneralQuestion, "general real-estate, mortgage, market or area advice not tied to one property",
		[]string{"What should I look for when buying my first home?", "Is now a good time to buy in Bristol?"}},
	{SellerMessage, "a message the user wants passed to the seller, or a question only the seller can answer",
		[]string{"Can you ask the seller about parking?", "Please tell the seller I loved the garden."}},
	{BuyerSellerCommunication, "ongoing back-and-forth between buyer and seller about an existing question or reply",
		[]string{"Has the seller replied to my question yet?", "Tell the buyer the boiler was serviced in May."}},
	{Negotiation, "offers, counter-offers, bids or attempts to negotiate the price or terms",
		[]string{"Would the seller accept 250k?", "I'd like to make an offer."}},
	{WebsiteFunctionality, "how to use the MaiSON website or app: accounts, saved searches, listing a property",
		[]string{"How do I save a property to my favourites?", "Where do I upload photos of my home?"}},
	{CompanyInformation, "questions about MaiSON as a company: fees, services, contact details",
		[]string{"What does MaiSON charge sellers?", "How do I contact your team?"}},
	{PropertyListingsInquiry, "searching or browsing listed properties by criteria",
		[]string{"Show me 2 bedroom flats under 300k", "What houses are listed in Leeds?"}},
	{Greeting, "greetings, thanks, small talk or goodbyes",
		[]string{"Hello!", "Thanks, bye"}},
	{Unknown, "anything that fits none of the above",
		[]string{"asdfgh", "banana"}},
}

var byName = func() map[string]Intent {
	m := make(map[string]Intent, len(definitions))
	for _, d := range definitions {
		m[string(d.intent)] = d.intent
	}
	return m
}()

// All returns every intent in prompt order.
func All() []Intent {
	out := make([]Intent, 0, len(definitions))
	for _, d := range definitions {
		out = append(out, d.intent)
	}
	return out
}

// Parse maps a token to an intent using an exact, case-insensitive match.
// Surrounding whitespace, quotes and a trailing period are ignored.
func Parse(token string) (Intent, bool) {
	token = strings.TrimSpace(token)
	token = strings.Trim(token, "\"'`")
	token = strings.TrimSuffix(token, ".")
	it, ok := byName[strings.ToLower(strings.TrimSpace(token))]
	return it, ok
}

// IsCrossParty reports whether the intent concerns the counterpart party.
func (i Intent) IsCrossParty() bool {
	switch i {
	case SellerMessage, BuyerSellerCommunication, Negotiation:
		return true
	}
	return false
}

// IsPropertyScoped reports whether the intent needs a property to answer.
func (i Intent) IsPropertyScoped() bool {
	switch i {
	case PropertyInquiry, PriceInquiry, AvailabilityAndBooking:
		return true
	}
	return false
}

// IsOpenEnded reports whether the intent names no topic of its own. Short
// replies such as "yes" or "go on then" usually classify this way.
func (i Intent) IsOpenEnded() bool {
	return i == Unknown || i == GeneralQuestion
}

func (i Intent) String() string {
	return string(i)
}
