package archive

import "regexp"

var (
	emailRe    = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRe    = regexp.MustCompile(`(?:\+44\s?|\b0)(?:\d[\s-]?){9,10}\d\b`)
	postcodeRe = regexp.MustCompile(`(?i)\b[A-Z]{1,2}\d[A-Z\d]?\s*\d[A-Z]{2}\b`)
)

// ScrubPII replaces emails, UK phone numbers and postcodes with placeholders.
func ScrubPII(text string) string {
	text = emailRe.ReplaceAllString(text, "[EMAIL]")
	text = phoneRe.ReplaceAllString(text, "[PHONE]")
	text = postcodeRe.ReplaceAllString(text, "[POSTCODE]")
	return text
}
