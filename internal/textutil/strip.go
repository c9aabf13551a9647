package textutil

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Combine joins the non-empty fields into one prompt-ready string.
// Upstream items frequently carry HTML fragments in their descriptions, so
// each field is reduced to its text content first.
func Combine(fields ...string) string {
	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		cleaned := strings.TrimSpace(StripMarkup(field))
		if cleaned != "" {
			parts = append(parts, cleaned)
		}
	}
	return strings.Join(parts, " ")
}

// StripMarkup removes HTML markup, returning the plain text content.
// Input without markup passes through unchanged apart from entity decoding.
func StripMarkup(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return doc.Text()
}
