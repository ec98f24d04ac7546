package util

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var locationSelectors = []string{
	".location",
	".job-location",
	".job__location",
	"[itemprop='jobLocation']",
	"[data-testid='job-location']",
	"[data-qa='location']",
}

// FindLocation looks for a location inside sel: known selectors first, then
// "Location:" labels in the text.
func FindLocation(sel *goquery.Selection) string {
	for _, s := range locationSelectors {
		if t := CleanText(sel.Find(s).First().Text()); t != "" && len(t) <= 120 {
			return NormalizeLocation(t)
		}
	}
	if loc := ExtractLocationFromLabeledText(sel.Text()); loc != "" {
		return NormalizeLocation(loc)
	}
	return ""
}

// ExtractLocationFromLabeledText returns the text after a "Location:" label.
func ExtractLocationFromLabeledText(s string) string {
	low := strings.ToLower(s)

	labels := []string{
		"job location:",
		"locations:",
		"location:",
		"standort:",
	}

	for _, lab := range labels {
		if i := strings.Index(low, lab); i >= 0 {
			rest := strings.TrimSpace(s[i+len(lab):])

			// stop at newline-ish boundaries if present
			for _, cut := range []string{"\n", "\r", " | ", " · "} {
				if j := strings.Index(rest, cut); j >= 0 {
					rest = rest[:j]
				}
			}

			rest = CleanText(rest)
			if rest != "" && len(rest) <= 80 {
				return rest
			}
		}
	}
	return ""
}
