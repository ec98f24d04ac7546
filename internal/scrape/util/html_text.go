package util

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	reScriptStyle = regexp.MustCompile(`(?is)<(?:script|style)\b[^>]*>.*?</(?:script|style)\s*>`)
	reComment     = regexp.MustCompile(`(?s)<!--.*?-->`)
	reBreak       = regexp.MustCompile(`(?i)<br\s*/?>`)
	reBlockClose  = regexp.MustCompile(`(?i)</(?:p|div|h[1-6]|ul|ol|tr|table|section|article|header|footer|blockquote|pre|dl|dd|dt)\s*>`)
	reListItem    = regexp.MustCompile(`(?i)<li\b[^>]*>`)
	reTag         = regexp.MustCompile(`(?s)</?[a-zA-Z][^>]*>`)
	reSpaces      = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	reManyBreaks  = regexp.MustCompile(`\n{3,}`)
)

// maxEntityPasses bounds decoding of nested encodings such as "&amp;amp;".
const maxEntityPasses = 3

// HTMLToText converts an HTML fragment to plain text with paragraph breaks
// kept as blank lines and list items rendered as "- item".
// HTMLToText(HTMLToText(x)) == HTMLToText(x) for text-only x.
func HTMLToText(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}

	s = DecodeEncodedHTML(s)
	s = reScriptStyle.ReplaceAllString(s, "")
	s = reComment.ReplaceAllString(s, "")
	s = reBreak.ReplaceAllString(s, "\n")
	s = reListItem.ReplaceAllString(s, "\n- ")
	s = reBlockClose.ReplaceAllString(s, "\n")
	s = reTag.ReplaceAllString(s, "")
	s = decodeEntities(s)

	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = reSpaces.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	s = reManyBreaks.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func decodeEntities(s string) string {
	for i := 0; i < maxEntityPasses && strings.Contains(s, "&"); i++ {
		d := html.UnescapeString(s)
		if d == s {
			break
		}
		s = d
	}
	return s
}

// DecodeEncodedHTML unescapes markup that an API shipped entity-encoded
// ("&lt;p&gt;..."). Real markup is returned unchanged.
func DecodeEncodedHTML(s string) string {
	if strings.Contains(s, "&lt;") && !reTag.MatchString(s) {
		return html.UnescapeString(s)
	}
	return s
}
