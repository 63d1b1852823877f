package feed

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

const excerptLength = 200

// Sanitizer cleans post bodies before they are cached.
type Sanitizer struct {
	body *bluemonday.Policy
	text *bluemonday.Policy
}

func NewSanitizer() *Sanitizer {
	body := bluemonday.UGCPolicy()
	body.AllowAttrs("style").OnElements("span", "div", "p")
	body.AddTargetBlankToFullyQualifiedLinks(true)
	body.RequireNoReferrerOnLinks(true)

	text := bluemonday.StrictPolicy()
	text.AddSpaceWhenStrippingTag(true)

	return &Sanitizer{
		body: body,
		text: text,
	}
}

func (s *Sanitizer) Body(rawHTML string) string {
	return s.body.Sanitize(rawHTML)
}

// Excerpt returns the leading plain text of rawHTML, collapsed to single
// spaces and cut to at most excerptLength runes.
func (s *Sanitizer) Excerpt(rawHTML string) string {
	text := html.UnescapeString(s.text.Sanitize(rawHTML))
	text = strings.Join(strings.Fields(text), " ")

	runes := []rune(text)
	if len(runes) <= excerptLength {
		return text
	}
	return strings.TrimSpace(string(runes[:excerptLength])) + "…"
}
