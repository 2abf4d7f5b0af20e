package generation

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"pharmasure/pkg/ai"
	"pharmasure/pkg/domain"
)

const emptyResponseHTML = "<!-- Failed to generate content -->"

var (
	leadingHTMLFence = regexp.MustCompile("^```html\\s*")
	leadingFence     = regexp.MustCompile("^```\\s*")
	trailingFence    = regexp.MustCompile("```$")
)

// StripFences removes one leading ```html / ``` fence and one trailing ``` fence.
func StripFences(text string) string {
	text = leadingHTMLFence.ReplaceAllString(text, "")
	text = leadingFence.ReplaceAllString(text, "")
	return trailingFence.ReplaceAllString(text, "")
}

// Sources lists web citations in service order. Duplicates are kept.
func Sources(chunks []ai.GroundingChunk) []domain.Source {
	sources := make([]domain.Source, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.Web == nil {
			continue
		}
		sources = append(sources, domain.Source{Title: chunk.Web.Title, URI: chunk.Web.URI})
	}
	return sources
}

// DocumentTitle returns the text of the first <title> element, or "".
func DocumentTitle(markup string) string {
	z := html.NewTokenizer(strings.NewReader(markup))
	inTitle := false
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			name, _ := z.TagName()
			inTitle = string(name) == "title"
		case html.TextToken:
			if inTitle {
				return strings.TrimSpace(string(z.Text()))
			}
		case html.EndTagToken:
			inTitle = false
		}
	}
}
