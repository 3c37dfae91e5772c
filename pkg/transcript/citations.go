package transcript

import (
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
)

const (
	// CitationPrefix marks an assistant entry whose content is anchor markup.
	CitationPrefix = "[REFS]"
	// CitationClass is the class carried by every citation anchor.
	CitationClass = "ref-link"
)

var citationSelector = "a." + CitationClass

// ParseCitations extracts one Reference per citation anchor, in document
// order. Missing attributes yield empty fields and markup without any
// citation anchor yields an empty list.
func ParseCitations(markup string) []Reference {
	refs := []Reference{}
	if strings.TrimSpace(markup) == "" {
		return refs
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		log.Warn().Err(err).Msg("could not parse citation markup")
		return refs
	}

	doc.Find(citationSelector).Each(func(_ int, s *goquery.Selection) {
		url, _ := s.Attr("data-url")
		title, _ := s.Attr("data-title")
		refs = append(refs, Reference{URL: url, Title: title})
	})

	return refs
}

// EncodeCitations produces the citation carrier content for refs, the inverse
// of ParseCitations.
func EncodeCitations(refs []Reference) string {
	var sb strings.Builder
	sb.WriteString(CitationPrefix)
	sb.WriteString(`<div class="references">`)
	for _, ref := range refs {
		label := ref.Title
		if label == "" {
			label = ref.URL
		}
		sb.WriteString(`<a href="#" class="`)
		sb.WriteString(CitationClass)
		sb.WriteString(`" data-url="`)
		sb.WriteString(html.EscapeString(ref.URL))
		sb.WriteString(`" data-title="`)
		sb.WriteString(html.EscapeString(ref.Title))
		sb.WriteString(`">`)
		sb.WriteString(html.EscapeString(label))
		sb.WriteString(`</a>`)
	}
	sb.WriteString(`</div>`)
	return sb.String()
}
