// Package extract turns saved raw HTML into Markdown pages with YAML front
// matter, one file per crawled page.
package extract

import (
	"errors"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

// Extractor converts an HTML document into a title and a Markdown body.
// Implementations are expected to isolate the main content of the page.
type Extractor interface {
	Extract(html, pageURL string) (title, body string, err error)
}

// ReadabilityExtractor is the default extractor: it picks the most
// content-like region of the document and converts it to Markdown.
type ReadabilityExtractor struct {
	converter *md.Converter
}

// NewReadabilityExtractor creates the default extractor.
func NewReadabilityExtractor() *ReadabilityExtractor {
	return &ReadabilityExtractor{converter: md.NewConverter("", true, nil)}
}

// Extract implements Extractor.
func (e *ReadabilityExtractor) Extract(html, pageURL string) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", err
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if title == "" {
		title = pageURL
	}

	content := contentSelection(doc)
	if content == nil {
		return title, "", errors.New("no content region found")
	}
	content.Find("script, style, noscript, nav, header, footer, aside").Remove()

	body := strings.TrimSpace(e.converter.Convert(content))
	if body == "" {
		return title, "", errors.New("extracted body is empty")
	}
	return title, body, nil
}

// contentSelection returns the first matching content container, preferring
// semantic regions over the bare body.
func contentSelection(doc *goquery.Document) *goquery.Selection {
	for _, selector := range []string{"main", "article", "[role=main]", "#content", ".content", "body"} {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			return sel
		}
	}
	return nil
}
