package caption

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selectors lists CSS selectors in priority order.
type Selectors struct {
	// Containers are tried in order; the first one present marks the player
	// as showing captions.
	Containers []string `mapstructure:"containers" yaml:"containers"`

	// Text selectors are tried in order; the first one with matches wins.
	Text []string `mapstructure:"text" yaml:"text"`
}

// DefaultSelectors covers auto-generated captions, manual captions and the
// alternate caption widget.
func DefaultSelectors() Selectors {
	return Selectors{
		Containers: []string{
			".ytp-caption-window-container",
			".caption-window",
			".captions-text",
		},
		Text: []string{
			".ytp-caption-segment",
			".caption-visual-line",
			".captions-text span",
		},
	}
}

// Page is one parsed reading of the player HTML.
type Page struct {
	doc *goquery.Document
}

// ParsePage parses raw HTML.
func ParsePage(html []byte) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return &Page{doc: doc}, nil
}

// Container returns the first container selector present on the page.
func (p *Page) Container(sel Selectors) (string, bool) {
	for _, s := range sel.Containers {
		if p.doc.Find(s).Length() > 0 {
			return s, true
		}
	}
	return "", false
}

// Text returns the current caption line. Segment texts are trimmed, empty
// segments dropped and the rest joined by single spaces. ok is false when no
// text selector matches anything.
func (p *Page) Text(sel Selectors) (text string, ok bool) {
	for _, s := range sel.Text {
		nodes := p.doc.Find(s)
		if nodes.Length() == 0 {
			continue
		}
		parts := make([]string, 0, nodes.Length())
		nodes.Each(func(_ int, n *goquery.Selection) {
			if t := strings.TrimSpace(n.Text()); t != "" {
				parts = append(parts, t)
			}
		})
		return strings.Join(parts, " "), true
	}
	return "", false
}
