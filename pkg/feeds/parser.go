// Package feeds fetches RSS/RDF/Atom documents and flattens them into raw items.
package feeds

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mmcdole/gofeed/atom"
	ext "github.com/mmcdole/gofeed/extensions"
	"github.com/mmcdole/gofeed/rss"

	"github.com/Adda-Baaj/balance-news/internal/domain"
)

// RawItem is one feed entry before date resolution and text cleanup.
// Every field is optional; Shape records which layout produced it.
type RawItem struct {
	Shape       Shape
	Title       string
	Link        string
	Description string
	Author      string
	PubDate     string
}

// Parse flattens a feed document into raw items.
// A document that matches none of the known shapes yields no items and no error;
// a document that cannot be read as XML yields a *domain.MalformedFeedError.
func Parse(doc []byte) ([]RawItem, error) {
	p, err := probe(doc)
	if err != nil {
		return nil, &domain.MalformedFeedError{Err: err}
	}

	var items []RawItem
	switch shape := p.shape(); shape {
	case ShapeRSS, ShapeRDF:
		items, err = parseRSS(doc, shape)
	case ShapeAtom:
		items, err = parseAtom(doc)
	case ShapeNested:
		items, err = parseNested(doc, p.anyEntry)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, &domain.MalformedFeedError{Err: err}
	}
	return items, nil
}

// parseRSS handles both RSS 2.0 and RSS 1.0/RDF; gofeed's rss parser reads either root.
func parseRSS(doc []byte, shape Shape) ([]RawItem, error) {
	var parser rss.Parser
	feed, err := parser.Parse(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", shape, err)
	}

	items := make([]RawItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil {
			continue
		}
		raw := RawItem{
			Shape:       shape,
			Title:       it.Title,
			Link:        strings.TrimSpace(it.Link),
			Description: firstNonEmpty(it.Description, it.Content),
			Author:      strings.TrimSpace(it.Author),
			PubDate:     strings.TrimSpace(it.PubDate),
		}
		if raw.Link == "" && it.GUID != nil {
			raw.Link = strings.TrimSpace(it.GUID.Value)
		}
		if dc := it.DublinCoreExt; dc != nil {
			if raw.Author == "" {
				raw.Author = firstNonEmpty(dc.Creator...)
			}
			if raw.PubDate == "" {
				raw.PubDate = firstNonEmpty(dc.Date...)
			}
		}
		items = append(items, raw)
	}
	return items, nil
}

func parseAtom(doc []byte) ([]RawItem, error) {
	var parser atom.Parser
	feed, err := parser.Parse(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("decode atom: %w", err)
	}

	items := make([]RawItem, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		if e == nil {
			continue
		}
		raw := RawItem{
			Shape:   ShapeAtom,
			Title:   e.Title,
			Link:    atomLink(e.Links),
			PubDate: firstNonEmpty(e.Published, e.Updated),
		}
		if raw.Link == "" {
			raw.Link = strings.TrimSpace(e.ID)
		}
		raw.Description = e.Summary
		if strings.TrimSpace(raw.Description) == "" && e.Content != nil {
			raw.Description = e.Content.Value
		}
		for _, a := range e.Authors {
			if a != nil && strings.TrimSpace(a.Name) != "" {
				raw.Author = strings.TrimSpace(a.Name)
				break
			}
		}
		if raw.Author == "" {
			raw.Author = extensionValue(e.Extensions, "dc", "creator")
		}
		if raw.PubDate == "" {
			raw.PubDate = extensionValue(e.Extensions, "dc", "date")
		}
		items = append(items, raw)
	}
	return items, nil
}

// atomLink prefers the alternate link, falling back to the first link with an href.
func atomLink(links []*atom.Link) string {
	var first string
	for _, l := range links {
		if l == nil {
			continue
		}
		href := strings.TrimSpace(l.Href)
		if href == "" {
			continue
		}
		if l.Rel == "" || l.Rel == "alternate" {
			return href
		}
		if first == "" {
			first = href
		}
	}
	return first
}

func extensionValue(exts ext.Extensions, prefix, name string) string {
	if exts == nil {
		return ""
	}
	for _, e := range exts[prefix][name] {
		if v := strings.TrimSpace(e.Value); v != "" {
			return v
		}
	}
	return ""
}

// looseEntry decodes an entry or item found at an arbitrary depth.
type looseEntry struct {
	Title       string       `xml:"title"`
	Links       []looseLink  `xml:"link"`
	GUID        string       `xml:"guid"`
	ID          string       `xml:"id"`
	Description string       `xml:"description"`
	Summary     string       `xml:"summary"`
	Content     string       `xml:"content"`
	Authors     []looseActor `xml:"author"`
	Creator     string       `xml:"http://purl.org/dc/elements/1.1/ creator"`
	PubDate     string       `xml:"pubDate"`
	Published   string       `xml:"published"`
	Updated     string       `xml:"updated"`
	Date        string       `xml:"http://purl.org/dc/elements/1.1/ date"`
}

type looseLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr"`
	Text string `xml:",chardata"`
}

type looseActor struct {
	Name string `xml:"name"`
	Text string `xml:",chardata"`
}

// parseNested collects entry elements anywhere in the document, or item elements when there are none.
func parseNested(doc []byte, entries bool) ([]RawItem, error) {
	want := "item"
	if entries {
		want = "entry"
	}

	var items []RawItem
	d := newDecoder(bytes.NewReader(doc))
	for {
		tok, err := d.Token()
		if errors.Is(err, io.EOF) {
			return items, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode nested %s: %w", want, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != want {
			continue
		}
		var e looseEntry
		if err := d.DecodeElement(&e, &start); err != nil {
			return nil, fmt.Errorf("decode nested %s: %w", want, err)
		}
		items = append(items, e.raw())
	}
}

func (e looseEntry) raw() RawItem {
	raw := RawItem{
		Shape:       ShapeNested,
		Title:       e.Title,
		Description: firstNonEmpty(e.Description, e.Summary, e.Content),
		PubDate:     firstNonEmpty(e.PubDate, e.Published, e.Updated, e.Date),
	}
	for _, l := range e.Links {
		if href := firstNonEmpty(l.Href, l.Text); href != "" && (l.Rel == "" || l.Rel == "alternate") {
			raw.Link = href
			break
		}
	}
	if raw.Link == "" {
		raw.Link = firstNonEmpty(e.GUID, e.ID)
	}
	for _, a := range e.Authors {
		if name := firstNonEmpty(a.Name, a.Text); name != "" {
			raw.Author = name
			break
		}
	}
	if raw.Author == "" {
		raw.Author = strings.TrimSpace(e.Creator)
	}
	return raw
}

// firstNonEmpty returns the first non-blank value, trimmed.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
