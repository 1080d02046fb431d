// Package normalize turns raw feed text and dates into the canonical article fields.
package normalize

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	// SummaryLimit is the maximum summary length in characters, ellipsis included.
	SummaryLimit = 300
	ellipsis     = "..."

	blockElements = "p,br,div,li,tr,td,th,h1,h2,h3,h4,h5,h6,blockquote,pre,hr,section,article"
)

var (
	tagPattern    = regexp.MustCompile(`<[a-zA-Z/!][^>]*>`)
	entityPattern = regexp.MustCompile(`&(#[0-9]+|#[xX][0-9a-fA-F]+|[a-zA-Z][a-zA-Z0-9]*);`)
)

// CleanTitle strips markup and entities and collapses whitespace.
func CleanTitle(raw string) string {
	return collapseWhitespace(stripMarkup(raw))
}

// CleanSummary cleans like CleanTitle and caps the result at SummaryLimit characters.
func CleanSummary(raw string) string {
	return Truncate(CleanTitle(raw), SummaryLimit)
}

// Truncate cuts s to at most limit runes, ending in "..." when anything was removed.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	if limit <= len(ellipsis) {
		return string([]rune(s)[:limit])
	}
	head := string([]rune(s)[:limit-len(ellipsis)])
	return strings.TrimRightFunc(head, unicode.IsSpace) + ellipsis
}

// stripMarkup extracts the text of an HTML fragment. Feeds frequently escape their HTML twice,
// so a second pass runs when the first one still leaves tags or entities behind.
func stripMarkup(raw string) string {
	text := raw
	for pass := 0; pass < 2; pass++ {
		if !tagPattern.MatchString(text) && !entityPattern.MatchString(text) {
			break
		}
		text = htmlText(text)
	}
	return text
}

func htmlText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return html.UnescapeString(tagPattern.ReplaceAllString(fragment, " "))
	}
	doc.Find("script,style,noscript").Remove()
	doc.Find(blockElements).AfterHtml(" ")
	return doc.Text()
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
