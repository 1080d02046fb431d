package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxKeywords caps the keyword list attached to an article.
	MaxKeywords = 10

	minKeywordLen = 4
)

var stopWords = toSet(
	"the", "and", "or", "but", "in", "on", "at", "to", "for", "of", "with", "by", "an", "a",
	"is", "are", "was", "were", "be", "been", "being", "have", "has", "had", "do", "does", "did",
	"will", "would", "could", "should",
)

// Keywords lower-cases text, splits it on whitespace and keeps the first MaxKeywords distinct
// tokens that are longer than three characters and not stop words.
func Keywords(text string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, MaxKeywords)

	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.TrimFunc(tok, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if utf8.RuneCountInString(tok) < minKeywordLen {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
		if len(out) == MaxKeywords {
			break
		}
	}
	return out
}

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
