package normalize

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var feedLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	time.RFC3339Nano,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	"Mon, 02 Jan 2006 15:04 -0700",
	time.RFC822Z,
	time.RFC822,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// DateResolver parses feed dates. It never fails: anything unparseable resolves to now.
type DateResolver struct {
	now func() time.Time
}

// NewDateResolver returns a resolver using now as its clock; nil means time.Now.
func NewDateResolver(now func() time.Time) *DateResolver {
	if now == nil {
		now = time.Now
	}
	return &DateResolver{now: now}
}

// Resolve parses raw, trying the common feed layouts before a format-sniffing parser.
func (r *DateResolver) Resolve(raw string) time.Time {
	t, ok := parseDate(raw)
	if !ok {
		return r.now()
	}
	return t
}

// Parse reports whether raw could be parsed, for callers that want to know about the fallback.
func (r *DateResolver) Parse(raw string) (time.Time, bool) {
	return parseDate(raw)
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range feedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	if t, err := dateparse.ParseAny(raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}
