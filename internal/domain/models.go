package domain

import "time"

// Domain contains core models and interfaces.

// Source is a labeled news outlet that owns zero or more feeds.
type Source struct {
	ID            string
	Name          string
	Slug          string
	URL           string
	LegacyFeedURL string // single rss_url kept for sources imported before feeds existed
	Bias          BiasLabel
	CountryCode   string
	Categories    []string
	Active        bool
	LastScrapedAt *time.Time
}

// Feed is one RSS/Atom endpoint belonging to a Source.
type Feed struct {
	ID            string
	SourceID      string
	Name          string
	URL           string
	Category      string
	Active        bool
	LastFetchedAt *time.Time
}

// Synthetic reports whether the feed was derived from a source's legacy feed url
// rather than loaded from storage.
func (f Feed) Synthetic() bool {
	return f.ID == ""
}

// Article is a normalized, deduplicated news item produced by ingestion.
type Article struct {
	ID          string
	SourceID    string
	Title       string
	Summary     string
	URL         string
	ImageURL    string
	Author      string
	Category    string
	Keywords    []string
	PublishedAt time.Time
	Active      bool
	CreatedAt   time.Time
}

const (
	DefaultCountryCode  = "US"
	DefaultFeedCategory = "general"
	LegacyFeedName      = "Main Feed"
	UnknownAuthor       = "Unknown"
)
