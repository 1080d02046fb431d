package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateArticle is returned by stores when an article url already exists.
	ErrDuplicateArticle = errors.New("article url already exists")
	// ErrNoSources means the requested source set resolved to nothing.
	ErrNoSources = errors.New("no active sources found")
	// ErrSourceNotFound is returned when a slug lookup misses.
	ErrSourceNotFound = errors.New("source not found")
)

// FetchFailedError reports a non-success HTTP status or a transport failure for one feed.
type FetchFailedError struct {
	URL    string
	Status int
	Body   string
	Err    error
}

func (e *FetchFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch %s: status %d body: %s", e.URL, e.Status, e.Body)
}

func (e *FetchFailedError) Unwrap() error {
	return e.Err
}

// MalformedFeedError reports a document that could not be decoded as XML.
type MalformedFeedError struct {
	URL string
	Err error
}

func (e *MalformedFeedError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("malformed feed: %v", e.Err)
	}
	return fmt.Sprintf("malformed feed %s: %v", e.URL, e.Err)
}

func (e *MalformedFeedError) Unwrap() error {
	return e.Err
}

// ItemError reports one feed item that could not be turned into an article.
type ItemError struct {
	Link string
	Err  error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("feed item %q: %v", e.Link, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}
