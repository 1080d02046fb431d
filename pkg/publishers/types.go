package publishers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Adda-Baaj/balance-news/internal/domain"
	"github.com/Adda-Baaj/balance-news/internal/logger"
)

// EventArticleAdmitted is emitted once per newly stored article.
const EventArticleAdmitted = "article.admitted"

// Logger is the structured logger publishers write to.
type Logger = logger.Logger

// Publisher delivers events to one configured sink.
type Publisher interface {
	ID() string
	Type() string
	Publish(ctx context.Context, evt Event) error
}

// Event is the JSON payload every sink receives.
type Event struct {
	ID         string       `json:"id"`
	Type       string       `json:"type"`
	OccurredAt time.Time    `json:"occurred_at"`
	Source     EventSource  `json:"source"`
	Article    EventArticle `json:"article"`
}

// EventSource identifies the outlet an article came from.
type EventSource struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
	Bias string `json:"bias_label"`
}

// EventArticle is the admitted article as seen by consumers.
type EventArticle struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	Author      string    `json:"author,omitempty"`
	Category    string    `json:"category,omitempty"`
	Keywords    []string  `json:"keywords,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// NewArticleAdmitted builds the event for an admitted article.
func NewArticleAdmitted(src domain.Source, art domain.Article, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       EventArticleAdmitted,
		OccurredAt: at.UTC(),
		Source: EventSource{
			ID:   src.ID,
			Slug: src.Slug,
			Name: src.Name,
			Bias: string(src.Bias),
		},
		Article: EventArticle{
			ID:          art.ID,
			URL:         art.URL,
			Title:       art.Title,
			Summary:     art.Summary,
			ImageURL:    art.ImageURL,
			Author:      art.Author,
			Category:    art.Category,
			Keywords:    art.Keywords,
			PublishedAt: art.PublishedAt.UTC(),
		},
	}
}

func ensureLogger(log Logger) Logger {
	return logger.Ensure(log)
}
