package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Adda-Baaj/balance-news/internal/domain"
	"github.com/Adda-Baaj/balance-news/internal/ingest"
	"github.com/Adda-Baaj/balance-news/internal/storage"
)

type errorResponse struct {
	Error string `json:"error"`
}

type sourceResponse struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Slug          string     `json:"slug"`
	URL           string     `json:"url"`
	Bias          string     `json:"bias_label"`
	CountryCode   string     `json:"country_code"`
	Categories    []string   `json:"categories"`
	Active        bool       `json:"is_active"`
	LastScrapedAt *time.Time `json:"last_scraped_at,omitempty"`
}

type articleResponse struct {
	ID          string    `json:"id"`
	SourceID    string    `json:"source_id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	URL         string    `json:"url"`
	ImageURL    string    `json:"image_url,omitempty"`
	Author      string    `json:"author"`
	Category    string    `json:"category"`
	Keywords    []string  `json:"keywords"`
	PublishedAt time.Time `json:"published_at"`
	CreatedAt   time.Time `json:"created_at"`
}

type ingestResponse struct {
	WindowHours int            `json:"window_hours"`
	Sources     []string       `json:"sources,omitempty"`
	Report      map[string]any `json:"report"`
}

func (s *Server) bind() {
	s.Echo.GET("/healthz", s.health)

	api := s.Echo.Group("/api/v1")
	api.GET("/sources", s.listSources)
	api.GET("/articles", s.listArticles)
	if s.ingester != nil {
		api.POST("/ingest", s.runIngest)
	}
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listSources(c echo.Context) error {
	sources, err := s.store.ListSources(c.Request().Context())
	if err != nil {
		return err
	}
	out := make([]sourceResponse, 0, len(sources))
	for _, src := range sources {
		out = append(out, toSourceResponse(src))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) listArticles(c echo.Context) error {
	ctx := c.Request().Context()

	hours, err := intParam(c, "hours", 0)
	if err != nil {
		return err
	}
	limit, err := intParam(c, "limit", storage.DefaultLimit)
	if err != nil {
		return err
	}

	q := storage.ArticleQuery{Limit: min(limit, MaxLimit)}
	if hours > 0 {
		q.Since = s.now().Add(-time.Duration(hours) * time.Hour)
	}
	if slug := strings.ToLower(strings.TrimSpace(c.QueryParam("source"))); slug != "" {
		src, err := s.store.SourceBySlug(ctx, slug)
		if err != nil {
			return err
		}
		q.SourceID = src.ID
	}

	articles, err := s.store.RecentArticles(ctx, q)
	if err != nil {
		return err
	}
	out := make([]articleResponse, 0, len(articles))
	for _, a := range articles {
		out = append(out, toArticleResponse(a))
	}
	return c.JSON(http.StatusOK, out)
}

// runIngest triggers one run. Overlapping runs are rejected rather than queued.
func (s *Server) runIngest(c echo.Context) error {
	hours, err := intParam(c, "hours", ingest.DefaultWindowHours)
	if err != nil {
		return err
	}
	slugs := ingest.ParseSlugs(c.QueryParam("sources"))

	if !s.ingestMu.TryLock() {
		return echo.NewHTTPError(http.StatusConflict, "an ingestion run is already in progress")
	}
	defer s.ingestMu.Unlock()

	run, err := s.ingester.FetchAllSources(c.Request().Context(), slugs, hours)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, ingestResponse{
		WindowHours: hours,
		Sources:     slugs,
		Report:      run.Report.Fields(),
	})
}

// intParam reads a non-negative integer query parameter.
func intParam(c echo.Context, name string, def int) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" must be a non-negative integer")
	}
	if n == 0 {
		return def, nil
	}
	return n, nil
}

func toSourceResponse(src domain.Source) sourceResponse {
	categories := src.Categories
	if categories == nil {
		categories = []string{}
	}
	return sourceResponse{
		ID:            src.ID,
		Name:          src.Name,
		Slug:          src.Slug,
		URL:           src.URL,
		Bias:          string(src.Bias),
		CountryCode:   src.CountryCode,
		Categories:    categories,
		Active:        src.Active,
		LastScrapedAt: src.LastScrapedAt,
	}
}

func toArticleResponse(a domain.Article) articleResponse {
	keywords := a.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	return articleResponse{
		ID:          a.ID,
		SourceID:    a.SourceID,
		Title:       a.Title,
		Summary:     a.Summary,
		URL:         a.URL,
		ImageURL:    a.ImageURL,
		Author:      a.Author,
		Category:    a.Category,
		Keywords:    keywords,
		PublishedAt: a.PublishedAt,
		CreatedAt:   a.CreatedAt,
	}
}
