// Package server exposes stored sources and articles over a small read API and lets
// operators trigger an ingestion run.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/Adda-Baaj/balance-news/internal/domain"
	"github.com/Adda-Baaj/balance-news/internal/ingest"
	"github.com/Adda-Baaj/balance-news/internal/logger"
	"github.com/Adda-Baaj/balance-news/internal/storage"
)

const (
	GracefulShutdownTimeout = 10 * time.Second
	MaxLimit                = 200
)

// Store is the read surface the API needs.
type Store interface {
	ListSources(ctx context.Context) ([]domain.Source, error)
	SourceBySlug(ctx context.Context, slug string) (domain.Source, error)
	RecentArticles(ctx context.Context, q storage.ArticleQuery) ([]domain.Article, error)
}

// Ingester runs one ingestion pass.
type Ingester interface {
	FetchAllSources(ctx context.Context, slugs []string, windowHours int) (ingest.Run, error)
}

// Server wraps an echo instance with the harvester routes.
type Server struct {
	Echo *echo.Echo

	store    Store
	ingester Ingester
	now      func() time.Time
	log      logger.Logger

	ingestMu sync.Mutex
}

// Option customizes a Server.
type Option func(*Server)

// WithClock replaces time.Now for the hours filter.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a Server with middlewares, error handling and routes in place.
// A nil ingester disables POST /api/v1/ingest.
func New(store Store, ingester Ingester, log logger.Logger, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		Echo:     e,
		store:    store,
		ingester: ingester,
		now:      time.Now,
		log:      logger.Ensure(log),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupMiddlewares()
	e.HTTPErrorHandler = s.errorHandler
	s.bind()
	return s
}

func (s *Server) setupMiddlewares() {
	s.Echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogLatency:  true,
		LogURI:      true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := map[string]any{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
			}
			if v.Error != nil {
				fields["error"] = v.Error.Error()
				s.log.WarnObj("request failed", "http_request_error", fields)
				return nil
			}
			s.log.DebugObj("request served", "http_request", fields)
			return nil
		},
	}))
	s.Echo.Use(middleware.Recover())
}

func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		_ = c.JSON(he.Code, errorResponse{Error: messageOf(he)})
	case errors.Is(err, domain.ErrSourceNotFound), errors.Is(err, domain.ErrNoSources):
		_ = c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	default:
		s.log.ErrorObj("unhandled error", "http_unhandled", map[string]any{
			"uri":   c.Request().RequestURI,
			"error": err.Error(),
		})
		_ = c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := s.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	s.log.InfoObj("api listening", "api_start", map[string]any{"addr": addr})

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), GracefulShutdownTimeout)
	defer cancel()
	if err := s.Echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.InfoObj("api stopped", "api_stop", nil)
	return nil
}

func messageOf(he *echo.HTTPError) string {
	if msg, ok := he.Message.(string); ok {
		return msg
	}
	return http.StatusText(he.Code)
}
