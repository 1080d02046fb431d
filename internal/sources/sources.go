// Package sources imports source and feed definitions from JSON or YAML files.
package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Adda-Baaj/balance-news/internal/domain"
	"github.com/Adda-Baaj/balance-news/internal/logger"
)

var (
	// ErrNoDefinitions is returned when the directory holds no definition files.
	ErrNoDefinitions = errors.New("no source definition files found")
	errMissingName   = errors.New("name is required")
	errMissingSlug   = errors.New("slug is required")
	errMissingFeed   = errors.New("feed url is required")
)

// Definition is one source file.
type Definition struct {
	Name        string           `json:"name" yaml:"name"`
	Slug        string           `json:"slug" yaml:"slug"`
	URL         string           `json:"url" yaml:"url"`
	RSSURL      string           `json:"rss_url" yaml:"rss_url"`
	BiasLabel   string           `json:"bias_label" yaml:"bias_label"`
	CountryCode string           `json:"country_code" yaml:"country_code"`
	Categories  []string         `json:"categories" yaml:"categories"`
	IsActive    *bool            `json:"is_active" yaml:"is_active"`
	Feeds       []FeedDefinition `json:"rss_feeds" yaml:"rss_feeds"`
}

// FeedDefinition is one feed inside a source file.
type FeedDefinition struct {
	Name     string `json:"name" yaml:"name"`
	URL      string `json:"url" yaml:"url"`
	Category string `json:"category" yaml:"category"`
	IsActive *bool  `json:"is_active" yaml:"is_active"`
}

// Source validates the definition and applies defaults.
func (d Definition) Source() (domain.Source, error) {
	name := strings.TrimSpace(d.Name)
	if name == "" {
		return domain.Source{}, errMissingName
	}
	slug := strings.ToLower(strings.TrimSpace(d.Slug))
	if slug == "" {
		return domain.Source{}, errMissingSlug
	}
	bias, err := domain.ParseBiasLabel(d.BiasLabel)
	if err != nil {
		return domain.Source{}, err
	}
	country := strings.ToUpper(strings.TrimSpace(d.CountryCode))
	if country == "" {
		country = domain.DefaultCountryCode
	}
	return domain.Source{
		Name:          name,
		Slug:          slug,
		URL:           strings.TrimSpace(d.URL),
		LegacyFeedURL: strings.TrimSpace(d.RSSURL),
		Bias:          bias,
		CountryCode:   country,
		Categories:    trimAll(d.Categories),
		Active:        boolOr(d.IsActive, true),
	}, nil
}

// FeedList validates the feed definitions and applies defaults. SourceID is left empty.
func (d Definition) FeedList() ([]domain.Feed, error) {
	out := make([]domain.Feed, 0, len(d.Feeds))
	for i, f := range d.Feeds {
		url := strings.TrimSpace(f.URL)
		if url == "" {
			return nil, fmt.Errorf("rss_feeds[%d]: %w", i, errMissingFeed)
		}
		name := strings.TrimSpace(f.Name)
		if name == "" {
			name = strings.TrimSpace(d.Name)
		}
		category := strings.TrimSpace(f.Category)
		if category == "" {
			category = domain.DefaultFeedCategory
		}
		out = append(out, domain.Feed{
			Name:     name,
			URL:      url,
			Category: category,
			Active:   boolOr(f.IsActive, true),
		})
	}
	return out, nil
}

// LoadFile decodes a definition, picking the decoder from the extension.
func LoadFile(path string) (Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read %s: %w", path, err)
	}

	var def Definition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(raw, &def)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &def)
	default:
		return Definition{}, fmt.Errorf("unsupported definition file %s", path)
	}
	if err != nil {
		return Definition{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return def, nil
}

// Files lists definition files in dir in name order.
func Files(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("sources directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sources directory %s is not a directory", dir)
	}

	var files []string
	for _, pattern := range []string{"*.json", "*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", pattern, err)
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoDefinitions)
	}
	sort.Strings(files)
	return files, nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// Outcome is what happened to one definition.
type Outcome string

const (
	Imported Outcome = "imported"
	Updated  Outcome = "updated"
	Skipped  Outcome = "skipped"
	Failed   Outcome = "failed"
)

// FileResult reports one processed file.
type FileResult struct {
	File    string
	Slug    string
	Outcome Outcome
	Feeds   int
	Err     error
}

// Summary totals an import run.
type Summary struct {
	Imported int
	Updated  int
	Skipped  int
	Failed   int
	Files    []FileResult
}

func (s *Summary) add(r FileResult) {
	s.Files = append(s.Files, r)
	switch r.Outcome {
	case Imported:
		s.Imported++
	case Updated:
		s.Updated++
	case Skipped:
		s.Skipped++
	case Failed:
		s.Failed++
	}
}

// Store is the storage surface the importer needs.
type Store interface {
	SourceBySlug(ctx context.Context, slug string) (domain.Source, error)
	UpsertSource(ctx context.Context, s domain.Source) (domain.Source, error)
	UpsertFeed(ctx context.Context, f domain.Feed) error
	DeleteFeeds(ctx context.Context, sourceID string) error
}

// Importer writes definitions to a Store.
type Importer struct {
	store Store
	log   logger.Logger
}

// NewImporter creates an Importer.
func NewImporter(store Store, log logger.Logger) *Importer {
	return &Importer{store: store, log: logger.Ensure(log)}
}

// ImportDir imports every definition file in dir. Per-file failures are counted, not returned.
func (i *Importer) ImportDir(ctx context.Context, dir string, force bool) (Summary, error) {
	files, err := Files(dir)
	if err != nil {
		return Summary{}, err
	}

	var sum Summary
	for _, file := range files {
		res := FileResult{File: filepath.Base(file)}
		def, err := LoadFile(file)
		if err == nil {
			res.Slug = def.Slug
			res.Outcome, res.Feeds, err = i.Import(ctx, def, force)
		}
		if err != nil {
			res.Outcome = Failed
			res.Err = err
			i.log.ErrorObj("source import failed", "import_error", map[string]any{
				"file":  res.File,
				"error": err.Error(),
			})
		} else {
			i.log.InfoObj("source processed", "import_source", map[string]any{
				"file":    res.File,
				"slug":    res.Slug,
				"outcome": string(res.Outcome),
				"feeds":   res.Feeds,
			})
		}
		sum.add(res)
	}
	return sum, nil
}

// Import writes one definition. Existing slugs are skipped unless force is set, in which case
// the source is updated and its feeds replaced.
func (i *Importer) Import(ctx context.Context, def Definition, force bool) (Outcome, int, error) {
	src, err := def.Source()
	if err != nil {
		return Failed, 0, err
	}
	feedList, err := def.FeedList()
	if err != nil {
		return Failed, 0, err
	}

	outcome := Imported
	existing, err := i.store.SourceBySlug(ctx, src.Slug)
	switch {
	case err == nil:
		if !force {
			return Skipped, 0, nil
		}
		outcome = Updated
		src.ID = existing.ID
	case errors.Is(err, domain.ErrSourceNotFound):
	default:
		return Failed, 0, fmt.Errorf("lookup %s: %w", src.Slug, err)
	}

	stored, err := i.store.UpsertSource(ctx, src)
	if err != nil {
		return Failed, 0, err
	}

	if force && def.Feeds != nil {
		if err := i.store.DeleteFeeds(ctx, stored.ID); err != nil {
			return Failed, 0, fmt.Errorf("replace feeds of %s: %w", stored.Slug, err)
		}
	}
	for _, f := range feedList {
		f.SourceID = stored.ID
		if err := i.store.UpsertFeed(ctx, f); err != nil {
			return Failed, 0, err
		}
	}
	return outcome, len(feedList), nil
}
