// Package ingest turns sources and their feeds into admitted articles.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Adda-Baaj/balance-news/internal/domain"
	"github.com/Adda-Baaj/balance-news/internal/logger"
	"github.com/Adda-Baaj/balance-news/internal/storage"
	"github.com/Adda-Baaj/balance-news/pkg/feeds"
)

const (
	DefaultWindowHours = 24
	DefaultWorkers     = 4
)

// FeedFetcher retrieves and parses one feed document.
type FeedFetcher interface {
	Fetch(ctx context.Context, url string) ([]feeds.RawItem, error)
}

// Enricher fills page metadata on freshly accepted articles before they are stored.
type Enricher interface {
	Enrich(ctx context.Context, articles []domain.Article) []domain.Article
}

// Notifier is told about every admitted article. It must not fail admission.
type Notifier interface {
	ArticleAdmitted(ctx context.Context, src domain.Source, art domain.Article)
}

// Store is the storage surface the aggregator needs.
type Store interface {
	storage.SourceReader
	storage.ArticleStore
	storage.Marker
}

// FeedResult is the outcome of one feed within a run.
type FeedResult struct {
	Feed      domain.Feed
	State     State
	Err       error
	Articles  []domain.Article
	Report    Report
	FetchedAt time.Time
}

// SourceResult is the outcome of one source within a run.
type SourceResult struct {
	Source    domain.Source
	State     State
	Err       error
	Feeds     []FeedResult
	Articles  []domain.Article
	Report    Report
	ScrapedAt time.Time
}

// Mutations lists the timestamp writes for this source. Synthetic feeds have no row to stamp.
func (r SourceResult) Mutations() []Mutation {
	var out []Mutation
	for _, fr := range r.Feeds {
		if fr.State == StateSucceeded && !fr.Feed.Synthetic() {
			out = append(out, Mutation{Kind: FeedFetched, ID: fr.Feed.ID, At: fr.FetchedAt})
		}
	}
	if r.State == StateSucceeded {
		out = append(out, Mutation{Kind: SourceScraped, ID: r.Source.ID, At: r.ScrapedAt})
	}
	return out
}

// Run is the merged outcome of FetchAllSources.
type Run struct {
	Sources  []SourceResult
	Articles []domain.Article
	Report   Report
}

// Aggregator fetches feeds with a bounded worker pool and admits their items.
type Aggregator struct {
	store     Store
	fetcher   FeedFetcher
	admission *Admission
	enricher  Enricher
	notifier  Notifier
	workers   int
	now       func() time.Time
	log       logger.Logger
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithWorkers bounds how many feeds are fetched at once.
func WithWorkers(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.workers = n
		}
	}
}

// WithClock replaces time.Now for the window, the date fallback and timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) {
		if now != nil {
			a.now = now
		}
	}
}

// WithEnricher enables page metadata enrichment.
func WithEnricher(e Enricher) Option {
	return func(a *Aggregator) { a.enricher = e }
}

// WithNotifier registers a listener for admitted articles.
func WithNotifier(n Notifier) Option {
	return func(a *Aggregator) { a.notifier = n }
}

// NewAggregator wires an Aggregator. A nil fetcher uses feeds.NewFetcher defaults.
func NewAggregator(store Store, fetcher FeedFetcher, log logger.Logger, opts ...Option) *Aggregator {
	log = logger.Ensure(log)
	if fetcher == nil {
		fetcher = feeds.NewFetcher(nil, log)
	}
	a := &Aggregator{
		store:   store,
		fetcher: fetcher,
		workers: DefaultWorkers,
		now:     time.Now,
		log:     log,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.admission = NewAdmission(store, a.now)
	return a
}

// FetchAllSources processes every active source matching slugs (all when empty) and applies
// each source's mutations as soon as it completes. Only setup failures are returned.
func (a *Aggregator) FetchAllSources(ctx context.Context, slugs []string, windowHours int) (Run, error) {
	sources, err := a.store.ListActiveSources(ctx, cleanSlugs(slugs))
	if err != nil {
		return Run{}, fmt.Errorf("list active sources: %w", err)
	}
	if len(sources) == 0 {
		return Run{}, domain.ErrNoSources
	}

	a.log.InfoObj("ingestion run started", "ingest_start", map[string]any{
		"sources":      len(sources),
		"window_hours": effectiveWindow(windowHours),
	})

	run := Run{Sources: make([]SourceResult, 0, len(sources))}
	for _, src := range sources {
		res := a.FetchOneSource(ctx, src, windowHours)
		a.Apply(ctx, res.Mutations())

		run.Sources = append(run.Sources, res)
		run.Articles = append(run.Articles, res.Articles...)
		run.Report.Add(res.Report)
	}

	a.log.InfoObj("ingestion run finished", "ingest_done", run.Report.Fields())
	return run, nil
}

// RefreshByBias processes every active source grouped by bias label from left to right.
// Sources with a label outside the fixed set run last.
func (a *Aggregator) RefreshByBias(ctx context.Context, windowHours int) (Run, error) {
	sources, err := a.store.ListActiveSources(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("list active sources: %w", err)
	}
	if len(sources) == 0 {
		return Run{}, domain.ErrNoSources
	}

	rank := make(map[domain.BiasLabel]int, len(domain.BiasLabels))
	for i, label := range domain.BiasLabels {
		rank[label] = i
	}
	order := func(b domain.BiasLabel) int {
		if r, ok := rank[b]; ok {
			return r
		}
		return len(rank)
	}
	sort.SliceStable(sources, func(i, j int) bool { return order(sources[i].Bias) < order(sources[j].Bias) })

	run := Run{Sources: make([]SourceResult, 0, len(sources))}
	for _, src := range sources {
		res := a.FetchOneSource(ctx, src, windowHours)
		a.Apply(ctx, res.Mutations())

		a.log.InfoObj("bias refresh source done", "refresh_source", map[string]any{
			"bias":     string(src.Bias),
			"source":   src.Slug,
			"state":    res.State.String(),
			"admitted": res.Report.Admitted,
		})
		run.Sources = append(run.Sources, res)
		run.Articles = append(run.Articles, res.Articles...)
		run.Report.Add(res.Report)
	}
	return run, nil
}

// FetchOneSource processes every active feed of src. It never writes timestamps; see Mutations.
func (a *Aggregator) FetchOneSource(ctx context.Context, src domain.Source, windowHours int) (res SourceResult) {
	res = SourceResult{Source: src, State: StatePending}
	res.Report.SourcesAttempted = 1

	defer func() {
		if r := recover(); r != nil {
			res.State = StateFailed
			res.Err = fmt.Errorf("source %s panicked: %v", src.Slug, r)
		}
		if res.State == StateFailed {
			res.Report.SourcesFailed = 1
			a.log.ErrorObj("source failed", "source_error", map[string]any{
				"source": src.Slug,
				"error":  res.Err.Error(),
			})
			return
		}
		res.Report.SourcesSucceeded = 1
	}()

	res.State = StateFetching
	list, err := a.resolveFeeds(ctx, src)
	if err != nil {
		res.State = StateFailed
		res.Err = err
		return res
	}
	if len(list) == 0 {
		a.log.WarnObj("source has no feeds", "source_no_feeds", map[string]any{"source": src.Slug})
	}

	res.Feeds = a.fetchFeeds(ctx, src, list, time.Duration(effectiveWindow(windowHours))*time.Hour)
	for _, fr := range res.Feeds {
		res.Articles = append(res.Articles, fr.Articles...)
		res.Report.Add(fr.Report)
	}
	res.State = StateSucceeded
	res.ScrapedAt = a.now()

	a.log.InfoObj("source processed", "source_done", map[string]any{
		"source":   src.Slug,
		"feeds":    len(res.Feeds),
		"admitted": res.Report.Admitted,
	})
	return res
}

// Apply writes mutations. Failures are logged; timestamps are advisory.
func (a *Aggregator) Apply(ctx context.Context, muts []Mutation) {
	for _, m := range muts {
		var err error
		switch m.Kind {
		case SourceScraped:
			err = a.store.MarkSourceScraped(ctx, m.ID, m.At)
		case FeedFetched:
			err = a.store.MarkFeedFetched(ctx, m.ID, m.At)
		}
		if err != nil {
			a.log.WarnObj("timestamp update failed", "mark_error", map[string]any{
				"id":    m.ID,
				"error": err.Error(),
			})
		}
	}
}

// resolveFeeds returns the stored active feeds, or a single synthetic feed built from the
// legacy url when there are none.
func (a *Aggregator) resolveFeeds(ctx context.Context, src domain.Source) ([]domain.Feed, error) {
	list, err := a.store.ActiveFeeds(ctx, src.ID)
	if err != nil {
		return nil, fmt.Errorf("load feeds for %s: %w", src.Slug, err)
	}
	if len(list) > 0 {
		return list, nil
	}
	legacy := strings.TrimSpace(src.LegacyFeedURL)
	if legacy == "" {
		return nil, nil
	}
	return []domain.Feed{{
		SourceID: src.ID,
		Name:     domain.LegacyFeedName,
		URL:      legacy,
		Category: domain.DefaultFeedCategory,
		Active:   true,
	}}, nil
}

func (a *Aggregator) fetchFeeds(ctx context.Context, src domain.Source, list []domain.Feed, window time.Duration) []FeedResult {
	out := make([]FeedResult, len(list))
	for i, f := range list {
		out[i] = FeedResult{Feed: f, State: StatePending}
	}
	if len(list) == 0 {
		return out
	}

	workerCount := min(len(list), a.workers)
	jobCh := make(chan int)
	var wg sync.WaitGroup

	for workerID := range workerCount {
		wg.Add(1)
		go a.feedWorker(ctx, src, window, jobCh, out, &wg, workerID)
	}

	for idx := range list {
		if ctx.Err() != nil {
			break
		}
		jobCh <- idx
	}
	close(jobCh)
	wg.Wait()

	// feeds never handed out because the run was cancelled
	for i := range out {
		if out[i].State == StatePending {
			out[i].State = StateFailed
			out[i].Err = ctx.Err()
			out[i].Report = Report{FeedsAttempted: 1, FeedsFailed: 1}
		}
	}
	return out
}

func (a *Aggregator) feedWorker(
	ctx context.Context,
	src domain.Source,
	window time.Duration,
	jobCh <-chan int,
	out []FeedResult,
	wg *sync.WaitGroup,
	workerID int,
) {
	defer wg.Done()

	for idx := range jobCh {
		out[idx] = a.processFeed(ctx, src, out[idx].Feed, window, workerID)
	}
}

func (a *Aggregator) processFeed(ctx context.Context, src domain.Source, feed domain.Feed, window time.Duration, workerID int) (res FeedResult) {
	res = FeedResult{Feed: feed, State: StateFetching}
	res.Report.FeedsAttempted = 1

	defer func() {
		if r := recover(); r != nil {
			res.State = StateFailed
			res.Err = fmt.Errorf("feed %s panicked: %v", feed.URL, r)
		}
		if res.State == StateFailed {
			res.Report.FeedsFailed = 1
			a.log.WarnObj("feed failed", "feed_error", map[string]any{
				"worker_id": workerID,
				"source":    src.Slug,
				"feed":      feed.URL,
				"error":     res.Err.Error(),
			})
			return
		}
		res.Report.FeedsSucceeded = 1
	}()

	a.log.DebugObj("fetching feed", "feed_fetch", map[string]any{
		"worker_id": workerID,
		"source":    src.Slug,
		"feed":      feed.URL,
	})

	items, err := a.fetcher.Fetch(ctx, feed.URL)
	if err != nil {
		res.State = StateFailed
		res.Err = err
		return res
	}
	res.FetchedAt = a.now()
	res.Report.ItemsSeen = len(items)

	var candidates []domain.Article
	for _, item := range items {
		art, outcome, err := a.admission.Candidate(ctx, src, feed, item, window)
		if err != nil {
			a.itemError(&res, src, feed, err)
			continue
		}
		switch outcome {
		case Duplicate:
			res.Report.Duplicates++
		case OutOfWindow:
			res.Report.OutOfWindow++
		case Admitted:
			candidates = append(candidates, art)
		}
	}

	if a.enricher != nil && len(candidates) > 0 {
		candidates = a.enricher.Enrich(ctx, candidates)
	}

	for _, art := range candidates {
		outcome, err := a.admission.Admit(ctx, art)
		if err != nil {
			a.itemError(&res, src, feed, err)
			continue
		}
		if outcome == Duplicate {
			res.Report.Duplicates++
			continue
		}
		res.Report.Admitted++
		res.Articles = append(res.Articles, art)
		if a.notifier != nil {
			a.notifier.ArticleAdmitted(ctx, src, art)
		}
	}

	res.State = StateSucceeded
	return res
}

func (a *Aggregator) itemError(res *FeedResult, src domain.Source, feed domain.Feed, err error) {
	res.Report.ItemErrors++
	var itemErr *domain.ItemError
	link := ""
	if errors.As(err, &itemErr) {
		link = itemErr.Link
	}
	a.log.WarnObj("feed item skipped", "item_error", map[string]any{
		"source": src.Slug,
		"feed":   feed.URL,
		"link":   link,
		"error":  err.Error(),
	})
}

func effectiveWindow(hours int) int {
	if hours <= 0 {
		return DefaultWindowHours
	}
	return hours
}

// cleanSlugs drops blanks and treats "all" as no filter.
func cleanSlugs(slugs []string) []string {
	var out []string
	for _, s := range slugs {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if strings.EqualFold(s, "all") {
			return nil
		}
		out = append(out, s)
	}
	return out
}

// ParseSlugs splits a comma separated --sources value.
func ParseSlugs(raw string) []string {
	return cleanSlugs(strings.Split(raw, ","))
}
