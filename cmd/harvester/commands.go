package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/Adda-Baaj/balance-news/internal/domain"
	"github.com/Adda-Baaj/balance-news/internal/ingest"
	"github.com/Adda-Baaj/balance-news/internal/report"
	"github.com/Adda-Baaj/balance-news/internal/server"
	"github.com/Adda-Baaj/balance-news/internal/sources"
)

const distributionDays = 7

func runFetch(ctx context.Context, args []string, out, errOut io.Writer) int {
	fs, o := newFlagSet("fetch", errOut)
	hours := fs.Int("hours", 0, "only admit items published within this many hours (default from config, 24)")
	only := fs.String("sources", "all", "comma-separated source slugs, or 'all'")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	a, err := setup(ctx, fs, o)
	if err != nil {
		return fail(errOut, err)
	}
	defer a.close()

	agg, release, err := a.aggregator(ctx)
	if err != nil {
		return fail(errOut, err)
	}
	defer release()

	window := windowHours(*hours, a.cfg)
	fmt.Fprintln(out, "Starting news fetch...")
	res, err := agg.FetchAllSources(ctx, ingest.ParseSlugs(*only), window)
	if err != nil {
		return fail(errOut, err)
	}

	if err := writeRunTable(out, res); err != nil {
		return fail(errOut, err)
	}
	fmt.Fprintf(out, "Fetched %d new %s from the last %d hours\n",
		res.Report.Admitted, plural(res.Report.Admitted, "article", "articles"), window)
	return exitOK
}

func runRefresh(ctx context.Context, args []string, out, errOut io.Writer) int {
	fs, o := newFlagSet("refresh", errOut)
	hours := fs.Int("hours", 0, "only admit items published within this many hours (default from config, 24)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	a, err := setup(ctx, fs, o)
	if err != nil {
		return fail(errOut, err)
	}
	defer a.close()

	agg, release, err := a.aggregator(ctx)
	if err != nil {
		return fail(errOut, err)
	}
	defer release()

	active, err := a.store.ListActiveSources(ctx, nil)
	if err != nil {
		return fail(errOut, err)
	}
	fmt.Fprintln(out, "Source distribution:")
	if err := report.WriteSourceCounts(out, report.SourceCounts(active)); err != nil {
		return fail(errOut, err)
	}
	fmt.Fprintln(out)

	res, err := agg.RefreshByBias(ctx, windowHours(*hours, a.cfg))
	if err != nil {
		return fail(errOut, err)
	}

	var current domain.BiasLabel
	for i, sr := range res.Sources {
		if i == 0 || sr.Source.Bias != current {
			current = sr.Source.Bias
			fmt.Fprintf(out, "Fetching from %s sources...\n", current)
		}
		if sr.State == ingest.StateFailed {
			fmt.Fprintf(out, "   %s: failed: %v\n", sr.Source.Name, sr.Err)
			continue
		}
		fmt.Fprintf(out, "   %s: %d new %s\n", sr.Source.Name, sr.Report.Admitted,
			plural(sr.Report.Admitted, "article", "articles"))
	}
	fmt.Fprintf(out, "\nRefresh complete: %d new %s\n\n", res.Report.Admitted,
		plural(res.Report.Admitted, "article", "articles"))

	since := time.Now().AddDate(0, 0, -distributionDays)
	counts, err := a.store.CountArticlesByBias(ctx, since)
	if err != nil {
		return fail(errOut, err)
	}
	dist := report.BiasDistribution(counts)
	fmt.Fprintf(out, "Article distribution (last %d days, %d articles):\n", distributionDays, dist.Total)
	if err := dist.Write(out); err != nil {
		return fail(errOut, err)
	}
	return exitOK
}

func runImport(ctx context.Context, args []string, out, errOut io.Writer) int {
	fs, o := newFlagSet("import-sources", errOut)
	dir := fs.String("dir", "", "directory of *.json/*.yaml source definitions (default from config)")
	force := fs.Bool("force", false, "update existing sources and replace their feeds")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	a, err := setup(ctx, fs, o)
	if err != nil {
		return fail(errOut, err)
	}
	defer a.close()

	path := *dir
	if path == "" {
		path = a.cfg.Sources.Dir
	}
	fmt.Fprintf(out, "Importing news sources from %s...\n", path)

	sum, err := sources.NewImporter(a.store, a.log).ImportDir(ctx, path, *force)
	if err != nil {
		return fail(errOut, err)
	}

	rows := make([][]string, 0, len(sum.Files))
	for _, f := range sum.Files {
		note := ""
		if f.Err != nil {
			note = f.Err.Error()
		}
		rows = append(rows, []string{f.File, f.Slug, string(f.Outcome), strconv.Itoa(f.Feeds), note})
	}
	if err := report.WriteTable(out, []string{"FILE", "SLUG", "OUTCOME", "FEEDS", "ERROR"}, rows); err != nil {
		return fail(errOut, err)
	}
	fmt.Fprintf(out, "Import completed: %d imported, %d updated, %d skipped, %d failed\n",
		sum.Imported, sum.Updated, sum.Skipped, sum.Failed)
	return exitOK
}

func runServe(ctx context.Context, args []string, out, errOut io.Writer) int {
	fs, o := newFlagSet("serve", errOut)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	a, err := setup(ctx, fs, o)
	if err != nil {
		return fail(errOut, err)
	}
	defer a.close()

	agg, release, err := a.aggregator(ctx)
	if err != nil {
		return fail(errOut, err)
	}
	defer release()

	srv := server.New(a.store, agg, a.log)
	fmt.Fprintf(out, "Serving API on %s\n", a.cfg.API.Listen)
	if err := srv.Start(ctx, a.cfg.API.Listen); err != nil {
		return fail(errOut, err)
	}
	return exitOK
}

func runTruncate(ctx context.Context, args []string, out, errOut io.Writer) int {
	fs, o := newFlagSet("truncate", errOut)
	articles := fs.Bool("articles", false, "only delete articles")
	srcs := fs.Bool("sources", false, "only delete sources and feeds (their articles go with them)")
	force := fs.Bool("force", false, "actually delete")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	doArticles, doSources := *articles, *srcs
	if !doArticles && !doSources {
		doArticles, doSources = true, true
	}

	var targets []string
	if doArticles {
		targets = append(targets, "articles")
	}
	if doSources {
		targets = append(targets, "feeds", "sources")
	}
	fmt.Fprintf(out, "This will delete: %s\n", joinOr(targets, "nothing"))
	if !*force {
		fmt.Fprintln(out, "Nothing deleted. Re-run with --force to proceed.")
		return exitOK
	}

	a, err := setup(ctx, fs, o)
	if err != nil {
		return fail(errOut, err)
	}
	defer a.close()

	if doArticles {
		if err := a.store.TruncateArticles(ctx); err != nil {
			return fail(errOut, fmt.Errorf("truncate articles: %w", err))
		}
		fmt.Fprintln(out, "Truncated: articles")
	}
	if doSources {
		if err := a.store.TruncateSources(ctx); err != nil {
			return fail(errOut, fmt.Errorf("truncate sources: %w", err))
		}
		fmt.Fprintln(out, "Truncated: feeds, sources")
	}
	fmt.Fprintln(out, "Tip: run 'harvester import-sources' to re-import sources")
	return exitOK
}

func writeRunTable(w io.Writer, res ingest.Run) error {
	rows := make([][]string, 0, len(res.Sources))
	for _, sr := range res.Sources {
		note := ""
		if sr.Err != nil {
			note = sr.Err.Error()
		} else if failed := sr.Report.FeedsFailed; failed > 0 {
			note = fmt.Sprintf("%d %s failed", failed, plural(failed, "feed", "feeds"))
		}
		rows = append(rows, []string{
			sr.Source.Slug,
			sr.State.String(),
			strconv.Itoa(sr.Report.FeedsAttempted),
			strconv.Itoa(sr.Report.Admitted),
			strconv.Itoa(sr.Report.Duplicates),
			strconv.Itoa(sr.Report.OutOfWindow),
			note,
		})
	}
	return report.WriteTable(w, []string{"SOURCE", "STATE", "FEEDS", "ADMITTED", "DUPLICATES", "TOO OLD", "NOTE"}, rows)
}
