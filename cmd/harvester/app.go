package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/Adda-Baaj/balance-news/internal/config"
	"github.com/Adda-Baaj/balance-news/internal/crawler"
	"github.com/Adda-Baaj/balance-news/internal/ingest"
	"github.com/Adda-Baaj/balance-news/internal/logger"
	"github.com/Adda-Baaj/balance-news/internal/storage"
	"github.com/Adda-Baaj/balance-news/internal/storage/factory"
	"github.com/Adda-Baaj/balance-news/pkg/feeds"
	"github.com/Adda-Baaj/balance-news/pkg/httpclient"
	"github.com/Adda-Baaj/balance-news/pkg/publishers"
)

const (
	exitOK    = 0
	exitSetup = 1
	exitUsage = 2

	defaultEnvFile = ".env"
)

// command is one subcommand. run receives the arguments after the command name.
type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string, out, errOut io.Writer) int
}

var commands = []command{
	{name: "fetch", summary: "fetch every active source once and admit new articles", run: runFetch},
	{name: "refresh", summary: "fetch sources grouped by bias label and print the 7-day distribution", run: runRefresh},
	{name: "import-sources", summary: "import source definitions from a directory", run: runImport},
	{name: "serve", summary: "serve the read API", run: runServe},
	{name: "truncate", summary: "delete stored articles and/or sources", run: runTruncate},
}

func run(ctx context.Context, args []string, out, errOut io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		usage(errOut)
		if len(args) == 0 {
			return exitUsage
		}
		return exitOK
	}
	for _, cmd := range commands {
		if cmd.name == args[0] {
			return cmd.run(ctx, args[1:], out, errOut)
		}
	}
	fmt.Fprintf(errOut, "unknown command %q\n\n", args[0])
	usage(errOut)
	return exitUsage
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: harvester <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-16s %s\n", cmd.name, cmd.summary)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'harvester <command> --help' for the flags of a command.")
}

// globalOpts are the flags every command accepts.
type globalOpts struct {
	configFile string
	envFile    string
}

// newFlagSet returns a flag set carrying the shared config flags.
func newFlagSet(name string, errOut io.Writer) (*pflag.FlagSet, *globalOpts) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(errOut)

	envFile := os.Getenv("ENV_PATH")
	if envFile == "" {
		envFile = defaultEnvFile
	}

	o := &globalOpts{}
	fs.StringVar(&o.configFile, "config", "", "path to a YAML config file")
	fs.StringVar(&o.envFile, "env-file", envFile, "dotenv file loaded before reading HARVESTER_* variables")
	fs.String("log-level", "", "log level: debug, info, warn, error")
	fs.String("log-format", "", "log format: json or console")
	fs.String("store", "", "storage driver: memory, bolt, postgres")
	fs.String("bolt-path", "", "bolt database file")
	fs.String("postgres-dsn", "", "postgres connection string")
	fs.Int("workers", 0, "concurrent feed fetches per source")
	fs.String("publishers-file", "", "publishers YAML/JSON file")
	fs.Bool("enrich-images", false, "scrape og:image for admitted articles")
	fs.String("listen", "", "API listen address")
	return fs, o
}

// parseFlags parses args and reports the exit code to use when parsing stops the command.
func parseFlags(fs *pflag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK, false
		}
		return exitUsage, false
	}
	return exitOK, true
}

// app holds what every command needs once setup has succeeded.
type app struct {
	cfg   *config.Config
	log   logger.Logger
	store storage.Store
	sync  func() error
}

func setup(ctx context.Context, fs *pflag.FlagSet, o *globalOpts) (*app, error) {
	cfg, err := config.Load(config.LoadOptions{File: o.configFile, EnvFile: o.envFile, Flags: fs})
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, sync, err := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	st, err := factory.NewStore(ctx, cfg.Store, log)
	if err != nil {
		_ = sync()
		return nil, err
	}
	return &app{cfg: cfg, log: log, store: st, sync: sync}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.WarnObj("store close failed", "store_close_error", map[string]any{"error": err.Error()})
	}
	_ = a.sync()
}

// aggregator wires feed fetching, optional enrichment and optional event publication.
// The returned func releases publisher connections.
func (a *app) aggregator(ctx context.Context) (*ingest.Aggregator, func(), error) {
	ua := a.cfg.Fetch.UserAgent
	fetcher := feeds.NewFetcher(
		httpclient.NewRestyClient(a.cfg.Fetch.Timeout),
		a.log,
		feeds.WithUserAgent(ua),
		feeds.WithTimeout(a.cfg.Fetch.Timeout),
	)

	opts := []ingest.Option{ingest.WithWorkers(a.cfg.Fetch.Workers)}
	if a.cfg.Enrich.Images {
		scraper := crawler.NewScraper(nil, a.log,
			crawler.WithUserAgent(ua),
			crawler.WithRequestDelay(a.cfg.Enrich.Delay),
		)
		opts = append(opts, ingest.WithEnricher(scraper))
	}

	release := func() {}
	if file := a.cfg.Publishers.File; file != "" {
		d, err := publishers.Load(ctx, file, a.log)
		if err != nil {
			return nil, nil, fmt.Errorf("load publishers: %w", err)
		}
		a.log.InfoObj("publishers loaded", "publishers_loaded", map[string]any{"count": d.Len()})
		opts = append(opts, ingest.WithNotifier(d))
		release = func() {
			if err := d.Close(); err != nil {
				a.log.WarnObj("publisher close failed", "publisher_close_error", map[string]any{"error": err.Error()})
			}
		}
	}
	return ingest.NewAggregator(a.store, fetcher, a.log, opts...), release, nil
}

// fail prints a setup error and returns the setup exit code.
func fail(errOut io.Writer, err error) int {
	fmt.Fprintf(errOut, "error: %v\n", err)
	return exitSetup
}

// windowHours prefers an explicit --hours over the configured default.
func windowHours(flag int, cfg *config.Config) int {
	if flag > 0 {
		return flag
	}
	return cfg.Ingest.WindowHours
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func joinOr(items []string, def string) string {
	if len(items) == 0 {
		return def
	}
	return strings.Join(items, ", ")
}
