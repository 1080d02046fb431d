// Package config loads harvester settings from defaults, an optional YAML file, a .env file,
// HARVESTER_* environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. HARVESTER_STORE_DRIVER.
const EnvPrefix = "HARVESTER"

// Configuration validation errors.
var (
	ErrInvalidLogLevel     = errors.New("log.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat    = errors.New("log.format must be 'json' or 'console'")
	ErrInvalidDriver       = errors.New("store.driver must be one of: memory, bolt, postgres")
	ErrMissingBoltPath     = errors.New("store.bolt_path is required for the bolt driver")
	ErrMissingPostgresDSN  = errors.New("store.postgres_dsn is required for the postgres driver")
	ErrInvalidMaxConns     = errors.New("store.postgres_max_conns must be non-negative")
	ErrInvalidFetchTimeout = errors.New("fetch.timeout must be between 1s and 30s")
	ErrInvalidWorkers      = errors.New("fetch.workers must be at least 1")
	ErrInvalidWindow       = errors.New("ingest.window_hours must be at least 1")
	ErrInvalidEnrichDelay  = errors.New("enrich.delay must be non-negative")
	ErrMissingListen       = errors.New("api.listen is required")
)

// Config is the complete harvester configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	Store      StoreConfig      `mapstructure:"store"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Publishers PublishersConfig `mapstructure:"publishers"`
	Sources    SourcesConfig    `mapstructure:"sources"`
	Enrich     EnrichConfig     `mapstructure:"enrich"`
	API        APIConfig        `mapstructure:"api"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// StoreConfig selects and configures the storage backend.
type StoreConfig struct {
	Driver           string `mapstructure:"driver"`
	BoltPath         string `mapstructure:"bolt_path"`
	PostgresDSN      string `mapstructure:"postgres_dsn"`
	PostgresMaxConns int32  `mapstructure:"postgres_max_conns"`
}

// FetchConfig controls feed retrieval.
type FetchConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
	Workers   int           `mapstructure:"workers"`
}

// IngestConfig holds admission defaults.
type IngestConfig struct {
	WindowHours int `mapstructure:"window_hours"`
}

// PublishersConfig points at the optional publishers file.
type PublishersConfig struct {
	File string `mapstructure:"file"`
}

// SourcesConfig points at the source definitions directory.
type SourcesConfig struct {
	Dir string `mapstructure:"dir"`
}

// EnrichConfig toggles page metadata scraping for admitted articles.
type EnrichConfig struct {
	Images bool          `mapstructure:"images"`
	Delay  time.Duration `mapstructure:"delay"`
}

// APIConfig configures the read API.
type APIConfig struct {
	Listen string `mapstructure:"listen"`
}

var defaults = map[string]any{
	"log.level":                "info",
	"log.format":               "json",
	"store.driver":             "bolt",
	"store.bolt_path":          "data/harvester.db",
	"store.postgres_dsn":       "",
	"store.postgres_max_conns": 0,
	"fetch.timeout":            "4s",
	"fetch.user_agent":         "Mozilla/5.0 (compatible; BalanceNews/1.0)",
	"fetch.workers":            4,
	"ingest.window_hours":      24,
	"publishers.file":          "",
	"sources.dir":              "sources",
	"enrich.images":            false,
	"enrich.delay":             "0s",
	"api.listen":               ":8080",
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"log-level":       "log.level",
	"log-format":      "log.format",
	"store":           "store.driver",
	"bolt-path":       "store.bolt_path",
	"postgres-dsn":    "store.postgres_dsn",
	"workers":         "fetch.workers",
	"publishers-file": "publishers.file",
	"enrich-images":   "enrich.images",
	"listen":          "api.listen",
}

// LoadOptions tells Load where to look.
type LoadOptions struct {
	// File is an optional YAML config file. A missing file is an error when set.
	File string
	// EnvFile is an optional dotenv file. A missing file is ignored.
	EnvFile string
	// Flags, when set, overrides keys for every flag in flagKeys that was changed.
	Flags *pflag.FlagSet
}

// Load resolves and validates the configuration.
func Load(opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", opts.EnvFile, err)
		}
	}

	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", opts.File, err)
		}
	}

	if opts.Flags != nil {
		for name, key := range flagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	c.Store.BoltPath = strings.TrimSpace(c.Store.BoltPath)
	c.Store.PostgresDSN = strings.TrimSpace(c.Store.PostgresDSN)
	c.Fetch.UserAgent = strings.TrimSpace(c.Fetch.UserAgent)
	c.Publishers.File = strings.TrimSpace(c.Publishers.File)
	c.Sources.Dir = strings.TrimSpace(c.Sources.Dir)
	c.API.Listen = strings.TrimSpace(c.API.Listen)
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return ErrInvalidLogLevel
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return ErrInvalidLogFormat
	}

	switch c.Store.Driver {
	case "memory":
	case "bolt":
		if c.Store.BoltPath == "" {
			return ErrMissingBoltPath
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return ErrMissingPostgresDSN
		}
		if c.Store.PostgresMaxConns < 0 {
			return ErrInvalidMaxConns
		}
	default:
		return ErrInvalidDriver
	}

	if c.Fetch.Timeout < time.Second || c.Fetch.Timeout > 30*time.Second {
		return ErrInvalidFetchTimeout
	}
	if c.Fetch.Workers < 1 {
		return ErrInvalidWorkers
	}
	if c.Ingest.WindowHours < 1 {
		return ErrInvalidWindow
	}
	if c.Enrich.Delay < 0 {
		return ErrInvalidEnrichDelay
	}
	if c.API.Listen == "" {
		return ErrMissingListen
	}
	return nil
}
