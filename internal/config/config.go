package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"HV_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"HV_DB_MAX_CONNS" default:"8"`

	CategoryTarget   int           `envconfig:"HV_CATEGORY_TARGET" default:"10"`
	InitialBatchSize int           `envconfig:"HV_INITIAL_BATCH" default:"10"`
	BackfillRounds   int           `envconfig:"HV_BACKFILL_ROUNDS" default:"2"`
	RunDeadline      time.Duration `envconfig:"HV_RUN_DEADLINE" default:"0"`

	TranslateConcurrency int           `envconfig:"HV_TRANSLATE_CONCURRENCY" default:"5"`
	TranslateRetries     int           `envconfig:"HV_TRANSLATE_RETRIES" default:"3"`
	TranslateBaseDelay   time.Duration `envconfig:"HV_TRANSLATE_BASE_DELAY" default:"500ms"`

	PersistChunkSize   int `envconfig:"HV_PERSIST_CHUNK" default:"10"`
	PersistConcurrency int `envconfig:"HV_PERSIST_CONCURRENCY" default:"10"`

	DedupWindowDays int     `envconfig:"HV_DEDUP_WINDOW_DAYS" default:"7"`
	DedupThreshold  float64 `envconfig:"HV_DEDUP_THRESHOLD" default:"0.85"`

	TranslationProvider string `envconfig:"TRANSLATION_PROVIDER" default:"local"`
	TranslationEndpoint string `envconfig:"TRANSLATION_ENDPOINT" default:""`
	TranslationModel    string `envconfig:"TRANSLATION_MODEL" default:""`

	GenerativeEndpoint string `envconfig:"HV_GENERATIVE_ENDPOINT" default:""`
	GenerativeModel    string `envconfig:"HV_GENERATIVE_MODEL" default:""`

	SearchAPIBaseURL  string `envconfig:"HV_SEARCH_API_BASE_URL" default:""`
	SearchAPIClientID string `envconfig:"HV_SEARCH_API_CLIENT_ID" default:""`
	SearchAPISecret   string `envconfig:"HV_SEARCH_API_SECRET" default:""`

	RegionalAPIBaseURL string `envconfig:"HV_REGIONAL_API_BASE_URL" default:""`
	RegionalAPIKey     string `envconfig:"HV_REGIONAL_API_KEY" default:""`

	// Comma-separated "category=url" pairs, for example
	// "domestic=https://example.com/rss,foreign=https://example.org/world.xml".
	RSSFeeds string `envconfig:"HV_RSS_FEEDS" default:""`

	ServeHost string `envconfig:"HV_SERVE_HOST" default:"127.0.0.1"`
	ServePort int    `envconfig:"HV_SERVE_PORT" default:"8090"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("HV_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("HV_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("HV_DB_MIN_CONNS (%d) cannot exceed HV_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.CategoryTarget < 1 {
		return fmt.Errorf("HV_CATEGORY_TARGET must be >= 1")
	}
	if c.InitialBatchSize < 1 {
		return fmt.Errorf("HV_INITIAL_BATCH must be >= 1")
	}
	if c.BackfillRounds < 0 {
		return fmt.Errorf("HV_BACKFILL_ROUNDS must be >= 0")
	}
	if c.TranslateConcurrency < 1 {
		return fmt.Errorf("HV_TRANSLATE_CONCURRENCY must be >= 1")
	}
	if c.TranslateRetries < 0 {
		return fmt.Errorf("HV_TRANSLATE_RETRIES must be >= 0")
	}
	if c.PersistChunkSize < 1 {
		return fmt.Errorf("HV_PERSIST_CHUNK must be >= 1")
	}
	if c.PersistConcurrency < 1 {
		return fmt.Errorf("HV_PERSIST_CONCURRENCY must be >= 1")
	}
	if c.DedupWindowDays < 1 {
		return fmt.Errorf("HV_DEDUP_WINDOW_DAYS must be >= 1")
	}
	if c.DedupThreshold <= 0 || c.DedupThreshold > 1 {
		return fmt.Errorf("HV_DEDUP_THRESHOLD must be in (0, 1]")
	}
	if c.ServePort < 1 || c.ServePort > 65535 {
		return fmt.Errorf("HV_SERVE_PORT must be a valid TCP port")
	}
	return nil
}

// RSSFeedMap parses HV_RSS_FEEDS into per-category feed URLs. Malformed
// pairs are dropped; category names are validated by the RSS adapter.
func (c *Config) RSSFeedMap() map[string][]string {
	if c == nil {
		return nil
	}

	feeds := make(map[string][]string)
	for _, pair := range strings.Split(c.RSSFeeds, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		category, rawURL, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		category = strings.ToLower(strings.TrimSpace(category))
		rawURL = strings.TrimSpace(rawURL)
		if category == "" || rawURL == "" {
			continue
		}
		feeds[category] = append(feeds[category], rawURL)
	}
	return feeds
}
