// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	DB      DBConfig      `mapstructure:"db"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Storage StorageConfig `mapstructure:"storage"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Extract ExtractConfig `mapstructure:"extract"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls the query service HTTP server.
type ServerConfig struct {
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN             string `mapstructure:"dsn"`
	FacilitiesTable string `mapstructure:"facilities_table"`
	MaxConns        int32  `mapstructure:"max_conns"`
	MinConns        int32  `mapstructure:"min_conns"`
}

// FetchConfig governs the retrieval sweep: pool size, timeout, backoff, and
// outbound request shaping.
type FetchConfig struct {
	MaxWorkers            int     `mapstructure:"max_workers"`
	TimeoutSeconds        int     `mapstructure:"timeout_seconds"`
	BackoffInitialSeconds int     `mapstructure:"backoff_initial_seconds"`
	BackoffMultiplier     float64 `mapstructure:"backoff_multiplier"`
	MaxAttempts           int     `mapstructure:"max_attempts"`
	UserAgent             string  `mapstructure:"user_agent"`
	HeadersFile           string  `mapstructure:"headers_file"`
	ProxyHTTP             string  `mapstructure:"proxy_http"`
	ProxyHTTPS            string  `mapstructure:"proxy_https"`
	ProxyNone             string  `mapstructure:"no_proxy"`
}

// StorageConfig selects and parameterizes the content store backend.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	BaseDir     string `mapstructure:"base_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	ContentType string `mapstructure:"content_type"`
}

// IngestConfig parameterizes delimited-file ingestion.
//
// SkipRows defaults to 1: the legacy feed carries one discardable row after
// the header. The value is configurable so the skip can be turned off once
// product confirms whether that row is a duplicated header or real data.
type IngestConfig struct {
	CSVPath   string `mapstructure:"csv_path"`
	Delimiter string `mapstructure:"delimiter"`
	SkipRows  int    `mapstructure:"skip_rows"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ExtractConfig configures the structured-extraction collaborator.
type ExtractConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAIPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("db.facilities_table", "toll_facilities")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("fetch.max_workers", 32)
	v.SetDefault("fetch.timeout_seconds", 10)
	v.SetDefault("fetch.backoff_initial_seconds", 15)
	v.SetDefault("fetch.backoff_multiplier", 2)
	v.SetDefault("fetch.max_attempts", 5)
	v.SetDefault("fetch.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36")
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.base_dir", "/pdfs")
	v.SetDefault("storage.content_type", "application/pdf")
	v.SetDefault("ingest.delimiter", "|")
	v.SetDefault("ingest.skip_rows", 1)
	v.SetDefault("extract.model", "gpt-4o-mini")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	if c.Fetch.MaxWorkers <= 0 {
		return fmt.Errorf("fetch.max_workers must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.BackoffMultiplier <= 1 {
		return fmt.Errorf("fetch.backoff_multiplier must be > 1")
	}
	if c.Fetch.MaxAttempts <= 0 {
		return fmt.Errorf("fetch.max_attempts must be > 0")
	}
	if c.Ingest.SkipRows < 0 {
		return fmt.Errorf("ingest.skip_rows must be >= 0")
	}
	if len(c.Ingest.Delimiter) != 1 {
		return fmt.Errorf("ingest.delimiter must be a single character")
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir is required for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("storage.backend must be one of local, gcs")
	}
	return nil
}

// FetchTimeout converts the HTTP timeout config into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// BackoffInitial converts the initial backoff config into a duration.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.Fetch.BackoffInitialSeconds) * time.Second
}
