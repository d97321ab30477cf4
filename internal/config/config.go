// Package config loads and validates bundler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Bundle   BundleConfig   `mapstructure:"bundle"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// BundleConfig governs the asset download and repackaging pipeline.
type BundleConfig struct {
	MaxParallel   int    `mapstructure:"max_parallel"`
	QueueDepth    int    `mapstructure:"queue_depth"`
	Workers       int    `mapstructure:"workers"`
	UserAgent     string `mapstructure:"user_agent"`
	ArchiveName   string `mapstructure:"archive_name"`
	StagingDir    string `mapstructure:"staging_dir"`
	RetainStaging bool   `mapstructure:"retain_staging"`
}

// HTTPConfig configures the asset HTTP client.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	MaxParallel   int     `mapstructure:"max_parallel"`
	NavTimeoutSec int     `mapstructure:"nav_timeout_seconds"`
	DomainQPS     float64 `mapstructure:"domain_qps"`
}

// StorageConfig selects the archive retention backend.
type StorageConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	BaseDir   string `mapstructure:"base_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls the Postgres-backed task store.
type DBConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DSN     string `mapstructure:"dsn"`
}

// PubSubConfig holds metadata for completion event publishing.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BUNDLER")
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("bundle.max_parallel", 8)
	v.SetDefault("bundle.queue_depth", 64)
	v.SetDefault("bundle.workers", 2)
	v.SetDefault("bundle.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("bundle.archive_name", "landing-page.zip")
	v.SetDefault("bundle.staging_dir", "")
	v.SetDefault("bundle.retain_staging", false)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.domain_qps", 0)
	v.SetDefault("storage.provider", "noop")
	v.SetDefault("storage.prefix", "bundles")
	v.SetDefault("db.enabled", false)
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Bundle.MaxParallel <= 0 {
		return fmt.Errorf("bundle.max_parallel must be > 0")
	}
	if c.Bundle.Workers <= 0 {
		return fmt.Errorf("bundle.workers must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	switch c.Storage.Provider {
	case "noop", "memory", "gcs", "local":
	default:
		return fmt.Errorf("unknown storage provider: %s", c.Storage.Provider)
	}
	if c.Storage.Provider == "gcs" && c.Storage.GCSBucket == "" {
		return fmt.Errorf("storage.gcs_bucket must be set for the gcs provider")
	}
	if c.Storage.Provider == "local" && c.Storage.BaseDir == "" {
		return fmt.Errorf("storage.base_dir must be set for the local provider")
	}
	if c.DB.Enabled && c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set when db is enabled")
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	return nil
}

// FetchTimeout converts the HTTP timeout config into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// NavTimeout converts the headless navigation timeout into a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Headless.NavTimeoutSec) * time.Second
}
