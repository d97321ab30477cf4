package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
bundle:
  max_parallel: 4
  queue_depth: 128
  workers: 3
  user_agent: test-agent
  archive_name: site.zip
  retain_staging: true
http:
  timeout_seconds: 45
headless:
  enabled: true
  max_parallel: 2
  nav_timeout_seconds: 30
  domain_qps: 1.5
storage:
  provider: local
  base_dir: /tmp/bundles
  prefix: archives
logging:
  development: false
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Bundle.MaxParallel != 4 || cfg.Bundle.Workers != 3 {
		t.Fatalf("expected bundle overrides to apply: %+v", cfg.Bundle)
	}
	if cfg.Bundle.ArchiveName != "site.zip" || !cfg.Bundle.RetainStaging {
		t.Fatalf("expected archive overrides to apply: %+v", cfg.Bundle)
	}
	if cfg.Storage.Provider != "local" || cfg.Storage.BaseDir != "/tmp/bundles" {
		t.Fatalf("expected storage overrides to apply: %+v", cfg.Storage)
	}
	if cfg.Logging.Development {
		t.Fatalf("expected logging.development to be false")
	}
	if got := cfg.FetchTimeout(); got != 45*time.Second {
		t.Fatalf("expected fetch timeout 45s, got %v", got)
	}
	if got := cfg.NavTimeout(); got != 30*time.Second {
		t.Fatalf("expected nav timeout 30s, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Bundle.MaxParallel != 8 || cfg.Bundle.QueueDepth != 64 {
		t.Fatalf("expected bundle defaults, got %+v", cfg.Bundle)
	}
	if cfg.Bundle.ArchiveName != "landing-page.zip" {
		t.Fatalf("expected default archive name, got %q", cfg.Bundle.ArchiveName)
	}
	if cfg.Storage.Provider != "noop" || cfg.Storage.Prefix != "bundles" {
		t.Fatalf("expected storage defaults, got %+v", cfg.Storage)
	}
	if cfg.Headless.Enabled {
		t.Fatalf("expected headless disabled by default")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"zero parallelism", func(c *Config) { c.Bundle.MaxParallel = 0 }},
		{"zero workers", func(c *Config) { c.Bundle.Workers = 0 }},
		{"zero timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }},
		{"auth without key", func(c *Config) { c.Auth.Enabled = true }},
		{"unknown storage", func(c *Config) { c.Storage.Provider = "s3" }},
		{"gcs without bucket", func(c *Config) { c.Storage.Provider = "gcs" }},
		{"db without dsn", func(c *Config) { c.DB.Enabled = true }},
		{"pubsub without topic", func(c *Config) { c.PubSub.Enabled = true }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
