package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{
		"DB_DRIVER", "SESSIONS_CACHE_TTL_SECONDS", "MESSAGES_CACHE_TTL_SECONDS",
		"DEFAULT_PAGE_SIZE", "MAX_PAGE_SIZE", "EXPORT_FORMAT",
	} {
		t.Setenv(k, "")
	}

	cfg := Load()

	if cfg.DBDriver != "sqlite" {
		t.Fatalf("expected sqlite default driver, got %q", cfg.DBDriver)
	}
	if cfg.SessionsCacheTTL != 300*time.Second {
		t.Fatalf("expected 300s sessions TTL, got %s", cfg.SessionsCacheTTL)
	}
	if cfg.MessagesCacheTTL != 60*time.Second {
		t.Fatalf("expected 60s messages TTL, got %s", cfg.MessagesCacheTTL)
	}
	if cfg.DefaultPageSize != 50 || cfg.MaxPageSize != 200 {
		t.Fatalf("unexpected page size bounds: %d/%d", cfg.DefaultPageSize, cfg.MaxPageSize)
	}
	if cfg.ExportFormat != "json" {
		t.Fatalf("expected json default export format, got %q", cfg.ExportFormat)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")
	t.Setenv("MESSAGES_CACHE_TTL_SECONDS", "5")
	t.Setenv("DEFAULT_PAGE_SIZE", "25")

	cfg := Load()
	if cfg.DBDriver != "mysql" {
		t.Fatalf("expected mysql, got %q", cfg.DBDriver)
	}
	if cfg.MessagesCacheTTL != 5*time.Second {
		t.Fatalf("expected 5s TTL, got %s", cfg.MessagesCacheTTL)
	}
	if cfg.DefaultPageSize != 25 {
		t.Fatalf("expected page size 25, got %d", cfg.DefaultPageSize)
	}
}
