package config

import (
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DEBT_CACHE_TTL_SECONDS", "IDLE_LOCK_MINUTES", "LOW_STOCK_SCAN_SPEC", "MDNS_ANNOUNCE", "SQLITE_PATH"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Address() != ":8080" {
		t.Fatalf("expected :8080, got %q", cfg.Address())
	}
	if cfg.DebtCacheTTLSeconds != 300 {
		t.Fatalf("expected 300s debt cache ttl, got %d", cfg.DebtCacheTTLSeconds)
	}
	if cfg.IdleLockTimeout() != 3*time.Minute {
		t.Fatalf("expected 3m idle lock, got %s", cfg.IdleLockTimeout())
	}
	if cfg.LowStockScanSpec != "@every 5m" || cfg.MDNSAnnounce || cfg.SQLitePath != "" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestIdleLockCanBeDisabled(t *testing.T) {
	t.Setenv("IDLE_LOCK_MINUTES", "0")
	if got := Load().IdleLockTimeout(); got != 0 {
		t.Fatalf("expected disabled idle lock, got %s", got)
	}

	t.Setenv("IDLE_LOCK_MINUTES", "-4")
	if got := Load().IdleLockTimeout(); got != 3*time.Minute {
		t.Fatalf("negative value should keep the default, got %s", got)
	}
}

func TestInvalidNumbersFallBack(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "abc")
	t.Setenv("PRINTER_BROWSE_SECONDS", "0")

	cfg := Load()
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected 480, got %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.PrinterBrowseSeconds != 3 {
		t.Fatalf("expected 3, got %d", cfg.PrinterBrowseSeconds)
	}
}

func TestLocation(t *testing.T) {
	if loc, err := (Config{StoreTimezone: "UTC"}).Location(); err != nil || loc != time.UTC {
		t.Fatalf("expected UTC, got %v, %v", loc, err)
	}
	loc, err := (Config{StoreTimezone: "Nowhere/Atlantis"}).Location()
	if err == nil {
		t.Fatalf("expected error for unknown zone")
	}
	if loc != time.UTC {
		t.Fatalf("unknown zone should fall back to UTC")
	}
}
