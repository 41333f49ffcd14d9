package config

import (
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DUST_POLICY", "burn")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AppEnv != "development" || cfg.Port != "8080" || cfg.LogFormat != "json" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.ShutdownPeriod != 10*time.Second || cfg.IdempotencyTTL != 24*time.Hour {
		t.Fatalf("unexpected durations %+v", cfg)
	}
	if cfg.BlockInterval != 0 || !cfg.MetricsEnabled {
		t.Fatalf("unexpected block/metrics defaults %+v", cfg)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}

func TestLoadRequiresDustPolicy(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	if _, err := Load(); err == nil {
		t.Fatal("expected missing DUST_POLICY to fail")
	}
}

func TestLoadTreasuryNeedsAccount(t *testing.T) {
	setRequired(t)
	t.Setenv("DUST_POLICY", "Treasury")
	if _, err := Load(); err == nil {
		t.Fatal("expected treasury without account to fail")
	}

	t.Setenv("TREASURY_ACCOUNT", "42")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DustPolicy != "treasury" || cfg.TreasuryAccount == nil || *cfg.TreasuryAccount != 42 {
		t.Fatalf("unexpected treasury config %+v", cfg)
	}
}

func TestLoadProductionRequiresBackends(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_ENV", "production")
	if _, err := Load(); err == nil {
		t.Fatal("expected missing DATABASE_URL to fail outside development")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/ledger")
	if _, err := Load(); err == nil {
		t.Fatal("expected missing REDIS_URL to fail outside development")
	}

	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	if _, err := Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	setRequired(t)
	t.Setenv("LOG_FORMAT", "xml")
	if _, err := Load(); err == nil {
		t.Fatal("expected bad LOG_FORMAT to fail")
	}

	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("BLOCK_INTERVAL", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("expected unparsable BLOCK_INTERVAL to fail")
	}
}
