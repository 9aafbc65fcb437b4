package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"chartengine/internal/model"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.DefaultSymbol != "BTCUSD" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.BrokerEnabled() {
		t.Fatal("broker should be disabled without credentials")
	}
}

func TestYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chartd.yaml")
	data := []byte("http_addr: \":9999\"\ndefault_symbol: ETHUSD\ntimeframes: [\"1m\", \"1h\"]\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != ":9999" || cfg.DefaultSymbol != "ETHUSD" {
		t.Fatalf("yaml not applied: %+v", cfg)
	}
	tfs := cfg.ParseTimeframes(nil)
	if len(tfs) != 2 || tfs[1] != model.Timeframe(time.Hour) {
		t.Fatalf("timeframes = %v", tfs)
	}
}

func TestEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chartd.yaml")
	if err := os.WriteFile(path, []byte("redis_addr: \"file:6379\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("REDIS_ADDR", "env:6379")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RedisAddr != "env:6379" {
		t.Fatalf("env override lost: %s", cfg.RedisAddr)
	}
}

func TestInvalidDefaultTimeframeRejected(t *testing.T) {
	t.Setenv("DEFAULT_TIMEFRAME", "7x")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for bad default timeframe")
	}
}

func TestInvalidListEntrySkipped(t *testing.T) {
	t.Setenv("TIMEFRAMES", "1m, bogus ,5m")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	tfs := cfg.ParseTimeframes(nil)
	if len(tfs) != 2 {
		t.Fatalf("timeframes = %v, want 2 valid entries", tfs)
	}
}
