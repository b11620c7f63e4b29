package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BrandonDHaskell/datavault/server/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, errs := config.Load("")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if cfg.HTTPAddr != ":8080" || cfg.Store != "sqlite" || cfg.Env != "dev" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.RelayInterval != 2*time.Second {
		t.Errorf("unexpected relay interval %v", cfg.RelayInterval)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.yaml")
	yaml := `
authority: file-admin
store: memory
db_path: /tmp/from-file.db
relay_interval: 10s
kafka_brokers:
  - k1:9092
  - k2:9092
redis_url: redis://cache:6379/0
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	t.Setenv("VAULT_AUTHORITY", "env-admin")
	t.Setenv("VAULT_CHAIN_VERIFY_INTERVAL", "30s")
	t.Setenv("VAULT_GRPC_ADDR", "")

	cfg, errs := config.Load(path)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}

	if cfg.Authority != "env-admin" {
		t.Errorf("env should override file, got authority %q", cfg.Authority)
	}
	if cfg.Store != "memory" || cfg.DBPath != "/tmp/from-file.db" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.RelayInterval != 10*time.Second || cfg.ChainVerifyInterval != 30*time.Second {
		t.Errorf("unexpected intervals: relay=%v verify=%v", cfg.RelayInterval, cfg.ChainVerifyInterval)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers: %v", cfg.KafkaBrokers)
	}
	if cfg.GRPCAddr != "" {
		t.Errorf("explicit empty VAULT_GRPC_ADDR should disable grpc, got %q", cfg.GRPCAddr)
	}
}

func TestLoad_EnvBrokersCSV(t *testing.T) {
	t.Setenv("VAULT_KAFKA_BROKERS", " a:1, ,b:2 ")
	cfg, _ := config.Load("")
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "a:1" || cfg.KafkaBrokers[1] != "b:2" {
		t.Errorf("unexpected brokers: %v", cfg.KafkaBrokers)
	}
}

func TestLoad_ReportsMalformedValues(t *testing.T) {
	t.Setenv("VAULT_RELAY_INTERVAL", "soon")
	t.Setenv("VAULT_REDIS_STREAM_MAX", "-3")

	_, errs := config.Load("")
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, errs := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if len(errs) != 1 {
		t.Fatalf("expected 1 error, got %v", errs)
	}
}

func TestValidate(t *testing.T) {
	cfg, _ := config.Load("")

	errs := cfg.Validate()
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "authority") {
		t.Fatalf("expected only the missing authority, got %v", errs)
	}

	cfg.Authority = "admin"
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("expected valid config, got %v", errs)
	}

	cfg.Store = "postgres"
	cfg.Env = "staging"
	if errs := cfg.Validate(); len(errs) != 2 {
		t.Errorf("expected 2 errors, got %v", errs)
	}

	cfg.Store = "sqlite"
	cfg.Env = "dev"
	cfg.LogLevel = "chatty"
	if errs := cfg.Validate(); len(errs) != 1 {
		t.Errorf("expected log level error, got %v", errs)
	}
	if cfg.SlogLevel() != slog.LevelInfo {
		t.Errorf("unparseable level should fall back to info")
	}
	cfg.LogLevel = "debug"
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Errorf("expected debug level")
	}

	cfg.Store = "memory"
	cfg.Env = "prod"
	if errs := cfg.Validate(); len(errs) != 1 {
		t.Errorf("expected memory-in-prod error, got %v", errs)
	}
}
