// Package config loads server settings: built-in defaults, then an optional
// YAML file, then VAULT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// FileEnvVar names the environment variable holding the YAML config path.
const FileEnvVar = "VAULT_CONFIG_FILE"

type Config struct {
	HTTPAddr string `koanf:"http_addr"`
	GRPCAddr string `koanf:"grpc_addr"` // empty disables gRPC

	Env      string `koanf:"env"`   // "dev" | "prod"
	Store    string `koanf:"store"` // "sqlite" | "memory"
	LogLevel string `koanf:"log_level"`

	// DB
	DBPath string `koanf:"db_path"`

	// Authority is the only principal allowed to run privileged operations.
	Authority string `koanf:"authority"`
	// JWTSecret enables HS256 bearer auth.  Empty means the principal header
	// is trusted.
	JWTSecret string `koanf:"jwt_secret"`

	RelayInterval       time.Duration `koanf:"relay_interval"`
	ChainVerifyInterval time.Duration `koanf:"chain_verify_interval"` // 0 = off

	KafkaBrokers []string `koanf:"kafka_brokers"`
	KafkaTopic   string   `koanf:"kafka_topic"`

	RedisURL       string `koanf:"redis_url"`
	RedisStream    string `koanf:"redis_stream"`
	RedisStreamMax int64  `koanf:"redis_stream_max"`
}

func defaults() Config {
	return Config{
		HTTPAddr:            ":8080",
		GRPCAddr:            ":9090",
		Env:                 "dev",
		Store:               "sqlite",
		LogLevel:            "info",
		DBPath:              "./data/datavault.db",
		RelayInterval:       2 * time.Second,
		ChainVerifyInterval: 5 * time.Minute,
		KafkaTopic:          "datavault.ledger.events",
		RedisStream:         "datavault:ledger:events",
		RedisStreamMax:      100000,
	}
}

// Load builds the configuration.  The file at path, if non-empty, overrides
// defaults; environment variables override both.  All malformed values are
// reported together.
func Load(path string) (Config, []error) {
	cfg := defaults()
	var errs []error

	if path != "" {
		k := koanf.New(".")
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return cfg, []error{fmt.Errorf("load config file %s: %w", path, err)}
		}
		if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
			return cfg, []error{fmt.Errorf("parse config file %s: %w", path, err)}
		}
	}

	cfg.HTTPAddr = getenvDefault("VAULT_HTTP_ADDR", cfg.HTTPAddr)
	if v, ok := os.LookupEnv("VAULT_GRPC_ADDR"); ok {
		cfg.GRPCAddr = strings.TrimSpace(v)
	}
	cfg.Env = strings.ToLower(getenvDefault("VAULT_ENV", cfg.Env))
	cfg.Store = strings.ToLower(getenvDefault("VAULT_STORE", cfg.Store))
	cfg.LogLevel = strings.ToLower(getenvDefault("VAULT_LOG_LEVEL", cfg.LogLevel))
	cfg.DBPath = getenvDefault("VAULT_DB_PATH", cfg.DBPath)
	cfg.Authority = strings.TrimSpace(getenvDefault("VAULT_AUTHORITY", cfg.Authority))
	cfg.JWTSecret = getenvDefault("VAULT_JWT_SECRET", cfg.JWTSecret)

	var err error
	if cfg.RelayInterval, err = getenvDuration("VAULT_RELAY_INTERVAL", cfg.RelayInterval); err != nil {
		errs = append(errs, err)
	}
	if cfg.ChainVerifyInterval, err = getenvDuration("VAULT_CHAIN_VERIFY_INTERVAL", cfg.ChainVerifyInterval); err != nil {
		errs = append(errs, err)
	}

	if v := splitCSV(os.Getenv("VAULT_KAFKA_BROKERS")); v != nil {
		cfg.KafkaBrokers = v
	}
	cfg.KafkaTopic = getenvDefault("VAULT_KAFKA_TOPIC", cfg.KafkaTopic)

	cfg.RedisURL = getenvDefault("VAULT_REDIS_URL", cfg.RedisURL)
	cfg.RedisStream = getenvDefault("VAULT_REDIS_STREAM", cfg.RedisStream)
	if cfg.RedisStreamMax, err = getenvInt64("VAULT_REDIS_STREAM_MAX", cfg.RedisStreamMax); err != nil {
		errs = append(errs, err)
	}

	return cfg, errs
}

// SlogLevel returns the configured level, or info if it does not parse.
func (c Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Validate reports every problem that would keep the server from starting.
func (c Config) Validate() []error {
	var errs []error
	if c.Authority == "" {
		errs = append(errs, errors.New("authority is required (VAULT_AUTHORITY)"))
	}
	if c.Env != "dev" && c.Env != "prod" {
		errs = append(errs, fmt.Errorf("env must be dev or prod, got %q", c.Env))
	}
	switch c.Store {
	case "sqlite":
		if c.DBPath == "" {
			errs = append(errs, errors.New("db_path is required for the sqlite store"))
		}
	case "memory":
		if c.Env == "prod" {
			errs = append(errs, errors.New("memory store is not allowed in prod"))
		}
	default:
		errs = append(errs, fmt.Errorf("store must be sqlite or memory, got %q", c.Store))
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errs = append(errs, errors.New("kafka_topic is required when kafka_brokers is set"))
	}
	if c.RedisURL != "" && c.RedisStream == "" {
		errs = append(errs, errors.New("redis_stream is required when redis_url is set"))
	}
	if c.RelayInterval <= 0 {
		errs = append(errs, errors.New("relay_interval must be positive"))
	}
	if c.ChainVerifyInterval < 0 {
		errs = append(errs, errors.New("chain_verify_interval must not be negative"))
	}
	return errs
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt64(key string, def int64) (int64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return def, fmt.Errorf("%s: invalid non-negative integer %q", key, v)
	}
	return n, nil
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
