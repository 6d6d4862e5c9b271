// Package config loads runtime configuration from environment variables,
// optionally layered over a config file named by CONFIG_FILE. Environment
// variables win over the file, and the file wins over defaults.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the brokerage ledger.
type Config struct {
	Port     int
	LogLevel string

	// DatabaseURL selects the Postgres store; empty means in-memory.
	DatabaseURL string
	LockTimeout time.Duration

	SettlementWindow       time.Duration
	DeferredExecutionDelay time.Duration
	DeferredSweepInterval  time.Duration
	DeferredSweepBatch     int

	// RedisAddr enables the book depth cache when set.
	RedisAddr    string
	BookCacheTTL time.Duration

	// KafkaBrokers enables event publishing when non-empty.
	KafkaBrokers []string
	KafkaTopic   string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

var defaults = map[string]string{
	"PORT":                     "8080",
	"LOG_LEVEL":                "info",
	"DATABASE_URL":             "",
	"LOCK_TIMEOUT":             "5s",
	"SETTLEMENT_WINDOW":        "72h",
	"DEFERRED_EXECUTION_DELAY": "72h",
	"DEFERRED_SWEEP_INTERVAL":  "1m",
	"DEFERRED_SWEEP_BATCH":     "100",
	"REDIS_ADDR":               "",
	"BOOK_CACHE_TTL":           "30s",
	"KAFKA_BROKERS":            "",
	"KAFKA_TOPIC":              "ledger-events",
	"READ_TIMEOUT":             "5s",
	"WRITE_TIMEOUT":            "10s",
	"IDLE_TIMEOUT":             "60s",
	"SHUTDOWN_TIMEOUT":         "10s",
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. It returns an error for any invalid value.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}

	if path := v.GetString("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	p := parser{v: v}
	cfg := &Config{
		Port:                   p.getInt("PORT"),
		LogLevel:               v.GetString("LOG_LEVEL"),
		DatabaseURL:            v.GetString("DATABASE_URL"),
		LockTimeout:            p.getDuration("LOCK_TIMEOUT"),
		SettlementWindow:       p.getPositiveDuration("SETTLEMENT_WINDOW"),
		DeferredExecutionDelay: p.getPositiveDuration("DEFERRED_EXECUTION_DELAY"),
		DeferredSweepInterval:  p.getPositiveDuration("DEFERRED_SWEEP_INTERVAL"),
		DeferredSweepBatch:     p.getInt("DEFERRED_SWEEP_BATCH"),
		RedisAddr:              v.GetString("REDIS_ADDR"),
		BookCacheTTL:           p.getDuration("BOOK_CACHE_TTL"),
		KafkaBrokers:           splitList(v.GetString("KAFKA_BROKERS")),
		KafkaTopic:             strings.TrimSpace(v.GetString("KAFKA_TOPIC")),
		ReadTimeout:            p.getDuration("READ_TIMEOUT"),
		WriteTimeout:           p.getDuration("WRITE_TIMEOUT"),
		IdleTimeout:            p.getDuration("IDLE_TIMEOUT"),
		ShutdownTimeout:        p.getDuration("SHUTDOWN_TIMEOUT"),
	}
	if p.err != nil {
		return nil, p.err
	}

	if !isValidLogLevel(cfg.LogLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", cfg.LogLevel)
	}
	if cfg.DeferredSweepBatch <= 0 {
		return nil, fmt.Errorf("invalid DEFERRED_SWEEP_BATCH: %d, must be positive", cfg.DeferredSweepBatch)
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("invalid KAFKA_TOPIC: required when KAFKA_BROKERS is set")
	}
	return cfg, nil
}

// parser converts viper values and keeps the first error it hits.
type parser struct {
	v   *viper.Viper
	err error
}

func (p *parser) getInt(key string) int {
	if p.err != nil {
		return 0
	}
	n, err := strconv.Atoi(p.v.GetString(key))
	if err != nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return n
}

func (p *parser) getDuration(key string) time.Duration {
	if p.err != nil {
		return 0
	}
	d, err := time.ParseDuration(p.v.GetString(key))
	if err != nil {
		p.err = fmt.Errorf("invalid %s: %w", key, err)
	}
	return d
}

func (p *parser) getPositiveDuration(key string) time.Duration {
	d := p.getDuration(key)
	if p.err == nil && d <= 0 {
		p.err = fmt.Errorf("invalid %s: %s, must be positive", key, d)
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
