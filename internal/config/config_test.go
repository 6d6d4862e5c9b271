package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range append([]string{"CONFIG_FILE"}, allEnvKeys...) {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %q, want empty (in-memory)", cfg.DatabaseURL)
	}
	if cfg.LockTimeout != 5*time.Second {
		t.Errorf("LockTimeout = %v, want 5s", cfg.LockTimeout)
	}
	if cfg.SettlementWindow != 72*time.Hour {
		t.Errorf("SettlementWindow = %v, want 72h", cfg.SettlementWindow)
	}
	if cfg.DeferredExecutionDelay != 72*time.Hour {
		t.Errorf("DeferredExecutionDelay = %v, want 72h", cfg.DeferredExecutionDelay)
	}
	if cfg.DeferredSweepInterval != time.Minute {
		t.Errorf("DeferredSweepInterval = %v, want 1m", cfg.DeferredSweepInterval)
	}
	if cfg.DeferredSweepBatch != 100 {
		t.Errorf("DeferredSweepBatch = %d, want 100", cfg.DeferredSweepBatch)
	}
	if cfg.RedisAddr != "" || cfg.BookCacheTTL != 30*time.Second {
		t.Errorf("redis = %q/%v, want disabled/30s", cfg.RedisAddr, cfg.BookCacheTTL)
	}
	if len(cfg.KafkaBrokers) != 0 || cfg.KafkaTopic != "ledger-events" {
		t.Errorf("kafka = %v/%q, want disabled/ledger-events", cfg.KafkaBrokers, cfg.KafkaTopic)
	}
	if cfg.ReadTimeout != 5*time.Second {
		t.Errorf("ReadTimeout = %v, want 5s", cfg.ReadTimeout)
	}
	if cfg.WriteTimeout != 10*time.Second {
		t.Errorf("WriteTimeout = %v, want 10s", cfg.WriteTimeout)
	}
	if cfg.IdleTimeout != 60*time.Second {
		t.Errorf("IdleTimeout = %v, want 60s", cfg.IdleTimeout)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 10s", cfg.ShutdownTimeout)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://ledger@localhost/ledger")
	t.Setenv("SETTLEMENT_WINDOW", "1h")
	t.Setenv("DEFERRED_EXECUTION_DELAY", "30m")
	t.Setenv("DEFERRED_SWEEP_BATCH", "25")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("KAFKA_TOPIC", "ledger")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.DatabaseURL != "postgres://ledger@localhost/ledger" {
		t.Errorf("DatabaseURL = %q", cfg.DatabaseURL)
	}
	if cfg.SettlementWindow != time.Hour {
		t.Errorf("SettlementWindow = %v, want 1h", cfg.SettlementWindow)
	}
	if cfg.DeferredExecutionDelay != 30*time.Minute {
		t.Errorf("DeferredExecutionDelay = %v, want 30m", cfg.DeferredExecutionDelay)
	}
	if cfg.DeferredSweepBatch != 25 {
		t.Errorf("DeferredSweepBatch = %d, want 25", cfg.DeferredSweepBatch)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr)
	}
	if want := []string{"k1:9092", "k2:9092"}; !slices.Equal(cfg.KafkaBrokers, want) {
		t.Errorf("KafkaBrokers = %v, want %v", cfg.KafkaBrokers, want)
	}
	if cfg.KafkaTopic != "ledger" {
		t.Errorf("KafkaTopic = %q, want ledger", cfg.KafkaTopic)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	content := "port: 7070\nsettlement_window: 24h\nlog_level: warn\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LOG_LEVEL", "error")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 7070 {
		t.Errorf("Port = %d, want 7070 from file", cfg.Port)
	}
	if cfg.SettlementWindow != 24*time.Hour {
		t.Errorf("SettlementWindow = %v, want 24h from file", cfg.SettlementWindow)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q, env must win over the file", cfg.LogLevel)
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	if _, err := Load(); err == nil {
		t.Fatal("expected error for a missing CONFIG_FILE")
	}
}

func TestLoad_InvalidPort(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "not-a-number")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid PORT")
	}
	if !strings.Contains(err.Error(), "invalid PORT") {
		t.Errorf("error = %q, should name PORT", err)
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "verbose")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid LOG_LEVEL")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	for _, key := range durationEnvKeys {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, "not-a-duration")

			_, err := Load()
			if err == nil {
				t.Fatalf("expected error for invalid %s", key)
			}
			if !strings.Contains(err.Error(), key) {
				t.Errorf("error = %q, should name %s", err, key)
			}
		})
	}
}

func TestLoad_NonPositiveWindows(t *testing.T) {
	for _, key := range []string{"SETTLEMENT_WINDOW", "DEFERRED_EXECUTION_DELAY", "DEFERRED_SWEEP_INTERVAL"} {
		for _, val := range []string{"0s", "-1h"} {
			t.Run(key+"="+val, func(t *testing.T) {
				clearEnv(t)
				t.Setenv(key, val)

				if _, err := Load(); err == nil {
					t.Fatalf("expected error for %s=%s", key, val)
				}
			})
		}
	}
}

func TestLoad_InvalidSweepBatch(t *testing.T) {
	clearEnv(t)
	t.Setenv("DEFERRED_SWEEP_BATCH", "0")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for DEFERRED_SWEEP_BATCH=0")
	}
}
