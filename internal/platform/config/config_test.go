package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nestfeed/internal/platform/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "nestfeed.audit", cfg.Kafka.Topic)
	assert.NotEmpty(t, cfg.Auth.SigningKey)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
cache:
  backend: sqlite
  sqlite_path: /tmp/test-cache.db
log:
  format: json
`), 0o600))
	t.Setenv("NESTFEED_CONFIG", path)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Cache.Backend)
	assert.Equal(t, "/tmp/test-cache.db", cfg.Cache.SQLitePath)
	assert.Equal(t, "json", cfg.Log.Format)
	// Untouched fields keep their defaults.
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9090\"\n"), 0o600))
	t.Setenv("NESTFEED_CONFIG", path)
	t.Setenv("NESTFEED_ADDR", ":7070")
	t.Setenv("NESTFEED_CACHE_BACKEND", "redis")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, ":7070", cfg.Server.Addr)
	assert.Equal(t, "redis", cfg.Cache.Backend)
}

func TestKafkaBrokersSplitAndTrimmed(t *testing.T) {
	t.Setenv("NESTFEED_KAFKA_BROKERS", "broker-1:9092, broker-2:9092 ,, broker-3:9092")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092", "broker-3:9092"}, cfg.Kafka.Brokers)
}

func TestMissingConfigFileFails(t *testing.T) {
	t.Setenv("NESTFEED_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := config.Load()
	assert.Error(t, err)
}
