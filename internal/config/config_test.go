package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, 7, cfg.Shortener.CodeLength)
	assert.Equal(t, 5, cfg.Shortener.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Resolver.LookupTimeout)
	assert.Equal(t, "memory", cfg.Aggregator.Transport)
	assert.Equal(t, 90*24*time.Hour, cfg.Retention.Window)
	assert.Contains(t, cfg.Shortener.BlockedDomains, "malware.com")
	assert.Empty(t, cfg.Auth.APIKeys)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "9090")
	t.Setenv("APP_BASE_URL", "https://sho.rt/")
	t.Setenv("AUTH_API_KEYS", "k1:alice, k2:bob")
	t.Setenv("RESOLVER_LOOKUP_TIMEOUT", "20ms")
	t.Setenv("KAFKA_BROKERS", "b1:9092, b2:9092")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, "https://sho.rt", cfg.App.BaseURL)
	assert.Equal(t, map[string]string{"k1": "alice", "k2": "bob"}, cfg.Auth.APIKeys)
	assert.Equal(t, 20*time.Millisecond, cfg.Resolver.LookupTimeout)
	assert.Equal(t, []string{"b1:9092", "b2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_DotEnvFile(t *testing.T) {
	// Registered so the values exported by Load are restored afterwards.
	t.Setenv("DB_NAME", "")
	t.Setenv("AGGREGATOR_WORKERS", "")
	t.Setenv("DB_HOST", "from-env")

	path := filepath.Join(t.TempDir(), "test.env")
	content := "DB_NAME=links\nAGGREGATOR_WORKERS=8\nDB_HOST=from-file\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "links", cfg.DB.Name)
	assert.Equal(t, 8, cfg.Aggregator.Workers)
	assert.Equal(t, "from-env", cfg.DB.Host)
}

func TestParseAPIKeys(t *testing.T) {
	assert.Empty(t, parseAPIKeys(""))
	assert.Equal(t, map[string]string{"a": "1"}, parseAPIKeys("a:1,broken"))
}
