package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  port: 9090
database:
  dsn: postgres://u:p@db:5432/contracts?sslmode=disable
sync:
  months: 6
  batch_size: 25
dump:
  retry_count: 4
  proxy: http://proxy:3128
geocode:
  delay: 1500ms
  cache_dir: /var/cache/geocode
notify:
  dir: ./run
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig_FileAndDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 6, cfg.Sync.Months)
	assert.Equal(t, 25, cfg.Sync.BatchSize)
	assert.Equal(t, 200, cfg.Sync.SupplierFlushThreshold)
	assert.False(t, cfg.Sync.SynthesizeAmendments)
	assert.NotEmpty(t, cfg.Sync.CheckpointPath)

	assert.Equal(t, "smlouvy", cfg.Dump.Source)
	assert.Equal(t, 4, cfg.Dump.RetryCount)
	assert.Equal(t, "http://proxy:3128", cfg.Dump.Proxy)
	assert.Equal(t, 600, cfg.Dump.Timeout)

	assert.Equal(t, 1500*time.Millisecond, cfg.Geocode.Delay)
	assert.Equal(t, 30*time.Second, cfg.Geocode.RateLimitBackoff)
	assert.Equal(t, "cz", cfg.Geocode.CountryCode)
	assert.Equal(t, "/var/cache/geocode", cfg.Geocode.CacheDir)
	assert.InDelta(t, 49.8175, cfg.Geocode.Bounds.CenterLat, 1e-9)
	assert.True(t, cfg.Geocode.Bounds.Contains(50.08, 14.42))
	assert.False(t, cfg.Geocode.Bounds.Contains(52.5, 13.4))

	assert.Equal(t, "contractsync.runs", cfg.Notify.KafkaTopic)
}

func TestLoadConfig_EnvOverridesSecrets(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://env@db/other")
	t.Setenv("GEOCODE_USER_AGENT", "Test/1.0 (ops@example.cz)")
	t.Setenv("KAFKA_BROKERS", " broker1:9092,broker2:9092 ")

	cfg, err := LoadConfig(writeConfig(t, sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "postgres://env@db/other", cfg.Database.DSN)
	assert.Equal(t, "Test/1.0 (ops@example.cz)", cfg.Geocode.UserAgent)
	assert.Equal(t, "broker1:9092,broker2:9092", cfg.Notify.KafkaBrokers)
}

func TestLoadConfig_ExplicitMissingFileFails(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadConfig_MalformedYAMLFails(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "sync: [unclosed"))
	require.Error(t, err)
}
