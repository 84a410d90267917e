package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "bankfeed.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 6*time.Hour, cfg.Scheduler.SyncEvery)
	assert.Equal(t, 4, cfg.Scheduler.Workers)
	assert.Equal(t, 0.05, cfg.Matching.AmountTolerance)
	assert.Equal(t, 60, cfg.Matching.DateWindowDays)
	assert.Equal(t, 0.2, cfg.Matching.MinScore)
	assert.Equal(t, "info", cfg.Observability.Logging.Level)
	assert.False(t, cfg.Providers.Bankdata.Configured())
	assert.False(t, cfg.Providers.Linknode.Configured())
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfigFile(t, `
storage:
  database_path: /var/lib/bankfeed/prod.db
api:
  port: 9090
scheduler:
  workers: 2
matching:
  min_score: 0.4
providers:
  bankdata:
    secret_id: id-123
    secret_key: key-456
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/bankfeed/prod.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 9090, cfg.API.Port)
	assert.Equal(t, 2, cfg.Scheduler.Workers)
	assert.Equal(t, 0.4, cfg.Matching.MinScore)
	assert.True(t, cfg.Providers.Bankdata.Configured())
	assert.False(t, cfg.Providers.Linknode.Configured())

	// Omitted values fall back to defaults.
	assert.Equal(t, 6*time.Hour, cfg.Scheduler.SyncEvery)
	assert.Equal(t, 0.05, cfg.Matching.AmountTolerance)
	assert.Equal(t, 60, cfg.Matching.DateWindowDays)
	assert.NotEmpty(t, cfg.API.AllowedOrigins)
	assert.Equal(t, "text", cfg.Observability.Logging.Format)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "reading config file")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfigFile(t, "storage: [not a map")
		_, err := Load(path)
		assert.ErrorContains(t, err, "parsing config file")
	})
}

func TestFromEnv(t *testing.T) {
	t.Setenv("BANKFEED_DB_PATH", "/tmp/env.db")
	t.Setenv("BANKFEED_API_PORT", "7070")
	t.Setenv("BANKFEED_LOG_LEVEL", "debug")
	t.Setenv("LINKNODE_CLIENT_ID", "client-1")
	t.Setenv("LINKNODE_SECRET", "hunter2")

	cfg := FromEnv()

	assert.Equal(t, "/tmp/env.db", cfg.Storage.DatabasePath)
	assert.Equal(t, 7070, cfg.API.Port)
	assert.Equal(t, "debug", cfg.Observability.Logging.Level)
	assert.True(t, cfg.Providers.Linknode.Configured())
	assert.False(t, cfg.Providers.Bankdata.Configured())

	// Untouched knobs keep defaults.
	assert.Equal(t, 4, cfg.Scheduler.Workers)
}

func TestFromEnv_BadPortIgnored(t *testing.T) {
	t.Setenv("BANKFEED_API_PORT", "not-a-port")
	cfg := FromEnv()
	assert.Equal(t, 8080, cfg.API.Port)
}

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}
