package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chTempDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, ".trip/runs.db", cfg.Store.Path)
	assert.Equal(t, ".trip/sessions", cfg.Checkpoint.Dir)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://places.googleapis.com", cfg.Places.BaseURL)
	assert.InDelta(t, 10.0, cfg.Places.RateQPS, 0.001)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, []string{"places", "atlas", "narrative"}, cfg.Workers.Enabled)
	assert.Equal(t, 4, cfg.Workers.Concurrency)
	assert.Equal(t, 60, cfg.Workers.TimeoutSecs)
	assert.Equal(t, 3, cfg.Workers.FailureThreshold)
	assert.InDelta(t, 0.6, cfg.Dedupe.TitleWeight, 0.001)
	assert.InDelta(t, 0.4, cfg.Dedupe.LocationWeight, 0.001)
	assert.InDelta(t, 0.85, cfg.Dedupe.ClusterThreshold, 0.001)
	assert.Equal(t, 10, cfg.Validation.MaxCandidates)
	assert.Equal(t, 3, cfg.Validation.Concurrency)
	assert.Equal(t, []string{"narrative"}, cfg.Validation.LowTrustOrigins)
	assert.InDelta(t, 0.032, cfg.Pricing.Places.PerQuery, 0.0001)
}

func TestLoadFromYAML(t *testing.T) {
	chTempDir(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/trips
log:
  level: debug
  format: console
server:
  port: 9090
workers:
  concurrency: 8
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/trips", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Workers.Concurrency)
	// Defaults still apply for unset values
	assert.InDelta(t, 0.85, cfg.Dedupe.ClusterThreshold, 0.001)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chTempDir(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("TRIP_STORE_DRIVER", "postgres")
	t.Setenv("TRIP_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chTempDir(t)

	t.Setenv("TRIP_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Workers.Concurrency = 4
	cfg.Dedupe.ClusterThreshold = 0.85
	cfg.Validation.MaxCandidates = 10
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateRun_RequiresProviderKey(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "at least one provider key")

	cfg.Places.Key = "places-key"
	assert.NoError(t, cfg.Validate("run"))
}

func TestValidateRun_ConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = "sk-ant-key"

	cfg.Workers.Concurrency = 0
	err := cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "workers.concurrency must be between 1 and 32")

	cfg.Workers.Concurrency = 33
	assert.Error(t, cfg.Validate("run"))

	cfg.Workers.Concurrency = 32
	assert.NoError(t, cfg.Validate("run"))
}

func TestValidateRun_ClusterThreshold(t *testing.T) {
	cfg := validDefaults()
	cfg.Atlas.Key = "atlas-key"

	cfg.Dedupe.ClusterThreshold = 0
	err := cfg.Validate("run")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cluster_threshold")

	cfg.Dedupe.ClusterThreshold = 1.5
	assert.Error(t, cfg.Validate("run"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateStoreDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("status")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")

	cfg.Store.Driver = "postgres"
	err = cfg.Validate("status")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Store.DatabaseURL = "postgres://localhost/trips"
	assert.NoError(t, cfg.Validate("status"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
