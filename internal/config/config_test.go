package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 10000, cfg.Simulation.DefaultIterations)
	assert.Equal(t, 20, cfg.Simulation.DefaultPeriods)
	assert.Equal(t, 200000, cfg.Simulation.MaxIterations)
	assert.Equal(t, 0, cfg.Simulation.Workers)
	assert.Equal(t, []float64{10, 50, 90}, cfg.Simulation.Percentiles)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "forecast.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 5, cfg.Store.ConnectAttempts)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.InDelta(t, 5.0, cfg.Server.RatePerSecond, 0.001)
	assert.Equal(t, 10, cfg.Server.Burst)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.Server.SaveResults)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
simulation:
  default_iterations: 500
  percentiles: [5, 50, 95]
store:
  driver: postgres
  database_url: postgres://localhost/forecast
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.Simulation.DefaultIterations)
	assert.Equal(t, []float64{5, 50, 95}, cfg.Simulation.Percentiles)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/forecast", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, 20, cfg.Simulation.DefaultPeriods)
	assert.Equal(t, 10, cfg.Server.Burst)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("FORECAST_STORE_DRIVER", "postgres")
	t.Setenv("FORECAST_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("FORECAST_SERVER_PORT", "3000")
	t.Setenv("FORECAST_SIMULATION_DEFAULT_PERIODS", "12")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 12, cfg.Simulation.DefaultPeriods)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("simulation: [unclosed\n"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
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

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Simulation.DefaultIterations = 10000
	cfg.Simulation.DefaultPeriods = 20
	cfg.Simulation.MaxIterations = 200000
	cfg.Simulation.Percentiles = []float64{10, 50, 90}
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "forecast.db"
	cfg.Server.Port = 8080
	cfg.Server.RatePerSecond = 5
	cfg.Server.Burst = 10
	return cfg
}

func TestValidate_AllModesPass(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"simulate", "store", "serve"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidateSimulation(t *testing.T) {
	cfg := validDefaults()
	cfg.Simulation.DefaultIterations = 0
	cfg.Simulation.DefaultPeriods = -1
	cfg.Simulation.Workers = -2
	cfg.Simulation.Percentiles = []float64{10, 120}

	err := cfg.Validate("simulate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "simulation.default_iterations must be > 0")
	assert.Contains(t, err.Error(), "simulation.default_periods must be > 0")
	assert.Contains(t, err.Error(), "simulation.workers must be >= 0")
	assert.Contains(t, err.Error(), "value 120 must be between 0 and 100")
}

func TestValidateSimulation_ExceedsMax(t *testing.T) {
	cfg := validDefaults()
	cfg.Simulation.DefaultIterations = 300000

	err := cfg.Validate("simulate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not exceed simulation.max_iterations")
}

func TestValidateStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver "mysql" must be sqlite or postgres`)
	assert.Contains(t, err.Error(), "store.database_url is required")

	// Simulate mode does not touch the store.
	assert.NoError(t, cfg.Validate("simulate"))
}

func TestValidateServe_InvalidServer(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0
	cfg.Server.RatePerSecond = 0
	cfg.Server.Burst = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
	assert.Contains(t, err.Error(), "server.rate_per_second must be > 0")
	assert.Contains(t, err.Error(), "server.burst must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
