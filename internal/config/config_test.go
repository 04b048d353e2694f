package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "critsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultServer(), cfg)
	assert.Equal(t, ":8080", cfg.Addr())
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := writeFile(t, `
host: 127.0.0.1
port: 9000
simulation:
  max_trials: 5000
  default_trials: 1000
  max_trace_hits: 500
sessions:
  max_idle: 30m
log:
  level: DEBUG
`)
	t.Setenv("PORT", "")
	t.Setenv("CRITSIM_SIM_BATCH_SIZE", "250")
	t.Setenv("CRITSIM_LOG_CONSOLE_FORMAT", "json")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr())
	assert.Equal(t, 5000, cfg.Simulation.MaxTrials)
	assert.Equal(t, 1000, cfg.Simulation.DefaultTrials)
	assert.Equal(t, 250, cfg.Simulation.BatchSize)
	assert.Equal(t, 500, cfg.Simulation.MaxTraceHits)
	assert.Equal(t, int64(2_000_000_000), cfg.Simulation.MaxRolls)
	assert.Equal(t, 30*time.Minute, cfg.Sessions.MaxIdle)
	assert.Equal(t, "DEBUG", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.ConsoleFormat)
}

func TestLoad_BarePortWins(t *testing.T) {
	t.Setenv("CRITSIM_PORT", "7000")
	t.Setenv("PORT", "7100")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7100, cfg.Port)
}

func TestLoad_Errors(t *testing.T) {
	t.Setenv("PORT", "")

	_, err := Load(writeFile(t, "port: [not a number"))
	assert.ErrorContains(t, err, "parsing config")

	_, err = Load(writeFile(t, "simulation:\n  batch_size: 0\n"))
	assert.ErrorContains(t, err, "batch_size")

	t.Setenv("PORT", "eighty")
	_, err = Load("")
	assert.ErrorContains(t, err, "PORT")
}

func TestValidate(t *testing.T) {
	cfg := DefaultServer()
	require.NoError(t, cfg.Validate())

	cfg.Simulation.DefaultTrials = cfg.Simulation.MaxTrials + 1
	assert.Error(t, cfg.Validate())

	cfg = DefaultServer()
	cfg.Port = 70000
	assert.Error(t, cfg.Validate())

	cfg = DefaultServer()
	cfg.Simulation.MaxRolls = 0
	assert.ErrorContains(t, cfg.Validate(), "max_rolls")
}
