package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Server holds all configuration for the simulation API.
type Server struct {
	// Network
	Host string `yaml:"host" env:"HOST"`
	Port int    `yaml:"port" env:"PORT"`

	// CORS origin sent on every response
	AllowOrigin string `yaml:"allow_origin" env:"ALLOW_ORIGIN"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	Simulation SimulationConfig `yaml:"simulation" envPrefix:"SIM_"`
	Sessions   SessionConfig    `yaml:"sessions" envPrefix:"SESSION_"`
	Log        LogConfig        `yaml:"log" envPrefix:"LOG_"`
}

// SimulationConfig bounds what a single request may ask for.
type SimulationConfig struct {
	MaxTrials     int `yaml:"max_trials" env:"MAX_TRIALS"`
	DefaultTrials int `yaml:"default_trials" env:"DEFAULT_TRIALS"`
	BatchSize     int `yaml:"batch_size" env:"BATCH_SIZE"`
	// MaxRolls caps trials x total hits for one run.
	MaxRolls int64 `yaml:"max_rolls" env:"MAX_ROLLS"`
	// MaxTraceHits caps total hits for a single traced trial.
	MaxTraceHits int `yaml:"max_trace_hits" env:"MAX_TRACE_HITS"`
}

// SessionConfig controls the in-memory session sweeper.
type SessionConfig struct {
	MaxIdle       time.Duration `yaml:"max_idle" env:"MAX_IDLE"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
}

// LogConfig mirrors logger.Config.
type LogConfig struct {
	Level          string `yaml:"level" env:"LEVEL"`
	ConsoleFormat  string `yaml:"console_format" env:"CONSOLE_FORMAT"` // "tint", "text" or "json"
	FileEnabled    bool   `yaml:"file_enabled" env:"FILE_ENABLED"`
	FilePath       string `yaml:"file_path" env:"FILE_PATH"`
	FileMaxSizeMB  int    `yaml:"file_max_size_mb" env:"FILE_MAX_SIZE_MB"`
	FileMaxBackups int    `yaml:"file_max_backups" env:"FILE_MAX_BACKUPS"`
	FileMaxAgeDays int    `yaml:"file_max_age_days" env:"FILE_MAX_AGE_DAYS"`
}

// Addr is the listen address.
func (s Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DefaultServer returns Server config with sensible defaults.
func DefaultServer() Server {
	return Server{
		Host:            "",
		Port:            8080,
		AllowOrigin:     "*",
		ShutdownTimeout: 5 * time.Second,
		Simulation: SimulationConfig{
			MaxTrials:     10_000_000,
			DefaultTrials: 100_000,
			BatchSize:     1000,
			MaxRolls:      2_000_000_000,
			MaxTraceHits:  10_000,
		},
		Sessions: SessionConfig{
			MaxIdle:       2 * time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		Log: LogConfig{
			Level:          "INFO",
			ConsoleFormat:  "tint",
			FilePath:       "logs/critsim.log",
			FileMaxSizeMB:  50,
			FileMaxBackups: 3,
			FileMaxAgeDays: 14,
		},
	}
}

// EnvPrefix is prepended to every env variable except PORT.
const EnvPrefix = "CRITSIM_"

// Load builds the config from defaults, then the YAML file at path (skipped
// when path is empty or missing), then CRITSIM_* env variables. A bare PORT
// wins over everything, as on Cloud Run.
func Load(path string) (Server, error) {
	cfg := DefaultServer()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if p := os.Getenv("PORT"); p != "" {
		var port int
		if _, err := fmt.Sscanf(p, "%d", &port); err != nil {
			return cfg, fmt.Errorf("parse env PORT=%q: %w", p, err)
		}
		cfg.Port = port
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configs the server cannot run with.
func (s Server) Validate() error {
	switch {
	case s.Port < 0 || s.Port > 65535:
		return fmt.Errorf("config: port %d out of range", s.Port)
	case s.Simulation.MaxTrials < 1:
		return errors.New("config: simulation.max_trials must be at least 1")
	case s.Simulation.DefaultTrials < 1 || s.Simulation.DefaultTrials > s.Simulation.MaxTrials:
		return errors.New("config: simulation.default_trials must be in [1, max_trials]")
	case s.Simulation.BatchSize < 1:
		return errors.New("config: simulation.batch_size must be at least 1")
	case s.Simulation.MaxRolls < 1 || s.Simulation.MaxTraceHits < 1:
		return errors.New("config: simulation.max_rolls and simulation.max_trace_hits must be at least 1")
	case s.Sessions.MaxIdle <= 0 || s.Sessions.SweepInterval <= 0:
		return errors.New("config: sessions.max_idle and sessions.sweep_interval must be positive")
	}
	return nil
}
