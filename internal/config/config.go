package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation" mapstructure:"simulation"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// SimulationConfig holds forecast defaults applied when a request leaves a
// field unset.
type SimulationConfig struct {
	DefaultIterations int       `yaml:"default_iterations" mapstructure:"default_iterations"`
	DefaultPeriods    int       `yaml:"default_periods" mapstructure:"default_periods"`
	MaxIterations     int       `yaml:"max_iterations" mapstructure:"max_iterations"`
	Workers           int       `yaml:"workers" mapstructure:"workers"` // 0 means GOMAXPROCS
	Percentiles       []float64 `yaml:"percentiles" mapstructure:"percentiles"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`

	// Postgres only.
	Schema   string `yaml:"schema" mapstructure:"schema"`
	MaxConns int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32  `yaml:"min_conns" mapstructure:"min_conns"`

	ConnectAttempts int `yaml:"connect_attempts" mapstructure:"connect_attempts"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port          int      `yaml:"port" mapstructure:"port"`
	RatePerSecond float64  `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	Burst         int      `yaml:"burst" mapstructure:"burst"`
	CORSOrigins   []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	SaveResults   bool     `yaml:"save_results" mapstructure:"save_results"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("FORECAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("simulation.default_iterations", 10000)
	v.SetDefault("simulation.default_periods", 20)
	v.SetDefault("simulation.max_iterations", 200000)
	v.SetDefault("simulation.workers", 0)
	v.SetDefault("simulation.percentiles", []float64{10, 50, 90})
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "forecast.db")
	v.SetDefault("store.connect_attempts", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_per_second", 5.0)
	v.SetDefault("server.burst", 10)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.save_results", true)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the fields a command mode depends on. Modes are
// "simulate", "store" and "serve"; every mode checks the simulation section.
func (c *Config) Validate(mode string) error {
	var errs []string

	sim := c.Simulation
	if sim.DefaultIterations <= 0 {
		errs = append(errs, "simulation.default_iterations must be > 0")
	}
	if sim.DefaultPeriods <= 0 {
		errs = append(errs, "simulation.default_periods must be > 0")
	}
	if sim.MaxIterations > 0 && sim.DefaultIterations > sim.MaxIterations {
		errs = append(errs, "simulation.default_iterations must not exceed simulation.max_iterations")
	}
	if sim.Workers < 0 {
		errs = append(errs, "simulation.workers must be >= 0")
	}
	for _, p := range sim.Percentiles {
		if p < 0 || p > 100 {
			errs = append(errs, fmt.Sprintf("simulation.percentiles value %g must be between 0 and 100", p))
		}
	}

	switch mode {
	case "simulate":
	case "store":
		errs = append(errs, c.validateStore()...)
	case "serve":
		errs = append(errs, c.validateStore()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.RatePerSecond <= 0 {
			errs = append(errs, "server.rate_per_second must be > 0")
		}
		if c.Server.Burst <= 0 {
			errs = append(errs, "server.burst must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
