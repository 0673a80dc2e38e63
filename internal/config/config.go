// Package config loads application configuration from file and environment
// and initializes the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Sources  string         `yaml:"sources" mapstructure:"sources"` // path to sources registry YAML
	Aliases  string         `yaml:"aliases" mapstructure:"aliases"` // path to alias tables YAML
	Arbiter  ArbiterConfig  `yaml:"arbiter" mapstructure:"arbiter"`
	Geocode  GeocodeConfig  `yaml:"geocode" mapstructure:"geocode"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// ArbiterConfig holds the external arbitrator settings.
type ArbiterConfig struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`
	Key          string `yaml:"key" mapstructure:"key"`
	Model        string `yaml:"model" mapstructure:"model"`
	MaxTokens    int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	BreakerTrips int    `yaml:"breaker_trips" mapstructure:"breaker_trips"`
	BreakerReset int    `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// Timeout returns the arbitrator call timeout.
func (c ArbiterConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// GeocodeConfig holds the Census geocoder settings.
type GeocodeConfig struct {
	Enabled      bool    `yaml:"enabled" mapstructure:"enabled"`
	RatePerSec   float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	CacheTTLSecs int     `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
}

// PipelineConfig bounds the source fan-out.
type PipelineConfig struct {
	SourceTimeoutMS   int `yaml:"source_timeout_ms" mapstructure:"source_timeout_ms"`
	OverallDeadlineMS int `yaml:"overall_deadline_ms" mapstructure:"overall_deadline_ms"`
	MaxConcurrent     int `yaml:"max_concurrent" mapstructure:"max_concurrent"`

	// Scoring constant overrides keyed by the ScoringConfig mapstructure
	// names; absent keys fall back to defaults.
	Scoring map[string]float64 `yaml:"scoring" mapstructure:"scoring"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port          int `yaml:"port" mapstructure:"port"`
	CacheTTLSecs  int `yaml:"cache_ttl_secs" mapstructure:"cache_ttl_secs"`
	CacheSweepMin int `yaml:"cache_sweep_mins" mapstructure:"cache_sweep_mins"`
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
	v.SetEnvPrefix("UTILITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("sources", "config/sources.yaml")
	v.SetDefault("aliases", "config/aliases.yaml")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cache_ttl_secs", 3600)
	v.SetDefault("server.cache_sweep_mins", 10)
	v.SetDefault("pipeline.source_timeout_ms", 2000)
	v.SetDefault("pipeline.overall_deadline_ms", 8000)
	v.SetDefault("pipeline.max_concurrent", 16)
	v.SetDefault("geocode.enabled", true)
	v.SetDefault("geocode.rate_per_sec", 10)
	v.SetDefault("geocode.cache_ttl_secs", 86400)
	v.SetDefault("arbiter.enabled", true)
	v.SetDefault("arbiter.model", "claude-haiku-4-5-20251001")
	v.SetDefault("arbiter.max_tokens", 512)
	v.SetDefault("arbiter.timeout_secs", 15)
	v.SetDefault("arbiter.breaker_trips", 5)
	v.SetDefault("arbiter.breaker_reset_secs", 60)

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

// Validate checks the configuration for the given run mode and reports every
// problem at once.
func (c *Config) Validate(mode string) error {
	var problems []string

	if c.Sources == "" {
		problems = append(problems, "sources path is required")
	}
	if c.Aliases == "" {
		problems = append(problems, "aliases path is required")
	}
	if c.Pipeline.SourceTimeoutMS <= 0 {
		problems = append(problems, "pipeline.source_timeout_ms must be > 0")
	}
	if c.Pipeline.OverallDeadlineMS < c.Pipeline.SourceTimeoutMS {
		problems = append(problems, "pipeline.overall_deadline_ms must be >= source_timeout_ms")
	}
	if c.Pipeline.MaxConcurrent < 0 {
		problems = append(problems, "pipeline.max_concurrent must be >= 0")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Server.CacheTTLSecs < 0 {
			problems = append(problems, "server.cache_ttl_secs must be >= 0")
		}
	case "resolve", "sources":
	default:
		problems = append(problems, "unknown mode "+mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
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
