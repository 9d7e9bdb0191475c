// Package config handles configuration loading for bmplot.
package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment overrides, as in BMPLOT_SERVER_PORT or
// BMPLOT_REPORTS_DB_PATH.
const EnvPrefix = "BMPLOT"

// Config represents the bmplot configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Data    DataConfig    `yaml:"data"`
	Cache   CacheConfig   `yaml:"cache"`
	Render  RenderConfig  `yaml:"render"`
	Reports ReportsConfig `yaml:"reports"`
	Logging LoggingConfig `yaml:"logging"`
	Tracing TracingConfig `yaml:"tracing"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int             `yaml:"port" split_words:"true" validate:"min=1,max=65535"`
	CORSOrigins []string        `yaml:"cors_origins" split_words:"true"`
	RateLimit   RateLimitConfig `yaml:"rate_limit" split_words:"true"`
}

// RateLimitConfig limits render requests per client.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" split_words:"true" validate:"gte=0"`
	Burst int     `yaml:"burst" split_words:"true" validate:"gte=0"`
}

// DataConfig points at the simulation network.
type DataConfig struct {
	SimConfig string `yaml:"sim_config" split_words:"true"`
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	FigureSizeMB     int `yaml:"figure_size_mb" split_words:"true" validate:"gte=0"`
	FigureTTLMinutes int `yaml:"figure_ttl_minutes" split_words:"true" validate:"gte=1"`
	ResultEntries    int `yaml:"result_entries" split_words:"true" validate:"gte=1"`
}

// RenderConfig contains rendering settings.
type RenderConfig struct {
	Width           int    `yaml:"width" split_words:"true" validate:"min=100,max=8000"`
	Height          int    `yaml:"height" split_words:"true" validate:"min=100,max=8000"`
	DefaultColormap string `yaml:"default_colormap" split_words:"true"`
	Display         string `yaml:"display" split_words:"true" validate:"omitempty,oneof=none viewer show"`
}

// ReportsConfig contains report store and render job settings.
type ReportsConfig struct {
	DBPath        string `yaml:"sqlite_path" split_words:"true"`
	RetentionDays int    `yaml:"retention_days" split_words:"true" validate:"gte=1"`
	MaxConcurrent int    `yaml:"max_concurrent" split_words:"true" validate:"min=1,max=64"`
}

// LoggingConfig contains logger settings.
type LoggingConfig struct {
	Level  string `yaml:"level" split_words:"true" validate:"omitempty,oneof=trace debug info warn warning error"`
	Format string `yaml:"format" split_words:"true" validate:"omitempty,oneof=text json"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled" split_words:"true"`
	Exporter string `yaml:"exporter" split_words:"true" validate:"omitempty,oneof=stdout none"`
}

// Load reads configuration from a YAML file, then applies BMPLOT_*
// environment overrides and validates the result. A missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err == nil {
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		// Apply defaults for missing values
		applyDefaults(&fileCfg)
		cfg = &fileCfg
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   RateLimitConfig{RPS: 10, Burst: 20},
		},
		Cache: CacheConfig{
			FigureSizeMB:     256,
			FigureTTLMinutes: 10,
			ResultEntries:    256,
		},
		Render: RenderConfig{
			Width:           900,
			Height:          800,
			DefaultColormap: "viridis",
			Display:         "none",
		},
		Reports: ReportsConfig{
			DBPath:        "./data/reports.db",
			RetentionDays: 30,
			MaxConcurrent: 2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			Exporter: "stdout",
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Server.RateLimit.RPS == 0 {
		cfg.Server.RateLimit.RPS = defaults.Server.RateLimit.RPS
	}
	if cfg.Server.RateLimit.Burst == 0 {
		cfg.Server.RateLimit.Burst = defaults.Server.RateLimit.Burst
	}
	if cfg.Cache.FigureSizeMB == 0 {
		cfg.Cache.FigureSizeMB = defaults.Cache.FigureSizeMB
	}
	if cfg.Cache.FigureTTLMinutes == 0 {
		cfg.Cache.FigureTTLMinutes = defaults.Cache.FigureTTLMinutes
	}
	if cfg.Cache.ResultEntries == 0 {
		cfg.Cache.ResultEntries = defaults.Cache.ResultEntries
	}
	if cfg.Render.Width == 0 {
		cfg.Render.Width = defaults.Render.Width
	}
	if cfg.Render.Height == 0 {
		cfg.Render.Height = defaults.Render.Height
	}
	if cfg.Render.DefaultColormap == "" {
		cfg.Render.DefaultColormap = defaults.Render.DefaultColormap
	}
	if cfg.Render.Display == "" {
		cfg.Render.Display = defaults.Render.Display
	}
	if cfg.Reports.DBPath == "" {
		cfg.Reports.DBPath = defaults.Reports.DBPath
	}
	if cfg.Reports.RetentionDays == 0 {
		cfg.Reports.RetentionDays = defaults.Reports.RetentionDays
	}
	if cfg.Reports.MaxConcurrent == 0 {
		cfg.Reports.MaxConcurrent = defaults.Reports.MaxConcurrent
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = defaults.Logging.Format
	}
	if cfg.Tracing.Exporter == "" {
		cfg.Tracing.Exporter = defaults.Tracing.Exporter
	}
}
