package config

import (
	"errors"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Input      InputConfig      `yaml:"input" mapstructure:"input"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Region     RegionConfig     `yaml:"region" mapstructure:"region"`
	Jitter     JitterConfig     `yaml:"jitter" mapstructure:"jitter"`
	Geocode    GeocodeConfig    `yaml:"geocode" mapstructure:"geocode"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// InputConfig locates the raw scrape.
type InputConfig struct {
	Source string `yaml:"source" mapstructure:"source"` // local path or http(s) URL
}

// OutputConfig locates the cleaned table. The extension picks the format.
type OutputConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// RegionConfig selects the bounding region by preset name.
type RegionConfig struct {
	Name        string `yaml:"name" mapstructure:"name"`
	PresetsFile string `yaml:"presets_file" mapstructure:"presets_file"`
}

// JitterConfig tunes marker spreading.
type JitterConfig struct {
	MaxOffsetMeters float64 `yaml:"max_offset_meters" mapstructure:"max_offset_meters"`
	MinFraction     float64 `yaml:"min_fraction" mapstructure:"min_fraction"`
}

// GeocodeConfig configures the postal-code lookup.
type GeocodeConfig struct {
	Provider    string      `yaml:"provider" mapstructure:"provider"`
	Country     string      `yaml:"country" mapstructure:"country"`
	BaseURL     string      `yaml:"base_url" mapstructure:"base_url"`
	CacheDir    string      `yaml:"cache_dir" mapstructure:"cache_dir"`
	RateLimit   float64     `yaml:"rate_limit" mapstructure:"rate_limit"`
	Concurrency int         `yaml:"concurrency" mapstructure:"concurrency"`
	TimeoutSecs int         `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Cache       bool        `yaml:"cache" mapstructure:"cache"` // reuse centroids kept in the store
	Retry       RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// RetryConfig configures retries for outbound calls.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// FetchConfig configures input and dataset downloads.
type FetchConfig struct {
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// StoreConfig configures the snapshot database.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite, postgres or none
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the dashboard API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures run quality alerts.
type MonitoringConfig struct {
	WebhookURL         string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	MaxRejectionRate   float64 `yaml:"max_rejection_rate" mapstructure:"max_rejection_rate"`
	MinCoordinateShare float64 `yaml:"min_coordinate_share" mapstructure:"min_coordinate_share"`
	MinRecords         int     `yaml:"min_records" mapstructure:"min_records"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads .env, then configuration from file and environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LISTINGS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("input.source", "data/raw_data.json")
	v.SetDefault("output.path", "data/listings_clean.csv")
	v.SetDefault("region.name", "ile-de-france")
	v.SetDefault("region.presets_file", "")
	v.SetDefault("jitter.max_offset_meters", 120.0)
	v.SetDefault("jitter.min_fraction", 0.3)
	v.SetDefault("geocode.provider", "geonames")
	v.SetDefault("geocode.country", "FR")
	v.SetDefault("geocode.base_url", "")
	v.SetDefault("geocode.cache_dir", "data/geonames")
	v.SetDefault("geocode.rate_limit", 10.0)
	v.SetDefault("geocode.concurrency", 4)
	v.SetDefault("geocode.timeout_secs", 30)
	v.SetDefault("geocode.cache", true)
	v.SetDefault("geocode.retry.max_attempts", 3)
	v.SetDefault("geocode.retry.initial_backoff_ms", 500)
	v.SetDefault("geocode.retry.max_backoff_ms", 30000)
	v.SetDefault("fetch.user_agent", "listings-cli/1.0")
	v.SetDefault("fetch.timeout_secs", 300)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "data/listings.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.max_rejection_rate", 0.5)
	v.SetDefault("monitoring.min_coordinate_share", 0.5)
	v.SetDefault("monitoring.min_records", 5)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings no command can run with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Geocode.Provider) {
	case "geonames", "geoapi":
	default:
		return eris.Errorf("config: geocode.provider must be geonames or geoapi (got %q)", c.Geocode.Provider)
	}
	if len(strings.TrimSpace(c.Geocode.Country)) != 2 {
		return eris.Errorf("config: geocode.country must be a 2-letter code (got %q)", c.Geocode.Country)
	}
	switch strings.ToLower(c.Store.Driver) {
	case "sqlite", "postgres", "none", "":
	default:
		return eris.Errorf("config: store.driver must be sqlite, postgres or none (got %q)", c.Store.Driver)
	}
	if c.Jitter.MaxOffsetMeters <= 0 {
		return eris.Errorf("config: jitter.max_offset_meters must be positive (got %v)", c.Jitter.MaxOffsetMeters)
	}
	if c.Jitter.MinFraction <= 0 || c.Jitter.MinFraction >= 1 {
		return eris.Errorf("config: jitter.min_fraction must be in (0, 1) (got %v)", c.Jitter.MinFraction)
	}
	if c.Monitoring.MaxRejectionRate < 0 || c.Monitoring.MaxRejectionRate > 1 {
		return eris.Errorf("config: monitoring.max_rejection_rate must be in [0, 1] (got %v)", c.Monitoring.MaxRejectionRate)
	}
	if c.Monitoring.MinCoordinateShare < 0 || c.Monitoring.MinCoordinateShare > 1 {
		return eris.Errorf("config: monitoring.min_coordinate_share must be in [0, 1] (got %v)", c.Monitoring.MinCoordinateShare)
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
