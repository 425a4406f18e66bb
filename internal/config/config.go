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
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Matching   MatchingConfig   `yaml:"matching" mapstructure:"matching"`
	Geocode    GeocodeConfig    `yaml:"geocode" mapstructure:"geocode"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // postgres, sqlite or memory
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	CORSOrigins    []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst int      `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MatchingConfig configures proximity search radii.
type MatchingConfig struct {
	DefaultRadiusKM    float64 `yaml:"default_radius_km" mapstructure:"default_radius_km"`
	AutoAssignRadiusKM float64 `yaml:"auto_assign_radius_km" mapstructure:"auto_assign_radius_km"`
}

// GeocodeConfig configures the fallback geocoder and its cache.
type GeocodeConfig struct {
	Country      string  `yaml:"country" mapstructure:"country"`
	FallbackCity string  `yaml:"fallback_city" mapstructure:"fallback_city"`
	FallbackLat  float64 `yaml:"fallback_lat" mapstructure:"fallback_lat"`
	FallbackLon  float64 `yaml:"fallback_lon" mapstructure:"fallback_lon"`
	CacheTTLDays int     `yaml:"cache_ttl_days" mapstructure:"cache_ttl_days"`
}

// MonitoringConfig configures the dispatch backlog checker.
type MonitoringConfig struct {
	Enabled           bool   `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL        string `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	// StaleAfterMins is how long a pickup may wait unassigned before it
	// counts as stale.
	StaleAfterMins int `yaml:"stale_after_mins" mapstructure:"stale_after_mins"`
	StaleThreshold int `yaml:"stale_threshold" mapstructure:"stale_threshold"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ISUKU")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "isuku.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.rate_limit_rps", 20)
	v.SetDefault("server.rate_limit_burst", 40)
	v.SetDefault("matching.default_radius_km", 10.0)
	v.SetDefault("matching.auto_assign_radius_km", 15.0)
	v.SetDefault("geocode.country", "Rwanda")
	v.SetDefault("geocode.fallback_city", "Kigali")
	v.SetDefault("geocode.fallback_lat", -1.9441)
	v.SetDefault("geocode.fallback_lon", 30.0619)
	v.SetDefault("geocode.cache_ttl_days", 90)
	v.SetDefault("monitoring.enabled", false)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.stale_after_mins", 120)
	v.SetDefault("monitoring.stale_threshold", 10)

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

// Validate checks the settings a command mode needs. Modes are "serve" and
// "store"; every problem found is reported in one error.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Server.RateLimitRPS < 0 || c.Server.RateLimitBurst < 0 {
			problems = append(problems, "server rate limits must be >= 0")
		}
	case "store":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			problems = append(problems, "store.sqlite_path is required for the sqlite driver")
		}
	case "memory":
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q is not one of postgres, sqlite, memory", c.Store.Driver))
	}

	if c.Matching.DefaultRadiusKM <= 0 {
		problems = append(problems, "matching.default_radius_km must be > 0")
	}
	if c.Matching.AutoAssignRadiusKM <= 0 {
		problems = append(problems, "matching.auto_assign_radius_km must be > 0")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
