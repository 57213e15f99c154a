// Package config loads the engine configuration from an optional file and
// CQLRETRIEVE_* environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/gofhir/cqlretrieve/pkg/logger"
)

// EnvPrefix is prepended to every environment key.
const EnvPrefix = "CQLRETRIEVE"

// Config holds the engine settings read from a file and the CQLRETRIEVE_*
// environment.
type Config struct {
	// DataSources are the resource store URIs in priority order.
	DataSources []string `mapstructure:"DATA_SOURCES"`
	// TerminologyURI is a comma separated list of terminology directories
	// or files, searched in order.
	TerminologyURI      string `mapstructure:"TERMINOLOGY_URI"`
	LibraryURI          string `mapstructure:"LIBRARY_URI"`
	LogLevel            string `mapstructure:"LOG_LEVEL"`
	LogFormat           string `mapstructure:"LOG_FORMAT"`
	Workers             int    `mapstructure:"WORKERS"`
	MembershipCacheSize int    `mapstructure:"MEMBERSHIP_CACHE_SIZE"`
	LibraryCacheSize    int    `mapstructure:"LIBRARY_CACHE_SIZE"`
	DBMaxConns          int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32  `mapstructure:"DB_MIN_CONNS"`
}

var keys = []string{
	"DATA_SOURCES",
	"TERMINOLOGY_URI",
	"LIBRARY_URI",
	"LOG_LEVEL",
	"LOG_FORMAT",
	"WORKERS",
	"MEMBERSHIP_CACHE_SIZE",
	"LIBRARY_CACHE_SIZE",
	"DB_MAX_CONNS",
	"DB_MIN_CONNS",
}

// Load reads path (YAML, JSON or .env, by extension) when it is not empty,
// then overlays the environment. Load does not validate.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", logger.FormatConsole)
	v.SetDefault("WORKERS", 0)
	v.SetDefault("MEMBERSHIP_CACHE_SIZE", 10000)
	v.SetDefault("LIBRARY_CACHE_SIZE", 64)
	v.SetDefault("DB_MAX_CONNS", 4)
	v.SetDefault("DB_MIN_CONNS", 0)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DataSources == nil {
		if sources := v.GetString("DATA_SOURCES"); sources != "" {
			cfg.DataSources = strings.Split(sources, ",")
		}
	}
	cfg.DataSources = cleanList(cfg.DataSources)

	return cfg, nil
}

func cleanList(items []string) []string {
	var out []string
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Validate checks that the configuration can build an engine.
func (c *Config) Validate() error {
	if len(c.DataSources) == 0 {
		return fmt.Errorf("%s_DATA_SOURCES must list at least one source", EnvPrefix)
	}
	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%s_LOG_LEVEL: %w", EnvPrefix, err)
	}
	if c.LogFormat != logger.FormatConsole && c.LogFormat != logger.FormatJSON {
		return fmt.Errorf("%s_LOG_FORMAT must be %q or %q, got %q", EnvPrefix, logger.FormatConsole, logger.FormatJSON, c.LogFormat)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%s_WORKERS must not be negative, got %d", EnvPrefix, c.Workers)
	}
	if c.MembershipCacheSize < 0 {
		return fmt.Errorf("%s_MEMBERSHIP_CACHE_SIZE must not be negative, got %d", EnvPrefix, c.MembershipCacheSize)
	}
	if c.LibraryCacheSize < 0 {
		return fmt.Errorf("%s_LIBRARY_CACHE_SIZE must not be negative, got %d", EnvPrefix, c.LibraryCacheSize)
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("%s_DB_MAX_CONNS must be at least 1, got %d", EnvPrefix, c.DBMaxConns)
	}
	if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("%s_DB_MIN_CONNS must be between 0 and %d, got %d", EnvPrefix, c.DBMaxConns, c.DBMinConns)
	}
	return nil
}
