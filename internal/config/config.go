// Package config loads CLI configuration from a file, environment
// variables, and defaults, in that order of increasing precedence for env
// vars over file values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full CLI configuration.
type Config struct {
	WorkDir      string        `mapstructure:"work_dir"`
	Entries      []string      `mapstructure:"entries"`
	CacheBackend string        `mapstructure:"cache_backend"`
	CacheDir     string        `mapstructure:"cache_dir"`
	Workers      int           `mapstructure:"workers"`
	SchemaHash   string        `mapstructure:"schema_hash"`
	ScriptsDir   string        `mapstructure:"scripts_dir"`
	Debounce     time.Duration `mapstructure:"debounce"`
	ExcludeDirs  []string      `mapstructure:"exclude_dirs"`
	MetricsAddr  string        `mapstructure:"metrics_addr"`
	LogLevel     string        `mapstructure:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		WorkDir:      ".",
		CacheBackend: "memory",
		CacheDir:     ".lattice",
		Debounce:     250 * time.Millisecond,
		LogLevel:     "info",
	}
}

// Load reads configuration. cfgFile, when non-empty, is used verbatim;
// otherwise lattice.yaml (or .json) in the working directory is tried and
// its absence is not an error. Environment variables use the LATTICE_
// prefix with underscores (LATTICE_CACHE_BACKEND and so on).
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("work_dir", def.WorkDir)
	v.SetDefault("cache_backend", def.CacheBackend)
	v.SetDefault("cache_dir", def.CacheDir)
	v.SetDefault("debounce", def.Debounce)
	v.SetDefault("log_level", def.LogLevel)

	v.SetEnvPrefix("LATTICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", cfgFile, err)
		}
	} else {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		v.SetConfigName("lattice")
		v.AddConfigPath(cwd)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	switch c.CacheBackend {
	case "memory", "file", "sqlite":
	default:
		return fmt.Errorf("config: unknown cache_backend %q (want memory, file, or sqlite)", c.CacheBackend)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}
