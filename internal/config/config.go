// Package config loads rulesql settings from defaults, a YAML file,
// RULESQL_ environment variables and command-line flags.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/roach88/rulesql/internal/querysql"
	"github.com/roach88/rulesql/internal/store"
)

// Config file names searched in the working directory.
const (
	ConfigFileName    = "rulesql.yaml"
	ConfigFileNameAlt = "rulesql.yml"
)

// EnvPrefix is the prefix of environment overrides, e.g.
// RULESQL_DATABASE_DSN sets database.dsn.
const EnvPrefix = "RULESQL_"

// Defaults.
const (
	DefaultDriver   = "sqlite3"
	DefaultDSN      = ":memory:"
	DefaultLogLevel = "warn"
	DefaultFormat   = "text"
)

// Config is the resolved configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Log      LogConfig      `koanf:"log"`

	// Specs is the default entity definition path for commands that take one.
	Specs string `koanf:"specs"`

	// Format is the output format: text or json.
	Format string `koanf:"format"`

	// File is the config file that was loaded, if any.
	File string `koanf:"-"`
}

// DatabaseConfig selects the backend.
type DatabaseConfig struct {
	Driver string `koanf:"driver"`
	DSN    string `koanf:"dsn"`
}

// LogConfig controls slog output.
type LogConfig struct {
	Level string `koanf:"level"`
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"driver":    "database.driver",
	"dsn":       "database.dsn",
	"log-level": "log.level",
	"format":    "format",
	"specs":     "specs",
}

// Load resolves configuration.
// Precedence (highest to lowest): flags > env vars > config file > defaults
//
// cfgFile may be empty, in which case rulesql.yaml or rulesql.yml in the
// working directory is used when present. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(map[string]interface{}{
		"database.driver": DefaultDriver,
		"database.dsn":    DefaultDSN,
		"log.level":       DefaultLogLevel,
		"format":          DefaultFormat,
		"specs":           "",
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	path := findConfigFile(cfgFile)
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// 3. Environment: RULESQL_DATABASE_DSN -> database.dsn
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags that were explicitly set
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.File = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey turns RULESQL_DATABASE_DSN into database.dsn. Only the first
// underscore separates the section from the key.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.Replace(s, "_", ".", 1)
}

// findConfigFile returns the explicit path, or the first default file name
// that exists in the working directory.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{ConfigFileName, ConfigFileNameAlt} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Validate checks driver, format and log level.
func (c *Config) Validate() error {
	if _, err := querysql.LookupDialect(c.Database.Driver); err != nil {
		return fmt.Errorf("database.driver: %w", err)
	}
	if c.Format != "text" && c.Format != "json" {
		return fmt.Errorf("format: invalid format %q: must be one of [text json]", c.Format)
	}
	if _, err := c.LogLevel(); err != nil {
		return err
	}
	return nil
}

// LogLevel parses log.level (debug, info, warn, error).
func (c *Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}

// Store returns the store configuration.
func (c *Config) Store() store.Config {
	return store.Config{Driver: c.Database.Driver, DSN: c.Database.DSN}
}
