// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads questkeeper settings. Later sources override earlier
// ones: built-in defaults, the YAML config file, QUESTKEEPER_* environment
// variables, then command-line flags.
package config

import (
	"errors"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/questkeeper/internal/logging"
	"github.com/holomush/questkeeper/internal/quest"
	"github.com/holomush/questkeeper/internal/store"
	"github.com/holomush/questkeeper/internal/xdg"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "QUESTKEEPER_"

// Config is the resolved configuration.
type Config struct {
	// User is the acting user id.
	User       string   `koanf:"user"`
	GMPatterns []string `koanf:"gm_patterns"`

	Storage StorageConfig `koanf:"storage"`

	OrphanPolicy  string `koanf:"orphan_policy"`
	AutoSave      bool   `koanf:"auto_save"`
	Notifications bool   `koanf:"notifications"`
	// SaveInterval is how often serve flushes unsaved changes when
	// AutoSave is off.
	SaveInterval time.Duration `koanf:"save_interval"`
	// AssumeYes answers every confirmation prompt with yes.
	AssumeYes bool `koanf:"yes"`

	CatalogPath string       `koanf:"catalog_path"`
	Limits      LimitsConfig `koanf:"limits"`

	MetricsAddr string `koanf:"metrics_addr"`
	LogFormat   string `koanf:"log_format"`
	LogLevel    string `koanf:"log_level"`
}

// StorageConfig selects the document store.
type StorageConfig struct {
	Backend        string `koanf:"backend"`
	DataDir        string `koanf:"data_dir"`
	SQLitePath     string `koanf:"sqlite_path"`
	DatabaseURL    string `koanf:"database_url"`
	ConnectRetries uint64 `koanf:"connect_retries"`
}

// LimitsConfig bounds the quest graph.
type LimitsConfig struct {
	MaxRelations int `koanf:"max_relations"`
	MaxChildren  int `koanf:"max_children"`
}

// StoreConfig converts to the store factory's configuration.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Backend:        c.Storage.Backend,
		DataDir:        c.Storage.DataDir,
		SQLitePath:     c.Storage.SQLitePath,
		DatabaseURL:    c.Storage.DatabaseURL,
		ConnectRetries: c.Storage.ConnectRetries,
	}
}

// QuestLimits converts to the graph limits.
func (c *Config) QuestLimits() quest.Limits {
	return quest.Limits{MaxRelations: c.Limits.MaxRelations, MaxChildren: c.Limits.MaxChildren}
}

// Orphans returns the parsed orphan policy. Call Validate first.
func (c *Config) Orphans() quest.OrphanPolicy {
	p, _ := quest.ParseOrphanPolicy(c.OrphanPolicy)
	return p
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	fail := func(key, format string, args ...any) error {
		return oops.In("config").Code("INVALID_CONFIG").With("key", key).Errorf(format, args...)
	}
	if c.User == "" {
		return fail("user", "user is required (set --user or %sUSER)", EnvPrefix)
	}
	if !slices.Contains(store.Backends(), c.Storage.Backend) {
		return fail("storage.backend", "storage backend must be one of %v, got %q", store.Backends(), c.Storage.Backend)
	}
	if c.Storage.Backend == store.BackendPostgres && c.Storage.DatabaseURL == "" {
		return fail("storage.database_url", "database URL is required for the postgres backend")
	}
	if (c.Storage.Backend == store.BackendFile || c.Storage.Backend == store.BackendSQLite) && c.Storage.DataDir == "" {
		return fail("storage.data_dir", "data directory is required for the %s backend", c.Storage.Backend)
	}
	if _, err := quest.ParseOrphanPolicy(c.OrphanPolicy); err != nil {
		return fail("orphan_policy", "%v", err)
	}
	if c.SaveInterval < 0 {
		return fail("save_interval", "save interval must not be negative")
	}
	if c.Limits.MaxRelations < 1 || c.Limits.MaxChildren < 1 {
		return fail("limits", "limits must be positive")
	}
	if c.LogFormat != logging.FormatJSON && c.LogFormat != logging.FormatText {
		return fail("log_format", "log format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fail("log_level", "unknown log level %q", c.LogLevel)
	}
	return nil
}

// defaults returns the built-in values keyed by koanf path.
func defaults() (map[string]any, error) {
	dataDir, err := xdg.DataDir()
	if err != nil {
		return nil, err
	}
	catalog, err := xdg.CatalogFile()
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"user":                    "",
		"gm_patterns":             []string{},
		"storage.backend":         store.BackendFile,
		"storage.data_dir":        dataDir,
		"storage.sqlite_path":     "",
		"storage.database_url":    "",
		"storage.connect_retries": uint64(5),
		"orphan_policy":           string(quest.OrphanPromote),
		"auto_save":               true,
		"notifications":           true,
		"save_interval":           "30s",
		"yes":                     false,
		"catalog_path":            catalog,
		"limits.max_relations":    quest.DefaultMaxRelations,
		"limits.max_children":     quest.DefaultMaxChildren,
		"metrics_addr":            "",
		"log_format":              logging.FormatText,
		"log_level":               "info",
	}, nil
}

// envOverrides holds QUESTKEEPER_* variables. Nil fields were not set.
type envOverrides struct {
	User          *string        `env:"USER"`
	GMPatterns    []string       `env:"GM_PATTERNS" envSeparator:","`
	Backend       *string        `env:"STORAGE_BACKEND"`
	DataDir       *string        `env:"DATA_DIR"`
	SQLitePath    *string        `env:"SQLITE_PATH"`
	DatabaseURL   *string        `env:"DATABASE_URL"`
	OrphanPolicy  *string        `env:"ORPHAN_POLICY"`
	AutoSave      *bool          `env:"AUTO_SAVE"`
	Notifications *bool          `env:"NOTIFICATIONS"`
	SaveInterval  *time.Duration `env:"SAVE_INTERVAL"`
	CatalogPath   *string        `env:"CATALOG_PATH"`
	MetricsAddr   *string        `env:"METRICS_ADDR"`
	LogFormat     *string        `env:"LOG_FORMAT"`
	LogLevel      *string        `env:"LOG_LEVEL"`
}

func (e *envOverrides) apply(k *koanf.Koanf) error {
	set := func(key string, v any) error {
		if err := k.Set(key, v); err != nil {
			return oops.In("config").With("key", key).Wrap(err)
		}
		return nil
	}
	strs := []struct {
		key string
		val *string
	}{
		{"user", e.User},
		{"storage.backend", e.Backend},
		{"storage.data_dir", e.DataDir},
		{"storage.sqlite_path", e.SQLitePath},
		{"storage.database_url", e.DatabaseURL},
		{"orphan_policy", e.OrphanPolicy},
		{"catalog_path", e.CatalogPath},
		{"metrics_addr", e.MetricsAddr},
		{"log_format", e.LogFormat},
		{"log_level", e.LogLevel},
	}
	for _, s := range strs {
		if s.val != nil {
			if err := set(s.key, *s.val); err != nil {
				return err
			}
		}
	}
	if len(e.GMPatterns) > 0 {
		if err := set("gm_patterns", e.GMPatterns); err != nil {
			return err
		}
	}
	if e.AutoSave != nil {
		if err := set("auto_save", *e.AutoSave); err != nil {
			return err
		}
	}
	if e.Notifications != nil {
		if err := set("notifications", *e.Notifications); err != nil {
			return err
		}
	}
	if e.SaveInterval != nil {
		if err := set("save_interval", e.SaveInterval.String()); err != nil {
			return err
		}
	}
	return nil
}

// flagKeys maps command-line flag names to koanf paths. Flags not listed
// are not configuration.
var flagKeys = map[string]string{
	"user":            "user",
	"gm":              "gm_patterns",
	"storage-backend": "storage.backend",
	"data-dir":        "storage.data_dir",
	"sqlite-path":     "storage.sqlite_path",
	"database-url":    "storage.database_url",
	"orphan-policy":   "orphan_policy",
	"auto-save":       "auto_save",
	"notifications":   "notifications",
	"save-interval":   "save_interval",
	"yes":             "yes",
	"catalog":         "catalog_path",
	"metrics-addr":    "metrics_addr",
	"log-format":      "log_format",
	"log-level":       "log_level",
	"max-relations":   "limits.max_relations",
	"max-children":    "limits.max_children",
	"connect-retries": "storage.connect_retries",
}

// RegisterFlags adds the configuration flags to flags. Flag defaults are
// placeholders; unset flags never override other sources.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "config file path (default: XDG_CONFIG_HOME/questkeeper/config.yaml)")
	flags.StringP("user", "u", "", "acting user id")
	flags.StringSlice("gm", nil, "game master user id pattern (repeatable)")
	flags.String("storage-backend", "", "storage backend: memory, file, sqlite or postgres")
	flags.String("data-dir", "", "data directory (default: XDG_DATA_HOME/questkeeper)")
	flags.String("sqlite-path", "", "SQLite database path (default: <data-dir>/questkeeper.db)")
	flags.String("database-url", "", "PostgreSQL connection string")
	flags.Uint64("connect-retries", 0, "PostgreSQL connection attempts")
	flags.String("orphan-policy", "", "children of a deleted quest: promote, cascade or reject")
	flags.Bool("auto-save", true, "persist every change immediately")
	flags.Bool("notifications", true, "print informational notices")
	flags.Duration("save-interval", 0, "flush interval for serve when auto-save is off")
	flags.BoolP("yes", "y", false, "answer yes to every confirmation")
	flags.String("catalog", "", "item catalog file for reward distribution")
	flags.String("metrics-addr", "", "metrics/health HTTP address for serve (empty = disabled)")
	flags.String("log-format", "", "log format (json or text)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Int("max-relations", 0, "maximum relations per quest")
	flags.Int("max-children", 0, "maximum children per quest")
}

// Load resolves the configuration from every source. flags may be nil.
// An explicit --config file must exist; the default one is optional.
func Load(flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	defs, err := defaults()
	if err != nil {
		return nil, err
	}
	for key, v := range defs {
		if err := k.Set(key, v); err != nil {
			return nil, oops.In("config").With("key", key).Wrap(err)
		}
	}

	path, explicit := "", false
	if flags != nil {
		if f := flags.Lookup("config"); f != nil && f.Value.String() != "" {
			path, explicit = f.Value.String(), true
		}
	}
	if v, ok := os.LookupEnv(EnvPrefix + "CONFIG"); ok && !explicit && v != "" {
		path, explicit = v, true
	}
	if path == "" {
		if path, err = xdg.ConfigFile(); err != nil {
			return nil, err
		}
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.In("config").Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	var overrides envOverrides
	if err := env.ParseWithOptions(&overrides, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, oops.In("config").Code("CONFIG_LOAD_FAILED").Wrapf(err, "parse environment")
	}
	if err := overrides.apply(k); err != nil {
		return nil, err
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.In("config").Code("CONFIG_LOAD_FAILED").Wrapf(err, "apply flags")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.In("config").Code("CONFIG_LOAD_FAILED").Wrapf(err, "decode configuration")
	}
	if cfg.Storage.DatabaseURL == "" {
		cfg.Storage.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	return &cfg, nil
}
