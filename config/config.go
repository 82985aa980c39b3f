// Package config implements configuration document parsing and
// validation for the association engine, in the shape of OPA's
// config.ParseConfig: a small typed document with defaults injected
// after parsing rather than baked into zero values.
package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Config is the document the engine starts with: which catalog to talk
// to, how deep to recurse, and per-caltype howmany overrides.
type Config struct {
	Catalog CatalogConfig     `yaml:"catalog" json:"catalog"`
	Log     LogConfig         `yaml:"log" json:"log"`
	Recurse RecurseConfig     `yaml:"recurse" json:"recurse"`
	Howmany map[string]int    `yaml:"howmany" json:"howmany"`
	Labels  map[string]string `yaml:"labels" json:"labels"`
}

// CatalogConfig names the catalog connection: dialect selects the
// sqlbuilder.Flavor and SQL driver, DSN is the driver-specific connection
// string.
type CatalogConfig struct {
	Dialect string `yaml:"dialect" json:"dialect"`
	DSN     string `yaml:"dsn" json:"dsn"`
}

// LogConfig controls the logging package's level/format.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// RecurseConfig holds the "calibrations of calibrations" recursion depths
// for the live and cache-backed paths (defaults 1 and 4). The assoc and
// assoc/cache packages do not read it: their depth bounds are fixed in code.
type RecurseConfig struct {
	Live  int `yaml:"live" json:"live"`
	Cache int `yaml:"cache" json:"cache"`
}

const (
	defaultDialect    = "postgres"
	defaultLogLevel   = "info"
	defaultLogFormat  = "pretty"
	defaultLiveDepth  = 1
	defaultCacheDepth = 4
)

// ParseConfig parses raw YAML (or JSON, which is a YAML subset) into a
// Config and injects defaults for anything left unset, the way
// config.ParseConfig validates and injects defaults for OPA's config
// document. id is stamped into Labels["id"] for log correlation.
func ParseConfig(raw []byte, id string) (*Config, error) {
	var c Config
	if len(raw) > 0 {
		if err := yaml.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}
	if err := c.validateAndInjectDefaults(id); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validateAndInjectDefaults(id string) error {
	if c.Catalog.Dialect == "" {
		c.Catalog.Dialect = defaultDialect
	}
	switch c.Catalog.Dialect {
	case "postgres", "mysql", "mssql", "sqlite":
	default:
		return fmt.Errorf("config: unsupported catalog dialect %q", c.Catalog.Dialect)
	}

	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = defaultLogFormat
	}

	if c.Recurse.Live <= 0 {
		c.Recurse.Live = defaultLiveDepth
	}
	if c.Recurse.Cache <= 0 {
		c.Recurse.Cache = defaultCacheDepth
	}

	if c.Howmany == nil {
		c.Howmany = map[string]int{}
	}
	if c.Labels == nil {
		c.Labels = map[string]string{}
	}
	c.Labels["id"] = id

	return nil
}

// HowmanyFor returns the configured howmany override for caltype, or
// defaultVal when none is configured (a zero or negative override is
// treated as "not configured", since a rule can never usefully return
// zero or fewer candidates).
func (c Config) HowmanyFor(caltype string, defaultVal int) int {
	if v, ok := c.Howmany[caltype]; ok && v > 0 {
		return v
	}
	return defaultVal
}
