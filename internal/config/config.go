package config

import (
	"log/slog"
	"runtime"

	"github.com/jward/xref/internal/extract"
	"github.com/jward/xref/internal/store"
)

// Config is the complete xref configuration. It is loaded from
// .xref/config.yml with XREF_* environment overrides.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Extract  ExtractConfig  `yaml:"extract" mapstructure:"extract"`
	Provider ProviderConfig `yaml:"provider" mapstructure:"provider"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig locates the graph database.
type StoreConfig struct {
	Path           string `yaml:"path" mapstructure:"path"`
	ExternalPolicy string `yaml:"external_policy" mapstructure:"external_policy"` // "placeholder" or "reject"
}

// ExtractConfig tunes the traversal.
type ExtractConfig struct {
	Exclude       []string `yaml:"exclude" mapstructure:"exclude"` // glob patterns matched against node file paths
	NameCacheSize int      `yaml:"name_cache_size" mapstructure:"name_cache_size"`
	Jobs          int      `yaml:"jobs" mapstructure:"jobs"` // units parsed concurrently
}

// ProviderConfig configures the tree-sitter provider.
type ProviderConfig struct {
	SynthesizeExternals bool `yaml:"synthesize_externals" mapstructure:"synthesize_externals"`
}

// LogConfig configures the CLI logger.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Path:           ".xref/xref.db",
			ExternalPolicy: string(store.PolicyPlaceholder),
		},
		Extract: ExtractConfig{
			Exclude:       append([]string(nil), extract.DefaultExcludes...),
			NameCacheSize: extract.DefaultNameCacheSize,
			Jobs:          runtime.NumCPU(),
		},
		Provider: ProviderConfig{
			SynthesizeExternals: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Policy returns the configured external policy.
func (c *Config) Policy() store.ExternalPolicy {
	return store.ExternalPolicy(c.Store.ExternalPolicy)
}

// SlogLevel parses the configured log level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	err := lvl.UnmarshalText([]byte(c.Log.Level))
	return lvl, err
}
