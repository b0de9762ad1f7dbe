package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader provides configuration loading capabilities.
type Loader interface {
	// Load loads configuration from file and environment variables.
	// Priority: defaults → config file → environment variables (env wins)
	Load() (*Config, error)
}

type loader struct {
	rootDir string
	file    string
}

// NewLoader creates a loader that looks for .xref/config.yml under rootDir.
func NewLoader(rootDir string) Loader {
	return &loader{rootDir: rootDir}
}

// NewFileLoader creates a loader for an explicit config file. A missing
// file is an error.
func NewFileLoader(path string) Loader {
	return &loader{file: path}
}

// Load loads configuration with the following priority (highest to lowest):
// 1. Environment variables (XREF_*)
// 2. Config file (.xref/config.yml or .xref/config.yaml)
// 3. Default values
func (l *loader) Load() (*Config, error) {
	v := viper.New()

	if l.file != "" {
		v.SetConfigFile(l.file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(l.rootDir, ".xref"))
	}

	v.SetEnvPrefix("XREF")
	v.AutomaticEnv()
	// XREF_STORE_PATH, XREF_EXTRACT_JOBS, ...
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for _, key := range []string{
		"store.path",
		"store.external_policy",
		"extract.exclude",
		"extract.name_cache_size",
		"extract.jobs",
		"provider.synthesize_externals",
		"log.level",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("store.path", defaults.Store.Path)
	v.SetDefault("store.external_policy", defaults.Store.ExternalPolicy)

	v.SetDefault("extract.exclude", defaults.Extract.Exclude)
	v.SetDefault("extract.name_cache_size", defaults.Extract.NameCacheSize)
	v.SetDefault("extract.jobs", defaults.Extract.Jobs)

	v.SetDefault("provider.synthesize_externals", defaults.Provider.SynthesizeExternals)

	v.SetDefault("log.level", defaults.Log.Level)
}

// LoadConfig loads configuration rooted at the working directory.
func LoadConfig() (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return NewLoader(wd).Load()
}
