package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jward/xref/internal/extract"
)

var (
	// ErrInvalidPolicy indicates an unknown external policy.
	ErrInvalidPolicy = errors.New("invalid external policy")

	// ErrEmptyStorePath indicates a missing database path.
	ErrEmptyStorePath = errors.New("empty store path")

	// ErrInvalidExclude indicates an exclude pattern that does not compile.
	ErrInvalidExclude = errors.New("invalid exclude pattern")

	// ErrInvalidJobs indicates a non-positive concurrency setting.
	ErrInvalidJobs = errors.New("invalid jobs")

	// ErrInvalidLevel indicates an unknown log level.
	ErrInvalidLevel = errors.New("invalid log level")
)

// Validate checks that the configuration is complete. All problems are
// reported together.
func Validate(cfg *Config) error {
	var errs []error

	if strings.TrimSpace(cfg.Store.Path) == "" {
		errs = append(errs, fmt.Errorf("%w: store.path is required", ErrEmptyStorePath))
	}
	if !cfg.Policy().Valid() {
		errs = append(errs, fmt.Errorf("%w: must be 'placeholder' or 'reject', got '%s'", ErrInvalidPolicy, cfg.Store.ExternalPolicy))
	}
	if _, err := extract.CompileExcludes(cfg.Extract.Exclude); err != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrInvalidExclude, err))
	}
	if cfg.Extract.Jobs <= 0 {
		errs = append(errs, fmt.Errorf("%w: jobs must be positive, got %d", ErrInvalidJobs, cfg.Extract.Jobs))
	}
	if cfg.Extract.NameCacheSize < 0 {
		errs = append(errs, fmt.Errorf("name_cache_size must not be negative, got %d", cfg.Extract.NameCacheSize))
	}
	if _, err := cfg.SlogLevel(); err != nil {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLevel, cfg.Log.Level))
	}

	return errors.Join(errs...)
}
