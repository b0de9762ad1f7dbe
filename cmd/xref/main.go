package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jward/xref"
	"github.com/jward/xref/internal/config"
)

var (
	flagDB          string
	flagFormat      string
	flagConfig      string
	flagVerbose     bool
	flagMetricsFile string
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "xref",
	Short:         "C++ cross-reference extraction",
	Long:          "xref parses C++ translation units, extracts functions, types, inheritance and call edges, and stores them as a queryable SQLite graph.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return writeMetrics(flagMetricsFile)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database path (default: store.path from config, relative to repo root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: .xref/config.yml under the repo root)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log at debug level")
	rootCmd.PersistentFlags().StringVar(&flagMetricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")

	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(scriptCmd)
}

// session is the resolved configuration of one command invocation.
type session struct {
	cfg      *config.Config
	repoRoot string
	dbPath   string
	logger   *slog.Logger
}

// newSession loads configuration for a command working under startDir and
// builds the logger.
func newSession(startDir string) (*session, error) {
	repoRoot := findRepoRoot(startDir)

	var loader config.Loader
	if flagConfig != "" {
		loader = config.NewFileLoader(flagConfig)
	} else {
		loader = config.NewLoader(repoRoot)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, err
	}

	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	if flagVerbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	return &session{
		cfg:      cfg,
		repoRoot: repoRoot,
		dbPath:   resolveDBPath(repoRoot, cfg.Store.Path),
		logger:   logger,
	}, nil
}

// openEngine opens the engine over the session's database with the loaded
// configuration applied.
func (s *session) openEngine(opts ...xref.Option) (*xref.Engine, error) {
	base := []xref.Option{xref.WithConfig(s.cfg), xref.WithLogger(s.logger)}
	e, err := xref.New(s.dbPath, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", s.dbPath, err)
	}
	return e, nil
}

// openExisting is openEngine for read commands: the database must exist.
func (s *session) openExisting() (*xref.Engine, error) {
	if _, err := os.Stat(s.dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'xref extract' first)", s.dbPath)
	}
	return s.openEngine()
}

// cwdSession is newSession rooted at the working directory.
func cwdSession() (*session, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	return newSession(cwd)
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns the --db flag path if set, else the configured
// path. Relative paths are taken from the repo root.
func resolveDBPath(repoRoot, configured string) string {
	p := configured
	if flagDB != "" {
		p = flagDB
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(repoRoot, p)
}

func validateFormat(format string) error {
	switch format {
	case "json", "text":
		return nil
	default:
		return fmt.Errorf("invalid --format %q: must be json or text", format)
	}
}

// writeMetrics dumps the default Prometheus registry in text exposition
// format. An empty path is a no-op.
func writeMetrics(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}
