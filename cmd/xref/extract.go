package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/jward/xref"
)

var (
	flagForce    bool
	flagFull     bool
	flagPrune    bool
	flagJobs     int
	flagQuiet    bool
	flagNoSynth  bool
	flagExcludes []string
)

var extractCmd = &cobra.Command{
	Use:   "extract [path...]",
	Short: "Extract call graph facts from C++ sources",
	Long: "Parses every supported file under the given paths (directories are walked, " +
		"respecting .gitignore inside a git repository) and flushes the facts to the database. " +
		"Units whose facts did not change since the last run are skipped.",
	RunE: runExtract,
}

func init() {
	extractCmd.Flags().BoolVar(&flagForce, "force", false, "delete the database and extract from scratch")
	extractCmd.Flags().BoolVar(&flagFull, "full", false, "reflush units even if their facts are unchanged")
	extractCmd.Flags().BoolVar(&flagPrune, "prune", false, "drop units whose files no longer exist, then unreferenced externals")
	extractCmd.Flags().IntVarP(&flagJobs, "jobs", "j", 0, "units parsed concurrently (default: extract.jobs from config)")
	extractCmd.Flags().BoolVarP(&flagQuiet, "quiet", "q", false, "no progress bar")
	extractCmd.Flags().BoolVar(&flagNoSynth, "no-synthesize", false, "do not synthesize declarations for unresolved callees")
	extractCmd.Flags().StringSliceVar(&flagExcludes, "exclude", nil, "extra glob patterns of files to skip")
}

// extractResult is the JSON payload of the extract command.
type extractResult struct {
	*xref.Report
	Pruned   *xref.PruneReport `json:"pruned,omitempty"`
	Database string            `json:"database"`
	Duration string            `json:"duration"`
}

func runExtract(cmd *cobra.Command, args []string) error {
	start := time.Now()

	targets, err := resolveTargets(args)
	if err != nil {
		return outputError("extract", err)
	}
	sess, err := newSession(targets[0].dir)
	if err != nil {
		return outputError("extract", err)
	}

	if flagForce {
		for _, suffix := range []string{"", "-wal", "-shm"} {
			if err := os.Remove(sess.dbPath + suffix); err != nil && !os.IsNotExist(err) {
				return outputError("extract", fmt.Errorf("removing database for --force: %w", err))
			}
		}
		sess.logger.Info("cleared database", "path", sess.dbPath)
	}

	var opts []xref.Option
	if flagJobs > 0 {
		opts = append(opts, xref.WithJobs(flagJobs))
	}
	if flagFull {
		opts = append(opts, xref.WithIncremental(false))
	}
	if flagNoSynth {
		opts = append(opts, xref.WithSynthesizeExternals(false))
	}
	if len(flagExcludes) > 0 {
		opts = append(opts, xref.WithExcludes(append(sess.cfg.Extract.Exclude, flagExcludes...)...))
	}
	var bar *progressbar.ProgressBar
	if !flagQuiet {
		opts = append(opts, xref.WithProgress(func(done, total int, path string) {
			if bar == nil {
				bar = progressbar.NewOptions(total,
					progressbar.OptionSetWriter(os.Stderr),
					progressbar.OptionSetDescription("extracting"),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
			}
			_ = bar.Set(done)
		}))
	}

	e, err := sess.openEngine(opts...)
	if err != nil {
		return outputError("extract", err)
	}
	defer e.Close()

	var files []string
	for _, t := range targets {
		if t.file != "" {
			files = append(files, t.file)
			continue
		}
		listed, err := e.ListFiles(t.dir)
		if err != nil {
			return outputError("extract", err)
		}
		files = append(files, listed...)
	}

	ctx := cmd.Context()
	report, err := e.ExtractFiles(ctx, files)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return outputError("extract", err)
	}

	result := extractResult{Report: report, Database: sess.dbPath}
	if flagPrune {
		for _, t := range targets {
			if t.file != "" {
				continue
			}
			pruned, err := e.Prune(ctx, t.dir)
			if err != nil {
				return outputError("extract", err)
			}
			result.Pruned = mergePrune(result.Pruned, pruned)
		}
	}
	result.Duration = time.Since(start).Round(time.Millisecond).String()

	return outputResult(cmd, CLIResult{Command: "extract", Results: result})
}

// target is one extract argument: a directory to walk or a single file.
type target struct {
	dir  string
	file string
}

// resolveTargets makes every argument absolute and classifies it. No
// arguments means the working directory.
func resolveTargets(args []string) ([]target, error) {
	if len(args) == 0 {
		args = []string{"."}
	}
	targets := make([]target, 0, len(args))
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("resolving path %q: %w", arg, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("path not found: %s", abs)
		}
		if info.IsDir() {
			targets = append(targets, target{dir: abs})
		} else {
			targets = append(targets, target{dir: filepath.Dir(abs), file: abs})
		}
	}
	return targets, nil
}

func mergePrune(acc, r *xref.PruneReport) *xref.PruneReport {
	if acc == nil {
		return r
	}
	acc.Units = append(acc.Units, r.Units...)
	acc.Calls += r.Calls
	acc.Externals += r.Externals
	return acc
}
