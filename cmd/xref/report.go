package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/xref/internal/runtime"
	"github.com/jward/xref/scripts"
)

var (
	flagReportLimit int
	flagScriptsDir  string
)

var reportCmd = &cobra.Command{
	Use:   "report [name]",
	Short: "Run a built-in report, or list them",
	Long: "Runs one of the Risor report scripts against the database. Without a name, lists the available reports. " +
		"--scripts-dir loads reports from disk instead of the built-in set.",
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

var scriptCmd = &cobra.Command{
	Use:   "script <file.risor>",
	Short: "Run a Risor script against the database",
	Long: "Evaluates a Risor script with the graph host functions (callers, callees, calls_within, function, functions, " +
		"types, bases, derived, units_calling, counts, db_query, emit, log) and prints the value of its last expression.",
	Args: cobra.ExactArgs(1),
	RunE: runScript,
}

func init() {
	reportCmd.Flags().IntVar(&flagReportLimit, "limit", 20, "rows per report section")
	reportCmd.Flags().StringVar(&flagScriptsDir, "scripts-dir", "", "load reports from this directory instead of the built-in set")
	scriptCmd.Flags().IntVar(&flagReportLimit, "limit", 20, "value of the script's limit global")
}

func runReport(cmd *cobra.Command, args []string) error {
	opts := []runtime.Option{runtime.WithFS(scripts.FS)}
	if flagScriptsDir != "" {
		opts = []runtime.Option{runtime.WithScriptsDir(flagScriptsDir)}
	}

	if len(args) == 0 {
		names, err := runtime.NewRuntime(nil, opts...).Scripts()
		if err != nil {
			return outputError("report", err)
		}
		return outputResult(cmd, CLIResult{Command: "report", Results: names})
	}
	return evalScript(cmd, "report", args[0]+".risor", opts...)
}

func runScript(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return outputError("script", fmt.Errorf("resolving path %q: %w", args[0], err))
	}
	return evalScript(cmd, "script", filepath.Base(path), runtime.WithScriptsDir(filepath.Dir(path)))
}

// evalScript runs one script over the working directory's database. emit
// output goes to the command's stdout ahead of the result.
func evalScript(cmd *cobra.Command, command, script string, opts ...runtime.Option) error {
	sess, err := cwdSession()
	if err != nil {
		return outputError(command, err)
	}
	e, err := sess.openExisting()
	if err != nil {
		return outputError(command, err)
	}
	defer e.Close()

	opts = append(opts, runtime.WithLogger(sess.logger), runtime.WithOutput(cmd.OutOrStdout()))
	rt := runtime.NewRuntime(e.Store(), opts...)
	result, err := rt.RunScript(cmd.Context(), script, map[string]any{"limit": flagReportLimit})
	if err != nil {
		return outputError(command, err)
	}
	return outputResult(cmd, CLIResult{Command: command, Results: result})
}
