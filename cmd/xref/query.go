package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/xref"
)

var (
	flagFuncLimit  int
	flagRunsLimit  int
	flagLike       string
	flagKind       string
	flagExternal   string
	flagTransitive bool
	flagDepth      int
	flagCallers    bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the call graph",
	Long:  "Run queries against an extracted database. Function names match either the qualified name (ns::Class::method) or the plain name.",
}

func init() {
	queryCmd.AddCommand(callersCmd)
	queryCmd.AddCommand(calleesCmd)
	queryCmd.AddCommand(withinCmd)
	queryCmd.AddCommand(functionCmd)
	queryCmd.AddCommand(functionsCmd)
	queryCmd.AddCommand(typesCmd)
	queryCmd.AddCommand(basesCmd)
	queryCmd.AddCommand(derivedCmd)
	queryCmd.AddCommand(graphCmd)
	queryCmd.AddCommand(affectedCmd)
	queryCmd.AddCommand(unitCmd)
	queryCmd.AddCommand(runsCmd)
	queryCmd.AddCommand(countsCmd)

	functionsCmd.Flags().StringVar(&flagLike, "like", "", "SQL LIKE pattern on the qualified name")
	functionsCmd.Flags().StringVar(&flagKind, "kind", "", "filter by kind (function, method, constructor, external, synthetic, ...)")
	functionsCmd.Flags().StringVar(&flagExternal, "external", "", "filter by external flag: true|false")
	functionsCmd.Flags().IntVar(&flagFuncLimit, "limit", 0, "maximum rows (0 for all)")

	typesCmd.Flags().StringVar(&flagLike, "like", "", "SQL LIKE pattern on the qualified name")

	basesCmd.Flags().BoolVar(&flagTransitive, "transitive", false, "follow bases of bases")
	derivedCmd.Flags().BoolVar(&flagTransitive, "transitive", false, "follow derived classes of derived classes")

	graphCmd.Flags().IntVar(&flagDepth, "depth", 5, "maximum traversal depth (0-100)")
	graphCmd.Flags().BoolVar(&flagCallers, "callers", false, "walk callers instead of callees")

	runsCmd.Flags().IntVar(&flagRunsLimit, "limit", 20, "number of runs")
}

// --- Edge queries ---

var callersCmd = &cobra.Command{
	Use:   "callers <function>",
	Short: "List call sites that reach a function, including as a dispatch candidate",
	Args:  cobra.ExactArgs(1),
	RunE: withQuery("callers", func(cmd *cobra.Command, q *xref.QueryBuilder, args []string) (any, error) {
		return q.Callers(cmd.Context(), args[0])
	}),
}

var calleesCmd = &cobra.Command{
	Use:   "callees <function>",
	Short: "List the calls a function makes",
	Args:  cobra.ExactArgs(1),
	RunE: withQuery("callees", func(cmd *cobra.Command, q *xref.QueryBuilder, args []string) (any, error) {
		return q.Callees(cmd.Context(), args[0])
	}),
}

var withinCmd = &cobra.Command{
	Use:   "within <function>",
	Short: "List calls whose context stack contains a function, including calls in its lambdas",
	Args:  cobra.ExactArgs(1),
	RunE: withQuery("within", func(cmd *cobra.Command, q *xref.QueryBuilder, args []string) (any, error) {
		return q.CallsWithin(cmd.Context(), args[0])
	}),
}

var unitCmd = &cobra.Command{
	Use:   "unit <path>",
	Short: "List the calls flushed for one translation unit",
	Args:  cobra.ExactArgs(1),
	RunE: withQuery("unit", func(cmd *cobra.Command, q *xref.QueryBuilder, args []string) (any, error) {
		return q.CallsInUnit(cmd.Context(), args[0])
	}),
}

var affectedCmd = &cobra.Command{
	Use:   "affected <function>",
	Short: "List units that call a function and need re-extraction when it changes",
	Args:  cobra.ExactArgs(1),
	RunE: withQuery("affected", func(cmd *cobra.Command, q *xref.QueryBuilder, args []string) (any, error) {
		return q.AffectedUnits(cmd.Context(), args[0])
	}),
}

var graphCmd = &cobra.Command{
	Use:   "graph <function>",
	Short: "Transitive callees (or callers with --callers) up to --depth",
	Args:  cobra.ExactArgs(1),
	RunE: withQuery("graph", func(cmd *cobra.Command, q *xref.QueryBuilder, args []string) (any, error) {
		return q.CallGraph(cmd.Context(), args[0], flagDepth, flagCallers)
	}),
}

// --- Entity queries ---

var functionCmd = &cobra.Command{
	Use:   "function <name>",
	Short: "Show every declaration matching a name",
	Args:  cobra.ExactArgs(1),
	RunE: withQuery("function", func(cmd *cobra.Command, q *xref.QueryBuilder, args []string) (any, error) {
		return q.Function(cmd.Context(), args[0])
	}),
}

var functionsCmd = &cobra.Command{
	Use:   "functions",
	Short: "List functions",
	Args:  cobra.NoArgs,
	RunE: withQuery("functions", func(cmd *cobra.Command, q *xref.QueryBuilder, args []string) (any, error) {
		f := xref.FunctionFilter{Kind: flagKind, Like: flagLike, Limit: uint64(max(flagFuncLimit, 0))}
		switch flagExternal {
		case "":
		case "true", "false":
			ext := flagExternal == "true"
			f.External = &ext
		default:
			return nil, fmt.Errorf("invalid --external %q: must be true or false", flagExternal)
		}
		return q.Functions(cmd.Context(), f)
	}),
}

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List classes and structs",
	Args:  cobra.NoArgs,
	RunE: withQuery("types", func(cmd *cobra.Command, q *xref.QueryBuilder, args []string) (any, error) {
		return q.Types(cmd.Context(), flagLike)
	}),
}

var basesCmd = &cobra.Command{
	Use:   "bases <type>",
	Short: "List the base classes of a type",
	Args:  cobra.ExactArgs(1),
	RunE: withQuery("bases", func(cmd *cobra.Command, q *xref.QueryBuilder, args []string) (any, error) {
		return q.Bases(cmd.Context(), args[0], flagTransitive)
	}),
}

var derivedCmd = &cobra.Command{
	Use:   "derived <type>",
	Short: "List the classes deriving from a type",
	Args:  cobra.ExactArgs(1),
	RunE: withQuery("derived", func(cmd *cobra.Command, q *xref.QueryBuilder, args []string) (any, error) {
		return q.Derived(cmd.Context(), args[0], flagTransitive)
	}),
}

// --- Store queries ---

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent flush runs, newest first",
	Args:  cobra.NoArgs,
	RunE: withQuery("runs", func(cmd *cobra.Command, q *xref.QueryBuilder, args []string) (any, error) {
		return q.Runs(cmd.Context(), uint64(max(flagRunsLimit, 0)))
	}),
}

var countsCmd = &cobra.Command{
	Use:   "counts",
	Short: "Row counts of each graph table",
	Args:  cobra.NoArgs,
	RunE: withQuery("counts", func(cmd *cobra.Command, q *xref.QueryBuilder, args []string) (any, error) {
		return q.Counts(cmd.Context())
	}),
}

// --- Helpers ---

type queryFunc func(cmd *cobra.Command, q *xref.QueryBuilder, args []string) (any, error)

// withQuery opens the database, runs fn and writes its result under the
// command envelope.
func withQuery(command string, fn queryFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		sess, err := cwdSession()
		if err != nil {
			return outputError(command, err)
		}
		e, err := sess.openExisting()
		if err != nil {
			return outputError(command, err)
		}
		defer e.Close()

		results, err := fn(cmd, e.Query(), args)
		if err != nil {
			return outputError(command, err)
		}
		return outputResult(cmd, CLIResult{Command: command, Results: results})
	}
}

// outputResult writes a CLIResult to the command's stdout in the selected
// format.
func outputResult(cmd *cobra.Command, result CLIResult) error {
	w := cmd.OutOrStdout()
	if flagFormat == "text" {
		return formatText(w, result.Results)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}
