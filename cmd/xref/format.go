package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/jward/xref"
)

// formatText writes results as aligned columns. Values without a dedicated
// layout fall back to indented JSON.
func formatText(w io.Writer, results any) error {
	switch r := results.(type) {
	case []*xref.CallEdge:
		formatCallEdgesText(w, r)
	case []*xref.Function:
		formatFunctionsText(w, r)
	case []*xref.Type:
		formatTypesText(w, r)
	case []*xref.TypeRelation:
		formatRelationsText(w, r)
	case *xref.CallGraph:
		formatCallGraphText(w, r)
	case []*xref.Run:
		formatRunsText(w, r)
	case map[string]int:
		formatCountsText(w, r)
	case []string:
		for _, s := range r {
			fmt.Fprintln(w, s)
		}
	case extractResult:
		formatExtractText(w, r)
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	return nil
}

// formatCallEdgesText formats call edges as aligned columns.
func formatCallEdgesText(w io.Writer, edges []*xref.CallEdge) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CALLER\tCALLEE\tLOCATION\tFLAGS")
	for _, e := range edges {
		callee := e.Callee
		if len(e.Candidates) > 0 {
			callee = fmt.Sprintf("%s {%s}", e.Callee, strings.Join(e.Candidates, ", "))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s:%d:%d\t%s\n",
			e.Caller, callee, e.FilePath, e.Line, e.Column, flagString(e.Flags))
	}
	tw.Flush()
}

func flagString(f xref.CallFlags) string {
	var set []string
	for _, flag := range []struct {
		on   bool
		name string
	}{
		{f.Virtual, "virtual"},
		{f.TemplateInstantiation, "template"},
		{f.MacroExpansion, "macro"},
		{f.FunctionPointer, "fnptr"},
		{f.ExceptionPath, "exception"},
		{f.DynamicCast, "dynamic_cast"},
		{f.Typeid, "typeid"},
		{f.Async, "async"},
	} {
		if flag.on {
			set = append(set, flag.name)
		}
	}
	return strings.Join(set, ",")
}

// formatFunctionsText formats functions as aligned columns.
func formatFunctionsText(w io.Writer, fns []*xref.Function) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSIGNATURE\tKIND\tLOCATION")
	for _, f := range fns {
		location := "-"
		if f.FilePath != "" {
			location = fmt.Sprintf("%s:%d", f.FilePath, f.Line)
		}
		fmt.Fprintf(tw, "%d\t%s\t(%s)\t%s\t%s\n", f.ID, f.QualifiedName, f.Signature, f.Kind, location)
	}
	tw.Flush()
}

// formatTypesText formats types as aligned columns.
func formatTypesText(w io.Writer, types []*xref.Type) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tKIND\tLOCATION")
	for _, t := range types {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s:%d\n", t.ID, t.QualifiedName, t.Kind, t.FilePath, t.Line)
	}
	tw.Flush()
}

// formatRelationsText indents each type by its inheritance distance.
func formatRelationsText(w io.Writer, rels []*xref.TypeRelation) {
	for _, r := range rels {
		fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", r.Depth-1), r.Type.QualifiedName)
	}
}

// formatCallGraphText lists the graph's functions by depth, then its edges.
func formatCallGraphText(w io.Writer, g *xref.CallGraph) {
	if g == nil {
		return
	}
	names := make(map[int64]string, len(g.Nodes))
	fmt.Fprintf(w, "Call graph of %s (depth %d)\n\n", g.Root.QualifiedName, g.Depth)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DEPTH\tFUNCTION")
	for _, n := range g.Nodes {
		names[n.Function.ID] = n.Function.QualifiedName
		fmt.Fprintf(tw, "%d\t%s\n", n.Depth, n.Function.QualifiedName)
	}
	tw.Flush()

	if len(g.Edges) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CALLER\tCALLEE\tLOCATION")
	for _, e := range g.Edges {
		callee := names[e.CalleeID]
		if e.Candidate {
			callee += " (candidate)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s:%d:%d\n", names[e.CallerID], callee, e.File, e.Line, e.Column)
	}
	tw.Flush()
}

// formatRunsText formats flush runs as aligned columns.
func formatRunsText(w io.Writer, runs []*xref.Run) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tUNIT\tFINISHED\tFUNCTIONS\tTYPES\tCALLS\tREJECTED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			r.ID, r.UnitPath, r.FinishedAt.Format("2006-01-02 15:04:05"), r.Functions, r.Types, r.Calls, r.Rejected)
	}
	tw.Flush()
}

// formatCountsText prints one table per line, sorted by name.
func formatCountsText(w io.Writer, counts map[string]int) {
	tables := make([]string, 0, len(counts))
	for table := range counts {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, table := range tables {
		fmt.Fprintf(tw, "%s\t%d\n", table, counts[table])
	}
	tw.Flush()
}

// formatExtractText summarizes an extraction batch.
func formatExtractText(w io.Writer, r extractResult) {
	fmt.Fprintf(w, "Extracted %d units (%d unchanged, %d failed, %d excluded) in %s\n",
		r.Extracted, r.Unchanged, r.Failed, len(r.Excluded), r.Duration)
	fmt.Fprintf(w, "Functions: %d  Types: %d  Calls: %d  External refs: %d  Rejected: %d  Unresolved: %d\n",
		r.Functions, r.Types, r.Calls, r.ExternalRefs, r.RejectedCalls, r.UnresolvedCalls)
	for _, u := range r.Units {
		if u.Err != nil {
			fmt.Fprintf(w, "  FAILED %s: %s\n", u.Path, u.Err)
		}
	}
	if r.Pruned != nil {
		fmt.Fprintf(w, "Pruned %d units (%d calls), %d externals\n", len(r.Pruned.Units), r.Pruned.Calls, r.Pruned.Externals)
	}
	fmt.Fprintf(w, "Database: %s\n", r.Database)
}
