// Package xref extracts a C/C++ cross-reference graph and stores it in
// SQLite: functions, classes, inheritance and call edges, each call carrying
// its resolved callee identity, candidate targets, flags and the stack of
// enclosing callables.
//
// # Pipeline
//
// Each source file is one translation unit and goes through three steps:
//
//  1. Parse: a provider turns the file into a semantic tree. The
//     built-in providers are the tree-sitter C/C++ provider and the tree
//     description loader for .xref.yaml and .xref.json files.
//
//  2. Extract: the tree is walked once. Call sites are resolved with a fixed
//     heuristic order (macro, virtual, function pointer, lambda, template,
//     operator, plain reference) into facts.
//
//  3. Flush: the facts of the unit are written to the graph store in one
//     transaction. Endpoints with no stored declaration become explicit
//     external rows or are rejected, depending on the [ExternalPolicy].
//
// # Usage
//
//	e, err := xref.New(".xref/xref.db", xref.WithJobs(8))
//	if err != nil { ... }
//	defer e.Close()
//
//	ctx := context.Background()
//	report, err := e.ExtractDirectory(ctx, "path/to/project")
//
//	q := e.Query()
//	edges, err := q.Callers(ctx, "Base::f")
//
// # Query API
//
// The [QueryBuilder] returned by [Engine.Query] answers:
//
//   - [QueryBuilder.Callers] and [QueryBuilder.Callees]: direct call edges.
//   - [QueryBuilder.CallGraph]: the transitive call graph around a function.
//   - [QueryBuilder.Bases] and [QueryBuilder.Derived]: class hierarchy.
//   - [QueryBuilder.AffectedUnits]: units to re-extract when a function
//     changes.
//
// # Incremental Extraction
//
// Every flush records a run with a hash of the unit's facts. Re-extracting
// an unchanged unit is a no-op, and a changed unit replaces the calls it
// flushed before, so the graph never accumulates duplicates.
package xref
