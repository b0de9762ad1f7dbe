package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/xref/internal/facts"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath, opts...)
	require.NoError(t, err)
	require.NoError(t, s.EnsureSchema(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func loc(file string, line, col int) facts.Location {
	return facts.Location{File: file, Line: line, Column: col}
}

func fn(qualified string, line int, params ...string) *facts.FunctionFact {
	return &facts.FunctionFact{
		Name:          qualified,
		QualifiedName: qualified,
		Kind:          facts.KindFunction,
		ReturnType:    "void",
		Parameters:    params,
		Location:      loc("a.cpp", line, 1),
		IsDefinition:  true,
	}
}

func countRows(t *testing.T, s *Store, table string) int {
	t.Helper()
	counts, err := s.Counts(context.Background())
	require.NoError(t, err)
	return counts[table]
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestEnsureSchema_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{
		"functions", "types", "inheritance", "calls", "call_contexts", "call_candidates", "runs",
	} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestEnsureSchema_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.EnsureSchema(context.Background()))
}

func TestNewStore_WALAndForeignKeys(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, s.db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestNewStore_UnknownPolicy(t *testing.T) {
	t.Parallel()
	_, err := NewStore(filepath.Join(t.TempDir(), "x.db"), WithExternalPolicy("maybe"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maybe")
}

// =============================================================================
// Functions & types
// =============================================================================

func TestPutFunction_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.PutFunction(ctx, fn("ns::f", 3, "int"))
	require.NoError(t, err)
	id2, err := s.PutFunction(ctx, fn("ns::f", 3, "int"))
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, countRows(t, s, "functions"))
}

func TestPutFunction_OverloadsAreDistinct(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.PutFunction(ctx, fn("f", 1, "int"))
	require.NoError(t, err)
	b, err := s.PutFunction(ctx, fn("f", 2, "double"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	got, err := s.FunctionsByName(ctx, "f")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "double", got[0].Signature)
	assert.Equal(t, []string{"double"}, got[0].Parameters)
	assert.Equal(t, "int", got[1].Signature)
}

func TestPutFunction_DefinitionReplacesDeclaration(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	decl := fn("f", 1)
	decl.IsDefinition = false
	id, err := s.PutFunction(ctx, decl)
	require.NoError(t, err)

	_, err = s.PutFunction(ctx, fn("f", 20))
	require.NoError(t, err)

	// A later declaration does not downgrade the definition.
	_, err = s.PutFunction(ctx, decl)
	require.NoError(t, err)

	got, err := s.FunctionByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.IsDefinition)
	assert.Equal(t, 20, got.Line)
}

func TestFunctionByID_NotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	_, err := s.FunctionByID(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPutFunction_PointerReturn(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	f := fn("pick", 1)
	f.ReturnType = "int (*)(int)"
	id, err := s.PutFunction(ctx, f)
	require.NoError(t, err)

	got, err := s.FunctionByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.IsFunctionPointer)
	assert.Equal(t, 1, got.PointerLevel)
}

func TestPutType_ForwardDeclarationMerged(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	fwd := &facts.TypeFact{Name: "W", QualifiedName: "ns::W", Kind: facts.KindClass, Location: loc("a.h", 2, 1)}
	id1, err := s.PutType(ctx, fwd)
	require.NoError(t, err)

	def := *fwd
	def.Location = loc("a.cpp", 10, 1)
	def.IsDefinition = true
	id2, err := s.PutType(ctx, &def)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	got, err := s.TypeByName(ctx, "ns::W")
	require.NoError(t, err)
	assert.True(t, got.IsDefinition)
	assert.Equal(t, "a.cpp", got.FilePath)
}

func TestPutInheritance_BasesAndDerived(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"A", "B", "C"} {
		_, err := s.PutType(ctx, &facts.TypeFact{Name: name, QualifiedName: name, Kind: facts.KindClass, IsDefinition: true})
		require.NoError(t, err)
	}
	for _, e := range []facts.InheritanceEdge{
		{Derived: "C", Base: "B", Ordinal: 0},
		{Derived: "C", Base: "A", Ordinal: 1},
	} {
		ok, err := s.PutInheritance(ctx, e)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	// Repeating an edge is a no-op.
	ok, err := s.PutInheritance(ctx, facts.InheritanceEdge{Derived: "C", Base: "B"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, countRows(t, s, "inheritance"))

	c, err := s.TypeByName(ctx, "C")
	require.NoError(t, err)
	bases, err := s.BaseTypes(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, bases, 2)
	assert.Equal(t, "B", bases[0].QualifiedName)
	assert.Equal(t, "A", bases[1].QualifiedName)

	a, err := s.TypeByName(ctx, "A")
	require.NoError(t, err)
	derived, err := s.DerivedTypes(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, derived, 1)
	assert.Equal(t, "C", derived[0].QualifiedName)
}

func TestPutInheritance_RejectPolicy(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, WithExternalPolicy(PolicyReject))
	ctx := context.Background()

	_, err := s.PutType(ctx, &facts.TypeFact{Name: "D", QualifiedName: "D", Kind: facts.KindClass})
	require.NoError(t, err)
	ok, err := s.PutInheritance(ctx, facts.InheritanceEdge{Derived: "D", Base: "std::exception"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, countRows(t, s, "inheritance"))
	assert.Equal(t, 1, countRows(t, s, "types"))
}

// =============================================================================
// Call edges
// =============================================================================

func TestPutCallEdge_ResolvedEndpoints(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	callerID, err := s.PutFunction(ctx, fn("main", 1))
	require.NoError(t, err)
	calleeID, err := s.PutFunction(ctx, fn("helper", 5, "int"))
	require.NoError(t, err)

	res, err := s.PutCallEdge(ctx, &facts.CallFact{
		Caller:          "main",
		Callee:          "helper",
		CalleeSignature: "int",
		Location:        loc("a.cpp", 2, 3),
		ContextStack:    []string{"main"},
	})
	require.NoError(t, err)
	assert.True(t, res.Inserted)
	assert.False(t, res.Rejected)
	assert.Equal(t, Resolved(callerID, "main"), res.Caller)
	assert.Equal(t, Resolved(calleeID, "helper"), res.Callee)
	assert.Positive(t, res.CallID)
}

func TestPutCallEdge_PlaceholderForUnknownCallee(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.PutFunction(ctx, fn("main", 1))
	require.NoError(t, err)

	res, err := s.PutCallEdge(ctx, &facts.CallFact{Caller: "main", Callee: "printf", Location: loc("a.cpp", 2, 3)})
	require.NoError(t, err)
	assert.True(t, res.Inserted)
	assert.True(t, res.Callee.External)
	assert.True(t, res.Callee.Linkable())

	got, err := s.FunctionByID(ctx, res.Callee.ID)
	require.NoError(t, err)
	assert.True(t, got.IsExternal)
	assert.Equal(t, KindExternal, got.Kind)
}

func TestPutCallEdge_SyntheticPlaceholder(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.PutCallEdge(ctx, &facts.CallFact{
		Caller:   "main",
		Callee:   "[virtual] D::f|[virtual] B::f",
		Location: loc("a.cpp", 7, 5),
		Flags:    facts.Flags{Virtual: true},
	})
	require.NoError(t, err)
	require.True(t, res.Inserted)

	got, err := s.FunctionByID(ctx, res.Callee.ID)
	require.NoError(t, err)
	assert.Equal(t, KindSynthetic, got.Kind)
}

func TestPutCallEdge_PlaceholderUpgradedByDeclaration(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.PutCallEdge(ctx, &facts.CallFact{Caller: "main", Callee: "later", Location: loc("a.cpp", 2, 1)})
	require.NoError(t, err)
	require.True(t, res.Callee.External)

	id, err := s.PutFunction(ctx, fn("later", 30))
	require.NoError(t, err)
	assert.Equal(t, res.Callee.ID, id)

	ref, err := s.ResolveFunction(ctx, "later", "")
	require.NoError(t, err)
	assert.Equal(t, Resolved(id, "later"), ref)
}

func TestPutCallEdge_RejectPolicy(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, WithExternalPolicy(PolicyReject))
	ctx := context.Background()

	_, err := s.PutFunction(ctx, fn("main", 1))
	require.NoError(t, err)

	res, err := s.PutCallEdge(ctx, &facts.CallFact{Caller: "main", Callee: "nowhere", Location: loc("a.cpp", 2, 1)})
	require.NoError(t, err)
	assert.True(t, res.Rejected)
	assert.False(t, res.Inserted)
	assert.Equal(t, External(0, "nowhere"), res.Callee)
	assert.Equal(t, 0, countRows(t, s, "calls"))
	assert.Equal(t, 1, countRows(t, s, "functions"))
}

func TestPutCallEdge_RejectPolicyLinksResolvedCandidates(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, WithExternalPolicy(PolicyReject))
	ctx := context.Background()

	for i, name := range []string{"main", "Base::f", "Derived::f"} {
		_, err := s.PutFunction(ctx, fn(name, i+1))
		require.NoError(t, err)
	}

	res, err := s.PutCallEdge(ctx, &facts.CallFact{
		Caller:     "main",
		Callee:     "[virtual] Derived::f|[virtual] Base::f",
		Candidates: []string{"Derived::f", "Base::f"},
		Location:   loc("a.cpp", 7, 5),
		Flags:      facts.Flags{Virtual: true},
	})
	require.NoError(t, err)
	assert.True(t, res.Inserted)
	assert.False(t, res.Rejected)

	got, err := s.FunctionByID(ctx, res.Callee.ID)
	require.NoError(t, err)
	assert.Equal(t, KindSynthetic, got.Kind)
	assert.Equal(t, 2, countRows(t, s, "call_candidates"))

	res, err = s.PutCallEdge(ctx, &facts.CallFact{
		Caller:     "main",
		Callee:     "[virtual] Other::f|[virtual] Base::f",
		Candidates: []string{"Other::f", "Base::f"},
		Location:   loc("a.cpp", 8, 5),
		Flags:      facts.Flags{Virtual: true},
	})
	require.NoError(t, err)
	assert.True(t, res.Rejected)
	assert.Equal(t, 1, countRows(t, s, "calls"))
}

func TestPutCallEdge_DuplicateIsIgnored(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	call := &facts.CallFact{Caller: "main", Callee: "g", Location: loc("a.cpp", 4, 2)}
	first, err := s.PutCallEdge(ctx, call)
	require.NoError(t, err)
	second, err := s.PutCallEdge(ctx, call)
	require.NoError(t, err)

	assert.True(t, first.Inserted)
	assert.False(t, second.Inserted)
	assert.Equal(t, first.CallID, second.CallID)
	assert.Equal(t, 1, countRows(t, s, "calls"))
}

func TestPutCallEdge_GlobalCaller(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.PutCallEdge(ctx, &facts.CallFact{Callee: "init", Location: loc("a.cpp", 1, 10)})
	require.NoError(t, err)
	assert.Equal(t, facts.GlobalCaller, res.Caller.Name)
}

func TestPutCallEdge_ContextsCandidatesAndFlags(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	outerID, err := s.PutFunction(ctx, fn("outer", 1))
	require.NoError(t, err)
	_, err = s.PutFunction(ctx, fn("inner", 2))
	require.NoError(t, err)
	_, err = s.PutFunction(ctx, fn("cb1", 3))
	require.NoError(t, err)
	_, err = s.PutFunction(ctx, fn("cb2", 4))
	require.NoError(t, err)

	_, err = s.PutCallEdge(ctx, &facts.CallFact{
		Caller:       "inner",
		Callee:       "[resolved function pointer] cb2|cb1",
		Candidates:   []string{"cb2", "cb1"},
		Location:     loc("a.cpp", 9, 4),
		Flags:        facts.Flags{FunctionPointer: true, ExceptionPath: true, MacroExpansion: true},
		MacroFile:    "macros.h",
		MacroLine:    12,
		ContextStack: []string{"outer", "inner"},
	})
	require.NoError(t, err)

	edges, err := s.CallsWithin(ctx, outerID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	e := edges[0]
	assert.Equal(t, "inner", e.Caller)
	assert.Equal(t, "[resolved function pointer] cb2|cb1", e.Callee)
	assert.Equal(t, []string{"outer", "inner"}, e.ContextStack)
	assert.Equal(t, []string{"cb2", "cb1"}, e.Candidates)
	assert.True(t, e.Flags.FunctionPointer)
	assert.True(t, e.Flags.ExceptionPath)
	assert.False(t, e.Flags.Virtual)
	require.NotNil(t, e.MacroFile)
	assert.Equal(t, "macros.h", *e.MacroFile)
	require.NotNil(t, e.MacroLine)
	assert.Equal(t, 12, *e.MacroLine)

	cb1, err := s.FunctionsByName(ctx, "cb1")
	require.NoError(t, err)
	viaCandidate, err := s.CallsByCallee(ctx, cb1[0].ID)
	require.NoError(t, err)
	assert.Len(t, viaCandidate, 1)
}

func TestPutCallEdge_ContextResolvesOverloadBySignature(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	fInt, err := s.PutFunction(ctx, fn("f", 1, "int"))
	require.NoError(t, err)
	fDouble, err := s.PutFunction(ctx, fn("f", 5, "double"))
	require.NoError(t, err)

	res, err := s.PutCallEdge(ctx, &facts.CallFact{
		Caller:            "f",
		CallerSignature:   "double",
		Callee:            "g",
		Location:          loc("a.cpp", 6, 5),
		ContextStack:      []string{"f"},
		ContextSignatures: []string{"double"},
	})
	require.NoError(t, err)
	assert.Equal(t, fDouble, res.Caller.ID)

	within, err := s.CallsWithin(ctx, fDouble)
	require.NoError(t, err)
	require.Len(t, within, 1)
	assert.Equal(t, res.CallID, within[0].ID)

	within, err = s.CallsWithin(ctx, fInt)
	require.NoError(t, err)
	assert.Empty(t, within)
}

func TestPutCallEdge_MacroColumnsNullWithoutExpansion(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	res, err := s.PutCallEdge(ctx, &facts.CallFact{
		Caller: "main", Callee: "g", Location: loc("a.cpp", 1, 1),
		MacroFile: "ignored.h", MacroLine: 3,
	})
	require.NoError(t, err)

	edges, err := s.CallsByCaller(ctx, res.Caller.ID)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Nil(t, edges[0].MacroFile)
	assert.Nil(t, edges[0].MacroLine)
}

func TestPutCallEdge_DroppedContextUnderReject(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, WithExternalPolicy(PolicyReject))
	ctx := context.Background()

	_, err := s.PutFunction(ctx, fn("main", 1))
	require.NoError(t, err)
	_, err = s.PutFunction(ctx, fn("g", 2))
	require.NoError(t, err)

	res, err := s.PutCallEdge(ctx, &facts.CallFact{
		Caller: "main", Callee: "g", Location: loc("a.cpp", 3, 1),
		ContextStack: []string{"gone", "main"},
	})
	require.NoError(t, err)
	assert.True(t, res.Inserted)
	assert.Equal(t, 1, res.DroppedContexts)
	assert.Equal(t, 1, countRows(t, s, "call_contexts"))
}

// =============================================================================
// Flush
// =============================================================================

func testUnit() *facts.Unit {
	return &facts.Unit{
		Path: "a.cpp",
		Functions: []facts.FunctionFact{
			*fn("main", 1),
			*fn("helper", 10),
		},
		Types: []facts.TypeFact{
			{Name: "Base", QualifiedName: "Base", Kind: facts.KindClass, IsDefinition: true},
			{Name: "Derived", QualifiedName: "Derived", Kind: facts.KindClass, IsDefinition: true},
		},
		Inheritance: []facts.InheritanceEdge{{Derived: "Derived", Base: "Base"}},
		Calls: []facts.CallFact{
			{Caller: "main", Callee: "helper", Location: loc("a.cpp", 2, 3), ContextStack: []string{"main"}},
			{Caller: "main", Callee: "missing", Location: loc("a.cpp", 3, 3), ContextStack: []string{"main"}},
		},
	}
}

func TestFlush_WritesUnit(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	report, err := s.Flush(ctx, testUnit())
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 2, report.Functions)
	assert.Equal(t, 2, report.Types)
	assert.Equal(t, 1, report.Inheritance)
	assert.Equal(t, 2, report.Calls)
	assert.Equal(t, 1, report.ExternalRefs)
	assert.Zero(t, report.RejectedCalls)

	edges, err := s.CallsByUnit(ctx, "a.cpp")
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, report.RunID, edges[0].RunID)

	runs, err := s.Runs(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, report.RunID, runs[0].ID)
	assert.Equal(t, 2, runs[0].Calls)
}

func TestFlush_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Flush(ctx, testUnit())
	require.NoError(t, err)
	report, err := s.Flush(ctx, testUnit())
	require.NoError(t, err)

	assert.Zero(t, report.Functions)
	assert.Equal(t, 2, report.FunctionsMerged)
	assert.Equal(t, 2, report.TypesMerged)
	assert.Zero(t, report.Calls)
	assert.Equal(t, 2, report.DuplicateCalls)
	assert.Equal(t, 2, countRows(t, s, "calls"))
	assert.Equal(t, 3, countRows(t, s, "functions"))
}

func TestFlush_ReplaceUnit(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Flush(ctx, testUnit())
	require.NoError(t, err)

	u := testUnit()
	u.Calls = u.Calls[:1]
	report, err := s.Flush(ctx, u, ReplaceUnit())
	require.NoError(t, err)
	assert.EqualValues(t, 2, report.ReplacedCalls)
	assert.Equal(t, 1, report.Calls)
	assert.Equal(t, 1, countRows(t, s, "calls"))
	assert.Equal(t, 1, countRows(t, s, "call_contexts"))
}

func TestFlush_SkipUnchanged(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.Flush(ctx, testUnit(), SkipUnchanged())
	require.NoError(t, err)
	assert.False(t, first.Skipped)

	second, err := s.Flush(ctx, testUnit(), SkipUnchanged())
	require.NoError(t, err)
	assert.True(t, second.Skipped)
	assert.Equal(t, first.FactsHash, second.FactsHash)

	runs, err := s.Runs(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestFlush_RejectPolicyReportsUnresolved(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, WithExternalPolicy(PolicyReject))

	report, err := s.Flush(context.Background(), testUnit())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Calls)
	assert.Equal(t, 1, report.RejectedCalls)
	assert.Equal(t, []string{"missing"}, report.Unresolved)
}

func TestComputeUnitHash_OrderIndependent(t *testing.T) {
	t.Parallel()
	a := testUnit()
	b := testUnit()
	b.Functions[0], b.Functions[1] = b.Functions[1], b.Functions[0]
	b.Calls[0], b.Calls[1] = b.Calls[1], b.Calls[0]
	assert.Equal(t, ComputeUnitHash(a), ComputeUnitHash(b))

	b.Calls[0].Line++
	assert.NotEqual(t, ComputeUnitHash(a), ComputeUnitHash(b))
}

// =============================================================================
// Maintenance
// =============================================================================

func TestDeleteUnit(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Flush(ctx, testUnit())
	require.NoError(t, err)

	n, err := s.DeleteUnit(ctx, "a.cpp")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Zero(t, countRows(t, s, "calls"))
	assert.Zero(t, countRows(t, s, "call_contexts"))
	assert.Zero(t, countRows(t, s, "runs"))
	// Declarations outlive their unit's calls.
	assert.Equal(t, 3, countRows(t, s, "functions"))
}

func TestPruneExternals(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Flush(ctx, testUnit())
	require.NoError(t, err)
	_, err = s.DeleteUnit(ctx, "a.cpp")
	require.NoError(t, err)

	n, err := s.PruneExternals(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	ext := true
	left, err := s.Functions(ctx, FunctionFilter{External: &ext})
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestUnitsCalling(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Flush(ctx, testUnit())
	require.NoError(t, err)
	other := &facts.Unit{
		Path:  "b.cpp",
		Calls: []facts.CallFact{{Caller: "main", Callee: "unrelated", Location: loc("b.cpp", 1, 1)}},
	}
	_, err = s.Flush(ctx, other)
	require.NoError(t, err)

	helper, err := s.FunctionsByName(ctx, "helper")
	require.NoError(t, err)
	require.Len(t, helper, 1)

	units, err := s.UnitsCalling(ctx, []int64{helper[0].ID})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.cpp"}, units)
}

// Not parallel: the counters are process-wide.
func TestPutCallEdge_RecordsMetrics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inserted := testutil.ToFloat64(edgesWritten.WithLabelValues("inserted"))
	duplicate := testutil.ToFloat64(edgesWritten.WithLabelValues("duplicate"))
	external := testutil.ToFloat64(externalRows.WithLabelValues(KindExternal))
	synthetic := testutil.ToFloat64(externalRows.WithLabelValues(KindSynthetic))

	_, err := s.PutFunction(ctx, fn("main", 1))
	require.NoError(t, err)
	call := &facts.CallFact{Caller: "main", Callee: "puts", Location: loc("a.cpp", 2, 3)}
	_, err = s.PutCallEdge(ctx, call)
	require.NoError(t, err)
	_, err = s.PutCallEdge(ctx, call)
	require.NoError(t, err)
	_, err = s.PutCallEdge(ctx, &facts.CallFact{
		Caller:   "main",
		Callee:   "[macro] CHECK",
		Location: loc("a.cpp", 3, 3),
		Flags:    facts.Flags{MacroExpansion: true},
	})
	require.NoError(t, err)

	assert.Equal(t, inserted+2, testutil.ToFloat64(edgesWritten.WithLabelValues("inserted")))
	assert.Equal(t, duplicate+1, testutil.ToFloat64(edgesWritten.WithLabelValues("duplicate")))
	assert.Equal(t, external+1, testutil.ToFloat64(externalRows.WithLabelValues(KindExternal)))
	assert.Equal(t, synthetic+1, testutil.ToFloat64(externalRows.WithLabelValues(KindSynthetic)))
}

// Not parallel: the counters are process-wide.
func TestFlush_RollbackRecordsNoMetrics(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.db.Exec(`CREATE TRIGGER fail_runs BEFORE INSERT ON runs
		BEGIN SELECT RAISE(ABORT, 'runs unavailable'); END`)
	require.NoError(t, err)

	inserted := testutil.ToFloat64(edgesWritten.WithLabelValues("inserted"))
	external := testutil.ToFloat64(externalRows.WithLabelValues(KindExternal))

	_, err = s.Flush(ctx, testUnit())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runs unavailable")

	assert.Equal(t, inserted, testutil.ToFloat64(edgesWritten.WithLabelValues("inserted")))
	assert.Equal(t, external, testutil.ToFloat64(externalRows.WithLabelValues(KindExternal)))
	assert.Equal(t, 0, countRows(t, s, "calls"))
	assert.Equal(t, 0, countRows(t, s, "functions"))
}
