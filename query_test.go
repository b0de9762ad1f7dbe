package xref

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFixtureQuery extracts the fixture files and returns the engine's
// query builder with the fixture directory.
func newFixtureQuery(t *testing.T) (*QueryBuilder, string) {
	t.Helper()
	e := newTestEngine(t)
	root := copyFixtures(t)
	report, err := e.ExtractDirectory(context.Background(), root)
	require.NoError(t, err)
	require.NoError(t, report.Err())
	return e.Query(), root
}

func callers(edges []*CallEdge) []string {
	var out []string
	for _, e := range edges {
		out = append(out, e.Caller)
	}
	return out
}

func TestQuery_CallersAndCallees(t *testing.T) {
	t.Parallel()
	q, _ := newFixtureQuery(t)
	ctx := context.Background()

	edges, err := q.Callers(ctx, "leaf")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"middle", "other"}, callers(edges))

	edges, err = q.Callees(ctx, "top")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "middle", edges[0].Callee)
	assert.Equal(t, []string{"top"}, edges[0].ContextStack)
}

func TestQuery_UnknownFunction(t *testing.T) {
	t.Parallel()
	q, _ := newFixtureQuery(t)
	ctx := context.Background()

	edges, err := q.Callers(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, edges)

	edges, err = q.Callees(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, edges)

	edges, err = q.CallsWithin(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, edges)
}

func TestQuery_CallsWithin(t *testing.T) {
	t.Parallel()
	q, _ := newFixtureQuery(t)

	edges, err := q.CallsWithin(context.Background(), "middle")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "leaf", edges[0].Callee)
}

func TestQuery_FunctionsAndTypes(t *testing.T) {
	t.Parallel()
	q, _ := newFixtureQuery(t)
	ctx := context.Background()

	declared := false
	fns, err := q.Functions(ctx, FunctionFilter{Like: "%::f", External: &declared})
	require.NoError(t, err)
	var names []string
	for _, f := range fns {
		names = append(names, f.QualifiedName)
	}
	assert.Equal(t, []string{"Base::f", "Derived::f"}, names)
	assert.True(t, fns[0].IsVirtual)

	types, err := q.Types(ctx, "")
	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.Equal(t, "Base", types[0].QualifiedName)
	assert.Equal(t, "Derived", types[1].QualifiedName)
}

func TestQuery_AffectedUnits(t *testing.T) {
	t.Parallel()
	q, root := newFixtureQuery(t)

	units, err := q.AffectedUnits(context.Background(), "leaf")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "chain.cpp")}, units)

	units, err = q.AffectedUnits(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, units)
}

func TestQuery_CallsInUnit(t *testing.T) {
	t.Parallel()
	q, root := newFixtureQuery(t)

	edges, err := q.CallsInUnit(context.Background(), filepath.Join(root, "chain.cpp"))
	require.NoError(t, err)
	assert.Len(t, edges, 3)
}

func TestQuery_RunsAndCounts(t *testing.T) {
	t.Parallel()
	q, root := newFixtureQuery(t)
	ctx := context.Background()

	runs, err := q.Runs(ctx, 0)
	require.NoError(t, err)
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, runs, len(entries))

	c, err := q.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(entries), c["runs"])
	assert.Equal(t, 1, c["inheritance"])
}
