package xref

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodeDepths(cg *CallGraph) map[string]int {
	out := make(map[string]int, len(cg.Nodes))
	for _, n := range cg.Nodes {
		out[n.Function.QualifiedName] = n.Depth
	}
	return out
}

// =============================================================================
// TransitiveCallers
// =============================================================================

func TestTransitiveCallers_Depth1MatchesDirectCallers(t *testing.T) {
	t.Parallel()
	q, _ := newFixtureQuery(t)

	cg, err := q.TransitiveCallers(context.Background(), "leaf", 1)
	require.NoError(t, err)
	require.NotNil(t, cg)

	assert.Equal(t, "leaf", cg.Root.QualifiedName)
	assert.Equal(t, map[string]int{"leaf": 0, "middle": 1, "other": 1}, nodeDepths(cg))
	assert.Len(t, cg.Edges, 2)
	assert.Equal(t, 1, cg.Depth)
}

func TestTransitiveCallers_FollowsChain(t *testing.T) {
	t.Parallel()
	q, _ := newFixtureQuery(t)

	cg, err := q.TransitiveCallers(context.Background(), "leaf", 10)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"leaf": 0, "middle": 1, "other": 1, "top": 2}, nodeDepths(cg))
	assert.Len(t, cg.Edges, 3)
	assert.Equal(t, 2, cg.Depth)
}

func TestTransitiveCallers_DepthZeroIsRootOnly(t *testing.T) {
	t.Parallel()
	q, _ := newFixtureQuery(t)

	cg, err := q.TransitiveCallers(context.Background(), "leaf", 0)
	require.NoError(t, err)
	assert.Len(t, cg.Nodes, 1)
	assert.Empty(t, cg.Edges)
	assert.Zero(t, cg.Depth)
}

func TestTransitiveCallers_NegativeDepth(t *testing.T) {
	t.Parallel()
	q, _ := newFixtureQuery(t)

	_, err := q.TransitiveCallers(context.Background(), "leaf", -1)
	require.Error(t, err)
}

func TestTransitiveCallers_UnknownFunction(t *testing.T) {
	t.Parallel()
	q, _ := newFixtureQuery(t)

	cg, err := q.TransitiveCallers(context.Background(), "nope", 3)
	require.NoError(t, err)
	assert.Nil(t, cg)
}

// =============================================================================
// TransitiveCallees
// =============================================================================

func TestTransitiveCallees_Chain(t *testing.T) {
	t.Parallel()
	q, _ := newFixtureQuery(t)

	cg, err := q.CallGraph(context.Background(), "top", 5, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"top": 0, "middle": 1, "leaf": 2}, nodeDepths(cg))
	require.Len(t, cg.Edges, 2)
	for _, e := range cg.Edges {
		assert.False(t, e.Candidate)
		assert.NotZero(t, e.Line)
	}
}

func TestTransitiveCallees_FollowsCandidates(t *testing.T) {
	t.Parallel()
	q, _ := newFixtureQuery(t)

	cg, err := q.TransitiveCallees(context.Background(), "run_virtual", 1)
	require.NoError(t, err)
	depths := nodeDepths(cg)
	assert.Equal(t, 1, depths["Derived::f"])
	assert.Equal(t, 1, depths["Base::f"])
	assert.Equal(t, 1, depths["[virtual] Derived::f|[virtual] Base::f"])

	var candidates int
	for _, e := range cg.Edges {
		if e.Candidate {
			candidates++
			assert.Equal(t, 12, e.Line)
		}
	}
	assert.Equal(t, 2, candidates)
}
