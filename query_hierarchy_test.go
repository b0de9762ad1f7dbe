package xref

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hierarchySource = `struct A {};
struct B : A {};
struct C : B {};
struct D : A {};
`

func newHierarchyQuery(t *testing.T) *QueryBuilder {
	t.Helper()
	e := newTestEngine(t)
	_, err := e.ExtractSource(context.Background(), "h.cpp", []byte(hierarchySource))
	require.NoError(t, err)
	return e.Query()
}

func relationNames(rels []*TypeRelation) map[string]int {
	out := make(map[string]int, len(rels))
	for _, r := range rels {
		out[r.Type.QualifiedName] = r.Depth
	}
	return out
}

func TestBases(t *testing.T) {
	t.Parallel()
	q := newHierarchyQuery(t)
	ctx := context.Background()

	rels, err := q.Bases(ctx, "C", false)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"B": 1}, relationNames(rels))

	rels, err = q.Bases(ctx, "C", true)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"B": 1, "A": 2}, relationNames(rels))
}

func TestDerived(t *testing.T) {
	t.Parallel()
	q := newHierarchyQuery(t)
	ctx := context.Background()

	rels, err := q.Derived(ctx, "A", false)
	require.NoError(t, err)
	require.Len(t, rels, 2)
	assert.Equal(t, "B", rels[0].Type.QualifiedName)
	assert.Equal(t, "D", rels[1].Type.QualifiedName)

	rels, err = q.Derived(ctx, "A", true)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"B": 1, "D": 1, "C": 2}, relationNames(rels))
}

func TestHierarchy_UnknownType(t *testing.T) {
	t.Parallel()
	q := newHierarchyQuery(t)

	rels, err := q.Bases(context.Background(), "Nope", true)
	require.NoError(t, err)
	assert.Nil(t, rels)
}
