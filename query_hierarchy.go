package xref

import (
	"context"
	"fmt"
)

// TypeRelation is a type reached from the queried one, with its distance in
// inheritance steps.
type TypeRelation struct {
	Type  *Type `json:"type"`
	Depth int   `json:"depth"`
}

// Bases returns the base classes of name. With transitive set, bases of
// bases follow, breadth first, each type reported once at its shortest
// distance. Returns nil with no error if the type does not exist.
func (q *QueryBuilder) Bases(ctx context.Context, name string, transitive bool) ([]*TypeRelation, error) {
	rels, err := q.hierarchy(ctx, name, transitive, q.store.BaseTypes)
	if err != nil {
		return nil, fmt.Errorf("bases: %w", err)
	}
	return rels, nil
}

// Derived returns the classes that derive from name, optionally
// transitively. Returns nil with no error if the type does not exist.
func (q *QueryBuilder) Derived(ctx context.Context, name string, transitive bool) ([]*TypeRelation, error) {
	rels, err := q.hierarchy(ctx, name, transitive, q.store.DerivedTypes)
	if err != nil {
		return nil, fmt.Errorf("derived: %w", err)
	}
	return rels, nil
}

func (q *QueryBuilder) hierarchy(ctx context.Context, name string, transitive bool,
	step func(context.Context, int64) ([]*Type, error)) ([]*TypeRelation, error) {
	root, err := q.typeByName(ctx, name)
	if err != nil || root == nil {
		return nil, err
	}

	var out []*TypeRelation
	visited := map[int64]bool{root.ID: true}
	frontier := []*Type{root}
	for depth := 1; len(frontier) > 0; depth++ {
		var next []*Type
		for _, t := range frontier {
			related, err := step(ctx, t.ID)
			if err != nil {
				return nil, err
			}
			for _, r := range related {
				if visited[r.ID] {
					continue
				}
				visited[r.ID] = true
				out = append(out, &TypeRelation{Type: r, Depth: depth})
				next = append(next, r)
			}
		}
		if !transitive {
			break
		}
		frontier = next
	}
	return out, nil
}
