package xref

import (
	"context"
	"errors"
	"fmt"

	"github.com/jward/xref/internal/store"
)

// QueryBuilder provides the read-side API over the Store.
type QueryBuilder struct {
	store *store.Store
}

// functionIDs resolves name to the IDs of every matching function, i.e.
// all overloads and all functions with that plain name.
func (q *QueryBuilder) functionIDs(ctx context.Context, name string) ([]int64, error) {
	fns, err := q.store.FunctionsByName(ctx, name)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(fns))
	for i, f := range fns {
		ids[i] = f.ID
	}
	return ids, nil
}

// Function returns the functions named name, by qualified or plain name.
func (q *QueryBuilder) Function(ctx context.Context, name string) ([]*Function, error) {
	fns, err := q.store.FunctionsByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("function: %w", err)
	}
	return fns, nil
}

// Functions lists functions matching the filter.
func (q *QueryBuilder) Functions(ctx context.Context, f FunctionFilter) ([]*Function, error) {
	fns, err := q.store.Functions(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("functions: %w", err)
	}
	return fns, nil
}

// Types lists types whose qualified name matches the LIKE pattern; an empty
// pattern lists all of them.
func (q *QueryBuilder) Types(ctx context.Context, like string) ([]*Type, error) {
	types, err := q.store.Types(ctx, like)
	if err != nil {
		return nil, fmt.Errorf("types: %w", err)
	}
	return types, nil
}

// Callers returns the call edges that reach name, directly or as one of the
// candidate targets of an indirect or virtual call.
// Returns nil with no error if no function has that name.
func (q *QueryBuilder) Callers(ctx context.Context, name string) ([]*CallEdge, error) {
	ids, err := q.functionIDs(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("callers: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	edges, err := q.store.CallsByCallee(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("callers: %w", err)
	}
	return edges, nil
}

// Callees returns the call edges made by name.
// Returns nil with no error if no function has that name.
func (q *QueryBuilder) Callees(ctx context.Context, name string) ([]*CallEdge, error) {
	ids, err := q.functionIDs(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("callees: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	edges, err := q.store.CallsByCaller(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("callees: %w", err)
	}
	return edges, nil
}

// CallsWithin returns the calls whose context stack contains name, i.e. the
// calls made inside it, including inside its lambdas.
func (q *QueryBuilder) CallsWithin(ctx context.Context, name string) ([]*CallEdge, error) {
	ids, err := q.functionIDs(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("calls within: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	edges, err := q.store.CallsWithin(ctx, ids...)
	if err != nil {
		return nil, fmt.Errorf("calls within: %w", err)
	}
	return edges, nil
}

// CallsInUnit returns the calls flushed for one unit.
func (q *QueryBuilder) CallsInUnit(ctx context.Context, unitPath string) ([]*CallEdge, error) {
	edges, err := q.store.CallsByUnit(ctx, unitPath)
	if err != nil {
		return nil, fmt.Errorf("calls in unit: %w", err)
	}
	return edges, nil
}

// AffectedUnits returns the units that call name directly or as a
// candidate. These need re-extraction when name changes.
func (q *QueryBuilder) AffectedUnits(ctx context.Context, name string) ([]string, error) {
	ids, err := q.functionIDs(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("affected units: %w", err)
	}
	units, err := q.store.UnitsCalling(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("affected units: %w", err)
	}
	return units, nil
}

// Runs returns the most recent flush runs, newest first.
func (q *QueryBuilder) Runs(ctx context.Context, limit uint64) ([]*Run, error) {
	runs, err := q.store.Runs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("runs: %w", err)
	}
	return runs, nil
}

// Counts returns the row count of each graph table.
func (q *QueryBuilder) Counts(ctx context.Context) (map[string]int, error) {
	counts, err := q.store.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("counts: %w", err)
	}
	return counts, nil
}

// typeByName looks up a type, mapping a miss to (nil, nil).
func (q *QueryBuilder) typeByName(ctx context.Context, name string) (*Type, error) {
	t, err := q.store.TypeByName(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return t, err
}
