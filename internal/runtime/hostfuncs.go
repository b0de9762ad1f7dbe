package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/risor-io/risor/object"

	"github.com/jward/xref/internal/store"
)

// nameArg validates that args holds exactly one string and returns it.
func nameArg(fn string, args []object.Object) (string, *object.Error) {
	if len(args) != 1 {
		return "", object.NewArgsError(fn, 1, len(args))
	}
	return object.AsString(args[0])
}

// functionIDs resolves a qualified or plain name to every matching row.
func functionIDs(ctx context.Context, s *store.Store, name string) ([]int64, error) {
	fns, err := s.FunctionsByName(ctx, name)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(fns))
	for i, f := range fns {
		ids[i] = f.ID
	}
	return ids, nil
}

func makeFunctionFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("function", func(ctx context.Context, args ...object.Object) object.Object {
		name, argErr := nameArg("function", args)
		if argErr != nil {
			return argErr
		}
		fns, err := s.FunctionsByName(ctx, name)
		if err != nil {
			return object.Errorf("function: %v", err)
		}
		return functionsToList(fns)
	})
}

// makeFunctionsFn builds functions([like], [filter]). filter is a map with
// optional kind, external and limit keys.
func makeFunctionsFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("functions", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) > 2 {
			return object.Errorf("functions: expected at most 2 arguments, got %d", len(args))
		}
		var (
			like string
			opts object.Object
		)
		if len(args) > 0 {
			var argErr *object.Error
			if like, argErr = object.AsString(args[0]); argErr != nil {
				return argErr
			}
		}
		if len(args) == 2 {
			opts = args[1]
		}
		f, argErr := functionFilter(like, opts)
		if argErr != nil {
			return argErr
		}
		fns, err := s.Functions(ctx, f)
		if err != nil {
			return object.Errorf("functions: %v", err)
		}
		return functionsToList(fns)
	})
}

func makeTypesFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("types", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) > 1 {
			return object.Errorf("types: expected at most 1 argument, got %d", len(args))
		}
		var like string
		if len(args) == 1 {
			var argErr *object.Error
			if like, argErr = object.AsString(args[0]); argErr != nil {
				return argErr
			}
		}
		types, err := s.Types(ctx, like)
		if err != nil {
			return object.Errorf("types: %v", err)
		}
		return typesToList(types)
	})
}

// makeEdgeFn builds a host function that resolves a function name to its
// rows and returns the edges load finds for them.
func makeEdgeFn(s *store.Store, fn string, load func(context.Context, ...int64) ([]*store.CallEdge, error)) *object.Builtin {
	return object.NewBuiltin(fn, func(ctx context.Context, args ...object.Object) object.Object {
		name, argErr := nameArg(fn, args)
		if argErr != nil {
			return argErr
		}
		ids, err := functionIDs(ctx, s, name)
		if err != nil {
			return object.Errorf("%s: %v", fn, err)
		}
		if len(ids) == 0 {
			return object.NewList([]object.Object{})
		}
		edges, err := load(ctx, ids...)
		if err != nil {
			return object.Errorf("%s: %v", fn, err)
		}
		return edgesToList(edges)
	})
}

func makeCallersFn(s *store.Store) *object.Builtin {
	return makeEdgeFn(s, "callers", s.CallsByCallee)
}

func makeCalleesFn(s *store.Store) *object.Builtin {
	return makeEdgeFn(s, "callees", s.CallsByCaller)
}

func makeCallsWithinFn(s *store.Store) *object.Builtin {
	return makeEdgeFn(s, "calls_within", s.CallsWithin)
}

func makeCallsInUnitFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("calls_in_unit", func(ctx context.Context, args ...object.Object) object.Object {
		unit, argErr := nameArg("calls_in_unit", args)
		if argErr != nil {
			return argErr
		}
		edges, err := s.CallsByUnit(ctx, unit)
		if err != nil {
			return object.Errorf("calls_in_unit: %v", err)
		}
		return edgesToList(edges)
	})
}

// makeTypeStepFn builds bases and derived: one inheritance step from the
// named type.
func makeTypeStepFn(s *store.Store, fn string, step func(context.Context, int64) ([]*store.Type, error)) *object.Builtin {
	return object.NewBuiltin(fn, func(ctx context.Context, args ...object.Object) object.Object {
		name, argErr := nameArg(fn, args)
		if argErr != nil {
			return argErr
		}
		t, err := s.TypeByName(ctx, name)
		if errors.Is(err, store.ErrNotFound) {
			return object.NewList([]object.Object{})
		}
		if err != nil {
			return object.Errorf("%s: %v", fn, err)
		}
		related, err := step(ctx, t.ID)
		if err != nil {
			return object.Errorf("%s: %v", fn, err)
		}
		return typesToList(related)
	})
}

func makeBasesFn(s *store.Store) *object.Builtin {
	return makeTypeStepFn(s, "bases", s.BaseTypes)
}

func makeDerivedFn(s *store.Store) *object.Builtin {
	return makeTypeStepFn(s, "derived", s.DerivedTypes)
}

func makeUnitsCallingFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("units_calling", func(ctx context.Context, args ...object.Object) object.Object {
		name, argErr := nameArg("units_calling", args)
		if argErr != nil {
			return argErr
		}
		ids, err := functionIDs(ctx, s, name)
		if err != nil {
			return object.Errorf("units_calling: %v", err)
		}
		units, err := s.UnitsCalling(ctx, ids)
		if err != nil {
			return object.Errorf("units_calling: %v", err)
		}
		return stringsToList(units)
	})
}

func makeCountsFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("counts", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("counts", 0, len(args))
		}
		counts, err := s.Counts(ctx)
		if err != nil {
			return object.Errorf("counts: %v", err)
		}
		m := make(map[string]object.Object, len(counts))
		for table, n := range counts {
			m[table] = object.NewInt(int64(n))
		}
		return object.NewMap(m)
	})
}

// makeEmitFn writes each argument on its own line. Strings are written
// bare, everything else in its Risor representation.
func makeEmitFn(w io.Writer) *object.Builtin {
	return object.NewBuiltin("emit", func(ctx context.Context, args ...object.Object) object.Object {
		for _, arg := range args {
			var line string
			if s, ok := arg.(*object.String); ok {
				line = s.Value()
			} else {
				line = arg.Inspect()
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return object.Errorf("emit: %v", err)
			}
		}
		return object.Nil
	})
}

// logObject provides log.info/warn/error methods for Risor scripts.
type logObject struct {
	logger *slog.Logger
}

func (l *logObject) Info(msg string) {
	l.logger.Info(msg, slog.String("source", "script"))
}

func (l *logObject) Warn(msg string) {
	l.logger.Warn(msg, slog.String("source", "script"))
}

func (l *logObject) Error(msg string) {
	l.logger.Error(msg, slog.String("source", "script"))
}
