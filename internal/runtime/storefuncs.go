package runtime

import (
	"context"
	"strings"

	"github.com/risor-io/risor/object"

	"github.com/jward/xref/internal/store"
)

// functionFilter decodes the options map of functions(): kind, external and
// limit. Unknown keys are an error.
func functionFilter(like string, opts object.Object) (store.FunctionFilter, *object.Error) {
	f := store.FunctionFilter{Like: like}
	if opts == nil {
		return f, nil
	}
	m, err := object.AsMap(opts)
	if err != nil {
		return f, err
	}
	for key, v := range m.Value() {
		switch key {
		case "kind":
			if f.Kind, err = object.AsString(v); err != nil {
				return f, err
			}
		case "external":
			ext, err := object.AsBool(v)
			if err != nil {
				return f, err
			}
			f.External = &ext
		case "limit":
			limit, err := object.AsInt(v)
			if err != nil {
				return f, err
			}
			if limit > 0 {
				f.Limit = uint64(limit)
			}
		default:
			return f, object.Errorf("unknown filter key %q", key)
		}
	}
	return f, nil
}

// readOnly accepts plain queries and CTEs; db_query never writes.
func readOnly(query string) bool {
	q := strings.ToUpper(strings.TrimSpace(query))
	return strings.HasPrefix(q, "SELECT") || strings.HasPrefix(q, "WITH")
}

// makeDBQueryFn builds db_query(sql, args...). Each row becomes a map keyed
// by column name.
func makeDBQueryFn(s *store.Store) *object.Builtin {
	return object.NewBuiltin("db_query", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) == 0 {
			return object.Errorf("db_query: expected at least 1 argument (sql)")
		}
		query, argErr := object.AsString(args[0])
		if argErr != nil {
			return argErr
		}
		if !readOnly(query) {
			return object.Errorf("db_query: only SELECT queries are allowed")
		}
		params := make([]any, len(args)-1)
		for i, a := range args[1:] {
			params[i] = a.Interface()
		}

		rows, err := s.DB().QueryContext(ctx, query, params...)
		if err != nil {
			return object.Errorf("db_query: %v", err)
		}
		defer rows.Close()
		cols, err := rows.Columns()
		if err != nil {
			return object.Errorf("db_query: %v", err)
		}

		out := []object.Object{}
		for rows.Next() {
			values := make([]any, len(cols))
			dest := make([]any, len(cols))
			for i := range values {
				dest[i] = &values[i]
			}
			if err := rows.Scan(dest...); err != nil {
				return object.Errorf("db_query: %v", err)
			}
			row := make(map[string]object.Object, len(cols))
			for i, col := range cols {
				// TEXT columns can scan as []byte; scripts compare them as strings.
				if b, ok := values[i].([]byte); ok {
					values[i] = string(b)
				}
				row[col] = object.FromGoType(values[i])
			}
			out = append(out, object.NewMap(row))
		}
		if err := rows.Err(); err != nil {
			return object.Errorf("db_query: %v", err)
		}
		return object.NewList(out)
	})
}

// --- Row converters ---

func functionToObject(f *store.Function) object.Object {
	return object.NewMap(map[string]object.Object{
		"id":             object.NewInt(f.ID),
		"qualified_name": object.NewString(f.QualifiedName),
		"signature":      object.NewString(f.Signature),
		"name":           object.NewString(f.Name),
		"kind":           object.NewString(f.Kind),
		"return_type":    object.NewString(f.ReturnType),
		"parameters":     stringsToList(f.Parameters),
		"file":           object.NewString(f.FilePath),
		"line":           object.NewInt(int64(f.Line)),
		"column":         object.NewInt(int64(f.Column)),
		"is_definition":  object.NewBool(f.IsDefinition),
		"is_virtual":     object.NewBool(f.IsVirtual),
		"is_external":    object.NewBool(f.IsExternal),
	})
}

func functionsToList(fns []*store.Function) object.Object {
	results := make([]object.Object, 0, len(fns))
	for _, f := range fns {
		results = append(results, functionToObject(f))
	}
	return object.NewList(results)
}

func typesToList(types []*store.Type) object.Object {
	results := make([]object.Object, 0, len(types))
	for _, t := range types {
		results = append(results, object.NewMap(map[string]object.Object{
			"id":             object.NewInt(t.ID),
			"qualified_name": object.NewString(t.QualifiedName),
			"name":           object.NewString(t.Name),
			"kind":           object.NewString(t.Kind),
			"file":           object.NewString(t.FilePath),
			"line":           object.NewInt(int64(t.Line)),
			"is_external":    object.NewBool(t.IsExternal),
		}))
	}
	return object.NewList(results)
}

func edgesToList(edges []*store.CallEdge) object.Object {
	results := make([]object.Object, 0, len(edges))
	for _, e := range edges {
		m := map[string]object.Object{
			"id":               object.NewInt(e.ID),
			"caller":           object.NewString(e.Caller),
			"callee":           object.NewString(e.Callee),
			"callee_identity":  object.NewString(e.CalleeIdentity),
			"file":             object.NewString(e.FilePath),
			"line":             object.NewInt(int64(e.Line)),
			"column":           object.NewInt(int64(e.Column)),
			"unit":             object.NewString(e.UnitPath),
			"virtual":          object.NewBool(e.Flags.Virtual),
			"template":         object.NewBool(e.Flags.TemplateInstantiation),
			"macro":            object.NewBool(e.Flags.MacroExpansion),
			"function_pointer": object.NewBool(e.Flags.FunctionPointer),
			"context_stack":    stringsToList(e.ContextStack),
			"candidates":       stringsToList(e.Candidates),
		}
		if e.MacroFile != nil {
			m["macro_file"] = object.NewString(*e.MacroFile)
		}
		if e.MacroLine != nil {
			m["macro_line"] = object.NewInt(int64(*e.MacroLine))
		}
		results = append(results, object.NewMap(m))
	}
	return object.NewList(results)
}

func stringsToList(ss []string) object.Object {
	results := make([]object.Object, 0, len(ss))
	for _, s := range ss {
		results = append(results, object.NewString(s))
	}
	return object.NewList(results)
}
