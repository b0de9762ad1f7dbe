package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("store: not found")

// --- Function reads ---

const functionCols = `id, qualified_name, signature, name, COALESCE(display_name, ''), kind,
	COALESCE(return_type, ''), COALESCE(parameters, ''), COALESCE(file_path, ''),
	COALESCE(line, 0), COALESCE(col, 0), is_definition, is_virtual,
	is_function_pointer, pointer_level, is_external`

func scanFunction(scanner sq.RowScanner) (*Function, error) {
	f := &Function{}
	var params string
	err := scanner.Scan(&f.ID, &f.QualifiedName, &f.Signature, &f.Name, &f.DisplayName, &f.Kind,
		&f.ReturnType, &params, &f.FilePath, &f.Line, &f.Column, &f.IsDefinition, &f.IsVirtual,
		&f.IsFunctionPointer, &f.PointerLevel, &f.IsExternal)
	if err != nil {
		return nil, err
	}
	f.Parameters = unmarshalStrings(params)
	return f, nil
}

func (s *Store) queryFunctions(ctx context.Context, q sq.SelectBuilder) ([]*Function, error) {
	rows, err := q.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query functions: %w", err)
	}
	defer rows.Close()
	var out []*Function
	for rows.Next() {
		f, err := scanFunction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan function: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// FunctionByID returns one function row.
func (s *Store) FunctionByID(ctx context.Context, id int64) (*Function, error) {
	f, err := scanFunction(sq.Select(functionCols).From("functions").
		Where(sq.Eq{"id": id}).RunWith(s.db).QueryRowContext(ctx))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("function %d: %w", id, err)
	}
	return f, nil
}

// FunctionsByName returns functions whose qualified or plain name equals
// name, real declarations first.
func (s *Store) FunctionsByName(ctx context.Context, name string) ([]*Function, error) {
	return s.queryFunctions(ctx, sq.Select(functionCols).From("functions").
		Where(sq.Or{sq.Eq{"qualified_name": name}, sq.Eq{"name": name}}).
		OrderBy("is_external", "qualified_name", "signature"))
}

// FunctionFilter narrows Functions.
type FunctionFilter struct {
	Kind string
	// Like is a SQL LIKE pattern on the qualified name.
	Like     string
	External *bool
	Limit    uint64
}

// Functions lists functions matching f ordered by qualified name.
func (s *Store) Functions(ctx context.Context, f FunctionFilter) ([]*Function, error) {
	q := sq.Select(functionCols).From("functions").OrderBy("qualified_name", "signature")
	if f.Kind != "" {
		q = q.Where(sq.Eq{"kind": f.Kind})
	}
	if f.Like != "" {
		q = q.Where(sq.Like{"qualified_name": f.Like})
	}
	if f.External != nil {
		q = q.Where(sq.Eq{"is_external": *f.External})
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	return s.queryFunctions(ctx, q)
}

// --- Type reads ---

func typeCols(alias string) string {
	p := ""
	if alias != "" {
		p = alias + "."
	}
	return fmt.Sprintf(`%[1]sid, %[1]squalified_name, %[1]sname, %[1]skind,
	COALESCE(%[1]sfile_path, ''), COALESCE(%[1]sline, 0), COALESCE(%[1]scol, 0),
	%[1]sis_definition, %[1]sis_external`, p)
}

func (s *Store) queryTypes(ctx context.Context, q sq.SelectBuilder) ([]*Type, error) {
	rows, err := q.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query types: %w", err)
	}
	defer rows.Close()
	var out []*Type
	for rows.Next() {
		t := &Type{}
		if err := rows.Scan(&t.ID, &t.QualifiedName, &t.Name, &t.Kind, &t.FilePath,
			&t.Line, &t.Column, &t.IsDefinition, &t.IsExternal); err != nil {
			return nil, fmt.Errorf("scan type: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// TypeByName returns the type with the given qualified name.
func (s *Store) TypeByName(ctx context.Context, qualified string) (*Type, error) {
	types, err := s.queryTypes(ctx, sq.Select(typeCols("")).From("types").
		Where(sq.Eq{"qualified_name": qualified}))
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return nil, ErrNotFound
	}
	return types[0], nil
}

// Types lists types, optionally filtered by a LIKE pattern.
func (s *Store) Types(ctx context.Context, like string) ([]*Type, error) {
	q := sq.Select(typeCols("")).From("types").OrderBy("qualified_name")
	if like != "" {
		q = q.Where(sq.Like{"qualified_name": like})
	}
	return s.queryTypes(ctx, q)
}

// BaseTypes returns the direct bases of a type in declaration order.
func (s *Store) BaseTypes(ctx context.Context, typeID int64) ([]*Type, error) {
	return s.queryTypes(ctx, sq.Select(typeCols("t")).From("types t").
		Join("inheritance i ON i.base_id = t.id").
		Where(sq.Eq{"i.derived_id": typeID}).
		OrderBy("i.ordinal"))
}

// DerivedTypes returns the types that list typeID as a direct base.
func (s *Store) DerivedTypes(ctx context.Context, typeID int64) ([]*Type, error) {
	return s.queryTypes(ctx, sq.Select(typeCols("t")).From("types t").
		Join("inheritance i ON i.derived_id = t.id").
		Where(sq.Eq{"i.base_id": typeID}).
		OrderBy("t.qualified_name"))
}

// --- Call reads ---

func callSelect() sq.SelectBuilder {
	return sq.Select(
		"c.id", "c.caller_id", "c.callee_id", "fr.qualified_name", "fe.qualified_name",
		"c.callee_identity", "c.file_path", "c.line", "c.col", "COALESCE(c.unit_path, '')",
		"c.is_virtual", "c.is_template_instantiation", "c.is_exception_path",
		"c.is_macro_expansion", "c.is_dynamic_cast", "c.is_typeid",
		"c.is_function_pointer", "c.is_async",
		"c.macro_file", "c.macro_line", "COALESCE(c.run_id, '')",
	).
		From("calls c").
		Join("functions fr ON fr.id = c.caller_id").
		Join("functions fe ON fe.id = c.callee_id").
		OrderBy("c.file_path", "c.line", "c.col", "c.id")
}

func (s *Store) queryCalls(ctx context.Context, q sq.SelectBuilder) ([]*CallEdge, error) {
	rows, err := q.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	var edges []*CallEdge
	for rows.Next() {
		e := &CallEdge{}
		var (
			macroFile sql.NullString
			macroLine sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.CallerID, &e.CalleeID, &e.Caller, &e.Callee,
			&e.CalleeIdentity, &e.FilePath, &e.Line, &e.Column, &e.UnitPath,
			&e.Flags.Virtual, &e.Flags.TemplateInstantiation, &e.Flags.ExceptionPath,
			&e.Flags.MacroExpansion, &e.Flags.DynamicCast, &e.Flags.Typeid,
			&e.Flags.FunctionPointer, &e.Flags.Async,
			&macroFile, &macroLine, &e.RunID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan call: %w", err)
		}
		if macroFile.Valid {
			e.MacroFile = &macroFile.String
		}
		if macroLine.Valid {
			line := int(macroLine.Int64)
			e.MacroLine = &line
		}
		edges = append(edges, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.loadCallDetails(ctx, edges); err != nil {
		return nil, err
	}
	return edges, nil
}

// loadCallDetails fills the context stacks and candidate lists of edges.
func (s *Store) loadCallDetails(ctx context.Context, edges []*CallEdge) error {
	if len(edges) == 0 {
		return nil
	}
	byID := make(map[int64]*CallEdge, len(edges))
	ids := make([]int64, len(edges))
	for i, e := range edges {
		byID[e.ID] = e
		ids[i] = e.ID
	}

	load := func(table, order string, apply func(e *CallEdge, name string)) error {
		rows, err := sq.Select("x.call_id", "f.qualified_name").
			From(table + " x").
			Join("functions f ON f.id = x.function_id").
			Where(sq.Eq{"x.call_id": ids}).
			OrderBy("x.call_id", "x."+order).
			RunWith(s.db).
			QueryContext(ctx)
		if err != nil {
			return fmt.Errorf("load %s: %w", table, err)
		}
		defer rows.Close()
		for rows.Next() {
			var (
				id   int64
				name string
			)
			if err := rows.Scan(&id, &name); err != nil {
				return fmt.Errorf("scan %s: %w", table, err)
			}
			if e, ok := byID[id]; ok {
				apply(e, name)
			}
		}
		return rows.Err()
	}

	if err := load("call_contexts", "depth", func(e *CallEdge, name string) {
		e.ContextStack = append(e.ContextStack, name)
	}); err != nil {
		return err
	}
	return load("call_candidates", "rank", func(e *CallEdge, name string) {
		e.Candidates = append(e.Candidates, name)
	})
}

// CallsByCaller returns the calls made by any of the given functions.
func (s *Store) CallsByCaller(ctx context.Context, ids ...int64) ([]*CallEdge, error) {
	return s.queryCalls(ctx, callSelect().Where(sq.Eq{"c.caller_id": ids}))
}

// CallsByCallee returns the calls that reach any of the given functions,
// either as the stored callee or as a candidate target.
func (s *Store) CallsByCallee(ctx context.Context, ids ...int64) ([]*CallEdge, error) {
	sub, args, err := sq.Select("call_id").From("call_candidates").
		Where(sq.Eq{"function_id": ids}).ToSql()
	if err != nil {
		return nil, err
	}
	return s.queryCalls(ctx, callSelect().Where(sq.Or{
		sq.Eq{"c.callee_id": ids},
		sq.Expr("c.id IN ("+sub+")", args...),
	}))
}

// CallsWithin returns calls whose context stack contains any of the given
// functions, i.e. calls made lexically inside them or inside their lambdas.
func (s *Store) CallsWithin(ctx context.Context, ids ...int64) ([]*CallEdge, error) {
	sub, args, err := sq.Select("call_id").From("call_contexts").
		Where(sq.Eq{"function_id": ids}).ToSql()
	if err != nil {
		return nil, err
	}
	return s.queryCalls(ctx, callSelect().Where(sq.Expr("c.id IN ("+sub+")", args...)))
}

// CallsByUnit returns the calls flushed for one unit path.
func (s *Store) CallsByUnit(ctx context.Context, unitPath string) ([]*CallEdge, error) {
	return s.queryCalls(ctx, callSelect().Where(sq.Eq{"c.unit_path": unitPath}))
}

// AllCalls returns every call edge. Used for bulk-loading the call graph.
func (s *Store) AllCalls(ctx context.Context) ([]*CallEdge, error) {
	return s.queryCalls(ctx, callSelect())
}

// --- Run reads ---

// Runs returns flush runs, newest first.
func (s *Store) Runs(ctx context.Context, limit uint64) ([]*Run, error) {
	q := sq.Select("id", "unit_path", "facts_hash", "started_at", "finished_at",
		"functions", "types", "calls", "rejected").
		From("runs").
		OrderBy("finished_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	rows, err := q.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()
	var out []*Run
	for rows.Next() {
		r := &Run{}
		if err := rows.Scan(&r.ID, &r.UnitPath, &r.FactsHash, &r.StartedAt, &r.FinishedAt,
			&r.Functions, &r.Types, &r.Calls, &r.Rejected); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Counts returns the row count of each graph table.
func (s *Store) Counts(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int)
	for _, table := range []string{"functions", "types", "inheritance", "calls", "call_contexts", "call_candidates", "runs"} {
		var n int
		if err := sq.Select("COUNT(*)").From(table).RunWith(s.db).QueryRowContext(ctx).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		out[table] = n
	}
	return out, nil
}

// UnitPaths returns every unit path that has a recorded run.
func (s *Store) UnitPaths(ctx context.Context) ([]string, error) {
	rows, err := sq.Select("DISTINCT unit_path").From("runs").OrderBy("unit_path").
		RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("query unit paths: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan unit path: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
