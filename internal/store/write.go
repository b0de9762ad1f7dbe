package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/jward/xref/internal/facts"
)

// runner is satisfied by both *sql.DB and *sql.Tx.
type runner = sq.StdSqlCtx

// PutFunction stores fn keyed on (qualified name, signature). An existing
// row is reused; a definition replaces the location of a stored
// declaration and upgrades an external placeholder.
func (s *Store) PutFunction(ctx context.Context, fn *facts.FunctionFact) (int64, error) {
	var id int64
	err := s.inTx(ctx, func(tx *txWriter) error {
		var err error
		id, _, err = putFunction(ctx, tx, fn)
		return err
	})
	return id, err
}

// PutType stores t keyed on its qualified name.
func (s *Store) PutType(ctx context.Context, t *facts.TypeFact) (int64, error) {
	var id int64
	err := s.inTx(ctx, func(tx *txWriter) error {
		var err error
		id, _, err = putType(ctx, tx, t)
		return err
	})
	return id, err
}

// PutInheritance links two stored types. It reports false when an endpoint
// is rejected by the external policy.
func (s *Store) PutInheritance(ctx context.Context, e facts.InheritanceEdge) (bool, error) {
	var ok bool
	err := s.inTx(ctx, func(tx *txWriter) error {
		var err error
		ok, err = s.putInheritance(ctx, tx, e)
		return err
	})
	return ok, err
}

// PutCallEdge stores one call with its context stack and candidate targets.
// Both endpoints are resolved first; an edge is never stored with a missing
// endpoint.
func (s *Store) PutCallEdge(ctx context.Context, call *facts.CallFact) (EdgeResult, error) {
	var res EdgeResult
	err := s.inTx(ctx, func(tx *txWriter) error {
		var err error
		res, err = s.putCallEdge(ctx, tx, call, edgeMeta{})
		return err
	})
	return res, err
}

// ResolveFunction looks up name, preferring an exact signature match. Under
// the placeholder policy a missing name gets an external row.
func (s *Store) ResolveFunction(ctx context.Context, name, signature string) (FunctionRef, error) {
	var ref FunctionRef
	err := s.inTx(ctx, func(tx *txWriter) error {
		var err error
		ref, err = s.resolveFunction(ctx, tx, name, signature)
		return err
	})
	return ref, err
}

// inTx runs fn in one transaction. Counters fn records are published only
// once the transaction commits.
func (s *Store) inTx(ctx context.Context, fn func(tx *txWriter) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer sqlTx.Rollback()
	tx := &txWriter{Tx: sqlTx}
	if err := fn(tx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	tx.publish()
	return nil
}

func functionValues(fn *facts.FunctionFact) map[string]any {
	return map[string]any{
		"qualified_name":      fn.QualifiedName,
		"signature":           fn.Signature(),
		"name":                fn.Name,
		"display_name":        fn.DisplayName,
		"kind":                fn.Kind,
		"return_type":         fn.ReturnType,
		"parameters":          marshalStrings(fn.Parameters),
		"file_path":           fn.File,
		"line":                fn.Line,
		"col":                 fn.Column,
		"is_definition":       fn.IsDefinition,
		"is_virtual":          fn.IsVirtual,
		"is_function_pointer": fn.IsFunctionPointer(),
		"pointer_level":       fn.PointerLevel(),
		"is_external":         false,
	}
}

// putFunction reports merged=true when an existing row was reused.
func putFunction(ctx context.Context, r runner, fn *facts.FunctionFact) (id int64, merged bool, err error) {
	if fn.QualifiedName == "" {
		return 0, false, fmt.Errorf("function has no qualified name")
	}
	var isDef, isExt bool
	err = sq.Select("id", "is_definition", "is_external").
		From("functions").
		Where(sq.Eq{"qualified_name": fn.QualifiedName, "signature": fn.Signature()}).
		RunWith(r).
		QueryRowContext(ctx).
		Scan(&id, &isDef, &isExt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := sq.Insert("functions").SetMap(functionValues(fn)).RunWith(r).ExecContext(ctx)
		if err != nil {
			return 0, false, fmt.Errorf("insert function %q: %w", fn.QualifiedName, err)
		}
		id, err = res.LastInsertId()
		return id, false, err
	case err != nil:
		return 0, false, fmt.Errorf("lookup function %q: %w", fn.QualifiedName, err)
	}

	if isExt || (fn.IsDefinition && !isDef) {
		_, err := sq.Update("functions").
			SetMap(functionValues(fn)).
			Where(sq.Eq{"id": id}).
			RunWith(r).
			ExecContext(ctx)
		if err != nil {
			return 0, false, fmt.Errorf("update function %q: %w", fn.QualifiedName, err)
		}
	}
	return id, true, nil
}

func typeValues(t *facts.TypeFact) map[string]any {
	return map[string]any{
		"qualified_name": t.QualifiedName,
		"name":           t.Name,
		"kind":           t.Kind,
		"file_path":      t.File,
		"line":           t.Line,
		"col":            t.Column,
		"is_definition":  t.IsDefinition,
		"is_external":    false,
	}
}

func putType(ctx context.Context, r runner, t *facts.TypeFact) (id int64, merged bool, err error) {
	if t.QualifiedName == "" {
		return 0, false, fmt.Errorf("type has no qualified name")
	}
	var isDef, isExt bool
	err = sq.Select("id", "is_definition", "is_external").
		From("types").
		Where(sq.Eq{"qualified_name": t.QualifiedName}).
		RunWith(r).
		QueryRowContext(ctx).
		Scan(&id, &isDef, &isExt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		res, err := sq.Insert("types").SetMap(typeValues(t)).RunWith(r).ExecContext(ctx)
		if err != nil {
			return 0, false, fmt.Errorf("insert type %q: %w", t.QualifiedName, err)
		}
		id, err = res.LastInsertId()
		return id, false, err
	case err != nil:
		return 0, false, fmt.Errorf("lookup type %q: %w", t.QualifiedName, err)
	}

	if isExt || (t.IsDefinition && !isDef) {
		_, err := sq.Update("types").
			SetMap(typeValues(t)).
			Where(sq.Eq{"id": id}).
			RunWith(r).
			ExecContext(ctx)
		if err != nil {
			return 0, false, fmt.Errorf("update type %q: %w", t.QualifiedName, err)
		}
	}
	return id, true, nil
}

// resolveFunction returns the stored function for name. Under the
// placeholder policy a missing name gets an external row.
func (s *Store) resolveFunction(ctx context.Context, tx *txWriter, name, signature string) (FunctionRef, error) {
	ref, found, err := lookupFunction(ctx, tx, name, signature)
	if err != nil || found {
		return ref, err
	}
	if s.policy == PolicyReject {
		return External(0, name), nil
	}
	return insertPlaceholder(ctx, tx, name, signature)
}

// resolveCallee resolves a call target. Under the reject policy a heuristic
// identity is still linked when every one of its candidates is a stored
// declaration.
func (s *Store) resolveCallee(ctx context.Context, tx *txWriter, call *facts.CallFact) (FunctionRef, error) {
	if s.policy != PolicyReject || !facts.IsSynthetic(call.Callee) || len(call.Candidates) == 0 {
		return s.resolveFunction(ctx, tx, call.Callee, call.CalleeSignature)
	}
	ref, found, err := lookupFunction(ctx, tx, call.Callee, call.CalleeSignature)
	if err != nil || found {
		return ref, err
	}
	for _, name := range call.Candidates {
		c, found, err := lookupFunction(ctx, tx, name, "")
		if err != nil {
			return FunctionRef{}, err
		}
		if !found || c.External {
			return External(0, call.Callee), nil
		}
	}
	return insertPlaceholder(ctx, tx, call.Callee, call.CalleeSignature)
}

// lookupFunction finds name without creating anything. Real rows win over
// placeholders; among overloads the exact signature wins, then the oldest.
func lookupFunction(ctx context.Context, r runner, name, signature string) (FunctionRef, bool, error) {
	rows, err := sq.Select("id", "signature", "is_external").
		From("functions").
		Where(sq.Eq{"qualified_name": name}).
		OrderBy("is_external", "id").
		RunWith(r).
		QueryContext(ctx)
	if err != nil {
		return FunctionRef{}, false, fmt.Errorf("resolve function %q: %w", name, err)
	}
	defer rows.Close()

	var (
		found   bool
		best    FunctionRef
		bestSig string
	)
	for rows.Next() {
		var (
			id  int64
			sig string
			ext bool
		)
		if err := rows.Scan(&id, &sig, &ext); err != nil {
			return FunctionRef{}, false, fmt.Errorf("resolve function %q: %w", name, err)
		}
		ref := Resolved(id, name)
		if ext {
			ref = External(id, name)
		}
		if !found || (sig == signature && bestSig != signature) {
			best, bestSig = ref, sig
		}
		found = true
	}
	if err := rows.Err(); err != nil {
		return FunctionRef{}, false, fmt.Errorf("resolve function %q: %w", name, err)
	}
	return best, found, nil
}

func insertPlaceholder(ctx context.Context, tx *txWriter, name, signature string) (FunctionRef, error) {
	kind := KindExternal
	if facts.IsSynthetic(name) {
		kind = KindSynthetic
	}
	res, err := sq.Insert("functions").
		SetMap(map[string]any{
			"qualified_name": name,
			"signature":      signature,
			"name":           name,
			"kind":           kind,
			"is_external":    true,
		}).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return FunctionRef{}, fmt.Errorf("insert placeholder %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return FunctionRef{}, err
	}
	tx.placeholder(kind)
	return External(id, name), nil
}

func (s *Store) resolveType(ctx context.Context, tx *txWriter, name string) (FunctionRef, error) {
	var (
		id  int64
		ext bool
	)
	err := sq.Select("id", "is_external").
		From("types").
		Where(sq.Eq{"qualified_name": name}).
		RunWith(tx).
		QueryRowContext(ctx).
		Scan(&id, &ext)
	switch {
	case err == nil && ext:
		return External(id, name), nil
	case err == nil:
		return Resolved(id, name), nil
	case !errors.Is(err, sql.ErrNoRows):
		return FunctionRef{}, fmt.Errorf("resolve type %q: %w", name, err)
	}

	if s.policy == PolicyReject {
		return External(0, name), nil
	}
	res, err := sq.Insert("types").
		SetMap(map[string]any{
			"qualified_name": name,
			"name":           name,
			"kind":           KindExternal,
			"is_external":    true,
		}).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return FunctionRef{}, fmt.Errorf("insert placeholder type %q: %w", name, err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return FunctionRef{}, err
	}
	tx.placeholder("type")
	return External(id, name), nil
}

func (s *Store) putInheritance(ctx context.Context, tx *txWriter, e facts.InheritanceEdge) (bool, error) {
	derived, err := s.resolveType(ctx, tx, e.Derived)
	if err != nil {
		return false, err
	}
	base, err := s.resolveType(ctx, tx, e.Base)
	if err != nil {
		return false, err
	}
	if !derived.Linkable() || !base.Linkable() {
		return false, nil
	}
	_, err = sq.Insert("inheritance").
		Options("OR IGNORE").
		Columns("derived_id", "base_id", "ordinal").
		Values(derived.ID, base.ID, e.Ordinal).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return false, fmt.Errorf("insert inheritance %s -> %s: %w", e.Derived, e.Base, err)
	}
	return true, nil
}

// edgeMeta carries flush-level columns for call rows.
type edgeMeta struct {
	runID    string
	unitPath string
}

func (s *Store) putCallEdge(ctx context.Context, tx *txWriter, call *facts.CallFact, meta edgeMeta) (EdgeResult, error) {
	callerName := call.Caller
	if callerName == "" {
		callerName = facts.GlobalCaller
	}
	caller, err := s.resolveFunction(ctx, tx, callerName, call.CallerSignature)
	if err != nil {
		return EdgeResult{}, err
	}
	callee, err := s.resolveCallee(ctx, tx, call)
	if err != nil {
		return EdgeResult{}, err
	}
	res := EdgeResult{Caller: caller, Callee: callee}
	if !caller.Linkable() || !callee.Linkable() {
		res.Rejected = true
		tx.edge("rejected")
		return res, nil
	}

	values := map[string]any{
		"caller_id":                 caller.ID,
		"callee_id":                 callee.ID,
		"callee_identity":           call.Callee,
		"file_path":                 call.File,
		"line":                      call.Line,
		"col":                       call.Column,
		"unit_path":                 nullString(meta.unitPath),
		"is_virtual":                call.Virtual,
		"is_template_instantiation": call.TemplateInstantiation,
		"is_exception_path":         call.ExceptionPath,
		"is_macro_expansion":        call.MacroExpansion,
		"is_dynamic_cast":           call.DynamicCast,
		"is_typeid":                 call.Typeid,
		"is_function_pointer":       call.FunctionPointer,
		"is_async":                  call.Async,
		"macro_file":                nil,
		"macro_line":                nil,
		"run_id":                    nullString(meta.runID),
	}
	if call.MacroExpansion && call.MacroFile != "" {
		values["macro_file"] = call.MacroFile
		values["macro_line"] = call.MacroLine
	}
	result, err := sq.Insert("calls").Options("OR IGNORE").SetMap(values).RunWith(tx).ExecContext(ctx)
	if err != nil {
		return res, fmt.Errorf("insert call %s -> %s: %w", callerName, call.Callee, err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return res, err
	} else if n == 0 {
		err := sq.Select("id").
			From("calls").
			Where(sq.Eq{
				"caller_id": caller.ID,
				"callee_id": callee.ID,
				"file_path": call.File,
				"line":      call.Line,
				"col":       call.Column,
			}).
			RunWith(tx).
			QueryRowContext(ctx).
			Scan(&res.CallID)
		if err != nil {
			return res, fmt.Errorf("lookup duplicate call: %w", err)
		}
		tx.edge("duplicate")
		return res, nil
	}
	if res.CallID, err = result.LastInsertId(); err != nil {
		return res, err
	}
	res.Inserted = true
	tx.edge("inserted")

	for depth, name := range call.ContextStack {
		var signature string
		if depth < len(call.ContextSignatures) {
			signature = call.ContextSignatures[depth]
		}
		ref, err := s.resolveFunction(ctx, tx, name, signature)
		if err != nil {
			return res, err
		}
		if !ref.Linkable() {
			res.DroppedContexts++
			continue
		}
		_, err = sq.Insert("call_contexts").
			Options("OR IGNORE").
			Columns("call_id", "function_id", "depth").
			Values(res.CallID, ref.ID, depth).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return res, fmt.Errorf("insert call context %q: %w", name, err)
		}
	}
	for rank, name := range call.Candidates {
		ref, err := s.resolveFunction(ctx, tx, name, "")
		if err != nil {
			return res, err
		}
		if !ref.Linkable() {
			continue
		}
		_, err = sq.Insert("call_candidates").
			Options("OR IGNORE").
			Columns("call_id", "function_id", "rank").
			Values(res.CallID, ref.ID, rank).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return res, fmt.Errorf("insert call candidate %q: %w", name, err)
		}
	}
	return res, nil
}
