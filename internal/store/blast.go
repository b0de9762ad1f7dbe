package store

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

// DeleteUnit removes the calls and runs recorded for unitPath. Context and
// candidate rows go with their calls.
func (s *Store) DeleteUnit(ctx context.Context, unitPath string) (int64, error) {
	var n int64
	err := s.inTx(ctx, func(tx *txWriter) error {
		var err error
		if n, err = deleteUnitCalls(ctx, tx, unitPath); err != nil {
			return err
		}
		if _, err := sq.Delete("runs").Where(sq.Eq{"unit_path": unitPath}).RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("delete runs for %s: %w", unitPath, err)
		}
		return nil
	})
	return n, err
}

func deleteUnitCalls(ctx context.Context, r runner, unitPath string) (int64, error) {
	res, err := sq.Delete("calls").Where(sq.Eq{"unit_path": unitPath}).RunWith(r).ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete calls for %s: %w", unitPath, err)
	}
	return res.RowsAffected()
}

// PruneExternals deletes placeholder functions that no call, context or
// candidate row references any more.
func (s *Store) PruneExternals(ctx context.Context) (int64, error) {
	res, err := sq.Delete("functions").
		Where(sq.Eq{"is_external": true}).
		Where("id NOT IN (SELECT caller_id FROM calls)").
		Where("id NOT IN (SELECT callee_id FROM calls)").
		Where("id NOT IN (SELECT function_id FROM call_contexts)").
		Where("id NOT IN (SELECT function_id FROM call_candidates)").
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("prune externals: %w", err)
	}
	return res.RowsAffected()
}

// UnitsCalling returns the unit paths whose calls target any of the given
// functions, directly or as a candidate. These are the units to re-extract
// when those functions change.
func (s *Store) UnitsCalling(ctx context.Context, functionIDs []int64) ([]string, error) {
	if len(functionIDs) == 0 {
		return nil, nil
	}
	candidates := sq.Select("call_id").From("call_candidates").Where(sq.Eq{"function_id": functionIDs})
	sub, args, err := candidates.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := sq.Select("DISTINCT unit_path").
		From("calls").
		Where(sq.And{
			sq.NotEq{"unit_path": nil},
			sq.Or{
				sq.Eq{"callee_id": functionIDs},
				sq.Expr("id IN ("+sub+")", args...),
			},
		}).
		OrderBy("unit_path").
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("units calling: %w", err)
	}
	defer rows.Close()
	var units []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan unit path: %w", err)
		}
		units = append(units, u)
	}
	return units, rows.Err()
}
