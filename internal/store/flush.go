package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jward/xref/internal/facts"
)

var tracer = otel.Tracer("github.com/jward/xref/internal/store")

// FlushReport summarizes what one Flush wrote.
type FlushReport struct {
	RunID           string   `json:"run_id"`
	UnitPath        string   `json:"unit_path"`
	FactsHash       string   `json:"facts_hash"`
	Skipped         bool     `json:"skipped,omitempty"`
	Functions       int      `json:"functions"`
	FunctionsMerged int      `json:"functions_merged"`
	Types           int      `json:"types"`
	TypesMerged     int      `json:"types_merged"`
	Inheritance     int      `json:"inheritance"`
	Calls           int      `json:"calls"`
	DuplicateCalls  int      `json:"duplicate_calls"`
	ExternalRefs    int      `json:"external_refs"`
	RejectedCalls   int      `json:"rejected_calls"`
	RejectedBases   int      `json:"rejected_bases"`
	DroppedContexts int      `json:"dropped_contexts"`
	ReplacedCalls   int64    `json:"replaced_calls,omitempty"`
	Unresolved      []string `json:"unresolved,omitempty"`
}

// FlushOption configures a Flush.
type FlushOption func(*flushOptions)

type flushOptions struct {
	replace       bool
	skipUnchanged bool
}

// ReplaceUnit deletes the calls previously flushed for the same unit path
// before writing the new ones.
func ReplaceUnit() FlushOption {
	return func(o *flushOptions) { o.replace = true }
}

// SkipUnchanged makes Flush a no-op when the facts hash equals the one
// recorded by the last run of the same unit.
func SkipUnchanged() FlushOption {
	return func(o *flushOptions) { o.skipUnchanged = true }
}

// Flush writes a unit in a single transaction: functions, then types, then
// inheritance, then calls, so every edge finds its endpoints.
func (s *Store) Flush(ctx context.Context, unit *facts.Unit, opts ...FlushOption) (*FlushReport, error) {
	var o flushOptions
	for _, opt := range opts {
		opt(&o)
	}
	ctx, span := tracer.Start(ctx, "store.Flush",
		trace.WithAttributes(attribute.String("unit", unit.Path)))
	defer span.End()

	started := time.Now()
	report := &FlushReport{
		RunID:     uuid.NewString(),
		UnitPath:  unit.Path,
		FactsHash: ComputeUnitHash(unit),
	}

	if o.skipUnchanged {
		last, err := s.LastRunHash(ctx, unit.Path)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		if last == report.FactsHash {
			report.Skipped = true
			span.SetAttributes(attribute.Bool("skipped", true))
			return report, nil
		}
	}

	err := s.inTx(ctx, func(tx *txWriter) error {
		if o.replace {
			n, err := deleteUnitCalls(ctx, tx, unit.Path)
			if err != nil {
				return err
			}
			report.ReplacedCalls = n
		}
		for i := range unit.Functions {
			_, merged, err := putFunction(ctx, tx, &unit.Functions[i])
			if err != nil {
				return err
			}
			if merged {
				report.FunctionsMerged++
			} else {
				report.Functions++
			}
		}
		for i := range unit.Types {
			_, merged, err := putType(ctx, tx, &unit.Types[i])
			if err != nil {
				return err
			}
			if merged {
				report.TypesMerged++
			} else {
				report.Types++
			}
		}
		for _, e := range unit.Inheritance {
			ok, err := s.putInheritance(ctx, tx, e)
			if err != nil {
				return err
			}
			if ok {
				report.Inheritance++
			} else {
				report.RejectedBases++
			}
		}

		meta := edgeMeta{runID: report.RunID, unitPath: unit.Path}
		for i := range unit.Calls {
			res, err := s.putCallEdge(ctx, tx, &unit.Calls[i], meta)
			if err != nil {
				return err
			}
			report.add(res)
		}

		_, err := sq.Insert("runs").
			Columns("id", "unit_path", "facts_hash", "started_at", "finished_at",
				"functions", "types", "calls", "rejected").
			Values(report.RunID, unit.Path, report.FactsHash, started.UTC(), time.Now().UTC(),
				report.Functions+report.FunctionsMerged, report.Types+report.TypesMerged,
				report.Calls, report.RejectedCalls).
			RunWith(tx).
			ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("flush %s: %w", unit.Path, err)
	}

	recordFlush(time.Since(started))
	span.SetAttributes(
		attribute.Int("calls", report.Calls),
		attribute.Int("rejected_calls", report.RejectedCalls),
		attribute.Int("external_refs", report.ExternalRefs),
	)
	return report, nil
}

func (r *FlushReport) add(res EdgeResult) {
	switch {
	case res.Rejected:
		r.RejectedCalls++
		if !res.Caller.Linkable() {
			r.Unresolved = append(r.Unresolved, res.Caller.Name)
		}
		if !res.Callee.Linkable() {
			r.Unresolved = append(r.Unresolved, res.Callee.Name)
		}
		return
	case res.Inserted:
		r.Calls++
	default:
		r.DuplicateCalls++
	}
	if res.Caller.External || res.Callee.External {
		r.ExternalRefs++
	}
	r.DroppedContexts += res.DroppedContexts
}

// LastRunHash returns the facts hash of the latest run for unitPath, or ""
// when the unit was never flushed.
func (s *Store) LastRunHash(ctx context.Context, unitPath string) (string, error) {
	var hash string
	err := sq.Select("facts_hash").
		From("runs").
		Where(sq.Eq{"unit_path": unitPath}).
		OrderBy("finished_at DESC").
		Limit(1).
		RunWith(s.db).
		QueryRowContext(ctx).
		Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last run of %s: %w", unitPath, err)
	}
	return hash, nil
}
