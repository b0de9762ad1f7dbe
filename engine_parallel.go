package xref

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/jward/xref/internal/facts"
	"github.com/jward/xref/internal/store"
)

var tracer = otel.Tracer("github.com/jward/xref")

// UnitReport is the outcome of one unit.
type UnitReport struct {
	Path  string             `json:"path"`
	Stats facts.Stats        `json:"stats"`
	Flush *store.FlushReport `json:"flush,omitempty"`
	Err   error              `json:"-"`

	unit *facts.Unit
}

// Failed reports whether the unit produced no flush.
func (r *UnitReport) Failed() bool {
	return r.Err != nil
}

// Report aggregates a batch.
type Report struct {
	Units    []*UnitReport `json:"units"`
	Excluded []string      `json:"excluded,omitempty"`

	Extracted       int      `json:"extracted"`
	Unchanged       int      `json:"unchanged"`
	Failed          int      `json:"failed"`
	Functions       int      `json:"functions"`
	Types           int      `json:"types"`
	Calls           int      `json:"calls"`
	ExternalRefs    int      `json:"external_refs"`
	RejectedCalls   int      `json:"rejected_calls"`
	UnresolvedCalls int      `json:"unresolved_calls"`
	Unresolved      []string `json:"unresolved,omitempty"`
}

// Err joins the errors of failed units, or returns nil.
func (r *Report) Err() error {
	var errs []error
	for _, u := range r.Units {
		if u.Err != nil {
			errs = append(errs, u.Err)
		}
	}
	return errors.Join(errs...)
}

func (r *Report) add(u *UnitReport) {
	r.Units = append(r.Units, u)
	r.UnresolvedCalls += u.Stats.UnresolvedCalls
	switch {
	case u.Err != nil:
		r.Failed++
		return
	case u.Flush == nil:
		return
	case u.Flush.Skipped:
		r.Unchanged++
		return
	}
	f := u.Flush
	r.Extracted++
	r.Functions += f.Functions
	r.Types += f.Types
	r.Calls += f.Calls
	r.ExternalRefs += f.ExternalRefs
	r.RejectedCalls += f.RejectedCalls
	r.Unresolved = append(r.Unresolved, f.Unresolved...)
}

// ExtractFiles extracts the given files using a three-phase pipeline:
//
//	Phase A (serial):   Drop excluded and unsupported paths.
//	Phase B (parallel): Read, parse and extract, at most jobs units at once.
//	Phase C (serial):   Flush each unit in input order.
//
// A provider failure is recorded on its unit and the batch continues. A
// store failure stops the batch and is returned together with the partial
// report.
func (e *Engine) ExtractFiles(ctx context.Context, paths []string) (*Report, error) {
	ctx, span := tracer.Start(ctx, "xref.ExtractFiles")
	defer span.End()

	report := &Report{}

	// ---- Phase A: Serial path filtering ----
	var work []string
	for _, path := range paths {
		switch {
		case e.exclude.Match(filepath.ToSlash(path)):
			report.Excluded = append(report.Excluded, path)
		case !e.Supported(path):
			report.add(&UnitReport{Path: path, Err: fmt.Errorf("%w: %s", ErrUnsupportedFile, path)})
		default:
			work = append(work, path)
		}
	}
	span.SetAttributes(attribute.Int("units", len(work)))
	if len(work) == 0 {
		return report, nil
	}

	// ---- Phase B: Parallel extraction ----
	results := make([]*UnitReport, len(work))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.jobs, 1))
	for i, path := range work {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			src, err := os.ReadFile(path)
			if err != nil {
				results[i] = &UnitReport{Path: path, Err: fmt.Errorf("read %s: %w", path, err)}
				return nil
			}
			results[i] = e.extractUnit(gctx, path, src)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, fmt.Errorf("xref: extract: %w", err)
	}

	// ---- Phase C: Serial flush ----
	for i, r := range results {
		if r.Err != nil {
			e.logger.Warn("unit failed", slog.String("unit", r.Path), slog.Any("err", r.Err))
		} else if err := e.flush(ctx, r); err != nil {
			report.add(r)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return report, err
		}
		report.add(r)
		if e.progress != nil {
			e.progress(i+1, len(results), r.Path)
		}
	}

	span.SetAttributes(
		attribute.Int("extracted", report.Extracted),
		attribute.Int("failed", report.Failed),
		attribute.Int("calls", report.Calls),
	)
	e.logger.Info("extraction finished",
		slog.Int("units", len(work)),
		slog.Int("extracted", report.Extracted),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("failed", report.Failed),
		slog.Int("calls", report.Calls),
		slog.Int("external_refs", report.ExternalRefs),
		slog.Int("rejected_calls", report.RejectedCalls))
	return report, nil
}
