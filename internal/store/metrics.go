package store

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// edgesWritten counts call edges by outcome.
	// Labels: result (inserted, duplicate, rejected)
	edgesWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xref",
		Subsystem: "store",
		Name:      "call_edges_total",
		Help:      "Call edges written by outcome",
	}, []string{"result"})

	// externalRows counts placeholder rows created for unresolved endpoints.
	// Labels: kind (external, synthetic, type)
	externalRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xref",
		Subsystem: "store",
		Name:      "placeholders_total",
		Help:      "Placeholder rows created for unresolved endpoints",
	}, []string{"kind"})

	flushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "xref",
		Subsystem: "store",
		Name:      "flush_duration_seconds",
		Help:      "Duration of one unit flush",
		Buckets:   prometheus.DefBuckets,
	})
)

// txWriter is a write transaction that buffers counter updates until it
// commits, so a rolled back flush leaves the counters untouched.
type txWriter struct {
	*sql.Tx
	edges        map[string]int
	placeholders map[string]int
}

func (w *txWriter) edge(result string) {
	if w.edges == nil {
		w.edges = make(map[string]int)
	}
	w.edges[result]++
}

func (w *txWriter) placeholder(kind string) {
	if w.placeholders == nil {
		w.placeholders = make(map[string]int)
	}
	w.placeholders[kind]++
}

func (w *txWriter) publish() {
	for result, n := range w.edges {
		edgesWritten.WithLabelValues(result).Add(float64(n))
	}
	for kind, n := range w.placeholders {
		externalRows.WithLabelValues(kind).Add(float64(n))
	}
}

func recordFlush(d time.Duration) {
	flushDuration.Observe(d.Seconds())
}
