package extract

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jward/xref/internal/facts"
)

var (
	// factsExtracted counts facts produced per unit.
	// Labels: kind (function, type, inheritance, call)
	factsExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xref",
		Subsystem: "extract",
		Name:      "facts_total",
		Help:      "Facts extracted by kind",
	}, []string{"kind"})

	// factsDropped counts nodes that produced no fact.
	// Labels: reason (unresolved_call, inheritance, excluded)
	factsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "xref",
		Subsystem: "extract",
		Name:      "dropped_total",
		Help:      "Nodes or edges dropped during extraction by reason",
	}, []string{"reason"})
)

func recordUnit(u *facts.Unit) {
	factsExtracted.WithLabelValues("function").Add(float64(len(u.Functions)))
	factsExtracted.WithLabelValues("type").Add(float64(len(u.Types)))
	factsExtracted.WithLabelValues("inheritance").Add(float64(len(u.Inheritance)))
	factsExtracted.WithLabelValues("call").Add(float64(len(u.Calls)))
	factsDropped.WithLabelValues("unresolved_call").Add(float64(u.Stats.UnresolvedCalls))
	factsDropped.WithLabelValues("inheritance").Add(float64(u.Stats.DroppedInheritance))
	factsDropped.WithLabelValues("excluded").Add(float64(u.Stats.ExcludedNodes))
}
