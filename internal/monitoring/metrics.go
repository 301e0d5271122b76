// Package monitoring exposes the engine's prometheus collectors. One Metrics
// value is shared by the coordinator and the approval server's /metrics route.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors for one engine process.
type Metrics struct {
	PhaseTransitions *prometheus.CounterVec
	RefineIterations prometheus.Histogram
	HardViolations   *prometheus.GaugeVec
	UnfilledSlots    *prometheus.GaugeVec
	RunDuration      prometheus.Histogram
	Escalations      prometheus.Counter
}

// New registers the engine collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PhaseTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rosterforge_phase_transitions_total",
			Help: "Coordinator phase transitions by phase name.",
		}, []string{"phase"}),
		RefineIterations: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rosterforge_refine_iterations",
			Help:    "Refinement iterations used per run.",
			Buckets: prometheus.LinearBuckets(0, 1, 7),
		}),
		HardViolations: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rosterforge_hard_violations",
			Help: "Hard violations remaining after the latest validation, per store.",
		}, []string{"store"}),
		UnfilledSlots: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rosterforge_unfilled_slots",
			Help: "Slots the auction could not fill, per store.",
		}, []string{"store"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rosterforge_run_duration_seconds",
			Help:    "Wall-clock duration of a full scheduling run.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		Escalations: factory.NewCounter(prometheus.CounterOpts{
			Name: "rosterforge_escalations_total",
			Help: "Runs that required human escalation.",
		}),
	}
}
