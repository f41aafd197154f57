package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initDispatchMetrics() {
	r.DispatchOutcomesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmapid_dispatch_outcomes_total",
			Help: "Total number of dispatcher start/stop/restart calls by outcome",
		},
		[]string{"service", "operation", "outcome"}, // outcome: ok, failed
	)

	r.NodeStartDuration = promauto.With(r.registry).NewHistogram(prometheus.HistogramOpts{
		Name:    "cmapid_osops_start_node_duration_seconds",
		Help:    "Duration of a full StartNode orchestration sequence",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
	})
}

// RecordDispatchOutcome is called by dispatch.MeteredDispatcher after
// every start/stop/restart attempt.
func (r *Registry) RecordDispatchOutcome(service, operation string, ok bool) {
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	r.DispatchOutcomesTotal.WithLabelValues(service, operation, outcome).Inc()
}
