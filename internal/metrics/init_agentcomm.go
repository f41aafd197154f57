package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"cmapid/internal/agentcomm"
)

func (r *Registry) initAgentCommMetrics() {
	r.TransactionsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "cmapid_agentcomm_transactions_total",
			Help: "Total number of cluster transactions by outcome",
		},
		[]string{"outcome"}, // committed, rolled_back
	)

	r.TransactionRetries = promauto.With(r.registry).NewCounter(prometheus.CounterOpts{
		Name: "cmapid_agentcomm_transaction_retries_total",
		Help: "Total number of StartTransaction retry attempts",
	})

	r.QueueDepth = promauto.With(r.registry).NewGauge(prometheus.GaugeOpts{
		Name: "cmapid_agentcomm_queue_depth",
		Help: "Number of events in the Agent Communicator queue as of the last batch pull",
	})

	r.EventsSuppressedTotal = promauto.With(r.registry).NewCounter(prometheus.CounterOpts{
		Name: "cmapid_agentcomm_events_suppressed_total",
		Help: "Total number of events suppressed by the dedup window",
	})
}

// Observer implementation, consumed by agentcomm.Communicator.

// OnCommit implements agentcomm.Observer.
func (r *Registry) OnCommit(txnID string, events []agentcomm.Event) {
	r.TransactionsTotal.WithLabelValues("committed").Inc()
}

// OnRollback implements agentcomm.Observer.
func (r *Registry) OnRollback(txnID string, events []agentcomm.Event, err error) {
	r.TransactionsTotal.WithLabelValues("rolled_back").Inc()
}

var _ agentcomm.Observer = (*Registry)(nil)
