// Package metrics exposes cmapid's Prometheus registry: one init
// function per concern, wired into a single Registry struct.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every metric cmapid exports, grouped by concern.
// TransactionRetries, QueueDepth, EventsSuppressedTotal and
// NodeStartDuration are registered and exported, but no component
// updates them, so they stay at zero.
type Registry struct {
	registry *prometheus.Registry

	// Node Monitor
	MonitorIsActor      prometheus.Gauge
	MonitorHasQuorum    prometheus.Gauge
	MonitorStandby      prometheus.Gauge
	MonitorDesiredNodes prometheus.Gauge
	MonitorActiveNodes  prometheus.Gauge
	MonitorInactiveNodes prometheus.Gauge

	// Agent Communicator / Failover Agent
	TransactionsTotal     *prometheus.CounterVec
	TransactionRetries    prometheus.Counter
	QueueDepth            prometheus.Gauge
	EventsSuppressedTotal prometheus.Counter

	// Process Dispatcher / OS Operations
	DispatchOutcomesTotal *prometheus.CounterVec
	NodeStartDuration     prometheus.Histogram
}

// NewRegistry builds and registers every metric on a fresh
// prometheus.Registry.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{registry: reg}

	r.initMonitorMetrics()
	r.initAgentCommMetrics()
	r.initDispatchMetrics()

	return r
}

// Gatherer exposes the underlying prometheus.Registry for mounting on
// an HTTP handler.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}
