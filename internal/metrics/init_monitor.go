package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"cmapid/internal/monitor"
)

func (r *Registry) initMonitorMetrics() {
	r.MonitorIsActor = promauto.With(r.registry).NewGauge(prometheus.GaugeOpts{
		Name: "cmapid_monitor_is_actor",
		Help: "Whether this node is the elected actor for the current tick (1=yes, 0=no)",
	})

	r.MonitorHasQuorum = promauto.With(r.registry).NewGauge(prometheus.GaugeOpts{
		Name: "cmapid_monitor_has_quorum",
		Help: "Whether the cluster has quorum as of the last tick (1=yes, 0=no)",
	})

	r.MonitorStandby = promauto.With(r.registry).NewGauge(prometheus.GaugeOpts{
		Name: "cmapid_monitor_standby",
		Help: "Whether this node entered standby mode as of the last tick (1=yes, 0=no)",
	})

	r.MonitorDesiredNodes = promauto.With(r.registry).NewGauge(prometheus.GaugeOpts{
		Name: "cmapid_monitor_desired_nodes",
		Help: "Number of nodes in the desired cluster membership",
	})

	r.MonitorActiveNodes = promauto.With(r.registry).NewGauge(prometheus.GaugeOpts{
		Name: "cmapid_monitor_active_nodes",
		Help: "Number of nodes currently believed active",
	})

	r.MonitorInactiveNodes = promauto.With(r.registry).NewGauge(prometheus.GaugeOpts{
		Name: "cmapid_monitor_inactive_nodes",
		Help: "Number of nodes currently believed inactive",
	})
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// SetActor implements monitor.MetricsSink.
func (r *Registry) SetActor(isActor bool) { r.MonitorIsActor.Set(boolToFloat(isActor)) }

// SetQuorum implements monitor.MetricsSink.
func (r *Registry) SetQuorum(hasQuorum bool) { r.MonitorHasQuorum.Set(boolToFloat(hasQuorum)) }

// SetStandby implements monitor.MetricsSink.
func (r *Registry) SetStandby(standby bool) { r.MonitorStandby.Set(boolToFloat(standby)) }

// SetNodeCounts implements monitor.MetricsSink.
func (r *Registry) SetNodeCounts(desired, active, inactive int) {
	r.MonitorDesiredNodes.Set(float64(desired))
	r.MonitorActiveNodes.Set(float64(active))
	r.MonitorInactiveNodes.Set(float64(inactive))
}

var _ monitor.MetricsSink = (*Registry)(nil)
