// Package monitor implements the Node Monitor control loop: the
// per-node decision process that watches heartbeat history, elects an
// actor among the currently reachable peers, and raises
// activate/deactivate/move-primary/enter-standby events through the
// Agent Communicator.
package monitor

import (
	"context"
	"log"
	"sort"
	"time"

	"cmapid/internal/clusterconfig"
	"cmapid/internal/heartbeat"
)

// EventSink is the subset of agentcomm.Communicator the monitor drives.
// Queueing methods are fire-and-forget; RaiseAlarm bypasses the queue
// entirely since it's not a cluster-change event.
type EventSink interface {
	ActivateNodes(nodes []string)
	DeactivateNodes(nodes []string)
	MovePrimaryNode()
	EnterStandbyMode()
	RaiseAlarm(msg string)
}

// TickSummary is an observability-only snapshot of one tick's outcome.
// Nothing downstream of it may feed back into control-flow decisions.
type TickSummary struct {
	At              time.Time
	Self            string
	IsActor         bool
	HasQuorum       bool
	Standby         bool
	DesiredCount    int
	ActiveCount     int
	InactiveCount   int
	EffectiveActive []string
	Actor           string
}

// TickObserver receives a TickSummary after every tick.
type TickObserver interface {
	Publish(summary TickSummary)
}

// MetricsSink receives gauge updates after every tick.
type MetricsSink interface {
	SetActor(isActor bool)
	SetQuorum(hasQuorum bool)
	SetStandby(standby bool)
	SetNodeCounts(desired, active, inactive int)
}

type nopObserver struct{}

func (nopObserver) Publish(TickSummary) {}

type nopMetrics struct{}

func (nopMetrics) SetActor(bool)                {}
func (nopMetrics) SetQuorum(bool)                {}
func (nopMetrics) SetStandby(bool)               {}
func (nopMetrics) SetNodeCounts(int, int, int)    {}

// NodeMonitor is the per-node control loop. One instance runs per
// daemon, ticking once a second.
type NodeMonitor struct {
	Config      clusterconfig.Config
	History     *heartbeat.History
	Heartbeater *heartbeat.Heartbeater
	Sink        EventSink
	Observer    TickObserver
	Metrics     MetricsSink

	// SamplingWindow is how many recent samples getNodeHistory
	// considers when deciding whether a node is flaky.
	SamplingWindow int
	// FlakyThreshold holds the configured flakyNodeThreshold. It is
	// reserved: classifyPeers does not consult it.
	FlakyThreshold float64

	TickInterval time.Duration

	wasActor bool
}

func NewNodeMonitor(cfg clusterconfig.Config, hist *heartbeat.History, hb *heartbeat.Heartbeater, sink EventSink, samplingWindow int, flakyThreshold float64) *NodeMonitor {
	return &NodeMonitor{
		Config:         cfg,
		History:        hist,
		Heartbeater:    hb,
		Sink:           sink,
		Observer:       nopObserver{},
		Metrics:        nopMetrics{},
		SamplingWindow: samplingWindow,
		FlakyThreshold: flakyThreshold,
		TickInterval:   time.Second,
	}
}

// Run ticks the monitor until ctx is cancelled.
func (m *NodeMonitor) Run(ctx context.Context) {
	interval := m.TickInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *NodeMonitor) tick(ctx context.Context) {
	view, err := clusterconfig.Snapshot(m.Config)
	if err != nil {
		log.Printf("monitor: could not snapshot cluster config: %v", err)
		return
	}
	m.History.KeepOnlyTheseNodes(view.Desired)

	if m.Heartbeater != nil {
		m.Heartbeater.SendHeartbeats(ctx)
	}

	if len(view.Desired) <= 1 {
		// Single-node cluster: trivially primary and actor, nothing to
		// decide each tick.
		m.publish(view, view.Self, true, true, false)
		return
	}

	deactivateSet, activateSet := m.classifyPeers(view)

	effectiveActive := computeEffectiveActive(view.Active, deactivateSet, activateSet, view.Self)
	actor := electActor(effectiveActive)
	isActor := actor == view.Self && actor != ""

	hasQuorum := checkQuorum(len(view.Active), len(effectiveActive), len(view.Desired))
	if !hasQuorum {
		m.Sink.RaiseAlarm("quorum lost: active/desired and effective-active/desired both at or below 50%")
		if isActor || m.wasActor {
			m.Sink.EnterStandbyMode()
		}
		m.wasActor = isActor
		m.publish(view, actor, isActor, false, true)
		return
	}

	if isActor || m.wasActor {
		if len(deactivateSet) > 0 {
			m.Sink.DeactivateNodes(setToSlice(deactivateSet))
		}
		if len(activateSet) > 0 {
			m.Sink.ActivateNodes(setToSlice(activateSet))
		}
		if view.Primary != "" && (deactivateSet[view.Primary] || !containsStr(effectiveActive, view.Primary)) {
			m.Sink.MovePrimaryNode()
		}
	}

	m.wasActor = isActor
	m.publish(view, actor, isActor, hasQuorum, false)
}

func (m *NodeMonitor) publish(view clusterconfig.ClusterView, actor string, isActor, hasQuorum, standby bool) {
	summary := TickSummary{
		At:              time.Now(),
		Self:            view.Self,
		IsActor:         isActor,
		HasQuorum:       hasQuorum,
		Standby:         standby,
		DesiredCount:    len(view.Desired),
		ActiveCount:     len(view.Active),
		InactiveCount:   len(view.Inactive),
		EffectiveActive: nil,
		Actor:           actor,
	}
	m.Observer.Publish(summary)
	m.Metrics.SetActor(isActor)
	m.Metrics.SetQuorum(hasQuorum)
	m.Metrics.SetStandby(standby)
	m.Metrics.SetNodeCounts(len(view.Desired), len(view.Active), len(view.Inactive))
}

// classifyPeers scans heartbeat history for every active and inactive
// peer (excluding self) and returns the set of currently-active peers
// whose last SamplingWindow samples are all NoResponse (to deactivate),
// and the set of currently-inactive peers whose last SamplingWindow
// samples are all GoodResponse (to activate). Missing samples count as
// Unknown, so a peer with a short history lands in neither set.
func (m *NodeMonitor) classifyPeers(view clusterconfig.ClusterView) (deactivate, activate map[string]bool) {
	deactivate = map[string]bool{}
	activate = map[string]bool{}

	window := m.SamplingWindow
	if window <= 0 {
		window = 5
	}

	for _, node := range view.Active {
		if node == view.Self {
			continue
		}
		samples := m.History.GetNodeHistory(node, window, heartbeat.Unknown)
		noResponse := 0
		for _, s := range samples {
			if s == heartbeat.NoResponse {
				noResponse++
			}
		}
		if len(samples) > 0 && noResponse == len(samples) {
			deactivate[node] = true
		}
	}

	for _, node := range view.Inactive {
		if node == view.Self {
			continue
		}
		samples := m.History.GetNodeHistory(node, window, heartbeat.Unknown)
		if badFraction(samples) == 0 {
			activate[node] = true
		}
	}

	return deactivate, activate
}

func badFraction(samples []heartbeat.ProbeResult) float64 {
	if len(samples) == 0 {
		return 1
	}
	bad := 0
	for _, s := range samples {
		if s != heartbeat.GoodResponse {
			bad++
		}
	}
	return float64(bad) / float64(len(samples))
}

func computeEffectiveActive(active []string, deactivate, activate map[string]bool, self string) []string {
	set := map[string]bool{self: true}
	for _, n := range active {
		if !deactivate[n] {
			set[n] = true
		}
	}
	for n := range activate {
		set[n] = true
	}
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// electActor deterministically picks the lexicographically-first node
// in effectiveActive as the cohort's actor. This is an ordering
// convention, not a consensus protocol: every node computes the same
// effectiveActive set from (mostly) the same heartbeat evidence and
// arrives at the same answer without a vote.
func electActor(effectiveActive []string) string {
	if len(effectiveActive) == 0 {
		return ""
	}
	return effectiveActive[0]
}

// checkQuorum implements the self-quiescing rule: the cluster has
// quorum unless both the raw active fraction and the effective-active
// fraction of desired membership are at or below 50%.
func checkQuorum(activeCount, effectiveActiveCount, desiredCount int) bool {
	if desiredCount == 0 {
		return true
	}
	activeFrac := float64(activeCount) / float64(desiredCount)
	effectiveFrac := float64(effectiveActiveCount) / float64(desiredCount)
	if activeFrac <= 0.5 && effectiveFrac <= 0.5 {
		return false
	}
	return true
}

// RequiredQuorum is floor(desired/2)+1, the minimum active node count
// the cluster needs to make forward progress.
func RequiredQuorum(desiredCount int) int {
	return desiredCount/2 + 1
}

func setToSlice(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func containsStr(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
