// Package agentcomm batches and dedups cluster-change events produced
// by the Node Monitor, wraps them in a single cluster transaction, and
// drains them through a Failover Agent on a single background worker.
package agentcomm

import (
	"sort"
	"strings"
)

// EventKind tags the shape of an Event's payload: a closed set of the
// operations the Agent Communicator can queue.
type EventKind int

const (
	Activate EventKind = iota
	Deactivate
	MovePrimary
	EnterStandby
)

func (k EventKind) String() string {
	switch k {
	case Activate:
		return "activate"
	case Deactivate:
		return "deactivate"
	case MovePrimary:
		return "move-primary"
	case EnterStandby:
		return "enter-standby"
	default:
		return "unknown"
	}
}

// Event is one cluster-change request raised by the Node Monitor.
// Nodes is meaningful only for Activate/Deactivate.
type Event struct {
	Kind  EventKind
	Nodes []string
}

// Key returns a canonical identity for deduping: same kind, same node
// set (order-independent) collapses to the same key.
func (e Event) Key() string {
	nodes := append([]string(nil), e.Nodes...)
	sort.Strings(nodes)
	return e.Kind.String() + ":" + strings.Join(nodes, ",")
}

// NeedsTransaction reports whether running this event requires an
// active cluster transaction (every event does except EnterStandby,
// which is purely local).
func (e Event) NeedsTransaction() bool {
	return e.Kind != EnterStandby
}
