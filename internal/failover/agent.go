// Package failover implements the Failover Agent: the per-node
// component that turns Node Monitor decisions into cluster RPCs and
// local process-orchestration calls, guaranteeing the
// commit/rollback-never-raises contract the Agent Communicator depends
// on.
package failover

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"cmapid/internal/clusterconfig"
	"cmapid/internal/osops"
	"cmapid/internal/rpc"
)

// PeerLister reports the current set of peers a transaction must be
// coordinated across.
type PeerLister interface {
	PeersToCoordinate() ([]string, error)
}

// alarmCooldown is the minimum gap between two log lines for the same
// alarm message: the Node Monitor calls RaiseAlarm on every tick while
// a condition persists (e.g. quorum lost), and without debouncing that
// floods the log at one line per second.
const alarmCooldown = 5 * time.Minute

// FailoverAgent implements agentcomm.Agent.
type FailoverAgent struct {
	Txn    rpc.TxnClient
	Node   rpc.NodeClient
	Config clusterconfig.Config
	Orch   *osops.Orchestrator
	Peers  PeerLister
	Self   string

	mu           sync.Mutex
	currentTxnID string
	currentPeers []string

	alarmMu       sync.Mutex
	lastAlarmedAt map[string]time.Time
}

func NewFailoverAgent(txn rpc.TxnClient, node rpc.NodeClient, cfg clusterconfig.Config, orch *osops.Orchestrator, peers PeerLister, self string) *FailoverAgent {
	return &FailoverAgent{
		Txn: txn, Node: node, Config: cfg, Orch: orch, Peers: peers, Self: self,
		lastAlarmedAt: make(map[string]time.Time),
	}
}

func (a *FailoverAgent) ActivateNodes(ctx context.Context, nodes []string) error {
	txnID := a.txnID()
	for _, n := range nodes {
		if err := a.Node.ActivateNode(ctx, txnID, n); err != nil {
			return fmt.Errorf("failover: activate %s: %w", n, err)
		}
	}
	return nil
}

func (a *FailoverAgent) DeactivateNodes(ctx context.Context, nodes []string) error {
	txnID := a.txnID()
	for _, n := range nodes {
		if err := a.Node.DeactivateNode(ctx, txnID, n); err != nil {
			return fmt.Errorf("failover: deactivate %s: %w", n, err)
		}
	}
	return nil
}

func (a *FailoverAgent) MovePrimaryNode(ctx context.Context) error {
	txnID := a.txnID()
	newPrimary, err := a.Config.WhoAmI()
	if err != nil {
		return fmt.Errorf("failover: move-primary: resolve self: %w", err)
	}
	if err := a.Node.MovePrimary(ctx, txnID, newPrimary); err != nil {
		return fmt.Errorf("failover: move-primary to %s: %w", newPrimary, err)
	}
	return nil
}

// EnterStandbyMode shuts down this node's ColumnStore processes; it
// keeps no standby state of its own. It is local-only: no cluster
// transaction involved.
func (a *FailoverAgent) EnterStandbyMode(ctx context.Context) error {
	isPrimary, err := a.isSelfPrimary()
	if err != nil {
		log.Printf("failover: enter standby: could not resolve primary status, assuming non-primary: %v", err)
	}
	errs := a.Orch.ShutdownNode(ctx, isPrimary, 30*time.Second, false)
	if len(errs) > 0 {
		return fmt.Errorf("failover: enter standby: %d shutdown step(s) failed: %v", len(errs), errs[0])
	}
	return nil
}

func (a *FailoverAgent) isSelfPrimary() (bool, error) {
	primary, err := a.Config.GetPrimaryNode()
	if err != nil {
		return false, err
	}
	return primary == a.Self, nil
}

// RaiseAlarm surfaces an operational problem. It never returns an error
// and never blocks the caller; today that means a log line, but it's
// the single seam an alerting integration would hook. Identical
// messages within alarmCooldown are suppressed so a persistent
// condition re-raised every tick doesn't flood the log.
func (a *FailoverAgent) RaiseAlarm(msg string) {
	a.alarmMu.Lock()
	last, fired := a.lastAlarmedAt[msg]
	now := time.Now()
	if fired && now.Sub(last) < alarmCooldown {
		a.alarmMu.Unlock()
		return
	}
	a.lastAlarmedAt[msg] = now
	a.alarmMu.Unlock()

	log.Printf("ALARM: %s", msg)
}

// StartTransaction retries starting a cluster transaction forever,
// escalating log severity after 5 consecutive failures. Deliberately no
// circuit breaker: a cluster that can't reach quorum for transactions
// must keep trying, not give up.
func (a *FailoverAgent) StartTransaction(ctx context.Context, nodesAdded, nodesRemoved []string) (string, []string) {
	peers, err := a.Peers.PeersToCoordinate()
	if err != nil {
		peers = nil
	}

	attempt := 0
	for {
		attempt++
		txnID := uuid.NewString()
		if err := a.Txn.StartTransaction(ctx, txnID, peers, nodesAdded, nodesRemoved); err == nil {
			a.mu.Lock()
			a.currentTxnID = txnID
			a.currentPeers = peers
			a.mu.Unlock()
			desired := a.computeDesiredNodes(nodesAdded, nodesRemoved)
			return txnID, desired
		} else if attempt <= 5 {
			log.Printf("failover: startTransaction attempt %d failed: %v", attempt, err)
		} else {
			log.Printf("ALARM: failover: startTransaction still failing after %d attempts: %v", attempt, err)
		}

		select {
		case <-ctx.Done():
			return "", nil
		case <-time.After(time.Second):
		}
	}
}

func (a *FailoverAgent) computeDesiredNodes(added, removed []string) []string {
	desired, _, _, err := a.Config.GetAllNodes()
	if err != nil {
		return append(append([]string(nil), added...), removed...)
	}
	removedSet := make(map[string]bool, len(removed))
	for _, n := range removed {
		removedSet[n] = true
	}
	out := make([]string, 0, len(desired)+len(added))
	for _, n := range desired {
		if !removedSet[n] {
			out = append(out, n)
		}
	}
	return append(out, added...)
}

func (a *FailoverAgent) txnID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentTxnID
}

// CommitTransaction never raises: any failure is logged and swallowed,
// so a single bad commit can't wedge the Agent Communicator's worker.
// The three calls run in order: updateRevisionAndManager must land
// before the new membership is broadcast, which in turn must land
// before the transaction is committed.
func (a *FailoverAgent) CommitTransaction(ctx context.Context, txnID string, desiredNodes []string) {
	peers := a.peersFor(txnID)
	if err := a.Txn.UpdateRevisionAndManager(ctx, txnID, peers); err != nil {
		log.Printf("failover: update revision and manager for txn %s failed: %v", txnID, err)
	}
	if err := a.Txn.BroadcastNewConfig(ctx, txnID, desiredNodes); err != nil {
		log.Printf("failover: broadcast new config for txn %s failed: %v", txnID, err)
	}
	if err := a.Txn.CommitTransaction(ctx, txnID, peers); err != nil {
		log.Printf("failover: commit txn %s failed: %v", txnID, err)
	}
	a.clearTxn(txnID)
}

func (a *FailoverAgent) RollbackTransaction(ctx context.Context, txnID string, desiredNodes []string) {
	peers := a.peersFor(txnID)
	if err := a.Txn.RollbackTransaction(ctx, txnID, peers); err != nil {
		log.Printf("failover: rollback txn %s failed: %v", txnID, err)
	}
	a.clearTxn(txnID)
}

func (a *FailoverAgent) peersFor(txnID string) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.currentTxnID == txnID {
		return a.currentPeers
	}
	return nil
}

func (a *FailoverAgent) clearTxn(txnID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.currentTxnID == txnID {
		a.currentTxnID = ""
		a.currentPeers = nil
	}
}
