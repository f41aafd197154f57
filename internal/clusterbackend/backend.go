// Package clusterbackend implements rpc.Backend: the receiving side of
// every cluster transaction and node-manipulation call a peer's
// Failover Agent sends this node. Where the Failover Agent is the
// caller, Backend is the callee that actually runs the local
// orchestration the caller is asking for.
package clusterbackend

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"cmapid/internal/audit"
	"cmapid/internal/clusterconfig"
	"cmapid/internal/osops"
)

type pendingTxn struct {
	nodesAdded   []string
	nodesRemoved []string
}

// Backend ties incoming RPC calls to this node's Orchestrator and
// cluster config. Self is this node's own name as it appears in the
// cluster config; every Activate/Deactivate/MovePrimary call this node
// receives is expected to name Self (a peer only calls these RPCs on
// the node the change applies to), and a mismatch is logged but not
// treated as fatal.
type Backend struct {
	Orch   *osops.Orchestrator
	Config clusterconfig.Config
	Self   string
	Audit  *audit.Recorder // nil uses audit.Default()

	mu      sync.Mutex
	pending map[string]pendingTxn
}

func New(orch *osops.Orchestrator, cfg clusterconfig.Config, self string, rec *audit.Recorder) *Backend {
	return &Backend{
		Orch:    orch,
		Config:  cfg,
		Self:    self,
		Audit:   rec,
		pending: make(map[string]pendingTxn),
	}
}

func (b *Backend) audit() *audit.Recorder {
	if b.Audit != nil {
		return b.Audit
	}
	return audit.Default()
}

func (b *Backend) isSelfPrimary() bool {
	primary, err := b.Config.GetPrimaryNode()
	if err != nil {
		return false
	}
	return primary == b.Self
}

// PrepareTransaction records the membership delta a transaction is
// about to apply, keyed by txnID, so a later Commit/Rollback for the
// same txnID knows what it's clearing.
func (b *Backend) PrepareTransaction(txnID string, nodesAdded, nodesRemoved []string) error {
	b.mu.Lock()
	b.pending[txnID] = pendingTxn{nodesAdded: nodesAdded, nodesRemoved: nodesRemoved}
	b.mu.Unlock()
	b.audit().LogStartTransaction(txnID, nodesAdded, nodesRemoved)
	return nil
}

// UpdateRevisionAndManager runs ahead of the membership broadcast that
// follows it in the commit sequence. clusterconfig.Config
// implementations re-read their backing store on every call, so there
// is no local revision counter to advance here; it only validates that
// the transaction is one this node actually prepared, the same way
// ApplyNewConfig does.
func (b *Backend) UpdateRevisionAndManager(txnID string) error {
	b.mu.Lock()
	_, ok := b.pending[txnID]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("clusterbackend: update revision: unknown txn %s", txnID)
	}
	return nil
}

// ApplyNewConfig marks that this node has accepted the pending
// membership delta as the new desired config. clusterconfig.Config
// implementations re-read their backing store on every call, so there
// is no local cache to refresh here; this exists as the seam a
// real multi-file deployment would use to push the updated XML config
// out before the commit that follows.
func (b *Backend) ApplyNewConfig(txnID string) error {
	b.mu.Lock()
	_, ok := b.pending[txnID]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("clusterbackend: apply new config: unknown txn %s", txnID)
	}
	return nil
}

func (b *Backend) CommitTransaction(txnID string) error {
	b.mu.Lock()
	delete(b.pending, txnID)
	b.mu.Unlock()
	return nil
}

func (b *Backend) RollbackTransaction(txnID string) error {
	b.mu.Lock()
	delete(b.pending, txnID)
	b.mu.Unlock()
	return nil
}

// Activate brings this node's ColumnStore processes up. node is
// expected to equal Self.
func (b *Backend) Activate(txnID, node string) error {
	if node != b.Self {
		log.Printf("clusterbackend: activate called for %s, but this node is %s", node, b.Self)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	errs := b.Orch.StartNode(ctx, b.isSelfPrimary())
	var err error
	if len(errs) > 0 {
		err = fmt.Errorf("clusterbackend: activate %s: %d step(s) failed: %v", node, len(errs), errs[0])
	}
	b.audit().LogActivateNode(txnID, node, err)
	return err
}

// Deactivate tears this node's ColumnStore processes down gracefully.
// node is expected to equal Self.
func (b *Backend) Deactivate(txnID, node string) error {
	if node != b.Self {
		log.Printf("clusterbackend: deactivate called for %s, but this node is %s", node, b.Self)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	errs := b.Orch.ShutdownNode(ctx, b.isSelfPrimary(), 30*time.Second, false)
	var err error
	if len(errs) > 0 {
		err = fmt.Errorf("clusterbackend: deactivate %s: %d step(s) failed: %v", node, len(errs), errs[0])
	}
	b.audit().LogDeactivateNode(txnID, node, err)
	return err
}

// MovePrimary records this node's acceptance of a primary hand-off in
// the audit trail. It does not restart this node's processes into the
// primary role, and the Failover Agent sends no Activate call after a
// move-primary.
func (b *Backend) MovePrimary(txnID, node string) error {
	if node != b.Self {
		log.Printf("clusterbackend: move-primary called for %s, but this node is %s", node, b.Self)
	}
	b.audit().LogMovePrimary(txnID, node, nil)
	return nil
}
