package rpc

import (
	"context"
	"sync"
)

// Fake is an in-memory TxnClient/NodeClient double for tests: every
// call is recorded for assertions and succeeds unless FailTxnID names
// its transaction, with no network involved.
type Fake struct {
	mu sync.Mutex

	StartedTxns      []string
	RevisionsUpdated []string
	Broadcasts       []string
	Commits          []string
	Rollbacks        []string
	Activated        []string
	Deactivated      []string
	MovedPrimaryTo   []string

	// Calls records the commit-path sequence (update-revision, broadcast,
	// commit) in order, so tests can assert ordering across methods that
	// each also keep their own per-method slice above.
	Calls []string

	// FailTxnID, if set, causes calls naming that transaction ID to
	// return an error instead of succeeding. RollbackTransaction always
	// succeeds.
	FailTxnID string
}

func NewFake() *Fake {
	return &Fake{}
}

func (f *Fake) StartTransaction(ctx context.Context, txnID string, peers []string, nodesAdded, nodesRemoved []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.StartedTxns = append(f.StartedTxns, txnID)
	return f.failIf(txnID)
}

func (f *Fake) UpdateRevisionAndManager(ctx context.Context, txnID string, peers []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RevisionsUpdated = append(f.RevisionsUpdated, txnID)
	f.Calls = append(f.Calls, "update-revision:"+txnID)
	return f.failIf(txnID)
}

func (f *Fake) BroadcastNewConfig(ctx context.Context, txnID string, nodes []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Broadcasts = append(f.Broadcasts, txnID)
	f.Calls = append(f.Calls, "broadcast:"+txnID)
	return f.failIf(txnID)
}

func (f *Fake) CommitTransaction(ctx context.Context, txnID string, peers []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Commits = append(f.Commits, txnID)
	f.Calls = append(f.Calls, "commit:"+txnID)
	return f.failIf(txnID)
}

func (f *Fake) RollbackTransaction(ctx context.Context, txnID string, peers []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Rollbacks = append(f.Rollbacks, txnID)
	return nil
}

func (f *Fake) ActivateNode(ctx context.Context, txnID, node string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Activated = append(f.Activated, node)
	return f.failIf(txnID)
}

func (f *Fake) DeactivateNode(ctx context.Context, txnID, node string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Deactivated = append(f.Deactivated, node)
	return f.failIf(txnID)
}

func (f *Fake) MovePrimary(ctx context.Context, txnID, newPrimary string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.MovedPrimaryTo = append(f.MovedPrimaryTo, newPrimary)
	return f.failIf(txnID)
}

func (f *Fake) failIf(txnID string) error {
	if f.FailTxnID != "" && txnID == f.FailTxnID {
		return errFake
	}
	return nil
}

type fakeError string

func (e fakeError) Error() string { return string(e) }

const errFake = fakeError("rpc: fake configured to fail this transaction")

var (
	_ TxnClient  = (*Fake)(nil)
	_ NodeClient = (*Fake)(nil)
)
