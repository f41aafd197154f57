// Package rpc defines the cluster-wide calls nodes make to each other
// to coordinate membership changes, and an HTTP implementation of them.
package rpc

import "context"

// TxnClient is the cluster transaction protocol: every membership
// change is wrapped in a start/commit/rollback cycle across the whole
// cohort. The exact wire behavior of BroadcastNewConfig on a partial
// network failure is left to the implementation; callers treat any
// non-nil error as a whole-call failure.
type TxnClient interface {
	// StartTransaction asks every node in peers to prepare for the
	// given membership delta under a freshly minted transaction ID.
	StartTransaction(ctx context.Context, txnID string, peers []string, nodesAdded, nodesRemoved []string) error

	// UpdateRevisionAndManager tells every node in peers to bump its
	// config revision and refresh its DBRM manager pointer. It runs
	// before BroadcastNewConfig so peers don't broadcast the new
	// membership against a stale revision.
	UpdateRevisionAndManager(ctx context.Context, txnID string, peers []string) error

	// BroadcastNewConfig pushes the updated config to every node in
	// nodes as part of committing txnID.
	BroadcastNewConfig(ctx context.Context, txnID string, nodes []string) error

	CommitTransaction(ctx context.Context, txnID string, peers []string) error
	RollbackTransaction(ctx context.Context, txnID string, peers []string) error
}

// NodeClient is the cluster node-manipulation protocol: activating,
// deactivating, and moving the primary role. Like TxnClient, the exact
// request/response shape beyond success/failure is opaque and owned by
// whatever DBRM/config-broadcast backend is wired in at start-up.
type NodeClient interface {
	ActivateNode(ctx context.Context, txnID string, node string) error
	DeactivateNode(ctx context.Context, txnID string, node string) error
	MovePrimary(ctx context.Context, txnID string, newPrimary string) error
}
