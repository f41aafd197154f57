package agentcomm

import "context"

// Agent is the contract a Communicator drains events through. It is
// satisfied by internal/failover.FailoverAgent in production and by a
// test double in tests.
type Agent interface {
	ActivateNodes(ctx context.Context, nodes []string) error
	DeactivateNodes(ctx context.Context, nodes []string) error
	MovePrimaryNode(ctx context.Context) error
	EnterStandbyMode(ctx context.Context) error
	RaiseAlarm(msg string)

	// StartTransaction must retry indefinitely until it succeeds; it
	// never returns an error to the caller under normal operation. It
	// returns the transaction ID and a new snapshot of desired nodes
	// from the state of the cluster at that moment.
	StartTransaction(ctx context.Context, nodesAdded, nodesRemoved []string) (txnID string, desiredNodes []string)
	CommitTransaction(ctx context.Context, txnID string, desiredNodes []string)
	RollbackTransaction(ctx context.Context, txnID string, desiredNodes []string)
}
