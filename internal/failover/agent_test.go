package failover

import (
	"context"
	"errors"
	"testing"
	"time"

	"cmapid/internal/dispatch"
	"cmapid/internal/osops"
	"cmapid/internal/rpc"
)

type fakeConfig struct {
	desired, active, inactive []string
	self, primary             string
}

func (c fakeConfig) GetAllNodes() (desired, active, inactive []string, err error) {
	return c.desired, c.active, c.inactive, nil
}
func (c fakeConfig) WhoAmI() (string, error)         { return c.self, nil }
func (c fakeConfig) GetPrimaryNode() (string, error) { return c.primary, nil }

type fixedPeers struct{ peers []string }

func (f fixedPeers) PeersToCoordinate() ([]string, error) { return f.peers, nil }

type nopDispatcher struct{ running bool }

func (d *nopDispatcher) Start(ctx context.Context, service string, isPrimary, usePrivileged bool) bool {
	d.running = true
	return true
}
func (d *nopDispatcher) Stop(ctx context.Context, service string, isPrimary, usePrivileged bool) bool {
	d.running = false
	return true
}
func (d *nopDispatcher) Restart(ctx context.Context, service string, isPrimary, usePrivileged bool) bool {
	return true
}
func (d *nopDispatcher) IsRunning(ctx context.Context, service string, isPrimary bool) bool {
	return d.running
}

var _ dispatch.Dispatcher = (*nopDispatcher)(nil)

type nopAddrBook struct{}

func (nopAddrBook) WorkerNodeAddrs() ([]osops.Addr, error) { return nil, nil }
func (nopAddrBook) ControllerAddr() (osops.Addr, error)    { return osops.Addr{}, nil }

func newTestAgent(txn rpc.TxnClient, node rpc.NodeClient, cfg fakeConfig) *FailoverAgent {
	orch := osops.NewOrchestrator(&nopDispatcher{}, nopAddrBook{}, nil)
	return NewFailoverAgent(txn, node, cfg, orch, fixedPeers{peers: []string{"peer-b"}}, cfg.self)
}

func TestActivateNodesCallsNodeClientPerNode(t *testing.T) {
	fake := rpc.NewFake()
	cfg := fakeConfig{self: "node1", primary: "node1"}
	a := newTestAgent(fake, fake, cfg)

	txnID, _ := a.StartTransaction(context.Background(), []string{"n2"}, nil)
	if txnID == "" {
		t.Fatal("expected a transaction ID")
	}

	if err := a.ActivateNodes(context.Background(), []string{"n2", "n3"}); err != nil {
		t.Fatalf("ActivateNodes: %v", err)
	}
	if len(fake.Activated) != 2 {
		t.Fatalf("activated = %v, want 2 nodes", fake.Activated)
	}
}

func TestMovePrimaryNodeUsesSelf(t *testing.T) {
	fake := rpc.NewFake()
	cfg := fakeConfig{self: "node2", primary: "node1"}
	a := newTestAgent(fake, fake, cfg)

	a.StartTransaction(context.Background(), nil, nil)
	if err := a.MovePrimaryNode(context.Background()); err != nil {
		t.Fatalf("MovePrimaryNode: %v", err)
	}
	if len(fake.MovedPrimaryTo) != 1 || fake.MovedPrimaryTo[0] != "node2" {
		t.Fatalf("MovedPrimaryTo = %v, want [node2]", fake.MovedPrimaryTo)
	}
}

func TestCommitTransactionNeverRaises(t *testing.T) {
	fake := rpc.NewFake()
	fake.FailTxnID = "will-fail"
	cfg := fakeConfig{self: "node1", primary: "node1"}
	a := newTestAgent(fake, fake, cfg)

	// Must not panic even though the underlying RPC fails.
	a.CommitTransaction(context.Background(), "will-fail", []string{"node1"})
}

func TestCommitTransactionUpdatesRevisionBeforeBroadcastAndCommit(t *testing.T) {
	fake := rpc.NewFake()
	cfg := fakeConfig{self: "node1", primary: "node1"}
	a := newTestAgent(fake, fake, cfg)

	txnID, _ := a.StartTransaction(context.Background(), nil, nil)
	a.CommitTransaction(context.Background(), txnID, []string{"node1"})

	want := []string{"update-revision:" + txnID, "broadcast:" + txnID, "commit:" + txnID}
	if len(fake.Calls) != len(want) {
		t.Fatalf("calls = %v, want %v", fake.Calls, want)
	}
	for i, c := range want {
		if fake.Calls[i] != c {
			t.Errorf("calls[%d] = %q, want %q", i, fake.Calls[i], c)
		}
	}
}

func TestRollbackTransactionNeverRaises(t *testing.T) {
	fake := rpc.NewFake()
	cfg := fakeConfig{self: "node1", primary: "node1"}
	a := newTestAgent(fake, fake, cfg)

	a.RollbackTransaction(context.Background(), "whatever", []string{"node1"})
}

type flakyTxnClient struct {
	failTimes int
	calls     int
	rpc.Fake
}

func (f *flakyTxnClient) StartTransaction(ctx context.Context, txnID string, peers []string, added, removed []string) error {
	f.calls++
	if f.calls <= f.failTimes {
		return errors.New("coordinator unreachable")
	}
	return f.Fake.StartTransaction(ctx, txnID, peers, added, removed)
}

func TestStartTransactionRetriesUntilSuccess(t *testing.T) {
	flaky := &flakyTxnClient{failTimes: 3}
	cfg := fakeConfig{self: "node1", primary: "node1"}
	a := newTestAgent(flaky, rpc.NewFake(), cfg)

	start := time.Now()
	txnID, _ := a.StartTransaction(context.Background(), nil, nil)
	if txnID == "" {
		t.Fatal("expected eventual success")
	}
	if flaky.calls != 4 {
		t.Fatalf("calls = %d, want 4 (3 failures + 1 success)", flaky.calls)
	}
	if time.Since(start) < 3*time.Second {
		t.Fatalf("expected retries to be paced by at least 1s each")
	}
}

func TestStartTransactionAbortsOnContextCancel(t *testing.T) {
	flaky := &flakyTxnClient{failTimes: 1000}
	cfg := fakeConfig{self: "node1", primary: "node1"}
	a := newTestAgent(flaky, rpc.NewFake(), cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	txnID, desired := a.StartTransaction(ctx, nil, nil)
	if txnID != "" || desired != nil {
		t.Fatalf("expected empty result on cancellation, got %q %v", txnID, desired)
	}
}

func TestRaiseAlarmDebouncesIdenticalMessages(t *testing.T) {
	cfg := fakeConfig{self: "node1", primary: "node1"}
	a := newTestAgent(rpc.NewFake(), rpc.NewFake(), cfg)

	a.lastAlarmedAt["quorum lost"] = time.Now().Add(-alarmCooldown / 2)
	before := a.lastAlarmedAt["quorum lost"]
	a.RaiseAlarm("quorum lost")
	if a.lastAlarmedAt["quorum lost"] != before {
		t.Error("expected RaiseAlarm to suppress a repeat within the cooldown window")
	}

	a.lastAlarmedAt["quorum lost"] = time.Now().Add(-alarmCooldown * 2)
	a.RaiseAlarm("quorum lost")
	if a.lastAlarmedAt["quorum lost"] == before {
		t.Error("expected RaiseAlarm to fire again once the cooldown has elapsed")
	}
}

func TestComputeDesiredNodesAppliesDelta(t *testing.T) {
	cfg := fakeConfig{self: "node1", primary: "node1", desired: []string{"node1", "node2", "node3"}}
	a := newTestAgent(rpc.NewFake(), rpc.NewFake(), cfg)

	got := a.computeDesiredNodes([]string{"node4"}, []string{"node2"})
	want := map[string]bool{"node1": true, "node3": true, "node4": true}
	if len(got) != 3 {
		t.Fatalf("computeDesiredNodes = %v, want 3 entries", got)
	}
	for _, n := range got {
		if !want[n] {
			t.Errorf("unexpected node %s in result %v", n, got)
		}
	}
}
