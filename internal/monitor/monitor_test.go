package monitor

import (
	"context"
	"sync"
	"testing"

	"cmapid/internal/clusterconfig"
	"cmapid/internal/heartbeat"
)

type fakeConfig struct {
	mu                        sync.Mutex
	desired, active, inactive []string
	self, primary             string
}

func (c *fakeConfig) GetAllNodes() (desired, active, inactive []string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.desired...), append([]string(nil), c.active...), append([]string(nil), c.inactive...), nil
}
func (c *fakeConfig) WhoAmI() (string, error) { return c.self, nil }
func (c *fakeConfig) GetPrimaryNode() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.primary, nil
}

type recordingSink struct {
	mu           sync.Mutex
	activated    [][]string
	deactivated  [][]string
	movePrimary  int
	standby      int
	alarms       []string
}

func (s *recordingSink) ActivateNodes(nodes []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activated = append(s.activated, nodes)
}
func (s *recordingSink) DeactivateNodes(nodes []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deactivated = append(s.deactivated, nodes)
}
func (s *recordingSink) MovePrimaryNode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movePrimary++
}
func (s *recordingSink) EnterStandbyMode() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.standby++
}
func (s *recordingSink) RaiseAlarm(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alarms = append(s.alarms, msg)
}

func newMonitorForTest(cfg *fakeConfig, hist *heartbeat.History, sink *recordingSink) *NodeMonitor {
	m := NewNodeMonitor(cfg, hist, nil, sink, 5, 0.5)
	return m
}

func TestThreeNodeOnePeerFlaky(t *testing.T) {
	cfg := &fakeConfig{
		desired: []string{"n1", "n2", "n3"},
		active:  []string{"n1", "n2", "n3"},
		self:    "n1",
		primary: "n1",
	}
	hist := heartbeat.NewHistory(10)
	for i := 0; i < 5; i++ {
		hist.Record("n2", heartbeat.GoodResponse)
		hist.Record("n3", heartbeat.NoResponse)
	}
	sink := &recordingSink{}
	m := newMonitorForTest(cfg, hist, sink)

	m.tick(context.Background())

	if len(sink.deactivated) != 1 || len(sink.deactivated[0]) != 1 || sink.deactivated[0][0] != "n3" {
		t.Fatalf("deactivated = %v, want [[n3]]", sink.deactivated)
	}
}

func TestPrimaryDiesTriggersMovePrimary(t *testing.T) {
	cfg := &fakeConfig{
		desired: []string{"n1", "n2", "n3"},
		active:  []string{"n1", "n2", "n3"},
		self:    "n2",
		primary: "n1",
	}
	hist := heartbeat.NewHistory(10)
	for i := 0; i < 5; i++ {
		hist.Record("n1", heartbeat.NoResponse)
		hist.Record("n3", heartbeat.GoodResponse)
	}
	sink := &recordingSink{}
	m := newMonitorForTest(cfg, hist, sink)

	// self = n2 is lexicographically first among surviving nodes
	// {n2, n3}, so n2 is elected actor and should issue the move.
	m.tick(context.Background())

	if sink.movePrimary == 0 {
		t.Fatalf("expected MovePrimaryNode to be called when primary n1 is deactivated, sink=%+v", sink)
	}
	if len(sink.deactivated) != 1 || sink.deactivated[0][0] != "n1" {
		t.Fatalf("deactivated = %v, want [[n1]]", sink.deactivated)
	}
}

func TestQuorumLossTriggersStandby(t *testing.T) {
	cfg := &fakeConfig{
		desired: []string{"n1", "n2", "n3", "n4"},
		active:  []string{"n1"},
		self:    "n1",
		primary: "n1",
	}
	hist := heartbeat.NewHistory(10)
	sink := &recordingSink{}
	m := newMonitorForTest(cfg, hist, sink)

	m.tick(context.Background())

	if len(sink.alarms) == 0 {
		t.Fatal("expected an alarm to be raised on quorum loss")
	}
	if sink.standby == 0 {
		t.Fatal("expected EnterStandbyMode to be called on quorum loss")
	}
}

func TestSingleNodeClusterIsAlwaysActor(t *testing.T) {
	cfg := &fakeConfig{desired: []string{"n1"}, active: []string{"n1"}, self: "n1", primary: "n1"}
	hist := heartbeat.NewHistory(10)
	sink := &recordingSink{}
	m := newMonitorForTest(cfg, hist, sink)

	m.tick(context.Background())

	if len(sink.deactivated) != 0 || len(sink.activated) != 0 {
		t.Fatalf("single-node cluster should never issue membership changes, sink=%+v", sink)
	}
}

func TestTwoNodeClusterActsOnFlakyPeer(t *testing.T) {
	cfg := &fakeConfig{desired: []string{"n1", "n2"}, active: []string{"n1", "n2"}, self: "n1", primary: "n1"}
	hist := heartbeat.NewHistory(10)
	for i := 0; i < 5; i++ {
		hist.Record("n2", heartbeat.NoResponse)
	}
	sink := &recordingSink{}
	m := newMonitorForTest(cfg, hist, sink)

	// n1 is still active by itself (activeFrac = 2/2), so quorum holds
	// and n1, the lone surviving effective-active node, is elected
	// actor and must run the full deactivate/activate/move-primary
	// logic even though the cluster is only two nodes wide.
	m.tick(context.Background())

	if len(sink.deactivated) != 1 || len(sink.deactivated[0]) != 1 || sink.deactivated[0][0] != "n2" {
		t.Fatalf("deactivated = %v, want [[n2]]", sink.deactivated)
	}
}

func TestElectActorIsDeterministic(t *testing.T) {
	got := electActor([]string{"n3", "n1", "n2"})
	// electActor expects a pre-sorted slice; computeEffectiveActive
	// guarantees that in production, so verify the function itself
	// just takes index 0.
	if got != "n3" {
		t.Fatalf("electActor = %q, want n3 (index 0 of input)", got)
	}
}

func TestRequiredQuorum(t *testing.T) {
	cases := map[int]int{1: 1, 2: 2, 3: 2, 4: 3, 5: 3}
	for desired, want := range cases {
		if got := RequiredQuorum(desired); got != want {
			t.Errorf("RequiredQuorum(%d) = %d, want %d", desired, got, want)
		}
	}
}

var _ clusterconfig.Config = (*fakeConfig)(nil)
