package heartbeat

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestHistoryLeftPads(t *testing.T) {
	h := NewHistory(5)
	h.Record("node-a", GoodResponse)

	got := h.GetNodeHistory("node-a", 4, Unknown)
	want := []ProbeResult{Unknown, Unknown, Unknown, GoodResponse}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("GetNodeHistory = %v, want %v", got, want)
		}
	}
}

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewHistory(3)
	h.Record("node-a", GoodResponse)
	h.Record("node-a", NoResponse)
	h.Record("node-a", GoodResponse)
	h.Record("node-a", NoResponse) // evicts first GoodResponse

	got := h.GetNodeHistory("node-a", 3, Unknown)
	want := []ProbeResult{NoResponse, GoodResponse, NoResponse}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("GetNodeHistory = %v, want %v", got, want)
		}
	}
}

func TestHistoryKeepOnlyTheseNodes(t *testing.T) {
	h := NewHistory(5)
	h.Record("a", GoodResponse)
	h.Record("b", GoodResponse)
	h.Record("c", GoodResponse)

	h.KeepOnlyTheseNodes([]string{"a", "c"})

	nodes := map[string]bool{}
	for _, n := range h.Nodes() {
		nodes[n] = true
	}
	if nodes["b"] {
		t.Fatalf("expected node b to be pruned, nodes = %v", nodes)
	}
	if !nodes["a"] || !nodes["c"] {
		t.Fatalf("expected a and c retained, nodes = %v", nodes)
	}
}

type fakeProber struct {
	results map[string]ProbeResult
}

func (f *fakeProber) Probe(ctx context.Context, node string) ProbeResult {
	if r, ok := f.results[node]; ok {
		return r
	}
	return NoResponse
}

type fixedPeerLister struct {
	peers []string
	err   error
}

func (f fixedPeerLister) PeersToProbe() ([]string, error) {
	return f.peers, f.err
}

func TestSendHeartbeatsRecordsAllPeers(t *testing.T) {
	history := NewHistory(5)
	prober := &fakeProber{results: map[string]ProbeResult{
		"a": GoodResponse,
		"b": NoResponse,
	}}
	hb := NewHeartbeater(prober, history, fixedPeerLister{peers: []string{"a", "b"}}, time.Second)

	hb.SendHeartbeats(context.Background())

	if got := history.GetNodeHistory("a", 1, Unknown)[0]; got != GoodResponse {
		t.Errorf("node a = %v, want GoodResponse", got)
	}
	if got := history.GetNodeHistory("b", 1, Unknown)[0]; got != NoResponse {
		t.Errorf("node b = %v, want NoResponse", got)
	}
}

func TestSendHeartbeatsPeerListError(t *testing.T) {
	history := NewHistory(5)
	prober := &fakeProber{}
	hb := NewHeartbeater(prober, history, fixedPeerLister{err: errors.New("config unavailable")}, time.Second)

	// Should not panic or record anything when peer listing fails.
	hb.SendHeartbeats(context.Background())

	if len(history.Nodes()) != 0 {
		t.Errorf("expected no nodes recorded, got %v", history.Nodes())
	}
}

func TestStartStopIsIdempotent(t *testing.T) {
	history := NewHistory(5)
	hb := NewHeartbeater(&fakeProber{}, history, fixedPeerLister{peers: nil}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hb.Start(ctx)
	hb.Start(ctx) // no-op, must not deadlock or double-launch
	time.Sleep(30 * time.Millisecond)
	hb.Stop()
	hb.Stop() // no-op
}
