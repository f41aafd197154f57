package heartbeat

import (
	"context"
	"log"
	"net"
	"sync"
	"time"
)

// Prober issues a single liveness probe against a node and reports the
// result. Implementations must respect ctx cancellation.
type Prober interface {
	Probe(ctx context.Context, node string) ProbeResult
}

// TCPProber probes by opening and immediately closing a TCP connection
// to the node's address. Resolve maps a node name to a dial address
// ("host:port"); if nil, the node name is used as-is.
type TCPProber struct {
	Timeout time.Duration
	Resolve func(node string) (string, error)
}

func (p *TCPProber) Probe(ctx context.Context, node string) ProbeResult {
	addr := node
	if p.Resolve != nil {
		a, err := p.Resolve(node)
		if err != nil {
			return NoResponse
		}
		addr = a
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return NoResponse
	}
	conn.Close()
	return GoodResponse
}

// PeerLister reports which nodes should currently be probed (the live
// cluster view minus the local node).
type PeerLister interface {
	PeersToProbe() ([]string, error)
}

// Heartbeater issues one round of liveness probes, fanned out
// concurrently across peers, recording each result into a History. It
// can run its own autonomous ticking loop via Start, and is also safe to
// drive explicitly via SendHeartbeats from another control loop.
type Heartbeater struct {
	prober   Prober
	history  *History
	peers    PeerLister
	interval time.Duration

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
}

// NewHeartbeater builds a Heartbeater. interval governs the cadence of
// the autonomous loop started by Start; it has no effect on
// SendHeartbeats, which always runs a single round immediately.
func NewHeartbeater(prober Prober, history *History, peers PeerLister, interval time.Duration) *Heartbeater {
	if interval <= 0 {
		interval = time.Second
	}
	return &Heartbeater{
		prober:   prober,
		history:  history,
		peers:    peers,
		interval: interval,
	}
}

// Start launches the autonomous probe loop in a new goroutine. Calling
// Start on an already-started Heartbeater is a no-op.
func (hb *Heartbeater) Start(ctx context.Context) {
	hb.mu.Lock()
	if hb.started {
		hb.mu.Unlock()
		return
	}
	hb.started = true
	hb.stopCh = make(chan struct{})
	hb.mu.Unlock()

	go func() {
		ticker := time.NewTicker(hb.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-hb.stopCh:
				return
			case <-ticker.C:
				hb.SendHeartbeats(ctx)
			}
		}
	}()
}

// Stop halts the autonomous loop started by Start. No-op if never started.
func (hb *Heartbeater) Stop() {
	hb.mu.Lock()
	defer hb.mu.Unlock()
	if !hb.started {
		return
	}
	close(hb.stopCh)
	hb.started = false
}

// SendHeartbeats runs a single probe round against every peer reported
// by PeerLister, recording results into History. Probes fan out
// concurrently and the call blocks until all have completed.
func (hb *Heartbeater) SendHeartbeats(ctx context.Context) {
	peers, err := hb.peers.PeersToProbe()
	if err != nil {
		log.Printf("heartbeat: could not list peers to probe: %v", err)
		return
	}

	var wg sync.WaitGroup
	for _, node := range peers {
		wg.Add(1)
		go func(node string) {
			defer wg.Done()
			result := hb.prober.Probe(ctx, node)
			hb.history.Record(node, result)
		}(node)
	}
	wg.Wait()
}
