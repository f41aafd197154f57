package main

import (
	"fmt"

	"cmapid/internal/clusterconfig"
	"cmapid/internal/osops"
)

// xmlAddrBook adapts clusterconfig.XMLConfig's []clusterconfig.Addr
// results to the []osops.Addr shape osops.AddrBook expects. The two
// Addr types are structurally identical but distinct named types, so
// osops (which must not import clusterconfig) can't consume the XML
// config directly.
type xmlAddrBook struct {
	cfg *clusterconfig.XMLConfig
}

func (b xmlAddrBook) WorkerNodeAddrs() ([]osops.Addr, error) {
	addrs, err := b.cfg.WorkerNodeAddrs()
	if err != nil {
		return nil, err
	}
	out := make([]osops.Addr, len(addrs))
	for i, a := range addrs {
		out[i] = osops.Addr{Host: a.Host, Port: a.Port}
	}
	return out, nil
}

func (b xmlAddrBook) ControllerAddr() (osops.Addr, error) {
	a, err := b.cfg.ControllerAddr()
	if err != nil {
		return osops.Addr{}, err
	}
	return osops.Addr{Host: a.Host, Port: a.Port}, nil
}

// peerLister derives "every configured node except self" from a
// clusterconfig.Config, satisfying both heartbeat.PeerLister and
// failover.PeerLister: both need the same list, just under different
// method names.
type peerLister struct {
	cfg clusterconfig.Config
}

func (p peerLister) allExceptSelf() ([]string, error) {
	desired, _, _, err := p.cfg.GetAllNodes()
	if err != nil {
		return nil, err
	}
	self, err := p.cfg.WhoAmI()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(desired))
	for _, n := range desired {
		if n != self {
			out = append(out, n)
		}
	}
	return out, nil
}

func (p peerLister) PeersToProbe() ([]string, error)      { return p.allExceptSelf() }
func (p peerLister) PeersToCoordinate() ([]string, error) { return p.allExceptSelf() }

// nodeResolver turns a node name into a dialable RPC base URL by
// pairing it with the fixed peer RPC port every node listens on.
type nodeResolver struct {
	port int
}

func (r nodeResolver) resolveURL(node string) (string, error) {
	return fmt.Sprintf("http://%s:%d", node, r.port), nil
}

func (r nodeResolver) resolveAddr(node string) (string, error) {
	return fmt.Sprintf("%s:%d", node, r.port), nil
}
