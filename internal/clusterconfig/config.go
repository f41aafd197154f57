// Package clusterconfig resolves cluster membership and process
// placement from the on-disk XML cluster config and the cmapi INI
// settings file.
package clusterconfig

// ClusterView is a point-in-time snapshot of cluster membership as seen
// by the local node.
type ClusterView struct {
	Desired  []string // every node the cluster is configured to have
	Active   []string // nodes currently believed active
	Inactive []string // nodes currently believed inactive
	Primary  string   // current primary node, "" if none
	Self     string   // the local node's own name
}

// Config is the read side of the cluster's XML configuration, as
// consumed by the Node Monitor and Failover Agent. It deliberately
// exposes only the three queries those components need; anything else
// about the XML file is Config-implementation detail.
type Config interface {
	// GetAllNodes returns the full desired membership plus the current
	// active/inactive partitioning.
	GetAllNodes() (desired, active, inactive []string, err error)

	// WhoAmI returns the local node's own name as it appears in the
	// config.
	WhoAmI() (string, error)

	// GetPrimaryNode returns the current primary node name, or "" if
	// the cluster has none.
	GetPrimaryNode() (string, error)
}

// Snapshot builds a ClusterView from a Config in one call.
func Snapshot(c Config) (ClusterView, error) {
	desired, active, inactive, err := c.GetAllNodes()
	if err != nil {
		return ClusterView{}, err
	}
	self, err := c.WhoAmI()
	if err != nil {
		return ClusterView{}, err
	}
	primary, err := c.GetPrimaryNode()
	if err != nil {
		return ClusterView{}, err
	}
	return ClusterView{
		Desired:  desired,
		Active:   active,
		Inactive: inactive,
		Primary:  primary,
		Self:     self,
	}, nil
}
