// Package cluster knows nodes forming a cluster, and sends requests to them.
package cluster

import (
	"slices"
	"sort"
	"sync"

	"github.com/opst/mlcommons/pkg/wire"
)

const RoleData = "data"

type DiscoveryNode struct {
	Id      string
	Name    string
	Address string
	Roles   []string
}

func (n DiscoveryNode) IsDataNode() bool {
	return slices.Contains(n.Roles, RoleData)
}

func (n DiscoveryNode) WriteTo(out *wire.StreamOutput) error {
	out.WriteString(n.Id)
	out.WriteString(n.Name)
	out.WriteString(n.Address)
	out.WriteStringArray(n.Roles)
	return nil
}

func ReadDiscoveryNode(in *wire.StreamInput) (DiscoveryNode, error) {
	var n DiscoveryNode
	var err error
	if n.Id, err = in.ReadString(); err != nil {
		return n, err
	}
	if n.Name, err = in.ReadString(); err != nil {
		return n, err
	}
	if n.Address, err = in.ReadString(); err != nil {
		return n, err
	}
	if n.Roles, err = in.ReadStringArray(); err != nil {
		return n, err
	}
	return n, nil
}

// DiscoveryNodes is a snapshot of the cluster membership.
type DiscoveryNodes struct {
	localNodeId string
	nodes       map[string]DiscoveryNode
}

// NewDiscoveryNodes builds a snapshot. local is always a member.
func NewDiscoveryNodes(local DiscoveryNode, others ...DiscoveryNode) *DiscoveryNodes {
	nodes := map[string]DiscoveryNode{local.Id: local}
	for _, n := range others {
		if n.Id == local.Id {
			continue
		}
		nodes[n.Id] = n
	}
	return &DiscoveryNodes{localNodeId: local.Id, nodes: nodes}
}

func (d *DiscoveryNodes) LocalNodeId() string {
	return d.localNodeId
}

func (d *DiscoveryNodes) LocalNode() DiscoveryNode {
	return d.nodes[d.localNodeId]
}

func (d *DiscoveryNodes) Get(id string) (DiscoveryNode, bool) {
	n, ok := d.nodes[id]
	return n, ok
}

func (d *DiscoveryNodes) Size() int {
	return len(d.nodes)
}

// Nodes returns all nodes, ordered by id.
func (d *DiscoveryNodes) Nodes() []DiscoveryNode {
	ids := make([]string, 0, len(d.nodes))
	for id := range d.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	nodes := make([]DiscoveryNode, 0, len(ids))
	for _, id := range ids {
		nodes = append(nodes, d.nodes[id])
	}
	return nodes
}

// DataNodes returns nodes having data role, ordered by id.
func (d *DiscoveryNodes) DataNodes() []DiscoveryNode {
	return slices.DeleteFunc(d.Nodes(), func(n DiscoveryNode) bool { return !n.IsDataNode() })
}

// Resolve finds nodes by ids, in the order of ids.
//
// Empty ids means all data nodes. Ids which are not members are returned as unknown.
func (d *DiscoveryNodes) Resolve(ids ...string) (nodes []DiscoveryNode, unknown []string) {
	if len(ids) == 0 {
		return d.DataNodes(), nil
	}
	seen := map[string]struct{}{}
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		if n, ok := d.nodes[id]; ok {
			nodes = append(nodes, n)
		} else {
			unknown = append(unknown, id)
		}
	}
	return nodes, unknown
}

// State holds the latest membership, replaced by discovery.
type State struct {
	clusterName string
	mu          sync.RWMutex
	nodes       *DiscoveryNodes
}

func NewState(clusterName string, nodes *DiscoveryNodes) *State {
	return &State{clusterName: clusterName, nodes: nodes}
}

func (s *State) ClusterName() string {
	return s.clusterName
}

func (s *State) Nodes() *DiscoveryNodes {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes
}

func (s *State) Set(nodes *DiscoveryNodes) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = nodes
}
