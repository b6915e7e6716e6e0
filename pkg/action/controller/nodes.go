package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/opst/mlcommons/pkg/cluster"
	ctrl "github.com/opst/mlcommons/pkg/domain/controller"
	"github.com/opst/mlcommons/pkg/wire"
)

// Operation is what nodes do with the controller.
type Operation int32

const (
	Deploy Operation = iota
	Undeploy
)

func (o Operation) String() string {
	switch o {
	case Deploy:
		return "deploy"
	case Undeploy:
		return "undeploy"
	default:
		return fmt.Sprintf("Operation(%d)", int32(o))
	}
}

// NodesRequest asks nodes to deploy or undeploy the controller of a model.
//
// Target nodes are given as ids, or as concrete nodes. When both are empty, all data nodes are targeted.
type NodesRequest struct {
	Operation     Operation
	Family        ctrl.Family
	ModelId       string
	TenantId      string
	NodeIds       []string
	ConcreteNodes []cluster.DiscoveryNode
}

// WriteTo writes r. Tenant id is written only for version 3.1.0 or later.
func (r *NodesRequest) WriteTo(out *wire.StreamOutput) error {
	out.WriteVInt(int32(r.Operation))
	out.WriteVInt(int32(r.Family))
	out.WriteString(r.ModelId)
	out.WriteOptionalStringArray(r.NodeIds)
	if r.ConcreteNodes == nil {
		out.WriteBool(false)
	} else {
		out.WriteBool(true)
		if err := wire.WriteList(out, r.ConcreteNodes); err != nil {
			return err
		}
	}
	if out.Version().OnOrAfter(wire.V_3_1_0) {
		out.WriteOptionalString(r.TenantId)
	}
	return nil
}

func ReadNodesRequest(in *wire.StreamInput) (*NodesRequest, error) {
	op, err := in.ReadVInt()
	if err != nil {
		return nil, err
	}
	if Operation(op) != Deploy && Operation(op) != Undeploy {
		return nil, fmt.Errorf("%w: unknown operation %d", wire.ErrMalformed, op)
	}
	family, err := in.ReadVInt()
	if err != nil {
		return nil, err
	}
	if !ctrl.Family(family).IsValid() {
		return nil, fmt.Errorf("%w: unknown controller family %d", wire.ErrMalformed, family)
	}
	modelId, err := in.ReadString()
	if err != nil {
		return nil, err
	}
	nodeIds, err := in.ReadOptionalStringArray()
	if err != nil {
		return nil, err
	}
	r := &NodesRequest{
		Operation: Operation(op),
		Family:    ctrl.Family(family),
		ModelId:   modelId,
		NodeIds:   nodeIds,
	}

	present, err := in.ReadBool()
	if err != nil {
		return nil, err
	}
	if present {
		nodes, err := wire.ReadList(in, cluster.ReadDiscoveryNode)
		if err != nil {
			return nil, err
		}
		r.ConcreteNodes = nodes
	}
	if in.Version().OnOrAfter(wire.V_3_1_0) {
		tenantId, err := in.ReadOptionalString()
		if err != nil {
			return nil, err
		}
		r.TenantId = tenantId
	}
	return r, nil
}

// NodeRequest is a NodesRequest sent to one node.
type NodeRequest struct {
	Nodes *NodesRequest
}

func (r *NodeRequest) WriteTo(out *wire.StreamOutput) error {
	return r.Nodes.WriteTo(out)
}

func ReadNodeRequest(in *wire.StreamInput) (*NodeRequest, error) {
	nodes, err := ReadNodesRequest(in)
	if err != nil {
		return nil, err
	}
	return &NodeRequest{Nodes: nodes}, nil
}

// NodeResponse is a result on one node: status per model.
//
// A nil or empty status means the node had nothing to report.
type NodeResponse struct {
	Node   cluster.DiscoveryNode
	Status map[string]string
}

func (r *NodeResponse) IsStatusEmpty() bool {
	return len(r.Status) == 0
}

func (r *NodeResponse) IsControllerDeployStatusEmpty() bool {
	return r.IsStatusEmpty()
}

func (r *NodeResponse) IsControllerUndeployStatusEmpty() bool {
	return r.IsStatusEmpty()
}

func (r *NodeResponse) IsModelControllerDeployStatusEmpty() bool {
	return r.IsStatusEmpty()
}

func (r *NodeResponse) IsModelControllerUndeployStatusEmpty() bool {
	return r.IsStatusEmpty()
}

func (r *NodeResponse) WriteTo(out *wire.StreamOutput) error {
	if err := r.Node.WriteTo(out); err != nil {
		return err
	}
	out.WriteOptionalStringMap(r.Status)
	return nil
}

func ReadNodeResponse(in *wire.StreamInput) (*NodeResponse, error) {
	node, err := cluster.ReadDiscoveryNode(in)
	if err != nil {
		return nil, err
	}
	status, err := in.ReadOptionalStringMap()
	if err != nil {
		return nil, err
	}
	return &NodeResponse{Node: node, Status: status}, nil
}

// NodesResponse gathers responses and failures of nodes.
type NodesResponse struct {
	ClusterName string
	Nodes       []*NodeResponse
	Failures    []*cluster.FailedNodeError
}

// NewNodesResponse assembles results of a broadcast.
func NewNodesResponse(clusterName string, results []cluster.NodeResult[*NodeResponse], failures []*cluster.FailedNodeError) *NodesResponse {
	nodes := make([]*NodeResponse, 0, len(results))
	for _, r := range results {
		nodes = append(nodes, r.Response)
	}
	return &NodesResponse{ClusterName: clusterName, Nodes: nodes, Failures: failures}
}

func (r *NodesResponse) HasFailures() bool {
	return len(r.Failures) != 0
}

// FailedNodeIds returns ids of failed nodes, in the order of failures.
func (r *NodesResponse) FailedNodeIds() []string {
	return cluster.FailedNodeIds(r.Failures)
}

func (r *NodesResponse) WriteTo(out *wire.StreamOutput) error {
	out.WriteString(r.ClusterName)
	if err := wire.WriteList(out, r.Nodes); err != nil {
		return err
	}
	return wire.WriteList(out, r.Failures)
}

func ReadNodesResponse(in *wire.StreamInput) (*NodesResponse, error) {
	clusterName, err := in.ReadString()
	if err != nil {
		return nil, err
	}
	nodes, err := wire.ReadList(in, ReadNodeResponse)
	if err != nil {
		return nil, err
	}
	failures, err := wire.ReadList(in, cluster.ReadFailedNodeError)
	if err != nil {
		return nil, err
	}
	return &NodesResponse{ClusterName: clusterName, Nodes: nodes, Failures: failures}, nil
}

// MarshalJSON renders status of each node as {"<node id>":{"<model id>":"<status>"}}.
//
// Nodes with empty status are omitted, so that the rendering cannot be read back into r.
func (r *NodesResponse) MarshalJSON() ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	first := true
	for _, n := range r.Nodes {
		if n.IsStatusEmpty() {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false

		key, err := json.Marshal(n.Node.Id)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		keys := make([]string, 0, len(n.Status))
		for k := range n.Status {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if 0 < i {
				buf.WriteByte(',')
			}
			kv, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			vv, err := json.Marshal(n.Status[k])
			if err != nil {
				return nil, err
			}
			buf.Write(kv)
			buf.WriteByte(':')
			buf.Write(vv)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
