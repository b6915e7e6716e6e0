package cluster

import (
	"errors"
	"fmt"

	"github.com/opst/mlcommons/pkg/wire"
)

var ErrUnknownNode = errors.New("node is not a member of the cluster")

// FailedNodeError is a failure on one node in a fan-out.
//
// It is data reported with successful responses, not an error aborting the fan-out.
type FailedNodeError struct {
	NodeId string
	Cause  error
}

func NewFailedNodeError(nodeId string, cause error) *FailedNodeError {
	return &FailedNodeError{NodeId: nodeId, Cause: cause}
}

func (e *FailedNodeError) Error() string {
	return fmt.Sprintf("[%s] %s", e.NodeId, e.Cause)
}

func (e *FailedNodeError) Unwrap() error {
	return e.Cause
}

// WriteTo writes node id and message. The cause type is not kept over the wire.
func (e *FailedNodeError) WriteTo(out *wire.StreamOutput) error {
	out.WriteString(e.NodeId)
	out.WriteString(e.Cause.Error())
	return nil
}

func ReadFailedNodeError(in *wire.StreamInput) (*FailedNodeError, error) {
	nodeId, err := in.ReadString()
	if err != nil {
		return nil, err
	}
	message, err := in.ReadString()
	if err != nil {
		return nil, err
	}
	return &FailedNodeError{NodeId: nodeId, Cause: errors.New(message)}, nil
}

// FailedNodeIds returns ids of nodes in failures.
func FailedNodeIds(failures []*FailedNodeError) []string {
	ids := make([]string, 0, len(failures))
	for _, f := range failures {
		ids = append(ids, f.NodeId)
	}
	return ids
}
