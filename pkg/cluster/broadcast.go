package cluster

import (
	"context"
	"fmt"
	"time"

	"github.com/opst/mlcommons/pkg/wire"
)

// Broadcaster sends a request to nodes of the cluster, and gathers their responses.
type Broadcaster struct {
	state       *State
	transport   Transport
	parallelism int64
	timeout     time.Duration
}

type BroadcastOption func(*Broadcaster) *Broadcaster

// WithParallelism limits how many nodes are requested at once. Default is 8.
func WithParallelism(n int64) BroadcastOption {
	return func(b *Broadcaster) *Broadcaster {
		b.parallelism = n
		return b
	}
}

// WithNodeTimeout limits time for each node to respond. Zero means no limit.
func WithNodeTimeout(d time.Duration) BroadcastOption {
	return func(b *Broadcaster) *Broadcaster {
		b.timeout = d
		return b
	}
}

func NewBroadcaster(state *State, transport Transport, options ...BroadcastOption) *Broadcaster {
	b := &Broadcaster{state: state, transport: transport, parallelism: 8}
	for _, opt := range options {
		b = opt(b)
	}
	return b
}

func (b *Broadcaster) ClusterName() string {
	return b.state.ClusterName()
}

func (b *Broadcaster) State() *State {
	return b.state
}

// Broadcast sends req to nodes of nodeIds (all data nodes when empty), and reads responses with read.
//
// Ids which are not members of the cluster are reported as failures, after failures from nodes.
func Broadcast[R any](
	ctx context.Context, b *Broadcaster, action string, nodeIds []string,
	req wire.Writeable, read func(*wire.StreamInput) (R, error),
) ([]NodeResult[R], []*FailedNodeError) {
	nodes, unknown := b.state.Nodes().Resolve(nodeIds...)
	results, failures := BroadcastTo(ctx, b, action, nodes, req, read)
	for _, id := range unknown {
		failures = append(failures, NewFailedNodeError(id, fmt.Errorf("%w: %s", ErrUnknownNode, id)))
	}
	return results, failures
}

// BroadcastTo sends req to nodes as they are given.
func BroadcastTo[R any](
	ctx context.Context, b *Broadcaster, action string, nodes []DiscoveryNode,
	req wire.Writeable, read func(*wire.StreamInput) (R, error),
) ([]NodeResult[R], []*FailedNodeError) {
	return FanOut(ctx, nodes, b.parallelism, func(ctx context.Context, node DiscoveryNode) (R, error) {
		if b.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, b.timeout)
			defer cancel()
		}
		return Call(ctx, b.transport, node, action, req, read)
	})
}
