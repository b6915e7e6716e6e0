package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/opst/mlcommons/pkg/cluster"
	"github.com/opst/mlcommons/pkg/wire"
)

type SendCall struct {
	Node    cluster.DiscoveryNode
	Action  string
	Request wire.Writeable
}

// Transport is a mock of cluster.Transport.
//
// Impl.Send returns a response to be encoded, or an error.
type Transport struct {
	mu   sync.Mutex
	Impl struct {
		Send func(ctx context.Context, node cluster.DiscoveryNode, action string, req wire.Writeable) (wire.Writeable, error)
	}
	Calls struct {
		Send []SendCall
	}
}

var _ cluster.Transport = &Transport{}

func New() *Transport {
	return &Transport{}
}

func (m *Transport) Send(ctx context.Context, node cluster.DiscoveryNode, action string, req wire.Writeable) (*wire.StreamInput, error) {
	m.mu.Lock()
	m.Calls.Send = append(m.Calls.Send, SendCall{Node: node, Action: action, Request: req})
	impl := m.Impl.Send
	m.mu.Unlock()
	if impl == nil {
		panic(errors.New("should not be called"))
	}

	resp, err := impl(ctx, node, action, req)
	if err != nil {
		return nil, err
	}
	payload, err := wire.Marshal(resp, wire.Current)
	if err != nil {
		return nil, err
	}
	return wire.NewStreamInput(payload), nil
}

// SentTo returns ids of nodes requested, in the order of calls.
func (m *Transport) SentTo() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.Calls.Send))
	for _, c := range m.Calls.Send {
		ids = append(ids, c.Node.Id)
	}
	return ids
}
