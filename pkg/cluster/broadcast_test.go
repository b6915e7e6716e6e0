package cluster_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opst/mlcommons/pkg/cluster"
	"github.com/opst/mlcommons/pkg/cluster/mock"
	"github.com/opst/mlcommons/pkg/cmp"
	"github.com/opst/mlcommons/pkg/wire"
)

func TestBroadcast(t *testing.T) {
	state := cluster.NewState("ml-cluster", testNodes())

	t.Run("it sends to data nodes when no ids are given", func(t *testing.T) {
		transport := mock.New()
		transport.Impl.Send = func(_ context.Context, node cluster.DiscoveryNode, action string, req wire.Writeable) (wire.Writeable, error) {
			if action != echoAction {
				t.Errorf("unexpected action: %s", action)
			}
			return text("from " + node.Id), nil
		}
		testee := cluster.NewBroadcaster(state, transport)

		results, failures := cluster.Broadcast(context.Background(), testee, echoAction, nil, text("hi"), readText)
		if len(failures) != 0 {
			t.Errorf("unexpected failures: %v", failures)
		}
		got := []text{}
		for _, r := range results {
			got = append(got, r.Response)
		}
		if !cmp.SliceEq(got, []text{"from node-b", "from node-c"}) {
			t.Errorf("unexpected results: %v", got)
		}
		if !cmp.SliceContentEq(transport.SentTo(), []string{"node-b", "node-c"}) {
			t.Errorf("unexpected destinations: %v", transport.SentTo())
		}
		if testee.ClusterName() != "ml-cluster" {
			t.Errorf("cluster name: %s", testee.ClusterName())
		}
	})

	t.Run("failed nodes and unknown ids are reported as failures", func(t *testing.T) {
		transport := mock.New()
		transport.Impl.Send = func(_ context.Context, node cluster.DiscoveryNode, _ string, _ wire.Writeable) (wire.Writeable, error) {
			if node.Id == "node-a" {
				return nil, errors.New("unreachable")
			}
			return text("ok"), nil
		}
		testee := cluster.NewBroadcaster(state, transport, cluster.WithParallelism(1))

		results, failures := cluster.Broadcast(context.Background(), testee, echoAction, []string{"node-a", "node-x", "node-c"}, text(""), readText)
		if len(results) != 1 || results[0].Node.Id != "node-c" {
			t.Errorf("unexpected results: %+v", results)
		}
		if got := cluster.FailedNodeIds(failures); !cmp.SliceEq(got, []string{"node-a", "node-x"}) {
			t.Errorf("unexpected failures: %v", got)
		}
		if !errors.Is(failures[1], cluster.ErrUnknownNode) {
			t.Errorf("unexpected cause: %v", failures[1])
		}
	})

	t.Run("slow nodes time out", func(t *testing.T) {
		transport := mock.New()
		transport.Impl.Send = func(ctx context.Context, _ cluster.DiscoveryNode, _ string, _ wire.Writeable) (wire.Writeable, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		testee := cluster.NewBroadcaster(state, transport, cluster.WithNodeTimeout(10*time.Millisecond))

		results, failures := cluster.Broadcast(context.Background(), testee, echoAction, []string{"node-b"}, text(""), readText)
		if len(results) != 0 || len(failures) != 1 || !errors.Is(failures[0], context.DeadlineExceeded) {
			t.Errorf("unexpected outcome: %+v, %v", results, failures)
		}
	})
}
