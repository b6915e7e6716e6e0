package cluster

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// NodeResult is a response from a node in a fan-out.
type NodeResult[R any] struct {
	Node     DiscoveryNode
	Response R
}

// FanOut calls call for each node, running at most parallelism calls at once.
//
// Errors from call do not stop other calls. They are collected as FailedNodeError.
// Both of results and failures keep the order of nodes.
//
// When ctx is done before a call starts, the call is reported as failed with ctx.Err().
func FanOut[R any](
	ctx context.Context,
	nodes []DiscoveryNode,
	parallelism int64,
	call func(context.Context, DiscoveryNode) (R, error),
) ([]NodeResult[R], []*FailedNodeError) {
	if parallelism <= 0 {
		parallelism = 1
	}
	sem := semaphore.NewWeighted(parallelism)

	type outcome struct {
		value R
		err   error
	}
	outcomes := make([]outcome, len(nodes))

	wg := new(sync.WaitGroup)
	for i, n := range nodes {
		if err := sem.Acquire(ctx, 1); err != nil {
			outcomes[i].err = err
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			v, err := call(ctx, n)
			outcomes[i] = outcome{value: v, err: err}
		}()
	}
	wg.Wait()

	results := []NodeResult[R]{}
	failures := []*FailedNodeError{}
	for i, o := range outcomes {
		if o.err != nil {
			failures = append(failures, NewFailedNodeError(nodes[i].Id, o.err))
			continue
		}
		results = append(results, NodeResult[R]{Node: nodes[i], Response: o.value})
	}
	return results, failures
}
