package action

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/opst/mlcommons/pkg/cluster"
	xe "github.com/opst/mlcommons/pkg/errors"
	"github.com/opst/mlcommons/pkg/wire"
)

var ErrDuplicatedAction = errors.New("action is already registered")

// Registry maps action names to their handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]cluster.Handler
}

var _ cluster.Lookup = &Registry{}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]cluster.Handler{}}
}

func (r *Registry) Register(name string, handler cluster.Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicatedAction, name)
	}
	r.handlers[name] = handler
	return nil
}

func (r *Registry) Lookup(name string) (cluster.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns registered action names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for n := range r.handlers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Handle adapts a typed function into a cluster.Handler.
//
// Malformed requests are reported with wire.ErrMalformed.
func Handle[Req any, Resp wire.Writeable](
	read func(*wire.StreamInput) (Req, error),
	fn func(context.Context, Req) (Resp, error),
) cluster.Handler {
	return func(ctx context.Context, in *wire.StreamInput) (wire.Writeable, error) {
		req, err := read(in)
		if err != nil {
			if errors.Is(err, wire.ErrMalformed) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", wire.ErrMalformed, err)
		}
		return fn(ctx, req)
	}
}

// FromActionRequest rebuilds req as T.
//
// When req is already T, it is returned as it is.
// Otherwise req is serialized and read back with read.
func FromActionRequest[T any](req wire.Writeable, read func(*wire.StreamInput) (T, error)) (T, error) {
	return convert(req, read, "ActionRequest")
}

// FromActionResponse is FromActionRequest for responses.
func FromActionResponse[T any](resp wire.Writeable, read func(*wire.StreamInput) (T, error)) (T, error) {
	return convert(resp, read, "ActionResponse")
}

func convert[T any](w wire.Writeable, read func(*wire.StreamInput) (T, error), kind string) (T, error) {
	if t, ok := w.(T); ok {
		return t, nil
	}
	var zero T
	payload, err := wire.Marshal(w, wire.Current)
	if err != nil {
		return zero, xe.WrapWithNote(fmt.Sprintf("failed to parse %s into %T", kind, zero), err)
	}
	t, err := wire.Unmarshal(payload, wire.Current, read)
	if err != nil {
		return zero, xe.WrapWithNote(fmt.Sprintf("failed to parse %s into %T", kind, zero), err)
	}
	return t, nil
}
