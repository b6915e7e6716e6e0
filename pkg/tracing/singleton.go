package tracing

import (
	"sync"

	"github.com/opst/mlcommons/pkg/sdk"
)

// Singleton holds a process-wide Tracer for callers which cannot be given one.
//
// New code should receive a *Tracer instead.
type Singleton struct {
	name     string
	mu       sync.RWMutex
	instance *Tracer
}

var (
	AgentTracer     = &Singleton{name: "agent"}
	ModelTracer     = &Singleton{name: "model"}
	ConnectorTracer = &Singleton{name: "connector"}
)

// Initialize sets the Tracer. A nil tracer is replaced with a no-op one.
func (s *Singleton) Initialize(t *Tracer) {
	if t == nil {
		t = Noop()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instance = t
}

// Reset forgets the Tracer, as if it were never initialized.
func (s *Singleton) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instance = nil
}

// Instance returns the Tracer.
//
// It is an IllegalStateError to get one before Initialize.
func (s *Singleton) Instance() (*Tracer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.instance == nil {
		return nil, sdk.NewIllegalStateError("%s tracer is not initialized", s.name)
	}
	return s.instance, nil
}

// InitializeAll initializes all singletons with t.
func InitializeAll(t *Tracer) {
	for _, s := range []*Singleton{AgentTracer, ModelTracer, ConnectorTracer} {
		s.Initialize(t)
	}
}
