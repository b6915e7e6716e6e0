// Package modelcache holds models deployed on this node and their rate limiters.
package modelcache

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"sync"

	"github.com/opst/mlcommons/pkg/domain/controller"
	"golang.org/x/time/rate"
)

type entry struct {
	limiters map[string]*rate.Limiter
}

// Cache is the node-local state of deployed models.
type Cache struct {
	mu     sync.RWMutex
	models map[string]*entry
}

func New() *Cache {
	return &Cache{models: map[string]*entry{}}
}

// Deploy marks the model as deployed on this node.
func (c *Cache) Deploy(modelId string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.models[modelId]; !ok {
		c.models[modelId] = &entry{}
	}
}

// Undeploy forgets the model and its limiters.
func (c *Cache) Undeploy(modelId string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.models, modelId)
}

func (c *Cache) IsDeployed(modelId string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.models[modelId]
	return ok
}

// DeployedModels returns ids of deployed models, sorted.
func (c *Cache) DeployedModels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.models))
	for id := range c.models {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// NewLimiter builds a token bucket from r.
//
// Tokens are refilled at Number per Unit, and the bucket holds Number tokens at most.
func NewLimiter(r *controller.RateLimiter) (*rate.Limiter, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("rate limiter needs both of number and unit: %+v", r)
	}
	number, err := strconv.ParseFloat(r.Number, 64)
	if err != nil {
		return nil, fmt.Errorf("rate limit number is not a number: %s", r.Number)
	}
	if number <= 0 {
		return nil, fmt.Errorf("rate limit number should be positive: %s", r.Number)
	}
	if math.MaxInt32 < number {
		return nil, fmt.Errorf("rate limit number is too large: %s", r.Number)
	}
	per := r.Unit.Duration()
	if per <= 0 {
		return nil, fmt.Errorf("%w: %s", controller.ErrUnknownTimeUnit, r.Unit)
	}
	burst := max(int(math.Ceil(number)), 1)
	return rate.NewLimiter(rate.Limit(number/per.Seconds()), burst), nil
}

// SetController installs limiters of the controller for its model.
//
// Users with invalid (incomplete) limiters are left unlimited.
// When the model is not deployed on this node, it returns false and changes nothing.
func (c *Cache) SetController(ctrl *controller.Controller) (bool, error) {
	limiters := map[string]*rate.Limiter{}
	for user, r := range ctrl.Limiters {
		if !r.IsValid() {
			continue
		}
		l, err := NewLimiter(r)
		if err != nil {
			return false, fmt.Errorf("user %s: %w", user, err)
		}
		limiters[user] = l
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.models[ctrl.ModelId]
	if !ok {
		return false, nil
	}
	e.limiters = limiters
	return true, nil
}

// RemoveController drops limiters of the model, and tells whether the model is deployed on this node.
func (c *Cache) RemoveController(modelId string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.models[modelId]
	if !ok {
		return false
	}
	e.limiters = nil
	return true
}

// Limiter returns the limiter of the user for the model, if installed.
func (c *Cache) Limiter(modelId string, user string) (*rate.Limiter, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.models[modelId]
	if !ok || e.limiters == nil {
		return nil, false
	}
	l, ok := e.limiters[user]
	return l, ok
}

// Allow tells whether the user can make a request to the model now.
//
// Users without limiters are always allowed.
func (c *Cache) Allow(modelId string, user string) bool {
	l, ok := c.Limiter(modelId, user)
	if !ok {
		return true
	}
	return l.Allow()
}
