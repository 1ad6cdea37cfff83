package provider

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/lokeshec23/GC-AI/internal/schema"
	"github.com/lokeshec23/GC-AI/internal/text"
)

// Registry maps provider names to adapters. Adapters are long-lived and
// shared by every job; credentials travel in ModelConfig.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

func (r *Registry) Register(name string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[name] = a
}

func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %q", name)
	}
	return a, nil
}

type limitedAdapter struct {
	next    Adapter
	limiter *rate.Limiter
}

// WithRateLimit throttles calls to next. The limiter is shared by every
// session that uses the returned adapter.
func WithRateLimit(next Adapter, limiter *rate.Limiter) Adapter {
	if limiter == nil {
		return next
	}
	return &limitedAdapter{next: next, limiter: limiter}
}

func (a *limitedAdapter) Extract(ctx context.Context, chunk text.Chunk, prompt string, cfg ModelConfig) ([]schema.Row, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return a.next.Extract(ctx, chunk, prompt, cfg)
}
