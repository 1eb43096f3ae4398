package users

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Entity is anything the registry can keep alive: it declares its own
// expiry and is discarded once that time passes
type Entity interface {
	ExpiresAt() time.Time
}

// Factory constructs an entity of one kind for an id
type Factory func(ctx context.Context, id string) (Entity, error)

// Registry is a multi-entity cache keyed by (kind, id). A live entity
// is returned until its declared expiry passes; construction after
// that collapses concurrent callers into a single factory call. The
// flight group drops settled calls on its own, so failed constructions
// leave nothing behind and the next caller retries.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	live      map[string]map[string]Entity
	group     singleflight.Group

	// clock is replaceable in tests
	clock func() time.Time
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		live:      make(map[string]map[string]Entity),
		clock:     time.Now,
	}
}

// SetClock replaces the time source, used by tests
func (r *Registry) SetClock(clock func() time.Time) {
	r.clock = clock
}

// RegisterKind installs the factory for a kind. Registering a kind
// twice is a programming error.
func (r *Registry) RegisterKind(kind string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("entity kind %q already registered", kind)
	}
	r.factories[kind] = factory
	return nil
}

// Get returns the live entity for (kind, id), constructing it when
// absent or expired
func (r *Registry) Get(ctx context.Context, kind, id string) (Entity, error) {
	r.mu.Lock()
	factory, ok := r.factories[kind]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}
	if entity, found := r.live[kind][id]; found && entity.ExpiresAt().After(r.clock()) {
		r.mu.Unlock()
		return entity, nil
	}
	r.mu.Unlock()

	key := kind + "\x00" + id
	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		// Another caller may have finished construction while we queued
		r.mu.Lock()
		if entity, found := r.live[kind][id]; found && entity.ExpiresAt().After(r.clock()) {
			r.mu.Unlock()
			return entity, nil
		}
		r.mu.Unlock()

		entity, err := factory(ctx, id)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		if r.live[kind] == nil {
			r.live[kind] = make(map[string]Entity)
		}
		r.live[kind][id] = entity
		r.mu.Unlock()
		return entity, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Entity), nil
}

// Remove drops the live entity for (kind, id), if any
func (r *Registry) Remove(kind, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.live[kind], id)
}

// Len reports the number of live entities of a kind, expired included
func (r *Registry) Len(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live[kind])
}
