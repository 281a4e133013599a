package channel

import "sync"

// Registry tracks every Channel a Runtime creates over the course of one
// run so they can all be closed in one sweep on teardown — spec.md §5/§8's
// "every Runtime-owned channel is closed on teardown" invariant, mirroring
// taskmanager.Manager's equivalent bookkeeping for spawned tasks.
type Registry struct {
	mu              sync.Mutex
	channels        []*Channel
	defaultCapacity int
}

// NewRegistry returns an empty Registry. defaultCapacity seeds channels
// created via New when the caller doesn't name an explicit capacity
// (common/config's Channel.DefaultCapacity).
func NewRegistry(defaultCapacity int) *Registry {
	return &Registry{defaultCapacity: defaultCapacity}
}

// New creates a Channel at capacity (or the Registry's configured default
// capacity, if capacity is nil) and tracks it for CloseAll.
func (r *Registry) New(capacity *int) *Channel {
	c := r.defaultCapacity
	if capacity != nil {
		c = *capacity
	}
	ch := New(c)
	r.mu.Lock()
	r.channels = append(r.channels, ch)
	r.mu.Unlock()
	return ch
}

// CloseAll closes every Channel this Registry has ever created. Close is
// idempotent per Channel, so calling CloseAll once per run teardown is
// safe even if some channels were already closed by the program itself.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ch := range r.channels {
		ch.Close()
	}
}
