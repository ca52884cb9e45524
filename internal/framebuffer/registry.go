package framebuffer

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Registry hands out exactly one Context per device id. It is owned by the
// application (injected into entity construction), not process-global, and
// entries are removed when the device disappears.
type Registry struct {
	bridge    Bridge
	resources ResourceStore

	mu       sync.Mutex
	contexts map[string]*Context
}

// NewRegistry creates an empty context registry.
func NewRegistry(bridge Bridge, resources ResourceStore) *Registry {
	return &Registry{
		bridge:    bridge,
		resources: resources,
		contexts:  make(map[string]*Context),
	}
}

// GetOrCreate returns the shared context for a device id, creating it on
// first use. All bulbs of the same device get the same instance.
func (r *Registry) GetOrCreate(deviceID string, expectedBulbs int) *Context {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ctx, ok := r.contexts[deviceID]; ok {
		return ctx
	}

	ctx := NewContext(deviceID, r.bridge, r.resources, expectedBulbs)
	r.contexts[deviceID] = ctx
	return ctx
}

// Remove deletes the context for a device id. A later GetOrCreate starts
// over with an uninitialized cache.
func (r *Registry) Remove(deviceID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.contexts[deviceID]; !ok {
		return false
	}

	delete(r.contexts, deviceID)
	log.Debug().Str("device", deviceID).Msg("Removed framebuffer context")
	return true
}

// Len returns the number of live contexts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.contexts)
}
