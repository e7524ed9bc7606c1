package mapper

import (
	"fmt"
	"sync"
)

// Registry maps collection names to the kinds stored in them. Stream handlers
// use it to rebuild typed documents from raw change records.
type Registry struct {
	mu           sync.RWMutex
	kinds        []*Kind
	byCollection map[string]*Kind
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		kinds:        []*Kind{},
		byCollection: make(map[string]*Kind),
	}
}

// Register adds a kind. Registering the same kind twice is a no-op; a
// different kind for an already registered collection is an error.
func (r *Registry) Register(k *Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byCollection[k.collection]; ok {
		if existing == k {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrDuplicateKind, k.collection)
	}
	r.kinds = append(r.kinds, k)
	r.byCollection[k.collection] = k
	return nil
}

// Lookup returns the kind registered for collection.
func (r *Registry) Lookup(collection string) (*Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.byCollection[collection]
	return k, ok
}

// Kinds returns all registered kinds in registration order.
func (r *Registry) Kinds() []*Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Kind, len(r.kinds))
	copy(out, r.kinds)
	return out
}

// Has reports whether a kind is registered for collection.
func (r *Registry) Has(collection string) bool {
	_, ok := r.Lookup(collection)
	return ok
}
