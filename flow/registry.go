package flow

import (
	"sync"

	"github.com/google/uuid"
)

// Registry tracks live flows so the HTTP surface can address one across
// requests. Entries are removed once the terminal outcome has been handled.
type Registry struct {
	mu    sync.RWMutex
	flows map[string]*Flow
}

func NewRegistry() *Registry {
	return &Registry{flows: make(map[string]*Flow)}
}

// Add registers the flow under a fresh id.
func (r *Registry) Add(f *Flow) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.flows[id.String()] = f
	return id.String(), nil
}

// Get looks a flow up by id.
func (r *Registry) Get(id string) (*Flow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.flows[id]
	return f, ok
}

// Remove drops a flow from the registry.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.flows, id)
}

// Len returns the number of live flows.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.flows)
}
