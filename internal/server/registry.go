package server

import (
	"sync"

	"github.com/google/uuid"

	"github.com/nupi-ai/whisper-binding/internal/binding"
)

// Registry maps opaque context ids handed to clients onto live binding contexts.
type Registry struct {
	mu       sync.RWMutex
	contexts map[string]*binding.Context
}

func NewRegistry() *Registry {
	return &Registry{contexts: make(map[string]*binding.Context)}
}

// Add stores c under a fresh random id.
func (r *Registry) Add(c *binding.Context) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.contexts[id] = c
	r.mu.Unlock()
	return id
}

func (r *Registry) Get(id string) (*binding.Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.contexts[id]
	return c, ok
}

// Remove deletes id and returns its context. Only one caller observes ok for a given id.
func (r *Registry) Remove(id string) (*binding.Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contexts[id]
	if ok {
		delete(r.contexts, id)
	}
	return c, ok
}

// Drain empties the registry and returns everything it held.
func (r *Registry) Drain() map[string]*binding.Context {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.contexts
	r.contexts = make(map[string]*binding.Context)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.contexts)
}
