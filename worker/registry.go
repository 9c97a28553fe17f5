package worker

import (
	"fmt"
	"sync"

	"github.com/BaSui01/swarmflow/types"
)

// Registry holds one worker per role. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	workers map[types.Role]Worker
}

func NewRegistry() *Registry {
	return &Registry{workers: make(map[types.Role]Worker)}
}

// Register adds a worker under its own role. Re-registering a role replaces
// the previous worker.
func (r *Registry) Register(w Worker) error {
	if w == nil {
		return fmt.Errorf("worker is nil")
	}
	role := w.Role()
	if role == "" {
		return fmt.Errorf("worker has no role")
	}
	r.mu.Lock()
	r.workers[role] = w
	r.mu.Unlock()
	return nil
}

func (r *Registry) Get(role types.Role) (Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[role]
	return w, ok
}

// Roles lists the registered roles in the canonical role order.
func (r *Registry) Roles() []types.Role {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var roles []types.Role
	for _, role := range types.AllRoles() {
		if _, ok := r.workers[role]; ok {
			roles = append(roles, role)
		}
	}
	return roles
}

// CollectionWorkers returns the registered workers that own a collection
// dimension, in canonical order.
func (r *Registry) CollectionWorkers() []Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Worker
	for _, role := range types.CollectionRoles() {
		if w, ok := r.workers[role]; ok {
			out = append(out, w)
		}
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}
