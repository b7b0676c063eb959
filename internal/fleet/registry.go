package fleet

import "sync"

// Registry is the ordered set of handles spawned by the current batch.
type Registry struct {
	mu      sync.Mutex
	handles []*Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends a handle.
func (r *Registry) Add(h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles = append(r.handles, h)
}

// Clear forgets every handle. It does not touch the processes.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles = nil
}

// PruneDead removes handles whose process has exited and returns the number
// that remain. Survivors keep their order.
func (r *Registry) PruneDead() int {
	survivors, _ := r.prune()
	return len(survivors)
}

// prune is PruneDead that also reports what it removed.
func (r *Registry) prune() (survivors, dead []*Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.handles {
		if h.Alive() {
			survivors = append(survivors, h)
		} else {
			dead = append(dead, h)
		}
	}
	r.handles = survivors
	return survivors, dead
}

// Handles returns a snapshot in insertion order.
func (r *Registry) Handles() []*Handle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Handle(nil), r.handles...)
}

// Len returns the number of handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}
