package cache

import (
	"errors"
	"fmt"
	"sync"
)

// ErrDuplicateName is returned by Register when an instance with the same
// name is already registered.
var ErrDuplicateName = errors.New("cache: duplicate instance name")

// Handle is the contract a cache instance presents to the registry:
// a stable identifier and an owned shutdown. Every *Instance satisfies it.
type Handle interface {
	Name() string
	Close() error
}

// Registry is an explicit, application-level table of cache instances.
// The application constructs its caches at startup, registers them, and
// tears them all down with one Close — each instance still owns its own
// background sweep and refresh goroutines.
type Registry struct {
	mu    sync.Mutex
	m     map[string]Handle
	order []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{m: make(map[string]Handle)}
}

// Register adds h under its own name. Registration order is remembered:
// Close shuts instances down in reverse.
func (r *Registry) Register(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := h.Name()
	if _, exists := r.m[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}
	r.m[name] = h
	r.order = append(r.order, name)
	return nil
}

// Lookup returns the instance registered under name.
func (r *Registry) Lookup(name string) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.m[name]
	return h, ok
}

// Names returns the registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Close shuts down every registered instance in reverse registration order
// and empties the registry. Errors are joined; shutdown continues past
// individual failures.
func (r *Registry) Close() error {
	r.mu.Lock()
	handles := make([]Handle, 0, len(r.order))
	for idx := len(r.order) - 1; idx >= 0; idx-- {
		handles = append(handles, r.m[r.order[idx]])
	}
	r.m = make(map[string]Handle)
	r.order = nil
	r.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := h.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %q: %w", h.Name(), err))
		}
	}
	return errors.Join(errs...)
}
