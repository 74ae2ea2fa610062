// Package threads tracks thread names observed during a capture.
package threads

import (
	"sync"
)

// Registry manages per-thread names for one capture.
// It provides command-query separation for name access. The processor core
// itself is single-threaded, but listener implementations may read names
// from other goroutines, hence the lock.
type Registry struct {
	mu    sync.RWMutex
	names map[int32]string // TID -> latest reported name
}

// NewRegistry creates a new thread name registry.
func NewRegistry() *Registry {
	return &Registry{
		names: make(map[int32]string),
	}
}

// Get retrieves the name for a TID (query).
// Returns "" if no name has been reported for this TID.
func (r *Registry) Get(tid int32) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names[tid]
}

// Set stores the name for a TID (command).
// A later report for the same TID replaces the earlier one.
func (r *Registry) Set(tid int32, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[tid] = name
}

// Len returns the number of distinct TIDs with a reported name (query).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

// Snapshot returns a copy of the current TID to name mapping (query).
func (r *Registry) Snapshot() map[int32]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[int32]string, len(r.names))
	for tid, name := range r.names {
		out[tid] = name
	}
	return out
}
