package util

import (
	"sync"
	"weak"
)

// WeakList holds listeners without keeping them alive. Entries whose referent
// has been collected are dropped the next time Live is called.
type WeakList[T any] struct {
	mu      sync.Mutex
	entries []weak.Pointer[T]
}

// Add registers p. Adding the same pointer twice is a no-op.
func (w *WeakList[T]) Add(p *T) {
	if p == nil {
		return
	}
	wp := weak.Make(p)
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, existing := range w.entries {
		if existing == wp {
			return
		}
	}
	w.entries = append(w.entries, wp)
}

// Remove unregisters p if present.
func (w *WeakList[T]) Remove(p *T) {
	if p == nil {
		return
	}
	wp := weak.Make(p)
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, existing := range w.entries {
		if existing == wp {
			w.entries = append(w.entries[:i], w.entries[i+1:]...)
			return
		}
	}
}

// Live prunes collected entries and returns strong references to the rest in
// registration order.
func (w *WeakList[T]) Live() []*T {
	w.mu.Lock()
	defer w.mu.Unlock()

	live := make([]*T, 0, len(w.entries))
	kept := w.entries[:0]
	for _, wp := range w.entries {
		if p := wp.Value(); p != nil {
			live = append(live, p)
			kept = append(kept, wp)
		}
	}
	clear(w.entries[len(kept):])
	w.entries = kept
	return live
}

// Len reports registered entries, including ones not yet pruned.
func (w *WeakList[T]) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}
