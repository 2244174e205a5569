package classgen

import (
	"sync"

	"github.com/google/uuid"

	"hostscript/internal/engine/host"
)

// HandleTable binds opaque trampoline handles to interpreted bodies. It
// satisfies host.BodyTable so defined classes can find their bodies.
type HandleTable struct {
	mu     sync.RWMutex
	bodies map[string]host.Body
}

func NewHandleTable() *HandleTable {
	return &HandleTable{bodies: make(map[string]host.Body)}
}

// Bind stores body under a fresh handle.
func (t *HandleTable) Bind(body host.Body) string {
	handle := uuid.NewString()
	t.mu.Lock()
	t.bodies[handle] = body
	t.mu.Unlock()
	return handle
}

func (t *HandleTable) Body(handle string) (host.Body, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.bodies[handle]
	return b, ok
}

// Release drops handles, used when a generation attempt fails.
func (t *HandleTable) Release(handles ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, h := range handles {
		delete(t.bodies, h)
	}
}

func (t *HandleTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.bodies)
}

// BodyFunc adapts a function to host.Body.
type BodyFunc func(this host.Value, args []host.Value) (host.Value, error)

func (f BodyFunc) Invoke(this host.Value, args []host.Value) (host.Value, error) {
	return f(this, args)
}
