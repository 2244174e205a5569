package scope

import (
	"sync"

	"hostscript/internal/engine/host"
	"hostscript/internal/shared/util"
)

// Store is a caller-owned key/value container an ExternalScope mirrors its
// variables into. Its concurrency discipline belongs to the caller.
type Store interface {
	Get(key string) (host.Value, bool)
	Set(key string, v host.Value)
	Delete(key string)
	Keys() []string
	Clear()
}

// MapStore is a Store backed by a map guarded by a RWMutex.
type MapStore struct {
	mu sync.RWMutex
	m  map[string]host.Value
}

func NewMapStore(initial map[string]host.Value) *MapStore {
	m := make(map[string]host.Value, len(initial))
	for k, v := range initial {
		m[k] = v
	}
	return &MapStore{m: m}
}

func (s *MapStore) Get(key string) (host.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok
}

func (s *MapStore) Set(key string, v host.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = v
}

func (s *MapStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
}

func (s *MapStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return util.SortedStringKeys(s.m)
}

func (s *MapStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.m)
}

// Snapshot copies the current contents.
func (s *MapStore) Snapshot() map[string]host.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]host.Value, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	return out
}

// storeLocation reads and writes one store entry.
type storeLocation struct {
	table *storeTable
	key   string
}

func (l *storeLocation) Get() host.Value {
	v, _ := l.table.store.Get(l.key)
	return v
}

func (l *storeLocation) Set(v host.Value) error {
	l.table.store.Set(l.key, v)
	return nil
}

// storeTable keeps type and modifier metadata locally while values live in
// the store. Every read goes through reconcile.
type storeTable struct {
	store Store
	meta  map[string]*Variable
}

// reconcile merges store presence with local metadata. The store decides
// whether name exists: an entry without metadata is an untyped variable, and
// metadata without an entry is stale and evicted. A typed declaration whose
// entry holds nil still exists and reads nil.
func (t *storeTable) reconcile(name string) (*Variable, bool) {
	_, inStore := t.store.Get(name)
	local, inLocal := t.meta[name]
	switch {
	case !inStore:
		if inLocal {
			delete(t.meta, name)
		}
		return nil, false
	case inLocal:
		return local, true
	default:
		v := newVariable(name, nil, nil, t.location(name))
		t.meta[name] = v
		return v, true
	}
}

func (t *storeTable) get(name string) (*Variable, bool) { return t.reconcile(name) }

// put writes the store entry before recording metadata.
func (t *storeTable) put(v *Variable, initial host.Value) error {
	if err := v.store(initial); err != nil {
		return err
	}
	t.meta[v.Name] = v
	return nil
}

func (t *storeTable) location(name string) Location {
	return &storeLocation{table: t, key: name}
}

func (t *storeTable) remove(name string) {
	t.store.Delete(name)
	delete(t.meta, name)
}

func (t *storeTable) names() []string {
	keys := t.store.Keys()
	for name := range t.meta {
		if _, ok := t.store.Get(name); !ok {
			delete(t.meta, name)
		}
	}
	return util.SortedUnique(keys)
}

// clear also empties the attached store, so Scope.Clear on an external
// scope removes the injected entries.
func (t *storeTable) clear() {
	t.store.Clear()
	clear(t.meta)
}

// ExternalScope is a scope whose variables are mirrored into a Store so
// embedding code can observe and inject interpreter state.
type ExternalScope struct {
	*Scope
	table *storeTable
}

// NewExternal creates a root scope backed by store. A nil store starts empty.
func NewExternal(name string, env *Env, store Store) *ExternalScope {
	if store == nil {
		store = NewMapStore(nil)
	}
	table := &storeTable{store: store, meta: make(map[string]*Variable)}
	return &ExternalScope{Scope: newScope(name, nil, env, table), table: table}
}

// Store returns the attached store.
func (e *ExternalScope) Store() Store { return e.table.store }

// SetStore attaches a new store. Local metadata is dropped; entries of the
// previous store are left as they are.
func (e *ExternalScope) SetStore(store Store) {
	if store == nil {
		store = NewMapStore(nil)
	}
	clear(e.table.meta)
	e.table.store = store
}
