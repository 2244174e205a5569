package host

import (
	"reflect"
	"strings"
	"sync"

	errs "hostscript/internal/core/errors"
	"hostscript/internal/engine/bytecode"
)

// ClassSource supplies class-file bytes for names the registry has not seen.
type ClassSource interface {
	ClassBytes(fqn string) ([]byte, error)
}

// Body is an interpreted method body bound behind a trampoline handle.
type Body interface {
	Invoke(this Value, args []Value) (Value, error)
}

// BodyTable maps opaque trampoline handles to bodies.
type BodyTable interface {
	Body(handle string) (Body, bool)
}

// Registry owns every host type known to one interpreter process.
type Registry struct {
	mu      sync.RWMutex
	types   map[string]*Type
	stubs   map[string]*Type
	goTypes map[reflect.Type]*Type

	// defineMu serialises loading so recursive definitions see their own shells.
	defineMu sync.Mutex
	source   ClassSource
	bodies   BodyTable
}

func NewRegistry(source ClassSource) *Registry {
	r := &Registry{
		types:   make(map[string]*Type),
		stubs:   make(map[string]*Type),
		goTypes: make(map[reflect.Type]*Type),
		source:  source,
	}
	for _, p := range primitiveList {
		r.types[p.Name] = p
	}
	for _, t := range builtinTypes() {
		r.types[t.Name] = t
	}
	r.goTypes[reflect.TypeOf("")] = StringClass
	return r
}

// SetSource replaces the class byte source used for lazy loading.
func (r *Registry) SetSource(source ClassSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.source = source
}

// SetBodies installs the table trampolines resolve their handles against.
func (r *Registry) SetBodies(bodies BodyTable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bodies = bodies
}

func (r *Registry) body(handle string) (Body, bool) {
	r.mu.RLock()
	bodies := r.bodies
	r.mu.RUnlock()
	if bodies == nil {
		return nil, false
	}
	return bodies.Body(handle)
}

// Known returns a fully defined type without triggering a load.
func (r *Registry) Known(name string) (*Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	if !ok || !t.ready.Load() {
		return nil, false
	}
	return t, true
}

// Lookup returns the type named name, loading it from the class source when needed.
// Array types are written with a trailing "[]".
func (r *Registry) Lookup(name string) (*Type, error) {
	if t, ok := r.Known(name); ok {
		return t, nil
	}
	r.defineMu.Lock()
	defer r.defineMu.Unlock()
	return r.lookupLocked(name)
}

func (r *Registry) lookupLocked(name string) (*Type, error) {
	name = strings.TrimSpace(name)
	if elem, ok := strings.CutSuffix(name, "[]"); ok {
		et, err := r.lookupLocked(elem)
		if err != nil {
			return nil, err
		}
		return r.ArrayOf(et), nil
	}

	r.mu.RLock()
	t, ok := r.types[name]
	source := r.source
	r.mu.RUnlock()
	if ok {
		// Shells under construction are returned as-is to break reference cycles.
		return t, nil
	}
	if source == nil {
		return nil, errs.Newf(errs.CodeNotFound, "class %s not found", name)
	}
	data, err := source.ClassBytes(name)
	if err != nil {
		return nil, errs.AddContext(err, errs.CtxType, name)
	}
	return r.defineLocked(data, originClasspath)
}

// typeRef resolves a name used in a member signature. Unknown classes become
// stubs so a missing dependency does not fail the whole definition.
func (r *Registry) typeRef(name string) *Type {
	if p, ok := PrimitiveByName(name); ok {
		return p
	}
	t, err := r.lookupLocked(name)
	if err == nil {
		return t
	}
	if elem, ok := strings.CutSuffix(name, "[]"); ok {
		return r.ArrayOf(r.typeRef(elem))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if stub, ok := r.stubs[name]; ok {
		return stub
	}
	stub := &Type{Name: name, Kind: KindClass, Super: ObjectClass, Origin: "unresolved", Stub: true}
	stub.ready.Store(true)
	r.stubs[name] = stub
	return stub
}

// ArrayOf returns the array type with element type elem.
func (r *Registry) ArrayOf(elem *Type) *Type {
	name := elem.Name + "[]"
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.types[name]; ok {
		return t
	}
	t := &Type{Name: name, Kind: KindArray, Elem: elem, Super: ObjectClass, Origin: elem.Origin}
	t.Flags = bytecode.AccPublic | bytecode.AccFinal
	t.ready.Store(true)
	r.types[name] = t
	return t
}

// Register adds a fully built type. Redefining a name is a conflict.
func (r *Registry) Register(t *Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.types[t.Name]; ok && existing != t {
		return errs.Newf(errs.CodeConflict, "class %s is already defined", t.Name).(*errs.DomainError).
			WithContext(errs.CtxType, t.Name)
	}
	t.ready.Store(true)
	r.types[t.Name] = t
	delete(r.stubs, t.Name)
	return nil
}

func (r *Registry) insertShell(t *Type) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[t.Name]; ok {
		return errs.Newf(errs.CodeConflict, "class %s is already defined", t.Name).(*errs.DomainError).
			WithContext(errs.CtxType, t.Name)
	}
	r.types[t.Name] = t
	return nil
}

func (r *Registry) dropShell(t *Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.types[t.Name] == t {
		delete(r.types, t.Name)
	}
}

// Names lists every defined class name, primitives and arrays excluded.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.types))
	for name, t := range r.types {
		if t.Kind == KindClass || t.Kind == KindInterface {
			if t.ready.Load() {
				out = append(out, name)
			}
		}
	}
	return out
}
