// Package host models the statically typed object model scripts interoperate with.
package host

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"hostscript/internal/engine/bytecode"
)

// Value is a dynamic script value. nil is the null placeholder; primitives are
// bool, int8, Char, int16, int32, int64, float32 and float64; text is string;
// everything else is *Object.
type Value = any

// Char is the 16-bit host character type.
type Char uint16

type Kind uint8

const (
	KindPrimitive Kind = iota
	KindClass
	KindInterface
	KindArray
)

// Func implements a host method. recv is nil for static methods and constructors
// receive the freshly allocated *Object.
type Func func(recv Value, args []Value) (Value, error)

type Type struct {
	Name       string
	Kind       Kind
	Super      *Type
	Interfaces []*Type
	Elem       *Type
	Flags      uint16
	Origin     string

	Constructors []*Method
	Methods      []*Method
	Fields       []*Field

	// Stub types are referenced by a signature but never defined.
	Stub bool

	rank    int
	alloc   func() any // backing Go value for reflected classes
	ready   atomic.Bool
	statics sync.Map // static field name -> Value
}

type Method struct {
	Name      string
	Declaring *Type
	Params    []*Type
	Return    *Type
	Flags     uint16
	Varargs   bool
	Impl      Func
}

type Field struct {
	Name      string
	Declaring *Type
	Type      *Type
	Flags     uint16
	get       func(recv Value) (Value, error)
	set       func(recv Value, v Value) error
}

// Object is an instance of a reference type. Native carries the backing Go
// value for reflected classes and the primitive for boxes.
type Object struct {
	Class  *Type
	Native any

	mu     sync.Mutex
	fields map[string]Value
}

func (t *Type) IsPrimitive() bool { return t != nil && t.Kind == KindPrimitive }
func (t *Type) IsInterface() bool { return t != nil && t.Kind == KindInterface }
func (t *Type) IsArray() bool     { return t != nil && t.Kind == KindArray }
func (t *Type) IsAbstract() bool  { return t != nil && t.Flags&bytecode.AccAbstract != 0 }
func (t *Type) IsFinal() bool     { return t != nil && t.Flags&bytecode.AccFinal != 0 }

func (t *Type) String() string {
	if t == nil {
		return "null"
	}
	return t.Name
}

// SimpleName strips the package from the binary name.
func (t *Type) SimpleName() string {
	if i := strings.LastIndexByte(t.Name, '.'); i >= 0 {
		return t.Name[i+1:]
	}
	return t.Name
}

// Package returns the package part of the binary name.
func (t *Type) Package() string {
	if i := strings.LastIndexByte(t.Name, '.'); i >= 0 {
		return t.Name[:i]
	}
	return ""
}

// AssignableTo reports reference assignability (identity or subtype).
func (t *Type) AssignableTo(u *Type) bool {
	if t == nil || u == nil {
		return false
	}
	if t == u || t.Name == u.Name {
		return true
	}
	if t.IsPrimitive() || u.IsPrimitive() {
		return false
	}
	if u.Name == ObjectClass.Name {
		return true
	}
	if t.IsArray() {
		return u.IsArray() && !t.Elem.IsPrimitive() && t.Elem.AssignableTo(u.Elem)
	}
	if t.Super != nil && t.Super.AssignableTo(u) {
		return true
	}
	for _, iface := range t.Interfaces {
		if iface.AssignableTo(u) {
			return true
		}
	}
	return false
}

// Ancestry returns t followed by its superclasses and then every interface,
// nearest first, without duplicates.
func (t *Type) Ancestry() []*Type {
	var out []*Type
	seen := make(map[string]bool)
	var ifaces []*Type
	for cur := t; cur != nil; cur = cur.Super {
		if seen[cur.Name] {
			break
		}
		seen[cur.Name] = true
		out = append(out, cur)
		ifaces = append(ifaces, cur.Interfaces...)
	}
	for len(ifaces) > 0 {
		iface := ifaces[0]
		ifaces = ifaces[1:]
		if seen[iface.Name] {
			continue
		}
		seen[iface.Name] = true
		out = append(out, iface)
		ifaces = append(ifaces, iface.Interfaces...)
	}
	if t.IsInterface() && !seen[ObjectClass.Name] {
		out = append(out, ObjectClass)
	}
	return out
}

// FindMethods returns the methods named name visible on t. Overridden
// signatures are reported once, from the most derived declaration.
func (t *Type) FindMethods(name string) []*Method {
	var out []*Method
	seen := make(map[string]bool)
	for _, owner := range t.Ancestry() {
		for _, m := range owner.Methods {
			if m.Name != name {
				continue
			}
			key := m.ParamKey()
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, m)
		}
	}
	return out
}

// FindField returns the nearest field named name.
func (t *Type) FindField(name string) (*Field, bool) {
	for _, owner := range t.Ancestry() {
		for _, f := range owner.Fields {
			if f.Name == name {
				return f, true
			}
		}
	}
	return nil, false
}

// reflectedAncestor returns the nearest ancestor backed by a Go type.
func (t *Type) reflectedAncestor() *Type {
	for cur := t; cur != nil; cur = cur.Super {
		if cur.alloc != nil {
			return cur
		}
	}
	return nil
}

func (m *Method) Static() bool   { return m.Flags&bytecode.AccStatic != 0 }
func (m *Method) Abstract() bool { return m.Flags&bytecode.AccAbstract != 0 }

// ParamKey identifies the parameter list independent of the declaring type.
func (m *Method) ParamKey() string {
	names := make([]string, len(m.Params))
	for i, p := range m.Params {
		names[i] = p.Name
	}
	if m.Varargs && len(names) > 0 {
		names[len(names)-1] += "..."
	}
	return strings.Join(names, ",")
}

// Signature renders Declaring.name(params) for diagnostics.
func (m *Method) Signature() string {
	owner := ""
	if m.Declaring != nil {
		owner = m.Declaring.Name + "."
	}
	return fmt.Sprintf("%s%s(%s)", owner, m.Name, m.ParamKey())
}

// Descriptor returns the class-file method descriptor.
func (m *Method) Descriptor() string {
	params := make([]string, len(m.Params))
	for i, p := range m.Params {
		params[i] = p.Name
		if m.Varargs && i == len(m.Params)-1 {
			params[i] += "[]"
		}
	}
	ret := "void"
	if m.Return != nil {
		ret = m.Return.Name
	}
	return bytecode.MethodDescriptor(params, ret)
}

func (f *Field) Static() bool { return f.Flags&bytecode.AccStatic != 0 }
func (f *Field) Final() bool  { return f.Flags&bytecode.AccFinal != 0 }

func (f *Field) Signature() string {
	return f.Declaring.Name + "." + f.Name
}

// Get reads the field from recv (nil for static fields).
func (f *Field) Get(recv Value) (Value, error) {
	return f.get(recv)
}

// Set writes the field on recv (nil for static fields).
func (f *Field) Set(recv Value, v Value) error {
	if f.set == nil {
		return fmt.Errorf("field %s is read-only", f.Signature())
	}
	coerced, err := Coerce(v, f.Type)
	if err != nil {
		return err
	}
	return f.set(recv, coerced)
}

// NewObject allocates an instance with zeroed declared fields.
func NewObject(class *Type) *Object {
	o := &Object{Class: class, fields: make(map[string]Value)}
	for _, owner := range class.Ancestry() {
		for _, f := range owner.Fields {
			if f.Static() {
				continue
			}
			if _, ok := o.fields[f.Name]; !ok {
				o.fields[f.Name] = ZeroValue(f.Type)
			}
		}
	}
	return o
}

// Allocate creates an uninitialised instance of t. Classes descending from a
// reflected Go type get a fresh backing value.
func (t *Type) Allocate() *Object {
	o := NewObject(t)
	if anc := t.reflectedAncestor(); anc != nil {
		o.Native = anc.alloc()
	}
	return o
}

// Ready reports whether the type is fully defined.
func (t *Type) Ready() bool { return t.ready.Load() }

// FieldValue reads a slot of a script-defined object.
func (o *Object) FieldValue(name string) (Value, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	v, ok := o.fields[name]
	return v, ok
}

// SetFieldValue writes a slot of a script-defined object.
func (o *Object) SetFieldValue(name string, v Value) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fields == nil {
		o.fields = make(map[string]Value)
	}
	o.fields[name] = v
}

func (o *Object) String() string {
	if o == nil {
		return "null"
	}
	if o.Native != nil && isBoxType(o.Class) {
		return fmt.Sprint(o.Native)
	}
	return fmt.Sprintf("%s@%p", o.Class.Name, o)
}

// ZeroValue is the default value of a slot of type t.
func ZeroValue(t *Type) Value {
	if t == nil || !t.IsPrimitive() {
		return nil
	}
	switch t {
	case Boolean:
		return false
	case Byte:
		return int8(0)
	case CharType:
		return Char(0)
	case Short:
		return int16(0)
	case Int:
		return int32(0)
	case Long:
		return int64(0)
	case Float:
		return float32(0)
	case Double:
		return float64(0)
	}
	return nil
}
