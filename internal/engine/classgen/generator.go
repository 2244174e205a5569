// Package classgen synthesizes loadable host classes from script type
// declarations. Generated methods are trampolines carrying an opaque handle
// to their interpreted body.
package classgen

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	errs "hostscript/internal/core/errors"
	"hostscript/internal/engine/bytecode"
	"hostscript/internal/engine/classpath"
	"hostscript/internal/engine/host"
	"hostscript/internal/engine/modifiers"
	"hostscript/internal/engine/security"
	"hostscript/internal/shared/observability"
)

// Field declares a generated field.
type Field struct {
	Name      string
	Type      *host.Type
	Modifiers *modifiers.Set
}

// Method declares a generated method or, named "<init>", a constructor. A
// nil parameter or return type is Object. Body is required unless the method
// is abstract.
type Method struct {
	Name      string
	Params    []*host.Type
	Return    *host.Type
	Modifiers *modifiers.Set
	Varargs   bool
	Body      host.Body
}

// Descriptor is a script type declaration ready for emission.
type Descriptor struct {
	Name       string // simple names are placed under the configured package prefix
	Super      *host.Type
	Interfaces []*host.Type
	Interface  bool
	Modifiers  *modifiers.Set
	Fields     []Field
	Methods    []Method
}

// Generated is the result of one successful generation.
type Generated struct {
	// Requested is the declared name; Name is the name actually defined,
	// which carries a version suffix when the declaration was repeated.
	Requested string
	Name      string
	Version   int
	Data      []byte
	Type      *host.Type
	Handles   []string
}

type Generator struct {
	classpath *classpath.Resolver
	registry  *host.Registry
	guard     security.Guard
	bodies    *HandleTable
	prefix    string

	mu       sync.Mutex
	versions map[string]int
}

// New binds a generator to the classpath that will serve its bytes and the
// registry that will define them. The registry's body table is set to the
// generator's handle table.
func New(cp *classpath.Resolver, reg *host.Registry, guard security.Guard, packagePrefix string) *Generator {
	if guard == nil {
		guard = security.AllowAll{}
	}
	g := &Generator{
		classpath: cp,
		registry:  reg,
		guard:     guard,
		bodies:    NewHandleTable(),
		prefix:    strings.Trim(packagePrefix, "."),
		versions:  make(map[string]int),
	}
	reg.SetBodies(g.bodies)
	return g
}

func (g *Generator) Bodies() *HandleTable { return g.bodies }

// QualifiedName places a simple name under the package prefix.
func (g *Generator) QualifiedName(name string) string {
	if strings.Contains(name, ".") || g.prefix == "" {
		return name
	}
	return g.prefix + "." + name
}

// Generate emits desc, registers it with the classpath and defines it in the
// registry. Registration is all-or-nothing: on failure neither the classpath
// nor the handle table keeps anything from this call.
func (g *Generator) Generate(ctx context.Context, desc Descriptor) (gen *Generated, err error) {
	requested := g.QualifiedName(desc.Name)
	_, span := observability.Tracer.Start(ctx, "classgen.generate")
	span.SetAttributes(attribute.String("class", requested))
	defer func() { observability.EndSpan(span, err) }()

	if err := g.validate(requested, desc); err != nil {
		return nil, err
	}
	if err := g.checkSecurity(requested, desc); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	name, version := g.nextName(requested)
	cf, handles, err := g.classFile(name, desc)
	if err != nil {
		g.bodies.Release(handles...)
		return nil, errs.AddContext(err, errs.CtxType, name)
	}
	data, err := bytecode.Encode(cf)
	if err != nil {
		g.bodies.Release(handles...)
		return nil, errs.AddContext(err, errs.CtxType, name)
	}
	if err := g.classpath.RegisterGenerated(name, data); err != nil {
		g.bodies.Release(handles...)
		return nil, err
	}
	rollback := func() {
		g.classpath.UnregisterGenerated(name)
		g.bodies.Release(handles...)
	}

	// Define from the classpath copy so what runs is what the index serves.
	served, err := g.classpath.ClassBytes(name)
	if err != nil {
		rollback()
		return nil, errs.Wrap(err, errs.CodeInternal, "generated class vanished from classpath")
	}
	t, err := g.registry.Define(served)
	if err != nil {
		rollback()
		return nil, errs.AddContext(err, errs.CtxType, name)
	}

	g.versions[requested] = version
	observability.GeneratedClassesTotal.Inc()
	observability.GeneratedClassBytes.Observe(float64(len(data)))
	slog.Debug("generated class", "class", name, "bytes", len(data), "methods", len(cf.Methods))
	return &Generated{
		Requested: requested,
		Name:      name,
		Version:   version,
		Data:      data,
		Type:      t,
		Handles:   handles,
	}, nil
}

// nextName picks the first free versioned name. The first declaration keeps
// the plain name; redeclarations become Name$v2, Name$v3 and so on.
func (g *Generator) nextName(requested string) (string, int) {
	version := g.versions[requested]
	for {
		version++
		name := requested
		if version > 1 {
			name = fmt.Sprintf("%s$v%d", requested, version)
		}
		if _, known := g.registry.Known(name); known {
			continue
		}
		if g.classpath.HasClass(name) {
			continue
		}
		return name, version
	}
}

func (g *Generator) validate(name string, desc Descriptor) error {
	if strings.TrimSpace(desc.Name) == "" {
		return errs.New(errs.CodeValidationError, "generated class needs a name")
	}
	if desc.Modifiers != nil && desc.Modifiers.Context() != modifiers.ContextClass {
		return errs.Newf(errs.CodeValidationError, "class %s declared with %s modifiers", name, desc.Modifiers.Context())
	}
	super := desc.Super
	if super != nil {
		switch {
		case desc.Interface:
			return errs.Newf(errs.CodeTypeMismatch, "interface %s cannot extend class %s", name, super.Name)
		case super.IsInterface() || super.IsPrimitive() || super.IsArray():
			return errs.Newf(errs.CodeTypeMismatch, "%s cannot extend %s", name, super.Name)
		case super.IsFinal():
			return errs.Newf(errs.CodeTypeMismatch, "%s cannot extend final class %s", name, super.Name)
		}
	}
	for _, iface := range desc.Interfaces {
		if !iface.IsInterface() {
			return errs.Newf(errs.CodeTypeMismatch, "%s cannot implement class %s", name, iface.Name)
		}
	}
	if err := g.checkReferenced(name, desc); err != nil {
		return err
	}
	abstractType := desc.Interface || desc.Modifiers.Has(modifiers.Abstract)
	seen := make(map[string]bool)
	for _, m := range desc.Methods {
		if m.Modifiers != nil && m.Modifiers.Context() != modifiers.ContextMethod {
			return errs.Newf(errs.CodeValidationError, "method %s declared with %s modifiers", m.Name, m.Modifiers.Context())
		}
		sig := descriptorOf(m)
		key := m.Name + sig[:strings.IndexByte(sig, ')')+1]
		if seen[key] {
			return errs.Newf(errs.CodeDuplicateDeclaration, "method %s.%s declared twice with the same parameters", name, m.Name).(*errs.DomainError).
				WithContext(errs.CtxSymbol, m.Name)
		}
		seen[key] = true
		if m.Varargs && len(m.Params) == 0 {
			return errs.Newf(errs.CodeValidationError, "varargs method %s.%s needs a parameter", name, m.Name)
		}
		abstract := m.Modifiers.Has(modifiers.Abstract) || (desc.Interface && m.Body == nil)
		switch {
		case abstract && !abstractType:
			return errs.Newf(errs.CodeValidationError, "%s is not abstract and cannot declare abstract method %s", name, m.Name)
		case !abstract && m.Body == nil:
			return errs.Newf(errs.CodeValidationError, "method %s.%s has no body", name, m.Name)
		case m.Name == "<init>" && desc.Interface:
			return errs.Newf(errs.CodeValidationError, "interface %s cannot declare a constructor", name)
		}
	}
	fields := make(map[string]bool)
	for _, f := range desc.Fields {
		if fields[f.Name] {
			return errs.Newf(errs.CodeDuplicateDeclaration, "field %s.%s declared twice", name, f.Name).(*errs.DomainError).
				WithContext(errs.CtxSymbol, f.Name)
		}
		fields[f.Name] = true
	}
	return nil
}

// checkReferenced requires the super class and interfaces to be defined, so
// a definition cannot fail after registration for want of them.
func (g *Generator) checkReferenced(name string, desc Descriptor) error {
	refs := desc.Interfaces
	if desc.Super != nil {
		refs = append([]*host.Type{desc.Super}, refs...)
	}
	for _, ref := range refs {
		if _, err := g.registry.Lookup(ref.Name); err != nil {
			return errs.AddContext(err, errs.CtxType, name)
		}
	}
	return nil
}

func (g *Generator) checkSecurity(name string, desc Descriptor) error {
	if desc.Super != nil {
		t := security.Target{Type: desc.Super, Signature: name + " extends " + desc.Super.Name}
		if err := g.guard.CanExtend(t); err != nil {
			return err
		}
	}
	for _, iface := range desc.Interfaces {
		t := security.Target{Type: iface, Signature: name + " implements " + iface.Name}
		if err := g.guard.CanImplement(t); err != nil {
			return err
		}
	}
	return nil
}

func typeName(t *host.Type) string {
	if t == nil {
		return host.ObjectClass.Name
	}
	return t.Name
}

func descriptorOf(m Method) string {
	params := make([]string, len(m.Params))
	for i, p := range m.Params {
		params[i] = typeName(p)
		if m.Varargs && i == len(m.Params)-1 {
			params[i] += "[]"
		}
	}
	ret := typeName(m.Return)
	if m.Name == "<init>" || m.Return == host.Void {
		ret = "void"
	}
	return bytecode.MethodDescriptor(params, ret)
}

func memberAccess(mods *modifiers.Set) uint16 {
	flags := mods.Flags()
	if mods.Access() == "" {
		flags |= bytecode.AccPublic
	}
	return flags
}

// classFile builds the class-file model, binding each body to a new handle.
// Handles bound before a failure are returned so the caller can release them.
func (g *Generator) classFile(name string, desc Descriptor) (*bytecode.ClassFile, []string, error) {
	cf := &bytecode.ClassFile{
		Major:  bytecode.MajorVersion,
		Access: memberAccess(desc.Modifiers) | bytecode.AccSuper,
		Name:   name,
		Super:  host.ObjectClass.Name,
	}
	if desc.Super != nil {
		cf.Super = desc.Super.Name
	}
	if desc.Interface {
		cf.Access = cf.Access&^bytecode.AccSuper | bytecode.AccInterface | bytecode.AccAbstract
	}
	for _, iface := range desc.Interfaces {
		cf.Interfaces = append(cf.Interfaces, iface.Name)
	}
	for _, f := range desc.Fields {
		cf.Fields = append(cf.Fields, bytecode.Member{
			Access:     memberAccess(f.Modifiers),
			Name:       f.Name,
			Descriptor: bytecode.FieldDescriptor(typeName(f.Type)),
		})
	}

	var handles []string
	for _, m := range desc.Methods {
		member := bytecode.Member{
			Access:     memberAccess(m.Modifiers),
			Name:       m.Name,
			Descriptor: descriptorOf(m),
		}
		if m.Varargs {
			member.Access |= bytecode.AccVarargs
		}
		if m.Body == nil || m.Modifiers.Has(modifiers.Abstract) {
			member.Access |= bytecode.AccAbstract
			cf.Methods = append(cf.Methods, member)
			continue
		}
		handle := g.bodies.Bind(m.Body)
		handles = append(handles, handle)
		attr, err := bytecode.NewTrampoline(handle)
		if err != nil {
			return nil, handles, err
		}
		member.Attributes = append(member.Attributes, attr)
		cf.Methods = append(cf.Methods, member)
	}
	return cf, handles, nil
}
