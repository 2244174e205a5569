package dispatch

import (
	"errors"
	"strings"

	errs "hostscript/internal/core/errors"
	"hostscript/internal/engine/host"
	"hostscript/internal/engine/scope"
	"hostscript/internal/engine/security"
	"hostscript/internal/shared/observability"
	"hostscript/internal/shared/util"
)

// Runner executes an interpreted method body. this is nil for calls that
// have no receiver.
type Runner interface {
	RunMethod(decl *scope.MethodDecl, this host.Value, args []host.Value) (host.Value, error)
}

// Invoker resolves and performs calls against host types and script-declared
// methods, consulting the security guard before any host operation.
type Invoker struct {
	registry *host.Registry
	guard    security.Guard
	runner   Runner
	cache    *util.LRUCache[string, Match]
}

func NewInvoker(registry *host.Registry, guard security.Guard, cacheSize int) *Invoker {
	if guard == nil {
		guard = security.AllowAll{}
	}
	return &Invoker{
		registry: registry,
		guard:    guard,
		cache:    util.NewLRUCache[string, Match](cacheSize),
	}
}

// SetRunner installs the interpreter used by InvokeLocal.
func (inv *Invoker) SetRunner(r Runner) { inv.runner = r }

func (inv *Invoker) Guard() security.Guard { return inv.guard }

// CacheStats reports resolution cache effectiveness.
func (inv *Invoker) CacheStats() util.CacheStats { return inv.cache.Stats() }

func cacheKey(owner *host.Type, name string, shape CallShape, args []host.Value) string {
	var b strings.Builder
	b.WriteString(owner.Name)
	b.WriteByte('#')
	b.WriteString(name)
	b.WriteByte('/')
	b.WriteString(shape.String())
	for _, t := range ArgTypes(args) {
		b.WriteByte(',')
		b.WriteString(t)
	}
	return b.String()
}

// resolveHost resolves among host methods, memoizing by owner, name and
// argument runtime types. Host types never change once defined.
func (inv *Invoker) resolveHost(owner *host.Type, name string, methods []*host.Method, args []host.Value, shape CallShape) (Match, error) {
	key := cacheKey(owner, name, shape, args)
	if m, ok := inv.cache.Get(key); ok {
		observability.DispatchResolutionsTotal.WithLabelValues("cached").Inc()
		return m, nil
	}
	m, err := ResolveMatch(FromMethods(methods), args, shape)
	if err != nil {
		recordFailure(err)
		return Match{}, errs.AddContext(err, errs.CtxType, owner.Name)
	}
	observability.DispatchResolutionsTotal.WithLabelValues("resolved").Inc()
	inv.cache.Put(key, m)
	return m, nil
}

func recordFailure(err error) {
	switch {
	case errs.IsCode(err, errs.CodeAmbiguousOverload):
		observability.DispatchResolutionsTotal.WithLabelValues("ambiguous").Inc()
	default:
		observability.DispatchResolutionsTotal.WithLabelValues("no_applicable").Inc()
	}
}

// prepare coerces args to the winner's parameter types, packing trailing
// arguments into an array for variable-arity application.
func (inv *Invoker) prepare(m Match, args []host.Value) ([]host.Value, error) {
	params := m.Candidate.ParamTypes()
	out := make([]host.Value, 0, len(params))
	fixed := len(params)
	if m.Spread {
		fixed--
	}
	for i := 0; i < fixed; i++ {
		p := params[i]
		if m.Candidate.IsVarargs() && i == len(params)-1 {
			p = nil // array passed through as is
		}
		v, err := host.Coerce(args[i], p)
		if err != nil {
			return nil, errs.AddContext(err, errs.CtxSignature, m.Candidate.Signature())
		}
		out = append(out, v)
	}
	if m.Spread {
		elem := params[len(params)-1]
		items := make([]host.Value, 0, len(args)-fixed)
		for _, a := range args[fixed:] {
			v, err := host.Coerce(a, elem)
			if err != nil {
				return nil, errs.AddContext(err, errs.CtxSignature, m.Candidate.Signature())
			}
			items = append(items, v)
		}
		out = append(out, &host.Object{Class: inv.arrayOf(elem), Native: items})
	}
	return out, nil
}

func (inv *Invoker) arrayOf(elem *host.Type) *host.Type {
	if elem == nil {
		elem = host.ObjectClass
	}
	if inv.registry != nil {
		return inv.registry.ArrayOf(elem)
	}
	return &host.Type{Name: elem.Name + "[]", Kind: host.KindArray, Elem: elem, Super: host.ObjectClass}
}

// call runs a host method implementation, mapping foreign failures to
// INVOCATION errors. Domain errors pass through unchanged.
func call(m *host.Method, recv host.Value, args []host.Value) (host.Value, error) {
	if m.Impl == nil {
		return nil, errs.Newf(errs.CodeNotSupported, "%s is abstract", m.Signature()).(*errs.DomainError).
			WithContext(errs.CtxSignature, m.Signature())
	}
	res, err := m.Impl(recv, args)
	if err != nil {
		var de *errs.DomainError
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, errs.Wrap(err, errs.CodeInvocation, m.Signature()+" failed").(*errs.DomainError).
			WithContext(errs.CtxSignature, m.Signature())
	}
	return res, nil
}

// classOf returns the type whose members a receiver exposes. Primitive
// receivers expose their box type.
func classOf(recv host.Value) (*host.Type, error) {
	t := host.TypeOf(recv)
	if t == nil {
		return nil, errs.New(errs.CodeInvocation, "member access on null")
	}
	if t.IsPrimitive() {
		if box := host.BoxOf(t); box != nil {
			return box, nil
		}
	}
	return t, nil
}

// receiver boxes primitive receivers so box methods see their *Object form.
func receiver(recv host.Value) host.Value {
	recv = host.Normalize(recv)
	if t := host.TypeOf(recv); t != nil && t.IsPrimitive() {
		if boxed, err := host.Box(recv); err == nil {
			return boxed
		}
	}
	return recv
}

// Construct instantiates class with the constructor args select.
func (inv *Invoker) Construct(class *host.Type, args []host.Value) (host.Value, error) {
	if class.IsInterface() || class.IsAbstract() || class.IsPrimitive() || class.IsArray() {
		return nil, errs.Newf(errs.CodeNotSupported, "cannot instantiate %s", class.Name).(*errs.DomainError).
			WithContext(errs.CtxType, class.Name)
	}
	m, err := inv.resolveHost(class, "<init>", class.Constructors, args, ShapeAny)
	if err != nil {
		return nil, err
	}
	method := m.Candidate.(MethodCandidate).Method
	if err := inv.guard.CanConstruct(security.Target{Type: class, Signature: method.Signature(), Args: args}); err != nil {
		return nil, err
	}
	prepared, err := inv.prepare(m, args)
	if err != nil {
		return nil, err
	}
	return call(method, class.Allocate(), prepared)
}

// InvokeStatic calls a static method of class.
func (inv *Invoker) InvokeStatic(class *host.Type, name string, args []host.Value) (host.Value, error) {
	var statics []*host.Method
	for _, m := range class.FindMethods(name) {
		if m.Static() {
			statics = append(statics, m)
		}
	}
	if len(statics) == 0 {
		return nil, missingMember(class, name)
	}
	m, err := inv.resolveHost(class, name, statics, args, ShapeStatic)
	if err != nil {
		return nil, err
	}
	method := m.Candidate.(MethodCandidate).Method
	target := security.Target{Type: class, Member: name, Signature: method.Signature(), Args: args}
	if err := inv.guard.CanInvokeStatic(target); err != nil {
		return nil, err
	}
	prepared, err := inv.prepare(m, args)
	if err != nil {
		return nil, err
	}
	return call(method, nil, prepared)
}

// InvokeMethod calls name on recv, choosing among every overload visible on
// its runtime class.
func (inv *Invoker) InvokeMethod(recv host.Value, name string, args []host.Value) (host.Value, error) {
	class, err := classOf(recv)
	if err != nil {
		return nil, err
	}
	methods := class.FindMethods(name)
	if len(methods) == 0 {
		return nil, missingMember(class, name)
	}
	m, err := inv.resolveHost(class, name, methods, args, ShapeInstance)
	if err != nil {
		return nil, err
	}
	method := m.Candidate.(MethodCandidate).Method
	target := security.Target{Type: class, Member: name, Signature: method.Signature(), Args: args, Receiver: recv}
	if method.Static() {
		if err := inv.guard.CanInvokeStatic(target); err != nil {
			return nil, err
		}
		recv = nil
	} else if err := inv.guard.CanInvokeMethod(target); err != nil {
		return nil, err
	}
	prepared, err := inv.prepare(m, args)
	if err != nil {
		return nil, err
	}
	return call(method, receiver(recv), prepared)
}

// InvokeSuper calls the superclass implementation of name as seen from
// declaring, bypassing overrides in declaring itself.
func (inv *Invoker) InvokeSuper(recv host.Value, declaring *host.Type, name string, args []host.Value) (host.Value, error) {
	super := declaring.Super
	if super == nil {
		return nil, errs.Newf(errs.CodeNotFound, "%s has no superclass", declaring.Name)
	}
	var methods []*host.Method
	for _, m := range super.FindMethods(name) {
		if !m.Abstract() {
			methods = append(methods, m)
		}
	}
	if len(methods) == 0 {
		return nil, missingMember(super, name)
	}
	m, err := inv.resolveHost(super, name, methods, args, ShapeInstance)
	if err != nil {
		return nil, err
	}
	method := m.Candidate.(MethodCandidate).Method
	target := security.Target{Type: super, Member: name, Signature: method.Signature(), Args: args, Receiver: recv}
	if err := inv.guard.CanInvokeSuper(target); err != nil {
		return nil, err
	}
	prepared, err := inv.prepare(m, args)
	if err != nil {
		return nil, err
	}
	return call(method, recv, prepared)
}

// GetField reads an instance field of recv.
func (inv *Invoker) GetField(recv host.Value, name string) (host.Value, error) {
	class, err := classOf(recv)
	if err != nil {
		return nil, err
	}
	f, ok := class.FindField(name)
	if !ok || f.Static() {
		return nil, missingMember(class, name)
	}
	if err := inv.guard.CanGetField(security.Target{Type: class, Member: name, Signature: f.Signature(), Receiver: recv}); err != nil {
		return nil, err
	}
	return f.Get(recv)
}

// GetStaticField reads a static field of class.
func (inv *Invoker) GetStaticField(class *host.Type, name string) (host.Value, error) {
	f, ok := class.FindField(name)
	if !ok || !f.Static() {
		return nil, missingMember(class, name)
	}
	if err := inv.guard.CanGetStaticField(security.Target{Type: class, Member: name, Signature: f.Signature()}); err != nil {
		return nil, err
	}
	return f.Get(nil)
}

// InvokeLocal calls a method declared by script code, visible from s.
func (inv *Invoker) InvokeLocal(s *scope.Scope, name string, this host.Value, args []host.Value) (host.Value, error) {
	decls := s.Methods(name)
	if len(decls) == 0 {
		return nil, errs.Newf(errs.CodeNotFound, "method %s is not defined", name).(*errs.DomainError).
			WithContext(errs.CtxSymbol, name)
	}
	m, err := ResolveMatch(FromDecls(decls), args, ShapeAny)
	if err != nil {
		recordFailure(err)
		return nil, err
	}
	observability.DispatchResolutionsTotal.WithLabelValues("resolved").Inc()
	if inv.runner == nil {
		return nil, errs.New(errs.CodeNotSupported, "no interpreter bound for script methods")
	}
	prepared, err := inv.prepare(m, args)
	if err != nil {
		return nil, err
	}
	return inv.runner.RunMethod(m.Candidate.(DeclCandidate).Decl, this, prepared)
}

func missingMember(class *host.Type, name string) error {
	return errs.Newf(errs.CodeNotFound, "%s has no member %s", class.Name, name).(*errs.DomainError).
		WithContext(errs.CtxType, class.Name).WithContext(errs.CtxSymbol, name)
}
