package interp

import (
	"context"

	errs "hostscript/internal/core/errors"
	"hostscript/internal/engine/ast"
	"hostscript/internal/engine/host"
	"hostscript/internal/engine/modifiers"
	"hostscript/internal/engine/scope"
)

// frame is the state of one method activation.
type frame struct {
	this     host.Value
	class    *host.Type // class declaring the running method
	returned bool
	result   host.Value
}

func (in *Interpreter) evalStmts(ctx context.Context, s *scope.Scope, f *frame, stmts []ast.Node) error {
	for _, stmt := range stmts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := in.eval(ctx, s, f, stmt); err != nil {
			return err
		}
		if f.returned {
			return nil
		}
	}
	return nil
}

func (in *Interpreter) eval(ctx context.Context, s *scope.Scope, f *frame, n ast.Node) (host.Value, error) {
	v, err := in.evalNode(ctx, s, f, n)
	if err != nil {
		return nil, locate(err, n)
	}
	return v, nil
}

func (in *Interpreter) evalNode(ctx context.Context, s *scope.Scope, f *frame, n ast.Node) (host.Value, error) {
	switch n := n.(type) {
	case *ast.Literal:
		return host.Normalize(n.Value), nil
	case *ast.Name:
		return in.lookupName(s, f, n.Ident)
	case *ast.This:
		if f.this == nil {
			return nil, errs.New(errs.CodeUnresolved, "this is not available outside an instance method")
		}
		return f.this, nil
	case *ast.TypeRef:
		return nil, errs.Newf(errs.CodeNotSupported, "type %s used as a value", n.Name)
	case *ast.Assign:
		return in.assign(ctx, s, f, n)
	case *ast.VarDecl:
		return in.declareVar(ctx, s, f, n)
	case *ast.Block:
		return nil, in.evalStmts(ctx, s.Child("block"), f, n.Stmts)
	case *ast.Call:
		return in.call(ctx, s, f, n)
	case *ast.SuperCall:
		if f.this == nil || f.class == nil {
			return nil, errs.New(errs.CodeUnresolved, "super is not available outside an instance method")
		}
		args, err := in.evalArgs(ctx, s, f, n.Args)
		if err != nil {
			return nil, err
		}
		return in.invoker.InvokeSuper(f.this, f.class, n.Name, args)
	case *ast.New:
		t, err := in.resolveType(s, n.Type)
		if err != nil {
			return nil, err
		}
		args, err := in.evalArgs(ctx, s, f, n.Args)
		if err != nil {
			return nil, err
		}
		return in.invoker.Construct(t, args)
	case *ast.FieldAccess:
		recv, class, err := in.target(ctx, s, f, n.Receiver)
		if err != nil {
			return nil, err
		}
		if class != nil {
			return in.invoker.GetStaticField(class, n.Name)
		}
		return in.invoker.GetField(recv, n.Name)
	case *ast.Return:
		var v host.Value
		if n.Value != nil {
			var err error
			if v, err = in.eval(ctx, s, f, n.Value); err != nil {
				return nil, err
			}
		}
		f.returned, f.result = true, v
		return v, nil
	case *ast.Import:
		if n.Wildcard {
			return nil, s.ImportPackage(n.Name)
		}
		return nil, s.ImportClass(n.Name)
	case *ast.MethodDecl:
		decl, err := in.methodDecl(s, n)
		if err != nil {
			return nil, err
		}
		return nil, s.DeclareMethod(decl)
	case *ast.ClassDecl:
		return in.declareClass(ctx, s, n)
	default:
		return nil, errs.Newf(errs.CodeNotSupported, "cannot evaluate %T", n)
	}
}

func (in *Interpreter) evalArgs(ctx context.Context, s *scope.Scope, f *frame, nodes []ast.Node) ([]host.Value, error) {
	args := make([]host.Value, len(nodes))
	for i, a := range nodes {
		v, err := in.eval(ctx, s, f, a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// resolveType prefers classes declared by this session over host lookup.
func (in *Interpreter) resolveType(s *scope.Scope, name string) (*host.Type, error) {
	if t, ok := in.declared[name]; ok {
		return t, nil
	}
	return s.ResolveClass(name)
}

// lookupName reads a variable, then a field of this, then a static field of
// the running method's class.
func (in *Interpreter) lookupName(s *scope.Scope, f *frame, name string) (host.Value, error) {
	if v, ok := s.Resolve(name); ok {
		return v.Value(), nil
	}
	if fld, ok := in.memberField(f, name); ok {
		if fld.Static() {
			return in.invoker.GetStaticField(fld.Declaring, name)
		}
		return in.invoker.GetField(f.this, name)
	}
	return nil, errs.Newf(errs.CodeUnresolved, "variable %s is not defined", name).(*errs.DomainError).
		WithContext(errs.CtxSymbol, name)
}

func (in *Interpreter) memberField(f *frame, name string) (*host.Field, bool) {
	if f.this != nil {
		if t := host.TypeOf(f.this); t != nil {
			if fld, ok := t.FindField(name); ok {
				return fld, true
			}
		}
	}
	if f.class != nil {
		if fld, ok := f.class.FindField(name); ok && fld.Static() {
			return fld, true
		}
	}
	return nil, false
}

// target evaluates a receiver. A type reference, or a bare name that is no
// variable but names a class, yields the class for a static access.
func (in *Interpreter) target(ctx context.Context, s *scope.Scope, f *frame, n ast.Node) (host.Value, *host.Type, error) {
	switch r := n.(type) {
	case *ast.TypeRef:
		t, err := in.resolveType(s, r.Name)
		return nil, t, err
	case *ast.Name:
		v, err := in.lookupName(s, f, r.Ident)
		if err == nil {
			return v, nil, nil
		}
		if !errs.IsCode(err, errs.CodeUnresolved) {
			return nil, nil, err
		}
		if t, terr := in.resolveType(s, r.Ident); terr == nil {
			return nil, t, nil
		}
		return nil, nil, err
	}
	v, err := in.eval(ctx, s, f, n)
	return v, nil, err
}

func (in *Interpreter) assign(ctx context.Context, s *scope.Scope, f *frame, a *ast.Assign) (host.Value, error) {
	v, err := in.eval(ctx, s, f, a.Value)
	if err != nil {
		return nil, err
	}
	if a.Receiver != nil {
		recv, class, err := in.target(ctx, s, f, a.Receiver)
		if err != nil {
			return nil, err
		}
		if class == nil {
			class = host.TypeOf(recv)
		}
		return v, setField(class, recv, a.Target, v)
	}
	if variable, ok := s.Resolve(a.Target); ok {
		return v, variable.Set(v)
	}
	if fld, ok := in.memberField(f, a.Target); ok {
		recv := f.this
		if fld.Static() {
			recv = nil
		}
		return v, setField(fld.Declaring, recv, a.Target, v)
	}
	return v, s.Assign(a.Target, v)
}

func setField(class *host.Type, recv host.Value, name string, v host.Value) error {
	if class == nil {
		return errs.Newf(errs.CodeInvocation, "field %s written on null", name)
	}
	fld, ok := class.FindField(name)
	if ok && fld.Static() {
		recv = nil
	}
	if !ok || (recv == nil && !fld.Static()) {
		return errs.Newf(errs.CodeNotFound, "%s has no field %s", class.Name, name).(*errs.DomainError).
			WithContext(errs.CtxType, class.Name).WithContext(errs.CtxSymbol, name)
	}
	if fld.Final() {
		return errs.Newf(errs.CodeFinalAssignment, "cannot assign to final field %s", fld.Signature()).(*errs.DomainError).
			WithContext(errs.CtxSymbol, fld.Signature())
	}
	if err := fld.Set(recv, v); err != nil {
		return errs.Wrap(err, errs.CodeTypeMismatch, "assign "+fld.Signature())
	}
	return nil
}

func (in *Interpreter) declareVar(ctx context.Context, s *scope.Scope, f *frame, d *ast.VarDecl) (host.Value, error) {
	mods, err := modifiers.Parse(modifiers.ContextField, d.Modifiers...)
	if err != nil {
		return nil, err
	}
	var typ *host.Type
	if d.Type != "" {
		if typ, err = in.resolveType(s, d.Type); err != nil {
			return nil, err
		}
	}
	var val host.Value
	if d.Init != nil {
		if val, err = in.eval(ctx, s, f, d.Init); err != nil {
			return nil, err
		}
	}
	v, err := s.Declare(d.Name, typ, val, mods)
	if err != nil {
		return nil, err
	}
	return v.Value(), nil
}

// call dispatches a call. Without a receiver, script methods visible from s
// come first, then methods of this, then statics of the running class.
func (in *Interpreter) call(ctx context.Context, s *scope.Scope, f *frame, c *ast.Call) (host.Value, error) {
	if c.Receiver != nil {
		recv, class, err := in.target(ctx, s, f, c.Receiver)
		if err != nil {
			return nil, err
		}
		args, err := in.evalArgs(ctx, s, f, c.Args)
		if err != nil {
			return nil, err
		}
		if class != nil {
			return in.invoker.InvokeStatic(class, c.Name, args)
		}
		return in.invoker.InvokeMethod(recv, c.Name, args)
	}

	args, err := in.evalArgs(ctx, s, f, c.Args)
	if err != nil {
		return nil, err
	}
	switch {
	case len(s.Methods(c.Name)) > 0:
		return in.invoker.InvokeLocal(s, c.Name, nil, args)
	case f.this != nil && len(host.TypeOf(f.this).FindMethods(c.Name)) > 0:
		return in.invoker.InvokeMethod(f.this, c.Name, args)
	case f.class != nil && len(f.class.FindMethods(c.Name)) > 0:
		return in.invoker.InvokeStatic(f.class, c.Name, args)
	}
	return nil, errs.Newf(errs.CodeNotFound, "method %s is not defined", c.Name).(*errs.DomainError).
		WithContext(errs.CtxSymbol, c.Name)
}
