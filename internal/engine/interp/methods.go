package interp

import (
	"context"
	"strings"

	errs "hostscript/internal/core/errors"
	"hostscript/internal/engine/ast"
	"hostscript/internal/engine/classgen"
	"hostscript/internal/engine/host"
	"hostscript/internal/engine/modifiers"
	"hostscript/internal/engine/scope"
)

// signature is a method's resolved parameter and return types. Untyped
// entries are nil.
type signature struct {
	params  []scope.Param
	ret     *host.Type
	varargs bool
}

func (in *Interpreter) signatureOf(s *scope.Scope, m *ast.MethodDecl) (signature, error) {
	sig := signature{varargs: m.Varargs}
	for _, p := range m.Params {
		var typ *host.Type
		if p.Type != "" {
			t, err := in.resolveType(s, p.Type)
			if err != nil {
				return signature{}, err
			}
			typ = t
		}
		sig.params = append(sig.params, scope.Param{Name: p.Name, Type: typ})
	}
	if m.Return != "" {
		t, err := in.resolveType(s, m.Return)
		if err != nil {
			return signature{}, err
		}
		sig.ret = t
	}
	return sig, nil
}

func (in *Interpreter) methodDecl(s *scope.Scope, m *ast.MethodDecl) (*scope.MethodDecl, error) {
	mods, err := modifiers.Parse(modifiers.ContextMethod, m.Modifiers...)
	if err != nil {
		return nil, err
	}
	if m.Body == nil {
		return nil, errs.Newf(errs.CodeValidationError, "method %s has no body", m.Name)
	}
	sig, err := in.signatureOf(s, m)
	if err != nil {
		return nil, err
	}
	return &scope.MethodDecl{
		Name:      m.Name,
		Params:    sig.params,
		Return:    sig.ret,
		Modifiers: mods,
		Varargs:   m.Varargs,
		Body:      m.Body,
		Scope:     s,
	}, nil
}

// RunMethod runs a script-declared method. Arguments arrive coerced to the
// parameter types, trailing varargs packed into one array.
func (in *Interpreter) RunMethod(decl *scope.MethodDecl, this host.Value, args []host.Value) (host.Value, error) {
	body, ok := decl.Body.(*ast.Block)
	if !ok {
		return nil, errs.Newf(errs.CodeNotSupported, "method %s has no body", decl.Signature())
	}
	sig := signature{params: decl.Params, ret: decl.Return, varargs: decl.Varargs}
	return in.run(in.context(), decl.Scope, &frame{this: this}, decl.Name, sig, args, body)
}

// run binds parameters in a child of declaring and evaluates body. The
// result is converted to the declared return type.
func (in *Interpreter) run(ctx context.Context, declaring *scope.Scope, f *frame, name string, sig signature, args []host.Value, body *ast.Block) (host.Value, error) {
	if len(args) != len(sig.params) {
		return nil, errs.Newf(errs.CodeInvocation, "%s expects %d arguments, got %d", name, len(sig.params), len(args))
	}
	local := declaring.Child(name)
	for i, p := range sig.params {
		typ := p.Type
		if sig.varargs && i == len(sig.params)-1 {
			elem := typ
			if elem == nil {
				elem = host.ObjectClass
			}
			typ = in.registry.ArrayOf(elem)
		}
		if _, err := local.Declare(p.Name, typ, args[i], nil); err != nil {
			return nil, err
		}
	}
	if body != nil {
		if err := in.evalStmts(ctx, local, f, body.Stmts); err != nil {
			return nil, err
		}
	}
	if sig.ret == host.Void {
		return nil, nil
	}
	return host.Coerce(f.result, sig.ret)
}

// classRef is filled once the class is defined; bodies run only after that.
type classRef struct {
	t *host.Type
}

// methodBody runs an interpreted method behind a generated trampoline.
type methodBody struct {
	in        *Interpreter
	class     *classRef
	declaring *scope.Scope
	name      string
	sig       signature
	static    bool
	block     *ast.Block
	// inits are instance field initializers run before a constructor body.
	inits []*ast.VarDecl
}

func (b *methodBody) Invoke(this host.Value, args []host.Value) (host.Value, error) {
	f := &frame{this: this, class: b.class.t}
	if b.static {
		f.this = nil
	}
	ctx := b.in.context()
	for _, d := range b.inits {
		v, err := b.in.eval(ctx, b.declaring.Child(b.name), f, d.Init)
		if err != nil {
			return nil, err
		}
		fld, ok := f.class.FindField(d.Name)
		if !ok {
			return nil, errs.Newf(errs.CodeInternal, "field %s missing from %s", d.Name, f.class.Name)
		}
		if err := fld.Set(this, v); err != nil {
			return nil, locate(errs.Wrap(err, errs.CodeTypeMismatch, "initialize "+fld.Signature()), d)
		}
	}
	return b.in.run(ctx, b.declaring, f, b.name, b.sig, args, b.block)
}

func simpleName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// declareClass generates a host class from c. Methods named after the class
// are constructors. The newest declaration of a name shadows older versions.
func (in *Interpreter) declareClass(ctx context.Context, s *scope.Scope, c *ast.ClassDecl) (host.Value, error) {
	mods, err := modifiers.Parse(modifiers.ContextClass, c.Modifiers...)
	if err != nil {
		return nil, err
	}
	desc := classgen.Descriptor{Name: c.Name, Interface: c.Interface, Modifiers: mods}
	if c.Super != "" {
		if desc.Super, err = in.resolveType(s, c.Super); err != nil {
			return nil, err
		}
	}
	for _, name := range c.Interfaces {
		t, err := in.resolveType(s, name)
		if err != nil {
			return nil, err
		}
		desc.Interfaces = append(desc.Interfaces, t)
	}

	ref := &classRef{}
	var inits, staticInits []*ast.VarDecl
	for _, d := range c.Fields {
		fm, err := modifiers.Parse(modifiers.ContextField, d.Modifiers...)
		if err != nil {
			return nil, err
		}
		var typ *host.Type
		if d.Type != "" {
			if typ, err = in.resolveType(s, d.Type); err != nil {
				return nil, err
			}
		}
		desc.Fields = append(desc.Fields, classgen.Field{Name: d.Name, Type: typ, Modifiers: fm})
		switch {
		case d.Init == nil:
		case fm.Has(modifiers.Static):
			staticInits = append(staticInits, d)
		default:
			inits = append(inits, d)
		}
	}

	hasCtor := false
	for _, m := range c.Methods {
		mm, err := modifiers.Parse(modifiers.ContextMethod, m.Modifiers...)
		if err != nil {
			return nil, err
		}
		sig, err := in.signatureOf(s, m)
		if err != nil {
			return nil, err
		}
		name := m.Name
		ctor := name == simpleName(c.Name)
		if ctor {
			name, sig.ret = "<init>", host.Void
			hasCtor = true
		}
		method := classgen.Method{Name: name, Return: sig.ret, Modifiers: mm, Varargs: m.Varargs}
		for _, p := range sig.params {
			method.Params = append(method.Params, p.Type)
		}
		if m.Body != nil {
			body := &methodBody{
				in: in, class: ref, declaring: s, name: name, sig: sig,
				static: mm.Has(modifiers.Static), block: m.Body,
			}
			if ctor {
				body.inits = inits
			}
			method.Body = body
		}
		desc.Methods = append(desc.Methods, method)
	}
	if !hasCtor && !c.Interface && len(inits) > 0 {
		desc.Methods = append(desc.Methods, classgen.Method{
			Name:   "<init>",
			Return: host.Void,
			Body:   &methodBody{in: in, class: ref, declaring: s, name: "<init>", sig: signature{ret: host.Void}, inits: inits},
		})
	}

	gen, err := in.generator.Generate(ctx, desc)
	if err != nil {
		return nil, err
	}
	ref.t = gen.Type
	in.declared[c.Name] = gen.Type
	in.declared[gen.Requested] = gen.Type

	f := &frame{class: gen.Type}
	for _, d := range staticInits {
		v, err := in.eval(ctx, s, f, d.Init)
		if err != nil {
			return nil, err
		}
		fld, _ := gen.Type.FindField(d.Name)
		if err := fld.Set(nil, v); err != nil {
			return nil, locate(errs.Wrap(err, errs.CodeTypeMismatch, "initialize "+fld.Signature()), d)
		}
	}
	return nil, nil
}
