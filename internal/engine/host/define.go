package host

import (
	"fmt"

	errs "hostscript/internal/core/errors"
	"hostscript/internal/engine/bytecode"
)

const (
	originClasspath = "classpath"
	originDefined   = "defined"
)

// Define turns class-file bytes into a loadable type. Methods carrying a
// trampoline attribute dispatch to the body registered under their handle.
func (r *Registry) Define(data []byte) (*Type, error) {
	r.defineMu.Lock()
	defer r.defineMu.Unlock()
	return r.defineLocked(data, originDefined)
}

func (r *Registry) defineLocked(data []byte, origin string) (*Type, error) {
	cf, err := bytecode.Parse(data)
	if err != nil {
		return nil, err
	}

	kind := KindClass
	if cf.Access&bytecode.AccInterface != 0 {
		kind = KindInterface
	}
	t := &Type{Name: cf.Name, Kind: kind, Flags: cf.Access &^ bytecode.AccSuper, Origin: origin}
	if err := r.insertShell(t); err != nil {
		return nil, err
	}
	if err := r.fill(t, cf); err != nil {
		r.dropShell(t)
		return nil, errs.AddContext(err, errs.CtxType, cf.Name)
	}
	if err := r.Register(t); err != nil {
		r.dropShell(t)
		return nil, err
	}
	return t, nil
}

func (r *Registry) fill(t *Type, cf *bytecode.ClassFile) error {
	switch {
	case cf.Super != "":
		super, err := r.lookupLocked(cf.Super)
		if err != nil {
			return err
		}
		if super.IsInterface() || super.IsPrimitive() {
			return errs.Newf(errs.CodeTypeMismatch, "%s cannot extend %s", cf.Name, super.Name)
		}
		if super.IsFinal() {
			return errs.Newf(errs.CodeTypeMismatch, "%s cannot extend final class %s", cf.Name, super.Name)
		}
		t.Super = super
	case cf.Name != ObjectClass.Name:
		t.Super = ObjectClass
	}
	if t.IsInterface() {
		t.Super = nil
	}
	for _, name := range cf.Interfaces {
		iface, err := r.lookupLocked(name)
		if err != nil {
			return err
		}
		if !iface.IsInterface() {
			return errs.Newf(errs.CodeTypeMismatch, "%s cannot implement class %s", cf.Name, iface.Name)
		}
		t.Interfaces = append(t.Interfaces, iface)
	}

	for _, m := range cf.Fields {
		typeName, err := bytecode.ParseFieldDescriptor(m.Descriptor)
		if err != nil {
			return err
		}
		t.Fields = append(t.Fields, r.definedField(t, m, r.typeRef(typeName)))
	}

	for _, m := range cf.Methods {
		paramNames, retName, err := bytecode.ParseMethodDescriptor(m.Descriptor)
		if err != nil {
			return err
		}
		method := &Method{
			Name:      m.Name,
			Declaring: t,
			Return:    r.typeRef(retName),
			Flags:     m.Access,
			Varargs:   m.Access&bytecode.AccVarargs != 0,
		}
		for i, p := range paramNames {
			if method.Varargs && i == len(paramNames)-1 {
				p = trimArray(p)
			}
			method.Params = append(method.Params, r.typeRef(p))
		}
		method.Impl = r.methodImpl(method, m)
		if m.Name == "<init>" {
			t.Constructors = append(t.Constructors, method)
			continue
		}
		if m.Name == "<clinit>" {
			continue
		}
		t.Methods = append(t.Methods, method)
	}

	if t.Kind == KindClass && len(t.Constructors) == 0 {
		t.Constructors = append(t.Constructors, &Method{
			Name: "<init>", Declaring: t, Return: Void, Flags: bytecode.AccPublic,
			Impl: func(recv Value, _ []Value) (Value, error) { return recv, nil },
		})
	}
	return nil
}

func trimArray(name string) string {
	if len(name) > 2 && name[len(name)-2:] == "[]" {
		return name[:len(name)-2]
	}
	return name
}

func (r *Registry) methodImpl(method *Method, m bytecode.Member) Func {
	if handle, ok := m.Trampoline(); ok {
		return r.trampoline(method, handle)
	}
	switch {
	case method.Abstract():
		return nil
	case method.Name == "<init>":
		return func(recv Value, _ []Value) (Value, error) { return recv, nil }
	default:
		return func(Value, []Value) (Value, error) {
			return nil, errs.Newf(errs.CodeNotSupported, "%s has no interpreted body", method.Signature())
		}
	}
}

// trampoline marshals a host call into the interpreted body bound to handle
// and coerces the result to the declared return type. The body is looked up
// per call so registration order between class and bodies does not matter.
func (r *Registry) trampoline(method *Method, handle string) Func {
	return func(recv Value, args []Value) (Value, error) {
		body, ok := r.body(handle)
		if !ok {
			return nil, errs.Newf(errs.CodeUnresolved, "no body bound for %s", method.Signature()).(*errs.DomainError).
				WithContext(errs.CtxSignature, method.Signature())
		}
		coerced := make([]Value, len(args))
		for i, a := range args {
			if i >= len(method.Params) || (method.Varargs && i == len(method.Params)-1) {
				coerced[i] = a
				continue
			}
			v, err := Coerce(a, method.Params[i])
			if err != nil {
				return nil, errs.AddContext(err, errs.CtxSignature, method.Signature())
			}
			coerced[i] = v
		}
		out, err := body.Invoke(recv, coerced)
		if err != nil {
			return nil, err
		}
		if method.Name == "<init>" {
			return recv, nil
		}
		res, err := Coerce(out, method.Return)
		if err != nil {
			return nil, errs.AddContext(err, errs.CtxSignature, method.Signature())
		}
		return res, nil
	}
}

func (r *Registry) definedField(owner *Type, m bytecode.Member, typ *Type) *Field {
	f := &Field{Name: m.Name, Declaring: owner, Type: typ, Flags: m.Access}
	if f.Static() {
		owner.statics.Store(f.Name, ZeroValue(typ))
		f.get = func(Value) (Value, error) {
			v, _ := owner.statics.Load(f.Name)
			return v, nil
		}
		f.set = func(_ Value, v Value) error {
			owner.statics.Store(f.Name, v)
			return nil
		}
		return f
	}
	f.get = func(recv Value) (Value, error) {
		o, ok := recv.(*Object)
		if !ok || o == nil {
			return nil, fmt.Errorf("field %s read on %s", f.Signature(), TypeOf(recv))
		}
		v, _ := o.FieldValue(f.Name)
		return v, nil
	}
	f.set = func(recv Value, v Value) error {
		o, ok := recv.(*Object)
		if !ok || o == nil {
			return fmt.Errorf("field %s written on %s", f.Signature(), TypeOf(recv))
		}
		o.SetFieldValue(f.Name, v)
		return nil
	}
	return f
}
