package host

import (
	"fmt"
	"reflect"
	"unicode"

	errs "hostscript/internal/core/errors"
	"hostscript/internal/engine/bytecode"
)

type reflectOptions struct {
	super      *Type
	interfaces []*Type
	ctor       any
	statics    map[string]any
	flags      uint16
}

type ReflectOption func(*reflectOptions)

// WithSuper sets the superclass of the reflected type.
func WithSuper(t *Type) ReflectOption {
	return func(o *reflectOptions) { o.super = t }
}

// WithInterfaces declares host interfaces the reflected type implements.
func WithInterfaces(ts ...*Type) ReflectOption {
	return func(o *reflectOptions) { o.interfaces = append(o.interfaces, ts...) }
}

// WithConstructor exposes fn as a constructor. fn must return the pointer type
// being reflected, optionally followed by an error.
func WithConstructor(fn any) ReflectOption {
	return func(o *reflectOptions) { o.ctor = fn }
}

// WithStatic exposes a Go function as a static method.
func WithStatic(name string, fn any) ReflectOption {
	return func(o *reflectOptions) {
		if o.statics == nil {
			o.statics = make(map[string]any)
		}
		o.statics[name] = fn
	}
}

// WithFlags adds class access flags (final, abstract).
func WithFlags(flags uint16) ReflectOption {
	return func(o *reflectOptions) { o.flags |= flags }
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Reflect publishes the Go struct type behind sample (a pointer, possibly nil)
// as host class name. Exported pointer methods become instance methods with
// lower-camel names and exported fields become instance fields.
func (r *Registry) Reflect(name string, sample any, opts ...ReflectOption) (*Type, error) {
	rt := reflect.TypeOf(sample)
	if rt == nil || rt.Kind() != reflect.Pointer || rt.Elem().Kind() != reflect.Struct {
		return nil, errs.Newf(errs.CodeValidationError, "reflect %s: sample must be a pointer to a struct, got %v", name, rt)
	}
	if _, ok := r.Known(name); ok {
		return nil, errs.Newf(errs.CodeConflict, "class %s is already defined", name).(*errs.DomainError).
			WithContext(errs.CtxType, name)
	}
	var o reflectOptions
	for _, opt := range opts {
		opt(&o)
	}

	t := &Type{
		Name:       name,
		Kind:       KindClass,
		Super:      ObjectClass,
		Interfaces: o.interfaces,
		Flags:      bytecode.AccPublic | o.flags,
		Origin:     "reflect:" + rt.Elem().String(),
	}
	if o.super != nil {
		t.Super = o.super
	}
	elem := rt.Elem()
	t.alloc = func() any { return reflect.New(elem).Interface() }

	r.mu.Lock()
	r.goTypes[rt] = t
	r.mu.Unlock()

	for i := 0; i < rt.NumMethod(); i++ {
		gm := rt.Method(i)
		m, err := r.reflectMethod(t, lowerFirst(gm.Name), gm.Type, true)
		if err != nil {
			continue
		}
		gmName := gm.Name
		m.Impl = func(recv Value, args []Value) (Value, error) {
			obj, ok := recv.(*Object)
			if !ok || obj == nil || obj.Native == nil {
				return nil, errs.Newf(errs.CodeInvocation, "%s called without a %s receiver", m.Signature(), name)
			}
			fn := reflect.ValueOf(obj.Native).MethodByName(gmName)
			return r.callGo(m, fn, args)
		}
		t.Methods = append(t.Methods, m)
	}

	for i := 0; i < elem.NumField(); i++ {
		sf := elem.Field(i)
		if !sf.IsExported() || sf.Anonymous {
			continue
		}
		ft, ok := r.hostTypeOf(sf.Type)
		if !ok {
			continue
		}
		t.Fields = append(t.Fields, r.reflectField(t, lowerFirst(sf.Name), i, ft))
	}

	if o.ctor != nil {
		fv := reflect.ValueOf(o.ctor)
		m, err := r.reflectMethod(t, "<init>", fv.Type(), false)
		if err != nil {
			r.dropGoType(rt)
			return nil, errs.Wrap(err, errs.CodeValidationError, "reflect "+name+" constructor")
		}
		m.Return = Void
		m.Impl = func(recv Value, args []Value) (Value, error) {
			out, err := r.callGo(m, fv, args)
			if err != nil {
				return nil, err
			}
			built, ok := out.(*Object)
			if !ok || built == nil {
				return nil, errs.Newf(errs.CodeInvocation, "constructor of %s returned %s", name, TypeOf(out))
			}
			// Keep the receiver allocated by the caller so subclasses see their own class.
			if obj, ok := recv.(*Object); ok && obj != nil {
				obj.Native = built.Native
				return obj, nil
			}
			return built, nil
		}
		t.Constructors = append(t.Constructors, m)
	} else {
		t.Constructors = append(t.Constructors, &Method{
			Name: "<init>", Declaring: t, Return: Void, Flags: bytecode.AccPublic,
			Impl: func(recv Value, _ []Value) (Value, error) { return recv, nil },
		})
	}

	for staticName, fn := range o.statics {
		fv := reflect.ValueOf(fn)
		if fv.Kind() != reflect.Func {
			r.dropGoType(rt)
			return nil, errs.Newf(errs.CodeValidationError, "static %s.%s is not a function", name, staticName)
		}
		m, err := r.reflectMethod(t, staticName, fv.Type(), false)
		if err != nil {
			r.dropGoType(rt)
			return nil, errs.Wrap(err, errs.CodeValidationError, "reflect "+name+"."+staticName)
		}
		m.Flags |= bytecode.AccStatic
		m.Impl = func(_ Value, args []Value) (Value, error) {
			return r.callGo(m, fv, args)
		}
		t.Methods = append(t.Methods, m)
	}

	if err := r.Register(t); err != nil {
		r.dropGoType(rt)
		return nil, err
	}
	return t, nil
}

func (r *Registry) dropGoType(rt reflect.Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.goTypes, rt)
}

// reflectMethod maps a Go func type onto a host method. Methods from a method
// set carry the receiver as their first input, which is skipped.
func (r *Registry) reflectMethod(owner *Type, name string, ft reflect.Type, hasRecv bool) (*Method, error) {
	m := &Method{Name: name, Declaring: owner, Flags: bytecode.AccPublic, Return: Void}
	start := 0
	if hasRecv {
		start = 1
	}
	for i := start; i < ft.NumIn(); i++ {
		in := ft.In(i)
		if ft.IsVariadic() && i == ft.NumIn()-1 {
			m.Varargs = true
			in = in.Elem()
		}
		pt, ok := r.hostTypeOf(in)
		if !ok {
			return nil, fmt.Errorf("parameter %d of %s has unsupported type %s", i-start, name, in)
		}
		m.Params = append(m.Params, pt)
	}
	outs := ft.NumOut()
	if outs > 0 && ft.Out(outs-1) == errorType {
		outs--
	}
	switch outs {
	case 0:
	case 1:
		rt, ok := r.hostTypeOf(ft.Out(0))
		if !ok {
			return nil, fmt.Errorf("result of %s has unsupported type %s", name, ft.Out(0))
		}
		m.Return = rt
	default:
		return nil, fmt.Errorf("%s returns %d values", name, ft.NumOut())
	}
	return m, nil
}

func (r *Registry) hostTypeOf(gt reflect.Type) (*Type, bool) {
	r.mu.RLock()
	t, ok := r.goTypes[gt]
	r.mu.RUnlock()
	if ok {
		return t, true
	}
	switch gt.Kind() {
	case reflect.Bool:
		return Boolean, true
	case reflect.Int8:
		return Byte, true
	case reflect.Int16, reflect.Uint8:
		return Short, true
	case reflect.Uint16:
		return CharType, true
	case reflect.Int32, reflect.Int:
		return Int, true
	case reflect.Int64, reflect.Uint32:
		return Long, true
	case reflect.Float32:
		return Float, true
	case reflect.Float64:
		return Double, true
	case reflect.String:
		return StringClass, true
	case reflect.Interface:
		return ObjectClass, true
	case reflect.Slice:
		et, ok := r.hostTypeOf(gt.Elem())
		if !ok {
			return nil, false
		}
		return r.ArrayOf(et), true
	}
	return nil, false
}

func (r *Registry) callGo(m *Method, fn reflect.Value, args []Value) (res Value, err error) {
	ft := fn.Type()
	// Varargs arrive packed as one trailing array, as dispatch builds them.
	packed := m.Varargs && ft.IsVariadic() && len(args) == ft.NumIn()
	in := make([]reflect.Value, 0, len(args))
	for i, a := range args {
		var pt reflect.Type
		switch {
		case packed || i < ft.NumIn()-1 || (!ft.IsVariadic() && i < ft.NumIn()):
			pt = ft.In(i)
		case ft.IsVariadic():
			pt = ft.In(ft.NumIn() - 1).Elem()
		default:
			return nil, errs.Newf(errs.CodeInvocation, "%s: too many arguments", m.Signature())
		}
		v, convErr := toGo(a, pt)
		if convErr != nil {
			return nil, errs.AddContext(convErr, errs.CtxSignature, m.Signature())
		}
		in = append(in, v)
	}

	defer func() {
		if p := recover(); p != nil {
			err = errs.Newf(errs.CodeInvocation, "%s panicked: %v", m.Signature(), p).(*errs.DomainError).
				WithContext(errs.CtxSignature, m.Signature())
		}
	}()
	var out []reflect.Value
	if packed {
		out = fn.CallSlice(in)
	} else {
		out = fn.Call(in)
	}
	if n := len(out); n > 0 && ft.Out(n-1) == errorType {
		if e, _ := out[n-1].Interface().(error); e != nil {
			return nil, e
		}
		out = out[:n-1]
	}
	if len(out) == 0 {
		return nil, nil
	}
	res = r.fromGo(out[0])
	if m.Return.IsPrimitive() {
		res = convertPrimitive(res, m.Return)
	}
	return res, nil
}

// toGo converts a script value to a Go value assignable to gt.
func toGo(v Value, gt reflect.Type) (reflect.Value, error) {
	if v == nil {
		switch gt.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
			return reflect.Zero(gt), nil
		}
		return reflect.Value{}, errs.Newf(errs.CodeTypeMismatch, "null is not a %s", gt)
	}
	if o, ok := v.(*Object); ok && o != nil {
		if isBoxType(o.Class) {
			v = o.Native
		} else if gt.Kind() != reflect.Interface && o.Native != nil {
			nv := reflect.ValueOf(o.Native)
			if nv.Type().AssignableTo(gt) {
				return nv, nil
			}
		}
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(gt) {
		return rv, nil
	}
	if gt.Kind() == reflect.Slice {
		if arr, ok := v.(*Object); ok {
			if items, ok := arr.Native.([]Value); ok {
				out := reflect.MakeSlice(gt, len(items), len(items))
				for i, item := range items {
					iv, err := toGo(item, gt.Elem())
					if err != nil {
						return reflect.Value{}, err
					}
					out.Index(i).Set(iv)
				}
				return out, nil
			}
		}
	}
	if rv.Type().ConvertibleTo(gt) && isNumericKind(rv.Kind()) && isNumericKind(gt.Kind()) {
		return rv.Convert(gt), nil
	}
	return reflect.Value{}, errs.Newf(errs.CodeTypeMismatch, "cannot pass %s as %s", TypeOf(v), gt)
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// fromGo converts a Go result to a script value.
func (r *Registry) fromGo(rv reflect.Value) Value {
	if !rv.IsValid() {
		return nil
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map:
		if rv.IsNil() {
			return nil
		}
	}
	if rv.Kind() == reflect.Interface {
		return r.fromGo(rv.Elem())
	}
	r.mu.RLock()
	t, ok := r.goTypes[rv.Type()]
	r.mu.RUnlock()
	if ok && t != StringClass {
		return &Object{Class: t, Native: rv.Interface()}
	}
	if rv.Kind() == reflect.Slice {
		if et, ok := r.hostTypeOf(rv.Type().Elem()); ok {
			items := make([]Value, rv.Len())
			for i := range items {
				items[i] = r.fromGo(rv.Index(i))
			}
			return &Object{Class: r.ArrayOf(et), Native: items}
		}
	}
	switch rv.Kind() {
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	}
	return Normalize(rv.Interface())
}

func (r *Registry) reflectField(owner *Type, name string, index int, typ *Type) *Field {
	f := &Field{Name: name, Declaring: owner, Type: typ, Flags: bytecode.AccPublic}
	target := func(recv Value) (reflect.Value, error) {
		o, ok := recv.(*Object)
		if !ok || o == nil || o.Native == nil {
			return reflect.Value{}, errs.Newf(errs.CodeInvocation, "field %s read without a receiver", f.Signature())
		}
		return reflect.ValueOf(o.Native).Elem().Field(index), nil
	}
	f.get = func(recv Value) (Value, error) {
		fv, err := target(recv)
		if err != nil {
			return nil, err
		}
		return convertPrimitive(r.fromGo(fv), typ), nil
	}
	f.set = func(recv Value, v Value) error {
		fv, err := target(recv)
		if err != nil {
			return err
		}
		gv, err := toGo(v, fv.Type())
		if err != nil {
			return err
		}
		fv.Set(gv)
		return nil
	}
	return f
}

func lowerFirst(s string) string {
	for i, c := range s {
		return string(unicode.ToLower(c)) + s[i+len(string(c)):]
	}
	return s
}
