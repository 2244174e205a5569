package host

import (
	"fmt"
	"strconv"
	"strings"

	errs "hostscript/internal/core/errors"
	"hostscript/internal/engine/bytecode"
)

func primitive(name string, rank int) *Type {
	t := &Type{Name: name, Kind: KindPrimitive, Flags: bytecode.AccPublic | bytecode.AccFinal, Origin: "builtin", rank: rank}
	t.ready.Store(true)
	return t
}

func builtinClass(name string, kind Kind, flags uint16) *Type {
	t := &Type{Name: name, Kind: kind, Flags: bytecode.AccPublic | flags, Origin: "builtin"}
	if kind == KindInterface {
		t.Flags |= bytecode.AccInterface | bytecode.AccAbstract
	}
	t.ready.Store(true)
	return t
}

// Primitive types. rank orders the numeric widening chain.
var (
	Boolean  = primitive("boolean", 0)
	Byte     = primitive("byte", 1)
	Short    = primitive("short", 2)
	CharType = primitive("char", 2)
	Int      = primitive("int", 3)
	Long     = primitive("long", 4)
	Float    = primitive("float", 5)
	Double   = primitive("double", 6)
	Void     = primitive("void", 0)
)

var (
	ObjectClass   = builtinClass("java.lang.Object", KindClass, 0)
	CharSequence  = builtinClass("java.lang.CharSequence", KindInterface, 0)
	Comparable    = builtinClass("java.lang.Comparable", KindInterface, 0)
	Runnable      = builtinClass("java.lang.Runnable", KindInterface, 0)
	StringClass   = builtinClass("java.lang.String", KindClass, bytecode.AccFinal)
	NumberClass   = builtinClass("java.lang.Number", KindClass, bytecode.AccAbstract)
	BooleanBox    = builtinClass("java.lang.Boolean", KindClass, bytecode.AccFinal)
	ByteBox       = builtinClass("java.lang.Byte", KindClass, bytecode.AccFinal)
	ShortBox      = builtinClass("java.lang.Short", KindClass, bytecode.AccFinal)
	CharacterBox  = builtinClass("java.lang.Character", KindClass, bytecode.AccFinal)
	IntegerBox    = builtinClass("java.lang.Integer", KindClass, bytecode.AccFinal)
	LongBox       = builtinClass("java.lang.Long", KindClass, bytecode.AccFinal)
	FloatBox      = builtinClass("java.lang.Float", KindClass, bytecode.AccFinal)
	DoubleBox     = builtinClass("java.lang.Double", KindClass, bytecode.AccFinal)
	primitiveList = []*Type{Boolean, Byte, Short, CharType, Int, Long, Float, Double, Void}
)

var boxes = map[*Type]*Type{
	Boolean:  BooleanBox,
	Byte:     ByteBox,
	Short:    ShortBox,
	CharType: CharacterBox,
	Int:      IntegerBox,
	Long:     LongBox,
	Float:    FloatBox,
	Double:   DoubleBox,
}

var unboxes = func() map[*Type]*Type {
	out := make(map[*Type]*Type, len(boxes))
	for p, b := range boxes {
		out[b] = p
	}
	return out
}()

// BoxOf returns the wrapper class of a primitive type.
func BoxOf(t *Type) *Type { return boxes[t] }

// UnboxedOf returns the primitive type wrapped by a box class.
func UnboxedOf(t *Type) *Type { return unboxes[t] }

func isBoxType(t *Type) bool { return unboxes[t] != nil }

// PrimitiveByName returns the primitive named name ("int", "void", ...).
func PrimitiveByName(name string) (*Type, bool) {
	for _, p := range primitiveList {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// Box wraps a primitive value in its box class.
func Box(v Value) (*Object, error) {
	t := TypeOf(v)
	box := BoxOf(t)
	if box == nil {
		return nil, errs.Newf(errs.CodeTypeMismatch, "cannot box value of type %s", t)
	}
	return &Object{Class: box, Native: v}, nil
}

func builtinTypes() []*Type {
	return []*Type{
		ObjectClass, CharSequence, Comparable, Runnable, StringClass, NumberClass,
		BooleanBox, ByteBox, ShortBox, CharacterBox, IntegerBox, LongBox, FloatBox, DoubleBox,
	}
}

func method(owner *Type, name string, flags uint16, ret *Type, impl Func, params ...*Type) *Method {
	m := &Method{Name: name, Declaring: owner, Params: params, Return: ret, Flags: bytecode.AccPublic | flags, Impl: impl}
	owner.Methods = append(owner.Methods, m)
	return m
}

func constructor(owner *Type, impl Func, params ...*Type) {
	owner.Constructors = append(owner.Constructors, &Method{
		Name: "<init>", Declaring: owner, Params: params, Return: Void, Flags: bytecode.AccPublic, Impl: impl,
	})
}

func init() {
	for _, t := range builtinTypes() {
		if t != ObjectClass {
			t.Super = ObjectClass
		}
	}
	for _, iface := range []*Type{CharSequence, Comparable, Runnable} {
		iface.Super = nil
	}
	StringClass.Interfaces = []*Type{CharSequence, Comparable}
	for _, box := range []*Type{ByteBox, ShortBox, IntegerBox, LongBox, FloatBox, DoubleBox} {
		box.Super = NumberClass
	}
	for _, box := range boxes {
		box.Interfaces = []*Type{Comparable}
	}

	constructor(ObjectClass, func(recv Value, args []Value) (Value, error) { return recv, nil })
	method(ObjectClass, "toString", 0, StringClass, func(recv Value, _ []Value) (Value, error) {
		return ToString(recv), nil
	})
	method(ObjectClass, "equals", 0, Boolean, func(recv Value, args []Value) (Value, error) {
		return Equal(recv, args[0]), nil
	}, ObjectClass)
	method(ObjectClass, "hashCode", 0, Int, func(recv Value, _ []Value) (Value, error) {
		return hashCode(recv), nil
	})

	method(CharSequence, "length", bytecode.AccAbstract, Int, nil)
	method(Comparable, "compareTo", bytecode.AccAbstract, Int, nil, ObjectClass)
	method(Runnable, "run", bytecode.AccAbstract, Void, nil)

	initString()
	initBoxes()
}

func initString() {
	s := StringClass
	constructor(s, func(recv Value, args []Value) (Value, error) { return "", nil })
	constructor(s, func(recv Value, args []Value) (Value, error) { return args[0], nil }, StringClass)
	method(s, "length", 0, Int, func(recv Value, _ []Value) (Value, error) {
		return int32(len([]rune(recv.(string)))), nil
	})
	method(s, "toString", 0, StringClass, func(recv Value, _ []Value) (Value, error) { return recv, nil })
	method(s, "concat", 0, StringClass, func(recv Value, args []Value) (Value, error) {
		return recv.(string) + args[0].(string), nil
	}, StringClass)
	method(s, "toUpperCase", 0, StringClass, func(recv Value, _ []Value) (Value, error) {
		return strings.ToUpper(recv.(string)), nil
	})
	method(s, "isEmpty", 0, Boolean, func(recv Value, _ []Value) (Value, error) {
		return recv.(string) == "", nil
	})
	method(s, "charAt", 0, CharType, func(recv Value, args []Value) (Value, error) {
		r := []rune(recv.(string))
		i := int(args[0].(int32))
		if i < 0 || i >= len(r) {
			return nil, errs.Newf(errs.CodeInvocation, "string index %d out of range [0,%d)", i, len(r))
		}
		return Char(r[i]), nil
	}, Int)
	substring := func(recv Value, args []Value) (Value, error) {
		r := []rune(recv.(string))
		begin, end := int(args[0].(int32)), len(r)
		if len(args) > 1 {
			end = int(args[1].(int32))
		}
		if begin < 0 || end > len(r) || begin > end {
			return nil, errs.Newf(errs.CodeInvocation, "substring [%d,%d) out of range for length %d", begin, end, len(r))
		}
		return string(r[begin:end]), nil
	}
	method(s, "substring", 0, StringClass, substring, Int)
	method(s, "substring", 0, StringClass, substring, Int, Int)
	method(s, "compareTo", 0, Int, func(recv Value, args []Value) (Value, error) {
		other, ok := args[0].(string)
		if !ok {
			return nil, errs.Newf(errs.CodeTypeMismatch, "cannot compare String with %s", TypeOf(args[0]))
		}
		return int32(strings.Compare(recv.(string), other)), nil
	}, ObjectClass)

	valueOf := func(_ Value, args []Value) (Value, error) { return ToString(args[0]), nil }
	for _, p := range []*Type{Boolean, CharType, Int, Long, Float, Double, ObjectClass} {
		method(s, "valueOf", bytecode.AccStatic, StringClass, valueOf, p)
	}
}

func initBoxes() {
	for prim, box := range boxes {
		prim, box := prim, box
		constructor(box, func(recv Value, args []Value) (Value, error) {
			return &Object{Class: box, Native: args[0]}, nil
		}, prim)
		method(box, "valueOf", bytecode.AccStatic, box, func(_ Value, args []Value) (Value, error) {
			return &Object{Class: box, Native: args[0]}, nil
		}, prim)
		method(box, prim.Name+"Value", 0, prim, func(recv Value, _ []Value) (Value, error) {
			return recv.(*Object).Native, nil
		})
		method(box, "compareTo", 0, Int, func(recv Value, args []Value) (Value, error) {
			return compareValues(recv, args[0])
		}, ObjectClass)
	}
	method(NumberClass, "intValue", bytecode.AccAbstract, Int, nil)
	method(NumberClass, "doubleValue", bytecode.AccAbstract, Double, nil)
	for _, box := range []*Type{ByteBox, ShortBox, IntegerBox, LongBox, FloatBox, DoubleBox} {
		method(box, "intValue", 0, Int, func(recv Value, _ []Value) (Value, error) {
			return convertPrimitive(recv.(*Object).Native, Int), nil
		})
		method(box, "doubleValue", 0, Double, func(recv Value, _ []Value) (Value, error) {
			return convertPrimitive(recv.(*Object).Native, Double), nil
		})
	}
	method(IntegerBox, "parseInt", bytecode.AccStatic, Int, func(_ Value, args []Value) (Value, error) {
		n, err := strconv.ParseInt(strings.TrimSpace(args[0].(string)), 10, 32)
		if err != nil {
			return nil, errs.Wrap(err, errs.CodeInvocation, "Integer.parseInt")
		}
		return int32(n), nil
	}, StringClass)
}

// ToString renders v the way String.valueOf does.
func ToString(v Value) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case Char:
		return string(rune(x))
	case *Object:
		return x.String()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// Equal compares by value for primitives, text and boxes, by identity otherwise.
func Equal(a, b Value) bool {
	if oa, ok := a.(*Object); ok && isBoxType(oa.Class) {
		a = oa.Native
	}
	if ob, ok := b.(*Object); ok && isBoxType(ob.Class) {
		b = ob.Native
	}
	return a == b
}

func hashCode(v Value) int32 {
	s := ToString(v)
	var h int32
	for _, r := range s {
		h = 31*h + int32(r)
	}
	return h
}

func compareValues(a, b Value) (Value, error) {
	if ob, ok := b.(*Object); ok && isBoxType(ob.Class) {
		b = ob.Native
	}
	x, okA := toFloat64(a.(*Object).Native)
	y, okB := toFloat64(b)
	if !okA || !okB {
		xb, isBoolA := a.(*Object).Native.(bool)
		yb, isBoolB := b.(bool)
		if !isBoolA || !isBoolB {
			return nil, errs.Newf(errs.CodeTypeMismatch, "cannot compare %s with %s", TypeOf(a), TypeOf(b))
		}
		x, y = boolOrdinal(xb), boolOrdinal(yb)
	}
	switch {
	case x < y:
		return int32(-1), nil
	case x > y:
		return int32(1), nil
	default:
		return int32(0), nil
	}
}

func boolOrdinal(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
