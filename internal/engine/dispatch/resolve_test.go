package dispatch

import (
	"reflect"
	"testing"

	errs "hostscript/internal/core/errors"
	"hostscript/internal/engine/bytecode"
	"hostscript/internal/engine/host"
)

func overload(owner *host.Type, name string, flags uint16, varargs bool, params ...*host.Type) *host.Method {
	return &host.Method{Name: name, Declaring: owner, Params: params, Return: host.Void, Flags: flags, Varargs: varargs}
}

var demo = &host.Type{Name: "demo.Overloads", Kind: host.KindClass, Super: host.ObjectClass}

func resolveSig(t *testing.T, methods []*host.Method, shape CallShape, args ...host.Value) string {
	t.Helper()
	c, err := Resolve(FromMethods(methods), args, shape)
	if err != nil {
		t.Fatalf("resolve %v: %v", args, err)
	}
	return c.Signature()
}

func TestResolve_ObjectVersusString(t *testing.T) {
	fObject := overload(demo, "f", 0, false, host.ObjectClass)
	fString := overload(demo, "f", 0, false, host.StringClass)

	for _, order := range [][]*host.Method{{fObject, fString}, {fString, fObject}} {
		if got := resolveSig(t, order, ShapeAny, "text"); got != fString.Signature() {
			t.Fatalf("string argument must pick f(String), got %s", got)
		}
		if got := resolveSig(t, order, ShapeAny, nil); got != fString.Signature() {
			t.Fatalf("null argument must pick the more specific f(String), got %s", got)
		}
		if got := resolveSig(t, order, ShapeAny, int32(3)); got != fObject.Signature() {
			t.Fatalf("int argument must box into f(Object), got %s", got)
		}
	}
}

func TestResolve_ConversionRanking(t *testing.T) {
	fInt := overload(demo, "g", 0, false, host.Int)
	fLong := overload(demo, "g", 0, false, host.Long)
	fInteger := overload(demo, "g", 0, false, host.IntegerBox)
	all := []*host.Method{fLong, fInteger, fInt}

	cases := []struct {
		name string
		arg  host.Value
		want *host.Method
	}{
		{"identity beats widening and boxing", int32(1), fInt},
		{"widening beats boxing", int16(1), fInt},
		{"plain int normalizes", 7, fInt},
		{"long only fits long", int64(1), fLong},
		{"unboxing prefers the exact primitive", &host.Object{Class: host.IntegerBox, Native: int32(1)}, fInteger},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := resolveSig(t, all, ShapeAny, tc.arg); got != tc.want.Signature() {
				t.Fatalf("expected %s, got %s", tc.want.Signature(), got)
			}
		})
	}
}

func TestResolve_Ambiguity(t *testing.T) {
	a := overload(demo, "h", 0, false, host.Int, host.Long)
	b := overload(demo, "h", 0, false, host.Long, host.Int)

	_, err := Resolve(FromMethods([]*host.Method{a, b}), []host.Value{int32(1), int32(2)}, ShapeAny)
	if !errs.IsCode(err, errs.CodeAmbiguousOverload) {
		t.Fatalf("expected ambiguity, got %v", err)
	}
	want := []string{a.Signature(), b.Signature()}
	if got := errs.Candidates(err); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected tied signatures %v, got %v", want, got)
	}

	cs := overload(demo, "h", 0, false, host.CharSequence)
	cmp := overload(demo, "h", 0, false, host.Comparable)
	if _, err := Resolve(FromMethods([]*host.Method{cs, cmp}), []host.Value{"x"}, ShapeAny); !errs.IsCode(err, errs.CodeAmbiguousOverload) {
		t.Fatalf("unrelated interfaces must tie, got %v", err)
	}
}

func TestResolve_CallShapeBreaksTies(t *testing.T) {
	inst := overload(demo, "k", 0, false, host.CharSequence)
	stat := overload(demo, "k", bytecode.AccStatic, false, host.Comparable)
	methods := []*host.Method{inst, stat}

	if got := resolveSig(t, methods, ShapeStatic, "x"); got != stat.Signature() {
		t.Fatalf("static shape: got %s", got)
	}
	if got := resolveSig(t, methods, ShapeInstance, "x"); got != inst.Signature() {
		t.Fatalf("instance shape: got %s", got)
	}
	if _, err := Resolve(FromMethods(methods), []host.Value{"x"}, ShapeAny); !errs.IsCode(err, errs.CodeAmbiguousOverload) {
		t.Fatalf("shape-neutral call must stay ambiguous, got %v", err)
	}
}

func TestResolve_VarargsPhases(t *testing.T) {
	fixed := overload(demo, "v", 0, false, host.Int, host.Int)
	spread := overload(demo, "v", 0, true, host.Int)
	methods := []*host.Method{spread, fixed}

	m, err := ResolveMatch(FromMethods(methods), []host.Value{int32(1), int32(2)}, ShapeAny)
	if err != nil || m.Candidate.Signature() != fixed.Signature() || m.Spread {
		t.Fatalf("fixed arity must win before varargs, got %+v %v", m, err)
	}

	m, err = ResolveMatch(FromMethods(methods), []host.Value{int32(1), int32(2), int32(3)}, ShapeAny)
	if err != nil || m.Candidate.Signature() != spread.Signature() || !m.Spread {
		t.Fatalf("expected variable arity application, got %+v %v", m, err)
	}

	m, err = ResolveMatch(FromMethods(methods), nil, ShapeAny)
	if err != nil || !m.Spread {
		t.Fatalf("empty varargs call must apply, got %+v %v", m, err)
	}

	arr := &host.Object{Class: &host.Type{Name: "int[]", Kind: host.KindArray, Elem: host.Int}, Native: []host.Value{int32(1)}}
	m, err = ResolveMatch(FromMethods(methods), []host.Value{arr}, ShapeAny)
	if err != nil || m.Spread {
		t.Fatalf("an array argument binds with fixed arity, got %+v %v", m, err)
	}

	_, err = Resolve(FromMethods(methods), []host.Value{"nope"}, ShapeAny)
	if !errs.IsCode(err, errs.CodeNoApplicableOverload) {
		t.Fatalf("expected no applicable overload, got %v", err)
	}
	if got := errs.Candidates(err); len(got) != 2 {
		t.Fatalf("expected both signatures listed, got %v", got)
	}
}

func TestResolve_UntypedParameters(t *testing.T) {
	loose := overload(demo, "u", 0, false, nil)
	typed := overload(demo, "u", 0, false, host.StringClass)
	if got := resolveSig(t, []*host.Method{loose, typed}, ShapeAny, "s"); got != typed.Signature() {
		t.Fatalf("typed parameter must beat untyped, got %s", got)
	}
	if got := resolveSig(t, []*host.Method{loose, typed}, ShapeAny, int32(1)); got != loose.Signature() {
		t.Fatalf("untyped parameter accepts anything, got %s", got)
	}
}

func TestResolve_VarargsWithoutParameters(t *testing.T) {
	empty := overload(demo, "e", 0, true)
	methods := FromMethods([]*host.Method{empty})
	if _, err := Resolve(methods, []host.Value{int32(1)}, ShapeAny); !errs.IsCode(err, errs.CodeNoApplicableOverload) {
		t.Fatalf("expected no applicable overload, got %v", err)
	}
	m, err := ResolveMatch(methods, nil, ShapeAny)
	if err != nil || m.Spread {
		t.Fatalf("empty call binds with fixed arity, got %+v %v", m, err)
	}
}
