package classgen

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"hostscript/internal/core/config"
	errs "hostscript/internal/core/errors"
	"hostscript/internal/engine/bytecode"
	"hostscript/internal/engine/classpath"
	"hostscript/internal/engine/dispatch"
	"hostscript/internal/engine/host"
	"hostscript/internal/engine/modifiers"
	"hostscript/internal/engine/security"
)

func newGenerator(t *testing.T, guard security.Guard) (*Generator, *classpath.Resolver, *host.Registry) {
	t.Helper()
	cp, err := classpath.New(classpath.Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = cp.Close() })
	reg := host.NewRegistry(cp)
	return New(cp, reg, guard, "script"), cp, reg
}

func mods(t *testing.T, ctx modifiers.Context, names ...string) *modifiers.Set {
	t.Helper()
	s, err := modifiers.Parse(ctx, names...)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func greeterDescriptor() Descriptor {
	return Descriptor{
		Name:       "Greeter",
		Interfaces: []*host.Type{host.Runnable, host.Comparable},
		Fields:     []Field{{Name: "greeting", Type: host.StringClass}, {Name: "runs", Type: host.Int}},
		Methods: []Method{
			{Name: "<init>", Params: []*host.Type{host.StringClass}, Body: BodyFunc(func(this host.Value, args []host.Value) (host.Value, error) {
				this.(*host.Object).SetFieldValue("greeting", args[0])
				return nil, nil
			})},
			{Name: "greet", Params: []*host.Type{host.StringClass}, Return: host.StringClass, Body: BodyFunc(func(this host.Value, args []host.Value) (host.Value, error) {
				g, _ := this.(*host.Object).FieldValue("greeting")
				return g.(string) + ", " + args[0].(string), nil
			})},
			{Name: "run", Return: host.Void, Body: BodyFunc(func(this host.Value, _ []host.Value) (host.Value, error) {
				o := this.(*host.Object)
				n, _ := o.FieldValue("runs")
				o.SetFieldValue("runs", n.(int32)+1)
				return nil, nil
			})},
			{Name: "compareTo", Params: []*host.Type{host.ObjectClass}, Return: host.Int, Body: BodyFunc(func(host.Value, []host.Value) (host.Value, error) {
				// Widened by the trampoline to the declared int.
				return int8(0), nil
			})},
			{Name: "count", Params: []*host.Type{host.Int}, Return: host.Int, Varargs: true, Body: BodyFunc(func(_ host.Value, args []host.Value) (host.Value, error) {
				return int32(len(args[0].(*host.Object).Native.([]host.Value))), nil
			})},
		},
	}
}

func TestGenerate_RoundTrip(t *testing.T) {
	g, cp, reg := newGenerator(t, nil)
	gen, err := g.Generate(context.Background(), greeterDescriptor())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if gen.Name != "script.Greeter" || gen.Version != 1 {
		t.Fatalf("unexpected generated name %s v%d", gen.Name, gen.Version)
	}

	served, err := cp.ClassBytes(gen.Name)
	if err != nil || !bytes.Equal(served, gen.Data) {
		t.Fatalf("classpath must serve the emitted bytes: %v", err)
	}
	cf, err := bytecode.Parse(served)
	if err != nil {
		t.Fatalf("served bytes must parse: %v", err)
	}
	for _, m := range cf.Methods {
		if _, ok := m.Trampoline(); !ok {
			t.Fatalf("method %s carries no trampoline", m.Name)
		}
	}
	if g.Bodies().Len() != len(gen.Handles) {
		t.Fatalf("expected %d bound bodies, got %d", len(gen.Handles), g.Bodies().Len())
	}

	typ, err := reg.Lookup(gen.Name)
	if err != nil || typ != gen.Type {
		t.Fatalf("registry lookup: %v", err)
	}
	if !typ.AssignableTo(host.Runnable) || !typ.AssignableTo(host.Comparable) {
		t.Fatal("generated class must implement its interfaces")
	}

	inv := dispatch.NewInvoker(reg, nil, 16)
	obj, err := inv.Construct(typ, []host.Value{"hello"})
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	if got, err := inv.InvokeMethod(obj, "greet", []host.Value{"world"}); err != nil || got != "hello, world" {
		t.Fatalf("greet: %v %v", got, err)
	}
	if _, err := inv.InvokeMethod(obj, "run", nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if runs, _ := obj.(*host.Object).FieldValue("runs"); runs != int32(1) {
		t.Fatalf("run should update the field, got %v", runs)
	}
	if got, err := inv.InvokeMethod(obj, "compareTo", []host.Value{"x"}); err != nil || got != int32(0) {
		t.Fatalf("compareTo: %v %v", got, err)
	}
	if got, err := inv.InvokeMethod(obj, "count", []host.Value{int32(1), int32(2), int32(3)}); err != nil || got != int32(3) {
		t.Fatalf("count: %v %v", got, err)
	}
	if got, err := inv.GetField(obj, "greeting"); err != nil || got != "hello" {
		t.Fatalf("greeting field: %v %v", got, err)
	}
}

func TestGenerate_RedeclarationIsVersioned(t *testing.T) {
	g, cp, _ := newGenerator(t, nil)
	first, err := g.Generate(context.Background(), greeterDescriptor())
	if err != nil {
		t.Fatal(err)
	}
	second, err := g.Generate(context.Background(), greeterDescriptor())
	if err != nil {
		t.Fatal(err)
	}
	if second.Name != "script.Greeter$v2" || second.Version != 2 {
		t.Fatalf("expected a versioned redeclaration, got %s", second.Name)
	}
	if first.Type == second.Type {
		t.Fatal("redeclaration must not mutate the first type")
	}
	if !cp.HasClass(first.Name) || !cp.HasClass(second.Name) {
		t.Fatal("both versions stay on the classpath")
	}
}

func TestGenerate_FailuresLeaveNoTrace(t *testing.T) {
	guard, err := security.NewPolicyGuard([]config.DenyRule{{Operation: "implement", Pattern: "java.lang.Runnable"}})
	if err != nil {
		t.Fatal(err)
	}
	g, cp, _ := newGenerator(t, guard)

	ok := BodyFunc(func(host.Value, []host.Value) (host.Value, error) { return nil, nil })
	cases := []struct {
		name string
		desc Descriptor
		code errs.ErrorCode
	}{
		{"denied interface", Descriptor{Name: "Task", Interfaces: []*host.Type{host.Runnable}}, errs.CodeSecurityDenied},
		{"final super", Descriptor{Name: "MyString", Super: host.StringClass}, errs.CodeTypeMismatch},
		{"class as interface", Descriptor{Name: "Bad", Interfaces: []*host.Type{host.ObjectClass}}, errs.CodeTypeMismatch},
		{"abstract method in concrete class", Descriptor{Name: "Half", Methods: []Method{
			{Name: "m", Modifiers: mods(t, modifiers.ContextMethod, modifiers.Abstract)},
		}}, errs.CodeValidationError},
		{"missing body", Descriptor{Name: "Empty", Methods: []Method{{Name: "m"}}}, errs.CodeValidationError},
		{"duplicate method", Descriptor{Name: "Twice", Methods: []Method{
			{Name: "m", Params: []*host.Type{host.Int}, Body: ok},
			{Name: "m", Params: []*host.Type{host.Int}, Return: host.Long, Body: ok},
		}}, errs.CodeDuplicateDeclaration},
		{"undefined super", Descriptor{
			Name:    "Child",
			Super:   &host.Type{Name: "elsewhere.Base", Kind: host.KindClass},
			Methods: []Method{{Name: "m", Body: ok}},
		}, errs.CodeNotFound},
		{"varargs without parameters", Descriptor{Name: "Spread", Methods: []Method{
			{Name: "m", Varargs: true, Body: ok},
		}}, errs.CodeValidationError},
		{"oversized name", Descriptor{Name: "Huge", Methods: []Method{
			{Name: strings.Repeat("m", bytecode.MaxUTFLength+1), Body: ok},
		}}, errs.CodeByteEmission},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := g.Generate(context.Background(), tc.desc)
			if !errs.IsCode(err, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
			if cp.HasClass(g.QualifiedName(tc.desc.Name)) {
				t.Fatal("failed generation must not reach the classpath")
			}
			if g.Bodies().Len() != 0 {
				t.Fatalf("failed generation leaked %d bodies", g.Bodies().Len())
			}
		})
	}
}

func TestGenerate_AbstractAndInterface(t *testing.T) {
	g, _, reg := newGenerator(t, nil)
	iface, err := g.Generate(context.Background(), Descriptor{
		Name:      "app.Shape",
		Interface: true,
		Methods:   []Method{{Name: "area", Return: host.Double}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !iface.Type.IsInterface() || iface.Name != "app.Shape" {
		t.Fatalf("expected interface app.Shape, got %s", iface.Name)
	}

	square, err := g.Generate(context.Background(), Descriptor{
		Name:       "app.Square",
		Interfaces: []*host.Type{iface.Type},
		Methods: []Method{{Name: "area", Return: host.Double, Body: BodyFunc(func(host.Value, []host.Value) (host.Value, error) {
			return int32(4), nil
		})}},
	})
	if err != nil {
		t.Fatal(err)
	}
	inv := dispatch.NewInvoker(reg, nil, 16)
	obj, err := inv.Construct(square.Type, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got, err := inv.InvokeMethod(obj, "area", nil); err != nil || got != float64(4) {
		t.Fatalf("area: %v %v", got, err)
	}
	if _, err := inv.Construct(iface.Type, nil); !errs.IsCode(err, errs.CodeNotSupported) {
		t.Fatalf("interfaces cannot be constructed, got %v", err)
	}
}
