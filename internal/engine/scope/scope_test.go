package scope

import (
	"runtime"
	"testing"

	errs "hostscript/internal/core/errors"
	"hostscript/internal/engine/host"
	"hostscript/internal/engine/modifiers"
)

func TestScope_ChildShadowsAndRestores(t *testing.T) {
	root := New("global", nil)
	if _, err := root.Declare("x", nil, 5, nil); err != nil {
		t.Fatal(err)
	}

	child := root.Child("block")
	if _, err := child.Declare("x", nil, "hello", nil); err != nil {
		t.Fatal(err)
	}
	if v, ok := child.Get("x"); !ok || v != "hello" {
		t.Fatalf("child read: %v, %v", v, ok)
	}
	child.Clear()

	if v, ok := root.Get("x"); !ok || v != int32(5) {
		t.Fatalf("root read after child exit: %#v, %v", v, ok)
	}
}

func TestScope_ShadowingIsTransitive(t *testing.T) {
	root := New("root", nil)
	if _, err := root.Declare("n", host.Int, int32(1), nil); err != nil {
		t.Fatal(err)
	}
	chain := []*Scope{root}
	for i := 0; i < 4; i++ {
		chain = append(chain, chain[len(chain)-1].Child("level"))
	}
	for i, s := range chain {
		if v, ok := s.Get("n"); !ok || v != int32(1) {
			t.Fatalf("depth %d: expected root declaration, got %v", i, v)
		}
	}
	if _, err := chain[2].Declare("n", nil, "mid", nil); err != nil {
		t.Fatal(err)
	}
	for i, s := range chain {
		v, _ := s.Get("n")
		want := host.Value(int32(1))
		if i >= 2 {
			want = "mid"
		}
		if v != want {
			t.Fatalf("depth %d: got %v, want %v", i, v, want)
		}
	}
}

func TestScope_Declare(t *testing.T) {
	s := New("root", nil)
	if _, err := s.Declare("a", nil, "untyped", nil); err != nil {
		t.Fatal(err)
	}
	v, err := s.Declare("a", host.Int, int32(3), nil)
	if err != nil {
		t.Fatalf("typing an untyped declaration must succeed: %v", err)
	}
	if v.Type != host.Int {
		t.Fatalf("expected int, got %v", v.Type)
	}
	_, err = s.Declare("a", host.StringClass, "x", nil)
	if !errs.IsCode(err, errs.CodeDuplicateDeclaration) {
		t.Fatalf("expected duplicate declaration, got %v", err)
	}

	if _, err := s.Declare("l", host.Long, int32(7), nil); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Get("l"); got != int64(7) {
		t.Fatalf("declared value must be widened, got %#v", got)
	}
	if _, err := s.Declare("bad", host.Int, "text", nil); !errs.IsCode(err, errs.CodeTypeMismatch) {
		t.Fatalf("expected type mismatch, got %v", err)
	}
	if _, ok := s.Local("bad"); ok {
		t.Fatal("failed declaration must not leave a variable behind")
	}
	if _, err := s.Declare("zero", host.Double, nil, nil); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Get("zero"); got != float64(0) {
		t.Fatalf("typed primitive without value must default to zero, got %#v", got)
	}
}

func TestScope_AssignAndFinal(t *testing.T) {
	root := New("root", nil)
	child := root.Child("call")

	if err := child.Assign("fresh", int32(1)); err != nil {
		t.Fatal(err)
	}
	if _, ok := root.Local("fresh"); ok {
		t.Fatal("implicit declaration must land in the current scope")
	}
	if _, ok := child.Local("fresh"); !ok {
		t.Fatal("implicit declaration missing from current scope")
	}

	if _, err := root.Declare("shared", nil, 1, nil); err != nil {
		t.Fatal(err)
	}
	if err := child.Assign("shared", 2); err != nil {
		t.Fatal(err)
	}
	if v, _ := root.Get("shared"); v != int32(2) {
		t.Fatalf("assignment must write through to the owning scope, got %v", v)
	}

	mods, err := modifiers.Parse(modifiers.ContextField, modifiers.Final)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := root.Declare("k", host.Int, int32(1), mods); err != nil {
		t.Fatal(err)
	}
	if err := child.Assign("k", int32(2)); !errs.IsCode(err, errs.CodeFinalAssignment) {
		t.Fatalf("expected final assignment error, got %v", err)
	}
	if v, _ := root.Get("k"); v != int32(1) {
		t.Fatalf("final value changed to %v", v)
	}
	if _, err := root.Declare("k", host.Int, int32(3), nil); !errs.IsCode(err, errs.CodeFinalAssignment) {
		t.Fatalf("redeclaring a final variable must fail, got %v", err)
	}
	if v, _ := root.Get("k"); v != int32(1) {
		t.Fatalf("redeclaration overwrote final value with %v", v)
	}

	if _, err := root.Declare("m", nil, nil, modifiers.New(modifiers.ContextMethod)); !errs.IsCode(err, errs.CodeValidationError) {
		t.Fatalf("method modifiers on a variable must be rejected, got %v", err)
	}
}

func TestScope_NullIsAValue(t *testing.T) {
	s := New("root", nil)
	if err := s.Assign("nothing", nil); err != nil {
		t.Fatal(err)
	}
	v, ok := s.Get("nothing")
	if !ok || v != nil {
		t.Fatalf("null must resolve as a value, got %v, %v", v, ok)
	}
	if _, ok := s.Get("missing"); ok {
		t.Fatal("undeclared name must be unresolved")
	}
	if !s.Unset("nothing") || s.Unset("nothing") {
		t.Fatal("unset must remove exactly once")
	}
}

func TestScope_Methods(t *testing.T) {
	root := New("root", nil)
	child := root.Child("inner")

	anyParam := []Param{{Name: "a"}}
	strParam := []Param{{Name: "a", Type: host.StringClass}}
	rootAny := &MethodDecl{Name: "f", Params: anyParam}
	rootStr := &MethodDecl{Name: "f", Params: strParam}
	childAny := &MethodDecl{Name: "f", Params: anyParam}
	for _, step := range []struct {
		s *Scope
		m *MethodDecl
	}{{root, rootAny}, {root, rootStr}, {child, childAny}} {
		if err := step.s.DeclareMethod(step.m); err != nil {
			t.Fatal(err)
		}
	}

	got := child.Methods("f")
	if len(got) != 2 || got[0] != childAny || got[1] != rootStr {
		t.Fatalf("expected child f(*) to shadow root f(*), got %v", got)
	}
	if rootAny.Scope != root || childAny.Scope != child {
		t.Fatal("declaring scope not recorded")
	}

	replacement := &MethodDecl{Name: "f", Params: strParam}
	if err := root.DeclareMethod(replacement); err != nil {
		t.Fatal(err)
	}
	if got := root.Methods("f"); len(got) != 2 || got[1] != replacement {
		t.Fatalf("same signature must replace in place, got %v", got)
	}

	bad := &MethodDecl{Name: "g", Modifiers: modifiers.New(modifiers.ContextField)}
	if err := root.DeclareMethod(bad); !errs.IsCode(err, errs.CodeValidationError) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := root.DeclareMethod(&MethodDecl{Name: "h", Varargs: true}); !errs.IsCode(err, errs.CodeValidationError) {
		t.Fatalf("varargs without a parameter must be rejected, got %v", err)
	}
	if got := root.Methods("h"); len(got) != 0 {
		t.Fatalf("rejected method was declared: %v", got)
	}
}

func TestScope_NameListeners(t *testing.T) {
	s := New("root", nil)
	var events []NameEvent
	l := NewNameListener(func(ev NameEvent) { events = append(events, ev) })
	s.AddNameListener(l)

	if _, err := s.Declare("v", nil, 1, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.DeclareMethod(&MethodDecl{Name: "run"}); err != nil {
		t.Fatal(err)
	}
	if err := s.ImportPackage("java.util.*"); err != nil {
		t.Fatal(err)
	}
	want := []NameEvent{
		{Kind: NameVariable, Name: "v", Scope: "root"},
		{Kind: NameMethod, Name: "run", Scope: "root"},
		{Kind: NameImport, Name: "java.util.*", Scope: "root"},
	}
	if len(events) != len(want) {
		t.Fatalf("expected %d events, got %v", len(want), events)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Fatalf("event %d: got %+v, want %+v", i, events[i], want[i])
		}
	}

	s.RemoveNameListener(l)
	runtime.KeepAlive(l)
	if _, err := s.Declare("w", nil, 1, nil); err != nil {
		t.Fatal(err)
	}
	if len(events) != len(want) {
		t.Fatal("removed listener still notified")
	}
}

func TestScope_DroppedListenerIsPruned(t *testing.T) {
	s := New("root", nil)
	s.AddNameListener(NewNameListener(func(NameEvent) {}))
	runtime.GC()
	runtime.GC()
	if _, err := s.Declare("v", nil, 1, nil); err != nil {
		t.Fatal(err)
	}
	if n := s.listeners.Len(); n != 0 {
		t.Fatalf("expected unreachable listener to be pruned, %d left", n)
	}
}
