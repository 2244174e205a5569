package modifiers

import (
	"reflect"
	"testing"

	errs "hostscript/internal/core/errors"
	"hostscript/internal/engine/bytecode"
)

func TestSet_AccessExclusive(t *testing.T) {
	s := New(ContextMethod)
	if err := s.Add(Private); err != nil {
		t.Fatalf("add private: %v", err)
	}
	err := s.Add(Public)
	if !errs.IsCode(err, errs.CodeValidationError) {
		t.Fatalf("expected validation error adding public after private, got %v", err)
	}
	if s.Access() != Private || s.Len() != 1 {
		t.Fatalf("rejected add must leave set unchanged, got %v", s.Names())
	}
}

func TestSet_ContextRules(t *testing.T) {
	tests := []struct {
		name string
		ctx  Context
		mods []string
		ok   bool
	}{
		{name: "volatile field", ctx: ContextField, mods: []string{Volatile}},
		{name: "native class", ctx: ContextClass, mods: []string{Native}},
		{name: "synchronized class", ctx: ContextClass, mods: []string{Synchronized}},
		{name: "synchronized field", ctx: ContextField, mods: []string{Synchronized}},
		{name: "transient method", ctx: ContextMethod, mods: []string{Transient}},
		{name: "abstract final class", ctx: ContextClass, mods: []string{Abstract, Final}},
		{name: "abstract static method", ctx: ContextMethod, mods: []string{Static, Abstract}},
		{name: "unknown token", ctx: ContextMethod, mods: []string{"sealed"}},
		{name: "native synchronized method", ctx: ContextMethod, mods: []string{Native, Synchronized}, ok: true},
		{name: "transient static field", ctx: ContextField, mods: []string{Private, Static, Transient}, ok: true},
		{name: "abstract class", ctx: ContextClass, mods: []string{Public, Abstract}, ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.ctx, tt.mods...)
			if tt.ok && err != nil {
				t.Fatalf("expected %v to be valid, got %v", tt.mods, err)
			}
			if !tt.ok && !errs.IsCode(err, errs.CodeValidationError) {
				t.Fatalf("expected %v to be rejected, got %v", tt.mods, err)
			}
		})
	}
}

func TestSet_ConstantShortcut(t *testing.T) {
	s := New(ContextField)
	if err := s.Add(Static); err != nil {
		t.Fatal(err)
	}
	if err := s.SetConstant(); err != nil {
		t.Fatalf("set constant: %v", err)
	}
	if err := s.SetConstant(); err != nil {
		t.Fatalf("set constant twice: %v", err)
	}
	if got := s.Names(); !reflect.DeepEqual(got, []string{Static, Public, Final}) {
		t.Fatalf("expected exactly static, public, final; got %v", got)
	}
}

func TestSet_Flags(t *testing.T) {
	s, err := Parse(ContextMethod, Public, Static, Synchronized)
	if err != nil {
		t.Fatal(err)
	}
	want := bytecode.AccPublic | bytecode.AccStatic | bytecode.AccSynchronized
	if s.Flags() != want {
		t.Fatalf("expected flags 0x%04X, got 0x%04X", want, s.Flags())
	}

	var none *Set
	if none.Flags() != 0 || none.Has(Public) || none.String() != "" {
		t.Fatal("nil set must behave as empty")
	}
}
