// Package scope implements the lexical namespace chain scripts run in.
package scope

import (
	errs "hostscript/internal/core/errors"
	"hostscript/internal/engine/host"
	"hostscript/internal/engine/modifiers"
)

// Location is where a variable's value actually lives.
type Location interface {
	Get() host.Value
	Set(v host.Value) error
}

// slotLocation is an ordinary in-scope cell.
type slotLocation struct {
	v host.Value
}

func (l *slotLocation) Get() host.Value { return l.v }

func (l *slotLocation) Set(v host.Value) error {
	l.v = v
	return nil
}

// Variable is a named, optionally typed binding. A nil Type means untyped.
type Variable struct {
	Name      string
	Type      *host.Type
	Modifiers *modifiers.Set

	loc Location
}

func newVariable(name string, typ *host.Type, mods *modifiers.Set, loc Location) *Variable {
	if mods == nil {
		mods = modifiers.New(modifiers.ContextField)
	}
	return &Variable{Name: name, Type: typ, Modifiers: mods, loc: loc}
}

// Value reads through the variable's location.
func (v *Variable) Value() host.Value {
	return v.loc.Get()
}

func (v *Variable) Final() bool { return v.Modifiers.Has(modifiers.Final) }

// Typed reports whether the variable was declared with a type.
func (v *Variable) Typed() bool { return v.Type != nil }

// Set assigns val, converting it to the declared type.
func (v *Variable) Set(val host.Value) error {
	if v.Final() {
		return errs.Newf(errs.CodeFinalAssignment, "cannot assign to final variable %q", v.Name).(*errs.DomainError).
			WithContext(errs.CtxSymbol, v.Name)
	}
	return v.store(val)
}

// store writes without the final check; used for the initial value.
func (v *Variable) store(val host.Value) error {
	coerced, err := host.Coerce(val, v.Type)
	if err != nil {
		return errs.AddContext(err, errs.CtxSymbol, v.Name)
	}
	return v.loc.Set(coerced)
}

func (v *Variable) String() string {
	typ := "untyped"
	if v.Type != nil {
		typ = v.Type.Name
	}
	return v.Name + ":" + typ + "=" + host.ToString(v.Value())
}
