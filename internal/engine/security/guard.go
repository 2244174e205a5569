// Package security is the checkpoint consulted before every reflective
// operation a script performs against the host object model.
package security

import (
	"hostscript/internal/engine/host"
)

// Operation names one checkpoint. The values match the operation names
// accepted by security.deny rules in the config.
type Operation string

const (
	OpConstruct      Operation = "construct"
	OpInvokeStatic   Operation = "invoke_static"
	OpInvokeMethod   Operation = "invoke_method"
	OpInvokeSuper    Operation = "invoke_super"
	OpGetField       Operation = "get_field"
	OpGetStaticField Operation = "get_static_field"
	OpExtend         Operation = "extend"
	OpImplement      Operation = "implement"
)

// Target describes the operation being attempted. Member is empty for
// type-level checks (extend, implement). Args are the call arguments after
// resolution; guards may inspect them but must never echo them in errors.
type Target struct {
	Type      *host.Type
	Member    string
	Signature string
	Args      []host.Value
	// Receiver is the instance for instance operations.
	Receiver host.Value
}

// Key is the "Type#member" string deny patterns match against. Type-level
// targets use the bare type name.
func (t Target) Key() string {
	name := ""
	if t.Type != nil {
		name = t.Type.Name
	}
	if t.Member == "" {
		return name
	}
	return name + "#" + t.Member
}

func (t Target) signature() string {
	if t.Signature != "" {
		return t.Signature
	}
	return t.Key()
}

// Guard decides whether an operation may proceed. A nil error allows it;
// denials are SECURITY_DENIED errors. Guards are stateless per call.
type Guard interface {
	CanConstruct(t Target) error
	CanInvokeStatic(t Target) error
	CanInvokeMethod(t Target) error
	CanInvokeSuper(t Target) error
	CanGetField(t Target) error
	CanGetStaticField(t Target) error
	CanExtend(t Target) error
	CanImplement(t Target) error
}

// Check routes op to the matching Guard method.
func Check(g Guard, op Operation, t Target) error {
	if g == nil {
		return nil
	}
	switch op {
	case OpConstruct:
		return g.CanConstruct(t)
	case OpInvokeStatic:
		return g.CanInvokeStatic(t)
	case OpInvokeMethod:
		return g.CanInvokeMethod(t)
	case OpInvokeSuper:
		return g.CanInvokeSuper(t)
	case OpGetField:
		return g.CanGetField(t)
	case OpGetStaticField:
		return g.CanGetStaticField(t)
	case OpExtend:
		return g.CanExtend(t)
	case OpImplement:
		return g.CanImplement(t)
	default:
		return nil
	}
}

// AllowAll permits everything.
type AllowAll struct{}

func (AllowAll) CanConstruct(Target) error      { return nil }
func (AllowAll) CanInvokeStatic(Target) error   { return nil }
func (AllowAll) CanInvokeMethod(Target) error   { return nil }
func (AllowAll) CanInvokeSuper(Target) error    { return nil }
func (AllowAll) CanGetField(Target) error       { return nil }
func (AllowAll) CanGetStaticField(Target) error { return nil }
func (AllowAll) CanExtend(Target) error         { return nil }
func (AllowAll) CanImplement(Target) error      { return nil }

// Composite denies when any child denies. Children run in order and the
// first denial is returned.
type Composite []Guard

func (c Composite) check(op Operation, t Target) error {
	for _, g := range c {
		if err := Check(g, op, t); err != nil {
			return err
		}
	}
	return nil
}

func (c Composite) CanConstruct(t Target) error      { return c.check(OpConstruct, t) }
func (c Composite) CanInvokeStatic(t Target) error   { return c.check(OpInvokeStatic, t) }
func (c Composite) CanInvokeMethod(t Target) error   { return c.check(OpInvokeMethod, t) }
func (c Composite) CanInvokeSuper(t Target) error    { return c.check(OpInvokeSuper, t) }
func (c Composite) CanGetField(t Target) error       { return c.check(OpGetField, t) }
func (c Composite) CanGetStaticField(t Target) error { return c.check(OpGetStaticField, t) }
func (c Composite) CanExtend(t Target) error         { return c.check(OpExtend, t) }
func (c Composite) CanImplement(t Target) error      { return c.check(OpImplement, t) }
