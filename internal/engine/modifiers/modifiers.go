// Package modifiers validates declaration modifier sets for classes, methods and fields.
package modifiers

import (
	"fmt"
	"strings"

	errs "hostscript/internal/core/errors"
	"hostscript/internal/engine/bytecode"
)

type Context uint8

const (
	ContextClass Context = iota
	ContextMethod
	ContextField
)

func (c Context) String() string {
	switch c {
	case ContextClass:
		return "class"
	case ContextMethod:
		return "method"
	case ContextField:
		return "field"
	default:
		return fmt.Sprintf("context(%d)", uint8(c))
	}
}

const (
	Public       = "public"
	Protected    = "protected"
	Private      = "private"
	Static       = "static"
	Final        = "final"
	Abstract     = "abstract"
	Native       = "native"
	Synchronized = "synchronized"
	Transient    = "transient"
	Volatile     = "volatile"
	Strictfp     = "strictfp"
	Default      = "default"
)

var accessModifiers = []string{Public, Protected, Private}

var allowed = map[Context]map[string]bool{
	ContextClass: set(Public, Protected, Private, Static, Final, Abstract, Strictfp),
	ContextMethod: set(Public, Protected, Private, Static, Final, Abstract, Native,
		Synchronized, Strictfp, Default),
	ContextField: set(Public, Protected, Private, Static, Final, Transient),
}

// conflicts lists pairs that may not coexist in the given context.
var conflicts = map[Context][][2]string{
	ContextClass: {
		{Abstract, Final},
	},
	ContextMethod: {
		{Abstract, Final},
		{Abstract, Static},
		{Abstract, Private},
		{Abstract, Native},
		{Abstract, Synchronized},
		{Abstract, Strictfp},
	},
}

var accessFlags = map[string]uint16{
	Public:       bytecode.AccPublic,
	Protected:    bytecode.AccProtected,
	Private:      bytecode.AccPrivate,
	Static:       bytecode.AccStatic,
	Final:        bytecode.AccFinal,
	Abstract:     bytecode.AccAbstract,
	Native:       bytecode.AccNative,
	Synchronized: bytecode.AccSynchronized,
	Transient:    bytecode.AccTransient,
	Strictfp:     bytecode.AccStrict,
}

func set(names ...string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

// Set is an ordered, duplicate-free modifier list bound to one declaration kind.
// Every Add is validated immediately.
type Set struct {
	ctx   Context
	names []string
}

func New(ctx Context) *Set {
	return &Set{ctx: ctx}
}

// Parse builds a set from source tokens, failing on the first invalid one.
func Parse(ctx Context, names ...string) (*Set, error) {
	s := New(ctx)
	if err := s.AddAll(names...); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Set) Context() Context { return s.ctx }

// Add appends name. Re-adding a present modifier is a no-op.
func (s *Set) Add(name string) error {
	name = strings.TrimSpace(name)
	if !allowed[s.ctx][name] {
		return errs.Newf(errs.CodeValidationError, "modifier %q is not allowed on a %s", name, s.ctx)
	}
	if s.Has(name) {
		return nil
	}
	if isAccess(name) {
		for _, existing := range accessModifiers {
			if s.Has(existing) {
				return errs.Newf(errs.CodeValidationError,
					"%s already has access modifier %q, cannot add %q", s.ctx, existing, name)
			}
		}
	}
	for _, pair := range conflicts[s.ctx] {
		other := ""
		switch name {
		case pair[0]:
			other = pair[1]
		case pair[1]:
			other = pair[0]
		}
		if other != "" && s.Has(other) {
			return errs.Newf(errs.CodeValidationError,
				"modifier %q conflicts with %q on a %s", name, other, s.ctx)
		}
	}
	s.names = append(s.names, name)
	return nil
}

func (s *Set) AddAll(names ...string) error {
	for _, n := range names {
		if err := s.Add(n); err != nil {
			return err
		}
	}
	return nil
}

// SetConstant adds public, static and final.
func (s *Set) SetConstant() error {
	return s.AddAll(Public, Static, Final)
}

func (s *Set) Has(name string) bool {
	if s == nil {
		return false
	}
	for _, n := range s.names {
		if n == name {
			return true
		}
	}
	return false
}

// Names returns the modifiers in insertion order.
func (s *Set) Names() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.names...)
}

func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}

// Access returns the access modifier, or "" for package access.
func (s *Set) Access() string {
	for _, a := range accessModifiers {
		if s.Has(a) {
			return a
		}
	}
	return ""
}

// Flags converts the set to class-file access flags.
func (s *Set) Flags() uint16 {
	var flags uint16
	if s == nil {
		return flags
	}
	for _, n := range s.names {
		flags |= accessFlags[n]
	}
	return flags
}

func (s *Set) String() string {
	if s == nil {
		return ""
	}
	return strings.Join(s.names, " ")
}

func isAccess(name string) bool {
	return name == Public || name == Protected || name == Private
}
