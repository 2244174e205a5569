// Package dispatch picks the overload a dynamic call binds to and performs
// the call through the security checkpoint.
package dispatch

import (
	"hostscript/internal/engine/host"
	"hostscript/internal/engine/scope"
)

// Candidate is one overload under consideration. A nil parameter type is
// untyped and accepts any value. For varargs candidates the last parameter
// type is the element type.
type Candidate interface {
	Name() string
	ParamTypes() []*host.Type
	IsVarargs() bool
	IsStatic() bool
	Signature() string
}

// MethodCandidate wraps a host method or constructor.
type MethodCandidate struct {
	Method *host.Method
}

func (c MethodCandidate) Name() string             { return c.Method.Name }
func (c MethodCandidate) ParamTypes() []*host.Type { return c.Method.Params }
func (c MethodCandidate) IsVarargs() bool          { return c.Method.Varargs }
func (c MethodCandidate) IsStatic() bool           { return c.Method.Static() }
func (c MethodCandidate) Signature() string        { return c.Method.Signature() }

// DeclCandidate wraps a method declared by script code.
type DeclCandidate struct {
	Decl *scope.MethodDecl
}

func (c DeclCandidate) Name() string { return c.Decl.Name }

func (c DeclCandidate) ParamTypes() []*host.Type {
	out := make([]*host.Type, len(c.Decl.Params))
	for i, p := range c.Decl.Params {
		out[i] = p.Type
	}
	return out
}

func (c DeclCandidate) IsVarargs() bool   { return c.Decl.Varargs }
func (c DeclCandidate) IsStatic() bool    { return c.Decl.Static() }
func (c DeclCandidate) Signature() string { return c.Decl.Signature() }

func FromMethods(methods []*host.Method) []Candidate {
	out := make([]Candidate, len(methods))
	for i, m := range methods {
		out[i] = MethodCandidate{Method: m}
	}
	return out
}

func FromDecls(decls []*scope.MethodDecl) []Candidate {
	out := make([]Candidate, len(decls))
	for i, d := range decls {
		out[i] = DeclCandidate{Decl: d}
	}
	return out
}
