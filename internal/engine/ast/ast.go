// Package ast is the syntax tree the interpreter consumes. Trees are built by
// an external parser; every node keeps its source position and the text of
// the token span it came from for diagnostics.
package ast

import (
	"fmt"

	"hostscript/internal/engine/host"
)

type Pos struct {
	Line   int
	Column int
}

func (p Pos) String() string {
	if p.Line == 0 {
		return "-"
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

type Node interface {
	Children() []Node
	Pos() Pos
	Text() string
}

// Span carries the position and source text shared by all nodes.
type Span struct {
	At     Pos
	Source string
}

func (s Span) Pos() Pos     { return s.At }
func (s Span) Text() string { return s.Source }

func nodes[T Node](items []T) []Node {
	out := make([]Node, 0, len(items))
	for _, n := range items {
		out = append(out, n)
	}
	return out
}

func nonNil(ns ...Node) []Node {
	out := make([]Node, 0, len(ns))
	for _, n := range ns {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

// Literal is a constant value: null, a primitive or a string.
type Literal struct {
	Span
	Value host.Value
}

func (*Literal) Children() []Node { return nil }

// Name reads a variable, or a field of this inside a method body.
type Name struct {
	Span
	Ident string
}

func (*Name) Children() []Node { return nil }

// TypeRef names a class, e.g. the receiver of a static call.
type TypeRef struct {
	Span
	Name string
}

func (*TypeRef) Children() []Node { return nil }

type This struct{ Span }

func (*This) Children() []Node { return nil }

// Assign stores Value into a variable, or into Receiver.Target when Receiver
// is set.
type Assign struct {
	Span
	Receiver Node
	Target   string
	Value    Node
}

func (a *Assign) Children() []Node { return nonNil(a.Receiver, a.Value) }

// VarDecl declares a variable. An empty Type declares it untyped.
type VarDecl struct {
	Span
	Modifiers []string
	Type      string
	Name      string
	Init      Node
}

func (d *VarDecl) Children() []Node { return nonNil(d.Init) }

type Block struct {
	Span
	Stmts []Node
}

func (b *Block) Children() []Node { return b.Stmts }

// Call invokes Name. A nil Receiver calls a script method, falling back to
// a method of this; a TypeRef receiver makes a static call.
type Call struct {
	Span
	Receiver Node
	Name     string
	Args     []Node
}

func (c *Call) Children() []Node { return append(nonNil(c.Receiver), c.Args...) }

// SuperCall invokes the superclass implementation from inside a method.
type SuperCall struct {
	Span
	Name string
	Args []Node
}

func (c *SuperCall) Children() []Node { return c.Args }

type New struct {
	Span
	Type string
	Args []Node
}

func (n *New) Children() []Node { return n.Args }

// FieldAccess reads Receiver.Name; a TypeRef receiver reads a static field.
type FieldAccess struct {
	Span
	Receiver Node
	Name     string
}

func (f *FieldAccess) Children() []Node { return nonNil(f.Receiver) }

type Return struct {
	Span
	Value Node
}

func (r *Return) Children() []Node { return nonNil(r.Value) }

// Import is `import a.b.C` or, with Wildcard, `import a.b.*`.
type Import struct {
	Span
	Name     string
	Wildcard bool
}

func (*Import) Children() []Node { return nil }

type Param struct {
	Name string
	Type string // empty is untyped
}

// MethodDecl declares a method. Named after its class inside a ClassDecl it
// is a constructor. With Varargs the last parameter's Type is the element
// type.
type MethodDecl struct {
	Span
	Modifiers []string
	Return    string // empty is untyped, "void" returns nothing
	Name      string
	Params    []Param
	Varargs   bool
	Body      *Block // nil for abstract methods
}

func (m *MethodDecl) Children() []Node {
	if m.Body == nil {
		return nil
	}
	return []Node{m.Body}
}

type ClassDecl struct {
	Span
	Modifiers  []string
	Name       string
	Interface  bool
	Super      string
	Interfaces []string
	Fields     []*VarDecl
	Methods    []*MethodDecl
}

func (c *ClassDecl) Children() []Node {
	return append(nodes(c.Fields), nodes(c.Methods)...)
}

// Walk visits n and its descendants depth first until fn returns false.
func Walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, c := range n.Children() {
		Walk(c, fn)
	}
}
