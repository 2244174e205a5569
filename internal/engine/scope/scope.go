package scope

import (
	"sort"

	errs "hostscript/internal/core/errors"
	"hostscript/internal/engine/host"
	"hostscript/internal/engine/modifiers"
	"hostscript/internal/shared/util"
)

// varTable stores one scope's variables. Ordinary scopes keep them in a map;
// external scopes reconcile them against a caller-owned store.
type varTable interface {
	get(name string) (*Variable, bool)
	put(v *Variable, initial host.Value) error
	location(name string) Location
	remove(name string)
	names() []string
	clear()
}

type mapTable struct {
	vars map[string]*Variable
}

func newMapTable() *mapTable { return &mapTable{vars: make(map[string]*Variable)} }

func (t *mapTable) get(name string) (*Variable, bool) {
	v, ok := t.vars[name]
	return v, ok
}

func (t *mapTable) put(v *Variable, initial host.Value) error {
	if err := v.store(initial); err != nil {
		return err
	}
	t.vars[v.Name] = v
	return nil
}

func (t *mapTable) location(string) Location { return &slotLocation{} }
func (t *mapTable) remove(name string)      { delete(t.vars, name) }
func (t *mapTable) names() []string         { return util.SortedStringKeys(t.vars) }
func (t *mapTable) clear()                  { clear(t.vars) }

// Param is a declared method parameter. A nil Type is untyped.
type Param struct {
	Name string
	Type *host.Type
}

// MethodDecl is a method declared by script code. Body is opaque to the scope
// chain; the interpreter stores its AST there.
type MethodDecl struct {
	Name      string
	Params    []Param
	Return    *host.Type
	Modifiers *modifiers.Set
	Varargs   bool
	Body      any
	// Scope is where the method was declared; bodies run in a child of it.
	Scope *Scope
}

// ParamKey identifies the parameter list for shadowing and redeclaration.
func (m *MethodDecl) ParamKey() string {
	key := ""
	for i, p := range m.Params {
		if i > 0 {
			key += ","
		}
		if p.Type == nil {
			key += "*"
		} else {
			key += p.Type.Name
		}
	}
	if m.Varargs {
		key += "..."
	}
	return key
}

func (m *MethodDecl) Signature() string {
	return m.Name + "(" + m.ParamKey() + ")"
}

func (m *MethodDecl) Static() bool { return m.Modifiers.Has(modifiers.Static) }

// Scope is one link of the namespace chain.
type Scope struct {
	name    string
	parent  *Scope
	env     *Env
	table   varTable
	methods map[string][]*MethodDecl
	imports imports

	listeners util.WeakList[NameListener]
}

// New creates a root scope.
func New(name string, env *Env) *Scope {
	return newScope(name, nil, env, newMapTable())
}

func newScope(name string, parent *Scope, env *Env, table varTable) *Scope {
	if env == nil {
		env = &Env{}
	}
	return &Scope{
		name:    name,
		parent:  parent,
		env:     env,
		table:   table,
		methods: make(map[string][]*MethodDecl),
	}
}

func (s *Scope) Name() string   { return s.name }
func (s *Scope) Parent() *Scope { return s.parent }
func (s *Scope) Env() *Env      { return s.env }

// Child opens a nested scope sharing this scope's environment.
func (s *Scope) Child(name string) *Scope {
	return newScope(name, s, s.env, newMapTable())
}

// Root returns the outermost scope of the chain.
func (s *Scope) Root() *Scope {
	cur := s
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// Declare creates a variable in this scope. Redeclaring with a different type
// fails unless the existing declaration is untyped.
func (s *Scope) Declare(name string, typ *host.Type, value host.Value, mods *modifiers.Set) (*Variable, error) {
	if name == "" {
		return nil, errs.New(errs.CodeValidationError, "variable name is empty")
	}
	if mods != nil && mods.Context() != modifiers.ContextField {
		return nil, errs.Newf(errs.CodeValidationError, "variable %q declared with %s modifiers", name, mods.Context())
	}
	if existing, ok := s.table.get(name); ok {
		switch {
		case typ == nil:
			if err := existing.Set(value); err != nil {
				return nil, err
			}
			return existing, nil
		case existing.Type != nil && existing.Type.Name != typ.Name:
			return nil, errs.DuplicateDeclaration(name, existing.Type.Name, typ.Name)
		case existing.Final():
			return nil, errs.Newf(errs.CodeFinalAssignment, "cannot redeclare final variable %q", name).(*errs.DomainError).
				WithContext(errs.CtxSymbol, name)
		}
	}
	if typ != nil && value == nil {
		value = host.ZeroValue(typ)
	}
	v := newVariable(name, typ, mods, s.table.location(name))
	if err := s.table.put(v, value); err != nil {
		return nil, err
	}
	s.notify(NameEvent{Kind: NameVariable, Name: name, Scope: s.name})
	return v, nil
}

// Local returns a variable declared in this scope only.
func (s *Scope) Local(name string) (*Variable, bool) {
	return s.table.get(name)
}

// Resolve walks the chain and returns the nearest declaration of name. The
// boolean is false when nothing in the chain declares it.
func (s *Scope) Resolve(name string) (*Variable, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if v, ok := cur.table.get(name); ok {
			return v, true
		}
	}
	return nil, false
}

// Get returns the value of the nearest declaration of name.
func (s *Scope) Get(name string) (host.Value, bool) {
	v, ok := s.Resolve(name)
	if !ok {
		return nil, false
	}
	return v.Value(), true
}

// Assign writes through the owning declaration, or declares an untyped
// variable in this scope when no declaration exists.
func (s *Scope) Assign(name string, value host.Value) error {
	if v, ok := s.Resolve(name); ok {
		return v.Set(value)
	}
	_, err := s.Declare(name, nil, value, nil)
	return err
}

// Unset removes a variable declared in this scope.
func (s *Scope) Unset(name string) bool {
	if _, ok := s.table.get(name); !ok {
		return false
	}
	s.table.remove(name)
	return true
}

// Names returns variable names declared in this scope, sorted.
func (s *Scope) Names() []string { return s.table.names() }

// Clear drops every variable, method and import of this scope.
func (s *Scope) Clear() {
	s.table.clear()
	clear(s.methods)
	s.imports = imports{}
}

// DeclareMethod adds m to this scope. A declaration with the same parameter
// list replaces the previous one.
func (s *Scope) DeclareMethod(m *MethodDecl) error {
	if m.Name == "" {
		return errs.New(errs.CodeValidationError, "method name is empty")
	}
	if m.Modifiers == nil {
		m.Modifiers = modifiers.New(modifiers.ContextMethod)
	}
	if m.Modifiers.Context() != modifiers.ContextMethod {
		return errs.Newf(errs.CodeValidationError, "method %s declared with %s modifiers", m.Name, m.Modifiers.Context())
	}
	if m.Varargs && len(m.Params) == 0 {
		return errs.Newf(errs.CodeValidationError, "varargs method %s needs a parameter", m.Name)
	}
	if m.Scope == nil {
		m.Scope = s
	}
	key := m.ParamKey()
	overloads := s.methods[m.Name]
	for i, existing := range overloads {
		if existing.ParamKey() == key {
			overloads[i] = m
			s.notify(NameEvent{Kind: NameMethod, Name: m.Name, Scope: s.name})
			return nil
		}
	}
	s.methods[m.Name] = append(overloads, m)
	s.notify(NameEvent{Kind: NameMethod, Name: m.Name, Scope: s.name})
	return nil
}

// Methods gathers the overloads of name visible from this scope. A signature
// declared nearer shadows the same signature further up.
func (s *Scope) Methods(name string) []*MethodDecl {
	var out []*MethodDecl
	seen := make(map[string]bool)
	for cur := s; cur != nil; cur = cur.parent {
		for _, m := range cur.methods[name] {
			key := m.ParamKey()
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, m)
		}
	}
	return out
}

// MethodNames lists method names declared in this scope, sorted.
func (s *Scope) MethodNames() []string {
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
