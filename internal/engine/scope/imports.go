package scope

import (
	"strings"

	errs "hostscript/internal/core/errors"
	"hostscript/internal/engine/host"
	"hostscript/internal/shared/util"
)

// ClassFinder loads host types by fully qualified name.
type ClassFinder interface {
	Lookup(fqn string) (*host.Type, error)
}

// ClassIndex answers simple-name ownership questions from the classpath.
type ClassIndex interface {
	HasClass(fqn string) bool
	UnqualifiedNameOwners(simple string) ([]string, error)
}

// Env is shared by every scope of one chain.
type Env struct {
	Classes ClassFinder
	Index   ClassIndex
	// DefaultImports are packages consulted after explicit imports.
	DefaultImports []string
	// ImplicitLookup lets unimported simple names resolve through Index.
	ImplicitLookup bool
}

type imports struct {
	classes  []string
	packages []string
}

// ImportClass adds a single-type import such as java.util.List.
func (s *Scope) ImportClass(fqn string) error {
	fqn = strings.TrimSpace(fqn)
	if !strings.Contains(fqn, ".") {
		return errs.Newf(errs.CodeValidationError, "import %q is not qualified", fqn)
	}
	for _, existing := range s.imports.classes {
		if existing == fqn {
			return nil
		}
	}
	s.imports.classes = append(s.imports.classes, fqn)
	s.notify(NameEvent{Kind: NameImport, Name: fqn, Scope: s.name})
	return nil
}

// ImportPackage adds a wildcard import such as java.util.*.
func (s *Scope) ImportPackage(pkg string) error {
	pkg = strings.TrimSuffix(strings.TrimSpace(pkg), ".*")
	if pkg == "" {
		return errs.New(errs.CodeValidationError, "import package is empty")
	}
	for _, existing := range s.imports.packages {
		if existing == pkg {
			return nil
		}
	}
	s.imports.packages = append(s.imports.packages, pkg)
	s.notify(NameEvent{Kind: NameImport, Name: pkg + ".*", Scope: s.name})
	return nil
}

// Imports returns this scope's single-type and wildcard imports.
func (s *Scope) Imports() (classes, packages []string) {
	return append([]string(nil), s.imports.classes...), append([]string(nil), s.imports.packages...)
}

// ResolveClass maps a type name as written in script code to a host type.
// Qualified names are looked up directly. Simple names try single-type
// imports, then wildcard imports, then the default packages, and finally the
// classpath index. Two wildcard imports supplying the same simple name are an
// ambiguity reported only here, at the point of use.
func (s *Scope) ResolveClass(name string) (*host.Type, error) {
	name = strings.TrimSpace(name)
	if elem, ok := strings.CutSuffix(name, "[]"); ok {
		et, err := s.ResolveClass(elem)
		if err != nil {
			return nil, err
		}
		return s.lookup(et.Name + "[]")
	}
	if p, ok := host.PrimitiveByName(name); ok {
		return p, nil
	}
	if strings.Contains(name, ".") {
		if t, err := s.lookup(name); err == nil {
			return t, nil
		}
	}

	for cur := s; cur != nil; cur = cur.parent {
		for _, fqn := range cur.imports.classes {
			if fqn == name || strings.HasSuffix(fqn, "."+name) {
				return s.lookup(fqn)
			}
		}
	}

	var matches []string
	for cur := s; cur != nil; cur = cur.parent {
		for _, pkg := range cur.imports.packages {
			if fqn := pkg + "." + name; s.exists(fqn) {
				matches = append(matches, fqn)
			}
		}
	}
	switch matches = util.SortedUnique(matches); len(matches) {
	case 0:
	case 1:
		return s.lookup(matches[0])
	default:
		return nil, errs.AmbiguousName(name, matches)
	}

	for _, pkg := range s.env.DefaultImports {
		if fqn := pkg + "." + name; s.exists(fqn) {
			return s.lookup(fqn)
		}
	}

	if s.env.ImplicitLookup && s.env.Index != nil && !strings.Contains(name, ".") {
		owners, err := s.env.Index.UnqualifiedNameOwners(name)
		if err != nil && !errs.IsCode(err, errs.CodeNotFound) {
			return nil, err
		}
		if len(owners) == 1 {
			return s.lookup(owners[0])
		}
	}

	return nil, errs.Newf(errs.CodeUnresolved, "class %s not found", name).(*errs.DomainError).
		WithContext(errs.CtxSymbol, name)
}

func (s *Scope) lookup(fqn string) (*host.Type, error) {
	if s.env.Classes == nil {
		return nil, errs.Newf(errs.CodeUnresolved, "class %s not found: no class finder", fqn)
	}
	return s.env.Classes.Lookup(fqn)
}

func (s *Scope) exists(fqn string) bool {
	if s.env.Index != nil && s.env.Index.HasClass(fqn) {
		return true
	}
	_, err := s.lookup(fqn)
	return err == nil
}
