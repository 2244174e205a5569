package classpath

import (
	"sort"
	"strings"
)

// index is an immutable view of the classpath. Readers load it through an
// atomic pointer; writers build a replacement and swap it in.
type index struct {
	byName   map[string]ClassSource
	bySimple map[string][]string
	packages map[string][]string
}

func newIndex() *index {
	return &index{
		byName:   make(map[string]ClassSource),
		bySimple: make(map[string][]string),
		packages: make(map[string][]string),
	}
}

// add records fqn unless an earlier location already supplied it.
func (ix *index) add(fqn string, src ClassSource) bool {
	if _, exists := ix.byName[fqn]; exists {
		return false
	}
	ix.byName[fqn] = src
	pkg, simple := splitName(fqn)
	ix.bySimple[simple] = append(ix.bySimple[simple], fqn)
	ix.packages[pkg] = append(ix.packages[pkg], fqn)
	return true
}

// seal sorts the derived lists so lookups are deterministic.
func (ix *index) seal() *index {
	for _, names := range ix.bySimple {
		sort.Strings(names)
	}
	for _, names := range ix.packages {
		sort.Strings(names)
	}
	return ix
}

// clone copies ix deeply enough that adding to the copy leaves ix untouched.
func (ix *index) clone() *index {
	out := &index{
		byName:   make(map[string]ClassSource, len(ix.byName)),
		bySimple: make(map[string][]string, len(ix.bySimple)),
		packages: make(map[string][]string, len(ix.packages)),
	}
	for k, v := range ix.byName {
		out.byName[k] = v
	}
	for k, v := range ix.bySimple {
		out.bySimple[k] = append([]string(nil), v...)
	}
	for k, v := range ix.packages {
		out.packages[k] = append([]string(nil), v...)
	}
	return out
}

// splitName returns the package and simple name of fqn. Nested classes keep
// their outer prefix: a.b.Outer$Inner has simple name Outer$Inner.
func splitName(fqn string) (pkg, simple string) {
	if i := strings.LastIndexByte(fqn, '.'); i >= 0 {
		return fqn[:i], fqn[i+1:]
	}
	return "", fqn
}
