package dispatch

import (
	"sort"

	errs "hostscript/internal/core/errors"
	"hostscript/internal/engine/host"
)

// CallShape says whether a call names a type (static) or an instance.
type CallShape uint8

const (
	ShapeAny CallShape = iota
	ShapeStatic
	ShapeInstance
)

func (s CallShape) String() string {
	switch s {
	case ShapeStatic:
		return "static"
	case ShapeInstance:
		return "instance"
	default:
		return "any"
	}
}

// Match is a resolved call: the winning candidate and whether it applied
// through variable arity, in which case trailing arguments must be packed.
type Match struct {
	Candidate Candidate
	Spread    bool
}

type scored struct {
	cand   Candidate
	scores []host.Score
	params []*host.Type // one per argument
}

// Resolve picks the most specific candidate for args. It has no side effects.
func Resolve(candidates []Candidate, args []host.Value, shape CallShape) (Candidate, error) {
	m, err := ResolveMatch(candidates, args, shape)
	if err != nil {
		return nil, err
	}
	return m.Candidate, nil
}

// ResolveMatch is Resolve reporting how the winner applies.
//
// Fixed-arity application is tried first; variable-arity application only
// when no candidate applies with fixed arity. Among applicable candidates a
// candidate wins when it dominates every other: per argument its conversion
// is no worse, and better (or to a more specific parameter type) somewhere.
// Remaining ties are broken by call shape when exactly one survivor matches it.
func ResolveMatch(candidates []Candidate, args []host.Value, shape CallShape) (Match, error) {
	args = normalizeArgs(args)
	if applicable := phase(candidates, args, false); len(applicable) > 0 {
		c, err := pick(applicable, shape)
		return Match{Candidate: c}, err
	}
	if applicable := phase(candidates, args, true); len(applicable) > 0 {
		c, err := pick(applicable, shape)
		return Match{Candidate: c, Spread: true}, err
	}
	return Match{}, noApplicable(candidates, args)
}

func normalizeArgs(args []host.Value) []host.Value {
	out := make([]host.Value, len(args))
	for i, a := range args {
		out[i] = host.Normalize(a)
	}
	return out
}

func phase(candidates []Candidate, args []host.Value, spread bool) []scored {
	var out []scored
	for _, c := range candidates {
		var s scored
		var ok bool
		if spread {
			s, ok = scoreSpread(c, args)
		} else {
			s, ok = scoreFixed(c, args)
		}
		if ok {
			out = append(out, s)
		}
	}
	return out
}

func scoreFixed(c Candidate, args []host.Value) (scored, bool) {
	params := c.ParamTypes()
	if len(params) != len(args) {
		return scored{}, false
	}
	s := scored{cand: c, scores: make([]host.Score, len(args)), params: params}
	for i, a := range args {
		var sc host.Score
		if c.IsVarargs() && i == len(params)-1 {
			sc = arrayScore(a, params[i])
		} else {
			sc = paramScore(a, params[i])
		}
		if sc == host.Incompatible {
			return scored{}, false
		}
		s.scores[i] = sc
	}
	return s, true
}

func scoreSpread(c Candidate, args []host.Value) (scored, bool) {
	if !c.IsVarargs() {
		return scored{}, false
	}
	params := c.ParamTypes()
	if len(params) == 0 {
		return scored{}, false
	}
	fixed := len(params) - 1
	if len(args) < fixed {
		return scored{}, false
	}
	s := scored{cand: c, scores: make([]host.Score, len(args)), params: make([]*host.Type, len(args))}
	for i, a := range args {
		p := params[min(i, fixed)]
		sc := paramScore(a, p)
		if sc == host.Incompatible {
			return scored{}, false
		}
		s.scores[i] = sc
		s.params[i] = p
	}
	return s, true
}

// paramScore scores one argument. Untyped parameters accept anything at the
// cost of a reference conversion, so typed matches are preferred.
func paramScore(v host.Value, p *host.Type) host.Score {
	if p == nil {
		if v == nil {
			return host.NullToReference
		}
		return host.ReferenceWidening
	}
	return host.ConversionScore(v, p)
}

// arrayScore scores passing v directly as the array of a varargs parameter
// whose element type is elem.
func arrayScore(v host.Value, elem *host.Type) host.Score {
	if v == nil {
		return host.NullToReference
	}
	o, ok := v.(*host.Object)
	if !ok || o == nil || !o.Class.IsArray() {
		return host.Incompatible
	}
	switch {
	case elem == nil || o.Class.Elem == elem:
		return host.Identity
	case !elem.IsPrimitive() && o.Class.Elem != nil && o.Class.Elem.AssignableTo(elem):
		return host.ReferenceWidening
	default:
		return host.Incompatible
	}
}

// moreSpecific reports whether p is a strictly narrower parameter type than q.
func moreSpecific(p, q *host.Type) bool {
	switch {
	case p == q || p == nil:
		return false
	case q == nil:
		return true
	case p.IsPrimitive() && q.IsPrimitive():
		return host.Widens(p, q)
	case !p.IsPrimitive() && !q.IsPrimitive():
		return p.AssignableTo(q)
	default:
		return false
	}
}

func dominates(a, b scored) bool {
	better := false
	for i := range a.scores {
		switch {
		case a.scores[i] < b.scores[i]:
			better = true
		case a.scores[i] > b.scores[i]:
			return false
		case a.params[i] == b.params[i]:
		case moreSpecific(a.params[i], b.params[i]):
			better = true
		default:
			// b is narrower here, or the types are unrelated.
			return false
		}
	}
	return better
}

func pick(applicable []scored, shape CallShape) (Candidate, error) {
	var survivors []scored
	for i, a := range applicable {
		dominated := false
		for j, b := range applicable {
			if i != j && dominates(b, a) {
				dominated = true
				break
			}
		}
		if !dominated {
			survivors = append(survivors, a)
		}
	}
	if len(survivors) == 1 {
		return survivors[0].cand, nil
	}

	if shape != ShapeAny {
		var matching []scored
		for _, s := range survivors {
			if s.cand.IsStatic() == (shape == ShapeStatic) {
				matching = append(matching, s)
			}
		}
		if len(matching) == 1 {
			return matching[0].cand, nil
		}
	}

	sigs := make([]string, len(survivors))
	for i, s := range survivors {
		sigs[i] = s.cand.Signature()
	}
	sort.Strings(sigs)
	return nil, errs.AmbiguousOverload(survivors[0].cand.Name(), sigs)
}

func noApplicable(candidates []Candidate, args []host.Value) error {
	name := ""
	sigs := make([]string, len(candidates))
	for i, c := range candidates {
		name = c.Name()
		sigs[i] = c.Signature()
	}
	sort.Strings(sigs)
	return errs.NoApplicableOverload(name, ArgTypes(args), sigs)
}

// ArgTypes renders the runtime types of args, "null" for null.
func ArgTypes(args []host.Value) []string {
	out := make([]string, len(args))
	for i, a := range args {
		if t := host.TypeOf(a); t != nil {
			out[i] = t.Name
		} else {
			out[i] = "null"
		}
	}
	return out
}
