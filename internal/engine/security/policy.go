package security

import (
	"fmt"

	"hostscript/internal/core/config"
	errs "hostscript/internal/core/errors"
	"hostscript/internal/shared/observability"

	"github.com/gobwas/glob"
)

type rule struct {
	op      Operation // empty matches every operation
	pattern string
	match   glob.Glob
	reason  string
}

// PolicyGuard denies operations whose target key matches a configured rule.
type PolicyGuard struct {
	rules []rule
}

// NewPolicyGuard compiles deny rules. Patterns use '.' and '#' as
// separators, so "java.lang.*" does not reach into subpackages while
// "java.lang.**" does.
func NewPolicyGuard(deny []config.DenyRule) (*PolicyGuard, error) {
	g := &PolicyGuard{rules: make([]rule, 0, len(deny))}
	for i, d := range deny {
		m, err := glob.Compile(d.Pattern, '.', '#')
		if err != nil {
			return nil, errs.Wrap(err, errs.CodeValidationError, fmt.Sprintf("security.deny[%d] invalid pattern %q", i, d.Pattern))
		}
		op := Operation(d.Operation)
		if d.Operation == "*" {
			op = ""
		}
		g.rules = append(g.rules, rule{op: op, pattern: d.Pattern, match: m, reason: d.Reason})
	}
	return g, nil
}

// FromConfig returns AllowAll when no deny rules are configured.
func FromConfig(cfg config.Security) (Guard, error) {
	if len(cfg.Deny) == 0 {
		return AllowAll{}, nil
	}
	return NewPolicyGuard(cfg.Deny)
}

func (g *PolicyGuard) check(op Operation, t Target) error {
	key := t.Key()
	for _, r := range g.rules {
		if r.op != "" && r.op != op {
			continue
		}
		if !r.match.Match(key) {
			continue
		}
		observability.SecurityDenialsTotal.WithLabelValues(string(op)).Inc()
		reason := r.reason
		if reason == "" {
			reason = "matches deny rule " + r.pattern
		}
		return errs.SecurityDenial(string(op), t.signature(), reason)
	}
	return nil
}

func (g *PolicyGuard) CanConstruct(t Target) error      { return g.check(OpConstruct, t) }
func (g *PolicyGuard) CanInvokeStatic(t Target) error   { return g.check(OpInvokeStatic, t) }
func (g *PolicyGuard) CanInvokeMethod(t Target) error   { return g.check(OpInvokeMethod, t) }
func (g *PolicyGuard) CanInvokeSuper(t Target) error    { return g.check(OpInvokeSuper, t) }
func (g *PolicyGuard) CanGetField(t Target) error       { return g.check(OpGetField, t) }
func (g *PolicyGuard) CanGetStaticField(t Target) error { return g.check(OpGetStaticField, t) }
func (g *PolicyGuard) CanExtend(t Target) error         { return g.check(OpExtend, t) }
func (g *PolicyGuard) CanImplement(t Target) error      { return g.check(OpImplement, t) }
