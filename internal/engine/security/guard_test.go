package security

import (
	"strings"
	"testing"

	"hostscript/internal/core/config"
	errs "hostscript/internal/core/errors"
	"hostscript/internal/engine/host"
)

func target(typeName, member string, args ...host.Value) Target {
	return Target{
		Type:      &host.Type{Name: typeName, Kind: host.KindClass},
		Member:    member,
		Signature: typeName + "." + member + "(...)",
		Args:      args,
	}
}

func TestTarget_Key(t *testing.T) {
	if got := target("java.lang.Runtime", "exec").Key(); got != "java.lang.Runtime#exec" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := (Target{Type: &host.Type{Name: "a.B"}}).Key(); got != "a.B" {
		t.Fatalf("type-level key should be the bare name, got %q", got)
	}
}

func TestPolicyGuard(t *testing.T) {
	g, err := NewPolicyGuard([]config.DenyRule{
		{Operation: "invoke_method", Pattern: "java.lang.Runtime#exec", Reason: "no process spawning"},
		{Operation: "*", Pattern: "java.io.*"},
		{Operation: "extend", Pattern: "java.lang.Thread"},
		{Operation: "get_static_field", Pattern: "com.secret.**"},
	})
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		op   Operation
		tgt  Target
		deny bool
	}{
		{"denied method", OpInvokeMethod, target("java.lang.Runtime", "exec", "rm -rf /"), true},
		{"other method allowed", OpInvokeMethod, target("java.lang.Runtime", "availableProcessors"), false},
		{"operation must match", OpInvokeStatic, target("java.lang.Runtime", "exec"), false},
		{"wildcard operation on type", OpConstruct, target("java.io.File", ""), true},
		{"single star stays in package", OpConstruct, target("java.io.sub.File", ""), false},
		{"single star stops at member", OpInvokeMethod, target("java.io.File", "delete"), false},
		{"extend", OpExtend, target("java.lang.Thread", ""), true},
		{"implement not covered", OpImplement, target("java.lang.Thread", ""), false},
		{"double star", OpGetStaticField, target("com.secret.deep.Keys", "MASTER"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Check(g, tc.op, tc.tgt)
			if tc.deny != (err != nil) {
				t.Fatalf("expected deny=%v, got %v", tc.deny, err)
			}
			if err == nil {
				return
			}
			if !errs.IsCode(err, errs.CodeSecurityDenied) {
				t.Fatalf("expected security denial code, got %v", err)
			}
			for _, arg := range tc.tgt.Args {
				if s, ok := arg.(string); ok && strings.Contains(err.Error(), s) {
					t.Fatalf("denial must not include arguments: %v", err)
				}
			}
			if !strings.Contains(err.Error(), tc.tgt.Signature) {
				t.Fatalf("denial should name the signature: %v", err)
			}
		})
	}

	err = g.CanInvokeMethod(target("java.lang.Runtime", "exec"))
	if !strings.Contains(err.Error(), "no process spawning") {
		t.Fatalf("expected configured reason, got %v", err)
	}
}

type denyOne struct {
	AllowAll
	op Operation
}

func (d denyOne) CanInvokeSuper(t Target) error {
	if d.op == OpInvokeSuper {
		return errs.SecurityDenial(string(OpInvokeSuper), t.signature(), "test")
	}
	return nil
}

func TestComposite(t *testing.T) {
	c := Composite{AllowAll{}, denyOne{op: OpInvokeSuper}}
	tgt := target("a.B", "m")
	if err := c.CanInvokeSuper(tgt); !errs.IsCode(err, errs.CodeSecurityDenied) {
		t.Fatalf("expected composite to deny, got %v", err)
	}
	for _, op := range []Operation{OpConstruct, OpInvokeStatic, OpInvokeMethod, OpGetField, OpGetStaticField, OpExtend, OpImplement} {
		if err := Check(c, op, tgt); err != nil {
			t.Fatalf("%s: expected allow, got %v", op, err)
		}
	}
	if err := Check(nil, OpConstruct, tgt); err != nil {
		t.Fatalf("nil guard must allow, got %v", err)
	}
}

func TestFromConfig(t *testing.T) {
	g, err := FromConfig(config.Security{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := g.(AllowAll); !ok {
		t.Fatalf("expected AllowAll without rules, got %T", g)
	}
	if _, err := NewPolicyGuard([]config.DenyRule{{Operation: "construct", Pattern: "["}}); !errs.IsCode(err, errs.CodeValidationError) {
		t.Fatalf("expected invalid pattern to fail, got %v", err)
	}
}
