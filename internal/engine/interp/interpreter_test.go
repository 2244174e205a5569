package interp

import (
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hostscript/internal/core/config"
	errs "hostscript/internal/core/errors"
	"hostscript/internal/engine/ast"
	"hostscript/internal/engine/host"
	"hostscript/internal/engine/scope"
)

func lit(v host.Value) ast.Node {
	return &ast.Literal{Value: v}
}

func name(id string) ast.Node {
	return &ast.Name{Ident: id}
}

func typeRef(n string) ast.Node {
	return &ast.TypeRef{Name: n}
}

func block(stmts ...ast.Node) *ast.Block {
	return &ast.Block{Stmts: stmts}
}

func ret(v ast.Node) ast.Node {
	return &ast.Return{Value: v}
}

func assign(target string, v ast.Node) ast.Node {
	return &ast.Assign{Target: target, Value: v}
}

func declare(typ, n string, init ast.Node, mods ...string) *ast.VarDecl {
	return &ast.VarDecl{Type: typ, Name: n, Init: init, Modifiers: mods}
}

func call(recv ast.Node, method string, args ...ast.Node) ast.Node {
	return &ast.Call{Receiver: recv, Name: method, Args: args}
}

func newInterp(t *testing.T, cfg *config.Config, opts ...Option) *Interpreter {
	t.Helper()
	in, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = in.Close() })
	return in
}

func eval(t *testing.T, in *Interpreter, stmts ...ast.Node) host.Value {
	t.Helper()
	v, err := in.Eval(context.Background(), block(stmts...))
	require.NoError(t, err)
	return v
}

func TestInterpreter_ChildScopeShadowsAndUnwinds(t *testing.T) {
	in := newInterp(t, nil)
	eval(t, in,
		declare("", "x", lit(5)),
		declare("", "seen", nil),
		block(
			declare("", "x", lit("hello")),
			assign("seen", name("x")),
		),
	)

	seen, ok := in.Get("seen")
	require.True(t, ok)
	assert.Equal(t, "hello", seen)
	x, ok := in.Get("x")
	require.True(t, ok)
	assert.Equal(t, int32(5), x)
}

func TestInterpreter_ScriptMethodsAndHostCalls(t *testing.T) {
	in := newInterp(t, nil)
	got := eval(t, in,
		&ast.MethodDecl{
			Name:   "shout",
			Params: []ast.Param{{Name: "s", Type: "String"}},
			Body:   block(ret(call(call(name("s"), "concat", lit("!")), "toUpperCase"))),
		},
		&ast.MethodDecl{
			Name:   "shout",
			Params: []ast.Param{{Name: "o"}},
			Body:   block(ret(lit("untyped"))),
		},
		declare("int", "n", call(typeRef("Integer"), "parseInt", lit("41"))),
		declare("", "a", call(nil, "shout", lit("hi"))),
		declare("", "b", call(nil, "shout", name("n"))),
		ret(call(name("Integer"), "valueOf", name("n"))),
	)

	a, _ := in.Get("a")
	b, _ := in.Get("b")
	assert.Equal(t, "HI!", a)
	assert.Equal(t, "untyped", b)
	obj, ok := got.(*host.Object)
	require.True(t, ok)
	assert.Equal(t, host.IntegerBox, obj.Class)
	assert.Equal(t, int32(41), obj.Native)
}

func TestInterpreter_Varargs(t *testing.T) {
	in := newInterp(t, nil)
	got := eval(t, in,
		&ast.MethodDecl{
			Name:    "first",
			Params:  []ast.Param{{Name: "xs", Type: "int"}},
			Varargs: true,
			Body:    block(ret(name("xs"))),
		},
		ret(call(nil, "first", lit(1), lit(2), lit(3))),
	)
	arr, ok := got.(*host.Object)
	require.True(t, ok)
	assert.Equal(t, "int[]", arr.Class.Name)
	assert.Equal(t, []host.Value{int32(1), int32(2), int32(3)}, arr.Native)
}

func counterClass(value int) *ast.ClassDecl {
	return &ast.ClassDecl{
		Name:       "Counter",
		Interfaces: []string{"Runnable"},
		Fields:     []*ast.VarDecl{declare("int", "count", lit(value))},
		Methods: []*ast.MethodDecl{
			{Name: "run", Return: "void", Body: block(assign("count", lit(value+1)))},
			{Name: "get", Return: "long", Body: block(ret(name("count")))},
		},
	}
}

func TestInterpreter_ClassDeclaration(t *testing.T) {
	in := newInterp(t, nil)
	got := eval(t, in,
		counterClass(10),
		declare("Runnable", "c", &ast.New{Type: "Counter"}),
		call(name("c"), "run"),
		ret(call(name("c"), "get")),
	)
	assert.Equal(t, int64(11), got)

	typ, err := in.Registry().Lookup("hostscript.generated.Counter")
	require.NoError(t, err)
	assert.True(t, typ.AssignableTo(host.Runnable))
	assert.True(t, in.Classpath().HasClass("hostscript.generated.Counter"))

	// Redeclaring yields a new version; new instances use it, old ones keep theirs.
	got = eval(t, in,
		counterClass(20),
		declare("", "d", &ast.New{Type: "Counter"}),
		ret(call(name("d"), "get")),
	)
	assert.Equal(t, int64(20), got)
	assert.True(t, in.Classpath().HasClass("hostscript.generated.Counter$v2"))
	old, _ := in.Get("c")
	assert.Equal(t, "hostscript.generated.Counter", old.(*host.Object).Class.Name)
}

type greeter struct{ Prefix string }

func (g *greeter) Greet(n string) string { return g.Prefix + "hello " + n }

func TestInterpreter_ExtendsReflectedType(t *testing.T) {
	in := newInterp(t, nil)
	_, err := in.Registry().Reflect("demo.Greeter", (*greeter)(nil))
	require.NoError(t, err)

	got := eval(t, in,
		&ast.ClassDecl{
			Name:  "Loud",
			Super: "demo.Greeter",
			Methods: []*ast.MethodDecl{{
				Name:   "greet",
				Return: "String",
				Params: []ast.Param{{Name: "n", Type: "String"}},
				Body:   block(ret(call(&ast.SuperCall{Name: "greet", Args: []ast.Node{name("n")}}, "toUpperCase"))),
			}},
		},
		ret(call(&ast.New{Type: "Loud"}, "greet", lit("bob"))),
	)
	assert.Equal(t, "HELLO BOB", got)
}

func TestInterpreter_SecurityDenialCarriesPosition(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Security.Deny = []config.DenyRule{{Operation: "invoke_static", Pattern: "java.lang.Integer#parseInt"}}
	in := newInterp(t, cfg)

	denied := &ast.Call{
		Span:     ast.Span{At: ast.Pos{Line: 3, Column: 7}, Source: `Integer.parseInt("1")`},
		Receiver: typeRef("Integer"),
		Name:     "parseInt",
		Args:     []ast.Node{lit("1")},
	}
	_, err := in.Eval(context.Background(), block(declare("", "x", denied)))
	require.Error(t, err)
	assert.True(t, errs.IsCode(err, errs.CodeSecurityDenied))

	var de *errs.DomainError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "3:7", de.Context[errs.CtxPosition])
	assert.Equal(t, `Integer.parseInt("1")`, de.Context[errs.CtxSource])
}

func TestInterpreter_ExternalStore(t *testing.T) {
	store := scope.NewMapStore(map[string]host.Value{"injected": "from host"})
	in := newInterp(t, nil, WithStore(store))

	got := eval(t, in, ret(name("injected")))
	assert.Equal(t, "from host", got)

	require.NoError(t, in.Set("y", 3))
	v, ok := store.Get("y")
	require.True(t, ok)
	assert.Equal(t, int32(3), v)

	store.Set("y", "changed outside")
	got = eval(t, in, ret(name("y")))
	assert.Equal(t, "changed outside", got)
}

func TestInterpreter_Errors(t *testing.T) {
	in := newInterp(t, nil)
	cases := []struct {
		name string
		stmt ast.Node
		code errs.ErrorCode
	}{
		{"undefined variable", ret(name("nope")), errs.CodeUnresolved},
		{"undefined method", call(nil, "nope"), errs.CodeNotFound},
		{"unknown class", &ast.New{Type: "NoSuchClass"}, errs.CodeUnresolved},
		{"bad modifier", declare("", "v", nil, "abstract"), errs.CodeValidationError},
		{"final reassignment", block(declare("int", "k", lit(1), "final"), assign("k", lit(2))), errs.CodeFinalAssignment},
		{"typed mismatch", declare("int", "s", lit("text")), errs.CodeTypeMismatch},
		{"this outside method", ret(&ast.This{}), errs.CodeUnresolved},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := in.Eval(context.Background(), tc.stmt)
			require.Error(t, err)
			assert.True(t, errs.IsCode(err, tc.code), "got %v", err)
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := in.Eval(ctx, block(declare("", "late", lit(1))))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInterpreter_NameListener(t *testing.T) {
	in := newInterp(t, nil)
	var names []string
	l := scope.NewNameListener(func(ev scope.NameEvent) { names = append(names, ev.Kind.String()+":"+ev.Name) })
	in.Global().AddNameListener(l)

	eval(t, in,
		&ast.Import{Name: "java.util", Wildcard: true},
		declare("", "v", lit(true)),
		&ast.MethodDecl{Name: "m", Body: block()},
	)
	assert.Equal(t, []string{"import:java.util.*", "variable:v", "method:m"}, names)
	runtime.KeepAlive(l)
}
