// Package interp evaluates syntax trees against the scope chain, the host
// type system and the classes it generates at runtime.
package interp

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"hostscript/internal/core/config"
	errs "hostscript/internal/core/errors"
	"hostscript/internal/engine/ast"
	"hostscript/internal/engine/classgen"
	"hostscript/internal/engine/classpath"
	"hostscript/internal/engine/dispatch"
	"hostscript/internal/engine/host"
	"hostscript/internal/engine/scope"
	"hostscript/internal/engine/security"
)

type options struct {
	store    scope.Store
	feedback classpath.Feedback
	guard    security.Guard
}

type Option func(*options)

// WithStore backs the global scope with store.
func WithStore(store scope.Store) Option {
	return func(o *options) { o.store = store }
}

// WithFeedback receives classpath mapping progress.
func WithFeedback(fb classpath.Feedback) Option {
	return func(o *options) { o.feedback = fb }
}

// WithGuard replaces the guard built from the security config.
func WithGuard(g security.Guard) Option {
	return func(o *options) { o.guard = g }
}

// Interpreter is one script session. It is not safe for concurrent Eval.
type Interpreter struct {
	Config *config.Config

	classpath *classpath.Resolver
	registry  *host.Registry
	invoker   *dispatch.Invoker
	generator *classgen.Generator
	global    *scope.ExternalScope

	// declared maps script class names, simple and qualified, to their
	// latest generated version.
	declared map[string]*host.Type
	active   context.Context
}

func New(cfg *config.Config, opts ...Option) (*Interpreter, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cp, err := classpath.NewFromConfig(cfg.Classpath, o.feedback)
	if err != nil {
		return nil, err
	}
	guard := o.guard
	if guard == nil {
		guard, err = security.FromConfig(cfg.Security)
		if err != nil {
			_ = cp.Close()
			return nil, err
		}
	}

	reg := host.NewRegistry(cp)
	inv := dispatch.NewInvoker(reg, guard, cfg.Dispatch.CacheSize)
	env := &scope.Env{
		Classes:        reg,
		Index:          cp,
		DefaultImports: cfg.Scope.DefaultImports,
		ImplicitLookup: cfg.Scope.ImplicitLookup(),
	}
	in := &Interpreter{
		Config:    cfg,
		classpath: cp,
		registry:  reg,
		invoker:   inv,
		generator: classgen.New(cp, reg, guard, cfg.Classgen.PackagePrefix),
		global:    scope.NewExternal("global", env, o.store),
		declared:  make(map[string]*host.Type),
	}
	inv.SetRunner(in)
	return in, nil
}

func (in *Interpreter) Close() error {
	return in.classpath.Close()
}

// Global is the outermost scope, shared with the embedding program.
func (in *Interpreter) Global() *scope.ExternalScope { return in.global }

func (in *Interpreter) Classpath() *classpath.Resolver { return in.classpath }

func (in *Interpreter) Registry() *host.Registry { return in.registry }

func (in *Interpreter) Invoker() *dispatch.Invoker { return in.invoker }

func (in *Interpreter) Generator() *classgen.Generator { return in.generator }

// Set assigns a global variable, declaring it untyped when new.
func (in *Interpreter) Set(name string, v host.Value) error {
	return in.global.Assign(name, v)
}

// Get reads a global variable.
func (in *Interpreter) Get(name string) (host.Value, bool) {
	return in.global.Get(name)
}

// Watch re-maps the classpath when its locations change until ctx ends.
func (in *Interpreter) Watch(ctx context.Context) error {
	w := in.Config.Watch
	return in.classpath.Watch(ctx, w.Debounce, w.MaxReindexPerSecond)
}

// Eval evaluates one unit in the global scope. A block is evaluated
// statement by statement without opening a nested scope.
func (in *Interpreter) Eval(ctx context.Context, n ast.Node) (host.Value, error) {
	prev := in.active
	in.active = ctx
	defer func() { in.active = prev }()

	start := time.Now()
	f := &frame{}
	var (
		v   host.Value
		err error
	)
	if b, ok := n.(*ast.Block); ok {
		err = in.evalStmts(ctx, in.global.Scope, f, b.Stmts)
	} else {
		v, err = in.eval(ctx, in.global.Scope, f, n)
	}
	if err != nil {
		slog.Debug("evaluation failed", "pos", n.Pos().String(), "error", err)
		return nil, err
	}
	slog.Debug("evaluated", "pos", n.Pos().String(), "duration", time.Since(start))
	if f.returned {
		return f.result, nil
	}
	return v, nil
}

func (in *Interpreter) context() context.Context {
	if in.active != nil {
		return in.active
	}
	return context.Background()
}

// locate attaches the innermost node's position and source text to err.
func locate(err error, n ast.Node) error {
	var de *errs.DomainError
	if errors.As(err, &de) {
		if _, ok := de.Context[errs.CtxPosition]; ok {
			return err
		}
	}
	err = errs.AddContext(err, errs.CtxPosition, n.Pos().String())
	if text := n.Text(); text != "" {
		err = errs.AddContext(err, errs.CtxSource, text)
	}
	return err
}
