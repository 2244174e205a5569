package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	errs "hostscript/internal/core/errors"
	"hostscript/internal/engine/classpath"
	"hostscript/internal/engine/interp"
)

type App struct {
	interp *interp.Interpreter

	// listener is held here; the resolver only keeps it weakly.
	listener *classpath.Listener
	remaps   atomic.Int64
}

func NewApp(in *interp.Interpreter) *App {
	a := &App{interp: in}
	a.listener = classpath.NewListener(func(ev classpath.ChangeEvent) {
		if ev.Cause == classpath.CauseWatch {
			a.remaps.Add(1)
		}
	})
	in.Classpath().AddListener(a.listener)
	return a
}

// Map indexes the configured classpath locations.
func (a *App) Map(ctx context.Context) error {
	return a.interp.Classpath().Map(ctx)
}

// Summary describes the mapped classpath.
type Summary struct {
	Locations []string
	Packages  int
	Classes   int
	// Ambiguous maps simple names to every class that owns them. It is only
	// filled on request.
	Ambiguous map[string][]string
	// Remaps counts rebuilds triggered by the watcher.
	Remaps    int64
}

func (a *App) Summarize(withAmbiguous bool) Summary {
	cp := a.interp.Classpath()
	s := Summary{Locations: cp.Locations(), Remaps: a.remaps.Load()}
	seen := make(map[string]bool)
	for _, pkg := range cp.Packages() {
		s.Packages++
		for _, fqn := range cp.ClassesInPackage(pkg) {
			s.Classes++
			if !withAmbiguous {
				continue
			}
			simple := fqn[strings.LastIndexByte(fqn, '.')+1:]
			if seen[simple] {
				continue
			}
			seen[simple] = true
			if owners, err := cp.UnqualifiedNameOwners(simple); err != nil && errs.IsCode(err, errs.CodeAmbiguousName) {
				if s.Ambiguous == nil {
					s.Ambiguous = make(map[string][]string)
				}
				s.Ambiguous[simple] = owners
			}
		}
	}
	return s
}

// LookupReport is the resolution of one class name.
type LookupReport struct {
	Requested  string
	Name       string
	Source     string
	Super      string
	Interfaces []string
	Methods    int
	Fields     int
}

// Lookup resolves name the way a script would, through the global imports.
func (a *App) Lookup(name string) (LookupReport, error) {
	t, err := a.interp.Global().ResolveClass(name)
	if err != nil {
		return LookupReport{}, err
	}
	r := LookupReport{Requested: name, Name: t.Name, Source: t.Origin, Methods: len(t.Methods), Fields: len(t.Fields)}
	if src, ok := a.interp.Classpath().Source(t.Name); ok {
		r.Source = src.Location()
	}
	if t.Super != nil {
		r.Super = t.Super.Name
	}
	for _, i := range t.Interfaces {
		r.Interfaces = append(r.Interfaces, i.Name)
	}
	return r, nil
}

func formatSummary(s Summary) string {
	var b strings.Builder
	b.WriteString("Classpath\n")
	b.WriteString("=========\n")
	for _, loc := range s.Locations {
		b.WriteString(fmt.Sprintf("- %s\n", loc))
	}
	b.WriteString(fmt.Sprintf("Packages: %d\n", s.Packages))
	b.WriteString(fmt.Sprintf("Classes: %d\n", s.Classes))
	if s.Remaps > 0 {
		b.WriteString(fmt.Sprintf("Remaps: %d\n", s.Remaps))
	}
	if s.Ambiguous == nil {
		return b.String()
	}

	names := make([]string, 0, len(s.Ambiguous))
	for name := range s.Ambiguous {
		names = append(names, name)
	}
	sort.Strings(names)
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("Ambiguous simple names (%d)\n", len(names)))
	for _, name := range names {
		b.WriteString(fmt.Sprintf("- %s: %s\n", name, strings.Join(s.Ambiguous[name], ", ")))
	}
	return b.String()
}

func formatLookup(r LookupReport) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s -> %s\n", r.Requested, r.Name))
	if r.Source != "" {
		b.WriteString(fmt.Sprintf("  source: %s\n", r.Source))
	}
	if r.Super != "" {
		b.WriteString(fmt.Sprintf("  extends: %s\n", r.Super))
	}
	if len(r.Interfaces) > 0 {
		b.WriteString(fmt.Sprintf("  implements: %s\n", strings.Join(r.Interfaces, ", ")))
	}
	b.WriteString(fmt.Sprintf("  methods: %d, fields: %d\n", r.Methods, r.Fields))
	return b.String()
}
