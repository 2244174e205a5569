package classpath

import (
	"archive/zip"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"hostscript/internal/core/config"
	errs "hostscript/internal/core/errors"
	"hostscript/internal/data/manifest"
	"hostscript/internal/engine/bytecode"
	"hostscript/internal/shared/observability"
	"hostscript/internal/shared/util"

	"github.com/gobwas/glob"
	"go.opentelemetry.io/otel/attribute"
)

// Cause names what triggered an index change.
type Cause string

const (
	CauseMapped      Cause = "mapped"
	CauseRescan      Cause = "rescan"
	CauseWatch       Cause = "watch"
	CauseGenerated   Cause = "generated"
	CauseInvalidated Cause = "invalidated"
)

// ChangeEvent describes one index change. Classes lists the names added by
// generated registration and is empty for full rebuilds.
type ChangeEvent struct {
	Cause   Cause
	Classes []string
}

// Listener observes index changes. The resolver holds listeners weakly: a
// listener nobody else references stops receiving events once collected.
type Listener struct {
	fn func(ChangeEvent)
}

func NewListener(fn func(ChangeEvent)) *Listener {
	return &Listener{fn: fn}
}

type Options struct {
	ArchiveSuffixes []string
	ModuleSuffixes  []string
	ExcludeDirs     []string
	ByteCacheSize   int
	Feedback        Feedback
	Manifest        *manifest.Store
}

// Generated is one runtime class ready to join the classpath.
type Generated struct {
	Name string
	Data []byte
}

// Resolver maps classpath locations into an index of class names and serves
// their bytes. It is safe for concurrent use.
type Resolver struct {
	archiveSuffixes []string
	moduleSuffixes  []string
	exclude         []glob.Glob
	excludeSource   []string
	feedback        Feedback
	manifest        *manifest.Store
	ownsManifest    bool

	// mu serializes index builds and generated registration.
	mu        sync.Mutex
	current   atomic.Pointer[index]
	locations []string
	generated []*GeneratedSource

	bytes     *util.LRUCache[string, []byte]
	listeners util.WeakList[Listener]
}

func New(opts Options) (*Resolver, error) {
	exclude := make([]glob.Glob, 0, len(opts.ExcludeDirs))
	for _, pattern := range opts.ExcludeDirs {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, errs.Wrap(err, errs.CodeValidationError, fmt.Sprintf("invalid exclude pattern %q", pattern))
		}
		exclude = append(exclude, g)
	}
	r := &Resolver{
		archiveSuffixes: lowerAll(opts.ArchiveSuffixes, ".jar", ".zip"),
		moduleSuffixes:  lowerAll(opts.ModuleSuffixes, ".jmod"),
		exclude:         exclude,
		excludeSource:   append([]string(nil), opts.ExcludeDirs...),
		feedback:        opts.Feedback,
		manifest:        opts.Manifest,
		bytes:           util.NewLRUCache[string, []byte](opts.ByteCacheSize),
	}
	if r.feedback == nil {
		r.feedback = LogFeedback{}
	}
	return r, nil
}

// NewFromConfig builds a resolver from the classpath config section. Entries
// are recorded but not mapped until first use or an explicit Map.
func NewFromConfig(cfg config.Classpath, fb Feedback) (*Resolver, error) {
	var store *manifest.Store
	if cfg.ManifestCache != "" {
		s, err := manifest.Open(cfg.ManifestCache)
		if err != nil {
			slog.Warn("archive manifest cache disabled", "path", cfg.ManifestCache, "error", err)
		} else {
			store = s
		}
	}
	r, err := New(Options{
		ArchiveSuffixes: cfg.ArchiveSuffixes,
		ModuleSuffixes:  cfg.ModuleSuffixes,
		ExcludeDirs:     cfg.ExcludeDirs,
		ByteCacheSize:   cfg.ByteCacheSize,
		Feedback:        fb,
		Manifest:        store,
	})
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}
	r.ownsManifest = store != nil
	r.AddLocations(cfg.Entries...)
	return r, nil
}

func (r *Resolver) Close() error {
	if r.ownsManifest {
		return r.manifest.Close()
	}
	return nil
}

func lowerAll(values []string, defaults ...string) []string {
	if len(values) == 0 {
		values = defaults
	}
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, strings.ToLower(v))
	}
	return out
}

// AddLocations appends locations without mapping them. The next lookup
// rebuilds the index.
func (r *Resolver) AddLocations(locations ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendLocations(locations) {
		r.current.Store(nil)
	}
}

func (r *Resolver) appendLocations(locations []string) bool {
	added := false
	for _, loc := range locations {
		loc = strings.TrimSpace(loc)
		if loc == "" || slices.Contains(r.locations, loc) {
			continue
		}
		r.locations = append(r.locations, loc)
		added = true
	}
	return added
}

// Locations returns the mapped locations in classpath order.
func (r *Resolver) Locations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.locations...)
}

// Map adds locations and rebuilds the index. Failures of single locations are
// reported to the feedback and skipped; only cancellation returns an error.
func (r *Resolver) Map(ctx context.Context, locations ...string) error {
	r.mu.Lock()
	r.appendLocations(locations)
	err := r.rebuildLocked(ctx)
	r.mu.Unlock()
	if err != nil {
		return err
	}
	r.notify(ChangeEvent{Cause: CauseMapped})
	return nil
}

// Rescan rebuilds the index from the current locations.
func (r *Resolver) Rescan(ctx context.Context) error {
	return r.rescan(ctx, CauseRescan)
}

func (r *Resolver) rescan(ctx context.Context, cause Cause) error {
	r.mu.Lock()
	err := r.rebuildLocked(ctx)
	r.mu.Unlock()
	if err != nil {
		return err
	}
	r.notify(ChangeEvent{Cause: cause})
	return nil
}

// Invalidate drops the index and cached bytes. The next lookup remaps.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.current.Store(nil)
	r.bytes.Clear()
	r.mu.Unlock()
	observability.ClasspathSwapsTotal.WithLabelValues(string(CauseInvalidated)).Inc()
	r.notify(ChangeEvent{Cause: CauseInvalidated})
}

// index returns the active index, building it on first use.
func (r *Resolver) index() *index {
	if ix := r.current.Load(); ix != nil {
		return ix
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if ix := r.current.Load(); ix != nil {
		return ix
	}
	if err := r.rebuildLocked(context.Background()); err != nil {
		return newIndex()
	}
	return r.current.Load()
}

func (r *Resolver) rebuildLocked(ctx context.Context) (err error) {
	ctx, span := observability.Tracer.Start(ctx, "classpath.map")
	span.SetAttributes(attribute.Int("classpath.locations", len(r.locations)))
	defer func() { observability.EndSpan(span, err) }()

	start := time.Now()
	r.feedback.StartClassMapping()
	defer r.feedback.EndClassMapping()

	ix := newIndex()
	for _, loc := range r.locations {
		if err := ctx.Err(); err != nil {
			return err
		}
		count, mapErr := r.mapLocation(ctx, ix, loc)
		if mapErr != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			observability.ClasspathMappingErrorsTotal.Inc()
			r.feedback.Error(errs.ClasspathMapping(loc, mapErr))
			continue
		}
		r.feedback.Progress(fmt.Sprintf("mapped %d classes from %s", count, loc))
	}
	for _, g := range r.generated {
		ix.add(g.name, g)
	}

	r.current.Store(ix.seal())
	// Generated definitions never change; everything else may have.
	r.bytes.EvictIf(func(fqn string) bool {
		_, generated := ix.byName[fqn].(*GeneratedSource)
		return !generated
	})
	observability.ClasspathMappingDuration.Observe(time.Since(start).Seconds())
	observability.ClasspathClasses.Set(float64(len(ix.byName)))
	observability.ClasspathSwapsTotal.WithLabelValues(string(CauseMapped)).Inc()
	span.SetAttributes(attribute.Int("classpath.classes", len(ix.byName)))
	return nil
}

func (r *Resolver) mapLocation(ctx context.Context, ix *index, loc string) (int, error) {
	info, err := os.Stat(loc)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return r.mapDirectory(ctx, ix, loc)
	}
	lower := strings.ToLower(loc)
	switch {
	case hasAnySuffix(lower, r.archiveSuffixes):
		return r.mapArchive(ix, loc, info, KindArchive)
	case hasAnySuffix(lower, r.moduleSuffixes):
		return r.mapArchive(ix, loc, info, KindModule)
	default:
		return 0, fmt.Errorf("unsupported classpath entry %s", loc)
	}
}

func hasAnySuffix(s string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

func (r *Resolver) excluded(dir string) bool {
	base := filepath.Base(dir)
	for _, g := range r.exclude {
		if g.Match(base) {
			return true
		}
	}
	return false
}

// walkDir is replaced in tests to simulate unreadable trees.
var walkDir = filepath.WalkDir

// mapDirectory indexes the classes under root. A walk failure skips the
// whole location: nothing found before the failure is indexed.
func (r *Resolver) mapDirectory(ctx context.Context, ix *index, root string) (int, error) {
	var names []string
	err := walkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && r.excluded(path) {
				return filepath.SkipDir
			}
			return ctx.Err()
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if name, ok := entryToName(rel); ok {
			names = append(names, name)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	src := &DirSource{root: root}
	count := 0
	for _, name := range names {
		if ix.add(name, src) {
			count++
		}
	}
	return count, nil
}

func (r *Resolver) mapArchive(ix *index, loc string, info os.FileInfo, kind SourceKind) (int, error) {
	var src ClassSource = &ArchiveSource{path: loc}
	if kind == KindModule {
		src = &ModuleSource{path: loc}
	}

	entry := manifest.Entry{Location: loc, Kind: kind.String(), Size: info.Size(), ModTime: info.ModTime()}
	names, ok := r.cachedListing(entry)
	if !ok {
		var err error
		names, err = listSource(loc, kind)
		if err != nil {
			r.forgetListing(loc)
			return 0, err
		}
		r.saveListing(entry, names)
	}

	count := 0
	for _, name := range names {
		if ix.add(name, src) {
			count++
		}
	}
	return count, nil
}

func listSource(loc string, kind SourceKind) ([]string, error) {
	if kind == KindModule {
		f, zr, err := openModule(loc)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return listArchive(zr, "classes/"), nil
	}
	zr, err := zip.OpenReader(loc)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return listArchive(&zr.Reader, ""), nil
}

func (r *Resolver) cachedListing(e manifest.Entry) ([]string, bool) {
	if r.manifest == nil {
		return nil, false
	}
	names, ok, err := r.manifest.Lookup(e)
	if err != nil {
		slog.Warn("archive manifest lookup failed", "location", e.Location, "error", err)
		return nil, false
	}
	if ok {
		observability.ManifestCacheTotal.WithLabelValues("hit").Inc()
	} else {
		observability.ManifestCacheTotal.WithLabelValues("miss").Inc()
	}
	return names, ok
}

func (r *Resolver) saveListing(e manifest.Entry, names []string) {
	if r.manifest == nil {
		return
	}
	if err := r.manifest.Save(e, names); err != nil {
		slog.Warn("archive manifest save failed", "location", e.Location, "error", err)
	}
}

func (r *Resolver) forgetListing(loc string) {
	if r.manifest == nil {
		return
	}
	if err := r.manifest.Forget(loc); err != nil {
		slog.Warn("archive manifest forget failed", "location", loc, "error", err)
	}
}

// Source returns the origin of fqn.
func (r *Resolver) Source(fqn string) (ClassSource, bool) {
	src, ok := r.index().byName[fqn]
	return src, ok
}

func (r *Resolver) HasClass(fqn string) bool {
	_, ok := r.Source(fqn)
	return ok
}

// UnqualifiedNameOwners returns every class whose simple name is simple. No
// owner is CodeNotFound; several owners is an ambiguity carrying all of them.
func (r *Resolver) UnqualifiedNameOwners(simple string) ([]string, error) {
	owners := r.index().bySimple[simple]
	switch len(owners) {
	case 0:
		return nil, errs.Newf(errs.CodeNotFound, "no class named %s on the classpath", simple).(*errs.DomainError).
			WithContext(errs.CtxSymbol, simple)
	case 1:
		return []string{owners[0]}, nil
	default:
		out := append([]string(nil), owners...)
		return out, errs.AmbiguousName(simple, out)
	}
}

// ResolveSimple returns the single class named simple.
func (r *Resolver) ResolveSimple(simple string) (string, error) {
	owners, err := r.UnqualifiedNameOwners(simple)
	if err != nil {
		return "", err
	}
	return owners[0], nil
}

// ClassBytes returns the class definition of fqn, reading through the cache.
func (r *Resolver) ClassBytes(fqn string) ([]byte, error) {
	if data, ok := r.bytes.Get(fqn); ok {
		observability.ClassBytesCacheTotal.WithLabelValues("hit").Inc()
		return data, nil
	}
	observability.ClassBytesCacheTotal.WithLabelValues("miss").Inc()

	src, ok := r.Source(fqn)
	if !ok {
		return nil, notFound(fqn, "classpath")
	}
	data, err := src.ClassBytes(fqn)
	if err != nil {
		return nil, err
	}
	r.bytes.Put(fqn, data)
	return data, nil
}

// RegisterGenerated adds one runtime class. See RegisterGeneratedSet.
func (r *Resolver) RegisterGenerated(fqn string, data []byte) error {
	return r.RegisterGeneratedSet([]Generated{{Name: fqn, Data: data}})
}

// RegisterGeneratedSet adds runtime classes atomically: either every class
// joins the index or none does. Each definition must parse and declare the
// name it is registered under, and no name may already be known.
func (r *Resolver) RegisterGeneratedSet(classes []Generated) error {
	if len(classes) == 0 {
		return nil
	}
	ix := r.index()

	r.mu.Lock()
	if cur := r.current.Load(); cur != nil {
		ix = cur
	}
	seen := make(map[string]bool, len(classes))
	added := make([]*GeneratedSource, 0, len(classes))
	for _, c := range classes {
		cf, err := bytecode.Parse(c.Data)
		if err != nil {
			r.mu.Unlock()
			return errs.Wrap(err, errs.CodeValidationError, fmt.Sprintf("generated class %s is malformed", c.Name))
		}
		if cf.Name != c.Name {
			r.mu.Unlock()
			return errs.Newf(errs.CodeValidationError, "generated class declares %s, registered as %s", cf.Name, c.Name)
		}
		if _, exists := ix.byName[c.Name]; exists || seen[c.Name] || r.hasGenerated(c.Name) {
			r.mu.Unlock()
			return errs.Newf(errs.CodeConflict, "class %s is already defined", c.Name).(*errs.DomainError).
				WithContext(errs.CtxType, c.Name)
		}
		seen[c.Name] = true
		added = append(added, &GeneratedSource{name: c.Name, data: append([]byte(nil), c.Data...)})
	}

	next := ix.clone()
	names := make([]string, 0, len(added))
	for _, g := range added {
		next.add(g.name, g)
		names = append(names, g.name)
	}
	r.generated = append(r.generated, added...)
	r.current.Store(next.seal())
	observability.ClasspathClasses.Set(float64(len(next.byName)))
	observability.ClasspathSwapsTotal.WithLabelValues(string(CauseGenerated)).Inc()
	r.mu.Unlock()

	r.notify(ChangeEvent{Cause: CauseGenerated, Classes: names})
	return nil
}

// UnregisterGenerated removes runtime classes registered by this resolver.
// It exists to roll back a registration whose later steps failed; names that
// are unknown or not generated are ignored.
func (r *Resolver) UnregisterGenerated(names ...string) {
	if len(names) == 0 {
		return
	}
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}

	r.mu.Lock()
	kept := r.generated[:0:0]
	for _, g := range r.generated {
		if !drop[g.name] {
			kept = append(kept, g)
		}
	}
	if len(kept) == len(r.generated) {
		r.mu.Unlock()
		return
	}
	r.generated = kept
	if cur := r.current.Load(); cur != nil {
		next := newIndex()
		for fqn, src := range cur.byName {
			if _, generated := src.(*GeneratedSource); generated && drop[fqn] {
				continue
			}
			next.add(fqn, src)
		}
		r.current.Store(next.seal())
		observability.ClasspathClasses.Set(float64(len(next.byName)))
	}
	for _, n := range names {
		r.bytes.Evict(n)
	}
	r.mu.Unlock()
}

func (r *Resolver) hasGenerated(name string) bool {
	for _, g := range r.generated {
		if g.name == name {
			return true
		}
	}
	return false
}

// Packages returns every package holding at least one class.
func (r *Resolver) Packages() []string {
	return util.SortedStringKeys(r.index().packages)
}

// ClassesInPackage returns the classes directly inside pkg.
func (r *Resolver) ClassesInPackage(pkg string) []string {
	return append([]string(nil), r.index().packages[pkg]...)
}

func (r *Resolver) AddListener(l *Listener) { r.listeners.Add(l) }

func (r *Resolver) RemoveListener(l *Listener) { r.listeners.Remove(l) }

func (r *Resolver) notify(ev ChangeEvent) {
	for _, l := range r.listeners.Live() {
		if l.fn != nil {
			l.fn(ev)
		}
	}
}
