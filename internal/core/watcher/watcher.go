// Package watcher reports debounced changes to classpath locations: class
// files below watched directories and individually watched archives.
package watcher

import (
	"crypto/sha256"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"hostscript/internal/shared/observability"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

type Watcher struct {
	fsWatcher    *fsnotify.Watcher
	debounce     time.Duration
	excludeDirs  []glob.Glob
	excludeFiles []glob.Glob
	extFilters   map[string]bool
	onChange     func([]string)
	callbackMu   sync.Mutex

	// files holds archives watched on their own; their parent directory is
	// watched non-recursively and other entries there are ignored.
	files   map[string]bool
	trees   map[string]bool
	filesMu sync.RWMutex

	hashes   map[string][32]byte
	hashesMu sync.Mutex

	pending   map[string]time.Time
	pendingMu sync.Mutex
	timer     *time.Timer
}

func NewWatcher(debounce time.Duration, excludeDirs, excludeFiles []string, onChange func([]string)) (*Watcher, error) {
	if onChange == nil {
		return nil, os.ErrInvalid
	}

	compiledDirs, err := compileAll(excludeDirs)
	if err != nil {
		return nil, err
	}
	compiledFiles, err := compileAll(excludeFiles)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		fsWatcher:    fsw,
		debounce:     debounce,
		onChange:     onChange,
		excludeDirs:  compiledDirs,
		excludeFiles: compiledFiles,
		files:        make(map[string]bool),
		trees:        make(map[string]bool),
		hashes:       make(map[string][32]byte),
		pending:      make(map[string]time.Time),
		extFilters: map[string]bool{
			".class": true,
			".jar":   true,
			".zip":   true,
			".jmod":  true,
		},
	}, nil
}

func compileAll(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// SetExtensions replaces the file extensions that produce change events.
func (w *Watcher) SetExtensions(extensions []string) {
	filter := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		filter[normalized] = true
	}
	w.extFilters = filter
}

// Watch starts watching paths. Directories are watched recursively; regular
// files are watched through their parent directory.
func (w *Watcher) Watch(paths []string) error {
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if info.IsDir() {
			if err := w.watchRecursive(path); err != nil {
				return err
			}
			continue
		}
		if err := w.watchFile(path); err != nil {
			return err
		}
	}

	go w.run()
	return nil
}

func (w *Watcher) watchFile(path string) error {
	clean := filepath.Clean(path)
	w.filesMu.Lock()
	w.files[clean] = true
	w.filesMu.Unlock()
	w.remember(clean)
	return w.fsWatcher.Add(filepath.Dir(clean))
}

func (w *Watcher) watchRecursive(root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			if w.shouldExcludeDir(path) {
				return filepath.SkipDir
			}
			w.filesMu.Lock()
			w.trees[filepath.Clean(path)] = true
			w.filesMu.Unlock()
			return w.fsWatcher.Add(path)
		}
		if !w.shouldExcludeFile(path) {
			w.remember(path)
		}
		return nil
	})
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			observability.WatcherEventsTotal.Inc()

			if event.Op&fsnotify.Create == fsnotify.Create && !w.isFileTarget(event.Name) {
				info, err := os.Stat(event.Name)
				if err == nil && info.IsDir() {
					if !w.shouldExcludeDir(event.Name) && w.inTree(event.Name) {
						if err := w.watchRecursive(event.Name); err != nil {
							slog.Warn("failed to watch new directory", "path", event.Name, "error", err)
						} else {
							w.enqueueExistingFiles(event.Name)
						}
					}
					continue
				}
			}

			if w.shouldExcludeFile(event.Name) {
				continue
			}

			switch {
			case event.Op&fsnotify.Remove == fsnotify.Remove, event.Op&fsnotify.Rename == fsnotify.Rename:
				w.forget(event.Name)
				w.scheduleChange(event.Name)
			case event.Op&fsnotify.Write == fsnotify.Write, event.Op&fsnotify.Create == fsnotify.Create:
				if w.contentChanged(event.Name) {
					w.scheduleChange(event.Name)
				}
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) isFileTarget(path string) bool {
	w.filesMu.RLock()
	defer w.filesMu.RUnlock()
	return w.files[filepath.Clean(path)]
}

// inTree reports whether path sits in a directory that was walked
// recursively, as opposed to one watched only for individual archives.
func (w *Watcher) inTree(path string) bool {
	dir := filepath.Dir(filepath.Clean(path))
	w.filesMu.RLock()
	defer w.filesMu.RUnlock()
	return w.trees[dir]
}

func hashFile(path string) ([32]byte, bool) {
	f, err := os.Open(path)
	if err != nil {
		return [32]byte{}, false
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return [32]byte{}, false
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum, true
}

func (w *Watcher) remember(path string) {
	sum, ok := hashFile(path)
	if !ok {
		return
	}
	w.hashesMu.Lock()
	w.hashes[path] = sum
	w.hashesMu.Unlock()
}

func (w *Watcher) forget(path string) {
	w.hashesMu.Lock()
	delete(w.hashes, path)
	w.hashesMu.Unlock()
}

// contentChanged records the file's digest and reports whether it differs
// from the last one seen. Unreadable files count as changed.
func (w *Watcher) contentChanged(path string) bool {
	sum, ok := hashFile(path)
	if !ok {
		return true
	}
	w.hashesMu.Lock()
	defer w.hashesMu.Unlock()
	if prev, seen := w.hashes[path]; seen && prev == sum {
		return false
	}
	w.hashes[path] = sum
	return true
}

func (w *Watcher) scheduleChange(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	w.pending[path] = time.Now()

	if w.timer != nil {
		w.timer.Stop()
	}

	w.timer = time.AfterFunc(w.debounce, func() {
		w.flushChanges()
	})
}

func (w *Watcher) flushChanges() {
	w.pendingMu.Lock()
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	w.pending = make(map[string]time.Time)
	w.pendingMu.Unlock()

	if len(paths) > 0 {
		w.callbackMu.Lock()
		defer w.callbackMu.Unlock()
		w.onChange(paths)
	}
}

func (w *Watcher) shouldExcludeDir(path string) bool {
	base := filepath.Base(path)
	for _, g := range w.excludeDirs {
		if g.Match(base) {
			return true
		}
	}
	return false
}

func (w *Watcher) shouldExcludeFile(path string) bool {
	if w.isFileTarget(path) {
		return false
	}
	if !w.inTree(path) {
		return true
	}

	base := strings.ToLower(filepath.Base(path))
	if len(w.extFilters) > 0 && !w.extFilters[strings.ToLower(filepath.Ext(base))] {
		return true
	}

	for _, g := range w.excludeFiles {
		if g.Match(base) {
			return true
		}
	}
	return false
}

func (w *Watcher) Close() error {
	w.pendingMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pendingMu.Unlock()
	return w.fsWatcher.Close()
}

func (w *Watcher) enqueueExistingFiles(root string) {
	_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		if w.shouldExcludeFile(path) {
			return nil
		}
		w.scheduleChange(path)
		return nil
	})
}
