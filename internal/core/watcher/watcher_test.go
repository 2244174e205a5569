package watcher

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func waitFor(t *testing.T, changed <-chan []string, want string, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case paths := <-changed:
			for _, p := range paths {
				if p == want {
					return
				}
			}
		case <-deadline:
			t.Fatalf("timed out waiting for change to %s", want)
		}
	}
}

func expectQuiet(t *testing.T, changed <-chan []string, wait time.Duration) {
	t.Helper()
	select {
	case paths := <-changed:
		t.Fatalf("unexpected change event %v", paths)
	case <-time.After(wait):
	}
}

func TestNewWatcher_RejectsNilCallback(t *testing.T) {
	w, err := NewWatcher(100*time.Millisecond, nil, nil, nil)
	if err == nil {
		t.Fatal("expected error for nil callback")
	}
	if !errors.Is(err, os.ErrInvalid) {
		t.Fatalf("expected os.ErrInvalid, got %v", err)
	}
	if w != nil {
		t.Fatal("expected nil watcher when callback is invalid")
	}
}

func TestNewWatcher_RejectsBadGlob(t *testing.T) {
	if _, err := NewWatcher(time.Millisecond, []string{"["}, nil, func([]string) {}); err == nil {
		t.Fatal("expected invalid glob to fail")
	}
}

func TestWatcher_ClassDirectory(t *testing.T) {
	tmpDir := t.TempDir()

	changed := make(chan []string, 8)
	w, err := NewWatcher(50*time.Millisecond, []string{"exclude_dir"}, []string{"*Excluded.class"}, func(paths []string) {
		changed <- paths
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Watch([]string{tmpDir}); err != nil {
		t.Fatal(err)
	}

	classFile := filepath.Join(tmpDir, "Widget.class")
	if err := os.WriteFile(classFile, []byte{0xCA, 0xFE, 0xBA, 0xBE}, 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, changed, classFile, 2*time.Second)

	t.Run("non-class files are ignored", func(t *testing.T) {
		if err := os.WriteFile(filepath.Join(tmpDir, "notes.txt"), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(tmpDir, "WidgetExcluded.class"), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		expectQuiet(t, changed, 300*time.Millisecond)
	})

	t.Run("identical rewrite is ignored", func(t *testing.T) {
		if err := os.WriteFile(classFile, []byte{0xCA, 0xFE, 0xBA, 0xBE}, 0o644); err != nil {
			t.Fatal(err)
		}
		expectQuiet(t, changed, 300*time.Millisecond)
	})

	t.Run("new package directory is watched", func(t *testing.T) {
		pkg := filepath.Join(tmpDir, "com", "acme")
		if err := os.MkdirAll(pkg, 0o755); err != nil {
			t.Fatal(err)
		}
		time.Sleep(100 * time.Millisecond)
		nested := filepath.Join(pkg, "Gadget.class")
		if err := os.WriteFile(nested, []byte{1, 2, 3}, 0o644); err != nil {
			t.Fatal(err)
		}
		waitFor(t, changed, nested, 2*time.Second)
	})

	t.Run("removal is reported", func(t *testing.T) {
		if err := os.Remove(classFile); err != nil {
			t.Fatal(err)
		}
		waitFor(t, changed, classFile, 2*time.Second)
	})
}

func TestWatcher_ArchiveTarget(t *testing.T) {
	tmpDir := t.TempDir()
	jar := filepath.Join(tmpDir, "lib.jar")
	if err := os.WriteFile(jar, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	changed := make(chan []string, 8)
	w, err := NewWatcher(50*time.Millisecond, nil, nil, func(paths []string) {
		changed <- paths
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Watch([]string{jar}); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(filepath.Join(tmpDir, "other.jar"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	expectQuiet(t, changed, 300*time.Millisecond)

	if err := os.WriteFile(jar, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, changed, jar, 2*time.Second)
}

func TestWatcher_Filters(t *testing.T) {
	w, err := NewWatcher(10*time.Millisecond, nil, []string{"*-sources.jar"}, func([]string) {})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	dir := filepath.Join("tmp", "classes")
	w.trees[dir] = true

	if w.shouldExcludeFile(filepath.Join(dir, "A.class")) {
		t.Fatal("expected .class to be included")
	}
	if !w.shouldExcludeFile(filepath.Join(dir, "A.java")) {
		t.Fatal("expected .java to be excluded")
	}
	if !w.shouldExcludeFile(filepath.Join(dir, "lib-sources.jar")) {
		t.Fatal("expected exclude glob to apply")
	}
	if !w.shouldExcludeFile(filepath.Join("elsewhere", "A.class")) {
		t.Fatal("expected files outside watched trees to be excluded")
	}

	w.SetExtensions([]string{"JAR"})
	if !w.shouldExcludeFile(filepath.Join(dir, "A.class")) {
		t.Fatal("expected .class to be excluded after SetExtensions")
	}
	if w.shouldExcludeFile(filepath.Join(dir, "lib.jar")) {
		t.Fatal("expected normalized extension to match")
	}
}
