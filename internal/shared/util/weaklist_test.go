package util

import (
	"runtime"
	"testing"
)

type subscriber struct {
	name string
	hits *int
}

func TestWeakList_OrderAndDedup(t *testing.T) {
	var w WeakList[subscriber]
	a := &subscriber{name: "a"}
	b := &subscriber{name: "b"}
	w.Add(a)
	w.Add(b)
	w.Add(a)

	live := w.Live()
	if len(live) != 2 || live[0] != a || live[1] != b {
		t.Fatalf("expected [a b] in registration order, got %v", live)
	}

	w.Remove(a)
	if live := w.Live(); len(live) != 1 || live[0] != b {
		t.Fatalf("expected only b after remove, got %v", live)
	}
	runtime.KeepAlive(a)
	runtime.KeepAlive(b)
}

func TestWeakList_PrunesCollected(t *testing.T) {
	var w WeakList[subscriber]
	kept := &subscriber{name: "kept"}
	w.Add(kept)
	func() {
		w.Add(&subscriber{name: "dropped"})
	}()

	if w.Len() != 2 {
		t.Fatalf("expected 2 registrations, got %d", w.Len())
	}

	runtime.GC()
	runtime.GC()

	live := w.Live()
	if len(live) != 1 || live[0] != kept {
		t.Fatalf("expected only the reachable listener, got %d", len(live))
	}
	if w.Len() != 1 {
		t.Fatalf("expected dead entry to be pruned, got %d", w.Len())
	}
	runtime.KeepAlive(kept)
}
