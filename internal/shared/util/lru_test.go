package util

import (
	"strings"
	"testing"
)

func TestLRUCache_EvictsLeastRecent(t *testing.T) {
	c := NewLRUCache[string, int](2)
	c.Put("a", 1)
	c.Put("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("expected a to be cached")
	}
	c.Put("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Fatal("expected b to be evicted as least recently used")
	}
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Fatalf("expected c=3, got %d (%v)", v, ok)
	}
}

func TestLRUCache_Stats(t *testing.T) {
	c := NewLRUCache[string, int](0)
	c.Put("x", 1)
	c.Get("x")
	c.Get("y")

	stats := c.Stats()
	if stats.Len != 1 || stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	c.Clear()
	if stats := c.Stats(); stats.Len != 0 || stats.Hits != 0 {
		t.Fatalf("expected clear to reset, got %+v", stats)
	}
}

func TestLRUCache_EvictIf(t *testing.T) {
	c := NewLRUCache[string, int](8)
	c.Put("lib/a.jar!p.A", 1)
	c.Put("lib/a.jar!p.B", 2)
	c.Put("classes!q.C", 3)

	removed := c.EvictIf(func(k string) bool { return strings.HasPrefix(k, "lib/a.jar!") })
	if n := c.Stats().Len; removed != 2 || n != 1 {
		t.Fatalf("expected 2 removals leaving 1 entry, got removed=%d len=%d", removed, n)
	}
}
