package util

import (
	"strings"
	"testing"
)

func TestSortedUnique(t *testing.T) {
	got := SortedUnique([]string{"b.C", "a.C", "b.C", "a.C"})
	if strings.Join(got, ",") != "a.C,b.C" {
		t.Fatalf("unexpected result %v", got)
	}
	if SortedUnique(nil) != nil {
		t.Fatal("expected nil for empty input")
	}
}

func TestSortedStringKeys(t *testing.T) {
	got := SortedStringKeys(map[string]int{"java.util": 1, "java.lang": 2})
	if strings.Join(got, ",") != "java.lang,java.util" {
		t.Fatalf("unexpected keys %v", got)
	}
}
