package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainError(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		err := New(CodeNotFound, "class not found")
		if err.Error() != "[NOT_FOUND] class not found" {
			t.Errorf("expected [NOT_FOUND] class not found, got %s", err.Error())
		}
	})

	t.Run("Wrap", func(t *testing.T) {
		original := errors.New("original error")
		err := Wrap(original, CodeInternal, "internal failure")
		expected := "[INTERNAL_ERROR] internal failure: original error"
		if err.Error() != expected {
			t.Errorf("expected %s, got %s", expected, err.Error())
		}
		if !errors.Is(err, original) {
			t.Error("expected wrapped error to unwrap to original")
		}
	})

	t.Run("IsCodeWithWrapped", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", New(CodeByteEmission, "too long"))
		if !IsCode(err, CodeByteEmission) {
			t.Error("expected IsCode to see through fmt wrapping")
		}
		if IsCode(err, CodeNotFound) {
			t.Error("expected IsCode to return false for CodeNotFound")
		}
	})

	t.Run("AddContextOnPlainError", func(t *testing.T) {
		err := AddContext(errors.New("boom"), CtxPath, "/tmp/x.jar")
		if !IsCode(err, CodeInternal) {
			t.Fatalf("expected plain error to be wrapped as internal, got %v", err)
		}
	})
}

func TestTaxonomy(t *testing.T) {
	t.Run("AmbiguousNameSortsCandidates", func(t *testing.T) {
		err := AmbiguousName("List", []string{"java.util.List", "java.awt.List"})
		if !IsCode(err, CodeAmbiguousName) {
			t.Fatalf("unexpected code: %v", err)
		}
		got := Candidates(err)
		if len(got) != 2 || got[0] != "java.awt.List" || got[1] != "java.util.List" {
			t.Fatalf("unexpected candidates: %v", got)
		}
	})

	t.Run("SecurityDenialOmitsArguments", func(t *testing.T) {
		err := SecurityDenial("invoke static", "java.lang.System.exit(int)", "")
		var de *DomainError
		if !errors.As(err, &de) {
			t.Fatalf("expected domain error, got %T", err)
		}
		if de.Message != "invoke static denied for java.lang.System.exit(int)" {
			t.Fatalf("unexpected message %q", de.Message)
		}
	})

	t.Run("CandidatesOnForeignError", func(t *testing.T) {
		if got := Candidates(errors.New("x")); got != nil {
			t.Fatalf("expected nil candidates, got %v", got)
		}
	})
}
