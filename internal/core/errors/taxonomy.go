package errors

import (
	"fmt"
	"sort"
	"strings"
)

// DuplicateDeclaration reports a differently typed redeclaration in one scope.
func DuplicateDeclaration(name, existing, requested string) error {
	return (&DomainError{
		Code:    CodeDuplicateDeclaration,
		Message: fmt.Sprintf("variable %q already declared as %s, cannot redeclare as %s", name, existing, requested),
	}).WithContext(CtxSymbol, name)
}

// AmbiguousName reports a simple class name owned by more than one package.
func AmbiguousName(simple string, candidates []string) error {
	sorted := append([]string(nil), candidates...)
	sort.Strings(sorted)
	return (&DomainError{
		Code:    CodeAmbiguousName,
		Message: fmt.Sprintf("ambiguous name %q: %s", simple, strings.Join(sorted, ", ")),
	}).WithContext(CtxSymbol, simple).WithContext(CtxCandidates, sorted)
}

// AmbiguousOverload reports tied overload candidates for one call.
func AmbiguousOverload(member string, signatures []string) error {
	return (&DomainError{
		Code:    CodeAmbiguousOverload,
		Message: fmt.Sprintf("ambiguous call to %s: %s", member, strings.Join(signatures, " | ")),
	}).WithContext(CtxSymbol, member).WithContext(CtxCandidates, append([]string(nil), signatures...))
}

// NoApplicableOverload reports a call no candidate accepts.
func NoApplicableOverload(member string, argTypes []string, signatures []string) error {
	return (&DomainError{
		Code:    CodeNoApplicableOverload,
		Message: fmt.Sprintf("no applicable overload for %s(%s)", member, strings.Join(argTypes, ", ")),
	}).WithContext(CtxSymbol, member).WithContext(CtxCandidates, append([]string(nil), signatures...))
}

// SecurityDenial reports a checkpoint refusal. Argument values are never included.
func SecurityDenial(operation, signature, reason string) error {
	msg := fmt.Sprintf("%s denied for %s", operation, signature)
	if reason != "" {
		msg += ": " + reason
	}
	return (&DomainError{
		Code:    CodeSecurityDenied,
		Message: msg,
	}).WithContext(CtxOperation, operation).WithContext(CtxSignature, signature)
}

// ClasspathMapping reports one classpath location that could not be mapped.
func ClasspathMapping(path string, err error) error {
	return (&DomainError{
		Code:    CodeClasspathMapping,
		Message: "unable to map classpath location",
		Err:     err,
	}).WithContext(CtxPath, path)
}

// ByteEmission reports invalid input to the byte emitter.
func ByteEmission(format string, args ...interface{}) error {
	return &DomainError{Code: CodeByteEmission, Message: fmt.Sprintf(format, args...)}
}
