package errors

import (
	"errors"
	"fmt"
)

type ErrorCode string

const (
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeValidationError  ErrorCode = "VALIDATION_ERROR"
	CodeConflict         ErrorCode = "CONFLICT"
	CodeInternal         ErrorCode = "INTERNAL_ERROR"
	CodeNotSupported     ErrorCode = "NOT_SUPPORTED"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"

	CodeDuplicateDeclaration ErrorCode = "DUPLICATE_DECLARATION"
	CodeAmbiguousName        ErrorCode = "AMBIGUOUS_NAME"
	CodeAmbiguousOverload    ErrorCode = "AMBIGUOUS_OVERLOAD"
	CodeNoApplicableOverload ErrorCode = "NO_APPLICABLE_OVERLOAD"
	CodeSecurityDenied       ErrorCode = "SECURITY_DENIED"
	CodeClasspathMapping     ErrorCode = "CLASSPATH_MAPPING"
	CodeByteEmission         ErrorCode = "BYTE_EMISSION"
	CodeFinalAssignment      ErrorCode = "FINAL_ASSIGNMENT"
	CodeTypeMismatch         ErrorCode = "TYPE_MISMATCH"
	CodeUnresolved           ErrorCode = "UNRESOLVED"
	CodeInvocation           ErrorCode = "INVOCATION"
)

type DomainError struct {
	Code    ErrorCode
	Message string
	Err     error
	Context map[string]interface{}
}

const (
	CtxPath       = "path"
	CtxOperation  = "operation"
	CtxSymbol     = "symbol"
	CtxType       = "type"
	CtxSignature  = "signature"
	CtxCandidates = "candidates"
	CtxPosition   = "position"
	CtxSource     = "source"
)

func (e *DomainError) WithContext(key string, value interface{}) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func (e *DomainError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Context) > 0 {
		msg += fmt.Sprintf(" %v", e.Context)
	}
	return msg
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

func New(code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg}
}

func Newf(code ErrorCode, format string, args ...interface{}) error {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(err error, code ErrorCode, msg string) error {
	return &DomainError{Code: code, Message: msg, Err: err}
}

// AddContext attaches key/value diagnostics, wrapping non-domain errors as internal.
func AddContext(err error, key string, value interface{}) error {
	var de *DomainError
	if errors.As(err, &de) {
		de.WithContext(key, value)
		return de
	}
	return &DomainError{
		Code:    CodeInternal,
		Message: "wrapped error",
		Err:     err,
		Context: map[string]interface{}{key: value},
	}
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code ErrorCode) bool {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Candidates returns the candidate list attached to an ambiguity error.
func Candidates(err error) []string {
	var de *DomainError
	if !errors.As(err, &de) || de.Context == nil {
		return nil
	}
	list, _ := de.Context[CtxCandidates].([]string)
	return append([]string(nil), list...)
}
