package attestation

import "fmt"

// ErrorType classifies attestation failures.
type ErrorType int

const (
	ErrorTypeInvalidKey ErrorType = iota + 1
	ErrorTypeInvalidSignature
	ErrorTypeSignatureMismatch
)

func (e ErrorType) String() string {
	switch e {
	case ErrorTypeInvalidKey:
		return "invalid_key"
	case ErrorTypeInvalidSignature:
		return "invalid_signature"
	case ErrorTypeSignatureMismatch:
		return "signature_mismatch"
	default:
		return "unknown"
	}
}

// Error is the attestation error type.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

var (
	ErrInvalidKey        = &Error{Type: ErrorTypeInvalidKey, Message: "invalid key"}
	ErrInvalidSignature  = &Error{Type: ErrorTypeInvalidSignature, Message: "malformed signature"}
	ErrSignatureMismatch = &Error{Type: ErrorTypeSignatureMismatch, Message: "signature does not match message"}
)

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("attestation %s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("attestation %s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Type == e.Type
}

func newError(t ErrorType, format string, args ...any) *Error {
	return &Error{Type: t, Message: fmt.Sprintf(format, args...)}
}

// WithCause returns a copy of e carrying cause.
func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.Cause = cause
	return &cp
}
