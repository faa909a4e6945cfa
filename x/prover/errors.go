package prover

import "fmt"

// ErrorType represents the categories of proof engine errors.
type ErrorType int

const (
	ErrorTypeInvalidRequest ErrorType = iota + 1
	ErrorTypeGenerationFailed
	ErrorTypeFingerprintMismatch
	ErrorTypeProofInvalid
	ErrorTypeSolutionRejected
	ErrorTypeSetup
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrorTypeInvalidRequest:
		return "invalid_request"
	case ErrorTypeGenerationFailed:
		return "generation_failed"
	case ErrorTypeFingerprintMismatch:
		return "fingerprint_mismatch"
	case ErrorTypeProofInvalid:
		return "proof_invalid"
	case ErrorTypeSolutionRejected:
		return "solution_rejected"
	case ErrorTypeSetup:
		return "setup"
	default:
		return "unknown"
	}
}

// Error is the structured proof engine error. Errors compare equal under
// errors.Is when their types match.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

var (
	ErrInvalidRequest        = &Error{Type: ErrorTypeInvalidRequest, Message: "invalid proof request"}
	ErrProofGenerationFailed = &Error{Type: ErrorTypeGenerationFailed, Message: "proof generation failed"}
	ErrFingerprintMismatch   = &Error{Type: ErrorTypeFingerprintMismatch, Message: "program fingerprint mismatch"}
	ErrProofInvalid          = &Error{Type: ErrorTypeProofInvalid, Message: "proof does not verify"}
	ErrSolutionRejected      = &Error{Type: ErrorTypeSolutionRejected, Message: "proof verifies but solution was rejected"}
	ErrSetup                 = &Error{Type: ErrorTypeSetup, Message: "circuit setup failed"}
)

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("prover %s error: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("prover %s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Type == e.Type
}

// WithCause returns a copy of e wrapping cause.
func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.Cause = cause
	return &cp
}

// WithMessage returns a copy of e with a formatted message.
func (e *Error) WithMessage(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}
