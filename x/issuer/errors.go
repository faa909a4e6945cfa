package issuer

import "fmt"

// ErrorType represents the ways issuing an attestation can fail.
type ErrorType int

const (
	ErrorTypeInvalidRequest ErrorType = iota + 1
	ErrorTypeIncorrectSolution
	ErrorTypeProofFailed
	ErrorTypeInternal
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrorTypeInvalidRequest:
		return "invalid_request"
	case ErrorTypeIncorrectSolution:
		return "incorrect_solution"
	case ErrorTypeProofFailed:
		return "proof_failed"
	case ErrorTypeInternal:
		return "internal"
	default:
		return "unknown"
	}
}

type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

var (
	ErrInvalidRequest    = &Error{Type: ErrorTypeInvalidRequest, Message: "invalid request"}
	ErrIncorrectSolution = &Error{Type: ErrorTypeIncorrectSolution, Message: "incorrect solution"}
	ErrProofFailed       = &Error{Type: ErrorTypeProofFailed, Message: "proof generation or verification failed"}
	ErrInternal          = &Error{Type: ErrorTypeInternal, Message: "internal error"}
)

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("issuer %s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("issuer %s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Type == e.Type
}

func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.Cause = cause
	return &cp
}

func (e *Error) WithMessage(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}
