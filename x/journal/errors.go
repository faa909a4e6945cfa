package journal

import "fmt"

// ErrorType classifies journal decoding failures.
type ErrorType int

const (
	ErrorTypeTooShort ErrorType = iota + 1
	ErrorTypeMalformed
)

func (e ErrorType) String() string {
	switch e {
	case ErrorTypeTooShort:
		return "too_short"
	case ErrorTypeMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// DecodeError is returned by Decode.
type DecodeError struct {
	Type    ErrorType
	Message string
	Offset  int
}

var (
	ErrTooShort  = &DecodeError{Type: ErrorTypeTooShort, Message: "journal too short"}
	ErrMalformed = &DecodeError{Type: ErrorTypeMalformed, Message: "journal malformed"}
)

func (e *DecodeError) Error() string {
	if e.Offset > 0 {
		return fmt.Sprintf("journal %s: %s (offset %d)", e.Type, e.Message, e.Offset)
	}
	return fmt.Sprintf("journal %s: %s", e.Type, e.Message)
}

// Is matches any DecodeError of the same type.
func (e *DecodeError) Is(target error) bool {
	t, ok := target.(*DecodeError)
	return ok && t.Type == e.Type
}

func newDecodeError(t ErrorType, offset int, format string, args ...any) *DecodeError {
	return &DecodeError{Type: t, Offset: offset, Message: fmt.Sprintf(format, args...)}
}
