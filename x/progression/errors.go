package progression

import "fmt"

// ErrorType represents the ways a progression operation can be refused.
type ErrorType int

const (
	ErrorTypeRoundLocked ErrorType = iota + 1
	ErrorTypeUnknownRound
	ErrorTypeReplayedNonce
	ErrorTypeOutOfOrderTrial
	ErrorTypeInvalidAttestation
	ErrorTypeSolutionRejected
	ErrorTypeTrialAlreadyCompleted
	ErrorTypeUnauthorized
	ErrorTypeNotInitialized
	ErrorTypeAlreadyInitialized
	ErrorTypeStaleRound
	ErrorTypeInvalidArgument
	ErrorTypeInternal
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrorTypeRoundLocked:
		return "round_locked"
	case ErrorTypeUnknownRound:
		return "unknown_round"
	case ErrorTypeReplayedNonce:
		return "replayed_nonce"
	case ErrorTypeOutOfOrderTrial:
		return "out_of_order_trial"
	case ErrorTypeInvalidAttestation:
		return "invalid_attestation"
	case ErrorTypeSolutionRejected:
		return "solution_rejected"
	case ErrorTypeTrialAlreadyCompleted:
		return "trial_already_completed"
	case ErrorTypeUnauthorized:
		return "unauthorized"
	case ErrorTypeNotInitialized:
		return "not_initialized"
	case ErrorTypeAlreadyInitialized:
		return "already_initialized"
	case ErrorTypeStaleRound:
		return "stale_round"
	case ErrorTypeInvalidArgument:
		return "invalid_argument"
	case ErrorTypeInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is a progression failure. Every refusal leaves state untouched.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
}

var (
	ErrRoundLocked           = &Error{Type: ErrorTypeRoundLocked, Message: "round is locked"}
	ErrUnknownRound          = &Error{Type: ErrorTypeUnknownRound, Message: "unknown round"}
	ErrReplayedNonce         = &Error{Type: ErrorTypeReplayedNonce, Message: "nonce already used"}
	ErrOutOfOrderTrial       = &Error{Type: ErrorTypeOutOfOrderTrial, Message: "trial submitted out of order"}
	ErrInvalidAttestation    = &Error{Type: ErrorTypeInvalidAttestation, Message: "attestation is not authentic"}
	ErrSolutionRejected      = &Error{Type: ErrorTypeSolutionRejected, Message: "solution rejected"}
	ErrTrialAlreadyCompleted = &Error{Type: ErrorTypeTrialAlreadyCompleted, Message: "trial already completed"}
	ErrUnauthorized          = &Error{Type: ErrorTypeUnauthorized, Message: "caller is not authorized"}
	ErrNotInitialized        = &Error{Type: ErrorTypeNotInitialized, Message: "progression is not initialized"}
	ErrAlreadyInitialized    = &Error{Type: ErrorTypeAlreadyInitialized, Message: "progression is already initialized"}
	ErrStaleRound            = &Error{Type: ErrorTypeStaleRound, Message: "round has already moved"}
	ErrInvalidArgument       = &Error{Type: ErrorTypeInvalidArgument, Message: "invalid argument"}
	ErrInternal              = &Error{Type: ErrorTypeInternal, Message: "internal error"}
)

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
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
