package binding

import (
	"errors"
	"fmt"
)

// Kind classifies binding failures. The set is closed.
type Kind string

const (
	KindModelLoadFailed    Kind = "model_load_failed"
	KindUnsupportedBackend Kind = "unsupported_backend"
	KindOutOfMemory        Kind = "out_of_memory"
	KindInvalidContext     Kind = "invalid_context"
	KindInferenceFailed    Kind = "inference_failed"
	KindInvalidAudio       Kind = "invalid_audio"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrModelLoadFailed    = &Error{Kind: KindModelLoadFailed}
	ErrUnsupportedBackend = &Error{Kind: KindUnsupportedBackend}
	ErrOutOfMemory        = &Error{Kind: KindOutOfMemory}
	ErrInvalidContext     = &Error{Kind: KindInvalidContext}
	ErrInferenceFailed    = &Error{Kind: KindInferenceFailed}
	ErrInvalidAudio       = &Error{Kind: KindInvalidAudio}
)

// Error is the only error type returned by binding operations.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches kind-only sentinels so callers can write errors.Is(err, ErrInvalidContext).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Op != "" || t.Message != "" || t.Cause != nil {
		return e == t
	}
	return e.Kind == t.Kind
}

func newError(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// IsKind checks whether any error in the chain matches the provided kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// KindOf returns the kind of the first *Error in the chain, or "" when there is none.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return ""
}

// Retryable reports whether repeating the operation may succeed without the
// caller changing its inputs.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindUnsupportedBackend, KindOutOfMemory, KindInferenceFailed:
		return true
	default:
		return false
	}
}
