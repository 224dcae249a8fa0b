package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNativeEngineUnavailable indicates that the whisper.cpp backend is not compiled in.
	ErrNativeEngineUnavailable = errors.New("engine: native backend unavailable")
	// ErrInitFailed is returned when the engine cannot initialise a context from a model file.
	ErrInitFailed = errors.New("engine: model initialisation failed")
	// ErrStateAlloc is returned when the engine cannot allocate decoder state buffers.
	ErrStateAlloc = errors.New("engine: decoder state allocation failed")
	// ErrCorrupted reports that native memory is no longer trustworthy, for
	// example a call on a context that has already been freed.
	ErrCorrupted = errors.New("engine: native state corrupted")
)

// StatusError carries a non-zero status code returned by a native call.
type StatusError struct {
	Call string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("engine: %s returned status %d", e.Call, e.Code)
}
