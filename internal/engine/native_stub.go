//go:build !whispercpp

package engine

import "log/slog"

// NativeAvailable reports whether the native whisper backend is compiled in.
func NativeAvailable() bool { return false }

// NewNativeRuntime returns an error when the native backend is not built.
func NewNativeRuntime(*slog.Logger) (Runtime, error) {
	return nil, ErrNativeEngineUnavailable
}
