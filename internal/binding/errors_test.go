package binding

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("disk")
	err := newError(KindModelLoadFailed, opCreate, "invalid model artefact", cause)
	if got, want := err.Error(), "[model_load_failed:create_context] invalid model artefact: disk"; got != want {
		t.Fatalf("unexpected message %q, want %q", got, want)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to unwrap")
	}

	plain := newError(KindInvalidContext, opDestroy, "context 1 is destroyed", nil)
	if got, want := plain.Error(), "[invalid_context:destroy_context] context 1 is destroyed"; got != want {
		t.Fatalf("unexpected message %q, want %q", got, want)
	}
}

func TestSentinelMatching(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", newError(KindOutOfMemory, opRun, "state", nil))
	if !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("expected ErrOutOfMemory match")
	}
	if errors.Is(err, ErrInvalidContext) {
		t.Fatalf("unexpected ErrInvalidContext match")
	}
	a := newError(KindOutOfMemory, opRun, "a", nil)
	b := newError(KindOutOfMemory, opRun, "b", nil)
	if errors.Is(a, b) {
		t.Fatalf("non-sentinel errors must only match themselves")
	}
}

func TestRetryable(t *testing.T) {
	cases := map[Kind]bool{
		KindModelLoadFailed:    false,
		KindUnsupportedBackend: true,
		KindOutOfMemory:        true,
		KindInvalidContext:     false,
		KindInferenceFailed:    true,
		KindInvalidAudio:       false,
	}
	for kind, want := range cases {
		if got := Retryable(newError(kind, "op", "msg", nil)); got != want {
			t.Fatalf("Retryable(%s) = %v, want %v", kind, got, want)
		}
	}
	if Retryable(errors.New("plain")) {
		t.Fatalf("plain errors are not retryable")
	}
	if KindOf(nil) != "" {
		t.Fatalf("nil error has no kind")
	}
}
