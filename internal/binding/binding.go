// Package binding exposes the native speech engine to Go callers through a
// small, capability-safe surface: create a context from a model file, run
// inference on it, destroy it exactly once. Every failure leaves the package
// as a *Error of a closed set of kinds.
package binding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/nupi-ai/whisper-binding/internal/buildinfo"
	"github.com/nupi-ai/whisper-binding/internal/capability"
	"github.com/nupi-ai/whisper-binding/internal/engine"
	"github.com/nupi-ai/whisper-binding/internal/models"
	"github.com/nupi-ai/whisper-binding/internal/telemetry"
)

const (
	opCreate  = "create_context"
	opRun     = "run_inference"
	opDestroy = "destroy_context"
)

// DefaultMemoryHeadroom multiplies the model size to estimate the memory a
// context needs once compute buffers and KV caches are allocated.
const DefaultMemoryHeadroom = 1.5

// Options configure a Binding.
type Options struct {
	Logger   *slog.Logger
	Recorder *telemetry.Recorder
	// MemoryProbe defaults to SystemMemory. A probe error skips the pre-check.
	MemoryProbe MemoryProbe
	// MemoryHeadroom defaults to DefaultMemoryHeadroom. Negative disables the pre-check.
	MemoryHeadroom float64
	// DefaultThreads defaults to DefaultThreads().
	DefaultThreads int
}

// Binding owns the lifecycle of engine contexts created through it.
type Binding struct {
	runtime  engine.Runtime
	backends capability.Set
	log      *slog.Logger
	recorder *telemetry.Recorder

	memory   MemoryProbe
	headroom float64
	threads  int

	nextID atomic.Uint64
	live   atomic.Int64
}

// New constructs a Binding over rt.
func New(rt engine.Runtime, opts Options) *Binding {
	if rt == nil {
		panic("binding: runtime must not be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	memory := opts.MemoryProbe
	if memory == nil {
		memory = SystemMemory
	}
	headroom := opts.MemoryHeadroom
	if headroom == 0 {
		headroom = DefaultMemoryHeadroom
	}
	threads := opts.DefaultThreads
	if threads <= 0 {
		threads = DefaultThreads()
	}
	return &Binding{
		runtime:  rt,
		backends: rt.Backends(),
		log:      logger.With("component", "binding", "runtime", rt.Name()),
		recorder: opts.Recorder,
		memory:   memory,
		headroom: headroom,
		threads:  threads,
	}
}

// VersionInfo returns the build version. It has no side effects.
func VersionInfo() buildinfo.VersionInfo {
	return buildinfo.Version()
}

// VersionInfo returns the build version.
func (b *Binding) VersionInfo() buildinfo.VersionInfo {
	return buildinfo.Version()
}

// Capabilities returns the backends the runtime was built with.
func (b *Binding) Capabilities() capability.Set {
	return b.backends
}

// RuntimeName identifies the underlying engine runtime.
func (b *Binding) RuntimeName() string {
	return b.runtime.Name()
}

// SystemInfo returns the engine's build/system description.
func (b *Binding) SystemInfo() string {
	return b.runtime.SystemInfo()
}

// LiveContexts returns the number of contexts created and not yet destroyed.
func (b *Binding) LiveContexts() int {
	return int(b.live.Load())
}

// CreateContext loads the model at modelPath on the configured backend.
// Failures are ModelLoadFailed, UnsupportedBackend or OutOfMemory.
func (b *Binding) CreateContext(modelPath string, cfg BackendConfig) (*Context, error) {
	backend, err := b.backends.Select(cfg.Backend)
	if err != nil {
		return nil, b.fail(newError(KindUnsupportedBackend, opCreate,
			fmt.Sprintf("backend %s is not available", cfg.Backend), err))
	}

	handle, err := models.Inspect(modelPath)
	if err != nil {
		return nil, b.fail(newError(KindModelLoadFailed, opCreate, "invalid model artefact", err))
	}

	if err := b.checkMemory(handle); err != nil {
		return nil, b.fail(err)
	}

	threads := cfg.Threads
	if threads <= 0 {
		threads = b.threads
	}

	c := &Context{
		id:      b.nextID.Add(1),
		model:   handle,
		backend: backend,
		threads: threads,
	}

	start := time.Now()
	native, err := b.runtime.Load(handle.Path(), engine.LoadParams{
		Backend:        backend,
		FlashAttention: cfg.FlashAttention,
		GPUDevice:      cfg.GPUDevice,
	})
	if err != nil {
		return nil, b.fail(translateLoadError(err, handle))
	}
	if native == nil {
		return nil, b.fail(newError(KindModelLoadFailed, opCreate,
			fmt.Sprintf("engine returned no context for %s", handle.Name()), nil))
	}

	c.native = native
	c.created = time.Now()
	c.state.Store(int32(stateLive))
	b.live.Add(1)
	b.recorder.ContextCreated(backend.String())

	b.log.Info("context created",
		"context", c.id,
		"model", handle.Path(),
		"format", handle.Format(),
		"backend", backend.String(),
		"threads", threads,
		"load_ms", time.Since(start).Milliseconds(),
	)
	return c, nil
}

// RunInference decodes 16 kHz mono samples on a live context. It blocks the
// calling goroutine for the native call. Failures are InvalidContext,
// InvalidAudio, OutOfMemory or InferenceFailed.
func (b *Binding) RunInference(ctx context.Context, c *Context, samples []float32, opts InferenceOptions) (TranscriptResult, error) {
	if c == nil {
		return TranscriptResult{}, b.fail(newError(KindInvalidContext, opRun, "nil context", nil))
	}
	if !c.Live() {
		return TranscriptResult{}, b.fail(newError(KindInvalidContext, opRun,
			fmt.Sprintf("context %d is %s", c.id, c.stateName()), nil))
	}
	if err := validateSamples(samples); err != nil {
		return TranscriptResult{}, b.fail(newError(KindInvalidAudio, opRun, err.Error(), nil))
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return TranscriptResult{}, b.fail(newError(KindInferenceFailed, opRun, "request cancelled", err))
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Destroy may have won the race while this call waited for the lock.
	if !c.Live() {
		return TranscriptResult{}, b.fail(newError(KindInvalidContext, opRun,
			fmt.Sprintf("context %d is %s", c.id, c.stateName()), nil))
	}

	params := opts.decodeParams(c.threads)
	start := time.Now()
	out, err := c.native.Full(samples, params)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, engine.ErrCorrupted) {
			b.log.Error("native state corrupted; aborting", "context", c.id, "error", err)
			panic(fmt.Sprintf("binding: context %d: %v", c.id, err))
		}
		return TranscriptResult{}, b.fail(translateRunError(err))
	}

	result := newTranscriptResult(out, len(samples), elapsed, c.backend, params.Language)
	b.recorder.InferenceCompleted(len(samples), elapsed)
	b.log.Debug("inference completed",
		"context", c.id,
		"samples", len(samples),
		"segments", len(result.Segments),
		"language", result.Language,
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return result, nil
}

// DestroyContext releases the native resources of c. The first call returns
// nil; every later call returns InvalidContext. Release happens exactly once.
func (b *Binding) DestroyContext(c *Context) error {
	if c == nil {
		return b.fail(newError(KindInvalidContext, opDestroy, "nil context", nil))
	}
	if !c.state.CompareAndSwap(int32(stateLive), int32(stateDestroyed)) {
		return b.fail(newError(KindInvalidContext, opDestroy,
			fmt.Sprintf("context %d is %s", c.id, c.stateName()), nil))
	}

	c.mu.Lock()
	native := c.native
	c.native = nil
	if native != nil {
		native.Free()
	}
	c.mu.Unlock()

	b.live.Add(-1)
	b.recorder.ContextDestroyed()
	b.log.Info("context destroyed", "context", c.id, "lifetime", time.Since(c.created).Round(time.Millisecond))
	return nil
}

func (b *Binding) checkMemory(handle models.Handle) *Error {
	if b.headroom < 0 {
		return nil
	}
	available, err := b.memory()
	if err != nil {
		b.log.Warn("memory probe failed; skipping pre-check", "error", err)
		return nil
	}
	required := uint64(math.Ceil(float64(handle.Size()) * b.headroom))
	if available < required {
		return newError(KindOutOfMemory, opCreate,
			fmt.Sprintf("model %s needs ~%d bytes, %d available", handle.Name(), required, available), nil)
	}
	return nil
}

func (b *Binding) fail(err *Error) *Error {
	b.recorder.Failure(err.Op, string(err.Kind))
	if err.Kind == KindInvalidContext || err.Kind == KindInvalidAudio {
		b.log.Debug("operation rejected", "op", err.Op, "kind", err.Kind, "error", err)
	} else {
		b.log.Warn("operation failed", "op", err.Op, "kind", err.Kind, "error", err)
	}
	return err
}

func translateLoadError(err error, handle models.Handle) *Error {
	if errors.Is(err, engine.ErrStateAlloc) {
		return newError(KindOutOfMemory, opCreate, "engine could not allocate model buffers", err)
	}
	return newError(KindModelLoadFailed, opCreate, fmt.Sprintf("engine rejected %s", handle.Name()), err)
}

func translateRunError(err error) *Error {
	if errors.Is(err, engine.ErrStateAlloc) {
		return newError(KindOutOfMemory, opRun, "engine could not allocate decoder state", err)
	}
	var status *engine.StatusError
	if errors.As(err, &status) {
		return newError(KindInferenceFailed, opRun, fmt.Sprintf("native status %d", status.Code), err)
	}
	return newError(KindInferenceFailed, opRun, "decoding failed", err)
}

func validateSamples(samples []float32) error {
	if len(samples) == 0 {
		return errors.New("no audio samples")
	}
	for i, s := range samples {
		v := float64(s)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("sample %d is not finite", i)
		}
		if v > 1 || v < -1 {
			return fmt.Errorf("sample %d out of range [-1, 1]: %v", i, s)
		}
	}
	return nil
}
