// Package engine is the minimal façade over the whisper.cpp contract that the
// binding layer relies on: load a model with backend parameters, run one full
// decoding pass on 16 kHz mono float samples, read the segments back, free.
package engine

import (
	"time"

	"github.com/nupi-ai/whisper-binding/internal/capability"
)

// SampleRate is the sample rate whisper expects for input audio.
const SampleRate = 16000

// Runtime is a process-wide engine library.
type Runtime interface {
	// Name identifies the runtime in logs and telemetry.
	Name() string
	// Backends reports the acceleration backends this runtime was built with.
	Backends() capability.Set
	// Load initialises a model from path. The returned Model owns native memory
	// until Free is called.
	Load(path string, params LoadParams) (Model, error)
	// SystemInfo returns the engine's build/system description.
	SystemInfo() string
}

// Model is one loaded model instance. Implementations are not safe for
// concurrent use.
type Model interface {
	// Full runs a complete decoding pass over samples using a fresh decoder state.
	Full(samples []float32, params DecodeParams) (Output, error)
	// Free releases native resources. Calling Free twice is a programming error.
	Free()
}

// LoadParams selects how the model is placed on hardware.
type LoadParams struct {
	Backend        capability.Backend
	FlashAttention bool
	GPUDevice      int
}

// DecodeParams configures a single decoding pass.
type DecodeParams struct {
	// Language is an ISO 639-1 code; empty or "auto" enables detection.
	Language      string
	Translate     bool
	Temperature   float32
	Timestamps    bool
	InitialPrompt string
	Threads       int
}

// Segment is one decoded span of text.
type Segment struct {
	Start      time.Duration
	End        time.Duration
	Text       string
	Confidence float32
}

// Output is the result of a decoding pass.
type Output struct {
	Segments []Segment
	// Language is the language the engine decoded with (detected when auto).
	Language string
}
