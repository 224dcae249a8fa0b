package engine

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nupi-ai/whisper-binding/internal/capability"
)

// silenceRMS is the level below which the reference runtime reports no speech.
const silenceRMS = 1e-3

// ReferenceRuntime produces deterministic output without invoking whisper.cpp.
// It is used when the native backend is not compiled in.
type ReferenceRuntime struct {
	log *slog.Logger
}

// NewReferenceRuntime returns a Runtime that runs on the CPU only and emits
// placeholder transcripts.
func NewReferenceRuntime(logger *slog.Logger) *ReferenceRuntime {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReferenceRuntime{log: logger.With("component", "engine.reference")}
}

func (r *ReferenceRuntime) Name() string { return "reference" }

func (r *ReferenceRuntime) Backends() capability.Set { return capability.Of(capability.CPU) }

func (r *ReferenceRuntime) SystemInfo() string { return "reference runtime (no native engine)" }

// Load opens the file to mirror the native init path; the contents are not parsed.
func (r *ReferenceRuntime) Load(path string, params LoadParams) (Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInitFailed, err)
	}
	f.Close()
	r.log.Debug("reference model loaded", "path", path, "backend", params.Backend.String())
	return &referenceModel{
		log:  r.log,
		name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
	}, nil
}

type referenceModel struct {
	log   *slog.Logger
	name  string
	freed bool
}

func (m *referenceModel) Free() { m.freed = true }

func (m *referenceModel) Full(samples []float32, params DecodeParams) (Output, error) {
	if m.freed {
		return Output{}, ErrCorrupted
	}
	lang := strings.TrimSpace(params.Language)
	if lang == "" || strings.EqualFold(lang, "auto") {
		lang = "en"
	}
	out := Output{Language: lang}
	if len(samples) == 0 || rms(samples) < silenceRMS {
		m.log.Debug("reference pass: silence", "samples", len(samples))
		return out, nil
	}

	duration := time.Duration(len(samples)) * time.Second / SampleRate
	out.Segments = []Segment{{
		Start:      0,
		End:        duration,
		Text:       fmt.Sprintf("[reference:%s] %d samples", m.name, len(samples)),
		Confidence: 0.42,
	}}
	m.log.Debug("reference pass", "samples", len(samples), "language", lang)
	return out, nil
}

func rms(samples []float32) float64 {
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
