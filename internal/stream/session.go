// Package stream runs windowed transcription over a single engine context:
// audio is accumulated, decoded every step with overlap from the previous
// window, and reported as text deltas until the stream is flushed.
package stream

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nupi-ai/whisper-binding/internal/binding"
	"github.com/nupi-ai/whisper-binding/internal/engine"
	"github.com/nupi-ai/whisper-binding/internal/telemetry"
)

const (
	DefaultStep         = 3 * time.Second
	DefaultTargetWindow = 10 * time.Second
	DefaultMaxWindow    = 30 * time.Second
)

// Inferencer runs a decoding pass on a context. *binding.Binding satisfies it.
type Inferencer interface {
	RunInference(ctx context.Context, c *binding.Context, samples []float32, opts binding.InferenceOptions) (binding.TranscriptResult, error)
}

// Options configure a Session. Zero durations take the defaults above.
type Options struct {
	Logger          *slog.Logger
	Metrics         *telemetry.StreamMetrics
	DefaultLanguage string
	Inference       binding.InferenceOptions
	Step            time.Duration
	TargetWindow    time.Duration
	MaxWindow       time.Duration
}

// Result is a transcript emitted by a Session.
type Result struct {
	Text       string
	Confidence float32
	Language   string
	Final      bool
	Elapsed    time.Duration
}

// Session is safe for concurrent use, but Push and Flush calls are serialised.
type Session struct {
	inferencer Inferencer
	context    *binding.Context
	log        *slog.Logger
	metrics    *telemetry.StreamMetrics
	inference  binding.InferenceOptions

	defaultLang string
	stepBytes   int
	targetBytes int
	maxBytes    int

	inferMu sync.Mutex

	mu         sync.Mutex
	audio      []byte
	lastWindow []byte
	lastText   string
	lastConf   float32
	language   string
}

// New creates a Session decoding on c.
func New(inf Inferencer, c *binding.Context, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	step := opts.Step
	if step <= 0 {
		step = DefaultStep
	}
	target := opts.TargetWindow
	if target <= 0 {
		target = DefaultTargetWindow
	}
	maxWindow := opts.MaxWindow
	if maxWindow <= 0 {
		maxWindow = DefaultMaxWindow
	}
	if target < step {
		target = step
	}
	if maxWindow < target {
		maxWindow = target
	}
	return &Session{
		inferencer:  inf,
		context:     c,
		log:         logger.With("component", "stream.Session"),
		metrics:     opts.Metrics,
		inference:   opts.Inference,
		defaultLang: opts.DefaultLanguage,
		stepBytes:   durationBytes(step),
		targetBytes: durationBytes(target),
		maxBytes:    durationBytes(maxWindow),
	}
}

func durationBytes(d time.Duration) int {
	samples := int(d * engine.SampleRate / time.Second)
	return samples * bytesPerPCM16
}

// Push appends PCM16LE mono audio at 16 kHz. Once a full step is buffered it
// decodes a window and returns the newly recognised text, if any.
func (s *Session) Push(ctx context.Context, pcm []byte, language string) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.metrics.RecordSegment(len(pcm))

	s.inferMu.Lock()
	defer s.inferMu.Unlock()

	s.mu.Lock()
	s.audio = append(s.audio, pcm...)
	if len(s.audio) < s.stepBytes {
		s.mu.Unlock()
		return nil, nil
	}
	lang := normaliseLanguage(language, s.language, s.defaultLang)
	window := s.windowLocked()
	previous := s.lastText
	s.mu.Unlock()

	result, err := s.run(ctx, window, lang)
	if err != nil {
		s.trimAudio()
		if isCancellation(err) {
			return nil, nil
		}
		s.log.Warn("stream inference failed", "error", err, "audio_len", len(window), "language", lang)
		return nil, err
	}

	s.mu.Lock()
	s.language = lang
	// Keep a dangling half sample for the next push.
	s.audio = append([]byte(nil), s.audio[len(s.audio)-len(s.audio)%bytesPerPCM16:]...)
	s.lastWindow = window
	delta := diffTranscript(previous, result.Text)
	s.lastText = result.Text
	s.lastConf = result.Confidence
	s.mu.Unlock()

	if delta == "" {
		return nil, nil
	}
	s.metrics.RecordTranscript(delta, false)
	return []Result{{
		Text:       delta,
		Confidence: result.Confidence,
		Language:   languageOf(result, lang),
		Elapsed:    result.Elapsed,
	}}, nil
}

// Flush decodes whatever audio remains, returns the final transcript and
// resets the session.
func (s *Session) Flush(ctx context.Context, language string) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.metrics.RecordFlush()

	s.inferMu.Lock()
	defer s.inferMu.Unlock()

	s.mu.Lock()
	lang := normaliseLanguage(language, s.language, s.defaultLang)
	buffer := evenPrefix(append([]byte(nil), s.audio...))
	previous := s.lastText
	confidence := s.lastConf
	s.mu.Unlock()

	combined := previous
	var elapsed time.Duration
	resultLang := lang
	if len(buffer) > 0 {
		result, err := s.run(ctx, buffer, lang)
		if err != nil {
			s.reset()
			if isCancellation(err) {
				return nil, nil
			}
			s.log.Warn("stream flush inference failed", "error", err, "audio_len", len(buffer), "language", lang)
			return nil, err
		}
		combined = result.Text
		confidence = result.Confidence
		elapsed = result.Elapsed
		resultLang = languageOf(result, lang)
	}

	s.reset()

	finalText := strings.TrimSpace(combined)
	if finalText == "" {
		return nil, nil
	}
	s.metrics.RecordTranscript(finalText, true)
	return []Result{{
		Text:       finalText,
		Confidence: confidence,
		Language:   resultLang,
		Final:      true,
		Elapsed:    elapsed,
	}}, nil
}

// windowLocked builds the decode window: enough tail of the previous window to
// reach the target length, then all pending audio, capped at the max window.
func (s *Session) windowLocked() []byte {
	var buffer []byte
	if len(s.lastWindow) > 0 {
		overlap := s.targetBytes - len(s.audio)
		if overlap < 0 {
			overlap = 0
		}
		if overlap > len(s.lastWindow) {
			overlap = len(s.lastWindow)
		}
		tail := s.lastWindow[len(s.lastWindow)-overlap:]
		buffer = make([]byte, 0, len(tail)+len(s.audio))
		buffer = append(buffer, tail...)
		buffer = append(buffer, s.audio...)
	} else {
		buffer = append([]byte(nil), s.audio...)
	}
	buffer = evenPrefix(buffer)
	if len(buffer) > s.maxBytes {
		buffer = buffer[len(buffer)-s.maxBytes:]
	}
	return buffer
}

func (s *Session) run(ctx context.Context, pcm []byte, lang string) (binding.TranscriptResult, error) {
	opts := s.inference
	opts.Language = lang
	result, err := s.inferencer.RunInference(ctx, s.context, PCM16ToFloat32(pcm), opts)
	if err != nil {
		return binding.TranscriptResult{}, err
	}
	s.metrics.RecordInferenceDuration(result.Elapsed)
	return result, nil
}

// trimAudio keeps at most one max window of pending audio, aligned to whole samples.
func (s *Session) trimAudio() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.audio) <= s.maxBytes {
		return
	}
	start := len(s.audio) - s.maxBytes
	start += start % bytesPerPCM16
	s.audio = append([]byte(nil), s.audio[start:]...)
}

func (s *Session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = nil
	s.lastWindow = nil
	s.lastText = ""
	s.lastConf = 0
	s.language = ""
}

func evenPrefix(b []byte) []byte {
	return b[:len(b)-len(b)%bytesPerPCM16]
}

func languageOf(result binding.TranscriptResult, requested string) string {
	if result.Language != "" {
		return result.Language
	}
	return requested
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
