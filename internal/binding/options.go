package binding

import (
	"math"
	"strings"
	"time"

	"github.com/nupi-ai/whisper-binding/internal/capability"
	"github.com/nupi-ai/whisper-binding/internal/engine"
)

// BackendConfig selects how a model is placed on hardware.
type BackendConfig struct {
	// Backend is the requested backend; capability.Auto picks the preferred compiled-in one.
	Backend capability.Backend
	// Threads is the default decoder thread count. Zero means physical cores.
	Threads        int
	FlashAttention bool
	GPUDevice      int
}

// InferenceOptions tune a single RunInference call.
type InferenceOptions struct {
	// Language is an ISO 639-1 code or "auto". Empty means auto.
	Language    string
	Translate   bool
	Temperature float32
	Timestamps  bool
	Prompt      string
	// Threads overrides the context default when positive.
	Threads int
}

// LanguageAuto asks the engine to detect the spoken language.
const LanguageAuto = "auto"

func (o InferenceOptions) decodeParams(defaultThreads int) engine.DecodeParams {
	lang := strings.ToLower(strings.TrimSpace(o.Language))
	if lang == "" {
		lang = LanguageAuto
	}
	temp := o.Temperature
	if temp < 0 || math.IsNaN(float64(temp)) {
		temp = 0
	} else if temp > 1 {
		temp = 1
	}
	threads := o.Threads
	if threads <= 0 {
		threads = defaultThreads
	}
	return engine.DecodeParams{
		Language:      lang,
		Translate:     o.Translate,
		Temperature:   temp,
		Timestamps:    o.Timestamps,
		InitialPrompt: strings.TrimSpace(o.Prompt),
		Threads:       threads,
	}
}

// Segment is one decoded span of text.
type Segment = engine.Segment

// TranscriptResult is the outcome of a successful RunInference call.
type TranscriptResult struct {
	Text       string
	Segments   []Segment
	Language   string
	Confidence float32
	// AudioDuration is the length of the input at the engine sample rate.
	AudioDuration time.Duration
	Elapsed       time.Duration
	Backend       capability.Backend
}

// Empty reports whether the engine produced no text.
func (r TranscriptResult) Empty() bool { return r.Text == "" }

// RealTimeFactor is elapsed time divided by audio duration.
func (r TranscriptResult) RealTimeFactor() float64 {
	if r.AudioDuration <= 0 {
		return 0
	}
	return r.Elapsed.Seconds() / r.AudioDuration.Seconds()
}

// blankMarkers are placeholders whisper emits for non-speech input.
var blankMarkers = map[string]struct{}{
	"[BLANK_AUDIO]": {},
	"[SILENCE]":     {},
	"(silence)":     {},
}

func newTranscriptResult(out engine.Output, samples int, elapsed time.Duration, backend capability.Backend, requestedLang string) TranscriptResult {
	result := TranscriptResult{
		Language:      out.Language,
		AudioDuration: time.Duration(samples) * time.Second / engine.SampleRate,
		Elapsed:       elapsed,
		Backend:       backend,
	}
	if result.Language == "" && requestedLang != LanguageAuto {
		result.Language = requestedLang
	}

	var (
		parts   []string
		confSum float32
	)
	for _, seg := range out.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if _, blank := blankMarkers[text]; blank {
			continue
		}
		seg.Text = text
		result.Segments = append(result.Segments, seg)
		parts = append(parts, text)
		confSum += seg.Confidence
	}
	if len(result.Segments) > 0 {
		result.Confidence = confSum / float32(len(result.Segments))
	}
	result.Text = strings.TrimSpace(strings.Join(parts, " "))
	return result
}
