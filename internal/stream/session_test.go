package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nupi-ai/whisper-binding/internal/binding"
	"github.com/nupi-ai/whisper-binding/internal/telemetry"
)

type scriptedInferencer struct {
	texts     []string
	err       error
	calls     int
	lengths   []int
	languages []string
}

func (s *scriptedInferencer) RunInference(ctx context.Context, _ *binding.Context, samples []float32, opts binding.InferenceOptions) (binding.TranscriptResult, error) {
	if err := ctx.Err(); err != nil {
		return binding.TranscriptResult{}, err
	}
	s.lengths = append(s.lengths, len(samples))
	s.languages = append(s.languages, opts.Language)
	if s.err != nil {
		return binding.TranscriptResult{}, s.err
	}
	text := ""
	if s.calls < len(s.texts) {
		text = s.texts[s.calls]
	}
	s.calls++
	return binding.TranscriptResult{Text: text, Confidence: 0.9, Elapsed: time.Millisecond}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pcmSeconds(seconds float64) []byte {
	return make([]byte, int(seconds*16000)*2)
}

func newTestSession(inf Inferencer, opts Options) *Session {
	opts.Logger = discardLogger()
	return New(inf, nil, opts)
}

func TestSessionWaitsForStep(t *testing.T) {
	inf := &scriptedInferencer{texts: []string{"hello"}}
	s := newTestSession(inf, Options{})

	results, err := s.Push(context.Background(), pcmSeconds(1), "")
	if err != nil || results != nil {
		t.Fatalf("expected buffering, got %v, %v", results, err)
	}
	if inf.calls != 0 {
		t.Fatalf("expected no inference before step")
	}

	results, err = s.Push(context.Background(), pcmSeconds(2), "")
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if len(results) != 1 || results[0].Text != "hello" || results[0].Final {
		t.Fatalf("unexpected results %+v", results)
	}
	if inf.lengths[0] != 3*16000 {
		t.Fatalf("expected 3 s window, got %d samples", inf.lengths[0])
	}
}

func TestSessionEmitsDeltasAndOverlap(t *testing.T) {
	inf := &scriptedInferencer{texts: []string{"hello", "hello world", "hello world"}}
	s := newTestSession(inf, Options{DefaultLanguage: "en"})
	ctx := context.Background()

	if _, err := s.Push(ctx, pcmSeconds(3), ""); err != nil {
		t.Fatalf("Push: %v", err)
	}
	results, err := s.Push(ctx, pcmSeconds(3), "")
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if len(results) != 1 || results[0].Text != "world" {
		t.Fatalf("unexpected delta %+v", results)
	}
	// Second window: 3 s previous + 3 s new, below the 10 s target.
	if inf.lengths[1] != 6*16000 {
		t.Fatalf("expected 6 s window, got %d samples", inf.lengths[1])
	}

	results, err = s.Push(ctx, pcmSeconds(3), "")
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if results != nil {
		t.Fatalf("expected no delta for unchanged hypothesis, got %+v", results)
	}
	if inf.lengths[2] != 9*16000 {
		t.Fatalf("expected 9 s window, got %d samples", inf.lengths[2])
	}
	for _, lang := range inf.languages {
		if lang != "en" {
			t.Fatalf("expected configured language, got %q", lang)
		}
	}
}

func TestSessionTargetWindowLimitsOverlap(t *testing.T) {
	inf := &scriptedInferencer{}
	s := newTestSession(inf, Options{Step: time.Second, TargetWindow: 2 * time.Second, MaxWindow: 4 * time.Second})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.Push(ctx, pcmSeconds(1), ""); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	want := []int{16000, 32000, 32000}
	for i, n := range want {
		if inf.lengths[i] != n {
			t.Fatalf("window %d: got %d samples, want %d", i, inf.lengths[i], n)
		}
	}

	if _, err := s.Push(ctx, pcmSeconds(6), ""); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if inf.lengths[3] != 4*16000 {
		t.Fatalf("expected window capped at 4 s, got %d samples", inf.lengths[3])
	}
}

func TestSessionFlush(t *testing.T) {
	inf := &scriptedInferencer{texts: []string{"hello", "hello world"}}
	recorder := telemetry.NewRecorder(discardLogger())
	metrics := recorder.StartStream("ctx", nil)
	s := newTestSession(inf, Options{Metrics: metrics})
	ctx := context.Background()

	if _, err := s.Push(ctx, pcmSeconds(3), "pl"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if _, err := s.Push(ctx, pcmSeconds(1), ""); err != nil {
		t.Fatalf("Push: %v", err)
	}

	results, err := s.Flush(ctx, "")
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(results) != 1 || !results[0].Final || results[0].Text != "hello world" {
		t.Fatalf("unexpected final results %+v", results)
	}
	if inf.languages[1] != "pl" {
		t.Fatalf("expected previous stream language, got %q", inf.languages[1])
	}
	metrics.Finish(nil)

	snapshot := recorder.Snapshot()
	if snapshot.TotalFlushes != 1 || snapshot.TotalFinalTranscripts != 1 || snapshot.TotalTranscripts != 2 {
		t.Fatalf("unexpected telemetry %+v", snapshot)
	}

	results, err = s.Flush(ctx, "")
	if err != nil || results != nil {
		t.Fatalf("expected empty flush after reset, got %v, %v", results, err)
	}
}

func TestSessionFlushReusesLastHypothesis(t *testing.T) {
	inf := &scriptedInferencer{texts: []string{"only once"}}
	s := newTestSession(inf, Options{})
	ctx := context.Background()

	if _, err := s.Push(ctx, pcmSeconds(3), ""); err != nil {
		t.Fatalf("Push: %v", err)
	}
	results, err := s.Flush(ctx, "")
	if err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if len(results) != 1 || results[0].Text != "only once" {
		t.Fatalf("unexpected results %+v", results)
	}
	if inf.calls != 1 {
		t.Fatalf("flush with no pending audio must not decode, calls=%d", inf.calls)
	}
}

func TestSessionPropagatesFailures(t *testing.T) {
	boom := errors.New("boom")
	inf := &scriptedInferencer{err: boom}
	s := newTestSession(inf, Options{})

	if _, err := s.Push(context.Background(), pcmSeconds(3), ""); !errors.Is(err, boom) {
		t.Fatalf("expected failure, got %v", err)
	}
}

func TestSessionFailuresBoundPendingAudio(t *testing.T) {
	inf := &scriptedInferencer{err: errors.New("boom")}
	s := newTestSession(inf, Options{Step: time.Second, TargetWindow: 2 * time.Second, MaxWindow: 2 * time.Second})

	for i := 0; i < 5; i++ {
		if _, err := s.Push(context.Background(), pcmSeconds(3), ""); err == nil {
			t.Fatalf("push %d: expected failure", i)
		}
	}
	if len(s.audio) != durationBytes(2*time.Second) {
		t.Fatalf("expected pending audio capped at 2 s, got %d bytes", len(s.audio))
	}

	// A dangling half sample stays aligned after trimming.
	if _, err := s.Push(context.Background(), append(pcmSeconds(1), 0x7f), ""); err == nil {
		t.Fatalf("expected failure")
	}
	if len(s.audio) != durationBytes(2*time.Second)-1 {
		t.Fatalf("expected aligned trim, got %d bytes", len(s.audio))
	}

	inf.err = nil
	inf.texts = []string{"recovered"}
	results, err := s.Push(context.Background(), pcmSeconds(1), "")
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if len(results) != 1 || results[0].Text != "recovered" {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestSessionCancelledContext(t *testing.T) {
	inf := &scriptedInferencer{}
	s := newTestSession(inf, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Push(ctx, pcmSeconds(3), ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if inf.calls != 0 {
		t.Fatalf("expected no inference")
	}
}
