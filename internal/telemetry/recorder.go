package telemetry

import (
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"
)

// Recorder tracks binding-level telemetry: context lifecycle, inference passes,
// failures by kind, and streaming sessions layered on top.
type Recorder struct {
	log *slog.Logger

	contextsCreated   atomic.Uint64
	contextsDestroyed atomic.Uint64
	liveContexts      atomic.Int64
	inferences        atomic.Uint64
	inferenceSamples  atomic.Uint64
	inferenceNanos    atomic.Int64

	failuresMu sync.Mutex
	failures   map[string]uint64

	totalStreams          atomic.Uint64
	activeStreams         atomic.Int64
	totalSegments         atomic.Uint64
	totalBytes            atomic.Uint64
	totalTranscripts      atomic.Uint64
	totalFinalTranscripts atomic.Uint64
	totalFlushes          atomic.Uint64
}

// Snapshot captures cumulative metrics recorded so far.
type Snapshot struct {
	ContextsCreated   uint64
	ContextsDestroyed uint64
	LiveContexts      int64
	Inferences        uint64
	InferenceSamples  uint64
	InferenceTime     time.Duration
	Failures          map[string]uint64

	TotalStreams          uint64
	ActiveStreams         int64
	TotalSegments         uint64
	TotalBytes            uint64
	TotalTranscripts      uint64
	TotalFinalTranscripts uint64
	TotalFlushes          uint64
}

// NewRecorder constructs a Recorder using the provided logger.
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		log:      logger.With("component", "telemetry.Recorder"),
		failures: make(map[string]uint64),
	}
}

// Snapshot returns an immutable view of the recorder totals.
func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	r.failuresMu.Lock()
	failures := make(map[string]uint64, len(r.failures))
	for k, v := range r.failures {
		failures[k] = v
	}
	r.failuresMu.Unlock()

	return Snapshot{
		ContextsCreated:   r.contextsCreated.Load(),
		ContextsDestroyed: r.contextsDestroyed.Load(),
		LiveContexts:      r.liveContexts.Load(),
		Inferences:        r.inferences.Load(),
		InferenceSamples:  r.inferenceSamples.Load(),
		InferenceTime:     time.Duration(r.inferenceNanos.Load()),
		Failures:          failures,

		TotalStreams:          r.totalStreams.Load(),
		ActiveStreams:         r.activeStreams.Load(),
		TotalSegments:         r.totalSegments.Load(),
		TotalBytes:            r.totalBytes.Load(),
		TotalTranscripts:      r.totalTranscripts.Load(),
		TotalFinalTranscripts: r.totalFinalTranscripts.Load(),
		TotalFlushes:          r.totalFlushes.Load(),
	}
}

// ContextCreated records a context entering the live state.
func (r *Recorder) ContextCreated(backend string) {
	if r == nil {
		return
	}
	r.contextsCreated.Add(1)
	live := r.liveContexts.Add(1)
	r.log.Debug("context created", "backend", backend, "live", live)
}

// ContextDestroyed records a context released exactly once.
func (r *Recorder) ContextDestroyed() {
	if r == nil {
		return
	}
	r.contextsDestroyed.Add(1)
	live := r.liveContexts.Add(-1)
	r.log.Debug("context destroyed", "live", live)
}

// InferenceCompleted records a successful native pass.
func (r *Recorder) InferenceCompleted(samples int, elapsed time.Duration) {
	if r == nil || samples < 0 {
		return
	}
	r.inferences.Add(1)
	r.inferenceSamples.Add(uint64(samples))
	r.inferenceNanos.Add(int64(elapsed))
}

// Failure records an error returned to a caller, keyed by error kind.
func (r *Recorder) Failure(op, kind string) {
	if r == nil {
		return
	}
	r.failuresMu.Lock()
	r.failures[kind]++
	r.failuresMu.Unlock()
	r.log.Debug("operation failed", "op", op, "kind", kind)
}

// FailureKinds lists recorded failure kinds in sorted order.
func (s Snapshot) FailureKinds() []string {
	kinds := make([]string, 0, len(s.Failures))
	for k := range s.Failures {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// StreamMetrics accumulates statistics for a single transcription stream.
type StreamMetrics struct {
	recorder *Recorder
	log      *slog.Logger

	contextID string
	metadata  map[string]string

	started          time.Time
	segments         int
	bytes            int
	transcripts      int
	finalTranscripts int
	flushes          int
	inferenceTime    time.Duration
	closed           atomic.Bool
}

// StartStream initialises a StreamMetrics instance bound to the recorder.
func (r *Recorder) StartStream(contextID string, metadata map[string]string) *StreamMetrics {
	if r == nil {
		return nil
	}

	clonedMetadata := cloneMetadata(metadata)

	streamLogger := r.log.With("context_id", contextID)
	if len(clonedMetadata) > 0 {
		streamLogger = streamLogger.With("metadata", clonedMetadata)
	}

	r.totalStreams.Add(1)
	r.activeStreams.Add(1)

	return &StreamMetrics{
		recorder: r,
		log:      streamLogger,

		contextID: contextID,
		metadata:  clonedMetadata,

		started: time.Now(),
	}
}

// RecordSegment updates counters for an incoming audio chunk.
func (s *StreamMetrics) RecordSegment(size int) {
	if s == nil || size <= 0 {
		return
	}
	s.segments++
	s.bytes += size
	s.recorder.totalSegments.Add(1)
	s.recorder.totalBytes.Add(uint64(size))

	s.log.Debug("segment received", "segment", s.segments, "bytes", size)
}

// RecordTranscript stores statistics for an emitted transcript.
func (s *StreamMetrics) RecordTranscript(text string, final bool) {
	if s == nil {
		return
	}
	s.transcripts++
	if final {
		s.finalTranscripts++
		s.recorder.totalFinalTranscripts.Add(1)
	}
	s.recorder.totalTranscripts.Add(1)

	s.log.Debug("transcript emitted",
		"final", final,
		"chars", len(text),
		"runes", utf8.RuneCountInString(text),
	)
}

// RecordInferenceDuration accumulates time spent inside the binding for this stream.
func (s *StreamMetrics) RecordInferenceDuration(d time.Duration) {
	if s == nil {
		return
	}
	s.inferenceTime += d
}

// RecordFlush increments counters for a stream flush event.
func (s *StreamMetrics) RecordFlush() {
	if s == nil {
		return
	}
	s.flushes++
	s.recorder.totalFlushes.Add(1)
}

// Finish logs a summary and updates active stream counters.
func (s *StreamMetrics) Finish(err error) {
	if s == nil {
		return
	}
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	defer s.recorder.activeStreams.Add(-1)

	duration := time.Since(s.started)
	args := []any{
		"duration_ms", duration.Milliseconds(),
		"inference_ms", s.inferenceTime.Milliseconds(),
		"segments", s.segments,
		"bytes", s.bytes,
		"transcripts", s.transcripts,
		"final_transcripts", s.finalTranscripts,
		"flushes", s.flushes,
	}

	if err != nil {
		s.log.Error("stream completed with error", append(args, "error", err)...)
		return
	}

	s.log.Info("stream completed", args...)
}

func cloneMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
