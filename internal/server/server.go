// Package server hosts the binding over gRPC. Clients create contexts, run
// one-shot inference or stream PCM audio, and destroy contexts by id.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/nupi-ai/whisper-binding/internal/binding"
	"github.com/nupi-ai/whisper-binding/internal/buildinfo"
	"github.com/nupi-ai/whisper-binding/internal/capability"
	"github.com/nupi-ai/whisper-binding/internal/config"
	"github.com/nupi-ai/whisper-binding/internal/models"
	"github.com/nupi-ai/whisper-binding/internal/stream"
	"github.com/nupi-ai/whisper-binding/internal/telemetry"
)

const (
	verifyCacheSize = 32
	verifyCacheTTL  = time.Hour
)

// Server implements BindingServer on top of a binding.Binding.
type Server struct {
	cfg      config.Config
	log      *slog.Logger
	binding  *binding.Binding
	models   *models.Verifier
	contexts *Registry
	metrics  *telemetry.Recorder
}

// New returns a new Server instance. The model registry resolves
// model_variant requests; an empty registry is fine when clients send paths.
func New(cfg config.Config, logger *slog.Logger, b *binding.Binding, registry models.Registry, metrics *telemetry.Recorder) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if b == nil {
		panic("server: binding must not be nil")
	}
	if metrics == nil {
		metrics = telemetry.NewRecorder(logger)
	}
	return &Server{
		cfg: cfg,
		log: logger.With(
			"component", "server",
			"runtime", b.RuntimeName(),
		),
		binding:  b,
		models:   models.NewVerifier(registry, verifyCacheSize, verifyCacheTTL),
		contexts: NewRegistry(),
		metrics:  metrics,
	}
}

// Contexts exposes the live context registry.
func (s *Server) Contexts() *Registry {
	return s.contexts
}

// Close destroys every context still held by the registry.
func (s *Server) Close() error {
	var errs []error
	for id, c := range s.contexts.Drain() {
		if err := s.binding.DestroyContext(c); err != nil {
			errs = append(errs, fmt.Errorf("context %s: %w", id, err))
			continue
		}
		s.log.Info("context released on shutdown", "context_id", id)
	}
	return errors.Join(errs...)
}

func (s *Server) GetVersionInfo(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	v := s.binding.VersionInfo()
	return newStruct(map[string]any{
		"number":      v.Number,
		"string":      v.String,
		"name":        buildinfo.Info.Name,
		"runtime":     s.binding.RuntimeName(),
		"system_info": s.binding.SystemInfo(),
	})
}

func (s *Server) GetCapabilities(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	caps := s.binding.Capabilities()
	backends := make([]any, 0)
	for _, name := range caps.Strings() {
		backends = append(backends, name)
	}
	preferred := ""
	if b, ok := caps.Preferred(); ok {
		preferred = b.String()
	}
	return newStruct(map[string]any{
		"backends":  backends,
		"preferred": preferred,
	})
}

func (s *Server) CreateContext(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()

	backend := s.cfg.BackendValue()
	if name := fields["backend"].GetStringValue(); name != "" {
		parsed, err := capability.ParseBackend(name)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		backend = parsed
	}

	path, err := s.resolveModel(fields["model_path"].GetStringValue(), fields["model_variant"].GetStringValue())
	if err != nil {
		return nil, err
	}

	cfg := binding.BackendConfig{
		Backend:        backend,
		Threads:        s.cfg.ThreadCount(),
		FlashAttention: s.cfg.FlashAttention,
		GPUDevice:      s.cfg.GPUDevice,
	}
	if v, ok := fields["threads"]; ok {
		threads, err := nonNegativeInt("threads", v)
		if err != nil {
			return nil, err
		}
		cfg.Threads = threads
	}
	if v, ok := fields["flash_attention"]; ok {
		cfg.FlashAttention = v.GetBoolValue()
	}
	if v, ok := fields["gpu_device"]; ok {
		device, err := nonNegativeInt("gpu_device", v)
		if err != nil {
			return nil, err
		}
		cfg.GPUDevice = device
	}

	c, err := s.binding.CreateContext(path, cfg)
	if err != nil {
		return nil, toStatus(err)
	}
	id := s.contexts.Add(c)
	s.log.Info("context registered", "context_id", id, "model", c.Model().Name(), "backend", c.Backend().String())

	return newStruct(map[string]any{
		"context_id": id,
		"backend":    c.Backend().String(),
		"model":      c.Model().Path(),
		"format":     string(c.Model().Format()),
		"size_bytes": float64(c.Model().Size()),
		"created_at": c.CreatedAt().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) resolveModel(path, variant string) (string, error) {
	if path != "" {
		return path, nil
	}
	override := ""
	if variant == "" {
		variant = s.cfg.ModelVariant
		override = s.cfg.ModelPath
	}
	resolved, err := s.models.Registry().Resolve(s.cfg.ModelsDir(), variant, override)
	if err != nil {
		return "", status.Error(codes.InvalidArgument, err.Error())
	}
	// A missing file is reported by the binding as a model load failure.
	if override == "" {
		if err := s.models.Verify(variant, resolved); err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", status.Error(codes.InvalidArgument, err.Error())
		}
	}
	return resolved, nil
}

func (s *Server) RunInference(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error) {
	c, id, err := s.contextFromMetadata(ctx)
	if err != nil {
		return nil, err
	}
	samples, err := stream.DecodeFloat32LE(req.GetValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	opts, err := s.inferenceOptions(ctx)
	if err != nil {
		return nil, err
	}

	result, err := s.binding.RunInference(ctx, c, samples, opts)
	if err != nil {
		return nil, toStatus(err)
	}
	s.log.Debug("inference served", "context_id", id, "samples", len(samples), "rtf", result.RealTimeFactor())
	return transcriptStruct(result, opts.Language)
}

func (s *Server) DestroyContext(_ context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	id := req.GetValue()
	c, ok := s.contexts.Remove(id)
	if !ok {
		return nil, unknownContext(id)
	}
	if err := s.binding.DestroyContext(c); err != nil {
		return nil, toStatus(err)
	}
	s.log.Info("context unregistered", "context_id", id)
	return &emptypb.Empty{}, nil
}

// StreamTranscription consumes PCM16LE chunks and emits transcript deltas.
// Closing the send side flushes the session and produces the final transcript.
func (s *Server) StreamTranscription(srv StreamTranscriptionServer) (err error) {
	ctx := srv.Context()
	c, id, err := s.contextFromMetadata(ctx)
	if err != nil {
		return err
	}
	opts, err := s.inferenceOptions(ctx)
	if err != nil {
		return err
	}
	requested := metadataValue(ctx, MetadataLanguage)

	streamMetrics := s.metrics.StartStream(id, buildinfo.TranscriptMetadata(c.Backend().String(), resolveLanguage(requested, s.cfg.Language)))
	defer func() {
		streamMetrics.Finish(err)
	}()

	session := stream.New(s.binding, c, stream.Options{
		Logger:          s.log,
		Metrics:         streamMetrics,
		DefaultLanguage: s.cfg.Language,
		Inference:       opts,
	})

	s.log.Info("stream opened", "context_id", id)
	for {
		req, err := srv.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			s.log.Error("failed to receive request", "error", err)
			return err
		}
		if len(req.GetValue()) == 0 {
			continue
		}
		results, err := session.Push(ctx, req.GetValue(), requested)
		if err != nil {
			s.log.Error("stream segment failure", "error", err)
			return toStatus(err)
		}
		if err := s.sendResults(srv, c, results); err != nil {
			return err
		}
	}

	results, err := session.Flush(ctx, requested)
	if err != nil {
		s.log.Error("stream flush failure", "error", err)
		return toStatus(err)
	}
	if err := s.sendResults(srv, c, results); err != nil {
		return err
	}
	s.log.Info("stream flushed", "context_id", id)
	return nil
}

func (s *Server) sendResults(srv StreamTranscriptionServer, c *binding.Context, results []stream.Result) error {
	for _, res := range results {
		msg, err := newStruct(map[string]any{
			"text":       res.Text,
			"confidence": float64(res.Confidence),
			"final":      res.Final,
			"language":   res.Language,
			"metadata":   stringMap(buildinfo.TranscriptMetadata(c.Backend().String(), res.Language)),
		})
		if err != nil {
			return err
		}
		if err := srv.Send(msg); err != nil {
			s.log.Error("failed to send transcript", "error", err)
			return err
		}
	}
	return nil
}

func (s *Server) contextFromMetadata(ctx context.Context) (*binding.Context, string, error) {
	id := metadataValue(ctx, MetadataContextID)
	if id == "" {
		return nil, "", status.Errorf(codes.InvalidArgument, "missing %s metadata", MetadataContextID)
	}
	c, ok := s.contexts.Get(id)
	if !ok {
		return nil, id, unknownContext(id)
	}
	return c, id, nil
}

func (s *Server) inferenceOptions(ctx context.Context) (binding.InferenceOptions, error) {
	opts := binding.InferenceOptions{
		Language:   resolveLanguage(metadataValue(ctx, MetadataLanguage), s.cfg.Language),
		Prompt:     metadataValue(ctx, MetadataPrompt),
		Timestamps: true,
	}
	if raw := metadataValue(ctx, MetadataTranslate); raw != "" {
		translate, err := strconv.ParseBool(raw)
		if err != nil {
			return opts, status.Errorf(codes.InvalidArgument, "%s: %v", MetadataTranslate, err)
		}
		opts.Translate = translate
	}
	return opts, nil
}

func transcriptStruct(result binding.TranscriptResult, requestedLang string) (*structpb.Struct, error) {
	segments := make([]any, 0, len(result.Segments))
	for _, seg := range result.Segments {
		segments = append(segments, map[string]any{
			"start_ms":   float64(seg.Start.Milliseconds()),
			"end_ms":     float64(seg.End.Milliseconds()),
			"text":       seg.Text,
			"confidence": float64(seg.Confidence),
		})
	}
	language := result.Language
	if language == "" {
		language = requestedLang
	}
	return newStruct(map[string]any{
		"text":       result.Text,
		"language":   language,
		"confidence": float64(result.Confidence),
		"segments":   segments,
		"audio_ms":   float64(result.AudioDuration.Milliseconds()),
		"elapsed_ms": float64(result.Elapsed.Milliseconds()),
		"backend":    result.Backend.String(),
		"metadata":   stringMap(buildinfo.TranscriptMetadata(result.Backend.String(), language)),
	})
}

// nonNegativeInt reads a whole, non-negative number from a request field.
func nonNegativeInt(name string, v *structpb.Value) (int, error) {
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a number", name)
	}
	f := n.NumberValue
	if math.IsNaN(f) || f < 0 || f != math.Trunc(f) || f > math.MaxInt32 {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be a non-negative integer, got %v", name, f)
	}
	return int(f), nil
}

func stringMap(in map[string]string) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return msg, nil
}
