package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/nupi-ai/whisper-binding/internal/binding"
	"github.com/nupi-ai/whisper-binding/internal/buildinfo"
	"github.com/nupi-ai/whisper-binding/internal/config"
	"github.com/nupi-ai/whisper-binding/internal/engine"
	"github.com/nupi-ai/whisper-binding/internal/logging"
	"github.com/nupi-ai/whisper-binding/internal/models"
	"github.com/nupi-ai/whisper-binding/internal/server"
	"github.com/nupi-ai/whisper-binding/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Loader{}.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, logCloser := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	defer logCloser.Close()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("binding host terminated with error", "error", err)
		logCloser.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	version := buildinfo.Version()
	logger.Info("starting binding host",
		"binary", buildinfo.Info.BinaryName,
		"description", buildinfo.Info.Description,
		"version", version.String,
		"listen_addr", cfg.ListenAddr,
		"model_variant", cfg.ModelVariant,
		"backend", cfg.Backend,
		"language", cfg.Language,
		"data_dir", cfg.DataDir,
	)

	recorder := telemetry.NewRecorder(logger)

	runtime, rtErr := engine.Default(cfg.UseReferenceEngine, logger)
	if rtErr != nil {
		logger.Warn("engine initialised with warnings", "error", rtErr)
	}

	b := binding.New(runtime, binding.Options{
		Logger:         logger,
		Recorder:       recorder,
		MemoryHeadroom: cfg.MemoryHeadroom,
	})
	logger.Info("binding ready",
		"runtime", b.RuntimeName(),
		"backends", b.Capabilities().String(),
		"system_info", b.SystemInfo(),
	)

	registry, err := models.LoadRegistryFile(cfg.RegistryPath)
	if err != nil {
		return err
	}
	logger.Info("model registry loaded", "path", cfg.RegistryPath, "variants", registry.Names())

	srv := server.New(cfg, logger, b, registry, recorder)
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Warn("failed to release contexts", "error", err)
		}
	}()

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}
	defer lis.Close()

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthgrpc.RegisterHealthServer(grpcServer, healthServer)

	healthServer.SetServingStatus("", healthgrpc.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(server.ServiceName, healthgrpc.HealthCheckResponse_NOT_SERVING)

	server.Register(grpcServer, srv)

	healthServer.SetServingStatus("", healthgrpc.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(server.ServiceName, healthgrpc.HealthCheckResponse_SERVING)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutdown requested, stopping gRPC server")
		healthServer.SetServingStatus(server.ServiceName, healthgrpc.HealthCheckResponse_NOT_SERVING)
		healthServer.SetServingStatus("", healthgrpc.HealthCheckResponse_NOT_SERVING)

		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()

		select {
		case <-stopped:
		case <-time.After(shutdownTimeout):
			logger.Warn("graceful stop timed out, forcing stop")
			grpcServer.Stop()
		}
		return nil
	})

	if err := group.Wait(); err != nil {
		return err
	}

	snapshot := recorder.Snapshot()
	logger.Info("telemetry totals",
		"contexts_created", snapshot.ContextsCreated,
		"contexts_destroyed", snapshot.ContextsDestroyed,
		"inferences", snapshot.Inferences,
		"inference_ms", snapshot.InferenceTime.Milliseconds(),
		"failure_kinds", snapshot.FailureKinds(),
		"total_streams", snapshot.TotalStreams,
		"total_final_transcripts", snapshot.TotalFinalTranscripts,
		"total_bytes", snapshot.TotalBytes,
	)

	logger.Info("binding host stopped")
	return nil
}
