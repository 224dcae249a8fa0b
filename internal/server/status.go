package server

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nupi-ai/whisper-binding/internal/binding"
)

var kindCodes = map[binding.Kind]codes.Code{
	binding.KindInvalidContext:     codes.NotFound,
	binding.KindUnsupportedBackend: codes.FailedPrecondition,
	binding.KindOutOfMemory:        codes.ResourceExhausted,
	binding.KindModelLoadFailed:    codes.InvalidArgument,
	binding.KindInvalidAudio:       codes.InvalidArgument,
	binding.KindInferenceFailed:    codes.Internal,
}

// toStatus converts an error into a gRPC status error.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if code, ok := kindCodes[binding.KindOf(err)]; ok {
		return status.Error(code, err.Error())
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

func unknownContext(id string) error {
	return status.Errorf(codes.NotFound, "unknown context %q", id)
}
