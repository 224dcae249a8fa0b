package main

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nupi-ai/whisper-binding/internal/binding"
	"github.com/nupi-ai/whisper-binding/internal/engine"
	"github.com/nupi-ai/whisper-binding/internal/models"
)

func TestRunUpdatesRegistry(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "ggml-tiny.bin")
	if err := os.WriteFile(modelPath, append(models.MagicGGML(), 1, 2, 3, 4), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	registryPath := filepath.Join(dir, "registry", "models.yaml")

	var out bytes.Buffer
	args := []string{"-model", modelPath, "-registry", registryPath, "-smoke", "-reference", "-backend", "cpu"}
	if err := run(args, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "format: ggml") || !strings.Contains(out.String(), `text=""`) {
		t.Fatalf("unexpected output:\n%s", out.String())
	}

	reg, err := models.LoadRegistryFile(registryPath)
	if err != nil {
		t.Fatalf("LoadRegistryFile: %v", err)
	}
	entry, ok := reg.Variants["ggml-tiny"]
	if !ok {
		t.Fatalf("variant not written: %v", reg.Names())
	}
	if entry.Filename != "ggml-tiny.bin" || entry.SizeBytes != 8 || len(entry.SHA256) != 64 {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if err := reg.Verify("ggml-tiny", modelPath); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestRunRequiresModel(t *testing.T) {
	if err := run(nil, &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error without -model")
	}
}

func TestReleaseJoinsDestroyFailure(t *testing.T) {
	modelPath := filepath.Join(t.TempDir(), "ggml-tiny.bin")
	if err := os.WriteFile(modelPath, append(models.MagicGGML(), 1, 2, 3, 4), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := binding.New(engine.NewReferenceRuntime(logger), binding.Options{Logger: logger, MemoryHeadroom: -1})
	c, err := b.CreateContext(modelPath, binding.BackendConfig{})
	if err != nil {
		t.Fatalf("CreateContext: %v", err)
	}

	var released error
	release(b, c, &released)
	if released != nil {
		t.Fatalf("first release: %v", released)
	}

	decodeErr := errors.New("decode failed")
	released = decodeErr
	release(b, c, &released)
	if !errors.Is(released, decodeErr) {
		t.Fatalf("original error lost: %v", released)
	}
	if !errors.Is(released, binding.ErrInvalidContext) {
		t.Fatalf("destroy failure not reported: %v", released)
	}
}
