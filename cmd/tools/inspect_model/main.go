package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nupi-ai/whisper-binding/internal/binding"
	"github.com/nupi-ai/whisper-binding/internal/capability"
	"github.com/nupi-ai/whisper-binding/internal/engine"
	"github.com/nupi-ai/whisper-binding/internal/models"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "inspect_model: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("inspect_model", flag.ContinueOnError)
	var (
		modelPath    = fs.String("model", "", "path to a ggml/gguf model file")
		registryPath = fs.String("registry", "", "registry YAML to create or update (optional)")
		variant      = fs.String("variant", "", "variant name for the registry entry (default: file name without extension)")
		display      = fs.String("display", "", "display name for the registry entry")
		smoke        = fs.Bool("smoke", false, "load the model and decode one second of silence")
		backend      = fs.String("backend", "auto", "backend used for -smoke")
		reference    = fs.Bool("reference", false, "use the reference runtime for -smoke")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*modelPath) == "" {
		return fmt.Errorf("-model is required")
	}

	handle, err := models.Inspect(*modelPath)
	if err != nil {
		return err
	}
	sum, size, err := models.Digest(handle.Path())
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "path:   %s\nformat: %s\nsize:   %d\nsha256: %s\n", handle.Path(), handle.Format(), size, sum)

	if *registryPath != "" {
		name := *variant
		if name == "" {
			name = strings.TrimSuffix(handle.Name(), filepath.Ext(handle.Name()))
		}
		if err := updateRegistry(*registryPath, name, models.Variant{
			DisplayName: *display,
			Filename:    handle.Name(),
			SHA256:      sum,
			SizeBytes:   size,
		}); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "registry: %s updated (%s)\n", *registryPath, name)
	}

	if *smoke {
		return smokeTest(handle, *backend, *reference, stdout)
	}
	return nil
}

func updateRegistry(path, name string, entry models.Variant) error {
	reg, err := models.LoadRegistryFile(path)
	if err != nil {
		return err
	}
	reg.Variants[name] = entry

	var buf bytes.Buffer
	if err := reg.Encode(&buf); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create registry dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	return os.Rename(tmp, path)
}

func smokeTest(handle models.Handle, backendName string, reference bool, stdout io.Writer) (err error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	backend, err := capability.ParseBackend(backendName)
	if err != nil {
		return err
	}
	runtime, err := engine.Default(reference, logger)
	if err != nil {
		fmt.Fprintf(stdout, "warning: %v\n", err)
	}

	b := binding.New(runtime, binding.Options{Logger: logger})
	c, err := b.CreateContext(handle.Path(), binding.BackendConfig{Backend: backend})
	if err != nil {
		return err
	}
	defer release(b, c, &err)

	result, err := b.RunInference(context.Background(), c, make([]float32, engine.SampleRate), binding.InferenceOptions{})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "smoke:  runtime=%s backend=%s elapsed=%s text=%q\n",
		b.RuntimeName(), c.Backend(), result.Elapsed, result.Text)
	return nil
}

// release destroys c and joins any failure into *err.
func release(b *binding.Binding, c *binding.Context, err *error) {
	if destroyErr := b.DestroyContext(c); destroyErr != nil {
		*err = errors.Join(*err, fmt.Errorf("destroy context: %w", destroyErr))
	}
}
