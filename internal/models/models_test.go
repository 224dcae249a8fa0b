package models

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	return path
}

func TestInspectAcceptsKnownFormats(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name   string
		data   []byte
		format Format
	}{
		{"ggml", append(MagicGGML(), 0, 0, 0, 0), FormatGGML},
		{"gguf", []byte("GGUF\x03\x00\x00\x00"), FormatGGUF},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, dir, tc.name+".bin", tc.data)
			h, err := Inspect(path)
			if err != nil {
				t.Fatalf("Inspect error: %v", err)
			}
			if h.Format() != tc.format {
				t.Fatalf("format = %s, want %s", h.Format(), tc.format)
			}
			if h.Size() != int64(len(tc.data)) {
				t.Fatalf("size = %d, want %d", h.Size(), len(tc.data))
			}
			if !filepath.IsAbs(h.Path()) {
				t.Fatalf("expected absolute path, got %s", h.Path())
			}
			if h.Name() != tc.name+".bin" {
				t.Fatalf("unexpected name %q", h.Name())
			}
		})
	}
}

func TestInspectRejectsBadArtefacts(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		path string
		want error
	}{
		{"empty path", "", ErrNotFound},
		{"missing", filepath.Join(dir, "missing.bin"), ErrNotFound},
		{"directory", dir, ErrNotRegular},
		{"bad magic", writeFile(t, dir, "bad.bin", []byte("nope-not-a-model")), ErrUnknownFormat},
		{"truncated", writeFile(t, dir, "short.bin", []byte("GG")), ErrUnknownFormat},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Inspect(tc.path); !errors.Is(err, tc.want) {
				t.Fatalf("Inspect(%q) error = %v, want %v", tc.path, err, tc.want)
			}
		})
	}
}
