// Package models validates model artefacts before they reach the native engine
// and resolves named variants through a YAML registry.
package models

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Format identifies the on-disk container of a model artefact.
type Format string

const (
	FormatGGML Format = "ggml"
	FormatGGUF Format = "gguf"
)

var (
	// ErrNotFound indicates the model path does not exist.
	ErrNotFound = errors.New("models: artefact not found")
	// ErrNotRegular indicates the path is a directory or special file.
	ErrNotRegular = errors.New("models: artefact is not a regular file")
	// ErrUnknownFormat indicates the artefact header matches no supported container.
	ErrUnknownFormat = errors.New("models: unrecognised artefact format")
)

var (
	// whisper.cpp writes the ggml magic 0x67676d6c as a little-endian uint32.
	magicGGML = []byte{0x6c, 0x6d, 0x67, 0x67}
	magicGGUF = []byte("GGUF")
)

// Handle identifies the model artefact backing an engine context. It is
// immutable once returned by Inspect.
type Handle struct {
	path    string
	format  Format
	size    int64
	modTime time.Time
}

func (h Handle) Path() string       { return h.path }
func (h Handle) Format() Format     { return h.format }
func (h Handle) Size() int64        { return h.size }
func (h Handle) ModTime() time.Time { return h.modTime }
func (h Handle) Name() string       { return filepath.Base(h.path) }

func (h Handle) String() string {
	return fmt.Sprintf("%s (%s, %d bytes)", h.path, h.format, h.size)
}

// Inspect checks that path resolves to a readable model artefact with a
// supported header and returns its handle.
func Inspect(path string) (Handle, error) {
	if path == "" {
		return Handle{}, fmt.Errorf("%w: empty path", ErrNotFound)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Handle{}, fmt.Errorf("models: resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Handle{}, fmt.Errorf("%w: %s", ErrNotFound, abs)
		}
		return Handle{}, fmt.Errorf("models: stat %s: %w", abs, err)
	}
	if !info.Mode().IsRegular() {
		return Handle{}, fmt.Errorf("%w: %s", ErrNotRegular, abs)
	}

	f, err := os.Open(abs)
	if err != nil {
		return Handle{}, fmt.Errorf("models: open %s: %w", abs, err)
	}
	defer f.Close()

	format, err := sniff(f)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %s: %v", ErrUnknownFormat, abs, err)
	}

	return Handle{
		path:    abs,
		format:  format,
		size:    info.Size(),
		modTime: info.ModTime(),
	}, nil
}

func sniff(r io.Reader) (Format, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(r, header); err != nil {
		return "", fmt.Errorf("read header: %w", err)
	}
	switch {
	case bytes.Equal(header, magicGGML):
		return FormatGGML, nil
	case bytes.Equal(header, magicGGUF):
		return FormatGGUF, nil
	}
	return "", fmt.Errorf("magic %x", header)
}

// MagicGGML returns the header bytes of a ggml model file. Tests use it to
// write minimal artefacts.
func MagicGGML() []byte {
	return append([]byte(nil), magicGGML...)
}
