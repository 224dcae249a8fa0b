package models

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownVariant is returned when a variant is not listed in the registry.
var ErrUnknownVariant = errors.New("models: unknown variant")

// ErrChecksumMismatch indicates the artefact on disk differs from the registry entry.
var ErrChecksumMismatch = errors.New("models: checksum mismatch")

// Variant describes one registered model file.
type Variant struct {
	DisplayName string `yaml:"display_name,omitempty"`
	Filename    string `yaml:"filename"`
	SHA256      string `yaml:"sha256,omitempty"`
	SizeBytes   int64  `yaml:"size_bytes,omitempty"`
}

// Registry maps variant names to model files under a models directory.
type Registry struct {
	Variants map[string]Variant `yaml:"variants"`
}

// LoadRegistry decodes a YAML registry.
func LoadRegistry(r io.Reader) (Registry, error) {
	var reg Registry
	if err := yaml.NewDecoder(r).Decode(&reg); err != nil {
		if errors.Is(err, io.EOF) {
			return Registry{Variants: map[string]Variant{}}, nil
		}
		return Registry{}, fmt.Errorf("models: decode registry: %w", err)
	}
	if reg.Variants == nil {
		reg.Variants = map[string]Variant{}
	}
	for name, v := range reg.Variants {
		if strings.TrimSpace(v.Filename) == "" {
			return Registry{}, fmt.Errorf("models: variant %q has no filename", name)
		}
	}
	return reg, nil
}

// LoadRegistryFile reads a registry from disk. A missing file yields an empty registry.
func LoadRegistryFile(path string) (Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Registry{Variants: map[string]Variant{}}, nil
		}
		return Registry{}, fmt.Errorf("models: open registry: %w", err)
	}
	defer f.Close()
	return LoadRegistry(f)
}

// Encode writes the registry as YAML.
func (r Registry) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("models: encode registry: %w", err)
	}
	return enc.Close()
}

// Names returns the registered variant names in sorted order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r.Variants))
	for name := range r.Variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the model path for variant inside modelsDir. A non-empty
// override takes precedence and is returned as-is.
func (r Registry) Resolve(modelsDir, variant, override string) (string, error) {
	if trimmed := strings.TrimSpace(override); trimmed != "" {
		return trimmed, nil
	}
	v, ok := r.Variants[variant]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownVariant, variant)
	}
	return filepath.Join(modelsDir, v.Filename), nil
}

// Verify compares the artefact at path with the registry entry for variant.
// Fields left empty in the registry are not checked.
func (r Registry) Verify(variant, path string) error {
	v, ok := r.Variants[variant]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownVariant, variant)
	}
	if v.SHA256 == "" && v.SizeBytes == 0 {
		return nil
	}
	sum, size, err := Digest(path)
	if err != nil {
		return err
	}
	if v.SizeBytes > 0 && v.SizeBytes != size {
		return fmt.Errorf("%w: %s size %d, want %d", ErrChecksumMismatch, path, size, v.SizeBytes)
	}
	if v.SHA256 != "" && !strings.EqualFold(v.SHA256, sum) {
		return fmt.Errorf("%w: %s sha256 %s, want %s", ErrChecksumMismatch, path, sum, v.SHA256)
	}
	return nil
}

// Digest returns the hex SHA-256 and size of the file at path.
func Digest(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("models: open %s: %w", path, err)
	}
	defer f.Close()

	hasher := sha256.New()
	written, err := io.Copy(hasher, f)
	if err != nil {
		return "", 0, fmt.Errorf("models: read %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), written, nil
}
