package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/nupi-ai/whisper-binding/internal/binding"
	"github.com/nupi-ai/whisper-binding/internal/capability"
)

const (
	// DefaultListenAddr is used when no explicit address is configured.
	DefaultListenAddr     = "127.0.0.1:50051"
	DefaultModel          = "base"
	DefaultLanguage       = "auto"
	DefaultLogLevel       = "info"
	DefaultDataDir        = "data"
	DefaultBackend        = "auto"
	DefaultMemoryHeadroom = binding.DefaultMemoryHeadroom
)

// Config captures bootstrap configuration assembled from defaults, an optional
// .env file, an optional YAML file, a JSON payload (`WHISPERBIND_CONFIG`) and
// individual environment variables, in that order of precedence.
type Config struct {
	ListenAddr   string
	LogLevel     string
	LogFile      string
	DataDir      string
	ModelVariant string
	ModelPath    string
	RegistryPath string
	Backend      string
	Language     string
	// Threads is nil when the binding should pick physical cores.
	Threads            *int
	FlashAttention     bool
	GPUDevice          int
	UseReferenceEngine bool
	// MemoryHeadroom multiplies model size for the memory pre-check. Negative disables it.
	MemoryHeadroom float64
}

// Validate applies defaults, checks required fields, and rejects out-of-range
// values.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("config: listen address is required")
	}
	if c.ModelVariant == "" {
		c.ModelVariant = DefaultModel
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	c.Language = strings.ToLower(c.Language)
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.DataDir == "" {
		c.DataDir = DefaultDataDir
	}
	if c.RegistryPath == "" {
		c.RegistryPath = filepath.Join(c.DataDir, "models.yaml")
	}
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}
	if _, err := capability.ParseBackend(c.Backend); err != nil {
		return fmt.Errorf("config: backend: %w", err)
	}
	if c.Threads != nil {
		if *c.Threads < 0 {
			return fmt.Errorf("config: threads must be >= 0, got %d", *c.Threads)
		}
		if *c.Threads == 0 {
			c.Threads = nil
		}
	}
	if c.GPUDevice < 0 {
		return fmt.Errorf("config: gpu_device must be >= 0, got %d", c.GPUDevice)
	}
	switch {
	case c.MemoryHeadroom == 0:
		c.MemoryHeadroom = DefaultMemoryHeadroom
	case c.MemoryHeadroom > 0 && c.MemoryHeadroom < 1:
		return fmt.Errorf("config: memory_headroom must be >= 1 or negative to disable, got %v", c.MemoryHeadroom)
	}
	return nil
}

// BackendValue returns the parsed backend. Call after Validate.
func (c Config) BackendValue() capability.Backend {
	b, _ := capability.ParseBackend(c.Backend)
	return b
}

// ModelsDir is where registry variants are stored.
func (c Config) ModelsDir() string {
	return filepath.Join(c.DataDir, "models")
}

// ThreadCount returns the configured thread count, or 0 for automatic.
func (c Config) ThreadCount() int {
	if c.Threads == nil {
		return 0
	}
	return *c.Threads
}
