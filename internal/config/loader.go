package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix     = "WHISPERBIND_"
	envJSON       = envPrefix + "CONFIG"
	envConfigFile = envPrefix + "CONFIG_FILE"
	envDotEnvFile = envPrefix + "ENV_FILE"

	defaultDotEnvFile = ".env"
)

// Loader loads configuration from the environment. Tests can override Lookup
// to inject deterministic maps and ReadFile to serve config files from memory.
type Loader struct {
	Lookup   func(string) (string, bool)
	ReadFile func(string) ([]byte, error)
}

// fileConfig is the shape shared by the YAML file and the JSON payload.
type fileConfig struct {
	ListenAddr         string   `json:"listen_addr" yaml:"listen_addr"`
	LogLevel           string   `json:"log_level" yaml:"log_level"`
	LogFile            string   `json:"log_file" yaml:"log_file"`
	DataDir            string   `json:"data_dir" yaml:"data_dir"`
	ModelVariant       string   `json:"model_variant" yaml:"model_variant"`
	ModelPath          string   `json:"model_path" yaml:"model_path"`
	RegistryPath       string   `json:"registry_path" yaml:"registry_path"`
	Backend            string   `json:"backend" yaml:"backend"`
	Language           string   `json:"language" yaml:"language"`
	Threads            *int     `json:"threads" yaml:"threads"`
	FlashAttention     *bool    `json:"flash_attention" yaml:"flash_attention"`
	GPUDevice          *int     `json:"gpu_device" yaml:"gpu_device"`
	UseReferenceEngine *bool    `json:"use_reference_engine" yaml:"use_reference_engine"`
	MemoryHeadroom     *float64 `json:"memory_headroom" yaml:"memory_headroom"`
}

// Load retrieves the configuration and validates it.
func (l Loader) Load() (Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}
	if l.ReadFile == nil {
		l.ReadFile = os.ReadFile
	}

	lookup, err := l.withDotEnv()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr: DefaultListenAddr,
	}

	if path, ok := lookup(envConfigFile); ok && strings.TrimSpace(path) != "" {
		raw, err := l.ReadFile(strings.TrimSpace(path))
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		var payload fileConfig
		if err := yaml.Unmarshal(raw, &payload); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
		payload.apply(&cfg)
	}

	if raw, ok := lookup(envJSON); ok && strings.TrimSpace(raw) != "" {
		var payload fileConfig
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", envJSON, err)
		}
		payload.apply(&cfg)
	}

	overrideString(lookup, envPrefix+"LISTEN_ADDR", &cfg.ListenAddr)
	overrideString(lookup, envPrefix+"LOG_LEVEL", &cfg.LogLevel)
	overrideString(lookup, envPrefix+"LOG_FILE", &cfg.LogFile)
	overrideString(lookup, envPrefix+"DATA_DIR", &cfg.DataDir)
	overrideString(lookup, envPrefix+"MODEL_VARIANT", &cfg.ModelVariant)
	overrideString(lookup, envPrefix+"MODEL_PATH", &cfg.ModelPath)
	overrideString(lookup, envPrefix+"REGISTRY", &cfg.RegistryPath)
	overrideString(lookup, envPrefix+"BACKEND", &cfg.Backend)
	overrideString(lookup, envPrefix+"LANGUAGE", &cfg.Language)

	if err := overrideBool(lookup, envPrefix+"FLASH_ATTENTION", &cfg.FlashAttention); err != nil {
		return Config{}, err
	}
	if err := overrideBool(lookup, envPrefix+"USE_REFERENCE_ENGINE", &cfg.UseReferenceEngine); err != nil {
		return Config{}, err
	}
	if err := overrideInt(lookup, envPrefix+"GPU_DEVICE", &cfg.GPUDevice); err != nil {
		return Config{}, err
	}
	if value, ok := lookup(envPrefix + "THREADS"); ok && strings.TrimSpace(value) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return Config{}, fmt.Errorf("config: %sTHREADS: %w", envPrefix, err)
		}
		cfg.Threads = &n
	}
	if value, ok := lookup(envPrefix + "MEMORY_HEADROOM"); ok && strings.TrimSpace(value) != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: %sMEMORY_HEADROOM: %w", envPrefix, err)
		}
		cfg.MemoryHeadroom = f
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// withDotEnv layers values from the .env file beneath the real environment.
// A missing file is not an error.
func (l Loader) withDotEnv() (func(string) (string, bool), error) {
	path := defaultDotEnvFile
	explicit := false
	if value, ok := l.Lookup(envDotEnvFile); ok && strings.TrimSpace(value) != "" {
		path = strings.TrimSpace(value)
		explicit = true
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return l.Lookup, nil
		}
		return nil, fmt.Errorf("config: read env file %s: %w", path, err)
	}
	base := l.Lookup
	return func(key string) (string, bool) {
		if value, ok := base(key); ok {
			return value, true
		}
		value, ok := values[key]
		return value, ok
	}, nil
}

func (p fileConfig) apply(cfg *Config) {
	setString(&cfg.ListenAddr, p.ListenAddr)
	setString(&cfg.LogLevel, p.LogLevel)
	setString(&cfg.LogFile, p.LogFile)
	setString(&cfg.DataDir, p.DataDir)
	setString(&cfg.ModelVariant, p.ModelVariant)
	setString(&cfg.ModelPath, p.ModelPath)
	setString(&cfg.RegistryPath, p.RegistryPath)
	setString(&cfg.Backend, p.Backend)
	setString(&cfg.Language, p.Language)
	if p.Threads != nil {
		n := *p.Threads
		cfg.Threads = &n
	}
	if p.FlashAttention != nil {
		cfg.FlashAttention = *p.FlashAttention
	}
	if p.GPUDevice != nil {
		cfg.GPUDevice = *p.GPUDevice
	}
	if p.UseReferenceEngine != nil {
		cfg.UseReferenceEngine = *p.UseReferenceEngine
	}
	if p.MemoryHeadroom != nil {
		cfg.MemoryHeadroom = *p.MemoryHeadroom
	}
}

func setString(target *string, value string) {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		*target = trimmed
	}
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if lookup == nil || target == nil {
		return
	}
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideBool(lookup func(string) (string, bool), key string, target *bool) error {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*target = b
	return nil
}

func overrideInt(lookup func(string) (string, bool), key string, target *int) error {
	value, ok := lookup(key)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*target = n
	return nil
}
