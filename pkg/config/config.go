// Package config defines the runtime configuration for the refactoring agent.
// Configuration is an explicit value constructed once and passed into each
// component; there is no process-wide mutable config state.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider name constants.
const (
	ProviderGoogle    = "google"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)

// Gate mode constants.
const (
	GateAuto    = "auto"    // approve automatically after validation passes
	GateConsole = "console" // interactive terminal review
	GateAPI     = "api"     // suspend and wait for a resume call
)

// ModelInfo describes a known model's provider and limits.
type ModelInfo struct {
	Provider         string  // API provider (google, anthropic, openai, ollama)
	InputCPM         float64 // Cost per million input tokens (USD)
	OutputCPM        float64 // Cost per million output tokens (USD)
	MaxContextTokens int     // Maximum context window size in tokens
	MaxOutputTokens  int     // Maximum output tokens per request
}

// KnownModels contains pricing and provider information for common models.
// Unknown models are inferred via ProviderPatterns.
//
//nolint:gochecknoglobals // Intentional global for static model registry
var KnownModels = map[string]ModelInfo{
	"gemini-2.0-flash": {
		Provider:         ProviderGoogle,
		InputCPM:         0.10,
		OutputCPM:        0.40,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  8192,
	},
	"gemini-2.5-flash": {
		Provider:         ProviderGoogle,
		InputCPM:         0.30,
		OutputCPM:        2.50,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
	},
	"claude-sonnet-4-20250514": {
		Provider:         ProviderAnthropic,
		InputCPM:         3.0,
		OutputCPM:        15.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	"gpt-4o": {
		Provider:         ProviderOpenAI,
		InputCPM:         2.5,
		OutputCPM:        10.0,
		MaxContextTokens: 128000,
		MaxOutputTokens:  4096,
	},
	"o4-mini": {
		Provider:         ProviderOpenAI,
		InputCPM:         1.1,
		OutputCPM:        4.4,
		MaxContextTokens: 128000,
		MaxOutputTokens:  16384,
	},
}

// ProviderPattern is a rule for inferring the provider from a model name.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

// ProviderPatterns lets new models work without a registry entry.
//
//nolint:gochecknoglobals // Intentional global for inference rules
var ProviderPatterns = []ProviderPattern{
	{"gemini", ProviderGoogle},
	{"claude", ProviderAnthropic},
	{"gpt", ProviderOpenAI},
	{"o1", ProviderOpenAI},
	{"o3", ProviderOpenAI},
	{"o4", ProviderOpenAI},
	{"llama", ProviderOllama},
	{"codellama", ProviderOllama},
	{"qwen", ProviderOllama},
	{"phi", ProviderOllama},
}

// GetModelProvider returns the provider for a model name, consulting the
// registry first and prefix patterns second.
func GetModelProvider(modelName string) (string, error) {
	if info, ok := KnownModels[modelName]; ok {
		return info.Provider, nil
	}
	lower := strings.ToLower(modelName)
	for _, p := range ProviderPatterns {
		if strings.HasPrefix(lower, p.Prefix) {
			return p.Provider, nil
		}
	}
	return "", fmt.Errorf("unknown provider for model %q", modelName)
}

// GetModelInfo returns registry info for a model, if present.
func GetModelInfo(modelName string) (ModelInfo, bool) {
	info, ok := KnownModels[modelName]
	return info, ok
}

// ValidationConfig controls the validator pipeline.
type ValidationConfig struct {
	// LintBlocking makes lint findings count toward the overall verdict.
	// Default false: lint is informational.
	LintBlocking bool `yaml:"lint_blocking"`
	// TypeCheck enables the pyright stage when the tool is installed.
	TypeCheck bool `yaml:"type_check"`
	// TestTarget is the pytest target (file or directory). Empty skips the
	// test stage entirely.
	TestTarget string `yaml:"test_target"`
	// ToolTimeoutSeconds bounds each tool subprocess.
	ToolTimeoutSeconds int `yaml:"tool_timeout_seconds"`
}

// ToolTimeout returns the per-tool subprocess deadline.
func (v ValidationConfig) ToolTimeout() time.Duration {
	if v.ToolTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(v.ToolTimeoutSeconds) * time.Second
}

// Config is the complete agent configuration.
type Config struct {
	// Provider selects the reasoning backend: google, anthropic, openai, ollama.
	Provider string `yaml:"provider"`
	// Model is the model identifier passed to the provider.
	Model string `yaml:"model"`
	// MaxIterations is the per-file retry ceiling.
	MaxIterations int `yaml:"max_iterations"`
	// GateMode selects the human gate: auto, console, api.
	GateMode string `yaml:"gate_mode"`

	Validation ValidationConfig `yaml:"validation"`

	// DatabasePath is the sqlite file backing checkpoints and summaries.
	DatabasePath string `yaml:"database_path"`
	// ListenAddr is the REST server bind address.
	ListenAddr string `yaml:"listen_addr"`
	// OllamaHost is the Ollama server URL when Provider is ollama.
	OllamaHost string `yaml:"ollama_host"`
	// PrometheusURL enables the metrics query service when set.
	PrometheusURL string `yaml:"prometheus_url"`
	// LogFile mirrors logs to a rotating file when set.
	LogFile string `yaml:"log_file"`
}

// DefaultConfig returns the configuration used when no file is supplied.
func DefaultConfig() Config {
	return Config{
		Provider:      ProviderGoogle,
		Model:         "gemini-2.0-flash",
		MaxIterations: 3,
		GateMode:      GateAuto,
		Validation: ValidationConfig{
			LintBlocking:       false,
			TypeCheck:          true,
			ToolTimeoutSeconds: 30,
		},
		DatabasePath: "recast.db",
		ListenAddr:   ":8080",
		OllamaHost:   "http://localhost:11434",
	}
}

// Load reads a YAML config file, layering it over the defaults and then
// applying environment overrides.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv applies RECAST_* environment overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("RECAST_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("RECAST_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("RECAST_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxIterations = n
		}
	}
	if v := os.Getenv("RECAST_DB"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("RECAST_LISTEN"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		c.OllamaHost = v
	}
}

// Validate rejects configurations the loop cannot run with.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderGoogle, ProviderAnthropic, ProviderOpenAI, ProviderOllama:
	default:
		return fmt.Errorf("invalid provider %q", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("model must not be empty")
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1, got %d", c.MaxIterations)
	}
	switch c.GateMode {
	case GateAuto, GateConsole, GateAPI:
	default:
		return fmt.Errorf("invalid gate_mode %q", c.GateMode)
	}
	return nil
}
