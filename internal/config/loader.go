package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ValidSTTProviders lists the recognised STT provider names.
var ValidSTTProviders = map[string]bool{
	"openai":         true,
	"groq":           true,
	"whisper-native": true,
	"mock":           true,
}

// ValidLLMProviders lists the recognised LLM provider names.
var ValidLLMProviders = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"ollama":    true,
	"gemini":    true,
	"deepseek":  true,
	"mistral":   true,
	"groq":      true,
	"llamacpp":  true,
	"llamafile": true,
	"mock":      true,
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} references with the environment value. Unset
// variables expand to the empty string.
func expandEnv(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// Load reads, parses, defaults, and validates the YAML configuration at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader parses YAML configuration from r. Unknown fields are
// rejected so typos surface immediately.
func LoadFromReader(r io.Reader) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	cfg.ApplyDefaults()
	for i := range cfg.Providers.STT {
		cfg.Providers.STT[i].APIKey = expandEnv(cfg.Providers.STT[i].APIKey)
	}
	for i := range cfg.Providers.LLM {
		cfg.Providers.LLM[i].APIKey = expandEnv(cfg.Providers.LLM[i].APIKey)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for hard errors and logs warnings for
// soft issues. All hard errors are collected and joined.
func (c *Config) Validate() error {
	var errs []error

	if !c.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("config: invalid log level %q", c.Server.LogLevel))
	}
	switch c.Capture.FrameDurationMs {
	case 10, 20, 30:
	default:
		errs = append(errs, fmt.Errorf("config: frame_duration_ms must be 10, 20, or 30, got %d", c.Capture.FrameDurationMs))
	}
	if !c.Session.StopMode.IsValid() {
		errs = append(errs, fmt.Errorf("config: invalid stop_mode %q", c.Session.StopMode))
	}
	if len(c.Providers.STT) == 0 {
		errs = append(errs, errors.New("config: at least one STT provider is required"))
	}

	sttNames := make(map[string]bool, len(c.Providers.STT))
	for i, p := range c.Providers.STT {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("config: stt provider %d has no name", i))
			continue
		}
		if !ValidSTTProviders[p.Name] {
			errs = append(errs, fmt.Errorf("config: unknown stt provider %q", p.Name))
		}
		if sttNames[p.Name] {
			errs = append(errs, fmt.Errorf("config: duplicate stt provider %q", p.Name))
		}
		sttNames[p.Name] = true
		if p.Name == "whisper-native" && p.Model == "" {
			errs = append(errs, errors.New("config: whisper-native requires model (the whisper.cpp model file path)"))
		}
		if p.APIKey == "" && p.Name != "whisper-native" && p.Name != "mock" {
			slog.Warn("config: stt provider has no api_key", "provider", p.Name)
		}
	}

	llmNames := make(map[string]bool, len(c.Providers.LLM))
	for i, p := range c.Providers.LLM {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("config: llm provider %d has no name", i))
			continue
		}
		if !ValidLLMProviders[p.Name] {
			errs = append(errs, fmt.Errorf("config: unknown llm provider %q", p.Name))
		}
		if llmNames[p.Name] {
			errs = append(errs, fmt.Errorf("config: duplicate llm provider %q", p.Name))
		}
		llmNames[p.Name] = true
	}

	if c.Providers.ActiveSTT != "" && !sttNames[c.Providers.ActiveSTT] {
		errs = append(errs, fmt.Errorf("config: active_stt %q is not a configured provider", c.Providers.ActiveSTT))
	}
	if c.Providers.ActiveLLM != "" && !llmNames[c.Providers.ActiveLLM] {
		errs = append(errs, fmt.Errorf("config: active_llm %q is not a configured provider", c.Providers.ActiveLLM))
	}
	if c.Providers.ActiveLLM == "" && len(c.Providers.LLM) > 0 {
		slog.Warn("config: llm providers configured but active_llm is empty, formatting disabled")
	}

	if c.Session.MaxDurationSec < 0 {
		errs = append(errs, fmt.Errorf("config: max_duration_sec must not be negative, got %d", c.Session.MaxDurationSec))
	}
	if c.VAD.HangoverMs < c.Capture.FrameDurationMs {
		slog.Warn("config: hangover shorter than one frame, speech ends immediately on silence",
			"hangover_ms", c.VAD.HangoverMs, "frame_duration_ms", c.Capture.FrameDurationMs)
	}

	return errors.Join(errs...)
}
