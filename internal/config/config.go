// Package config provides the configuration schema, loader, and file watcher
// for the Scrivo dictation daemon.
package config

import "time"

// LogLevel controls log verbosity for the daemon.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// StopMode selects how a recording session ends.
type StopMode string

const (
	// StopManual ends recording only on an explicit stop command.
	StopManual StopMode = "manual"

	// StopAuto ends recording when the voice activity detector reports the
	// end of speech.
	StopAuto StopMode = "auto"
)

// IsValid reports whether m is a recognised stop mode.
func (m StopMode) IsValid() bool {
	return m == StopManual || m == StopAuto
}

// Config is the root configuration structure for Scrivo.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Capture   CaptureConfig   `yaml:"capture"`
	VAD       VADConfig       `yaml:"vad"`
	Session   SessionConfig   `yaml:"session"`
	Providers ProvidersConfig `yaml:"providers"`
	Prompt    PromptConfig    `yaml:"prompt"`
	Retry     RetryConfig     `yaml:"retry"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address for the WebSocket command API and the
	// health/metrics endpoints (e.g. "127.0.0.1:7575").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// CaptureConfig selects and shapes the audio input.
type CaptureConfig struct {
	// DeviceName selects the input device by case-insensitive substring
	// match. Empty means the system default input.
	DeviceName string `yaml:"device_name"`

	// SampleRate is the capture rate in Hz. Default: 16000.
	SampleRate int `yaml:"sample_rate"`

	// FrameDurationMs is the frame size in milliseconds (10, 20, or 30).
	// Default: 20.
	FrameDurationMs int `yaml:"frame_duration_ms"`

	// QueueDepth is the capture bridge queue capacity in frames.
	// Default: 100.
	QueueDepth int `yaml:"queue_depth"`
}

// FrameDuration returns the frame size as a duration.
func (c CaptureConfig) FrameDuration() time.Duration {
	return time.Duration(c.FrameDurationMs) * time.Millisecond
}

// VADConfig tunes voice activity detection.
type VADConfig struct {
	// EnergyThreshold is the RMS level above which a frame counts as
	// speech. Default: 500.
	EnergyThreshold float64 `yaml:"energy_threshold"`

	// OnsetFrames is the consecutive speech frames required before speech
	// is declared. Default: 3.
	OnsetFrames int `yaml:"onset_frames"`

	// HangoverMs is the silence duration that ends a speech segment.
	// Default: 300.
	HangoverMs int `yaml:"hangover_ms"`

	// PreRollMs is the audio retained from before speech onset.
	// Default: 300.
	PreRollMs int `yaml:"pre_roll_ms"`
}

// SessionConfig bounds the recording session buffer.
type SessionConfig struct {
	// MaxDurationSec caps the buffered audio; older audio is discarded once
	// the cap is reached. Zero means unbounded. Default: 300 (5 minutes).
	MaxDurationSec int `yaml:"max_duration_sec"`

	// StopMode selects manual or VAD-driven session end. Default: manual.
	StopMode StopMode `yaml:"stop_mode"`

	// MaxUploadBytes caps the encoded WAV size submitted to remote STT
	// backends. Zero disables the guard. Default: 25 MiB (the OpenAI API
	// upload limit).
	MaxUploadBytes int `yaml:"max_upload_bytes"`
}

// ProvidersConfig declares the available STT and LLM backends and which one
// of each is active.
type ProvidersConfig struct {
	STT []ProviderEntry `yaml:"stt"`
	LLM []ProviderEntry `yaml:"llm"`

	// ActiveSTT names the STT entry used for new utterances. Defaults to
	// the first entry.
	ActiveSTT string `yaml:"active_stt"`

	// ActiveLLM names the LLM entry used for formatting. Empty disables
	// formatting.
	ActiveLLM string `yaml:"active_llm"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds.
type ProviderEntry struct {
	// Name is the registry identifier for this entry and selects the
	// implementation: "openai", "groq", "whisper-native" for STT;
	// "openai", "anthropic", "ollama", "groq", and the other any-llm
	// backends for LLM.
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	// The value supports ${ENV_VAR} expansion.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model (e.g. "whisper-1", "gpt-4o-mini",
	// a whisper.cpp model file path for whisper-native).
	Model string `yaml:"model"`

	// Language is the recognition or formatting language hint.
	Language string `yaml:"language"`

	// TimeoutSec is the per-request timeout. Default: 30.
	TimeoutSec int `yaml:"timeout_sec"`
}

// PromptConfig controls the LLM formatting prompt and vocabulary.
type PromptConfig struct {
	// MainCustom replaces the built-in main formatting prompt.
	MainCustom string `yaml:"main_custom"`

	// AdvancedEnabled includes the backtrack-correction and list-formatting
	// section.
	AdvancedEnabled bool `yaml:"advanced_enabled"`

	// AdvancedCustom replaces the built-in advanced section.
	AdvancedCustom string `yaml:"advanced_custom"`

	// DictionaryEnabled includes the personal vocabulary section.
	DictionaryEnabled bool `yaml:"dictionary_enabled"`

	// Vocabulary lists personal terms and mappings. Single words also feed
	// the phonetic corrector applied to unformatted transcripts.
	Vocabulary []string `yaml:"vocabulary"`
}

// RetryConfig tunes provider retry behavior.
type RetryConfig struct {
	// MaxRetries is the retry count after the initial attempt. Default: 3.
	MaxRetries int `yaml:"max_retries"`

	// InitialDelayMs is the first retry delay. Default: 500.
	InitialDelayMs int `yaml:"initial_delay_ms"`

	// MaxDelayMs caps the backoff delay. Default: 10000.
	MaxDelayMs int `yaml:"max_delay_ms"`
}

// ApplyDefaults fills zero-valued fields with their documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = "127.0.0.1:7575"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = LogInfo
	}
	if c.Capture.SampleRate <= 0 {
		c.Capture.SampleRate = 16000
	}
	if c.Capture.FrameDurationMs <= 0 {
		c.Capture.FrameDurationMs = 20
	}
	if c.Capture.QueueDepth <= 0 {
		c.Capture.QueueDepth = 100
	}
	if c.VAD.EnergyThreshold <= 0 {
		c.VAD.EnergyThreshold = 500
	}
	if c.VAD.OnsetFrames <= 0 {
		c.VAD.OnsetFrames = 3
	}
	if c.VAD.HangoverMs <= 0 {
		c.VAD.HangoverMs = 300
	}
	if c.VAD.PreRollMs <= 0 {
		c.VAD.PreRollMs = 300
	}
	if c.Session.MaxDurationSec == 0 {
		c.Session.MaxDurationSec = 300
	}
	if c.Session.StopMode == "" {
		c.Session.StopMode = StopManual
	}
	if c.Session.MaxUploadBytes == 0 {
		c.Session.MaxUploadBytes = 25 << 20
	}
	if c.Retry.MaxRetries <= 0 {
		c.Retry.MaxRetries = 3
	}
	if c.Retry.InitialDelayMs <= 0 {
		c.Retry.InitialDelayMs = 500
	}
	if c.Retry.MaxDelayMs <= 0 {
		c.Retry.MaxDelayMs = 10000
	}
	for i := range c.Providers.STT {
		if c.Providers.STT[i].TimeoutSec <= 0 {
			c.Providers.STT[i].TimeoutSec = 30
		}
	}
	for i := range c.Providers.LLM {
		if c.Providers.LLM[i].TimeoutSec <= 0 {
			c.Providers.LLM[i].TimeoutSec = 30
		}
	}
	if c.Providers.ActiveSTT == "" && len(c.Providers.STT) > 0 {
		c.Providers.ActiveSTT = c.Providers.STT[0].Name
	}
}
