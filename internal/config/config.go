// Package config provides the configuration schema, loader, and file watcher
// for the Vesper voice assistant.
package config

import (
	"fmt"
	"log/slog"
)

// LogLevel controls log verbosity.
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

// Level maps l onto the corresponding slog level. Unknown values map to
// [slog.LevelInfo].
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Config is the root configuration structure for Vesper.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Providers  ProvidersConfig   `yaml:"providers"`
	Audio      AudioConfig       `yaml:"audio"`
	Paths      PathsConfig       `yaml:"paths"`
	Assistants []AssistantConfig `yaml:"assistants"`

	// Vocabulary lists terms the transcript corrector should recognise in
	// addition to the assistant names (project jargon, contact names).
	Vocabulary []string `yaml:"vocabulary"`

	// ActiveAssistant names the persona used at startup. When empty the first
	// entry in Assistants is active.
	ActiveAssistant string `yaml:"active_assistant"`
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	// MetricsAddr is the TCP address the Prometheus metrics endpoint listens
	// on (e.g., ":9090"). Empty disables the endpoint.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// ProvidersConfig declares which provider implementation to use for each
// capability. Each field selects a named provider registered in the registry.
type ProvidersConfig struct {
	STT       ProviderEntry `yaml:"stt"`
	TTS       ProviderEntry `yaml:"tts"`
	LLM       ProviderEntry `yaml:"llm"`
	Clipboard ProviderEntry `yaml:"clipboard"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds. The Name field selects the registered constructor.
type ProviderEntry struct {
	// Name selects the registered provider implementation
	// (e.g., "openai", "deepgram", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider
	// (e.g., "gpt-4o-mini", "nova-2").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above.
	Options map[string]any `yaml:"options"`
}

// MissingKeyError reports a provider configuration key that is required by
// the selected provider but absent from its entry.
type MissingKeyError struct {
	Provider string
	Key      string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("config: provider %q requires %s but it is not set", e.Provider, e.Key)
}

// RequireAPIKey returns the entry's API key, or a [MissingKeyError] when it
// is empty.
func (p ProviderEntry) RequireAPIKey() (string, error) {
	if p.APIKey == "" {
		return "", &MissingKeyError{Provider: p.Name, Key: "api_key"}
	}
	return p.APIKey, nil
}

// RequireBaseURL returns the entry's base URL, or a [MissingKeyError] when it
// is empty. Used by providers that talk to a locally hosted server and have
// no sensible default endpoint.
func (p ProviderEntry) RequireBaseURL() (string, error) {
	if p.BaseURL == "" {
		return "", &MissingKeyError{Provider: p.Name, Key: "base_url"}
	}
	return p.BaseURL, nil
}

// RequireModel returns the entry's model, or a [MissingKeyError] when it is
// empty.
func (p ProviderEntry) RequireModel() (string, error) {
	if p.Model == "" {
		return "", &MissingKeyError{Provider: p.Name, Key: "model"}
	}
	return p.Model, nil
}

// StringOption returns the named entry from Options as a string, or def when
// absent or of another type.
func (p ProviderEntry) StringOption(key, def string) string {
	if v, ok := p.Options[key].(string); ok {
		return v
	}
	return def
}

// FloatOption returns the named entry from Options as a float64, or def when
// absent. YAML integers decode as int, so both are accepted.
func (p ProviderEntry) FloatOption(key string, def float64) float64 {
	switch v := p.Options[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

// BoolOption returns the named entry from Options as a bool, or def when
// absent or of another type.
func (p ProviderEntry) BoolOption(key string, def bool) bool {
	if v, ok := p.Options[key].(bool); ok {
		return v
	}
	return def
}

// AudioConfig selects capture/playback devices and tunes the listening loop.
type AudioConfig struct {
	// InputDevice names the capture device. Empty selects the system default.
	InputDevice string `yaml:"input_device"`

	// OutputDevice names the playback device. Empty selects the system default.
	OutputDevice string `yaml:"output_device"`

	// ChunkMillis is the capture chunk duration in milliseconds.
	// Defaults to 20.
	ChunkMillis int `yaml:"chunk_ms"`

	// Silence tunes end-of-utterance detection.
	Silence SilenceConfig `yaml:"silence"`
}

// SilenceConfig tunes the energy-based end-of-utterance detector.
type SilenceConfig struct {
	// Threshold is the normalised RMS level below which a chunk counts as
	// silent, in [0, 1]. Defaults to 0.015.
	Threshold float64 `yaml:"threshold"`

	// HangChunks is how many consecutive silent chunks end the utterance once
	// speech has been observed. Defaults to 15 (300 ms at 20 ms chunks).
	HangChunks int `yaml:"hang_chunks"`
}

// PathsConfig declares the directories Vesper touches on disk.
type PathsConfig struct {
	// ScratchDir receives transient captured-utterance WAV files.
	// Created if missing.
	ScratchDir string `yaml:"scratch_dir"`

	// ReferenceAudioDir holds voice-cloning reference samples for local TTS.
	// Must exist when a reference-audio voice is configured.
	ReferenceAudioDir string `yaml:"reference_audio_dir"`

	// AssetsDir holds read-only bundled audio (earcons, prompts). Existence
	// is validated; Vesper never writes here.
	AssetsDir string `yaml:"assets_dir"`
}

// AssistantConfig describes one named persona: the system prompt the language
// model speaks with and the voice it answers in.
type AssistantConfig struct {
	// Name identifies the persona (e.g., "default", "concise").
	Name string `yaml:"name"`

	// SystemPrompt is injected as the LLM system message.
	SystemPrompt string `yaml:"system_prompt"`

	// Provider overrides the configured LLM provider for this persona.
	// Empty uses providers.llm.
	Provider string `yaml:"provider"`

	// Model overrides the configured LLM model for this persona.
	Model string `yaml:"model"`

	// Voice configures the TTS voice profile this persona answers in.
	Voice VoiceConfig `yaml:"voice"`
}

// VoiceConfig specifies TTS voice parameters for an assistant persona.
type VoiceConfig struct {
	// VoiceID is the provider-specific voice identifier.
	VoiceID string `yaml:"voice_id"`

	// Stability trades expressiveness for consistency, in [0, 1].
	Stability float64 `yaml:"stability"`

	// SimilarityBoost controls adherence to the original voice, in [0, 1].
	SimilarityBoost float64 `yaml:"similarity_boost"`

	// Style exaggerates the speaking style, in [0, 1].
	Style float64 `yaml:"style"`

	// SpeakerBoost enables the provider's speaker-boost post-processing.
	SpeakerBoost bool `yaml:"speaker_boost"`

	// ReferenceAudio names a sample file under paths.reference_audio_dir used
	// by voice-cloning providers. Ignored by hosted voices.
	ReferenceAudio string `yaml:"reference_audio"`
}

// Assistant returns the persona named name, or false when absent.
func (c *Config) Assistant(name string) (AssistantConfig, bool) {
	for _, a := range c.Assistants {
		if a.Name == name {
			return a, true
		}
	}
	return AssistantConfig{}, false
}

// StartupAssistant resolves the persona active at startup: ActiveAssistant
// when set, otherwise the first configured persona, otherwise a bare default.
func (c *Config) StartupAssistant() AssistantConfig {
	if c.ActiveAssistant != "" {
		if a, ok := c.Assistant(c.ActiveAssistant); ok {
			return a
		}
	}
	if len(c.Assistants) > 0 {
		return c.Assistants[0]
	}
	return AssistantConfig{Name: "default"}
}
