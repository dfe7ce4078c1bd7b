package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":       {"whisper", "whisper-native", "deepgram"},
	"tts":       {"elevenlabs", "f5"},
	"llm":       {"openai", "anthropic"},
	"clipboard": {"system"},
}

// Defaults applied by [Load] when the corresponding field is zero.
const (
	DefaultChunkMillis      = 20
	DefaultSilenceThreshold = 0.015
	DefaultSilenceHang      = 15
)

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Audio.ChunkMillis == 0 {
		cfg.Audio.ChunkMillis = DefaultChunkMillis
	}
	if cfg.Audio.Silence.Threshold == 0 {
		cfg.Audio.Silence.Threshold = DefaultSilenceThreshold
	}
	if cfg.Audio.Silence.HangChunks == 0 {
		cfg.Audio.Silence.HangChunks = DefaultSilenceHang
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("clipboard", cfg.Providers.Clipboard.Name)

	// The full pipeline needs all three voice stages.
	if cfg.Providers.STT.Name == "" || cfg.Providers.TTS.Name == "" || cfg.Providers.LLM.Name == "" {
		slog.Warn("voice pipeline incomplete; only regular mode will be available",
			"stt", cfg.Providers.STT.Name,
			"tts", cfg.Providers.TTS.Name,
			"llm", cfg.Providers.LLM.Name,
		)
	}

	// Audio
	if cfg.Audio.ChunkMillis < 5 || cfg.Audio.ChunkMillis > 500 {
		errs = append(errs, fmt.Errorf("audio.chunk_ms %d is out of range [5, 500]", cfg.Audio.ChunkMillis))
	}
	if cfg.Audio.Silence.Threshold < 0 || cfg.Audio.Silence.Threshold > 1 {
		errs = append(errs, fmt.Errorf("audio.silence.threshold %.3f is out of range [0, 1]", cfg.Audio.Silence.Threshold))
	}
	if cfg.Audio.Silence.HangChunks < 1 {
		errs = append(errs, fmt.Errorf("audio.silence.hang_chunks must be at least 1, got %d", cfg.Audio.Silence.HangChunks))
	}

	// Assistants
	namesSeen := make(map[string]int, len(cfg.Assistants))
	for i, a := range cfg.Assistants {
		prefix := fmt.Sprintf("assistants[%d]", i)
		if a.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := namesSeen[a.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of assistants[%d]", prefix, a.Name, prev))
			}
			namesSeen[a.Name] = i
		}
		for _, field := range []struct {
			name  string
			value float64
		}{
			{"stability", a.Voice.Stability},
			{"similarity_boost", a.Voice.SimilarityBoost},
			{"style", a.Voice.Style},
		} {
			if field.value < 0 || field.value > 1 {
				errs = append(errs, fmt.Errorf("%s.voice.%s %.2f is out of range [0, 1]", prefix, field.name, field.value))
			}
		}
		if a.Provider != "" && cfg.Providers.LLM.Name != "" && a.Provider != cfg.Providers.LLM.Name {
			slog.Info("assistant overrides the configured LLM provider",
				"assistant", a.Name,
				"assistant_provider", a.Provider,
				"llm_provider", cfg.Providers.LLM.Name,
			)
		}
	}
	if cfg.ActiveAssistant != "" {
		if _, ok := namesSeen[cfg.ActiveAssistant]; !ok {
			errs = append(errs, fmt.Errorf("active_assistant %q does not name a configured assistant", cfg.ActiveAssistant))
		}
	}

	// Paths: reference audio is only required when a persona actually uses it.
	needsReference := slices.ContainsFunc(cfg.Assistants, func(a AssistantConfig) bool {
		return a.Voice.ReferenceAudio != ""
	})
	if needsReference && cfg.Paths.ReferenceAudioDir == "" {
		errs = append(errs, errors.New("paths.reference_audio_dir is required when an assistant configures voice.reference_audio"))
	}
	if dir := cfg.Paths.AssetsDir; dir != "" {
		if info, err := os.Stat(dir); err != nil {
			errs = append(errs, fmt.Errorf("paths.assets_dir %q: %w", dir, err))
		} else if !info.IsDir() {
			errs = append(errs, fmt.Errorf("paths.assets_dir %q is not a directory", dir))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
