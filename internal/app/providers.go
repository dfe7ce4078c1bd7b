package app

import (
	"errors"
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/vesper-voice/vesper/internal/config"
	"github.com/vesper-voice/vesper/internal/registry"
	"github.com/vesper-voice/vesper/internal/resilience"
	"github.com/vesper-voice/vesper/pkg/provider/clipboard"
	clipsystem "github.com/vesper-voice/vesper/pkg/provider/clipboard/system"
	"github.com/vesper-voice/vesper/pkg/provider/llm"
	"github.com/vesper-voice/vesper/pkg/provider/llm/anyllm"
	"github.com/vesper-voice/vesper/pkg/provider/llm/openai"
	"github.com/vesper-voice/vesper/pkg/provider/stt"
	"github.com/vesper-voice/vesper/pkg/provider/stt/deepgram"
	"github.com/vesper-voice/vesper/pkg/provider/stt/whisper"
	"github.com/vesper-voice/vesper/pkg/provider/tts"
	"github.com/vesper-voice/vesper/pkg/provider/tts/elevenlabs"
	"github.com/vesper-voice/vesper/pkg/provider/tts/f5"
)

// BuildProviders constructs every provider named in cfg and registers it
// with reg. The first registration per capability becomes the active
// provider. Language-model providers referenced only by assistant personas
// are registered too, so a later persona switch can activate them without
// reloading.
//
// A capability with an empty provider name is skipped; operations that need
// it fail with [registry.ErrNotRegistered] at call time.
func BuildProviders(cfg *config.Config, reg *registry.Registry, log *slog.Logger) error {
	if err := buildSTT(cfg, reg); err != nil {
		return fmt.Errorf("stt: %w", err)
	}
	if err := buildTTS(cfg, reg); err != nil {
		return fmt.Errorf("tts: %w", err)
	}
	if err := buildLLMs(cfg, reg); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := buildClipboard(cfg, reg, log); err != nil {
		return fmt.Errorf("clipboard: %w", err)
	}
	return nil
}

func buildSTT(cfg *config.Config, reg *registry.Registry) error {
	entry := cfg.Providers.STT
	if entry.Name == "" {
		return nil
	}
	p, err := newSTT(entry)
	if err != nil {
		return err
	}
	// An optional secondary backend takes over when the primary fails or its
	// circuit breaker is open. Captured audio is converted once, against the
	// primary's format, so the fallback must require the same one.
	if fb := entry.StringOption("fallback", ""); fb != "" && fb != entry.Name {
		fbp, err := newSTT(fallbackEntry(entry, fb))
		if err != nil {
			return fmt.Errorf("fallback: %w", err)
		}
		got, want := fbp.RequiredFormat(), p.RequiredFormat()
		if got != want {
			return fmt.Errorf("fallback %q requires %dHz/%dch, primary %q requires %dHz/%dch",
				fb, got.SampleRate, got.Channels, entry.Name, want.SampleRate, want.Channels)
		}
		group := resilience.NewSTTFallback(p, entry.Name, resilience.FallbackConfig{})
		group.AddFallback(fb, fbp)
		p = group
	}
	return reg.RegisterSTT(entry.Name, p)
}

func newSTT(entry config.ProviderEntry) (stt.Provider, error) {
	var (
		p   stt.Provider
		err error
	)
	switch entry.Name {
	case "whisper":
		var serverURL string
		serverURL, err = entry.RequireBaseURL()
		if err != nil {
			return nil, err
		}
		opts := []whisper.Option{}
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if rate := entry.FloatOption("sample_rate", 0); rate > 0 {
			opts = append(opts, whisper.WithSampleRate(int(rate)))
		}
		p, err = whisper.New(serverURL, opts...)

	case "whisper-native":
		var modelPath string
		modelPath, err = entry.RequireModel()
		if err != nil {
			return nil, err
		}
		opts := []whisper.NativeOption{}
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		p, err = whisper.NewNative(modelPath, opts...)

	case "deepgram":
		var apiKey string
		apiKey, err = entry.RequireAPIKey()
		if err != nil {
			return nil, err
		}
		opts := []deepgram.Option{}
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := entry.StringOption("language", ""); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		p, err = deepgram.New(apiKey, opts...)

	default:
		return nil, fmt.Errorf("unknown provider %q", entry.Name)
	}
	return p, err
}

// fallbackEntry derives the provider entry for a configured fallback backend.
// Its credentials and endpoint come from the fallback_* options; tuning
// options such as language are shared with the primary, since both transcribe
// or render the same material.
func fallbackEntry(entry config.ProviderEntry, name string) config.ProviderEntry {
	return config.ProviderEntry{
		Name:    name,
		APIKey:  entry.StringOption("fallback_api_key", ""),
		BaseURL: entry.StringOption("fallback_base_url", ""),
		Model:   entry.StringOption("fallback_model", ""),
		Options: entry.Options,
	}
}

func buildTTS(cfg *config.Config, reg *registry.Registry) error {
	entry := cfg.Providers.TTS
	if entry.Name == "" {
		return nil
	}
	p, err := newTTS(cfg, entry)
	if err != nil {
		return err
	}
	// An optional secondary backend takes over when the primary fails or its
	// circuit breaker is open.
	if fb := entry.StringOption("fallback", ""); fb != "" && fb != entry.Name {
		fbp, err := newTTS(cfg, fallbackEntry(entry, fb))
		if err != nil {
			return fmt.Errorf("fallback: %w", err)
		}
		group := resilience.NewTTSFallback(p, entry.Name, resilience.FallbackConfig{})
		group.AddFallback(fb, fbp)
		p = group
	}
	return reg.RegisterTTS(entry.Name, p)
}

func newTTS(cfg *config.Config, entry config.ProviderEntry) (tts.Provider, error) {
	var (
		p   tts.Provider
		err error
	)
	switch entry.Name {
	case "elevenlabs":
		var apiKey string
		apiKey, err = entry.RequireAPIKey()
		if err != nil {
			return nil, err
		}
		opts := []elevenlabs.Option{}
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		if format := entry.StringOption("output_format", ""); format != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(format))
		}
		p, err = elevenlabs.New(apiKey, opts...)

	case "f5":
		var serverURL string
		serverURL, err = entry.RequireBaseURL()
		if err != nil {
			return nil, err
		}
		opts := []f5.Option{}
		if speed := entry.FloatOption("speed", 0); speed > 0 {
			opts = append(opts, f5.WithSpeed(speed))
		}
		p, err = f5.New(serverURL, cfg.Paths.ReferenceAudioDir, opts...)

	default:
		return nil, fmt.Errorf("unknown provider %q", entry.Name)
	}
	return p, err
}

// buildLLMs registers the configured language model first (making it active)
// and then any additional backends referenced by assistant personas, so
// [registry.Registry.ActivateLLM] can hot-swap between them.
func buildLLMs(cfg *config.Config, reg *registry.Registry) error {
	entry := cfg.Providers.LLM
	registered := map[string]bool{}

	if entry.Name != "" {
		p, err := newLLM(entry.Name, entry.Model, entry.APIKey, entry.BaseURL)
		if err != nil {
			return err
		}
		// An optional secondary backend takes over when the primary fails
		// or its circuit breaker is open. Its API key comes from the
		// environment.
		if fb := entry.StringOption("fallback", ""); fb != "" && fb != entry.Name {
			fbp, err := newLLM(fb, entry.StringOption("fallback_model", entry.Model), "", "")
			if err != nil {
				return fmt.Errorf("fallback: %w", err)
			}
			group := resilience.NewLLMFallback(p, entry.Name, resilience.FallbackConfig{})
			group.AddFallback(fb, fbp)
			p = group
		}
		if err := reg.RegisterLLM(entry.Name, p); err != nil {
			return err
		}
		registered[entry.Name] = true
	}

	for _, a := range cfg.Assistants {
		if a.Provider == "" || registered[a.Provider] {
			continue
		}
		model := a.Model
		if model == "" {
			model = entry.Model
		}
		// API keys for secondary backends come from the environment
		// (OPENAI_API_KEY, ANTHROPIC_API_KEY).
		p, err := newLLM(a.Provider, model, "", "")
		if err != nil {
			return fmt.Errorf("assistant %q: %w", a.Name, err)
		}
		if err := reg.RegisterLLM(a.Provider, p); err != nil {
			return fmt.Errorf("assistant %q: %w", a.Name, err)
		}
		registered[a.Provider] = true
	}
	return nil
}

func newLLM(name, model, apiKey, baseURL string) (llm.Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("%s: model is required", name)
	}
	switch name {
	case "openai":
		if apiKey != "" {
			opts := []openai.Option{}
			if baseURL != "" {
				opts = append(opts, openai.WithBaseURL(baseURL))
			}
			return openai.New(apiKey, model, opts...)
		}
		return anyllm.NewOpenAI(model)
	case "anthropic":
		opts := []anyllmlib.Option{}
		if apiKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(apiKey))
		}
		if baseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(baseURL))
		}
		return anyllm.NewAnthropic(model, opts...)
	}
	return nil, fmt.Errorf("unknown provider %q", name)
}

// buildClipboard registers the system clipboard. An unsupported platform is
// not fatal: clipboard operations then fail with
// [registry.ErrNotRegistered] and voice interaction keeps working.
func buildClipboard(cfg *config.Config, reg *registry.Registry, log *slog.Logger) error {
	entry := cfg.Providers.Clipboard
	if entry.Name == "" {
		return nil
	}
	if entry.Name != "system" {
		return fmt.Errorf("unknown provider %q", entry.Name)
	}
	p, err := clipsystem.New()
	if err != nil {
		if errors.Is(err, clipboard.ErrUnavailable) {
			log.Warn("clipboard unavailable on this platform, clipboard operations disabled")
			return nil
		}
		return err
	}
	return reg.RegisterClipboard(entry.Name, p)
}

// voiceProfile converts a persona's voice settings into the profile handed
// to the TTS provider.
func voiceProfile(cfg *config.Config, a config.AssistantConfig) tts.VoiceProfile {
	return tts.VoiceProfile{
		ID:              a.Voice.VoiceID,
		Name:            a.Name,
		Provider:        cfg.Providers.TTS.Name,
		Stability:       a.Voice.Stability,
		SimilarityBoost: a.Voice.SimilarityBoost,
		Style:           a.Voice.Style,
		SpeakerBoost:    a.Voice.SpeakerBoost,
		ReferenceAudio:  a.Voice.ReferenceAudio,
	}
}
