package resilience

import (
	"context"

	"github.com/vesper-voice/vesper/pkg/audio"
	"github.com/vesper-voice/vesper/pkg/provider"
	"github.com/vesper-voice/vesper/pkg/provider/tts"
)

// TTSFallback implements [tts.Provider] with automatic failover across
// multiple synthesis backends. Each backend has its own circuit breaker.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

// Compile-time interface assertions.
var (
	_ tts.Provider       = (*TTSFallback)(nil)
	_ provider.Lifecycle = (*TTSFallback)(nil)
)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred
// backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional synthesis backend as a fallback.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) {
	f.group.AddFallback(name, p)
}

// Name identifies the primary backend.
func (f *TTSFallback) Name() string {
	return f.group.entries[0].name + "+fallback"
}

// ExecMode always reports worker execution.
func (f *TTSFallback) ExecMode() provider.ExecMode { return provider.ExecWorker }

// Synthesize renders text through the first healthy backend. A fallback
// rendered with a different backend still honours the requested voice
// profile as far as that backend can.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) ([]audio.AudioFrame, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]audio.AudioFrame, error) {
		return p.Synthesize(ctx, text, voice)
	})
}

// ListVoices returns the catalogue of the first healthy backend.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return ExecuteWithResult(f.group, func(p tts.Provider) ([]tts.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}

// Init initialises every backend that declares a lifecycle.
func (f *TTSFallback) Init(ctx context.Context) error {
	return initEntries(ctx, f.group)
}

// Shutdown releases every backend that declares a lifecycle.
func (f *TTSFallback) Shutdown(ctx context.Context) error {
	return shutdownEntries(ctx, f.group)
}
