package resilience

import (
	"context"

	"github.com/vesper-voice/vesper/pkg/audio"
	"github.com/vesper-voice/vesper/pkg/provider"
	"github.com/vesper-voice/vesper/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across
// multiple transcription backends. Each backend has its own circuit breaker.
//
// All entries must require the same audio format: the pipeline converts
// captured audio once, against RequiredFormat, before Transcribe runs.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

// Compile-time interface assertions.
var (
	_ stt.Provider       = (*STTFallback)(nil)
	_ provider.Lifecycle = (*STTFallback)(nil)
)

// NewSTTFallback creates an [STTFallback] with primary as the preferred
// backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional transcription backend as a fallback.
func (f *STTFallback) AddFallback(name string, p stt.Provider) {
	f.group.AddFallback(name, p)
}

// Name identifies the primary backend.
func (f *STTFallback) Name() string {
	return f.group.entries[0].name + "+fallback"
}

// ExecMode always reports worker execution.
func (f *STTFallback) ExecMode() provider.ExecMode { return provider.ExecWorker }

// RequiredFormat reports the primary's format; see the type doc for the
// format constraint on fallback entries.
func (f *STTFallback) RequiredFormat() audio.Format {
	return f.group.entries[0].value.RequiredFormat()
}

// Transcribe runs the utterance through the first healthy backend.
func (f *STTFallback) Transcribe(ctx context.Context, frames []audio.AudioFrame) (stt.Transcript, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, frames)
	})
}

// Init initialises every backend that declares a lifecycle.
func (f *STTFallback) Init(ctx context.Context) error {
	return initEntries(ctx, f.group)
}

// Shutdown releases every backend that declares a lifecycle.
func (f *STTFallback) Shutdown(ctx context.Context) error {
	return shutdownEntries(ctx, f.group)
}
