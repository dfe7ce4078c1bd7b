// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider wraps a speech synthesis service (a hosted API such as
// ElevenLabs, or a local F5-TTS server) behind a uniform batch interface:
// the pipeline hands over the full reply text and receives playable PCM
// frames back. Providers that return compressed audio transcode it to PCM
// internally; callers never see encoded payloads.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/vesper-voice/vesper/pkg/audio"
	"github.com/vesper-voice/vesper/pkg/provider"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	provider.Adapter

	// Synthesize renders text in the given voice and returns the resulting
	// audio as PCM frames in the order they should be played. Empty text
	// yields no frames and a nil error.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) ([]audio.AudioFrame, error)

	// ListVoices returns the voice profiles currently available from this
	// provider. The list reflects the provider's catalogue and may change
	// between calls.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
