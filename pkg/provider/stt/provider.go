// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider wraps a transcription service (a hosted API such as
// Deepgram, or a local whisper.cpp instance) behind a uniform batch
// interface: the pipeline hands over one complete utterance as a sequence of
// PCM frames and receives a single authoritative transcript back.
//
// Providers declare the audio format they expect via RequiredFormat; the
// pipeline converts captured audio before calling Transcribe, so
// implementations may assume conforming input.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"fmt"
	"time"

	"github.com/vesper-voice/vesper/pkg/audio"
	"github.com/vesper-voice/vesper/pkg/provider"
)

// Provider is the abstraction over any STT backend.
type Provider interface {
	provider.Adapter

	// Transcribe converts one complete utterance into text. frames carry PCM
	// in the format reported by RequiredFormat, in capture order. An utterance
	// that contains no recognisable speech yields a Transcript with empty
	// Text and a nil error; errors are reserved for transport and provider
	// failures.
	Transcribe(ctx context.Context, frames []audio.AudioFrame) (Transcript, error)

	// RequiredFormat reports the PCM format Transcribe expects.
	RequiredFormat() audio.Format
}

// ValidateFormat checks that every frame carries the wanted format. The
// capture buffer converts audio to a provider's RequiredFormat before
// Transcribe runs; a frame at another rate or channel count means its raw
// bytes would be misread at the wrong rate, so providers reject it instead
// of relabelling it.
func ValidateFormat(frames []audio.AudioFrame, want audio.Format) error {
	for _, f := range frames {
		if got := f.Format(); got != want {
			return fmt.Errorf("frame format %dHz/%dch does not match required %dHz/%dch",
				got.SampleRate, got.Channels, want.SampleRate, want.Channels)
		}
	}
	return nil
}

// FramesDuration returns the total audio duration across frames.
func FramesDuration(frames []audio.AudioFrame) time.Duration {
	var total time.Duration
	for _, f := range frames {
		total += f.Duration()
	}
	return total
}
