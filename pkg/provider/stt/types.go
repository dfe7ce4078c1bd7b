package stt

import (
	"fmt"
	"time"
)

// Transcript represents a speech-to-text result for one utterance.
type Transcript struct {
	// Text is the transcribed speech content, trimmed. Empty means the
	// provider found no speech in the utterance.
	Text string

	// Confidence is the overall confidence score (0.0–1.0). May be zero if
	// the provider does not report confidence.
	Confidence float64

	// Words contains per-word detail when available (Deepgram). May be nil
	// for providers that don't support word-level output.
	Words []WordDetail

	// Duration is the length of the transcribed audio.
	Duration time.Duration
}

// WordDetail holds per-word metadata from STT providers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// TranscriptionError wraps a provider failure with the provider's name and
// the length of the audio that triggered it, so pipeline error events can
// attribute the failure and report what was lost.
type TranscriptionError struct {
	Provider string
	// Audio is the total duration of the utterance handed to Transcribe.
	Audio time.Duration
	Err   error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("stt: %s: %v", e.Provider, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }
