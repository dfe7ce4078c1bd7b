package tts

import "fmt"

// VoiceProfile describes a synthesis voice and its tuning.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Stability trades expressiveness for consistency, in [0, 1].
	// Zero means use the provider default.
	Stability float64

	// SimilarityBoost controls adherence to the original voice, in [0, 1].
	SimilarityBoost float64

	// Style exaggerates the speaking style, in [0, 1].
	Style float64

	// SpeakerBoost enables the provider's speaker-boost post-processing.
	SpeakerBoost bool

	// ReferenceAudio is a path to a reference sample for voice-cloning
	// providers. Ignored by hosted catalogue voices.
	ReferenceAudio string

	// Metadata holds provider-specific voice attributes (gender, accent, ...).
	Metadata map[string]string
}

// SynthesisError wraps a provider failure with the provider's name and the
// text that triggered it, so pipeline error events can attribute the failure
// and report what was lost.
type SynthesisError struct {
	Provider string
	// Text is the input handed to Synthesize.
	Text string
	Err  error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("tts: %s: %v", e.Provider, e.Err)
}

func (e *SynthesisError) Unwrap() error { return e.Err }
