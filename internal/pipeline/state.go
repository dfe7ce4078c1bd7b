package pipeline

import "fmt"

// State is the orchestrator's pipeline stage. Exactly one run-loop goroutine
// owns the current state; transitions are strictly serialized.
type State int

const (
	// StateIdle means no interaction is in progress.
	StateIdle State = iota
	// StateListening means an audio session is open and capturing.
	StateListening
	// StateTranscribing means a captured utterance is at the STT provider.
	StateTranscribing
	// StateGenerating means the transcript is at the LLM provider.
	StateGenerating
	// StateSynthesizing means the reply text is at the TTS provider.
	StateSynthesizing
	// StateSpeaking means synthesized audio is being played back.
	StateSpeaking
	// StateError means a stage failed. Terminal until acknowledged.
	StateError
)

// String returns the stage name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateTranscribing:
		return "transcribing"
	case StateGenerating:
		return "generating"
	case StateSynthesizing:
		return "synthesizing"
	case StateSpeaking:
		return "speaking"
	case StateError:
		return "error"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// ErrorInfo describes a pipeline failure: the stage it happened in, the
// underlying error, and whether all acquired resources were released by the
// time the error state was entered.
type ErrorInfo struct {
	Stage    State
	Err      error
	Released bool
}

func (e *ErrorInfo) Error() string {
	return fmt.Sprintf("pipeline: stage %s failed: %v", e.Stage, e.Err)
}

func (e *ErrorInfo) Unwrap() error {
	return e.Err
}
