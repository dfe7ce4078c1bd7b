// Package event provides the process-local publish/subscribe bus the
// pipeline, modes, and UI-facing consumers communicate over.
//
// Delivery is ordered: Publish appends to an unbounded internal queue and
// returns immediately; a single dispatcher goroutine invokes the handlers of
// each event sequentially, so every subscriber observes events in publish
// order. Handlers therefore must not block for long — offload slow work.
package event

import "time"

// Topic identifies an event stream on the bus.
type Topic string

// Topics published by the core. Consumers subscribe per topic; payload types
// are documented on each constant.
const (
	// TopicStageEntered carries a [StageChange] when the pipeline enters a
	// state.
	TopicStageEntered Topic = "pipeline.stage.entered"

	// TopicStageLeft carries a [StageChange] when the pipeline leaves a state.
	TopicStageLeft Topic = "pipeline.stage.left"

	// TopicPipelineError carries a [PipelineError] when a stage fails.
	TopicPipelineError Topic = "pipeline.error"

	// TopicAudioLevel carries an [AudioLevel] for every captured chunk while
	// the pipeline listens.
	TopicAudioLevel Topic = "audio.level"

	// TopicTranscript carries a [Transcript] once speech-to-text completes.
	TopicTranscript Topic = "conversation.transcript"

	// TopicReply carries a [Reply] once the language model answers.
	TopicReply Topic = "conversation.reply"

	// TopicModeSwitch carries a [ModeSwitch] when the active interaction mode
	// changes.
	TopicModeSwitch Topic = "mode.switch"
)

// Event is what handlers receive: the topic, the wall-clock publish time, and
// the topic-specific payload.
type Event struct {
	Topic   Topic
	Time    time.Time
	Payload any
}

// Handler consumes one event. Handlers run on the bus dispatcher goroutine.
type Handler func(Event)

// StageChange is the payload of [TopicStageEntered] and [TopicStageLeft].
type StageChange struct {
	Stage string
	At    time.Time
}

// PipelineError is the payload of [TopicPipelineError]. Released reports
// whether all audio resources had been released when the error surfaced.
type PipelineError struct {
	Stage    string
	Err      error
	Released bool
}

// AudioLevel is the payload of [TopicAudioLevel]: the RMS level of one
// captured chunk, normalised to [0, 1], with the chunk's capture timestamp.
type AudioLevel struct {
	RMS       float64
	Timestamp time.Duration
}

// Transcript is the payload of [TopicTranscript].
type Transcript struct {
	Text string
}

// Reply is the payload of [TopicReply].
type Reply struct {
	Text string
}

// ModeSwitch is the payload of [TopicModeSwitch]. From is empty when a mode
// was entered from nothing active, To is empty on a plain exit.
type ModeSwitch struct {
	From string
	To   string
}
