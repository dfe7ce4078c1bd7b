// Package pipeline implements the voice interaction state machine: capture →
// transcription → completion → synthesis → playback.
//
// One run-loop goroutine owns the pipeline state. Commands (Start, Cancel,
// Acknowledge) and provider results arrive as messages on a single channel,
// so transitions are strictly serialized and never pipelined. Provider calls
// run per the adapter's declared execution mode: ExecInline adapters run
// directly on the run loop, ExecWorker adapters and device loops run on a
// bounded worker pool with results delivered back as messages tagged with an
// epoch counter, and results from a cancelled stage are discarded.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/vesper-voice/vesper/internal/registry"
	"github.com/vesper-voice/vesper/pkg/audio"
	"github.com/vesper-voice/vesper/pkg/event"
	"github.com/vesper-voice/vesper/pkg/provider"
	"github.com/vesper-voice/vesper/pkg/provider/llm"
	"github.com/vesper-voice/vesper/pkg/provider/stt"
	"github.com/vesper-voice/vesper/pkg/provider/tts"
)

const (
	// defaultChunkMillis is the capture/playback chunk duration.
	defaultChunkMillis = 20

	// defaultWorkers bounds concurrent blocking work (provider calls plus
	// the capture and playback loops).
	defaultWorkers = 4

	// defaultSilenceThreshold is the RMS level below which a chunk counts
	// as quiet.
	defaultSilenceThreshold = 0.015

	// defaultSilenceHang is how many consecutive quiet chunks end an
	// utterance once speech has been observed.
	defaultSilenceHang = 15
)

// Persona selects the system prompt and voice used for a conversation.
type Persona struct {
	Name         string
	SystemPrompt string
	Voice        tts.VoiceProfile
}

// Orchestrator drives the voice pipeline. Construct with New; it is safe for
// concurrent use.
type Orchestrator struct {
	reg     *registry.Registry
	bus     *event.Bus
	input   audio.Device
	output  audio.Device
	tracker *audio.Tracker
	log     *slog.Logger

	chunkMillis      int
	workerCount      int64
	silenceThreshold float64
	silenceHang      int
	scratchDir       string
	transcriptFilter func(string) string

	workers *semaphore.Weighted
	ctx     context.Context
	cancel  context.CancelFunc
	msgs    chan message
	done    chan struct{}

	// guarded by mu; state is written only by the run loop.
	mu      sync.Mutex
	state   State
	lastErr *ErrorInfo
	persona Persona
	history []llm.Message

	// run-loop-owned; never touched outside it.
	epoch       uint64
	session     *audio.Session
	buffer      *audio.CaptureBuffer
	stopCh      chan struct{}
	captureDone chan struct{}
	stageCancel context.CancelFunc
}

// Option is a functional option for configuring an Orchestrator.
type Option func(*Orchestrator)

// WithChunkMillis sets the capture/playback chunk duration in milliseconds.
func WithChunkMillis(ms int) Option {
	return func(o *Orchestrator) { o.chunkMillis = ms }
}

// WithSilence sets the RMS silence threshold and the number of consecutive
// quiet chunks that end an utterance.
func WithSilence(threshold float64, hangChunks int) Option {
	return func(o *Orchestrator) {
		o.silenceThreshold = threshold
		o.silenceHang = hangChunks
	}
}

// WithScratchDir enables best-effort WAV dumps of captured utterances into
// dir before transcription.
func WithScratchDir(dir string) Option {
	return func(o *Orchestrator) { o.scratchDir = dir }
}

// WithWorkers bounds the worker pool. Must be at least 2 so a provider call
// can run while a capture or playback loop holds a slot.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) { o.workerCount = int64(n) }
}

// WithPersona sets the initial persona.
func WithPersona(p Persona) Option {
	return func(o *Orchestrator) { o.persona = p }
}

// WithLogger sets the logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithTranscriptFilter installs a post-processing step applied to every
// non-empty transcript before it reaches the language model (vocabulary
// correction, normalisation). The filter runs on the run loop and must be
// fast.
func WithTranscriptFilter(f func(string) string) Option {
	return func(o *Orchestrator) { o.transcriptFilter = f }
}

// New constructs an Orchestrator in the Idle state and starts its run loop.
// Call Close to stop it.
func New(reg *registry.Registry, bus *event.Bus, input, output audio.Device, tracker *audio.Tracker, opts ...Option) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		reg:              reg,
		bus:              bus,
		input:            input,
		output:           output,
		tracker:          tracker,
		log:              slog.Default(),
		chunkMillis:      defaultChunkMillis,
		workerCount:      defaultWorkers,
		silenceThreshold: defaultSilenceThreshold,
		silenceHang:      defaultSilenceHang,
		ctx:              ctx,
		cancel:           cancel,
		msgs:             make(chan message),
		done:             make(chan struct{}),
		state:            StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.workers = semaphore.NewWeighted(o.workerCount)
	go o.run()
	return o
}

// ─── messages ─────────────────────────────────────────────────────────────────

type msgKind int

const (
	msgStart msgKind = iota
	msgCancel
	msgAcknowledge
	msgCaptureEnded
	msgTranscript
	msgCompletion
	msgSynthesis
	msgPlaybackDone
)

type message struct {
	kind  msgKind
	epoch uint64
	reply chan error

	cancelled  bool
	err        error
	transcript stt.Transcript
	completion *llm.CompletionResponse
	frames     []audio.AudioFrame
}

// send delivers a message to the run loop unless the orchestrator is closing.
func (o *Orchestrator) send(m message) {
	select {
	case o.msgs <- m:
	case <-o.ctx.Done():
	}
}

// post submits a command and waits for the run loop to process it.
func (o *Orchestrator) post(kind msgKind) error {
	reply := make(chan error, 1)
	select {
	case o.msgs <- message{kind: kind, reply: reply}:
	case <-o.ctx.Done():
		return o.ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-o.ctx.Done():
		return o.ctx.Err()
	}
}

// ─── public API ───────────────────────────────────────────────────────────────

// Start begins a listening cycle. Fails unless the pipeline is Idle.
func (o *Orchestrator) Start() error { return o.post(msgStart) }

// Cancel aborts the in-progress interaction and returns the pipeline to
// Idle. Resources acquired by the current stage are released; results of
// in-flight provider calls are discarded. A no-op when Idle.
func (o *Orchestrator) Cancel() error { return o.post(msgCancel) }

// Acknowledge clears the Error state. It succeeds only when no audio session
// remains open.
func (o *Orchestrator) Acknowledge() error { return o.post(msgAcknowledge) }

// State returns the current pipeline state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastError returns the failure that put the pipeline into the Error state,
// or nil.
func (o *Orchestrator) LastError() *ErrorInfo {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// SetPersona replaces the persona used for subsequent interactions. The
// in-flight interaction keeps the persona it started with.
func (o *Orchestrator) SetPersona(p Persona) {
	o.mu.Lock()
	o.persona = p
	o.mu.Unlock()
}

// Persona returns the current persona.
func (o *Orchestrator) Persona() Persona {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.persona
}

// History returns a copy of the conversation history.
func (o *Orchestrator) History() []llm.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]llm.Message, len(o.history))
	copy(out, o.history)
	return out
}

// RecordTurn appends a user/assistant exchange to the conversation history.
// Text-mode interactions use it so that voice and text turns share one
// conversation.
func (o *Orchestrator) RecordTurn(user, assistant string) {
	o.mu.Lock()
	o.history = append(o.history,
		llm.Message{Role: llm.RoleUser, Content: user},
		llm.Message{Role: llm.RoleAssistant, Content: assistant},
	)
	o.mu.Unlock()
}

// ClearHistory starts a fresh conversation.
func (o *Orchestrator) ClearHistory() {
	o.mu.Lock()
	o.history = nil
	o.mu.Unlock()
}

// Close stops the run loop and releases any open capture session. In-flight
// provider calls are cancelled.
func (o *Orchestrator) Close() {
	o.cancel()
	<-o.done
}

// ─── run loop ─────────────────────────────────────────────────────────────────

func (o *Orchestrator) run() {
	defer close(o.done)
	for {
		select {
		case <-o.ctx.Done():
			o.teardown()
			return
		case m := <-o.msgs:
			o.handle(m)
		}
	}
}

func (o *Orchestrator) handle(m message) {
	switch m.kind {
	case msgStart:
		m.reply <- o.handleStart()
	case msgCancel:
		m.reply <- o.handleCancel()
	case msgAcknowledge:
		m.reply <- o.handleAcknowledge()
	case msgCaptureEnded:
		o.handleCaptureEnded(m)
	case msgTranscript:
		o.handleTranscript(m)
	case msgCompletion:
		o.handleCompletion(m)
	case msgSynthesis:
		o.handleSynthesis(m)
	case msgPlaybackDone:
		o.handlePlaybackDone(m)
	}
}

// teardown releases listening resources when the orchestrator shuts down.
func (o *Orchestrator) teardown() {
	if o.session != nil {
		close(o.stopCh)
		<-o.captureDone
		o.closeSession()
	}
}

func (o *Orchestrator) handleStart() error {
	if s := o.State(); s != StateIdle {
		return fmt.Errorf("pipeline: cannot start while %s", s)
	}
	return o.enterListening()
}

func (o *Orchestrator) handleCancel() error {
	switch o.State() {
	case StateIdle:
		return nil
	case StateError:
		return errors.New("pipeline: in error state, acknowledge instead")
	case StateListening:
		close(o.stopCh)
		<-o.captureDone
		o.closeSession()
		o.epoch++
		o.toState(StateIdle)
		return nil
	case StateSpeaking:
		// The playback goroutine stops at the next frame boundary and
		// closes its own stream; its completion message is discarded.
		close(o.stopCh)
		o.epoch++
		o.toState(StateIdle)
		return nil
	default: // Transcribing, Generating, Synthesizing
		if o.stageCancel != nil {
			o.stageCancel()
			o.stageCancel = nil
		}
		o.epoch++
		o.toState(StateIdle)
		return nil
	}
}

func (o *Orchestrator) handleAcknowledge() error {
	if s := o.State(); s != StateError {
		return fmt.Errorf("pipeline: nothing to acknowledge in state %s", s)
	}
	if n := o.tracker.OpenCount(); n != 0 {
		return fmt.Errorf("pipeline: %d audio session(s) still open", n)
	}
	o.mu.Lock()
	o.lastErr = nil
	o.mu.Unlock()
	o.toState(StateIdle)
	return nil
}

// ─── listening ────────────────────────────────────────────────────────────────

func (o *Orchestrator) enterListening() error {
	native := o.input.NativeFormat()
	chunk := native.SampleRate * o.chunkMillis / 1000
	sess, err := audio.OpenCapture(o.input, chunk, o.tracker)
	if err != nil {
		return fmt.Errorf("pipeline: open capture: %w", err)
	}

	o.session = sess
	o.buffer = audio.NewCaptureBuffer(sess.NativeFormat())
	o.stopCh = make(chan struct{})
	o.captureDone = make(chan struct{})

	det := &silenceDetector{threshold: o.silenceThreshold, hang: o.silenceHang}
	go o.captureLoop(sess, o.buffer, det, o.stopCh, o.captureDone, o.epoch)

	o.toState(StateListening)
	return nil
}

// captureLoop reads chunks until silence ends the utterance, the stop channel
// closes, or the stream fails. It closes done before sending its final
// message so the run loop can synchronize on goroutine exit without
// deadlocking on the message channel.
func (o *Orchestrator) captureLoop(sess *audio.Session, buf *audio.CaptureBuffer, det *silenceDetector, stop, done chan struct{}, epoch uint64) {
	final := message{kind: msgCaptureEnded, epoch: epoch}
	defer func() {
		close(done)
		o.send(final)
	}()

	if err := o.workers.Acquire(o.ctx, 1); err != nil {
		final.cancelled = true
		return
	}
	defer o.workers.Release(1)

	for {
		select {
		case <-stop:
			final.cancelled = true
			return
		default:
		}

		frame, err := sess.Read()
		if errors.Is(err, audio.ErrOverflow) {
			o.log.Warn("input overflow, continuing", "session", sess.ID())
			continue
		}
		if err != nil {
			final.err = err
			return
		}
		if err := buf.Append(frame); err != nil {
			final.err = err
			return
		}

		// RMS reports native 16-bit units; the threshold and level meter
		// work in fractions of full scale.
		level := audio.RMS(frame.Data) / 32768
		o.bus.Publish(event.TopicAudioLevel, event.AudioLevel{RMS: level, Timestamp: frame.Timestamp})

		if det.observe(level) {
			return
		}
	}
}

func (o *Orchestrator) handleCaptureEnded(m message) {
	if m.epoch != o.epoch {
		return
	}
	// The capture goroutine has exited (done closed before send), so the
	// session can be drained and closed without a concurrent reader.
	o.closeSession()

	if m.cancelled {
		// Stop was requested outside handleCancel (shutdown path).
		o.toState(StateIdle)
		return
	}
	if m.err != nil {
		o.enterError(StateListening, m.err)
		return
	}

	o.toState(StateTranscribing)
	o.dumpCapture()

	sttP, err := o.reg.STT()
	if err != nil {
		o.enterError(StateTranscribing, err)
		return
	}
	frames, err := o.buffer.Take(sttP.RequiredFormat(), 0)
	if err != nil {
		o.enterError(StateTranscribing, err)
		return
	}
	o.runTranscribe(sttP, frames)
}

// closeSession drains buffered device data into the capture buffer and closes
// the session. Must only run after the capture goroutine has exited.
func (o *Orchestrator) closeSession() {
	if o.session == nil {
		return
	}
	buf := o.buffer
	if err := o.session.Close(func(f audio.AudioFrame) {
		if err := buf.Append(f); err != nil {
			o.log.Warn("drained frame dropped", "error", err)
		}
	}); err != nil {
		o.log.Warn("capture session close", "error", err)
	}
	o.session = nil
}

// dumpCapture writes the utterance into the scratch directory. Best-effort;
// failures are logged and transcription proceeds.
func (o *Orchestrator) dumpCapture() {
	if o.scratchDir == "" {
		return
	}
	frame := o.buffer.Frame()
	if len(frame.Data) == 0 {
		return
	}
	if err := os.MkdirAll(o.scratchDir, 0o755); err != nil {
		o.log.Warn("scratch dir unavailable", "dir", o.scratchDir, "error", err)
		return
	}
	path := filepath.Join(o.scratchDir, fmt.Sprintf("utterance-%s.wav", uuid.NewString()))
	if err := os.WriteFile(path, audio.EncodeWAV(frame), 0o644); err != nil {
		o.log.Warn("utterance dump failed", "path", path, "error", err)
	}
}

// ─── stage execution ──────────────────────────────────────────────────────────

// execute runs one provider call for the current stage, honouring the
// adapter's declared execution mode. ExecInline calls run synchronously on
// the run loop and their result is dispatched directly: the only callers are
// stage handlers, which already run on the run loop. ExecWorker calls go to
// the bounded worker pool and deliver their result as a message.
func (o *Orchestrator) execute(mode provider.ExecMode, kind msgKind, work func(context.Context) message) {
	epoch := o.epoch
	ctx, cancel := context.WithCancel(o.ctx)
	o.stageCancel = cancel

	if mode == provider.ExecInline {
		m := work(ctx)
		cancel()
		m.kind = kind
		m.epoch = epoch
		o.handle(m)
		return
	}

	go func() {
		defer cancel()
		if err := o.workers.Acquire(ctx, 1); err != nil {
			o.send(message{kind: kind, epoch: epoch, err: err})
			return
		}
		defer o.workers.Release(1)
		m := work(ctx)
		m.kind = kind
		m.epoch = epoch
		o.send(m)
	}()
}

func (o *Orchestrator) runTranscribe(p stt.Provider, frames []audio.AudioFrame) {
	o.execute(p.ExecMode(), msgTranscript, func(ctx context.Context) message {
		tr, err := p.Transcribe(ctx, frames)
		return message{transcript: tr, err: err}
	})
}

func (o *Orchestrator) runComplete(p llm.Provider, req llm.CompletionRequest) {
	o.execute(p.ExecMode(), msgCompletion, func(ctx context.Context) message {
		resp, err := p.Complete(ctx, req)
		return message{completion: resp, err: err}
	})
}

func (o *Orchestrator) runSynthesize(p tts.Provider, text string, voice tts.VoiceProfile) {
	o.execute(p.ExecMode(), msgSynthesis, func(ctx context.Context) message {
		frames, err := p.Synthesize(ctx, text, voice)
		return message{frames: frames, err: err}
	})
}

// ─── stage results ────────────────────────────────────────────────────────────

func (o *Orchestrator) handleTranscript(m message) {
	if m.epoch != o.epoch || o.State() != StateTranscribing {
		return
	}
	o.stageCancel = nil
	if m.err != nil {
		o.enterError(StateTranscribing, m.err)
		return
	}

	text := strings.TrimSpace(m.transcript.Text)
	if text == "" {
		// Nothing was said. Resume listening without involving the LLM.
		o.log.Debug("empty transcript, resuming listening")
		if err := o.enterListening(); err != nil {
			o.enterError(StateListening, err)
		}
		return
	}
	if o.transcriptFilter != nil {
		text = o.transcriptFilter(text)
	}

	o.bus.Publish(event.TopicTranscript, event.Transcript{Text: text})

	o.mu.Lock()
	o.history = append(o.history, llm.Message{Role: llm.RoleUser, Content: text})
	msgs := make([]llm.Message, len(o.history))
	copy(msgs, o.history)
	persona := o.persona
	o.mu.Unlock()

	llmP, err := o.reg.LLM()
	if err != nil {
		o.enterError(StateGenerating, err)
		return
	}
	o.toState(StateGenerating)
	o.runComplete(llmP, llm.CompletionRequest{
		SystemPrompt: persona.SystemPrompt,
		Messages:     msgs,
	})
}

func (o *Orchestrator) handleCompletion(m message) {
	if m.epoch != o.epoch || o.State() != StateGenerating {
		return
	}
	o.stageCancel = nil
	if m.err != nil {
		o.enterError(StateGenerating, m.err)
		return
	}

	reply := m.completion.Content
	o.bus.Publish(event.TopicReply, event.Reply{Text: reply})

	o.mu.Lock()
	o.history = append(o.history, llm.Message{Role: llm.RoleAssistant, Content: reply})
	persona := o.persona
	o.mu.Unlock()

	ttsP, err := o.reg.TTS()
	if err != nil {
		o.enterError(StateSynthesizing, err)
		return
	}
	o.toState(StateSynthesizing)
	o.runSynthesize(ttsP, reply, persona.Voice)
}

func (o *Orchestrator) handleSynthesis(m message) {
	if m.epoch != o.epoch || o.State() != StateSynthesizing {
		return
	}
	o.stageCancel = nil
	if m.err != nil {
		o.enterError(StateSynthesizing, m.err)
		return
	}
	if len(m.frames) == 0 {
		// No audio to speak; the interaction is complete.
		o.log.Debug("synthesis produced no audio")
		o.toState(StateIdle)
		return
	}

	native := o.output.NativeFormat()
	chunk := native.SampleRate * o.chunkMillis / 1000
	playback, err := audio.OpenPlayback(o.output, chunk, o.tracker)
	if err != nil {
		o.enterError(StateSpeaking, err)
		return
	}

	o.stopCh = make(chan struct{})
	go o.playbackLoop(playback, m.frames, o.stopCh, o.epoch)
	o.toState(StateSpeaking)
}

// playbackLoop writes frames to the playback stream, converting each to the
// device's native format, then closes the stream. It owns the stream: the
// stream is closed on every exit path so the session tracker always drains.
func (o *Orchestrator) playbackLoop(playback *audio.Playback, frames []audio.AudioFrame, stop chan struct{}, epoch uint64) {
	final := message{kind: msgPlaybackDone, epoch: epoch}
	defer func() {
		if err := playback.Close(); err != nil && final.err == nil {
			final.err = err
		}
		o.send(final)
	}()

	if err := o.workers.Acquire(o.ctx, 1); err != nil {
		final.cancelled = true
		return
	}
	defer o.workers.Release(1)

	native := playback.NativeFormat()
	for _, frame := range frames {
		select {
		case <-stop:
			final.cancelled = true
			return
		default:
		}

		converted, err := audio.Convert(frame, native)
		if err != nil {
			final.err = err
			return
		}
		if err := playback.Write(converted); err != nil {
			final.err = err
			return
		}
	}
}

func (o *Orchestrator) handlePlaybackDone(m message) {
	if m.epoch != o.epoch || o.State() != StateSpeaking {
		return
	}
	if m.err != nil {
		o.enterError(StateSpeaking, m.err)
		return
	}
	o.toState(StateIdle)
}

// ─── transitions ──────────────────────────────────────────────────────────────

func (o *Orchestrator) toState(next State) {
	o.mu.Lock()
	prev := o.state
	o.state = next
	o.mu.Unlock()
	if prev == next {
		return
	}

	now := time.Now()
	o.bus.Publish(event.TopicStageLeft, event.StageChange{Stage: prev.String(), At: now})
	o.bus.Publish(event.TopicStageEntered, event.StageChange{Stage: next.String(), At: now})
	o.log.Debug("pipeline transition", "from", prev.String(), "to", next.String())
}

func (o *Orchestrator) enterError(stage State, err error) {
	released := o.tracker.OpenCount() == 0
	info := &ErrorInfo{Stage: stage, Err: err, Released: released}

	o.mu.Lock()
	o.lastErr = info
	o.mu.Unlock()

	o.log.Error("pipeline stage failed", "stage", stage.String(), "error", err, "released", released)
	o.bus.Publish(event.TopicPipelineError, event.PipelineError{
		Stage:    stage.String(),
		Err:      err,
		Released: released,
	})
	o.toState(StateError)
}
