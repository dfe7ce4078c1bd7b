// Package app wires all Vesper subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves metrics and health endpoints until the context is
// cancelled, and Shutdown tears everything down in order.
//
// For testing, inject doubles via functional options (WithRegistry, WithBus,
// etc.). When an option is not provided, New creates real implementations
// from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vesper-voice/vesper/internal/config"
	"github.com/vesper-voice/vesper/internal/health"
	"github.com/vesper-voice/vesper/internal/mode"
	"github.com/vesper-voice/vesper/internal/observe"
	"github.com/vesper-voice/vesper/internal/pipeline"
	"github.com/vesper-voice/vesper/internal/registry"
	"github.com/vesper-voice/vesper/internal/transcript"
	"github.com/vesper-voice/vesper/pkg/audio"
	"github.com/vesper-voice/vesper/pkg/event"
	"github.com/vesper-voice/vesper/pkg/provider/llm"
)

// closerTimeout bounds how long Shutdown waits for the provider registry.
const closerTimeout = 10 * time.Second

// Devices carries the audio backends selected by main. Input captures the
// microphone, Output plays synthesized speech. Either may be nil in
// text-only deployments; voice operations then fail at Start.
type Devices struct {
	Input  audio.Device
	Output audio.Device
}

// App owns all subsystem lifetimes and exposes the interaction operations:
// voice (StartVoice/StopVoice) and text (Ask/AskClipboard).
type App struct {
	log     *slog.Logger
	bus     *event.Bus
	reg     *registry.Registry
	modes   *mode.Manager
	orch    *pipeline.Orchestrator
	tracker *audio.Tracker

	metrics  *observe.Metrics
	observer *observe.Observer

	// guarded by mu: the live config and the log level handle.
	mu      sync.Mutex
	cfg     *config.Config
	leveler *slog.LevelVar

	httpSrv *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRegistry injects a pre-populated provider registry. New skips
// config-driven provider construction and InitAll when one is injected.
func WithRegistry(r *registry.Registry) Option {
	return func(a *App) { a.reg = r }
}

// WithBus injects an event bus instead of creating one.
func WithBus(b *event.Bus) Option {
	return func(a *App) { a.bus = b }
}

// WithLogger sets the logger used by the app and its subsystems.
func WithLogger(log *slog.Logger) Option {
	return func(a *App) { a.log = log }
}

// WithLogLevel hands the app the level variable backing the process logger
// so config reloads can change verbosity at runtime.
func WithLogLevel(v *slog.LevelVar) Option {
	return func(a *App) { a.leveler = v }
}

// WithMetrics injects a metrics bundle instead of using the global meter
// provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The devices struct
// comes from main (selected per the audio config). Use Option functions to
// inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: provider construction and
// Init, observer attachment, orchestrator assembly, and mode bindings.
func New(ctx context.Context, cfg *config.Config, devices Devices, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.log == nil {
		a.log = slog.Default()
	}

	// ── 1. Event bus ─────────────────────────────────────────────────────
	ownBus := a.bus == nil
	if ownBus {
		a.bus = event.NewBus()
	}

	// ── 2. Providers ─────────────────────────────────────────────────────
	ownReg := a.reg == nil
	if ownReg {
		a.reg = registry.New(a.log)
		if err := BuildProviders(cfg, a.reg, a.log); err != nil {
			return nil, fmt.Errorf("app: build providers: %w", err)
		}
		if err := a.reg.InitAll(ctx); err != nil {
			return nil, fmt.Errorf("app: init providers: %w", err)
		}
	}

	// ── 3. Orchestrator ──────────────────────────────────────────────────
	a.tracker = audio.NewTracker()
	startup := cfg.StartupAssistant()
	pipeOpts := []pipeline.Option{
		pipeline.WithPersona(pipeline.Persona{
			Name:         startup.Name,
			SystemPrompt: startup.SystemPrompt,
			Voice:        voiceProfile(cfg, startup),
		}),
		pipeline.WithLogger(a.log),
	}
	if cfg.Audio.ChunkMillis > 0 {
		pipeOpts = append(pipeOpts, pipeline.WithChunkMillis(cfg.Audio.ChunkMillis))
	}
	if cfg.Audio.Silence.Threshold > 0 && cfg.Audio.Silence.HangChunks > 0 {
		pipeOpts = append(pipeOpts, pipeline.WithSilence(cfg.Audio.Silence.Threshold, cfg.Audio.Silence.HangChunks))
	}
	if cfg.Paths.ScratchDir != "" {
		pipeOpts = append(pipeOpts, pipeline.WithScratchDir(cfg.Paths.ScratchDir))
	}
	// Persona names plus configured terms feed the mishearing corrector.
	vocab := make([]string, 0, len(cfg.Assistants)+len(cfg.Vocabulary))
	for _, as := range cfg.Assistants {
		vocab = append(vocab, as.Name)
	}
	vocab = append(vocab, cfg.Vocabulary...)
	if corrector := transcript.NewCorrector(vocab); len(vocab) > 0 {
		pipeOpts = append(pipeOpts, pipeline.WithTranscriptFilter(func(text string) string {
			fixed, n := corrector.Correct(text)
			if n > 0 {
				a.log.Debug("transcript corrected", "replacements", n)
			}
			return fixed
		}))
	}
	a.orch = pipeline.New(a.reg, a.bus, devices.Input, devices.Output, a.tracker, pipeOpts...)
	a.closers = append(a.closers, func() error {
		a.orch.Close()
		return nil
	})

	// ── 4. Observability ─────────────────────────────────────────────────
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	a.observer = observe.NewObserver(a.metrics)
	if err := a.observer.Attach(a.bus); err != nil {
		return nil, fmt.Errorf("app: attach observer: %w", err)
	}
	a.closers = append(a.closers, func() error {
		a.observer.Detach(a.bus)
		return nil
	})

	// ── 5. Interaction modes ─────────────────────────────────────────────
	a.modes = mode.NewManager(a.bus)
	if err := a.bindModes(); err != nil {
		return nil, fmt.Errorf("app: bind modes: %w", err)
	}

	// Teardown order: pipeline and observer first, then the providers they
	// depend on, the bus last.
	if ownReg {
		a.closers = append(a.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), closerTimeout)
			defer cancel()
			return a.reg.ShutdownAll(ctx)
		})
	}
	if ownBus {
		a.closers = append(a.closers, func() error {
			a.bus.Close()
			return nil
		})
	}

	// ── 6. Metrics / health endpoints ────────────────────────────────────
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		health.New(
			health.ProviderChecker(a.reg),
			health.DeviceChecker(a.tracker),
		).Register(mux)
		a.httpSrv = &http.Server{Addr: cfg.Server.MetricsAddr, Handler: mux}
	}

	return a, nil
}

// bindModes records the event subscriptions each interaction mode owns.
// Attach happens on Enter/Switch; the handlers surface conversation progress
// in the log.
func (a *App) bindModes() error {
	logText := func(what string) event.Handler {
		return func(ev event.Event) {
			switch p := ev.Payload.(type) {
			case event.Transcript:
				a.log.Info(what, "text", p.Text)
			case event.Reply:
				a.log.Info(what, "text", p.Text)
			}
		}
	}
	if err := a.modes.Bind(mode.Pipeline, []mode.Binding{
		{Topic: event.TopicTranscript, Name: "app.transcript", Handler: logText("heard")},
		{Topic: event.TopicReply, Name: "app.reply", Handler: logText("replying")},
	}); err != nil {
		return err
	}
	return a.modes.Bind(mode.Regular, []mode.Binding{
		{Topic: event.TopicReply, Name: "app.reply", Handler: logText("answered")},
	})
}

// ─── Voice mode ──────────────────────────────────────────────────────────────

// StartVoice enters the voice interaction mode (switching out of text mode
// if it is active) and begins listening for an utterance.
func (a *App) StartVoice() error {
	switch a.modes.Active() {
	case mode.Pipeline:
		// Already in voice mode; just arm the pipeline again.
	case mode.Regular:
		if err := a.modes.Switch(mode.Pipeline); err != nil {
			return err
		}
	default:
		if err := a.modes.Enter(mode.Pipeline); err != nil {
			return err
		}
	}
	return a.orch.Start()
}

// StopVoice cancels any in-flight interaction and leaves voice mode.
func (a *App) StopVoice() error {
	if err := a.orch.Cancel(); err != nil {
		return err
	}
	if a.modes.Active() == mode.Pipeline {
		a.modes.Exit()
	}
	return nil
}

// Pipeline exposes the orchestrator for state queries and error
// acknowledgement.
func (a *App) Pipeline() *pipeline.Orchestrator { return a.orch }

// ─── Text mode ───────────────────────────────────────────────────────────────

// Ask completes text against the active persona and language model,
// records the turn in the shared conversation history, and publishes the
// reply on the bus. It fails with [mode.ModeConflictError] while voice mode
// is active.
func (a *App) Ask(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", errors.New("app: empty prompt")
	}

	entered := true
	if err := a.modes.Enter(mode.Regular); err != nil {
		var conflict *mode.ModeConflictError
		if !errors.As(err, &conflict) || conflict.Active != mode.Regular {
			return "", err
		}
		entered = false // already in text mode, leave it active afterwards
	}
	if entered {
		defer a.modes.Exit()
	}

	p, err := a.reg.LLM()
	if err != nil {
		return "", err
	}

	persona := a.orch.Persona()
	req := llm.CompletionRequest{
		SystemPrompt: persona.SystemPrompt,
		Messages: append(a.orch.History(), llm.Message{
			Role:    llm.RoleUser,
			Content: text,
		}),
	}
	resp, err := p.Complete(ctx, req)
	if err != nil {
		return "", fmt.Errorf("app: complete: %w", err)
	}

	a.orch.RecordTurn(text, resp.Content)
	a.bus.Publish(event.TopicReply, event.Reply{Text: resp.Content})
	return resp.Content, nil
}

// AskClipboard reads the prompt from the system clipboard, completes it via
// [App.Ask], and writes the reply back to the clipboard.
func (a *App) AskClipboard(ctx context.Context) (string, error) {
	clip, err := a.reg.Clipboard()
	if err != nil {
		return "", err
	}
	text, err := clip.Read(ctx)
	if err != nil {
		return "", fmt.Errorf("app: read clipboard: %w", err)
	}
	reply, err := a.Ask(ctx, text)
	if err != nil {
		return "", err
	}
	if err := clip.Write(ctx, reply); err != nil {
		return "", fmt.Errorf("app: write clipboard: %w", err)
	}
	return reply, nil
}

// ─── Personas ────────────────────────────────────────────────────────────────

// SetAssistant switches the active persona: system prompt, voice profile,
// and, when the persona names a different provider, the active language
// model. The in-flight interaction keeps the persona it started with.
func (a *App) SetAssistant(name string) error {
	a.mu.Lock()
	cfg := a.cfg
	a.mu.Unlock()

	ac, ok := cfg.Assistant(name)
	if !ok {
		return fmt.Errorf("app: unknown assistant %q", name)
	}
	if ac.Provider != "" {
		if err := a.reg.ActivateLLM(ac.Provider); err != nil {
			return fmt.Errorf("app: activate %q: %w", ac.Provider, err)
		}
	}
	a.orch.SetPersona(pipeline.Persona{
		Name:         ac.Name,
		SystemPrompt: ac.SystemPrompt,
		Voice:        voiceProfile(cfg, ac),
	})
	a.log.Info("assistant switched", "name", ac.Name, "provider", ac.Provider)
	return nil
}

// ApplyConfig is the config watcher callback: it adopts the reloaded config
// for the hot-applicable settings (log level, active persona). Provider and
// device changes require a restart and are logged, not applied.
func (a *App) ApplyConfig(old, next *config.Config) {
	a.mu.Lock()
	a.cfg = next
	leveler := a.leveler
	a.mu.Unlock()

	diff := config.Diff(old, next)

	if leveler != nil && diff.LogLevelChanged {
		leveler.Set(diff.NewLogLevel.Level())
		a.log.Info("log level changed", "level", diff.NewLogLevel)
	}

	if providersChanged(old, next) {
		a.log.Warn("provider configuration changed, restart required to apply")
	}

	if !diff.ActiveAssistantChanged && !diff.AssistantsChanged {
		return
	}
	startup := next.StartupAssistant()
	if err := a.SetAssistant(startup.Name); err != nil {
		a.log.Warn("assistant reload failed", "name", startup.Name, "err", err)
	}
}

// providersChanged reports whether any provider slot names a different
// backend. Option maps are ignored: those feed construction, which only
// happens at startup anyway.
func providersChanged(old, next *config.Config) bool {
	return old.Providers.STT.Name != next.Providers.STT.Name ||
		old.Providers.TTS.Name != next.Providers.TTS.Name ||
		old.Providers.LLM.Name != next.Providers.LLM.Name ||
		old.Providers.Clipboard.Name != next.Providers.Clipboard.Name
}

// ─── Run / Shutdown ──────────────────────────────────────────────────────────

// Run serves the metrics and health endpoints (when configured) and blocks
// until ctx is cancelled. It returns the context error, or the server error
// if the listener fails first.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	if a.httpSrv != nil {
		go func() {
			a.log.Info("serving metrics and health", "addr", a.httpSrv.Addr)
			if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	a.log.Info("app running", "assistant", a.orch.Persona().Name)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("app: metrics server: %w", err)
	}
}

// Shutdown tears all subsystems down in order. It is safe to call more than
// once. Shutdown honors the context deadline: if ctx expires before all
// closers finish, remaining closers are skipped and the context error is
// returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.log.Info("shutting down", "closers", len(a.closers))

		// Stop accepting scrape requests first.
		if a.httpSrv != nil {
			if err := a.httpSrv.Shutdown(ctx); err != nil {
				a.log.Warn("metrics server shutdown error", "err", err)
			}
		}

		// Leave whatever mode is active so its subscriptions detach.
		if a.modes.Active() != "" {
			a.modes.Exit()
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.log.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.log.Warn("closer error", "index", i, "err", err)
			}
		}

		a.log.Info("shutdown complete")
	})
	return shutdownErr
}
