package app

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/vesper-voice/vesper/internal/config"
	"github.com/vesper-voice/vesper/internal/mode"
	"github.com/vesper-voice/vesper/internal/registry"
	"github.com/vesper-voice/vesper/pkg/audio"
	audiomock "github.com/vesper-voice/vesper/pkg/audio/mock"
	"github.com/vesper-voice/vesper/pkg/event"
	clipmock "github.com/vesper-voice/vesper/pkg/provider/clipboard/mock"
	"github.com/vesper-voice/vesper/pkg/provider/llm"
	llmmock "github.com/vesper-voice/vesper/pkg/provider/llm/mock"
	sttmock "github.com/vesper-voice/vesper/pkg/provider/stt/mock"
	ttsmock "github.com/vesper-voice/vesper/pkg/provider/tts/mock"
)

func testConfig() *config.Config {
	return &config.Config{
		ActiveAssistant: "vesper",
		Assistants: []config.AssistantConfig{
			{Name: "vesper", SystemPrompt: "Be brief.", Provider: "primary"},
			{Name: "scribe", SystemPrompt: "Take notes.", Provider: "secondary"},
		},
	}
}

type testApp struct {
	app     *App
	bus     *event.Bus
	reg     *registry.Registry
	primary *llmmock.Provider
	second  *llmmock.Provider
	clip    *clipmock.Provider
	input   *audiomock.Device
}

// newTestApp wires an App around mock providers and devices. The input
// device delivers silence slowly enough that voice mode stays in Listening
// until cancelled.
func newTestApp(t *testing.T, cfg *config.Config, withClipboard bool) *testApp {
	t.Helper()

	reg := registry.New(nil)
	primary := &llmmock.Provider{Response: llm.CompletionResponse{Content: "the answer"}}
	second := &llmmock.Provider{Response: llm.CompletionResponse{Content: "noted"}}
	if err := reg.RegisterLLM("primary", primary); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := reg.RegisterLLM("secondary", second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := reg.RegisterSTT("mock", &sttmock.Provider{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := reg.RegisterTTS("mock", &ttsmock.Provider{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	clip := &clipmock.Provider{}
	if withClipboard {
		if err := reg.RegisterClipboard("mock", clip); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := reg.InitAll(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	format := audio.Format{SampleRate: 16000, Channels: 1}
	quiet := make([]audio.AudioFrame, 512)
	for i := range quiet {
		quiet[i] = audio.AudioFrame{
			Data:       make([]byte, 640),
			SampleRate: format.SampleRate,
			Channels:   format.Channels,
		}
	}
	input := &audiomock.Device{
		DeviceName: "mic",
		Format:     format,
		Input:      &audiomock.InputStream{Frames: quiet, ReadDelay: 5 * time.Millisecond},
	}
	output := &audiomock.Device{
		DeviceName: "speaker",
		Format:     format,
		Output:     &audiomock.OutputStream{},
	}

	bus := event.NewBus()
	t.Cleanup(bus.Close)

	a, err := New(context.Background(), cfg, Devices{Input: input, Output: output},
		WithRegistry(reg), WithBus(bus))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() {
		if err := a.Shutdown(context.Background()); err != nil {
			t.Errorf("shutdown: %v", err)
		}
	})

	return &testApp{app: a, bus: bus, reg: reg, primary: primary, second: second, clip: clip, input: input}
}

func TestAsk_CompletesAndRecordsTurn(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t, testConfig(), true)

	var replies []string
	if err := ta.bus.Subscribe(event.TopicReply, "test.reply", func(ev event.Event) {
		if r, ok := ev.Payload.(event.Reply); ok {
			replies = append(replies, r.Text)
		}
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reply, err := ta.app.Ask(context.Background(), "what is the capital of France?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "the answer" {
		t.Errorf("reply = %q, want %q", reply, "the answer")
	}

	req := ta.primary.LastRequest
	if req.SystemPrompt != "Be brief." {
		t.Errorf("SystemPrompt = %q, want the active persona prompt", req.SystemPrompt)
	}
	if n := len(req.Messages); n != 1 {
		t.Fatalf("len(Messages) = %d, want 1", n)
	}
	if req.Messages[0].Content != "what is the capital of France?" {
		t.Errorf("user message = %q", req.Messages[0].Content)
	}

	hist := ta.app.Pipeline().History()
	if len(hist) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(hist))
	}
	if hist[1].Role != llm.RoleAssistant || hist[1].Content != "the answer" {
		t.Errorf("history[1] = %+v", hist[1])
	}

	ta.bus.Flush()
	if len(replies) != 1 || replies[0] != "the answer" {
		t.Errorf("published replies = %v", replies)
	}

	if got := ta.app.modes.Active(); got != "" {
		t.Errorf("mode still active after Ask: %q", got)
	}
}

func TestAsk_SecondTurnCarriesHistory(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t, testConfig(), false)

	ctx := context.Background()
	if _, err := ta.app.Ask(ctx, "first"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ta.app.Ask(ctx, "second"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := ta.primary.LastRequest
	if n := len(req.Messages); n != 3 {
		t.Fatalf("len(Messages) = %d, want prior turn plus new prompt", n)
	}
	if req.Messages[0].Content != "first" || req.Messages[1].Content != "the answer" {
		t.Errorf("history not carried: %+v", req.Messages[:2])
	}
}

func TestAsk_EmptyPrompt(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t, testConfig(), false)

	if _, err := ta.app.Ask(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty prompt")
	}
	if ta.primary.CallCountComplete != 0 {
		t.Errorf("Complete called %d times, want 0", ta.primary.CallCountComplete)
	}
}

func TestAsk_ConflictsWithVoiceMode(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t, testConfig(), false)

	if err := ta.app.StartVoice(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := ta.app.Ask(context.Background(), "hello")
	var conflict *mode.ModeConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("err = %v, want ModeConflictError", err)
	}
	if conflict.Active != mode.Pipeline {
		t.Errorf("conflict.Active = %q, want pipeline", conflict.Active)
	}

	if err := ta.app.StopVoice(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ta.app.modes.Active(); got != "" {
		t.Errorf("mode still active after StopVoice: %q", got)
	}

	// Text mode works again once voice mode is gone.
	if _, err := ta.app.Ask(context.Background(), "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAskClipboard_RoundTrip(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t, testConfig(), true)
	ta.clip.Contents = "summarise this"

	reply, err := ta.app.AskClipboard(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "the answer" {
		t.Errorf("reply = %q", reply)
	}
	if ta.clip.Contents != "the answer" {
		t.Errorf("clipboard = %q, want the reply written back", ta.clip.Contents)
	}
	if ta.primary.LastRequest.Messages[0].Content != "summarise this" {
		t.Errorf("prompt = %q", ta.primary.LastRequest.Messages[0].Content)
	}
}

func TestAskClipboard_NotRegistered(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t, testConfig(), false)

	_, err := ta.app.AskClipboard(context.Background())
	if !errors.Is(err, registry.ErrNotRegistered) {
		t.Fatalf("err = %v, want ErrNotRegistered", err)
	}
}

func TestSetAssistant_SwitchesPersonaAndModel(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t, testConfig(), false)

	if err := ta.app.SetAssistant("scribe"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ta.app.Pipeline().Persona().SystemPrompt; got != "Take notes." {
		t.Errorf("SystemPrompt = %q", got)
	}

	reply, err := ta.app.Ask(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "noted" {
		t.Errorf("reply = %q, want the secondary model's answer", reply)
	}
	if ta.primary.CallCountComplete != 0 {
		t.Errorf("primary model called %d times after switch", ta.primary.CallCountComplete)
	}
}

func TestSetAssistant_Unknown(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t, testConfig(), false)

	if err := ta.app.SetAssistant("nobody"); err == nil {
		t.Fatal("expected error for unknown assistant")
	}
}

func TestApplyConfig_HotSettings(t *testing.T) {
	t.Parallel()

	leveler := new(slog.LevelVar)
	cfg := testConfig()
	cfg.Server.LogLevel = config.LogInfo

	ta := newTestApp(t, cfg, false)
	ta.app.leveler = leveler

	next := testConfig()
	next.Server.LogLevel = config.LogDebug
	next.ActiveAssistant = "scribe"

	ta.app.ApplyConfig(cfg, next)

	if leveler.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", leveler.Level())
	}
	if got := ta.app.Pipeline().Persona().Name; got != "scribe" {
		t.Errorf("persona = %q, want scribe", got)
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()
	ta := newTestApp(t, testConfig(), false)

	if err := ta.app.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ta.app.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
