// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/vesper-voice/vesper/pkg/audio"
	"github.com/vesper-voice/vesper/pkg/provider"
	"github.com/vesper-voice/vesper/pkg/provider/stt"
)

// Compile-time assertions.
var (
	_ stt.Provider       = (*NativeProvider)(nil)
	_ provider.Lifecycle = (*NativeProvider)(nil)
)

// NativeProvider implements stt.Provider using whisper.cpp Go bindings
// (CGO), eliminating HTTP overhead entirely. The model is loaded once in
// Init and shared across all Transcribe calls; each call creates its own
// whisper context, which is what the bindings require for concurrency.
type NativeProvider struct {
	modelPath string
	language  string

	mu    sync.Mutex
	model whisperlib.Model
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// NewNative creates a NativeProvider for the whisper.cpp model at modelPath.
// The model file is not touched until Init loads it.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	p := &NativeProvider{
		modelPath: modelPath,
		language:  defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements provider.Adapter.
func (p *NativeProvider) Name() string { return "whisper-native" }

// ExecMode implements provider.Adapter. Inference is CPU-heavy.
func (p *NativeProvider) ExecMode() provider.ExecMode { return provider.ExecWorker }

// RequiredFormat implements stt.Provider. whisper.cpp models are trained on
// 16 kHz mono audio.
func (p *NativeProvider) RequiredFormat() audio.Format {
	return audio.Format{SampleRate: defaultSampleRate, Channels: 1}
}

// Init implements provider.Lifecycle by loading the model.
func (p *NativeProvider) Init(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model != nil {
		return nil
	}
	model, err := whisperlib.New(p.modelPath)
	if err != nil {
		return fmt.Errorf("whisper: load model %q: %w", p.modelPath, err)
	}
	p.model = model
	return nil
}

// Shutdown implements provider.Lifecycle by releasing the model.
func (p *NativeProvider) Shutdown(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.model == nil {
		return nil
	}
	err := p.model.Close()
	p.model = nil
	return err
}

// Transcribe runs whisper.cpp inference on the utterance.
func (p *NativeProvider) Transcribe(ctx context.Context, frames []audio.AudioFrame) (stt.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, err
	}

	required := p.RequiredFormat()
	if err := stt.ValidateFormat(frames, required); err != nil {
		return stt.Transcript{}, &stt.TranscriptionError{Provider: p.Name(), Audio: stt.FramesDuration(frames), Err: err}
	}

	p.mu.Lock()
	model := p.model
	p.mu.Unlock()
	if model == nil {
		return stt.Transcript{}, &stt.TranscriptionError{
			Provider: p.Name(),
			Audio:    stt.FramesDuration(frames),
			Err:      errors.New("model not loaded; Init was not called"),
		}
	}

	utterance := joinFrames(frames, required)
	if len(utterance.Data) == 0 {
		return stt.Transcript{}, nil
	}

	text, err := p.infer(model, pcmToFloat32(utterance.Data))
	if err != nil {
		return stt.Transcript{}, &stt.TranscriptionError{Provider: p.Name(), Audio: utterance.Duration(), Err: err}
	}

	return stt.Transcript{
		Text:     text,
		Duration: utterance.Duration(),
	}, nil
}

// infer creates a fresh whisper context, runs inference, and concatenates the
// resulting segments. Contexts are not thread-safe but the model may be
// shared, so each call gets its own.
func (p *NativeProvider) infer(model whisperlib.Model, samples []float32) (string, error) {
	wctx, err := model.NewContext()
	if err != nil {
		return "", fmt.Errorf("create context: %w", err)
	}

	if err := wctx.SetLanguage(p.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", p.language, "err", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}
