// Package f5 provides a local F5-TTS-backed TTS provider. It connects to a
// running F5-TTS inference server via its REST API and implements the
// tts.Provider interface.
//
// F5-TTS is a voice-cloning model: each synthesis call carries a reference
// audio sample whose voice the output imitates. Reference samples live in a
// directory configured at construction; a voice profile selects one by file
// name via its ReferenceAudio field. ListVoices enumerates the samples in
// that directory.
//
// Typical usage:
//
//	p, err := f5.New("http://localhost:7860", "/var/lib/vesper/reference",
//	    f5.WithTimeout(60*time.Second),
//	)
//	frames, err := p.Synthesize(ctx, "Hello!", voice)
package f5

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vesper-voice/vesper/pkg/audio"
	"github.com/vesper-voice/vesper/pkg/provider"
	"github.com/vesper-voice/vesper/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	synthesizeEndpoint = "/tts"
	defaultTimeout     = 60 * time.Second

	// frameDuration is the duration of each PCM frame returned by Synthesize.
	frameDuration = 200 * time.Millisecond
)

// Option is a functional option for configuring an F5 Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout. Inference on CPU can take
// tens of seconds for long replies; defaults to 60 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithSpeed adjusts the speaking rate (1.0 = default).
func WithSpeed(speed float64) Option {
	return func(p *Provider) {
		p.speed = speed
	}
}

// Provider implements tts.Provider backed by a local F5-TTS server.
type Provider struct {
	serverURL    string
	referenceDir string
	speed        float64
	httpClient   *http.Client
}

// New creates an F5 Provider. serverURL addresses the running F5-TTS server
// (e.g., "http://localhost:7860"); referenceDir is the directory holding
// reference audio samples and must exist.
func New(serverURL, referenceDir string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("f5: serverURL must not be empty")
	}
	info, err := os.Stat(referenceDir)
	if err != nil {
		return nil, fmt.Errorf("f5: reference audio dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("f5: reference audio dir %q is not a directory", referenceDir)
	}

	p := &Provider{
		serverURL:    strings.TrimRight(serverURL, "/"),
		referenceDir: referenceDir,
		speed:        1.0,
		httpClient:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements provider.Adapter.
func (p *Provider) Name() string { return "f5" }

// ExecMode implements provider.Adapter. Local inference is slow.
func (p *Provider) ExecMode() provider.ExecMode { return provider.ExecWorker }

// synthesizeRequest is the JSON body for POST /tts.
type synthesizeRequest struct {
	Text      string  `json:"text"`
	RefAudio  string  `json:"ref_audio_path,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
	OutputWAV bool    `json:"output_wav"`
}

// Synthesize renders text through the F5-TTS server using the voice's
// reference sample and returns playable PCM frames decoded from the WAV
// response.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) ([]audio.AudioFrame, error) {
	if text == "" {
		return nil, nil
	}

	refPath, err := p.resolveReference(voice)
	if err != nil {
		return nil, &tts.SynthesisError{Provider: p.Name(), Text: text, Err: err}
	}

	payload, err := json.Marshal(synthesizeRequest{
		Text:      text,
		RefAudio:  refPath,
		Speed:     p.speed,
		OutputWAV: true,
	})
	if err != nil {
		return nil, &tts.SynthesisError{Provider: p.Name(), Text: text, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+synthesizeEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &tts.SynthesisError{Provider: p.Name(), Text: text, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, &tts.SynthesisError{Provider: p.Name(), Text: text, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &tts.SynthesisError{
			Provider: p.Name(),
			Text:     text,
			Err:      fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &tts.SynthesisError{Provider: p.Name(), Text: text, Err: fmt.Errorf("read response: %w", err)}
	}
	frame, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, &tts.SynthesisError{Provider: p.Name(), Text: text, Err: err}
	}
	return splitFrame(frame, frameDuration), nil
}

// resolveReference maps the voice's ReferenceAudio file name into the
// configured reference directory and verifies the sample exists. Path
// separators in the name are rejected so profiles cannot escape the dir.
func (p *Provider) resolveReference(voice tts.VoiceProfile) (string, error) {
	name := voice.ReferenceAudio
	if name == "" {
		return "", errors.New("voice has no reference_audio sample configured")
	}
	if name != filepath.Base(name) {
		return "", fmt.Errorf("reference audio name %q must not contain path separators", name)
	}
	path := filepath.Join(p.referenceDir, name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("reference audio sample: %w", err)
	}
	return path, nil
}

// ListVoices enumerates the WAV samples in the reference directory, one
// profile per sample.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	entries, err := os.ReadDir(p.referenceDir)
	if err != nil {
		return nil, fmt.Errorf("f5: list reference samples: %w", err)
	}

	var profiles []tts.VoiceProfile
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".wav") {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		profiles = append(profiles, tts.VoiceProfile{
			ID:             e.Name(),
			Name:           name,
			Provider:       p.Name(),
			ReferenceAudio: e.Name(),
		})
	}
	return profiles, nil
}

// splitFrame chops one long frame into playback-sized frames.
func splitFrame(frame audio.AudioFrame, d time.Duration) []audio.AudioFrame {
	if len(frame.Data) == 0 {
		return nil
	}
	bytesPerChunk := int(int64(frame.SampleRate)*int64(frame.Channels)*2*int64(d)/int64(time.Second))
	if step := frame.Channels * 2; bytesPerChunk%step != 0 {
		bytesPerChunk -= bytesPerChunk % step
	}
	if bytesPerChunk <= 0 {
		return []audio.AudioFrame{frame}
	}

	var frames []audio.AudioFrame
	for off := 0; off < len(frame.Data); off += bytesPerChunk {
		end := min(off+bytesPerChunk, len(frame.Data))
		frames = append(frames, audio.AudioFrame{
			Data:       frame.Data[off:end],
			SampleRate: frame.SampleRate,
			Channels:   frame.Channels,
		})
	}
	return frames
}
