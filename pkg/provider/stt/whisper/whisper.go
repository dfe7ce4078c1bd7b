// Package whisper provides whisper.cpp-backed STT providers.
//
// Two variants are available. [Provider] talks to a running whisper-server
// binary over its REST API (POST /inference), uploading each utterance as a
// WAV file. [NativeProvider] links whisper.cpp directly via its CGO bindings
// and runs inference in-process with no HTTP hop.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	transcript, err := p.Transcribe(ctx, frames)
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/vesper-voice/vesper/pkg/audio"
	"github.com/vesper-voice/vesper/pkg/provider"
	"github.com/vesper-voice/vesper/pkg/provider/stt"
)

const (
	defaultLanguage   = "en"
	defaultSampleRate = 16000
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with — this is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code sent to the whisper.cpp server
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithSampleRate sets the sample rate reported by RequiredFormat. Defaults to
// 16000, which is what whisper.cpp models are trained on.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a local whisper.cpp HTTP server.
// It is stateless between calls; concurrent Transcribe calls are safe.
type Provider struct {
	serverURL  string
	model      string
	language   string
	sampleRate int
	httpClient *http.Client
}

// New creates a Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements provider.Adapter.
func (p *Provider) Name() string { return "whisper" }

// ExecMode implements provider.Adapter. Inference blocks on the server.
func (p *Provider) ExecMode() provider.ExecMode { return provider.ExecWorker }

// RequiredFormat implements stt.Provider. whisper.cpp expects mono audio.
func (p *Provider) RequiredFormat() audio.Format {
	return audio.Format{SampleRate: p.sampleRate, Channels: 1}
}

// Transcribe joins the utterance frames into a single WAV upload and submits
// it to the whisper.cpp /inference endpoint.
func (p *Provider) Transcribe(ctx context.Context, frames []audio.AudioFrame) (stt.Transcript, error) {
	required := p.RequiredFormat()
	if err := stt.ValidateFormat(frames, required); err != nil {
		return stt.Transcript{}, &stt.TranscriptionError{Provider: p.Name(), Audio: stt.FramesDuration(frames), Err: err}
	}
	utterance := joinFrames(frames, required)
	if len(utterance.Data) == 0 {
		return stt.Transcript{}, nil
	}

	text, err := p.infer(ctx, audio.EncodeWAV(utterance))
	if err != nil {
		return stt.Transcript{}, &stt.TranscriptionError{Provider: p.Name(), Audio: utterance.Duration(), Err: err}
	}

	return stt.Transcript{
		Text:     strings.TrimSpace(text),
		Duration: utterance.Duration(),
	}, nil
}

// infer POSTs a WAV file to the whisper.cpp /inference endpoint as
// multipart/form-data and returns the transcribed text.
func (p *Provider) infer(ctx context.Context, wav []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("write wav data: %w", err)
	}

	if p.language != "" {
		if err := mw.WriteField("language", p.language); err != nil {
			return "", fmt.Errorf("write language field: %w", err)
		}
	}
	if p.model != "" {
		if err := mw.WriteField("model", p.model); err != nil {
			return "", fmt.Errorf("write model field: %w", err)
		}
	}

	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("parse JSON response: %w", err)
	}

	return result.Text, nil
}

// joinFrames concatenates utterance frames into one frame carrying format.
// Callers check the frames against the required format first, so no
// conversion happens here.
func joinFrames(frames []audio.AudioFrame, format audio.Format) audio.AudioFrame {
	var total int
	for _, f := range frames {
		total += len(f.Data)
	}
	data := make([]byte, 0, total)
	for _, f := range frames {
		data = append(data, f.Data...)
	}
	return audio.AudioFrame{
		Data:       data,
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
	}
}
