// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs HTTP API. It implements the tts.Provider interface.
//
// By default synthesis requests MP3 output (the cheapest tier to transfer)
// and transcodes it to PCM in-process; raw PCM output formats such as
// "pcm_16000" are also supported and skip the transcode.
package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/vesper-voice/vesper/pkg/audio"
	"github.com/vesper-voice/vesper/pkg/provider"
	"github.com/vesper-voice/vesper/pkg/provider/tts"
)

const (
	defaultBaseURL   = "https://api.elevenlabs.io"
	defaultModel     = "eleven_flash_v2_5"
	defaultOutputFmt = "mp3_44100_128"

	// frameDuration is the duration of each PCM frame returned by Synthesize.
	frameDuration = 200 * time.Millisecond
)

// Compile-time assertion that Provider implements tts.Provider.
var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithOutputFormat sets the audio output format requested from the API.
// MP3 formats ("mp3_44100_128") are transcoded to PCM; raw PCM formats
// ("pcm_16000", "pcm_24000") are passed through.
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// WithBaseURL overrides the API endpoint, mainly for tests.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// Provider implements tts.Provider backed by the ElevenLabs API.
type Provider struct {
	apiKey       string
	baseURL      string
	model        string
	outputFormat string
	httpClient   *http.Client
}

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements provider.Adapter.
func (p *Provider) Name() string { return "elevenlabs" }

// ExecMode implements provider.Adapter. Synthesis round-trips the network.
func (p *Provider) ExecMode() provider.ExecMode { return provider.ExecWorker }

// ---- Synthesize ----

// synthesizeRequest is the JSON body for POST /v1/text-to-speech/{voice_id}.
type synthesizeRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

// voiceSettings mirrors the ElevenLabs voice_settings object.
type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost,omitempty"`
}

// Synthesize renders text in the given voice with its tuning settings and
// returns playable PCM frames.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) ([]audio.AudioFrame, error) {
	if text == "" {
		return nil, nil
	}
	if voice.ID == "" {
		return nil, &tts.SynthesisError{Provider: p.Name(), Text: text, Err: errors.New("voice.ID must not be empty")}
	}

	payload, err := json.Marshal(synthesizeRequest{
		Text:          text,
		ModelID:       p.model,
		VoiceSettings: settingsFor(voice),
	})
	if err != nil {
		return nil, &tts.SynthesisError{Provider: p.Name(), Text: text, Err: err}
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s", p.baseURL, voice.ID, p.outputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &tts.SynthesisError{Provider: p.Name(), Text: text, Err: err}
	}
	req.Header.Set("xi-api-key", p.apiKey)
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

	frame, err := p.decode(resp.Body)
	if err != nil {
		return nil, &tts.SynthesisError{Provider: p.Name(), Text: text, Err: err}
	}
	return chunkFrame(frame, frameDuration), nil
}

// settingsFor builds the voice_settings payload. A fully zero profile omits
// the object so the voice's server-side defaults apply.
func settingsFor(voice tts.VoiceProfile) *voiceSettings {
	if voice.Stability == 0 && voice.SimilarityBoost == 0 && voice.Style == 0 && !voice.SpeakerBoost {
		return nil
	}
	return &voiceSettings{
		Stability:       voice.Stability,
		SimilarityBoost: voice.SimilarityBoost,
		Style:           voice.Style,
		UseSpeakerBoost: voice.SpeakerBoost,
	}
}

// decode converts the response body into a single PCM frame according to the
// configured output format.
func (p *Provider) decode(body io.Reader) (audio.AudioFrame, error) {
	if rate, ok := pcmRate(p.outputFormat); ok {
		data, err := io.ReadAll(body)
		if err != nil {
			return audio.AudioFrame{}, fmt.Errorf("read pcm body: %w", err)
		}
		return audio.AudioFrame{Data: data, SampleRate: rate, Channels: 1}, nil
	}
	return decodeMP3(body)
}

// pcmRate parses raw PCM output formats like "pcm_16000".
func pcmRate(format string) (int, bool) {
	rest, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, false
	}
	rate, err := strconv.Atoi(rest)
	if err != nil || rate <= 0 {
		return 0, false
	}
	return rate, true
}

// decodeMP3 transcodes an MP3 stream to one PCM frame. go-mp3 always emits
// 16-bit little-endian stereo at the file's sample rate.
func decodeMP3(body io.Reader) (audio.AudioFrame, error) {
	dec, err := mp3.NewDecoder(body)
	if err != nil {
		return audio.AudioFrame{}, fmt.Errorf("mp3 decode: %w", err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return audio.AudioFrame{}, fmt.Errorf("mp3 read: %w", err)
	}
	return audio.AudioFrame{Data: pcm, SampleRate: dec.SampleRate(), Channels: 2}, nil
}

// chunkFrame splits one long frame into playback-sized frames so the output
// stream can pace writes and cancellation takes effect between chunks.
func chunkFrame(frame audio.AudioFrame, d time.Duration) []audio.AudioFrame {
	if len(frame.Data) == 0 {
		return nil
	}
	bytesPerChunk := int(int64(frame.SampleRate)*int64(frame.Channels)*2*int64(d)/int64(time.Second))
	// Round down to a whole frame of samples.
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

// ---- ListVoices ----

// voicesResponse is the top-level response from GET /v1/voices.
type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

// elevenLabsVoice is a single voice entry from the ElevenLabs API.
type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/voices", nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices read: %w", err)
	}
	return parseVoicesResponse(data)
}

// parseVoicesResponse parses a raw JSON byte slice (matching the ElevenLabs
// /v1/voices response) into a slice of VoiceProfile values.
func parseVoicesResponse(data []byte) ([]tts.VoiceProfile, error) {
	var vr voicesResponse
	if err := json.Unmarshal(data, &vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	profiles := make([]tts.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		profiles = append(profiles, tts.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Metadata: meta,
		})
	}
	return profiles, nil
}
