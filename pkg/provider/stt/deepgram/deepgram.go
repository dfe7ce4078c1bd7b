// Package deepgram provides a Deepgram-backed STT provider using the
// Deepgram streaming WebSocket API. Each Transcribe call opens a connection,
// streams the utterance, closes the input side, and collects the final
// results the server commits before it closes the stream.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/vesper-voice/vesper/pkg/audio"
	"github.com/vesper-voice/vesper/pkg/provider"
	"github.com/vesper-voice/vesper/pkg/provider/stt"
)

const (
	defaultEndpoint   = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the streaming endpoint, mainly for tests against a
// local WebSocket server.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey   string
	endpoint string
	model    string
	language string
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements provider.Adapter.
func (p *Provider) Name() string { return "deepgram" }

// ExecMode implements provider.Adapter. Transcription round-trips the network.
func (p *Provider) ExecMode() provider.ExecMode { return provider.ExecWorker }

// RequiredFormat implements stt.Provider.
func (p *Provider) RequiredFormat() audio.Format {
	return audio.Format{SampleRate: defaultSampleRate, Channels: 1}
}

// Transcribe streams the utterance to Deepgram and returns the concatenated
// final results.
func (p *Provider) Transcribe(ctx context.Context, frames []audio.AudioFrame) (stt.Transcript, error) {
	if len(frames) == 0 {
		return stt.Transcript{}, nil
	}
	// The stream URL declares the sample rate; raw bytes at another rate
	// would be decoded wrong, so they never leave the process.
	audioLen := stt.FramesDuration(frames)
	if err := stt.ValidateFormat(frames, p.RequiredFormat()); err != nil {
		return stt.Transcript{}, &stt.TranscriptionError{Provider: p.Name(), Audio: audioLen, Err: err}
	}

	wsURL, err := p.buildURL()
	if err != nil {
		return stt.Transcript{}, &stt.TranscriptionError{Provider: p.Name(), Audio: audioLen, Err: err}
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return stt.Transcript{}, &stt.TranscriptionError{Provider: p.Name(), Audio: audioLen, Err: fmt.Errorf("dial: %w", err)}
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// Collect finals concurrently while audio is written; Deepgram starts
	// committing results before the stream ends.
	type readResult struct {
		transcript stt.Transcript
		err        error
	}
	resultCh := make(chan readResult, 1)
	go func() {
		t, err := collectFinals(ctx, conn)
		resultCh <- readResult{transcript: t, err: err}
	}()

	for _, frame := range frames {
		if err := conn.Write(ctx, websocket.MessageBinary, frame.Data); err != nil {
			return stt.Transcript{}, &stt.TranscriptionError{Provider: p.Name(), Audio: audioLen, Err: fmt.Errorf("send audio: %w", err)}
		}
	}
	// Tell Deepgram the utterance is complete so it flushes pending results.
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
		return stt.Transcript{}, &stt.TranscriptionError{Provider: p.Name(), Audio: audioLen, Err: fmt.Errorf("close stream: %w", err)}
	}

	res := <-resultCh
	if res.err != nil {
		return stt.Transcript{}, &stt.TranscriptionError{Provider: p.Name(), Audio: audioLen, Err: res.err}
	}
	return res.transcript, nil
}

// buildURL constructs the streaming endpoint URL for the configured format.
func (p *Provider) buildURL() (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}
	format := p.RequiredFormat()

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", p.language)
	q.Set("punctuate", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(format.SampleRate))
	q.Set("channels", strconv.Itoa(format.Channels))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// response is the JSON structure returned by Deepgram for Results events.
type response struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word       string  `json:"word"`
				Start      float64 `json:"start"`
				End        float64 `json:"end"`
				Confidence float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// collectFinals reads messages until the server closes the connection and
// merges all final results into one transcript.
func collectFinals(ctx context.Context, conn *websocket.Conn) (stt.Transcript, error) {
	var (
		parts      []string
		words      []stt.WordDetail
		confSum    float64
		confCount  int
		endOfAudio time.Duration
	)

	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return stt.Transcript{}, ctx.Err()
			}
			// Connection closed after CloseStream means all results are in.
			break
		}

		part, ok := parseResponse(msg)
		if !ok || part.Text == "" {
			continue
		}
		parts = append(parts, part.Text)
		words = append(words, part.Words...)
		if part.Confidence > 0 {
			confSum += part.Confidence
			confCount++
		}
		if n := len(part.Words); n > 0 && part.Words[n-1].End > endOfAudio {
			endOfAudio = part.Words[n-1].End
		}
	}

	t := stt.Transcript{
		Text:     strings.Join(parts, " "),
		Words:    words,
		Duration: endOfAudio,
	}
	if confCount > 0 {
		t.Confidence = confSum / float64(confCount)
	}
	return t, nil
}

// parseResponse parses a raw Deepgram message into a final transcript part.
// Returns false for non-Results messages and interim results.
func parseResponse(data []byte) (stt.Transcript, bool) {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return stt.Transcript{}, false
	}
	if resp.Type != "Results" || !resp.IsFinal {
		return stt.Transcript{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return stt.Transcript{}, false
	}

	alt := resp.Channel.Alternatives[0]
	words := make([]stt.WordDetail, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, stt.WordDetail{
			Word:       w.Word,
			Start:      time.Duration(w.Start * float64(time.Second)),
			End:        time.Duration(w.End * float64(time.Second)),
			Confidence: w.Confidence,
		})
	}

	return stt.Transcript{
		Text:       strings.TrimSpace(alt.Transcript),
		Confidence: alt.Confidence,
		Words:      words,
	}, true
}
