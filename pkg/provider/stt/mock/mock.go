// Package mock provides an in-memory stt.Provider for unit tests.
package mock

import (
	"context"
	"sync"

	"github.com/vesper-voice/vesper/pkg/audio"
	"github.com/vesper-voice/vesper/pkg/provider"
	"github.com/vesper-voice/vesper/pkg/provider/stt"
)

// Compile-time assertions.
var (
	_ stt.Provider       = (*Provider)(nil)
	_ provider.Lifecycle = (*Provider)(nil)
)

// Provider is a mock implementation of stt.Provider. The exported fields
// script its behaviour; call counters record usage. Safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Transcribe when Err is nil and Results is
	// exhausted.
	Result stt.Transcript

	// Results, if non-empty, scripts successive Transcribe calls in order.
	// Once consumed, Transcribe falls back to Result.
	Results []stt.Transcript

	// Err, if non-nil, is returned by Transcribe.
	Err error

	// InitErr, if non-nil, is returned by Init.
	InitErr error

	// Format is returned by RequiredFormat. Defaults to 16 kHz mono.
	Format audio.Format

	// Mode is returned by ExecMode. Defaults to ExecInline, which makes
	// calls run synchronously on the pipeline run loop; set ExecWorker when
	// Delay is used to hold a stage open.
	Mode provider.ExecMode

	// Delay, if non-nil, is closed by the test to release a blocked
	// Transcribe call. Lets tests hold the pipeline in a stage.
	Delay chan struct{}

	// CallCountTranscribe records how many times Transcribe was called.
	CallCountTranscribe int

	// CallCountInit and CallCountShutdown record lifecycle usage.
	CallCountInit     int
	CallCountShutdown int

	// LastFrames records the frames passed to the most recent Transcribe.
	LastFrames []audio.AudioFrame
}

// Name implements provider.Adapter.
func (p *Provider) Name() string { return "mock-stt" }

// ExecMode implements provider.Adapter.
func (p *Provider) ExecMode() provider.ExecMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Mode
}

// RequiredFormat implements stt.Provider.
func (p *Provider) RequiredFormat() audio.Format {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Format == (audio.Format{}) {
		return audio.Format{SampleRate: 16000, Channels: 1}
	}
	return p.Format
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, frames []audio.AudioFrame) (stt.Transcript, error) {
	p.mu.Lock()
	p.CallCountTranscribe++
	p.LastFrames = frames
	delay := p.Delay
	result, err := p.Result, p.Err
	if len(p.Results) > 0 {
		result = p.Results[0]
		p.Results = p.Results[1:]
	}
	p.mu.Unlock()

	if delay != nil {
		select {
		case <-delay:
		case <-ctx.Done():
			return stt.Transcript{}, ctx.Err()
		}
	}
	if err != nil {
		return stt.Transcript{}, err
	}
	return result, nil
}

// Init implements provider.Lifecycle.
func (p *Provider) Init(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountInit++
	return p.InitErr
}

// Shutdown implements provider.Lifecycle.
func (p *Provider) Shutdown(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountShutdown++
	return nil
}
