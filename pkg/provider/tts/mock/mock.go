// Package mock provides an in-memory tts.Provider for unit tests.
package mock

import (
	"context"
	"sync"

	"github.com/vesper-voice/vesper/pkg/audio"
	"github.com/vesper-voice/vesper/pkg/provider"
	"github.com/vesper-voice/vesper/pkg/provider/tts"
)

// Compile-time assertion that Provider implements tts.Provider.
var _ tts.Provider = (*Provider)(nil)

// Provider is a mock implementation of tts.Provider. The exported fields
// script its behaviour; call counters record usage. Safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	// Frames is returned by Synthesize when Err is nil and the input text is
	// non-empty.
	Frames []audio.AudioFrame

	// Err, if non-nil, is returned by Synthesize.
	Err error

	// Voices is returned by ListVoices.
	Voices []tts.VoiceProfile

	// Mode is returned by ExecMode. Defaults to ExecInline, which makes
	// calls run synchronously on the pipeline run loop; set ExecWorker when
	// Delay is used to hold a stage open.
	Mode provider.ExecMode

	// Delay, if non-nil, is closed by the test to release a blocked
	// Synthesize call.
	Delay chan struct{}

	// CallCountSynthesize records how many times Synthesize was called.
	CallCountSynthesize int

	// LastText and LastVoice record the most recent Synthesize arguments.
	LastText  string
	LastVoice tts.VoiceProfile
}

// Name implements provider.Adapter.
func (p *Provider) Name() string { return "mock-tts" }

// ExecMode implements provider.Adapter.
func (p *Provider) ExecMode() provider.ExecMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Mode
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.VoiceProfile) ([]audio.AudioFrame, error) {
	p.mu.Lock()
	p.CallCountSynthesize++
	p.LastText = text
	p.LastVoice = voice
	delay := p.Delay
	frames, err := p.Frames, p.Err
	p.mu.Unlock()

	if delay != nil {
		select {
		case <-delay:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}
	return frames, nil
}

// ListVoices implements tts.Provider.
func (p *Provider) ListVoices(context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Voices, nil
}
