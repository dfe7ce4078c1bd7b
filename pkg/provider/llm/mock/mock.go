// Package mock provides a scriptable llm.Provider for tests.
package mock

import (
	"context"

	"github.com/vesper-voice/vesper/pkg/provider"
	"github.com/vesper-voice/vesper/pkg/provider/llm"
)

// Compile-time assertion that Provider implements llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// Provider is a scriptable LLM provider.
type Provider struct {
	// Response is returned from Complete when Err is nil.
	Response llm.CompletionResponse
	// Err, if set, is returned from Complete.
	Err error
	// Mode is the reported ExecMode. Defaults to ExecInline, which makes
	// calls run synchronously on the pipeline run loop; set ExecWorker when
	// Delay is used to hold a stage open.
	Mode provider.ExecMode
	// Delay, if non-nil, blocks Complete until the channel is closed or the
	// context is cancelled.
	Delay chan struct{}

	CallCountComplete int
	LastRequest       llm.CompletionRequest
}

func (p *Provider) Name() string { return "mock-llm" }

func (p *Provider) ExecMode() provider.ExecMode { return p.Mode }

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.CallCountComplete++
	p.LastRequest = req
	if p.Delay != nil {
		select {
		case <-p.Delay:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.Err != nil {
		return nil, p.Err
	}
	resp := p.Response
	return &resp, nil
}
