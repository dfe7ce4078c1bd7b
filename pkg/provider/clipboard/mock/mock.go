// Package mock provides a scriptable clipboard.Provider for tests.
package mock

import (
	"context"

	"github.com/vesper-voice/vesper/pkg/provider"
	"github.com/vesper-voice/vesper/pkg/provider/clipboard"
)

// Compile-time assertion that Provider implements clipboard.Provider.
var _ clipboard.Provider = (*Provider)(nil)

// Provider is an in-memory clipboard.
type Provider struct {
	// Contents is the scripted clipboard text. Write replaces it.
	Contents string
	// ReadErr, if set, is returned from Read.
	ReadErr error
	// WriteErr, if set, is returned from Write.
	WriteErr error

	CallCountRead  int
	CallCountWrite int
}

func (p *Provider) Name() string { return "mock-clipboard" }

func (p *Provider) ExecMode() provider.ExecMode { return provider.ExecInline }

func (p *Provider) Read(ctx context.Context) (string, error) {
	p.CallCountRead++
	if p.ReadErr != nil {
		return "", p.ReadErr
	}
	return p.Contents, nil
}

func (p *Provider) Write(ctx context.Context, text string) error {
	p.CallCountWrite++
	if p.WriteErr != nil {
		return p.WriteErr
	}
	p.Contents = text
	return nil
}
