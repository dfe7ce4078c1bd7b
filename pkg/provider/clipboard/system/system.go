// Package system provides a clipboard.Provider backed by the OS clipboard
// via github.com/atotto/clipboard.
package system

import (
	"context"
	"strings"

	atotto "github.com/atotto/clipboard"

	"github.com/vesper-voice/vesper/pkg/provider"
	"github.com/vesper-voice/vesper/pkg/provider/clipboard"
)

// Compile-time assertion that Provider implements clipboard.Provider.
var _ clipboard.Provider = (*Provider)(nil)

// Provider accesses the operating system clipboard.
type Provider struct{}

// New creates a system clipboard provider. It fails with ErrUnavailable when
// no clipboard backend exists (e.g. a Linux session without xclip/xsel or a
// Wayland equivalent).
func New() (*Provider, error) {
	if atotto.Unsupported {
		return nil, clipboard.ErrUnavailable
	}
	return &Provider{}, nil
}

// Name implements provider.Adapter.
func (p *Provider) Name() string { return "system" }

// ExecMode implements provider.Adapter. Clipboard calls are fast local IPC.
func (p *Provider) ExecMode() provider.ExecMode { return provider.ExecInline }

// Read implements clipboard.Provider.
func (p *Provider) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := atotto.ReadAll()
	if err != nil {
		return "", &clipboard.AccessError{Provider: p.Name(), Err: err}
	}
	return strings.TrimRight(text, "\n"), nil
}

// Write implements clipboard.Provider.
func (p *Provider) Write(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := atotto.WriteAll(text); err != nil {
		return &clipboard.AccessError{Provider: p.Name(), Err: err}
	}
	return nil
}
