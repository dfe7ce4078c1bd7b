// Package clipboard defines the contract for reading and writing the system
// clipboard. Regular (non-voice) interactions pull their input text from here
// and push replies back.
package clipboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/vesper-voice/vesper/pkg/provider"
)

// ErrUnavailable indicates no clipboard is accessible in the current
// environment (e.g. headless session without a display server).
var ErrUnavailable = errors.New("clipboard unavailable")

// Provider reads from and writes to a clipboard.
type Provider interface {
	provider.Adapter

	// Read returns the current clipboard text. An empty clipboard returns
	// an empty string and no error.
	Read(ctx context.Context) (string, error)

	// Write replaces the clipboard contents with text.
	Write(ctx context.Context, text string) error
}

// AccessError wraps clipboard failures with the provider name.
type AccessError struct {
	Provider string
	Err      error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("clipboard provider %q: %v", e.Provider, e.Err)
}

func (e *AccessError) Unwrap() error {
	return e.Err
}
