// Package provider defines the contracts shared by all capability adapters
// (speech-to-text, text-to-speech, language model, clipboard).
//
// Each capability package under pkg/provider declares its own Provider
// interface; this package holds what they have in common: an identity, an
// execution mode the pipeline uses to decide whether a call may run on its
// run loop or must be offloaded to the worker pool, and an optional lifecycle
// for adapters that hold external resources.
package provider

import "context"

// ExecMode tells the pipeline how expensive an adapter call is.
type ExecMode int

const (
	// ExecInline marks calls cheap enough to run directly on the pipeline run
	// loop (in-memory mocks, the system clipboard).
	ExecInline ExecMode = iota

	// ExecWorker marks calls that block on network or heavy compute and must
	// run on the bounded worker pool.
	ExecWorker
)

// String returns the mode's configuration name.
func (m ExecMode) String() string {
	if m == ExecWorker {
		return "worker"
	}
	return "inline"
}

// Adapter is embedded by every capability Provider interface.
type Adapter interface {
	// Name identifies the adapter in logs and metrics (e.g., "deepgram").
	Name() string

	// ExecMode reports where calls to this adapter may run.
	ExecMode() ExecMode
}

// Lifecycle is implemented by adapters that need explicit startup and
// teardown (model loading, connection warm-up). The registry calls Init once
// before the adapter is handed out and Shutdown once when the adapter is
// replaced or the process stops. Adapters without resources simply don't
// implement it.
type Lifecycle interface {
	Init(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
