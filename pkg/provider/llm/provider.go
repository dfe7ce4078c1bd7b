// Package llm defines the Provider interface for language model backends.
//
// An LLM provider wraps a remote or local model API (OpenAI, Anthropic, or
// anything the any-llm bridge supports) behind a stateless completion call:
// the full conversation history travels in every request and the provider
// holds no state between calls. History ownership stays with the caller.
//
// Implementations must be safe for concurrent use.
package llm

import (
	"context"

	"github.com/vesper-voice/vesper/pkg/provider"
)

// Provider is the abstraction over any LLM backend.
type Provider interface {
	provider.Adapter

	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or ctx is cancelled before the
	// completion arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
