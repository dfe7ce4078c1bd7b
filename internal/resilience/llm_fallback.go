package resilience

import (
	"context"

	"github.com/vesper-voice/vesper/pkg/provider"
	"github.com/vesper-voice/vesper/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] with automatic failover across
// multiple language model backends. Each backend has its own circuit breaker;
// when the primary fails or its breaker is open, the next healthy fallback is
// tried.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

// Compile-time interface assertions.
var (
	_ llm.Provider       = (*LLMFallback)(nil)
	_ provider.Lifecycle = (*LLMFallback)(nil)
)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred
// backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional language model as a fallback.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) {
	f.group.AddFallback(name, p)
}

// Name identifies the primary backend; logs attribute per-attempt failures to
// the individual entries.
func (f *LLMFallback) Name() string {
	return f.group.entries[0].name + "+fallback"
}

// ExecMode always reports worker execution: even an inline primary can fail
// over to a network-bound fallback.
func (f *LLMFallback) ExecMode() provider.ExecMode { return provider.ExecWorker }

// Complete sends the request to the first healthy backend and returns its
// response.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Init initialises every backend that declares a lifecycle.
func (f *LLMFallback) Init(ctx context.Context) error {
	return initEntries(ctx, f.group)
}

// Shutdown releases every backend that declares a lifecycle.
func (f *LLMFallback) Shutdown(ctx context.Context) error {
	return shutdownEntries(ctx, f.group)
}
