package openai

import (
	"context"
	"errors"
	"testing"

	"github.com/vesper-voice/vesper/pkg/provider"
	"github.com/vesper-voice/vesper/pkg/provider/llm"
)

// TestNew_RejectsEmptyAPIKey checks constructor validation.
func TestNew_RejectsEmptyAPIKey(t *testing.T) {
	if _, err := New("", "gpt-4o-mini"); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

// TestNew_RejectsEmptyModel checks constructor validation.
func TestNew_RejectsEmptyModel(t *testing.T) {
	if _, err := New("sk-test", ""); err == nil {
		t.Fatal("expected error for empty model")
	}
}

// TestAdapterIdentity checks Name and ExecMode.
func TestAdapterIdentity(t *testing.T) {
	p, err := New("sk-test", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("expected name openai, got %q", p.Name())
	}
	if p.ExecMode() != provider.ExecWorker {
		t.Errorf("expected ExecWorker, got %v", p.ExecMode())
	}
}

// TestBuildParams_Roles checks that each role maps to the right union member.
func TestBuildParams_Roles(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are helpful.",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "Hello!"},
			{Role: llm.RoleAssistant, Content: "Hi there!"},
			{Role: llm.RoleUser, Content: "How are you?"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if string(params.Model) != "gpt-4o-mini" {
		t.Errorf("expected model gpt-4o-mini, got %q", params.Model)
	}
	if len(params.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("expected OfSystem for system prompt")
	}
	if params.Messages[1].OfUser == nil {
		t.Error("expected OfUser for first user message")
	}
	if params.Messages[2].OfAssistant == nil {
		t.Error("expected OfAssistant for assistant message")
	}
	if params.Messages[3].OfUser == nil {
		t.Error("expected OfUser for second user message")
	}
}

// TestBuildParams_UnknownRole checks that unrecognized roles are refused.
func TestBuildParams_UnknownRole(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	_, err := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: "tool", Content: "result"}},
	})
	if err == nil {
		t.Fatal("expected error for unknown role")
	}
}

// TestComplete_ErrorCarriesPrompt checks that failures are attributed to the
// user message that triggered them.
func TestComplete_ErrorCarriesPrompt(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}
	_, err := p.Complete(context.Background(), llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "what now?"},
			{Role: "tool", Content: "result"},
		},
	})
	var cerr *llm.CompletionError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected CompletionError, got %v", err)
	}
	if cerr.Provider != "openai" {
		t.Errorf("provider: got %q", cerr.Provider)
	}
	if cerr.Prompt != "what now?" {
		t.Errorf("prompt: got %q, want the last user message", cerr.Prompt)
	}
}

// TestBuildParams_Tuning checks optional temperature and token cap handling.
func TestBuildParams_Tuning(t *testing.T) {
	p := &Provider{model: "gpt-4o-mini"}

	params, err := p.buildParams(llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Temperature.Valid() {
		t.Error("expected unset Temperature for zero value")
	}
	if params.MaxCompletionTokens.Valid() {
		t.Error("expected unset MaxCompletionTokens for zero value")
	}

	params, err = p.buildParams(llm.CompletionRequest{Temperature: 0.7, MaxTokens: 256})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !params.Temperature.Valid() || params.Temperature.Value != 0.7 {
		t.Errorf("expected Temperature 0.7, got %v", params.Temperature)
	}
	if !params.MaxCompletionTokens.Valid() || params.MaxCompletionTokens.Value != 256 {
		t.Errorf("expected MaxCompletionTokens 256, got %v", params.MaxCompletionTokens)
	}
}
