package llm

import "fmt"

// Message roles as used in CompletionRequest histories.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of conversation history.
type Message struct {
	// Role is one of RoleSystem, RoleUser, RoleAssistant.
	Role string

	// Content is the message text.
	Content string
}

// CompletionRequest carries everything the model needs to produce a
// response. The caller owns the history; providers never retain it.
type CompletionRequest struct {
	// SystemPrompt is a high-priority instruction injected before the
	// conversation history. Providers that support a dedicated system field
	// use it; others prepend a system-role message.
	SystemPrompt string

	// Messages is the ordered conversation history. The last message is
	// typically from the user role and drives the response.
	Messages []Message

	// Temperature controls output randomness in [0.0, 2.0]. Zero means use
	// the provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// LastUserMessage returns the content of the most recent user-role message,
// or "" when the request carries none. Providers use it to attribute
// failures to the prompt that triggered them.
func (r CompletionRequest) LastUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content
		}
	}
	return ""
}

// Usage holds token accounting returned by the backend. Counts are in the
// model's native token unit and differ between providers for the same text.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResponse is the model's full reply.
type CompletionResponse struct {
	// Content is the text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// CompletionError wraps a provider failure with the provider's name and the
// prompt that triggered it, so pipeline error events can attribute the
// failure and report what was lost.
type CompletionError struct {
	Provider string
	// Prompt is the most recent user message of the failed request.
	Prompt string
	Err    error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("llm: %s: %v", e.Provider, e.Err)
}

func (e *CompletionError) Unwrap() error { return e.Err }
