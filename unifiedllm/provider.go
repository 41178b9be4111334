package unifiedllm

import "context"

// ProviderAdapter is implemented by every provider backend.
type ProviderAdapter interface {
	// Name returns the provider identifier ("openai", "ollama", "gemini", ...).
	Name() string

	// Complete sends a blocking request and returns the full response.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Stream sends a request and returns a channel of stream events. The
	// channel is closed after StreamFinish or StreamError.
	Stream(ctx context.Context, req Request) (<-chan StreamEvent, error)
}

// Closer is implemented by adapters that hold resources.
type Closer interface {
	Close() error
}

// ToolChoiceSupporter is implemented by adapters that can report tool choice support.
type ToolChoiceSupporter interface {
	SupportsToolChoice(mode string) bool
}

// collect drains a stream into a Response. Adapters whose provider only
// exposes a streaming endpoint implement Complete with it.
func collect(ctx context.Context, provider string, events <-chan StreamEvent) (*Response, error) {
	resp := &Response{Provider: provider, Message: Message{Role: RoleAssistant}}
	var text, thinking []byte
	for ev := range events {
		switch ev.Type {
		case TextDelta:
			text = append(text, ev.Delta...)
		case ReasoningDelta:
			thinking = append(thinking, ev.ReasoningDelta...)
		case ToolCallEnd:
			if ev.ToolCall != nil {
				resp.Message.Content = append(resp.Message.Content,
					ToolCallPart(ev.ToolCall.ID, ev.ToolCall.Name, ev.ToolCall.Arguments))
			}
		case StreamFinish:
			if ev.FinishReason != nil {
				resp.FinishReason = *ev.FinishReason
			}
			if ev.Usage != nil {
				resp.Usage = *ev.Usage
			}
		case StreamError:
			return nil, ev.Error
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, &AbortError{Message: "stream cancelled", Cause: err}
	}
	var lead []ContentPart
	if len(thinking) > 0 {
		lead = append(lead, ThinkingPart(string(thinking), ""))
	}
	if len(text) > 0 {
		lead = append(lead, TextPart(string(text)))
	}
	resp.Message.Content = append(lead, resp.Message.Content...)
	return resp, nil
}
