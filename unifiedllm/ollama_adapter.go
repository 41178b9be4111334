package unifiedllm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/ollama/ollama/api"
)

// OllamaAdapter streams through an Ollama server's chat endpoint. Ollama
// delivers tool calls whole, so each call is emitted as a ToolCallStart
// followed directly by a decode-complete ToolCallEnd.
type OllamaAdapter struct {
	client *api.Client
}

// NewOllamaAdapter creates an adapter for the server at baseURL. A nil
// httpClient uses http.DefaultClient.
func NewOllamaAdapter(baseURL string, httpClient *http.Client) (*OllamaAdapter, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base URL: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OllamaAdapter{client: api.NewClient(u, httpClient)}, nil
}

// NewOllamaAdapterFromEnv creates an adapter from OLLAMA_HOST.
func NewOllamaAdapterFromEnv() (*OllamaAdapter, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, err
	}
	return &OllamaAdapter{client: client}, nil
}

// Name returns the provider identifier.
func (a *OllamaAdapter) Name() string { return "ollama" }

// Complete drains a stream into a Response.
func (a *OllamaAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	events, err := a.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	resp, err := collect(ctx, a.Name(), events)
	if err != nil {
		return nil, err
	}
	resp.Model = req.Model
	return resp, nil
}

// Stream starts a chat stream and translates each response chunk.
func (a *OllamaAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	chatReq, err := a.buildRequest(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamEvent, 64)
	go func() {
		defer close(ch)
		ch <- StreamEvent{Type: StreamStart}

		sawCall := false
		err := a.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
			if resp.Message.Thinking != "" {
				ch <- StreamEvent{Type: ReasoningDelta, ReasoningDelta: resp.Message.Thinking}
			}
			if resp.Message.Content != "" {
				ch <- StreamEvent{Type: TextDelta, Delta: resp.Message.Content}
			}
			for _, tc := range resp.Message.ToolCalls {
				args, err := codec.Marshal(tc.Function.Arguments)
				if err != nil {
					args = []byte("{}")
				}
				id := tc.ID
				if id == "" {
					id = "call_" + uuid.New().String()[:8]
				}
				sawCall = true
				ch <- StreamEvent{Type: ToolCallStart, ToolCall: &ToolCall{ID: id, Name: tc.Function.Name}}
				ch <- StreamEvent{Type: ToolCallEnd, ToolCall: &ToolCall{
					ID:           id,
					Name:         tc.Function.Name,
					Arguments:    argsOrEmpty(args),
					RawArguments: string(args),
				}}
			}
			if resp.Done {
				finish := FinishReason{Reason: ollamaFinishReason(resp.DoneReason, sawCall), Raw: resp.DoneReason}
				usage := Usage{
					InputTokens:  resp.PromptEvalCount,
					OutputTokens: resp.EvalCount,
					TotalTokens:  resp.PromptEvalCount + resp.EvalCount,
				}
				ch <- StreamEvent{Type: StreamFinish, FinishReason: &finish, Usage: &usage}
			}
			return nil
		})
		if err != nil {
			ch <- StreamEvent{Type: StreamError, Error: a.translateError(err)}
		}
	}()
	return ch, nil
}

func (a *OllamaAdapter) buildRequest(req Request) (*api.ChatRequest, error) {
	if req.Model == "" {
		return nil, &ConfigurationError{Message: "ollama: model is required"}
	}
	stream := true
	chatReq := &api.ChatRequest{
		Model:    req.Model,
		Messages: a.convertMessages(req.Messages),
		Stream:   &stream,
		Options:  map[string]any{},
	}
	if req.Temperature != nil {
		chatReq.Options["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		chatReq.Options["top_p"] = *req.TopP
	}
	if req.MaxTokens != nil {
		chatReq.Options["num_predict"] = *req.MaxTokens
	}
	if len(req.ToolDefs) > 0 {
		// api.Tool's nested schema types are easiest to fill through JSON.
		defs := make([]map[string]any, 0, len(req.ToolDefs))
		for _, t := range req.ToolDefs {
			defs = append(defs, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        t.Name,
					"description": t.Description,
					"parameters":  t.Parameters,
				},
			})
		}
		raw, err := codec.Marshal(defs)
		if err != nil {
			return nil, fmt.Errorf("encode ollama tools: %w", err)
		}
		if err := codec.Unmarshal(raw, &chatReq.Tools); err != nil {
			return nil, fmt.Errorf("decode ollama tools: %w", err)
		}
	}
	return chatReq, nil
}

func (a *OllamaAdapter) convertMessages(messages []Message) []api.Message {
	out := make([]api.Message, 0, len(messages))
	for _, m := range messages {
		msg := api.Message{
			Role:     string(m.Role),
			Content:  m.TextContent(),
			Thinking: m.ThinkingContent(),
		}
		for _, tc := range m.ToolCalls() {
			var args api.ToolCallFunctionArguments
			_ = codec.Unmarshal(argsOrEmpty(tc.Arguments), &args)
			msg.ToolCalls = append(msg.ToolCalls, api.ToolCall{
				ID:       tc.ID,
				Function: api.ToolCallFunction{Name: tc.Name, Arguments: args},
			})
		}
		if m.Role == RoleTool {
			if res := m.ToolResult(); res != nil {
				msg.Content = res.ResultText()
				msg.ToolCallID = res.ToolCallID
			}
		}
		out = append(out, msg)
	}
	return out
}

func ollamaFinishReason(reason string, sawCall bool) string {
	switch {
	case reason == "length":
		return "length"
	case sawCall:
		return "tool_calls"
	default:
		return "stop"
	}
}

func (a *OllamaAdapter) translateError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &AbortError{Message: "ollama stream cancelled", Cause: err}
	}
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		pe := NewProviderError(a.Name(), statusErr.StatusCode, statusErr.Status, statusErr.ErrorMessage)
		pe.Cause = err
		return pe
	}
	return &NetworkError{Message: "ollama stream failed", Cause: err}
}
