package unifiedllm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// GeminiAdapter streams through the Gemini API. Thought parts become
// reasoning deltas; function calls arrive whole.
type GeminiAdapter struct {
	client *genai.Client
}

// NewGeminiAdapter creates an adapter backed by the Gemini API.
func NewGeminiAdapter(ctx context.Context, apiKey string) (*GeminiAdapter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiAdapter{client: client}, nil
}

// Name returns the provider identifier.
func (a *GeminiAdapter) Name() string { return "gemini" }

// Complete drains a stream into a Response.
func (a *GeminiAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
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

// Stream starts a GenerateContentStream call and translates each chunk.
func (a *GeminiAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	if req.Model == "" {
		return nil, &ConfigurationError{Message: "gemini: model is required"}
	}
	contents, system := a.convertMessages(req)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: system,
		Tools:             a.convertTools(req.ToolDefs),
		ThinkingConfig:    &genai.ThinkingConfig{IncludeThoughts: true},
	}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		cfg.Temperature = &t
	}
	if req.TopP != nil {
		p := float32(*req.TopP)
		cfg.TopP = &p
	}
	if req.MaxTokens != nil {
		cfg.MaxOutputTokens = int32(*req.MaxTokens)
	}

	ch := make(chan StreamEvent, 64)
	go func() {
		defer close(ch)
		ch <- StreamEvent{Type: StreamStart}

		sawCall := false
		var usage *Usage
		finish := FinishReason{Reason: "stop"}

		for resp, err := range a.client.Models.GenerateContentStream(ctx, req.Model, contents, cfg) {
			if err != nil {
				ch <- StreamEvent{Type: StreamError, Error: a.translateError(err)}
				return
			}
			if resp == nil {
				continue
			}
			if u := resp.UsageMetadata; u != nil {
				thoughts := int(u.ThoughtsTokenCount)
				cached := int(u.CachedContentTokenCount)
				usage = &Usage{
					InputTokens:     int(u.PromptTokenCount),
					OutputTokens:    int(u.CandidatesTokenCount),
					TotalTokens:     int(u.TotalTokenCount),
					ReasoningTokens: &thoughts,
					CacheReadTokens: &cached,
				}
			}
			for _, cand := range resp.Candidates {
				if cand.FinishReason == genai.FinishReasonMaxTokens {
					finish = FinishReason{Reason: "length", Raw: string(cand.FinishReason)}
				}
				if cand.Content == nil {
					continue
				}
				for _, part := range cand.Content.Parts {
					switch {
					case part.FunctionCall != nil:
						fc := part.FunctionCall
						id := fc.ID
						if id == "" {
							id = "call_" + uuid.New().String()[:8]
						}
						args, _ := codec.Marshal(fc.Args)
						sawCall = true
						ch <- StreamEvent{Type: ToolCallStart, ToolCall: &ToolCall{ID: id, Name: fc.Name}}
						ch <- StreamEvent{Type: ToolCallEnd, ToolCall: &ToolCall{
							ID:           id,
							Name:         fc.Name,
							Arguments:    argsOrEmpty(args),
							RawArguments: string(args),
						}}
					case part.Text != "" && part.Thought:
						ch <- StreamEvent{Type: ReasoningDelta, ReasoningDelta: part.Text}
					case part.Text != "":
						ch <- StreamEvent{Type: TextDelta, Delta: part.Text}
					}
				}
			}
		}

		if sawCall && finish.Reason == "stop" {
			finish.Reason = "tool_calls"
		}
		ch <- StreamEvent{Type: StreamFinish, FinishReason: &finish, Usage: usage}
	}()
	return ch, nil
}

func (a *GeminiAdapter) convertMessages(req Request) ([]*genai.Content, *genai.Content) {
	systemText, rest := req.SplitSystem()
	var system *genai.Content
	if systemText != "" {
		system = &genai.Content{Parts: []*genai.Part{{Text: systemText}}}
	}

	contents := make([]*genai.Content, 0, len(rest))
	for _, m := range rest {
		switch m.Role {
		case RoleTool:
			var parts []*genai.Part
			for _, part := range m.Content {
				if part.Kind != ContentToolResult || part.ToolResult == nil {
					continue
				}
				res := part.ToolResult
				key := "output"
				if res.IsError {
					key = "error"
				}
				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       res.ToolCallID,
					Name:     res.Name,
					Response: map[string]any{key: res.ResultText()},
				}})
			}
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: parts})
		case RoleAssistant:
			var parts []*genai.Part
			if text := m.TextContent(); text != "" {
				parts = append(parts, &genai.Part{Text: text})
			}
			for _, tc := range m.ToolCalls() {
				var args map[string]any
				_ = codec.Unmarshal(argsOrEmpty(tc.Arguments), &args)
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{ID: tc.ID, Name: tc.Name, Args: args}})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
			}
		default:
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: m.TextContent()}}})
		}
	}
	return contents, system
}

func (a *GeminiAdapter) convertTools(defs []ToolDefinition) []*genai.Tool {
	if len(defs) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, d := range defs {
		fd := &genai.FunctionDeclaration{Name: d.Name, Description: d.Description}
		if d.Parameters != nil {
			raw, err := codec.Marshal(d.Parameters)
			if err == nil {
				var schema genai.Schema
				if codec.Unmarshal(raw, &schema) == nil {
					fd.Parameters = &schema
				}
			}
		}
		decls = append(decls, fd)
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func (a *GeminiAdapter) translateError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &AbortError{Message: "gemini stream cancelled", Cause: err}
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		pe := NewProviderError(a.Name(), apiErr.Code, apiErr.Status, apiErr.Message)
		pe.Cause = err
		if apiErr.Status == "RESOURCE_EXHAUSTED" {
			pe.Kind = KindRateLimit
		}
		return pe
	}
	return &NetworkError{Message: "gemini stream failed", Cause: err}
}
