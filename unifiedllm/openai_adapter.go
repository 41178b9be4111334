package unifiedllm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"
)

// OpenAIAdapter streams through the OpenAI Responses API. Function call
// arguments arrive incrementally and are forwarded as ToolCallDelta events.
type OpenAIAdapter struct {
	client openai.Client
}

// NewOpenAIAdapter creates an adapter. Extra request options (base URL,
// headers, HTTP client) are passed to the SDK unchanged.
func NewOpenAIAdapter(apiKey string, opts ...option.RequestOption) *OpenAIAdapter {
	all := make([]option.RequestOption, 0, len(opts)+1)
	if apiKey != "" {
		all = append(all, option.WithAPIKey(apiKey))
	}
	all = append(all, opts...)
	return &OpenAIAdapter{client: openai.NewClient(all...)}
}

// Name returns the provider identifier.
func (a *OpenAIAdapter) Name() string { return "openai" }

// Complete drains a stream into a Response.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
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

// Stream starts a Responses API stream and translates its events.
func (a *OpenAIAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	if req.Model == "" {
		return nil, &ConfigurationError{Message: "openai: model is required"}
	}
	params := a.buildParams(req)

	ch := make(chan StreamEvent, 64)
	go func() {
		defer close(ch)

		stream := a.client.Responses.NewStreaming(ctx, params)
		defer stream.Close()

		ch <- StreamEvent{Type: StreamStart}

		// Output items are keyed by item id; the call id is what later
		// function_call_output items must reference.
		calls := make(map[string]*ToolCall)
		sawCall := false
		var usage *Usage
		finish := FinishReason{Reason: "stop", Raw: "completed"}

		callFor := func(itemID, callID, name string) *ToolCall {
			tc, ok := calls[itemID]
			if !ok {
				id := callID
				if id == "" {
					id = itemID
				}
				tc = &ToolCall{ID: id, Name: name}
				calls[itemID] = tc
				sawCall = true
				ch <- StreamEvent{Type: ToolCallStart, ToolCall: &ToolCall{ID: tc.ID, Name: tc.Name}}
			}
			if tc.Name == "" && name != "" {
				tc.Name = name
			}
			return tc
		}

		for stream.Next() {
			switch ev := stream.Current().AsAny().(type) {
			case responses.ResponseTextDeltaEvent:
				ch <- StreamEvent{Type: TextDelta, Delta: ev.Delta, TextID: ev.ItemID}

			case responses.ResponseReasoningTextDeltaEvent:
				ch <- StreamEvent{Type: ReasoningDelta, ReasoningDelta: ev.Delta}

			case responses.ResponseReasoningSummaryTextDeltaEvent:
				ch <- StreamEvent{Type: ReasoningDelta, ReasoningDelta: ev.Delta}

			case responses.ResponseOutputItemAddedEvent:
				if ev.Item.Type == "function_call" {
					callFor(ev.Item.ID, ev.Item.CallID, ev.Item.Name)
				}

			case responses.ResponseFunctionCallArgumentsDeltaEvent:
				tc := callFor(ev.ItemID, "", "")
				ch <- StreamEvent{Type: ToolCallDelta, Delta: ev.Delta, ToolCall: &ToolCall{ID: tc.ID, Name: tc.Name}}

			case responses.ResponseFunctionCallArgumentsDoneEvent:
				tc := callFor(ev.ItemID, "", ev.Name)
				ch <- StreamEvent{Type: ToolCallEnd, ToolCall: &ToolCall{
					ID:           tc.ID,
					Name:         tc.Name,
					Arguments:    argsOrEmpty([]byte(ev.Arguments)),
					RawArguments: ev.Arguments,
				}}

			case responses.ResponseCompletedEvent:
				u := ev.Response.Usage
				reasoning := int(u.OutputTokensDetails.ReasoningTokens)
				cached := int(u.InputTokensDetails.CachedTokens)
				usage = &Usage{
					InputTokens:     int(u.InputTokens),
					OutputTokens:    int(u.OutputTokens),
					TotalTokens:     int(u.TotalTokens),
					ReasoningTokens: &reasoning,
					CacheReadTokens: &cached,
				}

			case responses.ResponseIncompleteEvent:
				finish = FinishReason{Reason: "length", Raw: "incomplete"}

			case responses.ResponseFailedEvent:
				msg := ev.Response.Error.Message
				if msg == "" {
					msg = "response failed"
				}
				ch <- StreamEvent{Type: StreamError, Error: &ProviderError{
					Provider: a.Name(),
					Kind:     KindServer,
					Code:     string(ev.Response.Error.Code),
					Message:  msg,
				}}
				return

			case responses.ResponseErrorEvent:
				ch <- StreamEvent{Type: StreamError, Error: &ProviderError{
					Provider: a.Name(),
					Kind:     KindServer,
					Code:     ev.Code,
					Message:  ev.Message,
				}}
				return
			}
		}

		if err := stream.Err(); err != nil {
			ch <- StreamEvent{Type: StreamError, Error: a.translateError(err)}
			return
		}
		if sawCall && finish.Reason == "stop" {
			finish = FinishReason{Reason: "tool_calls", Raw: finish.Raw}
		}
		ch <- StreamEvent{Type: StreamFinish, FinishReason: &finish, Usage: usage}
	}()

	return ch, nil
}

func (a *OpenAIAdapter) buildParams(req Request) responses.ResponseNewParams {
	params := responses.ResponseNewParams{
		Model: req.Model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: a.convertMessages(req.Messages),
		},
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}
	if req.MaxTokens != nil {
		params.MaxOutputTokens = openai.Int(int64(*req.MaxTokens))
	}
	if req.ReasoningEffort != "" {
		params.Reasoning = shared.ReasoningParam{Effort: shared.ReasoningEffort(req.ReasoningEffort)}
	}
	for _, t := range req.ToolDefs {
		params.Tools = append(params.Tools, responses.ToolUnionParam{
			OfFunction: &responses.FunctionToolParam{
				Name:        t.Name,
				Description: openai.String(t.Description),
				Parameters:  t.Parameters,
			},
		})
	}
	return params
}

func (a *OpenAIAdapter) convertMessages(messages []Message) []responses.ResponseInputItemUnionParam {
	items := make([]responses.ResponseInputItemUnionParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			items = append(items, responses.ResponseInputItemParamOfMessage(m.TextContent(), responses.EasyInputMessageRoleSystem))
		case RoleUser:
			items = append(items, responses.ResponseInputItemParamOfMessage(m.TextContent(), responses.EasyInputMessageRoleUser))
		case RoleAssistant:
			if text := m.TextContent(); text != "" {
				items = append(items, responses.ResponseInputItemParamOfMessage(text, responses.EasyInputMessageRoleAssistant))
			}
			for _, tc := range m.ToolCalls() {
				items = append(items, responses.ResponseInputItemParamOfFunctionCall(string(argsOrEmpty(tc.Arguments)), tc.ID, tc.Name))
			}
		case RoleTool:
			for _, part := range m.Content {
				if part.Kind == ContentToolResult && part.ToolResult != nil {
					items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(part.ToolResult.ToolCallID, part.ToolResult.ResultText()))
				}
			}
		}
	}
	return items
}

func (a *OpenAIAdapter) translateError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &AbortError{Message: "openai stream cancelled", Cause: err}
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		pe := NewProviderError(a.Name(), apiErr.StatusCode, apiErr.Code, apiErr.Message)
		pe.Cause = err
		if apiErr.Response != nil {
			pe.RetryAfter = retryAfter(apiErr.Response.Header.Get("Retry-After"))
		}
		return pe
	}
	return &NetworkError{Message: fmt.Sprintf("%s stream failed", a.Name()), Cause: err}
}
