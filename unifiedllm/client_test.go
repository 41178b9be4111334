package unifiedllm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockAdapter is a test double for ProviderAdapter.
type mockAdapter struct {
	name     string
	response *Response
	err      error
	events   []StreamEvent
	lastReq  Request
}

func (m *mockAdapter) Name() string { return m.name }

func (m *mockAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func (m *mockAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	ch := make(chan StreamEvent, len(m.events))
	for _, e := range m.events {
		ch <- e
	}
	close(ch)
	return ch, nil
}

// streamFunc adapts a function into a stream-only ProviderAdapter.
type streamFunc func(ctx context.Context, req Request) (<-chan StreamEvent, error)

func (f streamFunc) Name() string { return "func" }
func (f streamFunc) Complete(ctx context.Context, req Request) (*Response, error) {
	events, err := f(ctx, req)
	if err != nil {
		return nil, err
	}
	return collect(ctx, "func", events)
}
func (f streamFunc) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	return f(ctx, req)
}

func newMockAdapter(name, text string) *mockAdapter {
	return &mockAdapter{
		name: name,
		response: &Response{
			ID:           "test_resp",
			Model:        "test-model",
			Provider:     name,
			Message:      AssistantMessage(text),
			FinishReason: FinishReason{Reason: "stop"},
			Usage:        Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30},
		},
	}
}

func hi() Request {
	return Request{Model: "test-model", Messages: []Message{UserMessage("Hi")}}
}

func TestClientComplete(t *testing.T) {
	mock := newMockAdapter("test-provider", "Hello!")
	client := NewClient(WithProvider("test-provider", mock), WithDefaultProvider("test-provider"))

	resp, err := client.Complete(context.Background(), hi())
	require.NoError(t, err)
	assert.Equal(t, "Hello!", resp.Text())
	assert.Equal(t, "test-provider", mock.lastReq.Provider)
}

func TestClientProviderRouting(t *testing.T) {
	openai := newMockAdapter("openai", "OpenAI response")
	anthropic := newMockAdapter("anthropic", "Anthropic response")
	ollama := newMockAdapter("ollama", "Ollama response")
	client := NewClient(
		WithProvider("openai", openai),
		WithProvider("anthropic", anthropic),
		WithProvider("ollama", ollama),
		WithDefaultProvider("openai"),
	)

	tests := []struct {
		name string
		req  Request
		want string
	}{
		{"explicit provider", Request{Model: "gpt-5.2", Provider: "anthropic"}, "Anthropic response"},
		{"catalog inference", Request{Model: "qwen3"}, "Ollama response"},
		{"default provider", Request{Model: "unknown-model"}, "OpenAI response"},
		{"catalog provider not registered", Request{Model: "gemini-flash"}, "OpenAI response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := client.Complete(context.Background(), tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.Text())
		})
	}
	assert.Equal(t, []string{"anthropic", "ollama", "openai"}, client.Providers())
}

func TestClientNoProvider(t *testing.T) {
	_, err := NewClient().Complete(context.Background(), hi())
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	client := NewClient(WithProvider("a", newMockAdapter("a", "")), WithProvider("b", newMockAdapter("b", "")))
	_, err = client.Stream(context.Background(), Request{Model: "x", Provider: "c"})
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), `"c"`)
}

func TestClientMiddlewareOrder(t *testing.T) {
	var order []int
	record := func(n int) Middleware {
		return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
			order = append(order, n)
			resp, err := next(ctx, req)
			order = append(order, -n)
			return resp, err
		}
	}
	client := NewClient(WithProvider("test", newMockAdapter("test", "response")), WithMiddleware(record(1), record(2)))

	_, err := client.Complete(context.Background(), hi())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, -2, -1}, order)
}

func TestClientStreamMiddleware(t *testing.T) {
	mock := &mockAdapter{name: "test", events: []StreamEvent{
		{Type: StreamStart},
		{Type: TextDelta, Delta: "Hello"},
		{Type: TextDelta, Delta: " world"},
		{Type: StreamFinish, FinishReason: &FinishReason{Reason: "stop"}},
	}}
	var seen []string
	mw := func(ctx context.Context, req Request, next func(context.Context, Request) (<-chan StreamEvent, error)) (<-chan StreamEvent, error) {
		seen = append(seen, req.Model)
		req.Model = "rewritten"
		return next(ctx, req)
	}
	client := NewClient(WithProvider("test", mock), WithStreamMiddleware(mw))

	ch, err := client.Stream(context.Background(), hi())
	require.NoError(t, err)
	var events []StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}
	require.Len(t, events, 4)
	assert.Equal(t, "Hello", events[1].Delta)
	assert.Equal(t, []string{"test-model"}, seen)
	assert.Equal(t, "rewritten", mock.lastReq.Model)
}

func TestClientRegisterProvider(t *testing.T) {
	client := NewClient()
	client.RegisterProvider("dynamic", newMockAdapter("dynamic", "dynamic response"))

	resp, err := client.Complete(context.Background(), hi())
	require.NoError(t, err)
	assert.Equal(t, "dynamic response", resp.Text())
}

func TestCollect(t *testing.T) {
	events := make(chan StreamEvent, 8)
	events <- StreamEvent{Type: ReasoningDelta, ReasoningDelta: "think"}
	events <- StreamEvent{Type: TextDelta, Delta: "Hel"}
	events <- StreamEvent{Type: TextDelta, Delta: "lo"}
	events <- StreamEvent{Type: ToolCallEnd, ToolCall: &ToolCall{ID: "c1", Name: "f", Arguments: []byte(`{}`)}}
	events <- StreamEvent{Type: StreamFinish, FinishReason: &FinishReason{Reason: "tool_calls"}, Usage: &Usage{TotalTokens: 3}}
	close(events)

	resp, err := collect(context.Background(), "p", events)
	require.NoError(t, err)
	assert.Equal(t, "Hello", resp.Text())
	assert.Equal(t, "think", resp.Reasoning())
	require.Len(t, resp.ToolCallsFromResponse(), 1)
	assert.Equal(t, "tool_calls", resp.FinishReason.Reason)
	assert.Equal(t, 3, resp.Usage.TotalTokens)
}

func TestCollectStreamError(t *testing.T) {
	events := make(chan StreamEvent, 2)
	events <- StreamEvent{Type: TextDelta, Delta: "partial"}
	events <- StreamEvent{Type: StreamError, Error: serverError()}
	close(events)

	_, err := collect(context.Background(), "p", events)
	assert.Equal(t, KindServer, KindOf(err))
}

type closingAdapter struct {
	mockAdapter
	err error
}

func (c *closingAdapter) Close() error { return c.err }

func TestClientCloseJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	client := NewClient(
		WithProvider("a", &closingAdapter{mockAdapter: mockAdapter{name: "a"}}),
		WithProvider("b", &closingAdapter{mockAdapter: mockAdapter{name: "b"}, err: boom}),
		WithProvider("c", newMockAdapter("c", "")),
	)
	assert.ErrorIs(t, client.Close(), boom)
	assert.NoError(t, NewClient().Close())
}

func TestNewClientFromEnv(t *testing.T) {
	for _, k := range []string{"OPENAI_API_KEY", "GEMINI_API_KEY", "GOOGLE_API_KEY", "ANTHROPIC_API_KEY"} {
		t.Setenv(k, "")
	}
	t.Setenv("OLLAMA_HOST", "http://127.0.0.1:11434")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	client, err := NewClientFromEnv(context.Background(), WithDefaultProvider("ollama"))
	require.NoError(t, err)
	assert.Equal(t, []string{"ollama", "openai"}, client.Providers())

	adapter, err := client.resolveProvider(Request{Model: "unknown-model"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", adapter.Name())
}
