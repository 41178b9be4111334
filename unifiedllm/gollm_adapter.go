package unifiedllm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/teilomillet/gollm"
)

// GollmAdapter serves a provider through gollm. gollm takes a single
// prompt, so the conversation is rendered as a transcript and tool calls
// are recovered from a JSON array the model is asked to end its reply
// with.
type GollmAdapter struct {
	provider string
	model    string

	// mu serializes requests: per-request options are set on the shared
	// gollm.LLM before each call.
	mu  sync.Mutex
	llm gollm.LLM
}

// GollmAdapterOption configures NewGollmAdapter.
type GollmAdapterOption func(*gollmSettings)

type gollmSettings struct {
	model       string
	maxTokens   int
	temperature float64
	extra       []gollm.ConfigOption
}

// WithModel sets the model used when a request names none.
func WithModel(model string) GollmAdapterOption {
	return func(s *gollmSettings) { s.model = model }
}

// WithMaxTokens sets the default output limit.
func WithMaxTokens(n int) GollmAdapterOption {
	return func(s *gollmSettings) { s.maxTokens = n }
}

// WithTemperature sets the default sampling temperature.
func WithTemperature(t float64) GollmAdapterOption {
	return func(s *gollmSettings) { s.temperature = t }
}

// WithGollmOptions passes options through to gollm.NewLLM.
func WithGollmOptions(opts ...gollm.ConfigOption) GollmAdapterOption {
	return func(s *gollmSettings) { s.extra = append(s.extra, opts...) }
}

// NewGollmAdapter builds an adapter for provider. An empty apiKey lets
// gollm read the provider's usual environment variable. Without WithModel
// the provider's catalog default is used.
func NewGollmAdapter(provider, apiKey string, opts ...GollmAdapterOption) (*GollmAdapter, error) {
	s := gollmSettings{maxTokens: 4096, temperature: 0.7}
	for _, opt := range opts {
		opt(&s)
	}
	if s.model == "" {
		info := GetLatestModel(provider, CapTools)
		if info == nil {
			return nil, &ConfigurationError{Message: fmt.Sprintf("gollm: no catalog model for provider %q; set a model", provider)}
		}
		s.model = info.ID
	}

	cfg := []gollm.ConfigOption{
		gollm.SetProvider(provider),
		gollm.SetModel(s.model),
		gollm.SetMaxTokens(s.maxTokens),
		gollm.SetTemperature(s.temperature),
		gollm.SetMaxRetries(0), // RetryMiddleware owns retries
		gollm.SetLogLevel(gollm.LogLevelWarn),
	}
	if apiKey != "" {
		cfg = append(cfg, gollm.SetAPIKey(apiKey))
	}
	llm, err := gollm.NewLLM(append(cfg, s.extra...)...)
	if err != nil {
		return nil, fmt.Errorf("gollm %s: %w", provider, err)
	}
	return &GollmAdapter{provider: provider, model: s.model, llm: llm}, nil
}

// NewGollmAdapterFromLLM wraps an existing gollm.LLM.
func NewGollmAdapterFromLLM(provider, model string, llm gollm.LLM) *GollmAdapter {
	return &GollmAdapter{provider: provider, model: model, llm: llm}
}

func (a *GollmAdapter) Name() string { return a.provider }

// SupportsToolChoice reports whether mode can be honored.
func (a *GollmAdapter) SupportsToolChoice(mode string) bool {
	switch mode {
	case "auto", "none", "required":
		return true
	case "named":
		return a.provider != "gemini"
	}
	return false
}

// Complete generates the whole reply.
func (a *GollmAdapter) Complete(ctx context.Context, req Request) (*Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applyOptions(req)
	text, err := a.llm.Generate(ctx, renderPrompt(req))
	if err != nil {
		return nil, a.translateError(err)
	}
	return a.buildResponse(req, text), nil
}

// Stream streams text tokens when gollm can and the request has no tools.
// With tools the reply is generated whole, since the trailing call array
// must be split off before any text is emitted.
func (a *GollmAdapter) Stream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	ch := make(chan StreamEvent, 64)
	if len(req.ToolDefs) > 0 || !a.llm.SupportsStreaming() {
		go func() {
			defer close(ch)
			ch <- StreamEvent{Type: StreamStart}
			resp, err := a.Complete(ctx, req)
			if err != nil {
				ch <- StreamEvent{Type: StreamError, Error: err}
				return
			}
			emitResponse(ch, resp)
		}()
		return ch, nil
	}

	a.mu.Lock()
	a.applyOptions(req)
	stream, err := a.llm.Stream(ctx, renderPrompt(req))
	a.mu.Unlock()
	if err != nil {
		return nil, a.translateError(err)
	}

	go func() {
		defer close(ch)
		defer stream.Close()
		ch <- StreamEvent{Type: StreamStart}

		const textID = "text_0"
		var text strings.Builder
		for {
			token, err := stream.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				ch <- StreamEvent{Type: StreamError, Error: a.translateError(err)}
				return
			}
			if token == nil || token.Text == "" {
				continue
			}
			if text.Len() == 0 {
				ch <- StreamEvent{Type: TextStart, TextID: textID}
			}
			text.WriteString(token.Text)
			ch <- StreamEvent{Type: TextDelta, Delta: token.Text, TextID: textID}
		}
		if text.Len() > 0 {
			ch <- StreamEvent{Type: TextEnd, TextID: textID}
		}
		resp := a.buildResponse(req, text.String())
		ch <- StreamEvent{Type: StreamFinish, FinishReason: &resp.FinishReason, Usage: &resp.Usage, Response: resp}
	}()
	return ch, nil
}

// applyOptions sets the request's overrides on the shared LLM. The caller
// holds a.mu.
func (a *GollmAdapter) applyOptions(req Request) {
	model := req.Model
	if model == "" {
		model = a.model
	}
	a.llm.SetOption("model", model)
	if req.Temperature != nil {
		a.llm.SetOption("temperature", *req.Temperature)
	}
	if req.TopP != nil {
		a.llm.SetOption("top_p", *req.TopP)
	}
	if req.MaxTokens != nil {
		a.llm.SetOption("max_tokens", *req.MaxTokens)
	}
}

// emitResponse replays a complete response as stream events.
func emitResponse(ch chan<- StreamEvent, resp *Response) {
	const textID = "text_0"
	if text := resp.Text(); text != "" {
		ch <- StreamEvent{Type: TextStart, TextID: textID}
		ch <- StreamEvent{Type: TextDelta, Delta: text, TextID: textID}
		ch <- StreamEvent{Type: TextEnd, TextID: textID}
	}
	for _, call := range resp.ToolCallsFromResponse() {
		ch <- StreamEvent{Type: ToolCallStart, ToolCall: &ToolCall{ID: call.ID, Name: call.Name}}
		ch <- StreamEvent{Type: ToolCallEnd, ToolCall: &call}
	}
	ch <- StreamEvent{Type: StreamFinish, FinishReason: &resp.FinishReason, Usage: &resp.Usage, Response: resp}
}

const toolCallInstruction = `To call tools, end your reply with a JSON array of the form [{"name": "<tool>", "arguments": {...}}].`

// renderPrompt flattens req into a gollm prompt.
func renderPrompt(req Request) *gollm.Prompt {
	system, text := renderTranscript(req)

	var opts []gollm.PromptOption
	if system != "" {
		opts = append(opts, gollm.WithSystemPrompt(system, gollm.CacheTypeEphemeral))
	}
	if req.MaxTokens != nil {
		opts = append(opts, gollm.WithMaxLength(*req.MaxTokens))
	}
	if len(req.ToolDefs) > 0 {
		tools := make([]gollm.Tool, 0, len(req.ToolDefs))
		for _, t := range req.ToolDefs {
			tools = append(tools, gollm.Tool{
				Type:     "function",
				Function: gollm.Function{Name: t.Name, Description: t.Description, Parameters: t.Parameters},
			})
		}
		opts = append(opts, gollm.WithTools(tools))
	}
	if req.ToolChoice != nil {
		opts = append(opts, gollm.WithToolChoice(req.ToolChoice.Mode))
	}
	return gollm.NewPrompt(text, opts...)
}

// renderTranscript returns the system text and the conversation as one
// labeled line per message, followed by the tool call instruction when
// tools are offered.
func renderTranscript(req Request) (string, string) {
	system, rest := req.SplitSystem()

	var lines []string
	for _, m := range rest {
		switch m.Role {
		case RoleUser:
			lines = append(lines, m.TextContent())
		case RoleAssistant:
			if text := m.TextContent(); text != "" {
				lines = append(lines, "[Assistant]: "+text)
			}
			for _, c := range m.ToolCalls() {
				lines = append(lines, fmt.Sprintf("[Tool Call %s]: %s(%s)", c.ID, c.Name, c.Arguments))
			}
		case RoleTool:
			if r := m.ToolResult(); r != nil {
				label := "Tool Result"
				if r.IsError {
					label = "Tool Error"
				}
				lines = append(lines, fmt.Sprintf("[%s %s]: %s", label, r.ToolCallID, r.Output))
			}
		}
	}
	text := strings.Join(lines, "\n")
	if text == "" {
		text = "Hello"
	}
	if len(req.ToolDefs) > 0 {
		text += "\n\n" + toolCallInstruction
	}
	return system, text
}

// buildResponse splits generated text into prose and tool calls.
func (a *GollmAdapter) buildResponse(req Request, text string) *Response {
	model := req.Model
	if model == "" {
		model = a.model
	}
	prose, calls := splitToolCalls(text)

	msg := Message{Role: RoleAssistant}
	if prose != "" {
		msg.Content = append(msg.Content, TextPart(prose))
	}
	for _, c := range calls {
		msg.Content = append(msg.Content, ToolCallPart(c.ID, c.Name, c.Arguments))
	}
	finish := FinishReason{Reason: "stop", Raw: "stop"}
	if len(calls) > 0 {
		finish = FinishReason{Reason: "tool_calls", Raw: "tool_calls"}
	}

	in, out := estimateTokens(req), approxTokens(text)
	return &Response{
		ID:           "resp_" + uuid.NewString()[:8],
		Model:        model,
		Provider:     a.provider,
		Message:      msg,
		FinishReason: finish,
		Usage:        Usage{InputTokens: in, OutputTokens: out, TotalTokens: in + out},
	}
}

// splitToolCalls finds the last `[{"name"` array that parses as a list of
// calls and runs to the end of text. It returns the text before it and
// the calls, each given a fresh id. Text without such an array is
// returned whole.
func splitToolCalls(text string) (string, []ToolCallData) {
	trimmed := strings.TrimSpace(text)
	for end := len(trimmed); ; {
		start := strings.LastIndex(trimmed[:end], "[")
		if start < 0 {
			return trimmed, nil
		}
		end = start
		tail := trimmed[start:]
		if !strings.HasPrefix(strings.TrimLeft(tail[1:], " \t\r\n"), `{"name"`) {
			continue
		}
		var raw []struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := codec.Unmarshal([]byte(tail), &raw); err != nil || len(raw) == 0 {
			continue
		}
		calls := make([]ToolCallData, 0, len(raw))
		for _, r := range raw {
			args := r.Arguments
			if len(args) == 0 {
				args = json.RawMessage(`{}`)
			}
			calls = append(calls, ToolCallData{ID: "call_" + uuid.NewString()[:8], Name: r.Name, Arguments: args})
		}
		return strings.TrimSpace(trimmed[:start]), calls
	}
}

// gollmErrorHints classifies gollm errors, which carry no status, by
// message text. The first match wins.
var gollmErrorHints = []struct {
	kind   ErrorKind
	status int
	hints  []string
}{
	{KindAuthentication, 401, []string{"401", "unauthorized", "invalid key", "invalid api key"}},
	{KindAccessDenied, 403, []string{"403", "forbidden"}},
	{KindNotFound, 404, []string{"404", "not found"}},
	{KindRateLimit, 429, []string{"429", "rate limit"}},
	{KindContextLength, 413, []string{"context length", "too many tokens"}},
	{KindServer, 500, []string{"500", "internal server"}},
	{KindTimeout, 0, []string{"timeout"}},
	{KindContentFilter, 0, []string{"content filter", "safety"}},
}

// translateError converts a gollm error into a ProviderError.
func (a *GollmAdapter) translateError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	lower := strings.ToLower(msg)
	pe := &ProviderError{Provider: a.provider, Kind: KindUnknown, Message: msg, Cause: err}
	for _, h := range gollmErrorHints {
		for _, hint := range h.hints {
			if strings.Contains(lower, hint) {
				pe.Kind, pe.StatusCode = h.kind, h.status
				return pe
			}
		}
	}
	return pe
}

// approxTokens estimates four characters per token.
func approxTokens(s string) int { return (len(s) + 3) / 4 }

// estimateTokens approximates the prompt size of req. gollm reports no
// usage.
func estimateTokens(req Request) int {
	total := 0
	for _, m := range req.Messages {
		total += approxTokens(m.TextContent())
		for _, c := range m.ToolCalls() {
			total += approxTokens(c.Name) + approxTokens(string(c.Arguments))
		}
		if r := m.ToolResult(); r != nil {
			total += approxTokens(r.Output)
		}
	}
	return max(total, 1)
}
