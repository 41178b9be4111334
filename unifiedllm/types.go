package unifiedllm

import (
	"encoding/json"
	"strings"
)

// Role identifies who produced a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentKind tags a ContentPart.
type ContentKind string

const (
	ContentText       ContentKind = "text"
	ContentToolCall   ContentKind = "tool_call"
	ContentToolResult ContentKind = "tool_result"
	ContentThinking   ContentKind = "thinking"
)

// ToolCallData is a tool invocation requested by the model.
type ToolCallData struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResultData answers the tool call ToolCallID.
type ToolResultData struct {
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name,omitempty"`
	Output     string `json:"output"`
	IsError    bool   `json:"is_error,omitempty"`
}

// ResultText returns the output sent back to the model.
func (d ToolResultData) ResultText() string { return d.Output }

// ThinkingData is model reasoning. Signature, when a provider sets one,
// must be echoed back unchanged.
type ThinkingData struct {
	Text      string `json:"text"`
	Signature string `json:"signature,omitempty"`
	Redacted  bool   `json:"redacted,omitempty"`
}

// ContentPart is one part of a message. Exactly the field named by Kind
// is set.
type ContentPart struct {
	Kind       ContentKind     `json:"kind"`
	Text       string          `json:"text,omitempty"`
	ToolCall   *ToolCallData   `json:"tool_call,omitempty"`
	ToolResult *ToolResultData `json:"tool_result,omitempty"`
	Thinking   *ThinkingData   `json:"thinking,omitempty"`
}

func TextPart(text string) ContentPart {
	return ContentPart{Kind: ContentText, Text: text}
}

func ToolCallPart(id, name string, args json.RawMessage) ContentPart {
	return ContentPart{Kind: ContentToolCall, ToolCall: &ToolCallData{ID: id, Name: name, Arguments: args}}
}

func ToolResultPart(toolCallID, name, output string, isError bool) ContentPart {
	return ContentPart{
		Kind:       ContentToolResult,
		ToolResult: &ToolResultData{ToolCallID: toolCallID, Name: name, Output: output, IsError: isError},
	}
}

func ThinkingPart(text, signature string) ContentPart {
	return ContentPart{Kind: ContentThinking, Thinking: &ThinkingData{Text: text, Signature: signature}}
}

// Message is one entry of a provider request.
type Message struct {
	Role    Role          `json:"role"`
	Content []ContentPart `json:"content"`
}

func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Content: []ContentPart{TextPart(text)}}
}

func UserMessage(text string) Message {
	return Message{Role: RoleUser, Content: []ContentPart{TextPart(text)}}
}

func AssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Content: []ContentPart{TextPart(text)}}
}

// ToolResultMessage carries one tool result back to the model.
func ToolResultMessage(toolCallID, name, output string, isError bool) Message {
	return Message{Role: RoleTool, Content: []ContentPart{ToolResultPart(toolCallID, name, output, isError)}}
}

// TextContent concatenates the text parts.
func (m Message) TextContent() string {
	var sb strings.Builder
	for _, p := range m.Content {
		if p.Kind == ContentText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// ThinkingContent concatenates the thinking parts that are not redacted.
func (m Message) ThinkingContent() string {
	var sb strings.Builder
	for _, p := range m.Content {
		if p.Kind == ContentThinking && p.Thinking != nil && !p.Thinking.Redacted {
			sb.WriteString(p.Thinking.Text)
		}
	}
	return sb.String()
}

// ToolCalls returns the tool call parts in order.
func (m Message) ToolCalls() []ToolCallData {
	var calls []ToolCallData
	for _, p := range m.Content {
		if p.Kind == ContentToolCall && p.ToolCall != nil {
			calls = append(calls, *p.ToolCall)
		}
	}
	return calls
}

// ToolResult returns the first tool result part, or nil.
func (m Message) ToolResult() *ToolResultData {
	for _, p := range m.Content {
		if p.Kind == ContentToolResult && p.ToolResult != nil {
			return p.ToolResult
		}
	}
	return nil
}

// ToolChoice controls whether and how the model uses tools.
type ToolChoice struct {
	Mode     string `json:"mode"`                // "auto", "none", "required" or "named"
	ToolName string `json:"tool_name,omitempty"` // for "named"
}

// ToolCall is a tool invocation on a stream event or a response.
// RawArguments keeps the undecoded text when Arguments could not be
// parsed.
type ToolCall struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Arguments    json.RawMessage `json:"arguments"`
	RawArguments string          `json:"raw_arguments,omitempty"`
}

// FinishReason says why generation stopped. Reason is normalized to
// "stop", "length", "tool_calls", "content_filter", "error" or "other";
// Raw is the provider's own value.
type FinishReason struct {
	Reason string `json:"reason"`
	Raw    string `json:"raw,omitempty"`
}

// Usage counts tokens. Optional counters stay nil when the provider does
// not report them.
type Usage struct {
	InputTokens      int  `json:"input_tokens"`
	OutputTokens     int  `json:"output_tokens"`
	TotalTokens      int  `json:"total_tokens"`
	ReasoningTokens  *int `json:"reasoning_tokens,omitempty"`
	CacheReadTokens  *int `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens *int `json:"cache_write_tokens,omitempty"`
}

// Add sums two usages. An optional counter is nil only when both are.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:      u.InputTokens + o.InputTokens,
		OutputTokens:     u.OutputTokens + o.OutputTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
		ReasoningTokens:  addOptional(u.ReasoningTokens, o.ReasoningTokens),
		CacheReadTokens:  addOptional(u.CacheReadTokens, o.CacheReadTokens),
		CacheWriteTokens: addOptional(u.CacheWriteTokens, o.CacheWriteTokens),
	}
}

func addOptional(a, b *int) *int {
	if a == nil && b == nil {
		return nil
	}
	var sum int
	for _, p := range []*int{a, b} {
		if p != nil {
			sum += *p
		}
	}
	return &sum
}

// Request is the input of Complete and Stream.
type Request struct {
	Model           string           `json:"model"`
	Provider        string           `json:"provider,omitempty"` // "" routes by catalog, then default
	Messages        []Message        `json:"messages"`
	ToolDefs        []ToolDefinition `json:"tools,omitempty"`
	ToolChoice      *ToolChoice      `json:"tool_choice,omitempty"`
	Temperature     *float64         `json:"temperature,omitempty"`
	TopP            *float64         `json:"top_p,omitempty"`
	MaxTokens       *int             `json:"max_tokens,omitempty"`
	ReasoningEffort string           `json:"reasoning_effort,omitempty"`
}

// SplitSystem returns the system text, joined by blank lines, and the
// remaining messages. Most providers take the system prompt out of band.
func (r Request) SplitSystem() (string, []Message) {
	var system []string
	rest := make([]Message, 0, len(r.Messages))
	for _, m := range r.Messages {
		if m.Role == RoleSystem {
			system = append(system, m.TextContent())
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(system, "\n\n"), rest
}

// ToolDefinition describes a tool to the model. Parameters is a JSON
// Schema object.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Response is the output of Complete.
type Response struct {
	ID           string       `json:"id"`
	Model        string       `json:"model"`
	Provider     string       `json:"provider"`
	Message      Message      `json:"message"`
	FinishReason FinishReason `json:"finish_reason"`
	Usage        Usage        `json:"usage"`
}

func (r Response) Text() string      { return r.Message.TextContent() }
func (r Response) Reasoning() string { return r.Message.ThinkingContent() }

// ToolCallsFromResponse returns the response's tool calls in order.
func (r Response) ToolCallsFromResponse() []ToolCall {
	var calls []ToolCall
	for _, c := range r.Message.ToolCalls() {
		calls = append(calls, ToolCall{ID: c.ID, Name: c.Name, Arguments: c.Arguments})
	}
	return calls
}

// StreamEventType identifies a stream event.
type StreamEventType string

const (
	StreamStart    StreamEventType = "stream_start"
	TextStart      StreamEventType = "text_start"
	TextDelta      StreamEventType = "text_delta"
	TextEnd        StreamEventType = "text_end"
	ReasoningDelta StreamEventType = "reasoning_delta"
	ToolCallStart  StreamEventType = "tool_call_start"
	ToolCallDelta  StreamEventType = "tool_call_delta"
	ToolCallEnd    StreamEventType = "tool_call_end"
	StreamFinish   StreamEventType = "finish"
	StreamError    StreamEventType = "error"
)

// StreamEvent is one event of a streaming response.
//
// Tool calls arrive as ToolCallStart (ToolCall.ID and ToolCall.Name),
// any number of ToolCallDelta events whose Delta holds an argument
// fragment for ToolCall.ID, and a ToolCallEnd. A ToolCallEnd that carries
// ToolCall.Arguments is decode-complete and supersedes the fragments.
// The channel is closed after StreamFinish or StreamError.
type StreamEvent struct {
	Type           StreamEventType `json:"type"`
	Delta          string          `json:"delta,omitempty"`
	TextID         string          `json:"text_id,omitempty"`
	ReasoningDelta string          `json:"reasoning_delta,omitempty"`
	ToolCall       *ToolCall       `json:"tool_call,omitempty"`
	FinishReason   *FinishReason   `json:"finish_reason,omitempty"`
	Usage          *Usage          `json:"usage,omitempty"`
	Response       *Response       `json:"response,omitempty"`
	Error          error           `json:"-"`
}
