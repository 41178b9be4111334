package agentloop

import (
	"encoding/json"
	"maps"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies the kind of participant that produced a Msg.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ResultStatus records how a tool result came about.
type ResultStatus string

const (
	StatusSuccess     ResultStatus = "success"
	StatusError       ResultStatus = "error"
	StatusInterrupted ResultStatus = "interrupted"
	StatusAborted     ResultStatus = "aborted"
	StatusUnresolved  ResultStatus = "unresolved"
)

// Block is one content fragment of a Msg. The set of variants is closed:
// TextBlock, ReasoningBlock, ToolUseBlock and ToolResultBlock.
type Block interface {
	block()
}

// TextBlock is plain text.
type TextBlock struct {
	Text string `json:"text" yaml:"text"`
}

// ReasoningBlock is model deliberation surfaced separately from text.
type ReasoningBlock struct {
	Text      string `json:"text" yaml:"text"`
	Signature string `json:"signature,omitempty" yaml:"signature,omitempty"`
}

// ToolUseBlock is a tool invocation requested by the model. RawInput keeps
// the argument text as streamed when it could not be decoded.
type ToolUseBlock struct {
	ID       string          `json:"id" yaml:"id"`
	Name     string          `json:"name" yaml:"name"`
	Input    json.RawMessage `json:"input" yaml:"-"`
	RawInput string          `json:"raw_input,omitempty" yaml:"raw_input,omitempty"`
}

// ToolResultBlock is the outcome of the invocation with the same ID.
type ToolResultBlock struct {
	ID     string       `json:"id" yaml:"id"`
	Name   string       `json:"name,omitempty" yaml:"name,omitempty"`
	Output string       `json:"output" yaml:"output"`
	Status ResultStatus `json:"status" yaml:"status"`
}

func (TextBlock) block()       {}
func (ReasoningBlock) block()  {}
func (ToolUseBlock) block()    {}
func (ToolResultBlock) block() {}

// IsError reports whether the result is anything other than a success.
func (b ToolResultBlock) IsError() bool { return b.Status != StatusSuccess }

// Msg is an immutable conversation entry. Values returned by constructors
// and by ConversationLog.Snapshot own their content slices.
type Msg struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Author    string         `json:"author"`
	Content   []Block        `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// NewMsg creates a Msg with a fresh id.
func NewMsg(role Role, author string, blocks ...Block) Msg {
	content := make([]Block, len(blocks))
	copy(content, blocks)
	return Msg{
		ID:        uuid.NewString(),
		Role:      role,
		Author:    author,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// UserMsg creates a user message with a single text block.
func UserMsg(text string) Msg {
	return NewMsg(RoleUser, "user", TextBlock{Text: text})
}

// SystemMsg creates a system message with a single text block.
func SystemMsg(text string) Msg {
	return NewMsg(RoleSystem, "system", TextBlock{Text: text})
}

// AssistantMsg creates an assistant message authored by author.
func AssistantMsg(author, text string) Msg {
	return NewMsg(RoleAssistant, author, TextBlock{Text: text})
}

// WithMetadata returns a copy of m with key set.
func (m Msg) WithMetadata(key string, value any) Msg {
	out := m.clone()
	if out.Metadata == nil {
		out.Metadata = make(map[string]any, 1)
	}
	out.Metadata[key] = value
	return out
}

// Text concatenates all text blocks.
func (m Msg) Text() string {
	var sb strings.Builder
	for _, b := range m.Content {
		if t, ok := b.(TextBlock); ok {
			sb.WriteString(t.Text)
		}
	}
	return sb.String()
}

// Reasoning concatenates all reasoning blocks.
func (m Msg) Reasoning() string {
	var sb strings.Builder
	for _, b := range m.Content {
		if r, ok := b.(ReasoningBlock); ok {
			sb.WriteString(r.Text)
		}
	}
	return sb.String()
}

// ToolUses returns the tool invocations in content order.
func (m Msg) ToolUses() []ToolUseBlock {
	var uses []ToolUseBlock
	for _, b := range m.Content {
		if u, ok := b.(ToolUseBlock); ok {
			uses = append(uses, u)
		}
	}
	return uses
}

// ToolResults returns the tool results in content order.
func (m Msg) ToolResults() []ToolResultBlock {
	var results []ToolResultBlock
	for _, b := range m.Content {
		if r, ok := b.(ToolResultBlock); ok {
			results = append(results, r)
		}
	}
	return results
}

// IsToolUse reports whether m is an assistant message carrying at least one
// invocation and no text.
func (m Msg) IsToolUse() bool {
	if m.Role != RoleAssistant {
		return false
	}
	found := false
	for _, b := range m.Content {
		switch b.(type) {
		case ToolUseBlock:
			found = true
		case TextBlock, ToolResultBlock:
			return false
		}
	}
	return found
}

func (m Msg) clone() Msg {
	out := m
	if m.Content != nil {
		out.Content = make([]Block, len(m.Content))
		copy(out.Content, m.Content)
	}
	if m.Metadata != nil {
		out.Metadata = maps.Clone(m.Metadata)
	}
	return out
}
