package agentloop

import (
	"fmt"

	"github.com/martinemde/attractor/unifiedllm"
)

// Formatter turns the conversation into provider messages. It must not
// have side effects.
type Formatter interface {
	Format(systemPrompt string, msgs []Msg) ([]unifiedllm.Message, error)
}

// DefaultFormatter maps the conversation onto unifiedllm messages.
// Consecutive assistant messages from one author become a single provider
// message, so a step's text and invocations travel together.
type DefaultFormatter struct{}

// Format implements Formatter.
func (DefaultFormatter) Format(systemPrompt string, msgs []Msg) ([]unifiedllm.Message, error) {
	var out []unifiedllm.Message
	if systemPrompt != "" {
		out = append(out, unifiedllm.SystemMessage(systemPrompt))
	}

	lastAuthor := ""
	merging := false
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, unifiedllm.SystemMessage(m.Text()))
			merging = false

		case RoleUser:
			out = append(out, unifiedllm.UserMessage(m.Text()))
			merging = false

		case RoleAssistant:
			parts := assistantParts(m)
			if len(parts) == 0 {
				continue
			}
			if merging && lastAuthor == m.Author {
				prev := &out[len(out)-1]
				prev.Content = append(prev.Content, parts...)
				continue
			}
			out = append(out, unifiedllm.Message{Role: unifiedllm.RoleAssistant, Content: parts})
			merging, lastAuthor = true, m.Author

		case RoleTool:
			results := m.ToolResults()
			if len(results) == 0 {
				return nil, fmt.Errorf("message %s: tool message carries no result", m.ID)
			}
			for _, r := range results {
				out = append(out, unifiedllm.ToolResultMessage(r.ID, r.Name, r.Output, r.IsError()))
			}
			merging = false

		default:
			return nil, fmt.Errorf("message %s: unknown role %q", m.ID, m.Role)
		}
	}
	return out, nil
}

func assistantParts(m Msg) []unifiedllm.ContentPart {
	var parts []unifiedllm.ContentPart
	for _, b := range m.Content {
		switch v := b.(type) {
		case ReasoningBlock:
			parts = append(parts, unifiedllm.ThinkingPart(v.Text, v.Signature))
		case TextBlock:
			if v.Text != "" {
				parts = append(parts, unifiedllm.TextPart(v.Text))
			}
		case ToolUseBlock:
			parts = append(parts, unifiedllm.ToolCallPart(v.ID, v.Name, v.Input))
		}
	}
	return parts
}
