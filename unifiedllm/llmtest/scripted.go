// Package llmtest provides a deterministic streaming model for tests.
package llmtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/martinemde/attractor/unifiedllm"
)

// Turn configures one model response in a scripted sequence. Err fails
// stream establishment; otherwise Events are delivered in order.
type Turn struct {
	Events []unifiedllm.StreamEvent
	Err    error
}

// ScriptedModel replays scripted turns, one per Stream call.
type ScriptedModel struct {
	mu       sync.Mutex
	index    int
	turns    []Turn
	requests []unifiedllm.Request
}

// NewScriptedModel creates a model that replays turns in order.
func NewScriptedModel(turns ...Turn) *ScriptedModel {
	cloned := make([]Turn, len(turns))
	copy(cloned, turns)
	return &ScriptedModel{turns: cloned}
}

// Name satisfies unifiedllm.ProviderAdapter.
func (m *ScriptedModel) Name() string { return "scripted" }

// Complete is not scripted; the engine only streams.
func (m *ScriptedModel) Complete(context.Context, unifiedllm.Request) (*unifiedllm.Response, error) {
	return nil, fmt.Errorf("scripted model: Complete is not supported")
}

// Stream records req and replays the next turn.
func (m *ScriptedModel) Stream(ctx context.Context, req unifiedllm.Request) (<-chan unifiedllm.StreamEvent, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	if m.index >= len(m.turns) {
		m.mu.Unlock()
		return nil, fmt.Errorf("script exhausted at step %d", m.index+1)
	}
	turn := m.turns[m.index]
	m.index++
	m.mu.Unlock()

	if turn.Err != nil {
		return nil, turn.Err
	}
	ch := make(chan unifiedllm.StreamEvent)
	go func() {
		defer close(ch)
		for _, ev := range turn.Events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Calls returns how many times Stream was invoked.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of every request received.
func (m *ScriptedModel) Requests() []unifiedllm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]unifiedllm.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Text returns a text delta event.
func Text(delta string) unifiedllm.StreamEvent {
	return unifiedllm.StreamEvent{Type: unifiedllm.TextDelta, Delta: delta}
}

// Reasoning returns a reasoning delta event.
func Reasoning(delta string) unifiedllm.StreamEvent {
	return unifiedllm.StreamEvent{Type: unifiedllm.ReasoningDelta, ReasoningDelta: delta}
}

// CallStart announces a tool call.
func CallStart(id, name string) unifiedllm.StreamEvent {
	return unifiedllm.StreamEvent{Type: unifiedllm.ToolCallStart, ToolCall: &unifiedllm.ToolCall{ID: id, Name: name}}
}

// CallDelta carries an argument fragment for a tool call.
func CallDelta(id, fragment string) unifiedllm.StreamEvent {
	return unifiedllm.StreamEvent{Type: unifiedllm.ToolCallDelta, Delta: fragment, ToolCall: &unifiedllm.ToolCall{ID: id}}
}

// CallEnd closes a tool call whose arguments came as fragments.
func CallEnd(id string) unifiedllm.StreamEvent {
	return unifiedllm.StreamEvent{Type: unifiedllm.ToolCallEnd, ToolCall: &unifiedllm.ToolCall{ID: id}}
}

// Call returns the start and decode-complete end events of a tool call.
func Call(id, name, args string) []unifiedllm.StreamEvent {
	return []unifiedllm.StreamEvent{
		CallStart(id, name),
		{Type: unifiedllm.ToolCallEnd, ToolCall: &unifiedllm.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}},
	}
}

// Finish returns a finish event with the given usage.
func Finish(input, output int) unifiedllm.StreamEvent {
	return unifiedllm.StreamEvent{
		Type:         unifiedllm.StreamFinish,
		FinishReason: &unifiedllm.FinishReason{Reason: "stop"},
		Usage:        &unifiedllm.Usage{InputTokens: input, OutputTokens: output, TotalTokens: input + output},
	}
}

// Fail returns a mid-stream error event.
func Fail(err error) unifiedllm.StreamEvent {
	return unifiedllm.StreamEvent{Type: unifiedllm.StreamError, Error: err}
}

// Events flattens events and event groups into one slice.
func Events(parts ...any) []unifiedllm.StreamEvent {
	var out []unifiedllm.StreamEvent
	for _, p := range parts {
		switch v := p.(type) {
		case unifiedllm.StreamEvent:
			out = append(out, v)
		case []unifiedllm.StreamEvent:
			out = append(out, v...)
		default:
			panic(fmt.Sprintf("llmtest.Events: unsupported %T", p))
		}
	}
	return out
}
