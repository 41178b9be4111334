package agentloop

import (
	"context"
	"sync"
	"time"
)

// EventKind identifies the type of agent event.
type EventKind string

const (
	EventCallStart           EventKind = "call_start"
	EventCallEnd             EventKind = "call_end"
	EventUserInput           EventKind = "user_input"
	EventAssistantTextDelta  EventKind = "assistant_text_delta"
	EventReasoningDelta      EventKind = "reasoning_delta"
	EventToolCallInputDelta  EventKind = "tool_call_input_delta"
	EventToolCallStart       EventKind = "tool_call_start"
	EventToolCallOutputDelta EventKind = "tool_call_output_delta"
	EventToolCallEnd         EventKind = "tool_call_end"
	EventTurnLimit           EventKind = "turn_limit"
	EventInterrupted         EventKind = "interrupted"
	EventLoopDetection       EventKind = "loop_detection"
	EventError               EventKind = "error"
)

// Event is a typed notification for host applications.
type Event struct {
	Kind      EventKind      `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Source    string         `json:"source"`
	Data      map[string]any `json:"data,omitempty"`
}

// EventEmitter delivers events to the host application via a channel.
type EventEmitter struct {
	source string
	ch     chan Event
	closed bool
	mu     sync.Mutex
}

// NewEventEmitter creates an EventEmitter with a buffered channel.
func NewEventEmitter(source string, bufferSize int) *EventEmitter {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &EventEmitter{
		source: source,
		ch:     make(chan Event, bufferSize),
	}
}

// Emit sends an event. Events are dropped when the emitter is closed or
// the buffer is full; the agent loop never blocks on a slow reader.
func (e *EventEmitter) Emit(kind EventKind, data map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	select {
	case e.ch <- Event{Kind: kind, Timestamp: time.Now(), Source: e.source, Data: data}:
	default:
	}
}

// Events returns the read-only event channel.
func (e *EventEmitter) Events() <-chan Event {
	return e.ch
}

// Close closes the event channel. Safe to call multiple times.
func (e *EventEmitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.ch)
	}
}

// EventHook turns extension points into events on an EventEmitter. It
// observes only and never rewrites.
type EventHook struct {
	emitter *EventEmitter
}

// NewEventHook creates a hook emitting to emitter.
func NewEventHook(emitter *EventEmitter) *EventHook {
	return &EventHook{emitter: emitter}
}

func (h *EventHook) Name() string { return "events" }

// ChunkMode asks for deltas only.
func (h *EventHook) ChunkMode() ChunkMode { return ChunkIncremental }

func (h *EventHook) PreCall(ctx context.Context, inputs []Msg) ([]Msg, error) {
	h.emitter.Emit(EventCallStart, map[string]any{"agent": StepFromContext(ctx).Agent})
	for _, m := range inputs {
		if m.Role == RoleUser {
			h.emitter.Emit(EventUserInput, map[string]any{"content": m.Text()})
		}
	}
	return inputs, nil
}

func (h *EventHook) OnReasoningChunk(ctx context.Context, c Chunk) error {
	switch {
	case c.Kind == ChunkText:
		h.emitter.Emit(EventAssistantTextDelta, map[string]any{"delta": c.Text})
	case c.Kind == ChunkReasoning:
		h.emitter.Emit(EventReasoningDelta, map[string]any{"delta": c.Text})
	case c.Kind == ChunkToolInput && c.Done:
		h.emitter.Emit(EventToolCallStart, map[string]any{
			"call_id":   c.ToolUseID,
			"tool_name": c.ToolName,
			"input":     c.Text,
		})
	case c.Kind == ChunkToolInput:
		h.emitter.Emit(EventToolCallInputDelta, map[string]any{
			"call_id": c.ToolUseID,
			"delta":   c.Text,
		})
	}
	return nil
}

func (h *EventHook) OnActingChunk(ctx context.Context, c Chunk) error {
	h.emitter.Emit(EventToolCallOutputDelta, map[string]any{
		"call_id":   c.ToolUseID,
		"tool_name": c.ToolName,
		"delta":     c.Text,
	})
	return nil
}

func (h *EventHook) PostActing(ctx context.Context, use ToolUseBlock, result ToolResultBlock) (ToolResultBlock, error) {
	h.emitter.Emit(EventToolCallEnd, map[string]any{
		"call_id":   result.ID,
		"tool_name": use.Name,
		"status":    string(result.Status),
		"output":    result.Output,
	})
	return result, nil
}

func (h *EventHook) PostCall(ctx context.Context, reply Msg) (Msg, error) {
	if reply.Metadata["max_iters_reached"] == true {
		h.emitter.Emit(EventTurnLimit, map[string]any{"iteration": StepFromContext(ctx).Iteration})
	}
	if reply.Metadata["interrupted"] == true {
		h.emitter.Emit(EventInterrupted, map[string]any{"reason": reply.Metadata["interrupt_reason"]})
	}
	h.emitter.Emit(EventCallEnd, map[string]any{"reply": reply.Text()})
	return reply, nil
}

func (h *EventHook) OnError(ctx context.Context, err error) {
	h.emitter.Emit(EventError, map[string]any{"error": err.Error()})
}
