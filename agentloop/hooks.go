package agentloop

import (
	"context"
	"fmt"
	"sync"
)

// ChunkMode selects what a chunk hook receives: only the newly arrived
// fragment, or everything accumulated so far.
type ChunkMode string

const (
	ChunkIncremental ChunkMode = "incremental"
	ChunkCumulative  ChunkMode = "cumulative"
)

// ChunkKind identifies which buffer a chunk belongs to.
type ChunkKind string

const (
	ChunkText         ChunkKind = "text"
	ChunkReasoning    ChunkKind = "reasoning"
	ChunkToolInput    ChunkKind = "tool_input"
	ChunkToolProgress ChunkKind = "tool_progress"
)

// Chunk is a streaming notification. For tool chunks ToolUseID and ToolName
// identify the invocation. Done marks the notification sent when a tool
// invocation is finalized; Text then holds its complete input.
type Chunk struct {
	Kind      ChunkKind
	Mode      ChunkMode
	Text      string
	ToolUseID string
	ToolName  string
	Done      bool
}

// Hook is the base interface for pipeline members. A hook takes part in an
// extension point by implementing the matching interface below.
type Hook interface {
	Name() string
}

// PreCallHook rewrites the caller's input before it is committed.
type PreCallHook interface {
	Hook
	PreCall(ctx context.Context, inputs []Msg) ([]Msg, error)
}

// PreReasoningHook rewrites the message list sent to the model. The log is
// not affected.
type PreReasoningHook interface {
	Hook
	PreReasoning(ctx context.Context, msgs []Msg) ([]Msg, error)
}

// ReasoningChunkHook observes model output as it streams.
type ReasoningChunkHook interface {
	Hook
	OnReasoningChunk(ctx context.Context, chunk Chunk) error
}

// PostReasoningHook rewrites the messages a reasoning step produced before
// they are committed.
type PostReasoningHook interface {
	Hook
	PostReasoning(ctx context.Context, msgs []Msg) ([]Msg, error)
}

// PreActingHook rewrites an invocation before dispatch. The committed id is
// kept on the result whatever the hook returns.
type PreActingHook interface {
	Hook
	PreActing(ctx context.Context, use ToolUseBlock) (ToolUseBlock, error)
}

// ActingChunkHook observes progress reported by running tools.
type ActingChunkHook interface {
	Hook
	OnActingChunk(ctx context.Context, chunk Chunk) error
}

// PostActingHook rewrites a result before it is committed.
type PostActingHook interface {
	Hook
	PostActing(ctx context.Context, use ToolUseBlock, result ToolResultBlock) (ToolResultBlock, error)
}

// PostCallHook rewrites the message returned from Call.
type PostCallHook interface {
	Hook
	PostCall(ctx context.Context, reply Msg) (Msg, error)
}

// ErrorHook is told about every error Call returns.
type ErrorHook interface {
	Hook
	OnError(ctx context.Context, err error)
}

// ChunkModer lets a chunk hook choose its ChunkMode. Hooks that do not
// implement it get the agent's configured default.
type ChunkModer interface {
	ChunkMode() ChunkMode
}

// HookError reports a failure returned by a hook.
type HookError struct {
	Hook  string
	Point string
	Err   error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("hook %s failed at %s: %v", e.Hook, e.Point, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// StepInfo describes the loop position a hook is invoked from.
type StepInfo struct {
	Agent     string
	Iteration int
}

type stepKey struct{}

func withStep(ctx context.Context, info StepInfo) context.Context {
	return context.WithValue(ctx, stepKey{}, info)
}

// StepFromContext returns the loop position stored in ctx by the agent.
func StepFromContext(ctx context.Context) StepInfo {
	info, _ := ctx.Value(stepKey{}).(StepInfo)
	return info
}

// pipeline runs hooks in registration order. Transforming points feed each
// hook's output into the next.
type pipeline struct {
	mu          sync.RWMutex
	hooks       []Hook
	defaultMode ChunkMode
}

func (p *pipeline) add(hooks ...Hook) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hooks = append(p.hooks, hooks...)
}

func (p *pipeline) list() []Hook {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Hook, len(p.hooks))
	copy(out, p.hooks)
	return out
}

func (p *pipeline) modeOf(h Hook) ChunkMode {
	if m, ok := h.(ChunkModer); ok {
		if mode := m.ChunkMode(); mode == ChunkIncremental || mode == ChunkCumulative {
			return mode
		}
	}
	if p.defaultMode == "" {
		return ChunkIncremental
	}
	return p.defaultMode
}

func (p *pipeline) preCall(ctx context.Context, msgs []Msg) ([]Msg, error) {
	for _, h := range p.list() {
		if t, ok := h.(PreCallHook); ok {
			out, err := t.PreCall(ctx, msgs)
			if err != nil {
				return nil, &HookError{Hook: h.Name(), Point: "pre_call", Err: err}
			}
			msgs = out
		}
	}
	return msgs, nil
}

func (p *pipeline) preReasoning(ctx context.Context, msgs []Msg) ([]Msg, error) {
	for _, h := range p.list() {
		if t, ok := h.(PreReasoningHook); ok {
			out, err := t.PreReasoning(ctx, msgs)
			if err != nil {
				return nil, &HookError{Hook: h.Name(), Point: "pre_reasoning", Err: err}
			}
			msgs = out
		}
	}
	return msgs, nil
}

// reasoningChunk delivers one delta. cumulative is the running buffer
// including delta; each hook reads whichever its mode asks for.
func (p *pipeline) reasoningChunk(ctx context.Context, c Chunk, delta, cumulative string) error {
	for _, h := range p.list() {
		t, ok := h.(ReasoningChunkHook)
		if !ok {
			continue
		}
		if err := t.OnReasoningChunk(ctx, p.view(h, c, delta, cumulative)); err != nil {
			return &HookError{Hook: h.Name(), Point: "on_reasoning_chunk", Err: err}
		}
	}
	return nil
}

func (p *pipeline) actingChunk(ctx context.Context, c Chunk, delta, cumulative string) error {
	for _, h := range p.list() {
		t, ok := h.(ActingChunkHook)
		if !ok {
			continue
		}
		if err := t.OnActingChunk(ctx, p.view(h, c, delta, cumulative)); err != nil {
			return &HookError{Hook: h.Name(), Point: "on_acting_chunk", Err: err}
		}
	}
	return nil
}

func (p *pipeline) view(h Hook, c Chunk, delta, cumulative string) Chunk {
	c.Mode = p.modeOf(h)
	if c.Done {
		c.Text = cumulative
		return c
	}
	if c.Mode == ChunkCumulative {
		c.Text = cumulative
	} else {
		c.Text = delta
	}
	return c
}

func (p *pipeline) postReasoning(ctx context.Context, msgs []Msg) ([]Msg, error) {
	for _, h := range p.list() {
		if t, ok := h.(PostReasoningHook); ok {
			out, err := t.PostReasoning(ctx, msgs)
			if err != nil {
				return nil, &HookError{Hook: h.Name(), Point: "post_reasoning", Err: err}
			}
			msgs = out
		}
	}
	return msgs, nil
}

func (p *pipeline) preActing(ctx context.Context, use ToolUseBlock) (ToolUseBlock, error) {
	for _, h := range p.list() {
		if t, ok := h.(PreActingHook); ok {
			out, err := t.PreActing(ctx, use)
			if err != nil {
				return use, &HookError{Hook: h.Name(), Point: "pre_acting", Err: err}
			}
			use = out
		}
	}
	return use, nil
}

func (p *pipeline) postActing(ctx context.Context, use ToolUseBlock, result ToolResultBlock) (ToolResultBlock, error) {
	for _, h := range p.list() {
		if t, ok := h.(PostActingHook); ok {
			out, err := t.PostActing(ctx, use, result)
			if err != nil {
				return result, &HookError{Hook: h.Name(), Point: "post_acting", Err: err}
			}
			result = out
		}
	}
	return result, nil
}

func (p *pipeline) postCall(ctx context.Context, reply Msg) (Msg, error) {
	for _, h := range p.list() {
		if t, ok := h.(PostCallHook); ok {
			out, err := t.PostCall(ctx, reply)
			if err != nil {
				return reply, &HookError{Hook: h.Name(), Point: "post_call", Err: err}
			}
			reply = out
		}
	}
	return reply, nil
}

func (p *pipeline) onError(ctx context.Context, err error) {
	for _, h := range p.list() {
		if t, ok := h.(ErrorHook); ok {
			t.OnError(ctx, err)
		}
	}
}

// FuncHook adapts plain functions to every extension point. Nil fields
// pass values through unchanged.
type FuncHook struct {
	HookName  string
	Mode      ChunkMode
	OnPreCall func(ctx context.Context, inputs []Msg) ([]Msg, error)

	OnPreReasoning  func(ctx context.Context, msgs []Msg) ([]Msg, error)
	OnReasoning     func(ctx context.Context, chunk Chunk) error
	OnPostReasoning func(ctx context.Context, msgs []Msg) ([]Msg, error)
	OnPreActing     func(ctx context.Context, use ToolUseBlock) (ToolUseBlock, error)
	OnActing        func(ctx context.Context, chunk Chunk) error
	OnPostActing    func(ctx context.Context, use ToolUseBlock, result ToolResultBlock) (ToolResultBlock, error)
	OnPostCall      func(ctx context.Context, reply Msg) (Msg, error)
	OnErr           func(ctx context.Context, err error)
}

func (f *FuncHook) Name() string {
	if f.HookName == "" {
		return "func"
	}
	return f.HookName
}

func (f *FuncHook) ChunkMode() ChunkMode { return f.Mode }

func (f *FuncHook) PreCall(ctx context.Context, inputs []Msg) ([]Msg, error) {
	if f.OnPreCall == nil {
		return inputs, nil
	}
	return f.OnPreCall(ctx, inputs)
}

func (f *FuncHook) PreReasoning(ctx context.Context, msgs []Msg) ([]Msg, error) {
	if f.OnPreReasoning == nil {
		return msgs, nil
	}
	return f.OnPreReasoning(ctx, msgs)
}

func (f *FuncHook) OnReasoningChunk(ctx context.Context, chunk Chunk) error {
	if f.OnReasoning == nil {
		return nil
	}
	return f.OnReasoning(ctx, chunk)
}

func (f *FuncHook) PostReasoning(ctx context.Context, msgs []Msg) ([]Msg, error) {
	if f.OnPostReasoning == nil {
		return msgs, nil
	}
	return f.OnPostReasoning(ctx, msgs)
}

func (f *FuncHook) PreActing(ctx context.Context, use ToolUseBlock) (ToolUseBlock, error) {
	if f.OnPreActing == nil {
		return use, nil
	}
	return f.OnPreActing(ctx, use)
}

func (f *FuncHook) OnActingChunk(ctx context.Context, chunk Chunk) error {
	if f.OnActing == nil {
		return nil
	}
	return f.OnActing(ctx, chunk)
}

func (f *FuncHook) PostActing(ctx context.Context, use ToolUseBlock, result ToolResultBlock) (ToolResultBlock, error) {
	if f.OnPostActing == nil {
		return result, nil
	}
	return f.OnPostActing(ctx, use, result)
}

func (f *FuncHook) PostCall(ctx context.Context, reply Msg) (Msg, error) {
	if f.OnPostCall == nil {
		return reply, nil
	}
	return f.OnPostCall(ctx, reply)
}

func (f *FuncHook) OnError(ctx context.Context, err error) {
	if f.OnErr != nil {
		f.OnErr(ctx, err)
	}
}
