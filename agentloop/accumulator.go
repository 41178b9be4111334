package agentloop

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/martinemde/attractor/unifiedllm"
)

// ErrModelStream is returned for a StreamError event that carries no error.
var ErrModelStream = errors.New("model stream failed")

type pendingToolUse struct {
	id       string
	name     string
	args     strings.Builder
	input    []byte
	complete bool
	block    ToolUseBlock
}

// StepResult is what one reasoning step produced, ready to commit. Text
// commits first, then ToolUses in first-appearance order.
type StepResult struct {
	Text         *Msg
	ToolUses     []Msg
	Usage        *unifiedllm.Usage
	FinishReason *unifiedllm.FinishReason
}

// Messages returns the step's messages in commit order.
func (r StepResult) Messages() []Msg {
	var out []Msg
	if r.Text != nil {
		out = append(out, *r.Text)
	}
	return append(out, r.ToolUses...)
}

// Accumulator folds the delta stream of one reasoning step into messages.
// It keeps a single running buffer per text, reasoning and invocation, so
// chunk hooks in either mode read without recomputation.
type Accumulator struct {
	author    string
	hooks     *pipeline
	text      strings.Builder
	reasoning strings.Builder
	calls     map[string]*pendingToolUse
	order     []*pendingToolUse
	finalized int
	last      *pendingToolUse
	usage     *unifiedllm.Usage
	finish    *unifiedllm.FinishReason
}

// NewAccumulator creates an accumulator whose messages are authored by
// author. It sends no chunk notifications.
func NewAccumulator(author string) *Accumulator {
	return newAccumulator(author, nil)
}

func newAccumulator(author string, hooks *pipeline) *Accumulator {
	return &Accumulator{
		author: author,
		hooks:  hooks,
		calls:  make(map[string]*pendingToolUse),
	}
}

// Add folds one event. A StreamError event is returned as an error and
// leaves the accumulator unusable for the step.
func (a *Accumulator) Add(ctx context.Context, ev unifiedllm.StreamEvent) error {
	switch ev.Type {
	case unifiedllm.TextDelta:
		if ev.Delta == "" {
			return nil
		}
		a.text.WriteString(ev.Delta)
		return a.notify(ctx, Chunk{Kind: ChunkText}, ev.Delta, a.text.String())

	case unifiedllm.ReasoningDelta:
		if ev.ReasoningDelta == "" {
			return nil
		}
		a.reasoning.WriteString(ev.ReasoningDelta)
		return a.notify(ctx, Chunk{Kind: ChunkReasoning}, ev.ReasoningDelta, a.reasoning.String())

	case unifiedllm.ToolCallStart:
		a.lookup(ev.ToolCall)

	case unifiedllm.ToolCallDelta:
		p := a.lookup(ev.ToolCall)
		if ev.Delta == "" || p.complete {
			return nil
		}
		p.args.WriteString(ev.Delta)
		return a.notify(ctx, Chunk{Kind: ChunkToolInput, ToolUseID: p.id, ToolName: p.name}, ev.Delta, p.args.String())

	case unifiedllm.ToolCallEnd:
		p := a.lookup(ev.ToolCall)
		if ev.ToolCall != nil && len(ev.ToolCall.Arguments) > 0 {
			p.input = append([]byte(nil), ev.ToolCall.Arguments...)
		}
		p.complete = true
		return a.flush(ctx)

	case unifiedllm.StreamFinish:
		if ev.Usage != nil {
			u := *ev.Usage
			a.usage = &u
		}
		if ev.FinishReason != nil {
			f := *ev.FinishReason
			a.finish = &f
		}

	case unifiedllm.StreamError:
		if ev.Error != nil {
			return ev.Error
		}
		return ErrModelStream
	}
	return nil
}

// lookup returns the pending invocation an event refers to. Events without
// an id belong to the most recent open invocation.
func (a *Accumulator) lookup(tc *unifiedllm.ToolCall) *pendingToolUse {
	var id, name string
	if tc != nil {
		id, name = tc.ID, tc.Name
	}
	if id == "" {
		if a.last != nil && !a.last.complete {
			if a.last.name == "" {
				a.last.name = name
			}
			return a.last
		}
		id = "call_" + uuid.NewString()[:8]
	}
	p, ok := a.calls[id]
	if !ok {
		p = &pendingToolUse{id: id}
		a.calls[id] = p
		a.order = append(a.order, p)
	}
	if p.name == "" {
		p.name = name
	}
	a.last = p
	return p
}

// flush finalizes the complete prefix of invocations in first-appearance
// order, notifying chunk hooks as each one is finalized.
func (a *Accumulator) flush(ctx context.Context) error {
	for a.finalized < len(a.order) && a.order[a.finalized].complete {
		p := a.order[a.finalized]
		a.finalized++
		p.block = finalizeToolUse(p)
		c := Chunk{Kind: ChunkToolInput, ToolUseID: p.id, ToolName: p.name, Done: true}
		if err := a.notify(ctx, c, "", string(p.block.Input)); err != nil {
			return err
		}
	}
	return nil
}

func (a *Accumulator) notify(ctx context.Context, c Chunk, delta, cumulative string) error {
	if a.hooks == nil {
		return nil
	}
	return a.hooks.reasoningChunk(ctx, c, delta, cumulative)
}

// finalizeToolUse decodes the input best-effort. Input that is not valid
// JSON becomes {} with the text kept in RawInput.
func finalizeToolUse(p *pendingToolUse) ToolUseBlock {
	raw := p.input
	if raw == nil {
		raw = []byte(strings.TrimSpace(p.args.String()))
	}
	block := ToolUseBlock{ID: p.id, Name: p.name}
	switch {
	case len(raw) == 0:
		block.Input = []byte("{}")
	case jsoniter.Valid(raw):
		block.Input = raw
	default:
		block.Input = []byte("{}")
		block.RawInput = string(raw)
	}
	return block
}

// Result finalizes any invocation still open and builds the step's
// messages. Zero text and zero invocations yield no messages.
func (a *Accumulator) Result(ctx context.Context) (StepResult, error) {
	for _, p := range a.order {
		p.complete = true
	}
	if err := a.flush(ctx); err != nil {
		return StepResult{}, err
	}

	res := StepResult{Usage: a.usage, FinishReason: a.finish}
	reasoning := a.reasoning.String()

	if text := a.text.String(); text != "" {
		var blocks []Block
		if reasoning != "" {
			blocks = append(blocks, ReasoningBlock{Text: reasoning})
			reasoning = ""
		}
		blocks = append(blocks, TextBlock{Text: text})
		m := NewMsg(RoleAssistant, a.author, blocks...)
		res.Text = &m
	}
	for _, p := range a.order {
		var blocks []Block
		if reasoning != "" {
			blocks = append(blocks, ReasoningBlock{Text: reasoning})
			reasoning = ""
		}
		blocks = append(blocks, p.block)
		res.ToolUses = append(res.ToolUses, NewMsg(RoleAssistant, a.author, blocks...))
	}

	switch {
	case res.Text != nil:
		*res.Text = a.annotate(*res.Text)
	case len(res.ToolUses) > 0:
		res.ToolUses[0] = a.annotate(res.ToolUses[0])
	}
	return res, nil
}

func (a *Accumulator) annotate(m Msg) Msg {
	if a.usage != nil {
		m = m.WithMetadata("usage", *a.usage)
	}
	if a.finish != nil {
		m = m.WithMetadata("finish_reason", a.finish.Reason)
	}
	return m
}
