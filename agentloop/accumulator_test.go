package agentloop

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/attractor/unifiedllm"
	"github.com/martinemde/attractor/unifiedllm/llmtest"
)

func fold(t *testing.T, acc *Accumulator, events []unifiedllm.StreamEvent) StepResult {
	t.Helper()
	ctx := context.Background()
	for _, ev := range events {
		require.NoError(t, acc.Add(ctx, ev))
	}
	res, err := acc.Result(ctx)
	require.NoError(t, err)
	return res
}

func recorder(name string, mode ChunkMode, into *[]Chunk) *FuncHook {
	return &FuncHook{
		HookName: name,
		Mode:     mode,
		OnReasoning: func(_ context.Context, c Chunk) error {
			*into = append(*into, c)
			return nil
		},
	}
}

func TestAccumulatorMergesText(t *testing.T) {
	res := fold(t, NewAccumulator("bot"), llmtest.Events(
		llmtest.Text("The weather in "),
		llmtest.Text("Paris is sunny"),
		llmtest.Finish(3, 4),
	))

	require.NotNil(t, res.Text)
	assert.Equal(t, "The weather in Paris is sunny", res.Text.Text())
	assert.Equal(t, RoleAssistant, res.Text.Role)
	assert.Equal(t, "bot", res.Text.Author)
	assert.Empty(t, res.ToolUses)
	require.Len(t, res.Messages(), 1)
	assert.Equal(t, unifiedllm.Usage{InputTokens: 3, OutputTokens: 4, TotalTokens: 7}, res.Text.Metadata["usage"])
	assert.Equal(t, "stop", res.Text.Metadata["finish_reason"])
}

func TestAccumulatorToolInput(t *testing.T) {
	tests := []struct {
		name      string
		events    []unifiedllm.StreamEvent
		wantInput string
		wantRaw   string
	}{
		{
			name: "fragments concatenated",
			events: llmtest.Events(
				llmtest.CallStart("a", "search"),
				llmtest.CallDelta("a", `{"q":`),
				llmtest.CallDelta("a", `"go"}`),
				llmtest.CallEnd("a"),
			),
			wantInput: `{"q":"go"}`,
		},
		{
			name: "decode-complete end supersedes fragments",
			events: llmtest.Events(
				llmtest.CallStart("a", "search"),
				llmtest.CallDelta("a", `{"partial`),
				llmtest.Call("a", "search", `{"full":true}`)[1],
			),
			wantInput: `{"full":true}`,
		},
		{
			name:      "empty input",
			events:    llmtest.Events(llmtest.CallStart("a", "search"), llmtest.CallEnd("a")),
			wantInput: `{}`,
		},
		{
			name: "never completed but valid",
			events: llmtest.Events(
				llmtest.CallStart("a", "search"),
				llmtest.CallDelta("a", `{"q":1}`),
			),
			wantInput: `{"q":1}`,
		},
		{
			name: "never completed and truncated",
			events: llmtest.Events(
				llmtest.CallStart("a", "search"),
				llmtest.CallDelta("a", `{"q":`),
			),
			wantInput: `{}`,
			wantRaw:   `{"q":`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := fold(t, NewAccumulator("bot"), tt.events)
			assert.Nil(t, res.Text)
			require.Len(t, res.ToolUses, 1)
			uses := res.ToolUses[0].ToolUses()
			require.Len(t, uses, 1)
			assert.Equal(t, "a", uses[0].ID)
			assert.Equal(t, "search", uses[0].Name)
			assert.JSONEq(t, tt.wantInput, string(uses[0].Input))
			assert.Equal(t, tt.wantRaw, uses[0].RawInput)
		})
	}
}

func TestAccumulatorFirstAppearanceOrder(t *testing.T) {
	var chunks []Chunk
	p := &pipeline{}
	p.add(recorder("rec", ChunkIncremental, &chunks))
	acc := newAccumulator("bot", p)

	ctx := context.Background()
	events := llmtest.Events(
		llmtest.CallStart("a", "first"),
		llmtest.CallStart("b", "second"),
		llmtest.CallDelta("b", `{"n":2}`),
		llmtest.CallEnd("b"),
	)
	for _, ev := range events {
		require.NoError(t, acc.Add(ctx, ev))
	}
	for _, c := range chunks {
		assert.False(t, c.Done, "b must wait for a")
	}

	require.NoError(t, acc.Add(ctx, llmtest.CallDelta("a", `{"n":1}`)))
	require.NoError(t, acc.Add(ctx, llmtest.CallEnd("a")))

	var done []string
	for _, c := range chunks {
		if c.Done {
			done = append(done, c.ToolUseID)
		}
	}
	assert.Equal(t, []string{"a", "b"}, done)

	res, err := acc.Result(ctx)
	require.NoError(t, err)
	require.Len(t, res.ToolUses, 2)
	assert.Equal(t, "a", res.ToolUses[0].ToolUses()[0].ID)
	assert.Equal(t, "b", res.ToolUses[1].ToolUses()[0].ID)
}

func TestAccumulatorEagerFinalization(t *testing.T) {
	var chunks []Chunk
	p := &pipeline{}
	p.add(recorder("rec", ChunkIncremental, &chunks))
	acc := newAccumulator("bot", p)
	ctx := context.Background()

	for _, ev := range llmtest.Call("a", "x", `{"k":"v"}`) {
		require.NoError(t, acc.Add(ctx, ev))
	}
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].Done)
	assert.Equal(t, ChunkToolInput, chunks[0].Kind)
	assert.Equal(t, `{"k":"v"}`, chunks[0].Text)
	assert.Equal(t, "x", chunks[0].ToolName)

	require.NoError(t, acc.Add(ctx, llmtest.Text("after")))
	res, err := acc.Result(ctx)
	require.NoError(t, err)
	msgs := res.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "after", msgs[0].Text())
	assert.True(t, msgs[1].IsToolUse())
}

func TestAccumulatorGeneratesMissingIDs(t *testing.T) {
	res := fold(t, NewAccumulator("bot"), []unifiedllm.StreamEvent{
		{Type: unifiedllm.ToolCallStart, ToolCall: &unifiedllm.ToolCall{Name: "x"}},
		{Type: unifiedllm.ToolCallDelta, Delta: `{"a":1}`, ToolCall: &unifiedllm.ToolCall{}},
		{Type: unifiedllm.ToolCallEnd},
	})
	require.Len(t, res.ToolUses, 1)
	use := res.ToolUses[0].ToolUses()[0]
	assert.True(t, strings.HasPrefix(use.ID, "call_"))
	assert.Len(t, use.ID, len("call_")+8)
	assert.JSONEq(t, `{"a":1}`, string(use.Input))
}

func TestAccumulatorEmptyStep(t *testing.T) {
	res := fold(t, NewAccumulator("bot"), llmtest.Events(llmtest.Finish(1, 0)))
	assert.Empty(t, res.Messages())
}

func TestAccumulatorReasoningPlacement(t *testing.T) {
	withText := fold(t, NewAccumulator("bot"), llmtest.Events(
		llmtest.Reasoning("hmm"),
		llmtest.Text("answer"),
		llmtest.Call("a", "x", `{}`),
	))
	assert.Equal(t, "hmm", withText.Text.Reasoning())
	assert.Empty(t, withText.ToolUses[0].Reasoning())

	toolsOnly := fold(t, NewAccumulator("bot"), llmtest.Events(
		llmtest.Reasoning("hmm"),
		llmtest.Call("a", "x", `{}`),
		llmtest.Call("b", "x", `{}`),
	))
	require.Len(t, toolsOnly.ToolUses, 2)
	assert.Equal(t, "hmm", toolsOnly.ToolUses[0].Reasoning())
	assert.Empty(t, toolsOnly.ToolUses[1].Reasoning())
	assert.True(t, toolsOnly.ToolUses[0].IsToolUse())
}

func TestAccumulatorStreamError(t *testing.T) {
	acc := NewAccumulator("bot")
	ctx := context.Background()
	require.NoError(t, acc.Add(ctx, llmtest.Text("partial")))

	boom := errors.New("boom")
	assert.ErrorIs(t, acc.Add(ctx, llmtest.Fail(boom)), boom)
	assert.ErrorIs(t, acc.Add(ctx, unifiedllm.StreamEvent{Type: unifiedllm.StreamError}), ErrModelStream)
}

func TestAccumulatorChunkModes(t *testing.T) {
	var inc, cum, def []Chunk
	p := &pipeline{defaultMode: ChunkCumulative}
	p.add(
		recorder("inc", ChunkIncremental, &inc),
		recorder("cum", ChunkCumulative, &cum),
		recorder("default", "", &def),
	)
	acc := newAccumulator("bot", p)
	fold(t, acc, llmtest.Events(
		llmtest.Text("a"),
		llmtest.Reasoning("r1"),
		llmtest.Text("b"),
		llmtest.Reasoning("r2"),
		llmtest.Text("c"),
	))

	texts := func(cs []Chunk, kind ChunkKind) []string {
		var out []string
		for _, c := range cs {
			if c.Kind == kind {
				out = append(out, c.Text)
			}
		}
		return out
	}
	assert.Equal(t, []string{"a", "b", "c"}, texts(inc, ChunkText))
	assert.Equal(t, []string{"a", "ab", "abc"}, texts(cum, ChunkText))
	assert.Equal(t, []string{"a", "ab", "abc"}, texts(def, ChunkText))
	assert.Equal(t, []string{"r1", "r2"}, texts(inc, ChunkReasoning))
	assert.Equal(t, []string{"r1", "r1r2"}, texts(cum, ChunkReasoning))
	for _, c := range cum {
		assert.Equal(t, ChunkCumulative, c.Mode)
	}

	// Emission order is preserved across kinds.
	var kinds []ChunkKind
	for _, c := range inc {
		kinds = append(kinds, c.Kind)
	}
	assert.Equal(t, []ChunkKind{ChunkText, ChunkReasoning, ChunkText, ChunkReasoning, ChunkText}, kinds)
}

func TestAccumulatorChunkHookError(t *testing.T) {
	p := &pipeline{}
	p.add(&FuncHook{HookName: "bad", OnReasoning: func(context.Context, Chunk) error {
		return errors.New("nope")
	}})
	err := newAccumulator("bot", p).Add(context.Background(), llmtest.Text("x"))
	var hookErr *HookError
	require.ErrorAs(t, err, &hookErr)
	assert.Equal(t, "bad", hookErr.Hook)
	assert.Equal(t, "on_reasoning_chunk", hookErr.Point)
}
