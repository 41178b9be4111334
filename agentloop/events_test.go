package agentloop

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/attractor/unifiedllm/llmtest"
)

func collect(e *EventEmitter) []Event {
	e.Close()
	var out []Event
	for ev := range e.Events() {
		out = append(out, ev)
	}
	return out
}

func kinds(events []Event) []EventKind {
	out := make([]EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func TestEventHookToolRoundTrip(t *testing.T) {
	emitter := NewEventEmitter("bot", 0)
	model := llmtest.NewScriptedModel(
		turn(
			llmtest.CallStart("1", "get_weather"),
			llmtest.CallDelta("1", `{"city":`),
			llmtest.CallDelta("1", `"Paris"}`),
			llmtest.CallEnd("1"),
		),
		turn(llmtest.Text("It's "), llmtest.Text("sunny")),
	)
	agent := NewAgent("bot", model, WithTools(newRegistry(weatherTool(nil))), WithHooks(NewEventHook(emitter)))

	_, err := agent.Call(context.Background(), UserMsg("weather?"))
	require.NoError(t, err)

	events := collect(emitter)
	assert.Equal(t, []EventKind{
		EventCallStart,
		EventUserInput,
		EventToolCallInputDelta,
		EventToolCallInputDelta,
		EventToolCallStart,
		EventToolCallEnd,
		EventAssistantTextDelta,
		EventAssistantTextDelta,
		EventCallEnd,
	}, kinds(events))

	for _, ev := range events {
		assert.Equal(t, "bot", ev.Source)
		assert.False(t, ev.Timestamp.IsZero())
	}
	assert.Equal(t, "weather?", events[1].Data["content"])
	assert.Equal(t, `"Paris"}`, events[3].Data["delta"])
	assert.Equal(t, `{"city":"Paris"}`, events[4].Data["input"])
	assert.Equal(t, "success", events[5].Data["status"])
	assert.Equal(t, "It's sunny", events[8].Data["reply"])
}

func TestEventHookLimitAndInterrupt(t *testing.T) {
	t.Run("turn limit", func(t *testing.T) {
		emitter := NewEventEmitter("bot", 0)
		model := llmtest.NewScriptedModel(turn(llmtest.Call("1", "get_weather", `{}`)))
		agent := NewAgent("bot", model,
			WithTools(newRegistry(weatherTool(nil))),
			WithConfig(Config{MaxIters: 1}),
			WithHooks(NewEventHook(emitter)))

		_, err := agent.Call(context.Background(), UserMsg("go"))
		require.NoError(t, err)
		events := collect(emitter)
		require.Contains(t, kinds(events), EventTurnLimit)
		for _, ev := range events {
			if ev.Kind == EventTurnLimit {
				assert.Equal(t, 1, ev.Data["iteration"])
			}
		}
	})

	t.Run("interrupted", func(t *testing.T) {
		emitter := NewEventEmitter("bot", 0)
		var agent *Agent
		model := llmtest.NewScriptedModel(turn(llmtest.Text("hel"), llmtest.Text("lo")))
		agent = NewAgent("bot", model, WithHooks(NewEventHook(emitter), &FuncHook{
			OnReasoning: func(context.Context, Chunk) error {
				agent.Interrupt("ctrl-c")
				return nil
			},
		}))

		_, err := agent.Call(context.Background(), UserMsg("go"))
		require.NoError(t, err)
		events := collect(emitter)
		require.Contains(t, kinds(events), EventInterrupted)
		for _, ev := range events {
			if ev.Kind == EventInterrupted {
				assert.Equal(t, "ctrl-c", ev.Data["reason"])
			}
		}
	})

	t.Run("error", func(t *testing.T) {
		emitter := NewEventEmitter("bot", 0)
		model := llmtest.NewScriptedModel(llmtest.Turn{Err: errors.New("unavailable")})
		agent := NewAgent("bot", model, WithHooks(NewEventHook(emitter)))

		_, err := agent.Call(context.Background(), UserMsg("go"))
		require.Error(t, err)
		events := collect(emitter)
		last := events[len(events)-1]
		assert.Equal(t, EventError, last.Kind)
		assert.Contains(t, last.Data["error"], "unavailable")
	})
}

func TestEventEmitterDropsWhenFullOrClosed(t *testing.T) {
	e := NewEventEmitter("s", 1)
	e.Emit(EventCallStart, nil)
	e.Emit(EventCallEnd, nil)
	e.Close()
	e.Close()
	e.Emit(EventError, nil)

	var got []EventKind
	for ev := range e.Events() {
		got = append(got, ev.Kind)
	}
	assert.Equal(t, []EventKind{EventCallStart}, got)
}
