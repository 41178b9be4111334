package agentloop

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/attractor/unifiedllm"
	"github.com/martinemde/attractor/unifiedllm/llmtest"
)

func historyOf(author string, calls ...string) []Msg {
	var msgs []Msg
	for i, c := range calls {
		msgs = append(msgs, NewMsg(RoleAssistant, author, ToolUseBlock{
			ID:    fmt.Sprintf("c%d", i),
			Name:  c,
			Input: []byte(`{}`),
		}))
	}
	return msgs
}

func TestDetectLoop(t *testing.T) {
	tests := []struct {
		name   string
		calls  []string
		window int
		want   bool
	}{
		{"same call repeated", []string{"a", "a", "a", "a"}, 4, true},
		{"alternating pair", []string{"a", "b", "a", "b"}, 4, true},
		{"cycle of three", []string{"a", "b", "c", "a", "b", "c"}, 6, true},
		{"no pattern", []string{"a", "b", "c", "d"}, 4, false},
		{"too few calls", []string{"a", "a"}, 4, false},
		{"only the window counts", []string{"x", "y", "a", "a", "a"}, 3, true},
		{"window of one", []string{"a"}, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectLoop(historyOf("bot", tt.calls...), "bot", tt.window))
		})
	}
}

func TestDetectLoopIgnoresOtherAuthorsAndInputs(t *testing.T) {
	msgs := historyOf("other", "a", "a", "a")
	assert.False(t, DetectLoop(msgs, "bot", 3))

	msgs = []Msg{
		NewMsg(RoleAssistant, "bot", ToolUseBlock{ID: "1", Name: "read", Input: []byte(`{"p":1}`)}),
		NewMsg(RoleAssistant, "bot", ToolUseBlock{ID: "2", Name: "read", Input: []byte(`{"p":2}`)}),
	}
	assert.False(t, DetectLoop(msgs, "bot", 2))
}

func TestLoopDetectionHookWarnsWithoutCommitting(t *testing.T) {
	emitter := NewEventEmitter("bot", 0)
	model := llmtest.NewScriptedModel(
		turn(llmtest.Call("c0", "get_weather", `{"city":"Rome"}`)),
		turn(llmtest.Call("c1", "get_weather", `{"city":"Rome"}`)),
		turn(llmtest.Text("I keep getting the same answer.")),
	)
	agent := NewAgent("bot", model,
		WithTools(newRegistry(weatherTool(nil))),
		WithHooks(&LoopDetectionHook{Window: 2, Events: emitter}))

	_, err := agent.Call(context.Background(), UserMsg("weather in Rome?"))
	require.NoError(t, err)

	reqs := model.Requests()
	require.Len(t, reqs, 3)
	for i, req := range reqs {
		last := req.Messages[len(req.Messages)-1]
		if i < 2 {
			assert.NotEqual(t, LoopWarning, last.TextContent())
			continue
		}
		assert.Equal(t, unifiedllm.RoleUser, last.Role)
		assert.Equal(t, LoopWarning, last.TextContent())
	}
	for _, m := range agent.Log().Snapshot() {
		assert.NotEqual(t, "loop_detection", m.Author)
	}
	assert.Contains(t, kinds(collect(emitter)), EventLoopDetection)
}
