package agentloop

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/attractor/unifiedllm/llmtest"
)

func TestTruncateOutput(t *testing.T) {
	tests := []struct {
		name     string
		output   string
		max      int
		mode     TruncationMode
		want     string
		contains []string
	}{
		{name: "under limit", output: "short", max: 10, mode: TruncateHeadTail, want: "short"},
		{name: "no limit", output: "anything", max: 0, mode: TruncateTail, want: "anything"},
		{
			name:     "tail",
			output:   "0123456789",
			max:      4,
			mode:     TruncateTail,
			contains: []string{"first 6 characters were removed", "6789"},
		},
		{
			name:     "head and tail",
			output:   "abcdefghij",
			max:      4,
			mode:     TruncateHeadTail,
			contains: []string{"ab\n\n", "6 characters were removed from the middle", "\n\nij"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateOutput(tt.output, tt.max, tt.mode)
			if tt.want != "" {
				assert.Equal(t, tt.want, got)
			}
			for _, s := range tt.contains {
				assert.Contains(t, got, s)
			}
		})
	}
}

func TestTruncateLines(t *testing.T) {
	lines := make([]string, 10)
	for i := range lines {
		lines[i] = string(rune('a' + i))
	}
	out := TruncateLines(strings.Join(lines, "\n"), 4)
	assert.Equal(t, "a\nb\n[... 6 lines omitted ...]\ni\nj", out)
	assert.Equal(t, "a\nb", TruncateLines("a\nb", 4))
}

func TestTruncateToolOutputLimits(t *testing.T) {
	big := strings.Repeat("x", defaultCharLimit+100)
	assert.Contains(t, TruncateToolOutput(big, "unknown_tool", nil, nil), "100 characters were removed")
	assert.Equal(t, "xxxxx", TruncateToolOutput("xxxxx", "unknown_tool", nil, nil))

	out := TruncateToolOutput("0123456789", "get_weather", map[string]int{"get_weather": 5}, nil)
	assert.Contains(t, out, "5 characters were removed")

	listing := strings.Repeat("entry\n", 600)
	assert.Contains(t, TruncateToolOutput(listing, "list_directory", nil, nil), "lines omitted")
	assert.NotContains(t, TruncateToolOutput(listing, "list_directory", nil, map[string]int{"list_directory": 1000}), "lines omitted")
}

func TestTruncationHookBoundsCommittedOutput(t *testing.T) {
	reg := newRegistry(funcTool("dump", func(context.Context, *ToolContext, json.RawMessage) (string, error) {
		return strings.Repeat("y", 200), nil
	}))
	var seen int
	model := llmtest.NewScriptedModel(turn(llmtest.Call("1", "dump", `{}`)), turn(llmtest.Text("ok")))
	agent := NewAgent("bot", model, WithTools(reg), WithHooks(
		&FuncHook{OnPostActing: func(_ context.Context, _ ToolUseBlock, r ToolResultBlock) (ToolResultBlock, error) {
			seen = len(r.Output)
			return r, nil
		}},
		&TruncationHook{CharLimits: map[string]int{"dump": 50}},
	))

	_, err := agent.Call(context.Background(), UserMsg("go"))
	require.NoError(t, err)
	assert.Equal(t, 200, seen)
	results := resultsOf(agent.Log().Snapshot())
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Output, "150 characters were removed")
	assert.Less(t, len(results[0].Output), 200)
}
