package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/martinemde/attractor/unifiedllm/llmtest"
)

func weatherTool(calls *[]string) Tool {
	return Tool{
		Definition: ToolDefinition{
			Name:        "get_weather",
			Description: "Current weather for a city.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"city": map[string]any{"type": "string"}},
			},
		},
		Run: func(ctx context.Context, tc *ToolContext, input json.RawMessage) (string, error) {
			args, err := ParseToolArguments(input)
			if err != nil {
				return "", err
			}
			city, _ := GetStringArg(args, "city")
			if calls != nil {
				*calls = append(*calls, city)
			}
			return fmt.Sprintf("sunny in %s", city), nil
		},
	}
}

func funcTool(name string, run ToolFunc) Tool {
	return Tool{Definition: ToolDefinition{Name: name, Description: name}, Run: run}
}

func newRegistry(tools ...Tool) *ToolRegistry {
	reg := NewToolRegistry()
	for _, t := range tools {
		reg.Register(t)
	}
	return reg
}

func turn(parts ...any) llmtest.Turn {
	return llmtest.Turn{Events: llmtest.Events(parts...)}
}

// requirePaired checks that every invocation has exactly one later result
// with the same id.
func requirePaired(t *testing.T, log []Msg) {
	t.Helper()
	useAt := make(map[string]int)
	seen := make(map[string]bool)
	for i, m := range log {
		for _, u := range m.ToolUses() {
			_, dup := useAt[u.ID]
			require.False(t, dup, "invocation id %s committed twice", u.ID)
			useAt[u.ID] = i
		}
		for _, r := range m.ToolResults() {
			require.False(t, seen[r.ID], "duplicate result for %s", r.ID)
			seen[r.ID] = true
			at, ok := useAt[r.ID]
			require.True(t, ok, "result %s has no invocation", r.ID)
			require.Less(t, at, i)
		}
	}
	for id := range useAt {
		require.True(t, seen[id], "invocation %s has no result", id)
	}
}

func resultsOf(log []Msg) []ToolResultBlock {
	var out []ToolResultBlock
	for _, m := range log {
		out = append(out, m.ToolResults()...)
	}
	return out
}
