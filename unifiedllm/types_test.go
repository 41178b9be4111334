package unifiedllm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageConstructors(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		role Role
		text string
	}{
		{"system", SystemMessage("You are helpful."), RoleSystem, "You are helpful."},
		{"user", UserMessage("Hello"), RoleUser, "Hello"},
		{"assistant", AssistantMessage("Hi there"), RoleAssistant, "Hi there"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.role, tt.msg.Role)
			assert.Equal(t, tt.text, tt.msg.TextContent())
		})
	}
}

func TestToolResultMessage(t *testing.T) {
	msg := ToolResultMessage("call_123", "weather", "72F and sunny", false)
	assert.Equal(t, RoleTool, msg.Role)

	res := msg.ToolResult()
	require.NotNil(t, res)
	assert.Equal(t, "call_123", res.ToolCallID)
	assert.Equal(t, "weather", res.Name)
	assert.False(t, res.IsError)
	assert.Equal(t, "72F and sunny", res.ResultText())
}

func TestToolResultJSON(t *testing.T) {
	data, err := codec.Marshal(ToolResultMessage("c1", "read_file", `{"ok":true}`, true))
	require.NoError(t, err)
	assert.JSONEq(t, `{"role":"tool","content":[{"kind":"tool_result","tool_result":{"tool_call_id":"c1","name":"read_file","output":"{\"ok\":true}","is_error":true}}]}`, string(data))
}

func TestMessageAccessors(t *testing.T) {
	msg := Message{
		Role: RoleAssistant,
		Content: []ContentPart{
			ThinkingPart("hmm ", ""),
			TextPart("Hello "),
			{Kind: ContentThinking, Thinking: &ThinkingData{Text: "secret", Redacted: true}},
			TextPart("world"),
			ToolCallPart("call_1", "get_weather", json.RawMessage(`{"city":"SF"}`)),
			ToolCallPart("call_2", "get_weather", json.RawMessage(`{"city":"NYC"}`)),
		},
	}
	assert.Equal(t, "Hello world", msg.TextContent())
	assert.Equal(t, "hmm ", msg.ThinkingContent())

	calls := msg.ToolCalls()
	require.Len(t, calls, 2)
	assert.Equal(t, "call_2", calls[1].ID)
	assert.JSONEq(t, `{"city":"SF"}`, string(calls[0].Arguments))
	assert.Nil(t, msg.ToolResult())
}

func TestRequestSplitSystem(t *testing.T) {
	req := Request{Messages: []Message{
		SystemMessage("one"),
		UserMessage("hi"),
		SystemMessage("two"),
	}}
	system, rest := req.SplitSystem()
	assert.Equal(t, "one\n\ntwo", system)
	require.Len(t, rest, 1)
	assert.Equal(t, RoleUser, rest[0].Role)
}

func TestUsageAdd(t *testing.T) {
	five, ten := 5, 10
	a := Usage{InputTokens: 10, OutputTokens: 20, TotalTokens: 30, ReasoningTokens: &five, CacheReadTokens: &five}
	b := Usage{InputTokens: 5, OutputTokens: 15, TotalTokens: 20, ReasoningTokens: &ten}
	sum := a.Add(b)

	assert.Equal(t, 15, sum.InputTokens)
	assert.Equal(t, 35, sum.OutputTokens)
	assert.Equal(t, 50, sum.TotalTokens)
	require.NotNil(t, sum.ReasoningTokens)
	assert.Equal(t, 15, *sum.ReasoningTokens)
	require.NotNil(t, sum.CacheReadTokens)
	assert.Equal(t, 5, *sum.CacheReadTokens)
	assert.Nil(t, sum.CacheWriteTokens)
}

func TestResponseAccessors(t *testing.T) {
	resp := Response{Message: Message{
		Role: RoleAssistant,
		Content: []ContentPart{
			ThinkingPart("reasoning here", "sig"),
			TextPart("The answer is 42."),
			ToolCallPart("call_1", "calc", json.RawMessage(`{}`)),
		},
	}}
	assert.Equal(t, "The answer is 42.", resp.Text())
	assert.Equal(t, "reasoning here", resp.Reasoning())
	calls := resp.ToolCallsFromResponse()
	require.Len(t, calls, 1)
	assert.Equal(t, "calc", calls[0].Name)
}
