package agentloop

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolRegistry(t *testing.T) {
	reg := newRegistry(weatherTool(nil), funcTool("alpha", nil))
	assert.Equal(t, 2, reg.Count())
	assert.Equal(t, []string{"alpha", "get_weather"}, reg.Names())

	schemas := reg.Schemas()
	require.Len(t, schemas, 2)
	assert.Equal(t, "get_weather", schemas[1].Name)
	assert.Equal(t, "Current weather for a city.", schemas[1].Description)
	assert.Equal(t, "object", schemas[1].Parameters["type"])

	_, ok := reg.Resolve("alpha")
	assert.True(t, ok)
	reg.Unregister("alpha")
	_, ok = reg.Resolve("alpha")
	assert.False(t, ok)
	assert.Equal(t, 1, reg.Count())
}

func TestToolRegistryExecuteFailures(t *testing.T) {
	reg := newRegistry(
		funcTool("nil_run", nil),
		funcTool("panics", func(context.Context, *ToolContext, json.RawMessage) (string, error) {
			panic("index out of range")
		}),
	)
	outcomes := reg.Execute(context.Background(), []ToolUseBlock{
		{ID: "1", Name: "nil_run"},
		{ID: "2", Name: "panics"},
		{ID: "3", Name: "missing"},
	}, nil)
	require.Len(t, outcomes, 3)
	assert.ErrorIs(t, outcomes[0].Err, ErrUnknownTool)
	assert.EqualError(t, outcomes[1].Err, "tool panicked: index out of range")
	assert.ErrorIs(t, outcomes[2].Err, ErrUnknownTool)
}

func TestToolArgumentHelpers(t *testing.T) {
	args, err := ParseToolArguments(json.RawMessage(`{"name":"x","count":3,"deep":true}`))
	require.NoError(t, err)

	s, ok := GetStringArg(args, "name")
	assert.True(t, ok)
	assert.Equal(t, "x", s)
	_, ok = GetStringArg(args, "count")
	assert.False(t, ok)

	n, ok := GetIntArg(args, "count")
	assert.True(t, ok)
	assert.Equal(t, 3, n)
	_, ok = GetIntArg(args, "missing")
	assert.False(t, ok)

	b, ok := GetBoolArg(args, "deep")
	assert.True(t, ok)
	assert.True(t, b)
	_, ok = GetBoolArg(args, "name")
	assert.False(t, ok)

	_, err = ParseToolArguments(json.RawMessage(`{"broken`))
	assert.ErrorContains(t, err, "invalid tool arguments")
}

func TestToolContextReportIgnoresEmpty(t *testing.T) {
	var got []string
	tc := &ToolContext{report: func(s string) { got = append(got, s) }}
	tc.Report("")
	tc.Report("50%")
	var nilCtx *ToolContext
	nilCtx.Report("ignored")
	assert.Equal(t, []string{"50%"}, got)
}
