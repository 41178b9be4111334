package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/martinemde/attractor/agentloop"
	"github.com/martinemde/attractor/config"
	"github.com/martinemde/attractor/unifiedllm"
	"github.com/martinemde/attractor/unifiedllm/llmtest"
)

func TestResolveProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Model.Name = "gpt-5.2"
	p, err := resolveProvider(cfg)
	require.NoError(t, err)
	assert.Equal(t, "openai", p)

	cfg.Model.Provider = "ollama"
	p, err = resolveProvider(cfg)
	require.NoError(t, err)
	assert.Equal(t, "ollama", p)

	cfg.Model.Provider = ""
	cfg.Model.Name = "mystery-model"
	_, err = resolveProvider(cfg)
	assert.ErrorContains(t, err, "set model.provider")
}

func TestConfiguredAdapter(t *testing.T) {
	ctx := context.Background()
	a, err := configuredAdapter(ctx, "openai", config.ModelSettings{APIKey: "sk-test", BaseURL: "http://localhost:8080/v1"})
	require.NoError(t, err)
	assert.Equal(t, "openai", a.Name())

	a, err = configuredAdapter(ctx, "ollama", config.ModelSettings{BaseURL: "http://localhost:11434"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", a.Name())

	_, err = configuredAdapter(ctx, "acme", config.ModelSettings{})
	assert.Error(t, err)
}

func TestAgentRunWithCLIStack(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hi there"), 0o644))

	cfg := config.Default()
	cfg.Model.Name = "gpt-5.2"
	model := llmtest.NewScriptedModel(
		llmtest.Turn{Events: llmtest.Events(
			llmtest.Text("Reading."),
			llmtest.Call("1", "read_file", `{"file_path":"hello.txt"}`),
		)},
		llmtest.Turn{Events: []unifiedllm.StreamEvent{llmtest.Text("It says hi."), llmtest.Finish(5, 3)}},
	)
	ws := agentloop.NewLocalWorkspace(dir)
	reg := agentloop.NewToolRegistry()
	agentloop.RegisterCoreTools(reg, ws)
	emitter := agentloop.NewEventEmitter(cfg.Agent.Name, 0)
	agent := newAgent(cfg, "openai", model, reg, ws, emitter, zap.NewNop())

	var out bytes.Buffer
	r := newRenderer(&out, false)
	done := make(chan struct{})
	go func() {
		r.consume(emitter.Events())
		close(done)
	}()

	reply, err := agent.Call(context.Background(), agentloop.UserMsg("what is in hello.txt?"))
	require.NoError(t, err)
	emitter.Close()
	<-done
	r.finish(reply)

	assert.Equal(t, "It says hi.", reply.Text())
	assert.Contains(t, out.String(), "Reading.")
	assert.Contains(t, out.String(), "read_file")
	assert.Contains(t, out.String(), "It says hi.")

	req := model.Requests()[0]
	assert.Equal(t, "openai", req.Provider)
	assert.Contains(t, req.Messages[0].TextContent(), "<environment>")
	assert.Contains(t, req.Messages[0].TextContent(), cfg.Agent.SystemPrompt)

	path := filepath.Join(dir, "transcript.yaml")
	require.NoError(t, writeTranscript(path, agent.Log().Snapshot()))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entries []transcriptEntry
	require.NoError(t, yaml.Unmarshal(data, &entries))
	require.Len(t, entries, 5)
	assert.Equal(t, "user", entries[0].Role)
	assert.Equal(t, "read_file", entries[2].ToolUses[0].Name)
	assert.Equal(t, "success", entries[3].Results[0].Status)
	assert.Contains(t, entries[3].Results[0].Output, "1 | hi there")
	assert.Equal(t, 8, entries[4].Metadata["usage"].(map[string]any)["total_tokens"])
}

func TestRendererFinishPrintsSynthesizedReplies(t *testing.T) {
	var out bytes.Buffer
	r := newRenderer(&out, false)
	r.render(agentloop.Event{Kind: agentloop.EventAssistantTextDelta, Data: map[string]any{"delta": "partial"}})
	r.finish(agentloop.AssistantMsg("bot", agentloop.RecoveryMessage).WithMetadata("interrupted", true))
	assert.Equal(t, "partial\n"+agentloop.RecoveryMessage+"\n", out.String())
}

func TestCommands(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	run := func(cmd *cobra.Command, args ...string) string {
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.Run(cmd, args)
		return out.String()
	}
	assert.Contains(t, run(versionCmd), Version)
	assert.Contains(t, run(toolsCmd), "Total: 3 tools available")

	var out bytes.Buffer
	configCmd.SetOut(&out)
	require.NoError(t, runConfig(configCmd, nil))
	assert.Contains(t, out.String(), "max_iters: 10")
}
