package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/openai/openai-go/v3/option"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/martinemde/attractor/agentloop"
	"github.com/martinemde/attractor/config"
	"github.com/martinemde/attractor/unifiedllm"
)

var (
	transcriptPath string
	workDir        string
	showReasoning  bool
)

var runCmd = &cobra.Command{
	Use:   "run [prompt]",
	Short: "Send one prompt and stream the answer",
	Long: `Send one prompt to the agent, run the tools it calls and stream the
answer. Press Ctrl-C once to interrupt the agent; press it again to abort.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPrompt,
}

func init() {
	runCmd.Flags().StringVar(&transcriptPath, "transcript", "", "Write the conversation log to this YAML file")
	runCmd.Flags().StringVarP(&workDir, "dir", "C", "", "Working directory for file tools (default: current directory)")
	runCmd.Flags().BoolVar(&showReasoning, "reasoning", false, "Print reasoning deltas")
}

func runPrompt(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := createLogger(cfg)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	client, provider, err := newClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	ws := agentloop.NewLocalWorkspace(workDir)
	reg := agentloop.NewToolRegistry(agentloop.WithParallelExecution(cfg.Agent.ParallelToolCalls))
	agentloop.RegisterCoreTools(reg, ws)

	emitter := agentloop.NewEventEmitter(cfg.Agent.Name, 0)
	r := newRenderer(cmd.OutOrStdout(), showReasoning || verbose)
	rendered := make(chan struct{})
	go func() {
		r.consume(emitter.Events())
		close(rendered)
	}()

	agent := newAgent(cfg, provider, client, reg, ws, emitter, logger)

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)
	go func() {
		interrupted := false
		for {
			select {
			case <-sigs:
				if interrupted {
					cancel()
					return
				}
				interrupted = true
				agent.Interrupt("interrupted by user")
			case <-ctx.Done():
				return
			}
		}
	}()

	reply, callErr := agent.Call(ctx, agentloop.UserMsg(strings.Join(args, " ")))
	emitter.Close()
	<-rendered

	if transcriptPath != "" {
		if err := writeTranscript(transcriptPath, agent.Log().Snapshot()); err != nil {
			logger.Error("write transcript", zap.Error(err))
		}
	}
	if callErr != nil {
		return callErr
	}

	r.finish(reply)
	usage := agent.LastUsage()
	fmt.Fprintln(cmd.OutOrStdout(), labelStyle.Render(fmt.Sprintf(
		"%s · %d in / %d out tokens · $%.4f",
		cfg.Model.Name, usage.InputTokens, usage.OutputTokens, unifiedllm.Cost(cfg.Model.Name, usage))))
	return nil
}

func newAgent(cfg config.Config, provider string, model agentloop.Model, reg *agentloop.ToolRegistry,
	ws agentloop.Workspace, emitter *agentloop.EventEmitter, logger *zap.Logger) *agentloop.Agent {
	loopCfg := cfg.AgentConfig()
	loopCfg.Provider = provider
	env := agentloop.BuildEnvironmentContext(ws, loopCfg.Model, time.Now())
	if loopCfg.SystemPrompt == "" {
		loopCfg.SystemPrompt = env
	} else {
		loopCfg.SystemPrompt += "\n\n" + env
	}

	return agentloop.NewAgent(cfg.Agent.Name, model,
		agentloop.WithConfig(loopCfg),
		agentloop.WithTools(reg),
		agentloop.WithLogger(logger),
		agentloop.WithHooks(
			agentloop.NewLoggingHook(logger),
			&agentloop.LoopDetectionHook{Window: cfg.Agent.LoopDetectionWindow, Events: emitter},
			&agentloop.TruncationHook{CharLimits: cfg.Agent.ToolOutputLimits},
			agentloop.NewEventHook(emitter),
		))
}

// resolveProvider returns the configured provider, or the catalog's
// provider for the model.
func resolveProvider(cfg config.Config) (string, error) {
	if cfg.Model.Provider != "" {
		return cfg.Model.Provider, nil
	}
	if info := unifiedllm.GetModelInfo(cfg.Model.Name); info != nil {
		return info.Provider, nil
	}
	return "", fmt.Errorf("cannot infer the provider of model %q; set model.provider", cfg.Model.Name)
}

// newClient registers every provider found in the environment, then the
// configured provider when the config carries its credentials or endpoint.
func newClient(ctx context.Context, cfg config.Config, logger *zap.Logger) (*unifiedllm.Client, string, error) {
	provider, err := resolveProvider(cfg)
	if err != nil {
		return nil, "", err
	}
	policy := unifiedllm.DefaultRetryPolicy()
	policy.OnRetry = func(err error, attempt int, delay time.Duration) {
		logger.Warn("retrying model request",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Stringer("kind", unifiedllm.KindOf(err)),
			zap.Error(err))
	}
	client, err := unifiedllm.NewClientFromEnv(ctx,
		unifiedllm.WithStreamMiddleware(unifiedllm.RetryStreamMiddleware(policy)))
	if err != nil {
		return nil, "", err
	}

	m := cfg.Model
	if m.APIKey != "" || m.BaseURL != "" {
		adapter, err := configuredAdapter(ctx, provider, m)
		if err != nil {
			return nil, "", err
		}
		client.RegisterProvider(provider, adapter)
	}
	return client, provider, nil
}

func configuredAdapter(ctx context.Context, provider string, m config.ModelSettings) (unifiedllm.ProviderAdapter, error) {
	switch provider {
	case "openai":
		var opts []option.RequestOption
		if m.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(m.BaseURL))
		}
		return unifiedllm.NewOpenAIAdapter(m.APIKey, opts...), nil
	case "gemini":
		return unifiedllm.NewGeminiAdapter(ctx, m.APIKey)
	case "ollama":
		return unifiedllm.NewOllamaAdapter(m.BaseURL, nil)
	case "anthropic":
		return unifiedllm.NewGollmAdapter(provider, m.APIKey, unifiedllm.WithModel(m.Name))
	default:
		return nil, fmt.Errorf("provider %q cannot be configured from the config file", provider)
	}
}

// transcriptEntry is the YAML form of one log message.
type transcriptEntry struct {
	ID        string             `yaml:"id"`
	Role      string             `yaml:"role"`
	Author    string             `yaml:"author"`
	Time      string             `yaml:"time"`
	Reasoning string             `yaml:"reasoning,omitempty"`
	Text      string             `yaml:"text,omitempty"`
	ToolUses  []transcriptUse    `yaml:"tool_uses,omitempty"`
	Results   []transcriptResult `yaml:"tool_results,omitempty"`
	Metadata  map[string]any     `yaml:"metadata,omitempty"`
}

type transcriptUse struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Input string `yaml:"input"`
}

type transcriptResult struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Status string `yaml:"status"`
	Output string `yaml:"output"`
}

func writeTranscript(path string, msgs []agentloop.Msg) error {
	entries := make([]transcriptEntry, 0, len(msgs))
	for _, m := range msgs {
		e := transcriptEntry{
			ID:        m.ID,
			Role:      string(m.Role),
			Author:    m.Author,
			Time:      m.Timestamp.Format(time.RFC3339),
			Reasoning: m.Reasoning(),
			Text:      m.Text(),
		}
		for _, u := range m.ToolUses() {
			e.ToolUses = append(e.ToolUses, transcriptUse{ID: u.ID, Name: u.Name, Input: string(u.Input)})
		}
		for _, r := range m.ToolResults() {
			e.Results = append(e.Results, transcriptResult{ID: r.ID, Name: r.Name, Status: string(r.Status), Output: r.Output})
		}
		if len(m.Metadata) > 0 {
			e.Metadata = make(map[string]any, len(m.Metadata))
			for k, v := range m.Metadata {
				if u, ok := v.(unifiedllm.Usage); ok {
					v = map[string]int{"input_tokens": u.InputTokens, "output_tokens": u.OutputTokens, "total_tokens": u.TotalTokens}
				}
				e.Metadata[k] = v
			}
		}
		entries = append(entries, e)
	}
	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal transcript: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	return nil
}
