// Package config loads agentloop settings from YAML files and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/martinemde/attractor/agentloop"
)

// EnvPrefix prefixes every environment override, e.g. AGENTLOOP_MODEL_NAME.
const EnvPrefix = "AGENTLOOP"

// FileName is the config file name searched for when no path is given.
const FileName = "agentloop"

// Config holds all agentloop settings.
type Config struct {
	Model ModelSettings `mapstructure:"model" yaml:"model"`
	Agent AgentSettings `mapstructure:"agent" yaml:"agent"`
	Log   LogSettings   `mapstructure:"log" yaml:"log"`
}

// ModelSettings selects and tunes the model.
type ModelSettings struct {
	// Provider is "openai", "gemini", "ollama" or "anthropic". Empty infers
	// it from the model catalog.
	Provider        string   `mapstructure:"provider" yaml:"provider"`
	Name            string   `mapstructure:"name" yaml:"name"`
	APIKey          string   `mapstructure:"api_key" yaml:"api_key,omitempty"`
	BaseURL         string   `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Temperature     *float64 `mapstructure:"temperature" yaml:"temperature,omitempty"`
	MaxTokens       int      `mapstructure:"max_tokens" yaml:"max_tokens,omitempty"`
	ReasoningEffort string   `mapstructure:"reasoning_effort" yaml:"reasoning_effort,omitempty"`
}

// AgentSettings configures the loop.
type AgentSettings struct {
	Name                string         `mapstructure:"name" yaml:"name"`
	SystemPrompt        string         `mapstructure:"system_prompt" yaml:"system_prompt"`
	MaxIters            int            `mapstructure:"max_iters" yaml:"max_iters"`
	ParallelToolCalls   bool           `mapstructure:"parallel_tool_calls" yaml:"parallel_tool_calls"`
	ChunkMode           string         `mapstructure:"chunk_mode" yaml:"chunk_mode"`
	ToolOutputLimits    map[string]int `mapstructure:"tool_output_limits" yaml:"tool_output_limits,omitempty"`
	LoopDetectionWindow int            `mapstructure:"loop_detection_window" yaml:"loop_detection_window"`
}

// LogSettings configures the zap logger.
type LogSettings struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Development bool   `mapstructure:"development" yaml:"development"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Model: ModelSettings{
			Name: "claude-sonnet-4-5",
		},
		Agent: AgentSettings{
			Name:                "assistant",
			SystemPrompt:        "You are a helpful assistant. Use the available tools when they help answer the question.",
			MaxIters:            agentloop.DefaultConfig().MaxIters,
			ChunkMode:           string(agentloop.ChunkIncremental),
			LoopDetectionWindow: agentloop.DefaultLoopWindow,
		},
		Log: LogSettings{
			Level: "info",
		},
	}
}

// Load reads configuration from path, or from agentloop.yaml in the
// working directory or $HOME/.agentloop when path is empty. A missing
// search-path file is not an error; defaults and environment overrides
// still apply.
func Load(path string) (Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		for _, dir := range searchPaths() {
			v.AddConfigPath(dir)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Used returns the file Load reads for path, or "" when only defaults and
// the environment apply.
func Used(path string) string {
	if path != "" {
		return path
	}
	for _, dir := range searchPaths() {
		for _, ext := range []string{"yaml", "yml"} {
			candidate := filepath.Join(dir, FileName+"."+ext)
			if _, err := os.Stat(candidate); err == nil {
				return candidate
			}
		}
	}
	return ""
}

func searchPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, "."+FileName))
	}
	return paths
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := Default()
	v.SetDefault("model.provider", d.Model.Provider)
	v.SetDefault("model.name", d.Model.Name)
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.base_url", "")
	v.SetDefault("model.max_tokens", 0)
	v.SetDefault("model.reasoning_effort", "")
	v.SetDefault("agent.name", d.Agent.Name)
	v.SetDefault("agent.system_prompt", d.Agent.SystemPrompt)
	v.SetDefault("agent.max_iters", d.Agent.MaxIters)
	v.SetDefault("agent.parallel_tool_calls", d.Agent.ParallelToolCalls)
	v.SetDefault("agent.chunk_mode", d.Agent.ChunkMode)
	v.SetDefault("agent.loop_detection_window", d.Agent.LoopDetectionWindow)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
	// No default so an absent temperature stays nil.
	_ = v.BindEnv("model.temperature")
	return v
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Model.Provider {
	case "", "openai", "gemini", "ollama", "anthropic":
	default:
		return fmt.Errorf("model.provider: unknown provider %q", c.Model.Provider)
	}
	if c.Model.Name == "" {
		return errors.New("model.name is required")
	}
	if t := c.Model.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("model.temperature: %v is outside [0, 2]", *t)
	}
	switch c.Model.ReasoningEffort {
	case "", "low", "medium", "high":
	default:
		return fmt.Errorf("model.reasoning_effort: unknown effort %q", c.Model.ReasoningEffort)
	}
	if c.Agent.Name == "" {
		return errors.New("agent.name is required")
	}
	if c.Agent.MaxIters <= 0 {
		return fmt.Errorf("agent.max_iters must be positive, got %d", c.Agent.MaxIters)
	}
	switch agentloop.ChunkMode(c.Agent.ChunkMode) {
	case agentloop.ChunkIncremental, agentloop.ChunkCumulative:
	default:
		return fmt.Errorf("agent.chunk_mode: unknown mode %q", c.Agent.ChunkMode)
	}
	for tool, limit := range c.Agent.ToolOutputLimits {
		if limit <= 0 {
			return fmt.Errorf("agent.tool_output_limits.%s must be positive", tool)
		}
	}
	if c.Agent.LoopDetectionWindow < 0 {
		return errors.New("agent.loop_detection_window must not be negative")
	}
	return nil
}

// AgentConfig converts the settings into the loop configuration.
func (c Config) AgentConfig() agentloop.Config {
	cfg := agentloop.Config{
		Model:           c.Model.Name,
		Provider:        c.Model.Provider,
		SystemPrompt:    c.Agent.SystemPrompt,
		MaxIters:        c.Agent.MaxIters,
		ChunkMode:       agentloop.ChunkMode(c.Agent.ChunkMode),
		Temperature:     c.Model.Temperature,
		ReasoningEffort: c.Model.ReasoningEffort,
	}
	if c.Model.MaxTokens > 0 {
		n := c.Model.MaxTokens
		cfg.MaxTokens = &n
	}
	return cfg
}

// YAML renders the configuration with the API key masked.
func (c Config) YAML() ([]byte, error) {
	if c.Model.APIKey != "" {
		c.Model.APIKey = mask(c.Model.APIKey)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

func mask(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + "****" + secret[len(secret)-4:]
}
