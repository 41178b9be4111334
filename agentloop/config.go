package agentloop

// Config holds the per-agent settings of the loop.
type Config struct {
	Model           string    `json:"model"`
	Provider        string    `json:"provider,omitempty"` // "" routes by catalog
	SystemPrompt    string    `json:"system_prompt,omitempty"`
	MaxIters        int       `json:"max_iters"`
	ChunkMode       ChunkMode `json:"chunk_mode"` // default for hooks without ChunkModer
	Temperature     *float64  `json:"temperature,omitempty"`
	MaxTokens       *int      `json:"max_tokens,omitempty"`
	ReasoningEffort string    `json:"reasoning_effort,omitempty"` // "low", "medium", "high", or ""
}

// DefaultConfig returns the default loop configuration.
func DefaultConfig() Config {
	return Config{
		MaxIters:  10,
		ChunkMode: ChunkIncremental,
	}
}
