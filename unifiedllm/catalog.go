package unifiedllm

import (
	_ "embed"
	"fmt"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"
)

// Capability is a model feature used to filter the catalog.
type Capability string

const (
	CapTools     Capability = "tools"
	CapVision    Capability = "vision"
	CapReasoning Capability = "reasoning"
)

// Price is the cost in US dollars per million tokens.
type Price struct {
	Input  float64 `yaml:"input" json:"input"`
	Output float64 `yaml:"output" json:"output"`
}

// ModelInfo describes a catalog model.
type ModelInfo struct {
	ID            string       `yaml:"id" json:"id"`
	Provider      string       `yaml:"provider" json:"provider"`
	DisplayName   string       `yaml:"display_name" json:"display_name"`
	ContextWindow int          `yaml:"context_window" json:"context_window"`
	MaxOutput     int          `yaml:"max_output,omitempty" json:"max_output,omitempty"`
	Capabilities  []Capability `yaml:"capabilities" json:"capabilities"`
	Price         *Price       `yaml:"price,omitempty" json:"price,omitempty"`
	Aliases       []string     `yaml:"aliases,omitempty" json:"aliases,omitempty"`
}

// Supports reports whether the model has capability c. The empty
// capability matches every model.
func (m ModelInfo) Supports(c Capability) bool {
	return c == "" || slices.Contains(m.Capabilities, c)
}

//go:embed catalog.yaml
var catalogYAML []byte

var loadCatalog = sync.OnceValue(func() []ModelInfo {
	models, err := parseCatalog(catalogYAML)
	if err != nil {
		panic(err)
	}
	return models
})

func parseCatalog(data []byte) ([]ModelInfo, error) {
	var models []ModelInfo
	if err := yaml.Unmarshal(data, &models); err != nil {
		return nil, fmt.Errorf("parse model catalog: %w", err)
	}
	seen := make(map[string]string)
	for _, m := range models {
		if m.ID == "" || m.Provider == "" {
			return nil, fmt.Errorf("model catalog: entry %q needs an id and a provider", m.ID)
		}
		for _, name := range append([]string{m.ID}, m.Aliases...) {
			if prev, dup := seen[name]; dup {
				return nil, fmt.Errorf("model catalog: %q names both %s and %s", name, prev, m.ID)
			}
			seen[name] = m.ID
		}
	}
	return models, nil
}

// Models returns a copy of the catalog.
func Models() []ModelInfo {
	return slices.Clone(loadCatalog())
}

// GetModelInfo returns the catalog entry whose id or alias is modelID, or
// nil if unknown.
func GetModelInfo(modelID string) *ModelInfo {
	for _, m := range loadCatalog() {
		if m.ID == modelID || slices.Contains(m.Aliases, modelID) {
			return &m
		}
	}
	return nil
}

// ListModels returns the catalog models of provider, or all of them when
// provider is empty.
func ListModels(provider string) []ModelInfo {
	var out []ModelInfo
	for _, m := range loadCatalog() {
		if provider == "" || m.Provider == provider {
			out = append(out, m)
		}
	}
	return out
}

// GetLatestModel returns the first catalog model of provider with
// capability c.
func GetLatestModel(provider string, c Capability) *ModelInfo {
	for _, m := range loadCatalog() {
		if m.Provider == provider && m.Supports(c) {
			return &m
		}
	}
	return nil
}

// Cost estimates the dollar cost of usage on a catalog model. Unknown
// and unpriced models cost zero.
func Cost(modelID string, u Usage) float64 {
	info := GetModelInfo(modelID)
	if info == nil || info.Price == nil {
		return 0
	}
	return float64(u.InputTokens)/1e6*info.Price.Input +
		float64(u.OutputTokens)/1e6*info.Price.Output
}
