package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/martinemde/attractor/unifiedllm"
)

// ErrUnknownTool is returned for an invocation whose name is not registered.
var ErrUnknownTool = errors.New("unknown tool")

// ToolFunc runs one invocation. Progress may be reported through tc while
// the tool runs.
type ToolFunc func(ctx context.Context, tc *ToolContext, input json.RawMessage) (string, error)

// ToolDefinition describes a tool for the model (serializable metadata).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Tool pairs a definition with its implementation.
type Tool struct {
	Definition ToolDefinition
	Run        ToolFunc
}

// ToolContext identifies the running invocation and carries its progress
// channel.
type ToolContext struct {
	ID     string
	Name   string
	report func(string)
}

// Report forwards a progress fragment to acting-chunk hooks.
func (tc *ToolContext) Report(progress string) {
	if tc != nil && tc.report != nil && progress != "" {
		tc.report(progress)
	}
}

// ToolOutcome is the executor's raw result for one invocation. Skipped is
// set for invocations never started because execution was stopped.
type ToolOutcome struct {
	Output  string
	Err     error
	Skipped bool
}

// ExecObserver receives executor callbacks. Progress and Completed may be
// called from several goroutines when the executor runs in parallel.
type ExecObserver interface {
	Progress(use ToolUseBlock, delta string)
	Completed(index int, use ToolUseBlock, outcome ToolOutcome)
	// Stopped is polled before the first invocation starts and after each
	// one completes; true skips the invocations not yet started.
	Stopped() bool
}

// ToolExecutor resolves and runs invocations. Execute returns one outcome
// per invocation, index-aligned.
type ToolExecutor interface {
	Resolve(name string) (Tool, bool)
	Schemas() []unifiedllm.ToolDefinition
	Execute(ctx context.Context, uses []ToolUseBlock, obs ExecObserver) []ToolOutcome
}

// ToolRegistry is the default ToolExecutor. It is safe to share between
// agents.
type ToolRegistry struct {
	tools    map[string]Tool
	parallel bool
	mu       sync.RWMutex
}

// RegistryOption configures a ToolRegistry.
type RegistryOption func(*ToolRegistry)

// WithParallelExecution runs the invocations of a batch concurrently.
func WithParallelExecution(enabled bool) RegistryOption {
	return func(r *ToolRegistry) { r.parallel = enabled }
}

// NewToolRegistry creates an empty ToolRegistry.
func NewToolRegistry(opts ...RegistryOption) *ToolRegistry {
	r := &ToolRegistry{tools: make(map[string]Tool)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces a tool.
func (r *ToolRegistry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Definition.Name] = tool
}

// Unregister removes a tool.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
}

// Resolve looks a tool up by name.
func (r *ToolRegistry) Resolve(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns all tool definitions sorted by name.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ToolDefinition, 0, len(r.tools))
	for _, tool := range r.tools {
		defs = append(defs, tool.Definition)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Schemas converts the definitions to the type sent to the model.
func (r *ToolRegistry) Schemas() []unifiedllm.ToolDefinition {
	defs := r.Definitions()
	out := make([]unifiedllm.ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = unifiedllm.ToolDefinition{Name: d.Name, Description: d.Description, Parameters: d.Parameters}
	}
	return out
}

// Names returns the registered tool names, sorted.
func (r *ToolRegistry) Names() []string {
	defs := r.Definitions()
	names := make([]string, len(defs))
	for i, d := range defs {
		names[i] = d.Name
	}
	return names
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// Execute runs uses and returns index-aligned outcomes. Failures are
// captured per invocation and never affect siblings.
func (r *ToolRegistry) Execute(ctx context.Context, uses []ToolUseBlock, obs ExecObserver) []ToolOutcome {
	if obs == nil {
		obs = nopObserver{}
	}
	if r.parallel && len(uses) > 1 {
		return r.executeParallel(ctx, uses, obs)
	}
	return r.executeSequential(ctx, uses, obs)
}

func (r *ToolRegistry) executeSequential(ctx context.Context, uses []ToolUseBlock, obs ExecObserver) []ToolOutcome {
	outcomes := make([]ToolOutcome, len(uses))
	for i, use := range uses {
		if obs.Stopped() || ctx.Err() != nil {
			for j := i; j < len(uses); j++ {
				outcomes[j] = ToolOutcome{Skipped: true}
			}
			break
		}
		outcomes[i] = r.run(ctx, use, obs)
		obs.Completed(i, use, outcomes[i])
	}
	return outcomes
}

func (r *ToolRegistry) executeParallel(ctx context.Context, uses []ToolUseBlock, obs ExecObserver) []ToolOutcome {
	outcomes := make([]ToolOutcome, len(uses))
	if obs.Stopped() || ctx.Err() != nil {
		for i := range outcomes {
			outcomes[i] = ToolOutcome{Skipped: true}
		}
		return outcomes
	}
	var wg sync.WaitGroup
	for i, use := range uses {
		wg.Add(1)
		go func(idx int, use ToolUseBlock) {
			defer wg.Done()
			outcomes[idx] = r.run(ctx, use, obs)
			obs.Completed(idx, use, outcomes[idx])
		}(i, use)
	}
	wg.Wait()
	return outcomes
}

func (r *ToolRegistry) run(ctx context.Context, use ToolUseBlock, obs ExecObserver) (out ToolOutcome) {
	tool, ok := r.Resolve(use.Name)
	if !ok || tool.Run == nil {
		return ToolOutcome{Err: fmt.Errorf("%w: %s", ErrUnknownTool, use.Name)}
	}
	defer func() {
		if p := recover(); p != nil {
			out = ToolOutcome{Err: fmt.Errorf("tool panicked: %v", p)}
		}
	}()
	tc := &ToolContext{
		ID:     use.ID,
		Name:   use.Name,
		report: func(delta string) { obs.Progress(use, delta) },
	}
	output, err := tool.Run(ctx, tc, use.Input)
	return ToolOutcome{Output: output, Err: err}
}

type nopObserver struct{}

func (nopObserver) Progress(ToolUseBlock, string)            {}
func (nopObserver) Completed(int, ToolUseBlock, ToolOutcome) {}
func (nopObserver) Stopped() bool                            { return false }

// ParseToolArguments unmarshals tool input into a map.
func ParseToolArguments(raw json.RawMessage) (map[string]any, error) {
	var args map[string]any
	if err := jsoniter.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	return args, nil
}

// GetStringArg extracts a string argument from parsed tool arguments.
func GetStringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// GetIntArg extracts an integer argument from parsed tool arguments.
func GetIntArg(args map[string]any, key string) (int, bool) {
	v, ok := args[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// GetBoolArg extracts a boolean argument from parsed tool arguments.
func GetBoolArg(args map[string]any, key string) (bool, bool) {
	v, ok := args[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}
