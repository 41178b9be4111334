package agentloop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/martinemde/attractor/unifiedllm"
)

var (
	// ErrAgentBusy is returned when Call is invoked while another call on
	// the same agent is in flight.
	ErrAgentBusy = errors.New("agent is already running a call")
	// ErrNoModel is returned when the agent was built without a model.
	ErrNoModel = errors.New("agent has no model")
)

// StepError reports a failed reasoning step. Nothing the step produced was
// committed.
type StepError struct {
	Iteration int
	Err       error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("reasoning step %d failed: %v", e.Iteration, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Model streams one response. *unifiedllm.Client satisfies it.
type Model interface {
	Stream(ctx context.Context, req unifiedllm.Request) (<-chan unifiedllm.StreamEvent, error)
}

// MaxItersMessage is the text of the reply returned when the iteration
// bound is reached.
func MaxItersMessage(n int) string {
	return fmt.Sprintf("Maximum iterations (%d) reached. Stopped before requesting another model response.", n)
}

// Agent runs the reason-then-act loop for one author over a conversation
// log. An Agent handles one Call at a time; separate agents may share a
// log, a tool registry and a formatter.
type Agent struct {
	name      string
	model     Model
	formatter Formatter
	tools     ToolExecutor
	log       ConversationLog
	hooks     pipeline
	cfg       Config
	logger    *zap.Logger

	running   atomic.Bool
	interrupt interruptState

	mu        sync.Mutex
	lastUsage unifiedllm.Usage
}

// Option configures an Agent.
type Option func(*Agent)

// WithTools sets the executor used for acting steps.
func WithTools(tools ToolExecutor) Option {
	return func(a *Agent) {
		if tools != nil {
			a.tools = tools
		}
	}
}

// WithLog sets the conversation log the agent commits to.
func WithLog(log ConversationLog) Option {
	return func(a *Agent) {
		if log != nil {
			a.log = log
		}
	}
}

// WithFormatter replaces DefaultFormatter.
func WithFormatter(f Formatter) Option {
	return func(a *Agent) {
		if f != nil {
			a.formatter = f
		}
	}
}

// WithHooks registers hooks in order.
func WithHooks(hooks ...Hook) Option {
	return func(a *Agent) { a.hooks.add(hooks...) }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithConfig replaces the loop configuration.
func WithConfig(cfg Config) Option {
	return func(a *Agent) { a.cfg = cfg }
}

// WithSystemPrompt sets the system prompt passed to the formatter.
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) { a.cfg.SystemPrompt = prompt }
}

// NewAgent creates an agent named name. The name is the author of every
// message the agent commits.
func NewAgent(name string, model Model, opts ...Option) *Agent {
	a := &Agent{
		name:      name,
		model:     model,
		formatter: DefaultFormatter{},
		tools:     NewToolRegistry(),
		log:       NewMemoryLog(),
		cfg:       DefaultConfig(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.cfg.MaxIters <= 0 {
		a.cfg.MaxIters = DefaultConfig().MaxIters
	}
	a.hooks.defaultMode = a.cfg.ChunkMode
	a.logger = a.logger.With(zap.String("agent", name))
	return a
}

// Name returns the agent's author name.
func (a *Agent) Name() string { return a.name }

// Log returns the conversation log.
func (a *Agent) Log() ConversationLog { return a.log }

// Tools returns the tool executor.
func (a *Agent) Tools() ToolExecutor { return a.tools }

// AddHook appends hooks after those already registered.
func (a *Agent) AddHook(hooks ...Hook) { a.hooks.add(hooks...) }

// Running reports whether a call is in flight.
func (a *Agent) Running() bool { return a.running.Load() }

// LastUsage returns the token usage summed over the most recent call.
func (a *Agent) LastUsage() unifiedllm.Usage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastUsage
}

// Interrupt asks the in-flight call to stop at its next checkpoint. It is
// safe to call from any goroutine and is a no-op when no call is running.
func (a *Agent) Interrupt(reason string) {
	if a.interrupt.set(&a.running, reason) {
		a.logger.Info("interrupt requested", zap.String("reason", reason))
	}
}

// Call appends inputs to the log and runs the loop until it finishes, is
// interrupted, or reaches the iteration bound. Interruption and the bound
// are not errors; both return an assistant message.
func (a *Agent) Call(ctx context.Context, inputs ...Msg) (Msg, error) {
	if !a.running.CompareAndSwap(false, true) {
		return Msg{}, ErrAgentBusy
	}
	defer a.interrupt.release(&a.running)
	a.mu.Lock()
	a.lastUsage = unifiedllm.Usage{}
	a.mu.Unlock()

	ctx = withStep(ctx, StepInfo{Agent: a.name})
	if a.model == nil {
		return Msg{}, a.fail(ctx, ErrNoModel)
	}

	inputs, err := a.hooks.preCall(ctx, inputs)
	if err != nil {
		return Msg{}, a.fail(ctx, err)
	}
	for _, m := range inputs {
		if err := a.commit(m); err != nil {
			return Msg{}, a.fail(ctx, err)
		}
	}

	reply, iter, err := a.loop(ctx)
	if err != nil {
		return Msg{}, a.fail(ctx, err)
	}
	ctx = withStep(ctx, StepInfo{Agent: a.name, Iteration: iter})
	reply, err = a.hooks.postCall(ctx, reply)
	if err != nil {
		return Msg{}, a.fail(ctx, err)
	}
	return reply, nil
}

// loop runs reasoning and acting steps. It returns the reply and the
// iteration it stopped on, which equals MaxIters when the bound was hit.
func (a *Agent) loop(ctx context.Context) (Msg, int, error) {
	for iter := 0; ; iter++ {
		ctx := withStep(ctx, StepInfo{Agent: a.name, Iteration: iter})
		if iter >= a.cfg.MaxIters {
			a.logger.Warn("iteration limit reached", zap.Int("max_iters", a.cfg.MaxIters))
			msg := AssistantMsg(a.name, MaxItersMessage(a.cfg.MaxIters)).WithMetadata("max_iters_reached", true)
			return msg, iter, a.commit(msg)
		}
		if err := ctx.Err(); err != nil {
			return Msg{}, iter, err
		}

		interrupted, err := a.reason(ctx, iter)
		if err != nil {
			return Msg{}, iter, err
		}
		if interrupted {
			reply, err := a.recover(ctx)
			return reply, iter, err
		}

		finished, reply, pending := FinishCheck(a.log.Snapshot(), a.name, a.tools)
		if finished {
			if len(pending) > 0 {
				names := make([]string, len(pending))
				for i, u := range pending {
					names[i] = u.Name
				}
				a.logger.Warn("finishing on unresolved tool names", zap.Strings("tools", names))
				if err := a.reconcile(ctx, pending, StatusUnresolved, "Unknown tool; the call was not executed.", true); err != nil {
					return Msg{}, iter, err
				}
			}
			a.logger.Debug("loop finished", zap.Int("iteration", iter))
			return reply, iter, nil
		}

		interrupted, err = a.act(ctx, pending)
		if err != nil {
			return Msg{}, iter, err
		}
		if interrupted {
			reply, err := a.recover(ctx)
			return reply, iter, err
		}
	}
}

// reason runs one reasoning step and commits what it produced. It reports
// whether an interrupt was observed while streaming.
func (a *Agent) reason(ctx context.Context, iter int) (bool, error) {
	msgs, err := a.hooks.preReasoning(ctx, a.log.Snapshot())
	if err != nil {
		return false, err
	}
	formatted, err := a.formatter.Format(a.cfg.SystemPrompt, msgs)
	if err != nil {
		return false, fmt.Errorf("format conversation: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	events, err := a.model.Stream(streamCtx, a.request(formatted))
	if err != nil {
		cancel()
		return false, &StepError{Iteration: iter, Err: err}
	}
	defer func() {
		cancel()
		go drain(events)
	}()

	acc := newAccumulator(a.name, &a.hooks)
	interrupted := false
	for !interrupted {
		var ev unifiedllm.StreamEvent
		var ok bool
		select {
		case ev, ok = <-events:
		case <-ctx.Done():
			return false, ctx.Err()
		}
		if !ok {
			break
		}
		if err := acc.Add(ctx, ev); err != nil {
			var hookErr *HookError
			if errors.As(err, &hookErr) {
				return false, err
			}
			return false, &StepError{Iteration: iter, Err: err}
		}
		interrupted = a.interrupt.isSet()
	}

	step, err := acc.Result(ctx)
	if err != nil {
		return false, err
	}
	if step.Usage != nil {
		a.mu.Lock()
		a.lastUsage = a.lastUsage.Add(*step.Usage)
		a.mu.Unlock()
	}
	out, err := a.hooks.postReasoning(ctx, step.Messages())
	if err != nil {
		return false, err
	}
	for _, m := range out {
		if err := a.commit(m); err != nil {
			return false, err
		}
	}
	a.logger.Debug("reasoning step committed",
		zap.Int("iteration", iter),
		zap.Int("messages", len(out)),
		zap.Bool("interrupted", interrupted))
	return interrupted, nil
}

// act dispatches pending and commits one result per invocation in order.
// An interrupt raised before dispatch leaves the whole batch to recover.
func (a *Agent) act(ctx context.Context, pending []ToolUseBlock) (bool, error) {
	if a.interrupt.isSet() {
		return true, nil
	}
	calls := make([]ToolUseBlock, len(pending))
	for i, use := range pending {
		rewritten, err := a.hooks.preActing(ctx, use)
		if err != nil {
			return false, err
		}
		rewritten.ID = use.ID
		calls[i] = rewritten
	}
	if a.interrupt.isSet() {
		return true, nil
	}

	obs := &actObserver{ctx: ctx, hooks: &a.hooks, flag: &a.interrupt, logger: a.logger}
	results := Dispatch(ctx, a.tools, calls, obs)

	interrupted := false
	for i, res := range results {
		use := pending[i]
		res.ID, res.Name = use.ID, use.Name
		if res.Status == StatusInterrupted {
			interrupted = true
		}
		var err error
		if res, err = a.hooks.postActing(ctx, use, res); err != nil {
			return false, err
		}
		res.ID = use.ID
		if err := a.commit(NewMsg(RoleTool, a.name, res)); err != nil {
			return false, err
		}
	}
	if err := obs.failure(); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return interrupted || a.interrupt.isSet(), nil
}

// recover reconciles every unanswered invocation as interrupted and commits
// the recovery message.
func (a *Agent) recover(ctx context.Context) (Msg, error) {
	reason := a.interrupt.currentReason()
	pending := unanswered(a.log.Snapshot(), a.name)
	if err := a.reconcile(ctx, pending, StatusInterrupted, interruptedOutput, true); err != nil {
		return Msg{}, err
	}
	a.logger.Info("call interrupted", zap.String("reason", reason), zap.Int("reconciled", len(pending)))
	msg := AssistantMsg(a.name, RecoveryMessage).
		WithMetadata("interrupted", true).
		WithMetadata("interrupt_reason", reason)
	return msg, a.commit(msg)
}

// reconcile commits a synthesized result for each use. notify runs the
// results through post-acting hooks first.
func (a *Agent) reconcile(ctx context.Context, uses []ToolUseBlock, status ResultStatus, output string, notify bool) error {
	for _, use := range uses {
		res := synthesized(use, status, output)
		if notify {
			var err error
			if res, err = a.hooks.postActing(ctx, use, res); err != nil {
				return err
			}
			res.ID = use.ID
		}
		if err := a.commit(NewMsg(RoleTool, a.name, res)); err != nil {
			return err
		}
	}
	return nil
}

// fail leaves the log paired, reports err to error hooks and returns it.
func (a *Agent) fail(ctx context.Context, err error) error {
	if pending := unanswered(a.log.Snapshot(), a.name); len(pending) > 0 {
		output := "Tool execution was aborted: " + err.Error()
		if rerr := a.reconcile(ctx, pending, StatusAborted, output, false); rerr != nil {
			a.logger.Error("reconcile after failure", zap.Error(rerr))
		}
	}
	a.logger.Error("call failed", zap.Error(err))
	a.hooks.onError(ctx, err)
	return err
}

func (a *Agent) commit(m Msg) error {
	if err := a.log.Append(m); err != nil {
		return fmt.Errorf("append to conversation log: %w", err)
	}
	return nil
}

func (a *Agent) request(msgs []unifiedllm.Message) unifiedllm.Request {
	return unifiedllm.Request{
		Model:           a.cfg.Model,
		Provider:        a.cfg.Provider,
		Messages:        msgs,
		ToolDefs:        a.tools.Schemas(),
		Temperature:     a.cfg.Temperature,
		MaxTokens:       a.cfg.MaxTokens,
		ReasoningEffort: a.cfg.ReasoningEffort,
	}
}

// drain discards what a producer sends after the step stopped reading.
func drain(events <-chan unifiedllm.StreamEvent) {
	for range events {
	}
}

// actObserver forwards tool progress to acting-chunk hooks one at a time
// and reports the interrupt flag to the executor.
type actObserver struct {
	ctx    context.Context
	hooks  *pipeline
	flag   *interruptState
	logger *zap.Logger

	mu      sync.Mutex
	buffers map[string]*strings.Builder
	err     error
}

func (o *actObserver) Progress(use ToolUseBlock, delta string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return
	}
	if o.buffers == nil {
		o.buffers = make(map[string]*strings.Builder)
	}
	buf, ok := o.buffers[use.ID]
	if !ok {
		buf = &strings.Builder{}
		o.buffers[use.ID] = buf
	}
	buf.WriteString(delta)
	c := Chunk{Kind: ChunkToolProgress, ToolUseID: use.ID, ToolName: use.Name}
	o.err = o.hooks.actingChunk(o.ctx, c, delta, buf.String())
}

func (o *actObserver) Completed(index int, use ToolUseBlock, outcome ToolOutcome) {
	o.logger.Debug("tool completed",
		zap.Int("index", index),
		zap.String("tool", use.Name),
		zap.String("call_id", use.ID),
		zap.Bool("error", outcome.Err != nil))
}

func (o *actObserver) Stopped() bool {
	return o.flag.isSet() || o.failure() != nil
}

func (o *actObserver) failure() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}
