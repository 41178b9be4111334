package agentloop

import (
	"context"
	"errors"
	"fmt"
)

var errNoOutcome = errors.New("executor returned no result")

// Dispatch runs uses through exec and returns results index-aligned with
// uses: result i always carries the id of invocation i. Per-invocation
// failures become error results.
func Dispatch(ctx context.Context, exec ToolExecutor, uses []ToolUseBlock, obs ExecObserver) []ToolResultBlock {
	if len(uses) == 0 {
		return nil
	}
	var outcomes []ToolOutcome
	if exec != nil {
		outcomes = exec.Execute(ctx, uses, obs)
	}
	results := make([]ToolResultBlock, len(uses))
	for i, use := range uses {
		out := ToolOutcome{Err: errNoOutcome}
		if i < len(outcomes) {
			out = outcomes[i]
		}
		results[i] = resultFor(ctx, use, out)
	}
	return results
}

func resultFor(ctx context.Context, use ToolUseBlock, out ToolOutcome) ToolResultBlock {
	res := ToolResultBlock{ID: use.ID, Name: use.Name}
	switch {
	case out.Skipped && ctx.Err() != nil:
		res.Status = StatusAborted
		res.Output = "Tool execution was cancelled before it started."
	case out.Skipped:
		res.Status = StatusInterrupted
		res.Output = interruptedOutput
	case errors.Is(out.Err, ErrUnknownTool):
		res.Status = StatusError
		res.Output = fmt.Sprintf("Unknown tool: %s", use.Name)
	case out.Err != nil:
		res.Status = StatusError
		res.Output = fmt.Sprintf("Tool error (%s): %v", use.Name, out.Err)
	default:
		res.Status = StatusSuccess
		res.Output = out.Output
	}
	return res
}

// ExtractPendingInvocations returns the invocations of the maximal
// contiguous tail of tool-use messages authored by author, in log order.
// The scan stops at the first entry that is not such a message.
func ExtractPendingInvocations(snapshot []Msg, author string) []ToolUseBlock {
	start := len(snapshot)
	for start > 0 {
		m := snapshot[start-1]
		if m.Author != author || !m.IsToolUse() {
			break
		}
		start--
	}
	var uses []ToolUseBlock
	for _, m := range snapshot[start:] {
		uses = append(uses, m.ToolUses()...)
	}
	return uses
}

// Resolver looks tools up by name.
type Resolver interface {
	Resolve(name string) (Tool, bool)
}

// FinishCheck decides whether the loop is done. It is finished when there
// are no pending invocations or none of their names resolve; the reply is
// then the latest non-empty text message by author, falling back to the
// last entry. pending is returned in both cases. FinishCheck only reads
// snapshot.
func FinishCheck(snapshot []Msg, author string, tools Resolver) (finished bool, reply Msg, pending []ToolUseBlock) {
	pending = ExtractPendingInvocations(snapshot, author)
	if tools != nil {
		for _, use := range pending {
			if _, ok := tools.Resolve(use.Name); ok {
				return false, Msg{}, pending
			}
		}
	}
	return true, replyFrom(snapshot, author), pending
}

func replyFrom(snapshot []Msg, author string) Msg {
	for i := len(snapshot) - 1; i >= 0; i-- {
		m := snapshot[i]
		if m.Author == author && m.Role == RoleAssistant && m.Text() != "" {
			return m
		}
	}
	if len(snapshot) == 0 {
		return Msg{}
	}
	return snapshot[len(snapshot)-1]
}
