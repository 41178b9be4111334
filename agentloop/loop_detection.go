package agentloop

import (
	"context"
	"crypto/sha256"
	"fmt"
)

// DefaultLoopWindow is the number of recent invocations LoopDetectionHook
// compares when Window is unset.
const DefaultLoopWindow = 10

// toolUseSignature identifies an invocation by name and input.
func toolUseSignature(use ToolUseBlock) string {
	h := sha256.Sum256(use.Input)
	return fmt.Sprintf("%s:%x", use.Name, h[:8])
}

// recentSignatures returns signatures of the last count invocations by
// author, oldest first.
func recentSignatures(msgs []Msg, author string, count int) []string {
	var sigs []string
	for i := len(msgs) - 1; i >= 0 && len(sigs) < count; i-- {
		m := msgs[i]
		if m.Author != author || m.Role != RoleAssistant {
			continue
		}
		uses := m.ToolUses()
		for j := len(uses) - 1; j >= 0 && len(sigs) < count; j-- {
			sigs = append(sigs, toolUseSignature(uses[j]))
		}
	}
	for i, j := 0, len(sigs)-1; i < j; i, j = i+1, j-1 {
		sigs[i], sigs[j] = sigs[j], sigs[i]
	}
	return sigs
}

// DetectLoop reports whether the last window invocations by author repeat
// a pattern of length 1, 2 or 3.
func DetectLoop(msgs []Msg, author string, window int) bool {
	sigs := recentSignatures(msgs, author, window)
	if window <= 1 || len(sigs) < window {
		return false
	}
	for period := 1; period <= 3; period++ {
		if window%period != 0 {
			continue
		}
		match := true
		for i := period; i < window && match; i++ {
			match = sigs[i] == sigs[i%period]
		}
		if match {
			return true
		}
	}
	return false
}

// LoopWarning is sent to the model when a loop is detected.
const LoopWarning = "You have repeated the same tool calls several times without making progress. " +
	"Stop and reconsider your approach, or answer with what you have."

// LoopDetectionHook appends LoopWarning to the outgoing messages when the
// agent keeps repeating itself. The log itself is left untouched.
type LoopDetectionHook struct {
	Window int
	Events *EventEmitter
}

func (h *LoopDetectionHook) Name() string { return "loop_detection" }

// PreReasoning implements PreReasoningHook.
func (h *LoopDetectionHook) PreReasoning(ctx context.Context, msgs []Msg) ([]Msg, error) {
	window := h.Window
	if window <= 0 {
		window = DefaultLoopWindow
	}
	step := StepFromContext(ctx)
	if !DetectLoop(msgs, step.Agent, window) {
		return msgs, nil
	}
	if h.Events != nil {
		h.Events.Emit(EventLoopDetection, map[string]any{
			"iteration": step.Iteration,
			"window":    window,
		})
	}
	out := make([]Msg, len(msgs), len(msgs)+1)
	copy(out, msgs)
	return append(out, NewMsg(RoleUser, h.Name(), TextBlock{Text: LoopWarning})), nil
}
