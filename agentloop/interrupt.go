package agentloop

import (
	"sync"
	"sync/atomic"
)

// RecoveryMessage is returned from Call when an interrupt was observed.
const RecoveryMessage = "I noticed that you have interrupted me. What can I do for you?"

const interruptedOutput = "Tool execution was interrupted before it produced a result."

// interruptState is the cooperative cancellation flag. It is only read at
// checkpoints: after each delta, before a batch is dispatched and after
// each tool invocation.
type interruptState struct {
	flag   atomic.Bool
	mu     sync.Mutex
	reason string
}

// set raises the flag if a call is running. The flag is cleared only by
// release, under the same lock, so a late interrupt never leaks into the
// next call.
func (s *interruptState) set(running *atomic.Bool, reason string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !running.Load() {
		return false
	}
	s.reason = reason
	s.flag.Store(true)
	return true
}

func (s *interruptState) release(running *atomic.Bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reason = ""
	s.flag.Store(false)
	running.Store(false)
}

func (s *interruptState) isSet() bool { return s.flag.Load() }

func (s *interruptState) currentReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// unanswered returns invocations by author that no later result answers,
// in log order. A result answers the earliest open invocation with its id,
// so a provider that reuses ids across steps still leaves the newer
// invocation open.
func unanswered(snapshot []Msg, author string) []ToolUseBlock {
	var uses []ToolUseBlock
	var answered []bool
	open := make(map[string][]int)
	for _, m := range snapshot {
		if m.Author == author && m.Role == RoleAssistant {
			for _, u := range m.ToolUses() {
				open[u.ID] = append(open[u.ID], len(uses))
				uses = append(uses, u)
				answered = append(answered, false)
			}
		}
		for _, r := range m.ToolResults() {
			if waiting := open[r.ID]; len(waiting) > 0 {
				answered[waiting[0]] = true
				open[r.ID] = waiting[1:]
			}
		}
	}
	var out []ToolUseBlock
	for i, u := range uses {
		if !answered[i] {
			out = append(out, u)
		}
	}
	return out
}

func synthesized(use ToolUseBlock, status ResultStatus, output string) ToolResultBlock {
	return ToolResultBlock{ID: use.ID, Name: use.Name, Output: output, Status: status}
}
