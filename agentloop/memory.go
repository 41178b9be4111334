package agentloop

import "sync"

// ConversationLog is the append-only store the agent commits to.
type ConversationLog interface {
	Append(msg Msg) error
	Snapshot() []Msg
	Len() int
}

// MemoryLog is an in-process ConversationLog. It is safe for concurrent use,
// so several agents may share one log in a pipeline.
type MemoryLog struct {
	mu   sync.RWMutex
	msgs []Msg
}

// NewMemoryLog creates a log seeded with msgs.
func NewMemoryLog(msgs ...Msg) *MemoryLog {
	l := &MemoryLog{}
	for _, m := range msgs {
		l.msgs = append(l.msgs, m.clone())
	}
	return l
}

// Append stores a copy of msg.
func (l *MemoryLog) Append(msg Msg) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg.clone())
	return nil
}

// Snapshot returns copies of every entry in append order.
func (l *MemoryLog) Snapshot() []Msg {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Msg, len(l.msgs))
	for i, m := range l.msgs {
		out[i] = m.clone()
	}
	return out
}

// Len returns the number of entries.
func (l *MemoryLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.msgs)
}
