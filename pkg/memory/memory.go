// Package memory holds the bounded conversation history owned exclusively by
// the turn executor. The reducer never reads or writes it; it exists purely
// as the context window the turn executor hands to the LLM.
package memory

import (
	"sync"

	"github.com/turnkit/voicecore/pkg/orchestrator"
)

// Memory is a bounded ring buffer of turn messages, generalized from
// orchestrator.ConversationSession.AddMessage to live outside any one
// session/provider bundle.
type Memory struct {
	mu       sync.RWMutex
	messages []orchestrator.Message
	max      int

	lastUser      string
	lastAssistant string
}

// New builds a Memory that retains at most max messages, oldest evicted
// first.
func New(max int) *Memory {
	if max <= 0 {
		max = 20
	}
	return &Memory{max: max}
}

// Append records a message, evicting the oldest entry once the bound is
// exceeded.
func (m *Memory) Append(role, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = append(m.messages, orchestrator.Message{Role: role, Content: content})
	if len(m.messages) > m.max {
		m.messages = m.messages[len(m.messages)-m.max:]
	}

	switch role {
	case "user":
		m.lastUser = content
	case "assistant":
		m.lastAssistant = content
	}
}

// Snapshot returns a defensive copy of the current message window, suitable
// for handing to an LLMProvider.
func (m *Memory) Snapshot() []orchestrator.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]orchestrator.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// LastUser returns the most recently appended user message.
func (m *Memory) LastUser() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastUser
}

// LastAssistant returns the most recently appended assistant message.
func (m *Memory) LastAssistant() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastAssistant
}

// Clear empties the buffer; the executor calls it on every ResetTurn
// action, whatever its keep_profile setting.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = nil
	m.lastUser = ""
	m.lastAssistant = ""
}

// Len reports the current message count.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}
