// Package memory defines the Memory boundary (C1): append-only,
// restartable conversation history consumed by the Agent Executor.
package memory

import (
	"sync"

	"github.com/aof-dev/aof/pkg/kernel/model"
)

// Memory is the boundary the kernel calls out to for persisted
// conversation history. Recent returns the most-recent-last, finite
// window; it must be restartable across process restarts for any
// durable backend.
type Memory interface {
	Append(msg model.Message) error
	Recent(n int) ([]model.Message, error)
	Clear() error
}

// InMemory is the default, process-local backend: a capped ring of
// messages, safe for concurrent use.
type InMemory struct {
	mu  sync.Mutex
	max int
	buf []model.Message
}

// NewInMemory builds an in-memory backend. maxMessages <= 0 means
// unbounded.
func NewInMemory(maxMessages int) *InMemory {
	return &InMemory{max: maxMessages}
}

func (m *InMemory) Append(msg model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf = append(m.buf, msg)
	if m.max > 0 && len(m.buf) > m.max {
		m.buf = m.buf[len(m.buf)-m.max:]
	}
	return nil
}

func (m *InMemory) Recent(n int) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 || n > len(m.buf) {
		n = len(m.buf)
	}
	out := make([]model.Message, n)
	copy(out, m.buf[len(m.buf)-n:])
	return out, nil
}

func (m *InMemory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buf = nil
	return nil
}
