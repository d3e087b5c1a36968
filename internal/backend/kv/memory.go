package kv

import (
	"context"
	"sync"
)

// Memory is an in-process Store. It is used for tests and for running the
// server without durable storage.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte

	// FailPut, when set, is returned by every Put.
	FailPut error
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrMissing
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPut != nil {
		return m.FailPut
	}
	m.data[key] = append([]byte(nil), value...)
	return nil
}
