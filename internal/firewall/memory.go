package firewall

import (
	"context"
	"sort"
	"sync"
)

// Memory records blocks in process only. It backs dry runs and tests.
type Memory struct {
	mu      sync.RWMutex
	blocked map[string]struct{}
}

func NewMemory() *Memory {
	return &Memory{blocked: make(map[string]struct{})}
}

func (m *Memory) Name() string { return BackendMemory }

func (m *Memory) Block(_ context.Context, address string) error {
	m.mu.Lock()
	m.blocked[address] = struct{}{}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Unblock(_ context.Context, address string) error {
	m.mu.Lock()
	delete(m.blocked, address)
	m.mu.Unlock()
	return nil
}

func (m *Memory) IsBlocked(_ context.Context, address string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blocked[address]
	return ok, nil
}

func (m *Memory) ListBlocked(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	addresses := make([]string, 0, len(m.blocked))
	for a := range m.blocked {
		addresses = append(addresses, a)
	}
	sort.Strings(addresses)
	return addresses, nil
}
