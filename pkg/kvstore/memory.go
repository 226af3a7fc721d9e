package kvstore

import (
	"context"
	"sort"
	"sync"
)

var (
	_ Store     = (*MemoryStore)(nil)
	_ Estimator = (*MemoryStore)(nil)
)

// MemoryStore keeps values in process memory. A positive quota makes Set fail
// with ErrQuotaExceeded once the summed key+value bytes would exceed it.
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[string]string
	usage int64
	quota int64
}

// NewMemoryStore constructs an empty store. quota <= 0 disables the limit.
func NewMemoryStore(quota int64) *MemoryStore {
	return &MemoryStore{data: make(map[string]string), quota: quota}
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := m.usage + entrySize(key, value)
	if old, ok := m.data[key]; ok {
		next -= entrySize(key, old)
	}
	if m.quota > 0 && next > m.quota {
		return ErrQuotaExceeded
	}
	m.data[key] = value
	m.usage = next
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.data[key]; ok {
		m.usage -= entrySize(key, old)
		delete(m.data, key)
	}
	return nil
}

func (m *MemoryStore) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Estimate reports usage across every key, namespaced or not. Quota is zero
// when the store is unbounded.
func (m *MemoryStore) Estimate(_ context.Context) (Estimate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Estimate{Usage: m.usage, Quota: m.quota}, nil
}

// Len returns the number of stored keys.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
