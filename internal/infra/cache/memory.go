package cache

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value    []byte
	cachedAt time.Time
	ttl      time.Duration
}

// Memory is an in-process ResponseCache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]entry)}
}

// Get returns the cached value if present and within its TTL.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok || time.Since(e.cachedAt) >= e.ttl {
		return nil, false, nil
	}
	return e.value, true, nil
}

// Set stores a value with its TTL.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	m.entries[key] = entry{value: value, cachedAt: time.Now(), ttl: ttl}
	m.mu.Unlock()
	return nil
}

// Invalidate drops a single key.
func (m *Memory) Invalidate(key string) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Close is a no-op for the memory cache.
func (m *Memory) Close() error { return nil }
