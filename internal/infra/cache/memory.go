// Package cache implements the read-path cache on Redis or in process.
package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// Memory is an in-process LRU cache with per-entry expiry. Used when no Redis
// is configured and in tests.
type Memory struct {
	mu    sync.Mutex
	items *lru.Cache
	now   func() time.Time
}

// NewMemory creates a cache holding at most size entries.
func NewMemory(size int) (*Memory, error) {
	if size <= 0 {
		size = 1024
	}
	items, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &Memory{items: items, now: time.Now}, nil
}

// SetClock replaces the expiry clock.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

// Get returns a live entry. Expired entries are evicted on read.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.items.Get(key)
	if !ok {
		return nil, false, nil
	}
	entry := v.(memoryEntry)
	if !m.now().Before(entry.expires) {
		m.items.Remove(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores value for ttl. A non-positive ttl deletes the key.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ttl <= 0 {
		m.items.Remove(key)
		return nil
	}
	buf := make([]byte, len(value))
	copy(buf, value)
	m.items.Add(key, memoryEntry{value: buf, expires: m.now().Add(ttl)})
	return nil
}

// Delete removes keys.
func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		m.items.Remove(k)
	}
	return nil
}

// DeletePrefix removes every key starting with prefix.
func (m *Memory) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range m.items.Keys() {
		if s, ok := k.(string); ok && strings.HasPrefix(s, prefix) {
			m.items.Remove(k)
		}
	}
	return nil
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	return m.items.Len()
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// Close purges the cache.
func (m *Memory) Close() error {
	m.items.Purge()
	return nil
}
