package store

import (
	"context"
	"sync"

	"github.com/patrickmn/go-cache"
)

// MemoryStore implements KV in process memory. Entries never expire; it is
// meant for development and tests, and loses everything on restart.
type MemoryStore struct {
	mu    sync.Mutex // makes CompareAndDelete atomic
	cache *cache.Cache
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{cache: cache.New(cache.NoExpiration, 0)}
}

// Get returns the value stored under key.
func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	if v, found := m.cache.Get(key); found {
		return v.(string), nil
	}
	return "", ErrNotFound
}

// Set creates or overwrites key.
func (m *MemoryStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Set(key, value, cache.NoExpiration)
	return nil
}

// Delete removes key.
func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache.Delete(key)
	return nil
}

// CompareAndDelete removes key only while it still holds expected.
func (m *MemoryStore) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, found := m.cache.Get(key)
	if !found || v.(string) != expected {
		return false, nil
	}
	m.cache.Delete(key)
	return true, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close drops all entries.
func (m *MemoryStore) Close() error {
	m.cache.Flush()
	return nil
}
