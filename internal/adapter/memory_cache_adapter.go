package adapter

import (
	"context"
	"strings"
	"sync"
	"time"

	"adaptive-learning/internal/domain"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryCache implements domain.Cache in process. It is the default session store
// and the stub API's cache when no Redis address is configured.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (m *MemoryCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return "", domain.ErrCacheMiss
	}
	if m.expired(entry) {
		delete(m.entries, key)
		return "", domain.ErrCacheMiss
	}
	return entry.value, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, value string, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := memoryEntry{value: value}
	if expiration > 0 {
		entry.expiresAt = m.now().Add(expiration)
	}
	m.entries[key] = entry
	return nil
}

func (m *MemoryCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

func (m *MemoryCache) DeleteByPrefix(_ context.Context, prefix string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deleted := 0
	for key, entry := range m.entries {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		delete(m.entries, key)
		if !m.expired(entry) {
			deleted++
		}
	}
	return deleted, nil
}

func (m *MemoryCache) Ping(context.Context) error {
	return nil
}

func (m *MemoryCache) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && !m.now().Before(e.expiresAt)
}
