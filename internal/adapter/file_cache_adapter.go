package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FileCache is a MemoryCache persisted to a JSON file after every write, so a
// CLI session survives between invocations without a Redis server.
type FileCache struct {
	*MemoryCache
	path string
}

type fileEntry struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// NewFileCache opens the cache stored at path. A missing file is an empty cache.
func NewFileCache(path string) (*FileCache, error) {
	fc := &FileCache{MemoryCache: NewMemoryCache(), path: path}

	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file %s: %w", path, err)
	}

	var stored map[string]fileEntry
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("cache file %s is corrupt: %w", path, err)
	}
	for key, e := range stored {
		entry := memoryEntry{value: e.Value, expiresAt: e.ExpiresAt}
		if !fc.expired(entry) {
			fc.entries[key] = entry
		}
	}
	return fc, nil
}

func (f *FileCache) Set(ctx context.Context, key string, value string, expiration time.Duration) error {
	if err := f.MemoryCache.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	return f.persist()
}

func (f *FileCache) Delete(ctx context.Context, key string) error {
	if err := f.MemoryCache.Delete(ctx, key); err != nil {
		return err
	}
	return f.persist()
}

func (f *FileCache) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	n, err := f.MemoryCache.DeleteByPrefix(ctx, prefix)
	if err != nil {
		return n, err
	}
	return n, f.persist()
}

// persist writes live entries to a temp file and renames it over the cache file.
func (f *FileCache) persist() error {
	f.mu.Lock()
	stored := make(map[string]fileEntry, len(f.entries))
	for key, e := range f.entries {
		if !f.expired(e) {
			stored[key] = fileEntry{Value: e.value, ExpiresAt: e.expiresAt}
		}
	}
	f.mu.Unlock()

	raw, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".cache-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}
