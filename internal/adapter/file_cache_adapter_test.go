package adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"adaptive-learning/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCache_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quizctl", "session.json")
	ctx := context.Background()

	fc, err := NewFileCache(path)
	require.NoError(t, err)
	require.NoError(t, fc.Set(ctx, "session:default", "token", time.Hour))
	require.NoError(t, fc.Set(ctx, "session:other", "x", 0))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened, err := NewFileCache(path)
	require.NoError(t, err)
	v, err := reopened.Get(ctx, "session:default")
	require.NoError(t, err)
	assert.Equal(t, "token", v)

	require.NoError(t, reopened.Delete(ctx, "session:default"))
	again, err := NewFileCache(path)
	require.NoError(t, err)
	_, err = again.Get(ctx, "session:default")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)

	n, err := again.DeleteByPrefix(ctx, "session:")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFileCache_DropsExpiredOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"old": {"value": "a", "expires_at": "2000-01-01T00:00:00Z"},
		"new": {"value": "b"}
	}`), 0o600))

	fc, err := NewFileCache(path)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = fc.Get(ctx, "old")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
	v, err := fc.Get(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, "b", v)
}

func TestFileCache_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	_, err := NewFileCache(path)
	assert.Error(t, err)
}
