package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/storefront/core"
)

func TestNew(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		s, err := New(core.StorageConfig{Provider: "memory"}, nil)
		require.NoError(t, err)
		require.NoError(t, s.Set(context.Background(), "k", "v"))
		assert.NoError(t, s.Close())
	})

	t.Run("sqlite", func(t *testing.T) {
		s, err := New(core.StorageConfig{
			Provider:   "sqlite",
			SQLitePath: filepath.Join(t.TempDir(), "x.db"),
		}, nil)
		require.NoError(t, err)
		assert.IsType(t, &SQLiteStore{}, s)
		assert.NoError(t, s.Close())
	})

	t.Run("redis", func(t *testing.T) {
		mr := setupTestRedis(t)
		s, err := New(core.StorageConfig{
			Provider:  "redis",
			RedisURL:  "redis://" + mr.Addr(),
			Namespace: "ns",
		}, nil)
		require.NoError(t, err)
		require.NoError(t, s.Set(context.Background(), "k", "v"))
		assert.True(t, mr.Exists("ns:k"))
		assert.NoError(t, s.Close())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := New(core.StorageConfig{Provider: "etcd"}, nil)
		assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
	})
}
