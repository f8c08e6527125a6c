// Package storage provides the persisted key-value backends behind
// core.Storage. The session store keeps its auth token and serialized user
// here so a cold start can restore the previous session.
//
// Providers:
//   - memory: process-local, lost on exit (core.MemoryStore)
//   - redis:  shared across client processes, keys prefixed by namespace
//   - sqlite: single-file durable storage for the CLI
package storage

import (
	"fmt"

	"github.com/itsneelabh/storefront/core"
)

// Store is a core.Storage that owns an underlying connection.
type Store interface {
	core.Storage
	Close() error
}

type memoryStore struct {
	*core.MemoryStore
}

func (memoryStore) Close() error { return nil }

// New builds the storage provider selected by cfg.
func New(cfg core.StorageConfig, logger core.Logger) (Store, error) {
	logger = core.LoggerOrNoOp(logger)

	switch cfg.Provider {
	case "", "memory":
		m := core.NewMemoryStore()
		m.SetLogger(logger)
		return memoryStore{m}, nil
	case "redis":
		return NewRedisStore(RedisOptions{
			RedisURL:  cfg.RedisURL,
			Namespace: cfg.Namespace,
			Logger:    logger,
		})
	case "sqlite":
		return OpenSQLite(cfg.SQLitePath, logger)
	default:
		return nil, fmt.Errorf("unknown storage provider %q: %w", cfg.Provider, core.ErrInvalidConfiguration)
	}
}
