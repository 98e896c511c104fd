package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pendergraft/dappkit/internal/config"
)

// SnapshotStore handles form snapshot operations. All keys are scoped to a session.
type SnapshotStore interface {
	// SaveSnapshot stores data under key, overwriting any previous value, and
	// extends the session's lifetime to now+ttl.
	SaveSnapshot(ctx context.Context, sessionID, key string, data []byte, ttl time.Duration) error
	GetSnapshot(ctx context.Context, sessionID, key string) (*Snapshot, error)
	ListSnapshotKeys(ctx context.Context, sessionID string) ([]string, error)
	DeleteSnapshot(ctx context.Context, sessionID, key string) error
}

// SessionStore handles browsing session lifecycle
type SessionStore interface {
	DeleteSession(ctx context.Context, sessionID string) error
	// PurgeExpired removes expired sessions and returns how many were removed.
	PurgeExpired(ctx context.Context) (int64, error)
}

// Store combines the storage interfaces with lifecycle methods.
// Domain services define their own minimal interfaces based on their actual usage.
type Store interface {
	SnapshotStore
	SessionStore

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
}

// Snapshot is a stored form snapshot
type Snapshot struct {
	ID          string
	SessionID   string
	Key         string
	Data        []byte
	ContentHash string
	UpdatedAt   time.Time
}

// New creates a new store based on configuration
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	case "redis":
		return NewRedisStore(cfg.Redis, logger)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
