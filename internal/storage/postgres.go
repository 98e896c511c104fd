package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    clock
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger, now: systemClock}, nil
}

// Ping checks the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		id UUID PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		snapshot_key TEXT NOT NULL,
		data BYTEA NOT NULL,
		content_hash TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		UNIQUE(session_id, snapshot_key)
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);
	CREATE INDEX IF NOT EXISTS idx_snapshots_session ON snapshots(session_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("database migrations complete", "backend", "postgres")
	return nil
}

// SaveSnapshot upserts a snapshot and extends its session
func (s *PostgresStore) SaveSnapshot(ctx context.Context, sessionID, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrNoTTL
	}
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Cascade takes the old snapshots with the expired session
	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = $1 AND expires_at <= $2", sessionID, now); err != nil {
		return fmt.Errorf("clearing expired session: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, created_at, expires_at) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET expires_at = EXCLUDED.expires_at
	`, sessionID, now, now.Add(ttl))
	if err != nil {
		return fmt.Errorf("upserting session: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (id, session_id, snapshot_key, data, content_hash, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, snapshot_key) DO UPDATE SET
			data = EXCLUDED.data,
			content_hash = EXCLUDED.content_hash,
			updated_at = EXCLUDED.updated_at
	`, generateID(), sessionID, key, data, computeHash(data), now)
	if err != nil {
		return fmt.Errorf("upserting snapshot: %w", err)
	}

	return tx.Commit()
}

// GetSnapshot retrieves a snapshot from a live session
func (s *PostgresStore) GetSnapshot(ctx context.Context, sessionID, key string) (*Snapshot, error) {
	query := `
		SELECT sn.id, sn.session_id, sn.snapshot_key, sn.data, sn.content_hash, sn.updated_at
		FROM snapshots sn
		JOIN sessions se ON se.id = sn.session_id
		WHERE sn.session_id = $1 AND sn.snapshot_key = $2 AND se.expires_at > $3
	`
	var snap Snapshot
	err := s.db.QueryRowContext(ctx, query, sessionID, key, s.now()).Scan(
		&snap.ID, &snap.SessionID, &snap.Key, &snap.Data, &snap.ContentHash, &snap.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	snap.UpdatedAt = snap.UpdatedAt.UTC()
	return &snap, nil
}

// ListSnapshotKeys lists the snapshot keys of a live session
func (s *PostgresStore) ListSnapshotKeys(ctx context.Context, sessionID string) ([]string, error) {
	query := `
		SELECT sn.snapshot_key
		FROM snapshots sn
		JOIN sessions se ON se.id = sn.session_id
		WHERE sn.session_id = $1 AND se.expires_at > $2
		ORDER BY sn.snapshot_key
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID, s.now())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// DeleteSnapshot removes one snapshot
func (s *PostgresStore) DeleteSnapshot(ctx context.Context, sessionID, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM snapshots WHERE session_id = $1 AND snapshot_key = $2", sessionID, key)
	return err
}

// DeleteSession removes a session and all its snapshots
func (s *PostgresStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = $1", sessionID)
	return err
}

// PurgeExpired removes expired sessions
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= $1", s.now())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
