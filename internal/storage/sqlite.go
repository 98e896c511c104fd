package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    clock
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger, now: systemClock}, nil
}

// Ping checks the database connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	-- Browsing sessions; expires_at is unix seconds
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);

	-- Form snapshots, one per (session, path#form)
	CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		snapshot_key TEXT NOT NULL,
		data BLOB NOT NULL,
		content_hash TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE(session_id, snapshot_key)
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);
	CREATE INDEX IF NOT EXISTS idx_snapshots_session ON snapshots(session_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("database migrations complete", "backend", "sqlite")
	return nil
}

// SaveSnapshot upserts a snapshot and extends its session
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, sessionID, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrNoTTL
	}
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// An expired session starts over instead of reviving old snapshots
	if _, err := tx.ExecContext(ctx, "DELETE FROM snapshots WHERE session_id IN (SELECT id FROM sessions WHERE id = ? AND expires_at <= ?)", sessionID, now.Unix()); err != nil {
		return fmt.Errorf("clearing expired session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ? AND expires_at <= ?", sessionID, now.Unix()); err != nil {
		return fmt.Errorf("clearing expired session: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, created_at, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET expires_at = excluded.expires_at
	`, sessionID, now.Unix(), now.Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("upserting session: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (id, session_id, snapshot_key, data, content_hash, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, snapshot_key) DO UPDATE SET
			data = excluded.data,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at
	`, generateID(), sessionID, key, data, computeHash(data), now.Unix())
	if err != nil {
		return fmt.Errorf("upserting snapshot: %w", err)
	}

	return tx.Commit()
}

// GetSnapshot retrieves a snapshot from a live session
func (s *SQLiteStore) GetSnapshot(ctx context.Context, sessionID, key string) (*Snapshot, error) {
	query := `
		SELECT sn.id, sn.session_id, sn.snapshot_key, sn.data, sn.content_hash, sn.updated_at
		FROM snapshots sn
		JOIN sessions se ON se.id = sn.session_id
		WHERE sn.session_id = ? AND sn.snapshot_key = ? AND se.expires_at > ?
	`
	var snap Snapshot
	var updatedAt int64
	err := s.db.QueryRowContext(ctx, query, sessionID, key, s.now().Unix()).Scan(
		&snap.ID, &snap.SessionID, &snap.Key, &snap.Data, &snap.ContentHash, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	snap.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &snap, nil
}

// ListSnapshotKeys lists the snapshot keys of a live session
func (s *SQLiteStore) ListSnapshotKeys(ctx context.Context, sessionID string) ([]string, error) {
	query := `
		SELECT sn.snapshot_key
		FROM snapshots sn
		JOIN sessions se ON se.id = sn.session_id
		WHERE sn.session_id = ? AND se.expires_at > ?
		ORDER BY sn.snapshot_key
	`
	rows, err := s.db.QueryContext(ctx, query, sessionID, s.now().Unix())
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
func (s *SQLiteStore) DeleteSnapshot(ctx context.Context, sessionID, key string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM snapshots WHERE session_id = ? AND snapshot_key = ?", sessionID, key)
	return err
}

// DeleteSession removes a session and all its snapshots
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM snapshots WHERE session_id = ?", sessionID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID); err != nil {
		return err
	}
	return tx.Commit()
}

// PurgeExpired removes expired sessions
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := s.now().Unix()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM snapshots WHERE session_id IN (SELECT id FROM sessions WHERE expires_at <= ?)", cutoff); err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}
