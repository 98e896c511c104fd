package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pendergraft/dappkit/internal/config"
)

const redisKeyPrefix = "dappkit:session:"

// RedisStore implements Store using one Redis hash per session.
// Expiry is handled by Redis itself, so PurgeExpired has nothing to do.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
	now    clock
}

// redisRecord is the value stored under each hash field
type redisRecord struct {
	ID          string    `json:"id"`
	Data        []byte    `json:"data"`
	ContentHash string    `json:"contentHash"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(cfg config.RedisConfig, logger *slog.Logger) (*RedisStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisStoreFromClient(client, logger), nil
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client *redis.Client, logger *slog.Logger) *RedisStore {
	return &RedisStore{client: client, logger: logger, now: systemClock}
}

func sessionHashKey(sessionID string) string {
	return redisKeyPrefix + sessionID
}

// Ping checks the Redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Migrate is a no-op for Redis
func (s *RedisStore) Migrate(ctx context.Context) error {
	s.logger.Info("database migrations complete", "backend", "redis")
	return nil
}

// SaveSnapshot writes the snapshot field and resets the session hash TTL
func (s *RedisStore) SaveSnapshot(ctx context.Context, sessionID, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrNoTTL
	}

	rec := redisRecord{
		ID:          generateID(),
		Data:        data,
		ContentHash: computeHash(data),
		UpdatedAt:   s.now(),
	}
	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	hashKey := sessionHashKey(sessionID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, hashKey, key, encoded)
		pipe.Expire(ctx, hashKey, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

// GetSnapshot reads a snapshot field
func (s *RedisStore) GetSnapshot(ctx context.Context, sessionID, key string) (*Snapshot, error) {
	raw, err := s.client.HGet(ctx, sessionHashKey(sessionID), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}

	return &Snapshot{
		ID:          rec.ID,
		SessionID:   sessionID,
		Key:         key,
		Data:        rec.Data,
		ContentHash: rec.ContentHash,
		UpdatedAt:   rec.UpdatedAt.UTC(),
	}, nil
}

// ListSnapshotKeys lists the hash fields of a session
func (s *RedisStore) ListSnapshotKeys(ctx context.Context, sessionID string) ([]string, error) {
	keys, err := s.client.HKeys(ctx, sessionHashKey(sessionID)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// DeleteSnapshot removes one hash field
func (s *RedisStore) DeleteSnapshot(ctx context.Context, sessionID, key string) error {
	return s.client.HDel(ctx, sessionHashKey(sessionID), key).Err()
}

// DeleteSession removes the whole session hash
func (s *RedisStore) DeleteSession(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, sessionHashKey(sessionID)).Err()
}

// PurgeExpired always reports zero; Redis expires session hashes on its own
func (s *RedisStore) PurgeExpired(ctx context.Context) (int64, error) {
	return 0, nil
}
