package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memorySession struct {
	expiresAt time.Time
	snapshots map[string]*Snapshot
}

// MemoryStore implements Store in process memory
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
	now      clock
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memorySession),
		now:      systemClock,
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error    { return nil }
func (s *MemoryStore) Close() error                      { return nil }
func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }

// live returns the session if it exists and has not expired. Caller holds the lock.
func (s *MemoryStore) live(sessionID string) (*memorySession, bool) {
	sess, ok := s.sessions[sessionID]
	if !ok || !s.now().Before(sess.expiresAt) {
		return nil, false
	}
	return sess, true
}

func (s *MemoryStore) SaveSnapshot(ctx context.Context, sessionID, key string, data []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrNoTTL
	}
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.live(sessionID)
	if !ok {
		sess = &memorySession{snapshots: make(map[string]*Snapshot)}
		s.sessions[sessionID] = sess
	}
	sess.expiresAt = now.Add(ttl)

	buf := make([]byte, len(data))
	copy(buf, data)

	id := generateID()
	if prev, exists := sess.snapshots[key]; exists {
		id = prev.ID
	}
	sess.snapshots[key] = &Snapshot{
		ID:          id,
		SessionID:   sessionID,
		Key:         key,
		Data:        buf,
		ContentHash: computeHash(buf),
		UpdatedAt:   now,
	}
	return nil
}

func (s *MemoryStore) GetSnapshot(ctx context.Context, sessionID, key string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.live(sessionID)
	if !ok {
		return nil, ErrNotFound
	}
	snap, ok := sess.snapshots[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := *snap
	out.Data = append([]byte(nil), snap.Data...)
	return &out, nil
}

func (s *MemoryStore) ListSnapshotKeys(ctx context.Context, sessionID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.live(sessionID)
	if !ok {
		return nil, nil
	}
	keys := make([]string, 0, len(sess.snapshots))
	for k := range sess.snapshots {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemoryStore) DeleteSnapshot(ctx context.Context, sessionID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[sessionID]; ok {
		delete(sess.snapshots, key)
	}
	return nil
}

func (s *MemoryStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

func (s *MemoryStore) PurgeExpired(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var n int64
	for id, sess := range s.sessions {
		if !now.Before(sess.expiresAt) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}
