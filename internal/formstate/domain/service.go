package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pendergraft/dappkit/internal/storage"
	"github.com/pendergraft/dappkit/internal/validation"
)

// Common errors returned by the form state service.
var (
	ErrNotFound       = errors.New("snapshot not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrTooManyFields  = errors.New("too many fields")
)

// Store is the subset of storage the service needs.
type Store interface {
	SaveSnapshot(ctx context.Context, sessionID, key string, data []byte, ttl time.Duration) error
	GetSnapshot(ctx context.Context, sessionID, key string) (*storage.Snapshot, error)
	ListSnapshotKeys(ctx context.Context, sessionID string) ([]string, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// Service defines the form state service interface.
type Service interface {
	// NewSession allocates a session id. Nothing is stored until the first save.
	NewSession(ctx context.Context) (string, error)

	// Save snapshots every named field of form under path, replacing any previous snapshot.
	Save(ctx context.Context, sessionID, path string, form *Form) error

	// Restore writes the stored snapshot back into form and returns how many fields it set.
	// A missing or malformed snapshot restores nothing and is not an error.
	Restore(ctx context.Context, sessionID, path string, form *Form) (int, error)

	// SaveRaw stores an already encoded snapshot after checking its shape.
	SaveRaw(ctx context.Context, sessionID, path, formID string, data []byte) error

	// GetRaw returns the stored bytes as they were saved.
	GetRaw(ctx context.Context, sessionID, path, formID string) ([]byte, error)

	// Keys lists the snapshot keys of a session.
	Keys(ctx context.Context, sessionID string) ([]string, error)

	// ClearSession removes every snapshot of a session.
	ClearSession(ctx context.Context, sessionID string) error
}

// Options configures the service.
type Options struct {
	SessionTTL time.Duration
	MaxFields  int
}

type service struct {
	store Store
	opts  Options
}

// NewService creates a new form state service.
func NewService(store Store, opts Options) Service {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 30 * time.Minute
	}
	return &service{store: store, opts: opts}
}

func (s *service) NewSession(ctx context.Context) (string, error) {
	return uuid.New().String(), nil
}

func (s *service) Save(ctx context.Context, sessionID, path string, form *Form) error {
	if form == nil {
		return fmt.Errorf("%w: form is required", ErrInvalidRequest)
	}
	data, err := json.Marshal(form.Values())
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return s.SaveRaw(ctx, sessionID, path, form.Identity(), data)
}

func (s *service) Restore(ctx context.Context, sessionID, path string, form *Form) (int, error) {
	if form == nil {
		return 0, fmt.Errorf("%w: form is required", ErrInvalidRequest)
	}

	data, err := s.GetRaw(ctx, sessionID, path, form.Identity())
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	return form.Apply(data), nil
}

func (s *service) SaveRaw(ctx context.Context, sessionID, path, formID string, data []byte) error {
	if err := validateTarget(sessionID, path, formID); err != nil {
		return err
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("%w: snapshot must be a JSON object of strings", ErrInvalidRequest)
	}
	if snap == nil {
		return fmt.Errorf("%w: snapshot must be a JSON object of strings", ErrInvalidRequest)
	}
	if s.opts.MaxFields > 0 && len(snap) > s.opts.MaxFields {
		return fmt.Errorf("%w: %d fields, limit is %d", ErrTooManyFields, len(snap), s.opts.MaxFields)
	}

	if err := s.store.SaveSnapshot(ctx, sessionID, keyFor(path, formID), data, s.opts.SessionTTL); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	return nil
}

func (s *service) GetRaw(ctx context.Context, sessionID, path, formID string) ([]byte, error) {
	if err := validateTarget(sessionID, path, formID); err != nil {
		return nil, err
	}

	snap, err := s.store.GetSnapshot(ctx, sessionID, keyFor(path, formID))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting snapshot: %w", err)
	}
	return snap.Data, nil
}

func (s *service) Keys(ctx context.Context, sessionID string) ([]string, error) {
	if err := validation.ValidateSessionID(sessionID); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	keys, err := s.store.ListSnapshotKeys(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	return keys, nil
}

func (s *service) ClearSession(ctx context.Context, sessionID string) error {
	if err := validation.ValidateSessionID(sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := s.store.DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func validateTarget(sessionID, path, formID string) error {
	if err := validation.ValidateSessionID(sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := validation.ValidatePagePath(path); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := validation.ValidateFormID(formID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}
