package domain

import (
	"context"
	"log/slog"
	"time"
)

// LoggingMiddleware returns a service middleware that logs all operations.
func LoggingMiddleware(logger *slog.Logger) func(Service) Service {
	return func(next Service) Service {
		return &loggingMiddleware{
			next:   next,
			logger: logger,
		}
	}
}

type loggingMiddleware struct {
	next   Service
	logger *slog.Logger
}

func (m *loggingMiddleware) NewSession(ctx context.Context) (string, error) {
	id, err := m.next.NewSession(ctx)
	m.logger.Info("NewSession", "session", id, "error", err)
	return id, err
}

func (m *loggingMiddleware) Save(ctx context.Context, sessionID, path string, form *Form) error {
	start := time.Now()
	err := m.next.Save(ctx, sessionID, path, form)
	fields := 0
	if form != nil {
		fields = len(form.Fields)
	}
	m.logger.Info("Save",
		"session", sessionID,
		"path", path,
		"fields", fields,
		"duration", time.Since(start),
		"error", err,
	)
	return err
}

func (m *loggingMiddleware) Restore(ctx context.Context, sessionID, path string, form *Form) (int, error) {
	start := time.Now()
	n, err := m.next.Restore(ctx, sessionID, path, form)
	m.logger.Debug("Restore",
		"session", sessionID,
		"path", path,
		"restored", n,
		"duration", time.Since(start),
		"error", err,
	)
	return n, err
}

func (m *loggingMiddleware) SaveRaw(ctx context.Context, sessionID, path, formID string, data []byte) error {
	start := time.Now()
	err := m.next.SaveRaw(ctx, sessionID, path, formID, data)
	m.logger.Info("SaveRaw",
		"session", sessionID,
		"path", path,
		"form", formID,
		"bytes", len(data),
		"duration", time.Since(start),
		"error", err,
	)
	return err
}

func (m *loggingMiddleware) GetRaw(ctx context.Context, sessionID, path, formID string) ([]byte, error) {
	start := time.Now()
	data, err := m.next.GetRaw(ctx, sessionID, path, formID)
	m.logger.Debug("GetRaw",
		"session", sessionID,
		"path", path,
		"form", formID,
		"duration", time.Since(start),
		"error", err,
	)
	return data, err
}

func (m *loggingMiddleware) Keys(ctx context.Context, sessionID string) ([]string, error) {
	start := time.Now()
	keys, err := m.next.Keys(ctx, sessionID)
	m.logger.Debug("Keys",
		"session", sessionID,
		"count", len(keys),
		"duration", time.Since(start),
		"error", err,
	)
	return keys, err
}

func (m *loggingMiddleware) ClearSession(ctx context.Context, sessionID string) error {
	start := time.Now()
	err := m.next.ClearSession(ctx, sessionID)
	m.logger.Info("ClearSession",
		"session", sessionID,
		"duration", time.Since(start),
		"error", err,
	)
	return err
}
