// Package transport provides HTTP handlers for form snapshots.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pendergraft/dappkit/internal/formstate/domain"
	"github.com/pendergraft/dappkit/internal/observability/metrics"
)

// Service defines the form state service interface for HTTP transport.
type Service interface {
	NewSession(ctx context.Context) (string, error)
	SaveRaw(ctx context.Context, sessionID, path, formID string, data []byte) error
	GetRaw(ctx context.Context, sessionID, path, formID string) ([]byte, error)
	Keys(ctx context.Context, sessionID string) ([]string, error)
	ClearSession(ctx context.Context, sessionID string) error
}

// Handler handles HTTP requests for form snapshots.
type Handler struct {
	svc Service
}

// NewHandler creates a new snapshot HTTP handler.
func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers the session routes on a chi router mounted at /api/v1/sessions.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.handleCreateSession)
	r.Delete("/{sessionId}", h.handleDeleteSession)
	r.Put("/{sessionId}/snapshots", h.handlePutSnapshot)
	r.Get("/{sessionId}/snapshots", h.handleGetSnapshot)
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := h.svc.NewSession(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, SessionResponse{SessionID: id})
}

func (h *Handler) handlePutSnapshot(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	path := r.URL.Query().Get("path")
	formID := r.URL.Query().Get("form")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Failed to read request body")
		return
	}

	if err := h.svc.SaveRaw(r.Context(), sessionID, path, formID, body); err != nil {
		metrics.SnapshotSave("error", len(body))
		writeDomainError(w, err, "Failed to save snapshot")
		return
	}

	metrics.SnapshotSave("success", len(body))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	path := r.URL.Query().Get("path")

	// Without a path the caller wants the session's key listing
	if path == "" {
		keys, err := h.svc.Keys(r.Context(), sessionID)
		if err != nil {
			writeDomainError(w, err, "Failed to list snapshots")
			return
		}
		if keys == nil {
			keys = []string{}
		}
		writeJSON(w, http.StatusOK, KeysResponse{SessionID: sessionID, Keys: keys})
		return
	}

	data, err := h.svc.GetRaw(r.Context(), sessionID, path, r.URL.Query().Get("form"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.SnapshotGet("miss")
		} else {
			metrics.SnapshotGet("error")
		}
		writeDomainError(w, err, "Failed to get snapshot")
		return
	}

	metrics.SnapshotGet("hit")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearSession(r.Context(), chi.URLParam(r, "sessionId")); err != nil {
		metrics.SessionClear("error")
		writeDomainError(w, err, "Failed to delete session")
		return
	}
	metrics.SessionClear("success")
	w.WriteHeader(http.StatusNoContent)
}

func writeDomainError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Snapshot not found")
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrTooManyFields):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", fallback)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}
