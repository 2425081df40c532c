package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinvia/whatsapp-engage/internal/session"
	"github.com/clinvia/whatsapp-engage/pkg/logging"
)

type sessionReader interface {
	Get(ctx context.Context, id uuid.UUID) (*session.Session, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
	SetDraft(ctx context.Context, id uuid.UUID, draft string) error
}

// SessionHandler covers the operator actions on a session: taking over a
// conversation and resolving it.
type SessionHandler struct {
	sessions sessionReader
	logger   *logging.Logger
}

func NewSessionHandler(sessions sessionReader, logger *logging.Logger) *SessionHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &SessionHandler{sessions: sessions, logger: logger}
}

type sessionResponse struct {
	ID     uuid.UUID `json:"id"`
	Status string    `json:"status"`
}

// Takeover handles POST /internal/sessions/{id}/takeover. It moves the
// session to human ownership so the router stops auto-replying.
func (h *SessionHandler) Takeover(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, session.StatusHuman)
}

// Resolve handles POST /internal/sessions/{id}/resolve. It closes the session
// and clears any pending draft; the next inbound message from the same phone
// starts a fresh session.
func (h *SessionHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, session.StatusResolved)
}

func (h *SessionHandler) transition(w http.ResponseWriter, r *http.Request, status string) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid session id", http.StatusBadRequest)
		return
	}

	if _, err := h.sessions.Get(r.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		h.logger.Error("session lookup failed", "error", err, "session_id", id)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if err := h.sessions.SetStatus(r.Context(), id, status); err != nil {
		h.logger.Error("session transition failed", "error", err, "session_id", id, "status", status)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if status == session.StatusResolved {
		if err := h.sessions.SetDraft(r.Context(), id, ""); err != nil {
			h.logger.Warn("failed to clear draft on resolve", "error", err, "session_id", id)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sessionResponse{ID: id, Status: status})
}
