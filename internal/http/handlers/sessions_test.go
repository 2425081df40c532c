package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinvia/whatsapp-engage/internal/session"
)

type fakeSessionReader struct {
	sess     *session.Session
	statuses []string
	drafts   []string
}

func (f *fakeSessionReader) Get(context.Context, uuid.UUID) (*session.Session, error) {
	if f.sess == nil {
		return nil, fmt.Errorf("session: load: %w", pgx.ErrNoRows)
	}
	return f.sess, nil
}

func (f *fakeSessionReader) SetStatus(_ context.Context, _ uuid.UUID, status string) error {
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeSessionReader) SetDraft(_ context.Context, _ uuid.UUID, draft string) error {
	f.drafts = append(f.drafts, draft)
	return nil
}

func sessionsRouter(h *SessionHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/internal/sessions/{id}/takeover", h.Takeover)
	r.Post("/internal/sessions/{id}/resolve", h.Resolve)
	return r
}

func TestSessionTakeover(t *testing.T) {
	id := uuid.New()
	reader := &fakeSessionReader{sess: &session.Session{ID: id, Status: session.StatusAI}}
	r := sessionsRouter(NewSessionHandler(reader, nil))

	req := httptest.NewRequest(http.MethodPost, "/internal/sessions/"+id.String()+"/takeover", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(reader.statuses) != 1 || reader.statuses[0] != session.StatusHuman {
		t.Fatalf("expected transition to human, got %v", reader.statuses)
	}
	if len(reader.drafts) != 0 {
		t.Errorf("takeover must keep the draft, got %v", reader.drafts)
	}
}

func TestSessionResolveClearsDraft(t *testing.T) {
	id := uuid.New()
	reader := &fakeSessionReader{sess: &session.Session{ID: id, Status: session.StatusHuman}}
	r := sessionsRouter(NewSessionHandler(reader, nil))

	req := httptest.NewRequest(http.MethodPost, "/internal/sessions/"+id.String()+"/resolve", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(reader.statuses) != 1 || reader.statuses[0] != session.StatusResolved {
		t.Fatalf("expected transition to resolved, got %v", reader.statuses)
	}
	if len(reader.drafts) != 1 || reader.drafts[0] != "" {
		t.Fatalf("resolve must clear the draft, got %v", reader.drafts)
	}
}

func TestSessionNotFound(t *testing.T) {
	r := sessionsRouter(NewSessionHandler(&fakeSessionReader{}, nil))

	req := httptest.NewRequest(http.MethodPost, "/internal/sessions/"+uuid.NewString()+"/takeover", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSessionInvalidID(t *testing.T) {
	r := sessionsRouter(NewSessionHandler(&fakeSessionReader{}, nil))

	req := httptest.NewRequest(http.MethodPost, "/internal/sessions/not-a-uuid/resolve", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
