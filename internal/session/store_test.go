package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func sessionRows(id, clinicID uuid.UUID, patientID *uuid.UUID, phone, status, draft string, contextRaw []byte) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows([]string{
		"id", "clinic_id", "patient_id", "phone", "status", "draft", "context", "last_activity_at", "created_at",
	}).AddRow(id, clinicID, patientID, phone, status, draft, contextRaw, now, now)
}

func TestFindOrCreateReturnsOpenSession(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	clinicID := uuid.New()
	sessionID := uuid.New()
	patientID := uuid.New()
	phone := "5511999998888"

	mock.ExpectQuery("INSERT INTO sessions").
		WithArgs(clinicID, &patientID, phone).
		WillReturnRows(sessionRows(sessionID, clinicID, &patientID, phone, StatusAI, "", []byte(`[]`)))

	store := NewStore(mock)
	sess, err := store.FindOrCreate(context.Background(), clinicID, &patientID, phone)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if sess.ID != sessionID {
		t.Errorf("unexpected session id %s", sess.ID)
	}
	if sess.Status != StatusAI {
		t.Errorf("expected new session to start in ai, got %s", sess.Status)
	}
	if len(sess.Context) != 0 {
		t.Errorf("expected empty context window, got %d turns", len(sess.Context))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGetDecodesContextWindow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	sessionID := uuid.New()
	turns := []Turn{
		{Role: RoleUser, Content: "quero confirmar"},
		{Role: RoleAssistant, Content: "Confirmado!"},
	}
	raw, _ := json.Marshal(turns)

	mock.ExpectQuery("SELECT (.+) FROM sessions").
		WithArgs(sessionID).
		WillReturnRows(sessionRows(sessionID, uuid.New(), nil, "5511988887777", StatusHuman, "rascunho", raw))

	store := NewStore(mock)
	sess, err := store.Get(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(sess.Context) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(sess.Context))
	}
	if sess.Context[1].Role != RoleAssistant {
		t.Errorf("unexpected turn order: %+v", sess.Context)
	}
	if sess.Draft != "rascunho" {
		t.Errorf("unexpected draft %q", sess.Draft)
	}
}

func TestGetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM sessions").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	store := NewStore(mock)
	if _, err := store.Get(context.Background(), id); !errors.Is(err, pgx.ErrNoRows) {
		t.Fatalf("expected wrapped pgx.ErrNoRows, got %v", err)
	}
}

func TestAppendContextCapsWindow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	turns := []Turn{
		{Role: RoleUser, Content: "oi"},
		{Role: RoleAssistant, Content: "Olá!"},
	}
	raw, _ := json.Marshal(turns)

	mock.ExpectExec("UPDATE sessions").
		WithArgs(id, raw, ContextWindowCap).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	store := NewStore(mock)
	if err := store.AppendContext(context.Background(), id, turns); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestAppendContextNoTurnsIsNoop(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	store := NewStore(mock)
	if err := store.AppendContext(context.Background(), uuid.New(), nil); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expected no queries: %v", err)
	}
}

func TestSetStatusAndDraft(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE sessions SET status").
		WithArgs(id, StatusHuman).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE sessions SET draft").
		WithArgs(id, "Posso ajudar?").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	store := NewStore(mock)
	if err := store.SetStatus(context.Background(), id, StatusHuman); err != nil {
		t.Fatalf("set status: %v", err)
	}
	if err := store.SetDraft(context.Background(), id, "Posso ajudar?"); err != nil {
		t.Fatalf("set draft: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
