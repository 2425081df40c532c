package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists sessions in Postgres.
type Store struct {
	pool pgxQuerier
}

func NewStore(pool pgxQuerier) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool}
}

const sessionColumns = `
	id, clinic_id, patient_id, phone, status,
	COALESCE(draft, ''), context, last_activity_at, created_at
`

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	var contextRaw []byte
	if err := row.Scan(&s.ID, &s.ClinicID, &s.PatientID, &s.Phone, &s.Status, &s.Draft, &contextRaw, &s.LastActivityAt, &s.CreatedAt); err != nil {
		return nil, err
	}
	if len(contextRaw) > 0 {
		if err := json.Unmarshal(contextRaw, &s.Context); err != nil {
			return nil, fmt.Errorf("decode context window: %w", err)
		}
	}
	return &s, nil
}

// FindOrCreate returns the open session for (clinic, phone), creating one with
// status ai and an empty context when none exists. The write is a single
// atomic upsert against the partial unique index on open sessions, so two
// near-simultaneous inbound messages coalesce onto one row.
func (s *Store) FindOrCreate(ctx context.Context, clinicID uuid.UUID, patientID *uuid.UUID, phone string) (*Session, error) {
	query := `
		INSERT INTO sessions (clinic_id, patient_id, phone, status, context)
		VALUES ($1, $2, $3, 'ai', '[]'::jsonb)
		ON CONFLICT (clinic_id, phone) WHERE status <> 'resolved'
		DO UPDATE SET
			last_activity_at = now(),
			patient_id = COALESCE(sessions.patient_id, EXCLUDED.patient_id)
		RETURNING ` + sessionColumns
	sess, err := scanSession(s.pool.QueryRow(ctx, query, clinicID, patientID, phone))
	if err != nil {
		return nil, fmt.Errorf("session: find or create for clinic %s: %w", clinicID, err)
	}
	return sess, nil
}

// Get loads a session by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	sess, err := scanSession(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("session: load %s: %w", id, err)
	}
	return sess, nil
}

// AppendContext appends turns to the rolling context window, truncating to the
// last ContextWindowCap entries oldest-first, in one statement.
func (s *Store) AppendContext(ctx context.Context, id uuid.UUID, turns []Turn) error {
	if len(turns) == 0 {
		return nil
	}
	raw, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("session: encode turns: %w", err)
	}
	query := `
		UPDATE sessions
		SET context = (
			SELECT COALESCE(jsonb_agg(elem ORDER BY ord), '[]'::jsonb)
			FROM (
				SELECT elem, ord
				FROM jsonb_array_elements(sessions.context || $2::jsonb) WITH ORDINALITY AS t(elem, ord)
				ORDER BY ord DESC
				LIMIT $3
			) tail
		),
		last_activity_at = now()
		WHERE id = $1
	`
	if _, err := s.pool.Exec(ctx, query, id, raw, ContextWindowCap); err != nil {
		return fmt.Errorf("session: append context: %w", err)
	}
	return nil
}

// SetStatus transitions the session's status.
func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, status string) error {
	query := `UPDATE sessions SET status = $2, last_activity_at = now() WHERE id = $1`
	if _, err := s.pool.Exec(ctx, query, id, status); err != nil {
		return fmt.Errorf("session: set status: %w", err)
	}
	return nil
}

// SetDraft stores the operator-facing AI draft. An empty string clears it.
func (s *Store) SetDraft(ctx context.Context, id uuid.UUID, draft string) error {
	query := `UPDATE sessions SET draft = NULLIF($2, '') WHERE id = $1`
	if _, err := s.pool.Exec(ctx, query, id, draft); err != nil {
		return fmt.Errorf("session: set draft: %w", err)
	}
	return nil
}

// Touch refreshes the session's last-activity timestamp.
func (s *Store) Touch(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE sessions SET last_activity_at = now() WHERE id = $1`
	if _, err := s.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("session: touch: %w", err)
	}
	return nil
}
