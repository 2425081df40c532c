package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier abstracts a pgx pool or transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgxPool is the pool surface the store needs.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ErrDuplicateInbound signals the provider redelivered a message that was
// already persisted.
var ErrDuplicateInbound = errors.New("messaging: inbound message already processed")

// Directions and originators of a message row.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"

	OriginatorPatient   = "patient"
	OriginatorAI        = "ai"
	OriginatorAttendant = "attendant"
	OriginatorSystem    = "system"
)

// MessageRecord is one inbound or outbound unit within a session.
// Immutable after insert except for delivery status updates.
type MessageRecord struct {
	ID                uuid.UUID
	SessionID         uuid.UUID
	ClinicID          uuid.UUID
	Direction         string
	ProviderMessageID string
	Body              string
	Kind              string
	Originator        string
	DeliveryStatus    string
	CreatedAt         time.Time
}

// Store persists messages in Postgres.
type Store struct {
	pool PgxPool
}

func NewStore(pool PgxPool) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool}
}

// InsertMessage appends a message row and returns its id.
func (s *Store) InsertMessage(ctx context.Context, q Querier, rec MessageRecord) (uuid.UUID, error) {
	if q == nil {
		q = s.pool
	}
	query := `
		INSERT INTO messages (
			session_id, clinic_id, direction, provider_message_id,
			body, kind, originator, delivery_status
		)
		VALUES ($1,$2,$3,NULLIF($4,''),NULLIF($5,''),$6,$7,NULLIF($8,''))
		RETURNING id
	`
	var id uuid.UUID
	if err := q.QueryRow(ctx, query, rec.SessionID, rec.ClinicID, rec.Direction, rec.ProviderMessageID, rec.Body, rec.Kind, rec.Originator, rec.DeliveryStatus).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("messaging: insert message: %w", err)
	}
	return id, nil
}

// InsertInbound appends an inbound message row, deduplicating on the provider
// message id. Returns ErrDuplicateInbound when the provider redelivered an
// already-persisted message.
func (s *Store) InsertInbound(ctx context.Context, q Querier, rec MessageRecord) (uuid.UUID, error) {
	if q == nil {
		q = s.pool
	}
	query := `
		INSERT INTO messages (
			session_id, clinic_id, direction, provider_message_id,
			body, kind, originator, delivery_status
		)
		VALUES ($1,$2,'inbound',NULLIF($3,''),NULLIF($4,''),$5,$6,NULL)
		ON CONFLICT (provider_message_id) WHERE direction = 'inbound' AND provider_message_id IS NOT NULL
		DO NOTHING
		RETURNING id
	`
	var id uuid.UUID
	if err := q.QueryRow(ctx, query, rec.SessionID, rec.ClinicID, rec.ProviderMessageID, rec.Body, rec.Kind, rec.Originator).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrDuplicateInbound
		}
		return uuid.Nil, fmt.Errorf("messaging: insert inbound message: %w", err)
	}
	return id, nil
}

// UpdateDeliveryStatus applies a provider status callback, matched by provider
// message id within the clinic.
func (s *Store) UpdateDeliveryStatus(ctx context.Context, clinicID uuid.UUID, providerMessageID, status string) error {
	if providerMessageID == "" {
		return nil
	}
	query := `
		UPDATE messages
		SET delivery_status = $3
		WHERE clinic_id = $1 AND provider_message_id = $2 AND direction = 'outbound'
	`
	if _, err := s.pool.Exec(ctx, query, clinicID, providerMessageID, status); err != nil {
		return fmt.Errorf("messaging: update delivery status: %w", err)
	}
	return nil
}

// ListBySession returns a session's messages ordered oldest first.
func (s *Store) ListBySession(ctx context.Context, sessionID uuid.UUID, limit int) ([]MessageRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, session_id, clinic_id, direction,
			COALESCE(provider_message_id, ''), COALESCE(body, ''),
			kind, originator, COALESCE(delivery_status, ''), created_at
		FROM messages
		WHERE session_id = $1
		ORDER BY created_at ASC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("messaging: list session messages: %w", err)
	}
	defer rows.Close()
	var out []MessageRecord
	for rows.Next() {
		var rec MessageRecord
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.ClinicID, &rec.Direction, &rec.ProviderMessageID, &rec.Body, &rec.Kind, &rec.Originator, &rec.DeliveryStatus, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("messaging: scan session message: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
