package reminders

import (
	"context"
	"errors"
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

// Notification statuses.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// ChannelWhatsApp is the only delivery channel the core currently dispatches.
const ChannelWhatsApp = "whatsapp"

// LogEntry is the idempotency record for one reminder send attempt. A
// non-failed entry for (appointment, channel, kind) blocks re-sending; failed
// entries do not block retry.
type LogEntry struct {
	ClinicID          uuid.UUID
	AppointmentID     uuid.UUID
	PatientID         uuid.UUID
	Channel           string
	Kind              string
	Status            string
	Error             string
	ProviderMessageID string
}

// Store persists the notification log in Postgres.
type Store struct {
	pool pgxQuerier
}

func NewStore(pool pgxQuerier) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool}
}

// HasNonFailed reports whether a non-failed entry already exists for the
// (appointment, channel, kind) triple.
func (s *Store) HasNonFailed(ctx context.Context, appointmentID uuid.UUID, channel, kind string) (bool, error) {
	query := `
		SELECT 1 FROM notification_log
		WHERE appointment_id = $1 AND channel = $2 AND kind = $3 AND status <> 'failed'
		LIMIT 1
	`
	var exists int
	if err := s.pool.QueryRow(ctx, query, appointmentID, channel, kind).Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("reminders: check notification log: %w", err)
	}
	return true, nil
}

// Record appends a log entry for a send attempt.
func (s *Store) Record(ctx context.Context, entry LogEntry) error {
	query := `
		INSERT INTO notification_log (
			clinic_id, appointment_id, patient_id, channel, kind,
			status, error, provider_message_id
		)
		VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),NULLIF($8,''))
	`
	if _, err := s.pool.Exec(ctx, query, entry.ClinicID, entry.AppointmentID, entry.PatientID, entry.Channel, entry.Kind, entry.Status, entry.Error, entry.ProviderMessageID); err != nil {
		return fmt.Errorf("reminders: record notification: %w", err)
	}
	return nil
}
