package clinicdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrAppointmentNotFound indicates the appointment does not exist within the
// clinic's scope.
var ErrAppointmentNotFound = errors.New("clinicdata: appointment not found")

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads patients and appointments from the clinic application's tables.
type Store struct {
	pool pgxQuerier
}

func NewStore(pool pgxQuerier) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool}
}

// FindPatientByPhoneSuffix fuzzy-matches a patient within the clinic by the
// trailing nine digits of a phone number, tolerating country code, area code
// and formatting drift. Absence of a match is not an error; the conversation
// proceeds patient-less.
func (s *Store) FindPatientByPhoneSuffix(ctx context.Context, clinicID uuid.UUID, lastNine string) (*Patient, error) {
	if lastNine == "" {
		return nil, nil
	}
	query := `
		SELECT id, clinic_id, name, COALESCE(phone, '')
		FROM patients
		WHERE clinic_id = $1
			AND RIGHT(regexp_replace(COALESCE(phone, ''), '\D', '', 'g'), 9) = $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	var p Patient
	if err := s.pool.QueryRow(ctx, query, clinicID, lastNine).Scan(&p.ID, &p.ClinicID, &p.Name, &p.Phone); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("clinicdata: find patient by phone suffix: %w", err)
	}
	return &p, nil
}

// UpcomingAppointments returns the patient's nearest future appointments with
// status scheduled or confirmed, soonest first.
func (s *Store) UpcomingAppointments(ctx context.Context, clinicID, patientID uuid.UUID, limit int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 3
	}
	query := `
		SELECT a.id, a.clinic_id, a.patient_id, COALESCE(a.professional_name, ''), a.starts_at, a.status
		FROM appointments a
		WHERE a.clinic_id = $1
			AND a.patient_id = $2
			AND a.status IN ('scheduled', 'confirmed')
			AND a.starts_at > now()
		ORDER BY a.starts_at ASC
		LIMIT $3
	`
	rows, err := s.pool.Query(ctx, query, clinicID, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("clinicdata: list upcoming appointments: %w", err)
	}
	defer rows.Close()
	var out []Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.ClinicID, &a.PatientID, &a.ProfessionalName, &a.StartsAt, &a.Status); err != nil {
			return nil, fmt.Errorf("clinicdata: scan appointment: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateAppointmentStatus sets an appointment's status scoped to the clinic.
func (s *Store) UpdateAppointmentStatus(ctx context.Context, clinicID, appointmentID uuid.UUID, status string) error {
	query := `UPDATE appointments SET status = $3, updated_at = now() WHERE clinic_id = $1 AND id = $2`
	ct, err := s.pool.Exec(ctx, query, clinicID, appointmentID, status)
	if err != nil {
		return fmt.Errorf("clinicdata: update appointment status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s in clinic %s", ErrAppointmentNotFound, appointmentID, clinicID)
	}
	return nil
}

// ReminderCandidates lists appointments across all clinics whose start time
// falls inside the UTC window, with status scheduled or confirmed and a
// patient phone on file.
func (s *Store) ReminderCandidates(ctx context.Context, from, to time.Time, limit int) ([]ReminderCandidate, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `
		SELECT a.id, a.clinic_id, a.patient_id, COALESCE(a.professional_name, ''), a.starts_at, a.status,
			p.name, COALESCE(p.phone, '')
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		WHERE a.starts_at >= $1 AND a.starts_at < $2
			AND a.status IN ('scheduled', 'confirmed')
			AND COALESCE(p.phone, '') <> ''
		ORDER BY a.starts_at ASC
		LIMIT $3
	`
	rows, err := s.pool.Query(ctx, query, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("clinicdata: list reminder candidates: %w", err)
	}
	defer rows.Close()
	var out []ReminderCandidate
	for rows.Next() {
		var c ReminderCandidate
		if err := rows.Scan(&c.ID, &c.ClinicID, &c.PatientID, &c.ProfessionalName, &c.StartsAt, &c.Status, &c.PatientName, &c.PatientPhone); err != nil {
			return nil, fmt.Errorf("clinicdata: scan reminder candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
