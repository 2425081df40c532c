// Package clinicdata provides the messaging core's read/write contracts over
// the clinic application's patient and appointment rows. Everything here is
// read-only except the two appointment status writes driven by AI actions.
package clinicdata

import (
	"time"

	"github.com/google/uuid"
)

// Appointment statuses the messaging core touches.
const (
	AppointmentScheduled = "scheduled"
	AppointmentConfirmed = "confirmed"
	AppointmentCancelled = "cancelled"
)

// Patient is the slice of a patient row the core needs.
type Patient struct {
	ID       uuid.UUID
	ClinicID uuid.UUID
	Name     string
	Phone    string
}

// Appointment is the slice of an appointment row the core needs.
type Appointment struct {
	ID               uuid.UUID
	ClinicID         uuid.UUID
	PatientID        uuid.UUID
	ProfessionalName string
	StartsAt         time.Time
	Status           string
}

// ReminderCandidate joins an appointment with its patient's contact details
// for the reminder batch.
type ReminderCandidate struct {
	Appointment
	PatientName  string
	PatientPhone string
}
