// Package session manages conversation sessions between a clinic and one
// counterparty phone number. A session's status governs whether automation or
// a human responds.
package session

import (
	"time"

	"github.com/google/uuid"
)

// Session statuses. AI-handled sessions escalate one-way to human-handled;
// resolved is terminal and a later inbound message starts a fresh session.
const (
	StatusAI       = "ai"
	StatusHuman    = "human"
	StatusResolved = "resolved"
)

// Turn roles inside the rolling context window.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ContextWindowCap bounds the rolling context window.
const ContextWindowCap = 10

// Turn is one entry in the rolling context window.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is one ongoing or past conversation.
type Session struct {
	ID             uuid.UUID
	ClinicID       uuid.UUID
	PatientID      *uuid.UUID
	Phone          string
	Status         string
	Draft          string
	Context        []Turn
	LastActivityAt time.Time
	CreatedAt      time.Time
}

// Active reports whether the session is still open.
func (s *Session) Active() bool {
	return s.Status != StatusResolved
}
