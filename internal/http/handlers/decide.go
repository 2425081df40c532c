package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/clinvia/whatsapp-engage/internal/clinic"
	"github.com/clinvia/whatsapp-engage/internal/conversation"
	"github.com/clinvia/whatsapp-engage/internal/session"
	"github.com/clinvia/whatsapp-engage/pkg/logging"
)

type channelLookup interface {
	Channel(ctx context.Context, clinicID uuid.UUID) (*clinic.Channel, error)
}

// DecideHandler exposes the AI Decision Engine as an internal service
// boundary. It always answers 200 with a well-formed action; internal failure
// modes surface as an escalate action, never an error status.
type DecideHandler struct {
	engine   decisionEngine
	channels channelLookup
	logger   *logging.Logger
}

func NewDecideHandler(engine decisionEngine, channels channelLookup, logger *logging.Logger) *DecideHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &DecideHandler{engine: engine, channels: channels, logger: logger}
}

type decideRequest struct {
	ClinicID  uuid.UUID      `json:"clinic_id"`
	SessionID uuid.UUID      `json:"session_id"`
	PatientID *uuid.UUID     `json:"patient_id,omitempty"`
	Message   string         `json:"message"`
	History   []session.Turn `json:"history,omitempty"`
}

// Decide handles POST /internal/ai/decide.
func (h *DecideHandler) Decide(w http.ResponseWriter, r *http.Request) {
	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ClinicID == uuid.Nil || req.Message == "" {
		http.Error(w, "clinic_id and message are required", http.StatusBadRequest)
		return
	}

	in := conversation.DecideInput{
		ClinicID:  req.ClinicID,
		SessionID: req.SessionID,
		PatientID: req.PatientID,
		Message:   req.Message,
		History:   req.History,
	}
	if ch, err := h.channels.Channel(r.Context(), req.ClinicID); err == nil {
		in.ModelID = ch.ModelID
		in.Timezone = ch.Timezone
	} else {
		h.logger.Warn("decide without channel config", "error", err, "clinic_id", req.ClinicID)
	}

	action := h.engine.Decide(r.Context(), in)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(action)
}
