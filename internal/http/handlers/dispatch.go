package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/clinvia/whatsapp-engage/internal/messaging"
	"github.com/clinvia/whatsapp-engage/pkg/logging"
)

// DispatchHandler exposes the Message Dispatcher as an internal service
// boundary.
type DispatchHandler struct {
	dispatcher messageDispatcher
	logger     *logging.Logger
}

func NewDispatchHandler(dispatcher messageDispatcher, logger *logging.Logger) *DispatchHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &DispatchHandler{dispatcher: dispatcher, logger: logger}
}

type dispatchRequest struct {
	ClinicID    uuid.UUID                    `json:"clinic_id"`
	SessionID   *uuid.UUID                   `json:"session_id,omitempty"`
	Originator  string                       `json:"originator"`
	To          string                       `json:"to"`
	Kind        string                       `json:"kind"`
	Text        messaging.TextPayload        `json:"text,omitempty"`
	Template    messaging.TemplatePayload    `json:"template,omitempty"`
	Interactive messaging.InteractivePayload `json:"interactive,omitempty"`
}

type dispatchResponse struct {
	ProviderMessageID string `json:"provider_message_id"`
}

// Send handles POST /internal/messages/send.
func (h *DispatchHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ClinicID == uuid.Nil || req.To == "" || req.Kind == "" {
		http.Error(w, "clinic_id, to and kind are required", http.StatusBadRequest)
		return
	}
	if req.Originator == "" {
		req.Originator = messaging.OriginatorSystem
	}

	providerID, err := h.dispatcher.Send(r.Context(), messaging.SendRequest{
		ClinicID:    req.ClinicID,
		SessionID:   req.SessionID,
		Originator:  req.Originator,
		To:          req.To,
		Kind:        req.Kind,
		Text:        req.Text,
		Template:    req.Template,
		Interactive: req.Interactive,
	})
	if err != nil {
		h.logger.Error("dispatch send failed", "error", err, "clinic_id", req.ClinicID, "kind", req.Kind)
		http.Error(w, err.Error(), dispatchStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(dispatchResponse{ProviderMessageID: providerID})
}

// dispatchStatus maps the error taxonomy onto HTTP statuses: missing config is
// the caller's problem, provider rejection is upstream's.
func dispatchStatus(err error) int {
	var providerErr *messaging.ProviderError
	switch {
	case errors.Is(err, messaging.ErrChannelDisabled):
		return http.StatusForbidden
	case errors.Is(err, messaging.ErrChannelUnconfigured):
		return http.StatusUnprocessableEntity
	case errors.As(err, &providerErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
