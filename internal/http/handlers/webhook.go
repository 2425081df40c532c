package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/clinvia/whatsapp-engage/internal/clinic"
	"github.com/clinvia/whatsapp-engage/internal/clinicdata"
	"github.com/clinvia/whatsapp-engage/internal/conversation"
	"github.com/clinvia/whatsapp-engage/internal/messaging"
	observemetrics "github.com/clinvia/whatsapp-engage/internal/observability/metrics"
	"github.com/clinvia/whatsapp-engage/internal/session"
	"github.com/clinvia/whatsapp-engage/pkg/logging"
)

type channelResolver interface {
	ChannelByPhoneNumberID(ctx context.Context, phoneNumberID string) (*clinic.Channel, error)
	ChannelByVerifyToken(ctx context.Context, token string) (*clinic.Channel, error)
}

type sessionStore interface {
	FindOrCreate(ctx context.Context, clinicID uuid.UUID, patientID *uuid.UUID, phone string) (*session.Session, error)
	AppendContext(ctx context.Context, id uuid.UUID, turns []session.Turn) error
	SetStatus(ctx context.Context, id uuid.UUID, status string) error
	SetDraft(ctx context.Context, id uuid.UUID, draft string) error
	Touch(ctx context.Context, id uuid.UUID) error
}

type patientFinder interface {
	FindPatientByPhoneSuffix(ctx context.Context, clinicID uuid.UUID, lastNine string) (*clinicdata.Patient, error)
}

type appointmentWriter interface {
	UpdateAppointmentStatus(ctx context.Context, clinicID, appointmentID uuid.UUID, status string) error
}

type decisionEngine interface {
	Decide(ctx context.Context, in conversation.DecideInput) conversation.Action
}

type messageDispatcher interface {
	Send(ctx context.Context, req messaging.SendRequest) (string, error)
}

type escalationNotifier interface {
	NotifyEscalation(ctx context.Context, clinicID uuid.UUID, sess *session.Session, draft string)
}

// WebhookHandler is the entry point for inbound WhatsApp provider events:
// the verification handshake, delivery-status updates and new inbound
// messages.
type WebhookHandler struct {
	channels     channelResolver
	messages     *messaging.Store
	sessions     sessionStore
	patients     patientFinder
	appointments appointmentWriter
	engine       decisionEngine
	dispatcher   messageDispatcher
	notifier     escalationNotifier
	appSecret    string
	metrics      *observemetrics.MessagingMetrics
	logger       *logging.Logger
}

type WebhookConfig struct {
	Channels     channelResolver
	Messages     *messaging.Store
	Sessions     sessionStore
	Patients     patientFinder
	Appointments appointmentWriter
	Engine       decisionEngine
	Dispatcher   messageDispatcher
	Notifier     escalationNotifier
	AppSecret    string
	Metrics      *observemetrics.MessagingMetrics
	Logger       *logging.Logger
}

func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &WebhookHandler{
		channels:     cfg.Channels,
		messages:     cfg.Messages,
		sessions:     cfg.Sessions,
		patients:     cfg.Patients,
		appointments: cfg.Appointments,
		engine:       cfg.Engine,
		dispatcher:   cfg.Dispatcher,
		notifier:     cfg.Notifier,
		appSecret:    cfg.AppSecret,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
	}
}

// HandleVerify answers the provider's verification handshake. Idempotent, no
// side effects: echo the challenge when an enabled clinic's verify token
// matches, reject otherwise.
func (h *WebhookHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")
	if mode != "subscribe" || token == "" {
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	if _, err := h.channels.ChannelByVerifyToken(r.Context(), token); err != nil {
		h.logger.Warn("webhook verification rejected", "error", err)
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(challenge))
}

// HandleEvents processes the provider's event envelope. Once the signature is
// validated the response is always 200 "OK" regardless of per-message
// processing outcome; a non-200 would make the provider redeliver the whole
// batch.
func (h *WebhookHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if err := messaging.VerifySignature(h.appSecret, r.Header.Get("X-Hub-Signature-256"), body); err != nil {
		h.logger.Warn("invalid webhook signature", "error", err)
		http.Error(w, "invalid signature", http.StatusForbidden)
		return
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		h.logger.Warn("malformed webhook envelope", "error", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	for _, entry := range envelope.Entry {
		for _, change := range entry.Changes {
			if change.Field != "messages" {
				continue
			}
			h.processChange(r.Context(), change.Value)
		}
	}

	h.metrics.ObserveWebhookLatency("messages", time.Since(start).Seconds())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *WebhookHandler) processChange(ctx context.Context, value changeValue) {
	ch, err := h.channels.ChannelByPhoneNumberID(ctx, value.Metadata.PhoneNumberID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			h.logger.Warn("no enabled clinic for phone number id", "phone_number_id", value.Metadata.PhoneNumberID)
		} else {
			h.logger.Error("failed to resolve clinic channel", "error", err, "phone_number_id", value.Metadata.PhoneNumberID)
		}
		h.metrics.ObserveInbound("messages", "unmatched_channel")
		return
	}

	for _, st := range value.Statuses {
		if err := h.messages.UpdateDeliveryStatus(ctx, ch.ClinicID, st.ID, st.Status); err != nil {
			h.logger.Error("failed to apply delivery status", "error", err, "clinic_id", ch.ClinicID, "provider_message_id", st.ID)
		}
		h.metrics.ObserveInbound("status", st.Status)
	}

	for _, msg := range value.Messages {
		h.processInbound(ctx, ch, msg)
	}
}

// processInbound runs the per-message procedure. Failures are logged and
// dropped; they never fail the webhook response.
func (h *WebhookHandler) processInbound(ctx context.Context, ch *clinic.Channel, msg inboundMessage) {
	text, kind, ok := inboundText(msg)
	if !ok {
		// Unsupported content kinds (media, location, ...) are dropped.
		h.logger.Info("dropping unsupported inbound content", "clinic_id", ch.ClinicID, "type", msg.Type)
		h.metrics.ObserveInbound("messages", "unsupported")
		return
	}

	phone, err := messaging.NormalizeBR(msg.From)
	if err != nil {
		h.logger.Warn("inbound sender phone not normalizable", "clinic_id", ch.ClinicID, "error", err)
		phone = msg.From
	}

	var patientID *uuid.UUID
	patient, err := h.patients.FindPatientByPhoneSuffix(ctx, ch.ClinicID, messaging.LastNineDigits(msg.From))
	if err != nil {
		h.logger.Error("patient lookup failed", "error", err, "clinic_id", ch.ClinicID)
	} else if patient != nil {
		patientID = &patient.ID
	}

	sess, err := h.sessions.FindOrCreate(ctx, ch.ClinicID, patientID, phone)
	if err != nil {
		h.logger.Error("session find-or-create failed", "error", err, "clinic_id", ch.ClinicID)
		h.metrics.ObserveInbound("messages", "error")
		return
	}

	if _, err := h.messages.InsertInbound(ctx, nil, messaging.MessageRecord{
		SessionID:         sess.ID,
		ClinicID:          ch.ClinicID,
		ProviderMessageID: msg.ID,
		Body:              text,
		Kind:              kind,
		Originator:        messaging.OriginatorPatient,
	}); err != nil {
		if errors.Is(err, messaging.ErrDuplicateInbound) {
			h.logger.Info("skipping redelivered inbound message", "clinic_id", ch.ClinicID, "provider_message_id", msg.ID)
			h.metrics.ObserveInbound("messages", "duplicate")
			return
		}
		h.logger.Error("failed to persist inbound message", "error", err, "clinic_id", ch.ClinicID)
		h.metrics.ObserveInbound("messages", "error")
		return
	}

	if err := h.sessions.Touch(ctx, sess.ID); err != nil {
		h.logger.Error("failed to touch session", "error", err, "session_id", sess.ID)
	}

	if sess.Status == session.StatusHuman {
		// A human owns this conversation; no AI involvement.
		h.metrics.ObserveInbound("messages", "human_owned")
		return
	}

	action := h.engine.Decide(ctx, conversation.DecideInput{
		ClinicID:  ch.ClinicID,
		SessionID: sess.ID,
		PatientID: patientID,
		ModelID:   ch.ModelID,
		Timezone:  ch.Timezone,
		Message:   text,
		History:   sess.Context,
	})

	h.executeAction(ctx, ch, sess, text, action)
	h.metrics.ObserveInbound("messages", "processed")
}

func (h *WebhookHandler) executeAction(ctx context.Context, ch *clinic.Channel, sess *session.Session, inboundText string, action conversation.Action) {
	switch action.Action {
	case conversation.ActionConfirm, conversation.ActionCancel:
		status := clinicdata.AppointmentConfirmed
		if action.Action == conversation.ActionCancel {
			status = clinicdata.AppointmentCancelled
		}
		appointmentID, err := uuid.Parse(action.AppointmentID)
		if err == nil {
			err = h.appointments.UpdateAppointmentStatus(ctx, ch.ClinicID, appointmentID, status)
		}
		if err != nil {
			h.logger.Error("appointment status update failed, escalating", "error", err, "clinic_id", ch.ClinicID, "session_id", sess.ID)
			action = conversation.EscalateWith(conversation.NotFoundReply)
		}
	}

	if action.Escalation() {
		if err := h.sessions.SetStatus(ctx, sess.ID, session.StatusHuman); err != nil {
			h.logger.Error("failed to escalate session", "error", err, "session_id", sess.ID)
		}
		if err := h.sessions.SetDraft(ctx, sess.ID, action.Reply); err != nil {
			h.logger.Error("failed to store ai draft", "error", err, "session_id", sess.ID)
		}
		if h.notifier != nil {
			h.notifier.NotifyEscalation(ctx, ch.ClinicID, sess, action.Reply)
		}
	}

	if action.Reply != "" {
		// The reply is still attributed to the AI channel even on escalation;
		// a human hasn't replied yet.
		if _, err := h.dispatcher.Send(ctx, messaging.SendRequest{
			ClinicID:   ch.ClinicID,
			SessionID:  &sess.ID,
			Originator: messaging.OriginatorAI,
			To:         sess.Phone,
			Kind:       messaging.KindText,
			Text:       messaging.TextPayload{Body: action.Reply},
		}); err != nil {
			h.logger.Error("failed to send ai reply", "error", err, "clinic_id", ch.ClinicID, "session_id", sess.ID)
			return
		}
	}

	if err := h.sessions.AppendContext(ctx, sess.ID, []session.Turn{
		{Role: session.RoleUser, Content: inboundText},
		{Role: session.RoleAssistant, Content: action.Reply},
	}); err != nil {
		h.logger.Error("failed to append context window", "error", err, "session_id", sess.ID)
	}
}

func inboundText(msg inboundMessage) (string, string, bool) {
	switch msg.Type {
	case "text":
		if msg.Text != nil && msg.Text.Body != "" {
			return msg.Text.Body, messaging.KindText, true
		}
	case "button":
		if msg.Button != nil && msg.Button.Text != "" {
			return msg.Button.Text, messaging.KindInteractive, true
		}
	case "interactive":
		if msg.Interactive != nil && msg.Interactive.ButtonReply != nil && msg.Interactive.ButtonReply.Title != "" {
			return msg.Interactive.ButtonReply.Title, messaging.KindInteractive, true
		}
	}
	return "", "", false
}

type webhookEnvelope struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string      `json:"field"`
			Value changeValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type changeValue struct {
	Metadata struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Contacts []struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	} `json:"contacts"`
	Messages []inboundMessage `json:"messages"`
	Statuses []deliveryStatus `json:"statuses"`
}

type inboundMessage struct {
	ID        string `json:"id"`
	From      string `json:"from"`
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
	Button *struct {
		Text    string `json:"text"`
		Payload string `json:"payload"`
	} `json:"button"`
	Interactive *struct {
		Type        string `json:"type"`
		ButtonReply *struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"button_reply"`
	} `json:"interactive"`
}

type deliveryStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	RecipientID string `json:"recipient_id"`
}
