package conversation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinvia/whatsapp-engage/internal/clinic"
	"github.com/clinvia/whatsapp-engage/internal/clinicdata"
	"github.com/clinvia/whatsapp-engage/internal/observability/metrics"
	"github.com/clinvia/whatsapp-engage/internal/session"
	"github.com/clinvia/whatsapp-engage/pkg/logging"
)

// maxCandidates bounds how many upcoming appointments the model may act on.
const maxCandidates = 3

// ClinicInfoSource resolves clinic display facts for the prompt.
type ClinicInfoSource interface {
	Info(ctx context.Context, clinicID uuid.UUID) (*clinic.Info, error)
}

// AppointmentSource lists the patient's nearest upcoming appointments.
type AppointmentSource interface {
	UpcomingAppointments(ctx context.Context, clinicID, patientID uuid.UUID, limit int) ([]clinicdata.Appointment, error)
}

// Engine wraps the external language model behind validation and a safe
// fallback. Decide never fails from the caller's perspective: every failure
// mode degrades to an escalate action.
type Engine struct {
	llm          LLMClient
	clinics      ClinicInfoSource
	appointments AppointmentSource
	timeout      time.Duration
	metrics      *metrics.MessagingMetrics
	logger       *logging.Logger
}

type EngineConfig struct {
	LLM          LLMClient
	Clinics      ClinicInfoSource
	Appointments AppointmentSource
	Timeout      time.Duration
	Metrics      *metrics.MessagingMetrics
	Logger       *logging.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Engine{
		llm:          cfg.LLM,
		clinics:      cfg.Clinics,
		appointments: cfg.Appointments,
		timeout:      cfg.Timeout,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
	}
}

// DecideInput carries one decision call's context.
type DecideInput struct {
	ClinicID  uuid.UUID
	SessionID uuid.UUID
	PatientID *uuid.UUID
	ModelID   string
	Timezone  string
	Message   string
	History   []session.Turn
}

// Decide produces one structured action for the inbound message. The returned
// action is always well-formed; provider failures, unparseable responses and
// hallucinated appointment references all degrade to escalate.
func (e *Engine) Decide(ctx context.Context, in DecideInput) Action {
	var candidates []clinicdata.Appointment
	if in.PatientID != nil {
		list, err := e.appointments.UpcomingAppointments(ctx, in.ClinicID, *in.PatientID, maxCandidates)
		if err != nil {
			e.logger.Error("failed to load appointment candidates", "error", err, "clinic_id", in.ClinicID, "patient_id", in.PatientID)
		} else {
			candidates = list
		}
	}

	info, err := e.clinics.Info(ctx, in.ClinicID)
	if err != nil {
		e.logger.Warn("failed to load clinic info for prompt", "error", err, "clinic_id", in.ClinicID)
	}

	var loc *time.Location
	if in.Timezone != "" {
		if l, err := time.LoadLocation(in.Timezone); err == nil {
			loc = l
		}
	}

	messages := promptHistory(in.History)
	messages = append(messages, ChatMessage{Role: ChatRoleUser, Content: in.Message})

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	resp, err := e.llm.Complete(callCtx, LLMRequest{
		Model:        in.ModelID,
		System:       []string{buildSystemPrompt(info, candidates, loc)},
		Messages:     messages,
		MaxTokens:    512,
		Temperature:  0.2,
		JSONResponse: true,
	})
	if err != nil {
		e.logger.Error("llm call failed, escalating", "error", err, "clinic_id", in.ClinicID, "session_id", in.SessionID)
		e.metrics.ObserveDecision(ActionEscalate, true)
		return EscalateWith(FallbackApology)
	}

	action, err := parseAction(resp.Text)
	if err != nil {
		e.logger.Error("llm response not parseable, escalating", "error", err, "clinic_id", in.ClinicID, "session_id", in.SessionID)
		e.metrics.ObserveDecision(ActionEscalate, true)
		return EscalateWith(FallbackApology)
	}

	action = e.validate(action, candidates)
	e.metrics.ObserveDecision(action.Action, false)
	return action
}

// validate re-verifies that a confirm/cancel action references an appointment
// from the candidate list. A mismatch is treated as a hallucination and
// silently substituted with an escalate action; an unverified AI claim must
// never mutate appointment state.
func (e *Engine) validate(action Action, candidates []clinicdata.Appointment) Action {
	if action.Action != ActionConfirm && action.Action != ActionCancel {
		if action.Escalation() {
			return EscalateWith(action.Reply)
		}
		return action
	}
	id, err := uuid.Parse(action.AppointmentID)
	if err == nil {
		for _, c := range candidates {
			if c.ID == id {
				if action.Reply == "" {
					action.Reply = defaultAckReply(action.Action)
				}
				return action
			}
		}
	}
	e.logger.Warn("llm referenced unknown appointment, escalating", "action", action.Action, "appointment_id", action.AppointmentID)
	return EscalateWith(NotFoundReply)
}

func defaultAckReply(action string) string {
	if action == ActionCancel {
		return "Tudo bem, seu agendamento foi cancelado. Se quiser remarcar, é só avisar!"
	}
	return "Perfeito, seu agendamento está confirmado. Até breve!"
}
