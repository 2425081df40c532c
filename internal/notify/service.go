package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinvia/whatsapp-engage/internal/session"
	"github.com/clinvia/whatsapp-engage/pkg/logging"
)

// RecipientSource resolves the staff addresses a clinic wants escalation
// notices sent to.
type RecipientSource interface {
	EscalationRecipients(ctx context.Context, clinicID uuid.UUID) ([]string, error)
}

// Service emails clinic staff when a session is escalated to a human. All of
// it is best-effort: a notification failure never affects the webhook outcome.
type Service struct {
	sender     EmailSender
	recipients RecipientSource
	logger     *logging.Logger
}

func NewService(sender EmailSender, recipients RecipientSource, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{sender: sender, recipients: recipients, logger: logger}
}

// NotifyEscalation tells clinic staff a conversation now needs a human,
// attaching the AI's draft reply as a starting point.
func (s *Service) NotifyEscalation(ctx context.Context, clinicID uuid.UUID, sess *session.Session, draft string) {
	if s == nil || s.sender == nil || s.recipients == nil || sess == nil {
		return
	}
	addresses, err := s.recipients.EscalationRecipients(ctx, clinicID)
	if err != nil {
		s.logger.Warn("failed to load escalation recipients", "error", err, "clinic_id", clinicID)
		return
	}
	if len(addresses) == 0 {
		return
	}

	body := fmt.Sprintf(
		"Uma conversa no WhatsApp precisa de atendimento humano.\n\nTelefone: %s\nSessão: %s\n\nRascunho sugerido pela IA:\n%s\n",
		sess.Phone, sess.ID, draft,
	)
	msg := EmailMessage{
		Subject: "Conversa aguardando atendimento humano",
		Body:    body,
	}
	for _, to := range addresses {
		msg.To = to
		if err := s.sender.Send(ctx, msg); err != nil {
			s.logger.Warn("escalation email failed", "error", err, "clinic_id", clinicID, "to", to)
		}
	}
}
