package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Action kinds the AI agent may produce.
const (
	ActionReply    = "reply"
	ActionConfirm  = "confirm_appointment"
	ActionCancel   = "cancel_appointment"
	ActionEscalate = "escalate"
)

// User-facing fallback texts. The patient is never told something went wrong;
// they end up with a human attendant instead.
const (
	FallbackApology = "Desculpe, estou com dificuldades para responder agora. Um atendente da clínica vai falar com você em breve."
	NotFoundReply   = "Não consegui localizar o seu agendamento. Um atendente da clínica vai ajudar você em breve."
	HandoffReply    = "Vou encaminhar sua mensagem para a equipe da clínica. Já retornamos!"
)

// Action is the ephemeral structured decision produced per inbound message.
// It is never persisted.
type Action struct {
	Action        string `json:"action"`
	Reply         string `json:"reply,omitempty"`
	AppointmentID string `json:"appointment_id,omitempty"`
}

// Escalation reports whether the action hands the session to a human.
func (a Action) Escalation() bool {
	return a.Action == ActionEscalate
}

// EscalateWith builds a safe escalate action carrying the given reply.
func EscalateWith(reply string) Action {
	if strings.TrimSpace(reply) == "" {
		reply = HandoffReply
	}
	return Action{Action: ActionEscalate, Reply: reply}
}

var errMalformedAction = errors.New("conversation: malformed action")

// parseAction decodes and validates the strict JSON action shape returned by
// the model. Markdown code fences around the object are tolerated.
func parseAction(raw string) (Action, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var a Action
	dec := json.NewDecoder(strings.NewReader(raw))
	if err := dec.Decode(&a); err != nil {
		return Action{}, fmt.Errorf("%w: %v", errMalformedAction, err)
	}
	switch a.Action {
	case ActionReply:
		if strings.TrimSpace(a.Reply) == "" {
			return Action{}, fmt.Errorf("%w: reply action without text", errMalformedAction)
		}
	case ActionConfirm, ActionCancel:
		if strings.TrimSpace(a.AppointmentID) == "" {
			return Action{}, fmt.Errorf("%w: %s without appointment id", errMalformedAction, a.Action)
		}
	case ActionEscalate:
	default:
		return Action{}, fmt.Errorf("%w: unknown action %q", errMalformedAction, a.Action)
	}
	return a, nil
}
