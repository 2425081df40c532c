package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/clinvia/whatsapp-engage/internal/clinic"
	"github.com/clinvia/whatsapp-engage/internal/clinicdata"
	"github.com/clinvia/whatsapp-engage/internal/session"
)

// historyWindow is how many prior turns accompany each decision call.
const historyWindow = 8

func buildSystemPrompt(info *clinic.Info, candidates []clinicdata.Appointment, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("You are the WhatsApp assistant of a medical clinic. Always answer the patient in Brazilian Portuguese, briefly and warmly.\n\n")

	if info != nil {
		b.WriteString("Clinic facts:\n")
		fmt.Fprintf(&b, "- Name: %s\n", info.Name)
		if info.Address != "" {
			fmt.Fprintf(&b, "- Address: %s\n", info.Address)
		}
		if info.Phone != "" {
			fmt.Fprintf(&b, "- Phone: %s\n", info.Phone)
		}
		b.WriteString("\n")
	}

	if len(candidates) > 0 {
		b.WriteString("The patient's upcoming appointments. You may ONLY confirm or cancel an appointment from this exact list, never invent one:\n")
		for _, a := range candidates {
			starts := a.StartsAt
			if loc != nil {
				starts = starts.In(loc)
			}
			fmt.Fprintf(&b, "- id=%s date=%s time=%s professional=%s status=%s\n",
				a.ID, starts.Format("02/01/2006"), starts.Format("15:04"), a.ProfessionalName, a.Status)
		}
		b.WriteString("\n")
	} else {
		b.WriteString("No upcoming appointments are on file for this patient.\n\n")
	}

	b.WriteString(`Decide one action for the new message and respond with a single JSON object, nothing else:
{"action": "reply" | "confirm_appointment" | "cancel_appointment" | "escalate", "reply": "<message to the patient>", "appointment_id": "<id from the list, only for confirm/cancel>"}

Decision rules:
- Affirmative replies about an appointment (sim, ok, confirmo, pode confirmar) -> confirm_appointment for the nearest upcoming appointment.
- Negative or cancellation replies (não, cancela, não vou poder) -> cancel_appointment for the nearest upcoming appointment.
- Requests to schedule a NEW appointment -> escalate; do not attempt to book anything yourself.
- Ambiguous messages, sensitive topics or anything needing clinical judgment -> escalate.
- Simple questions you can answer from the clinic facts above -> reply.
- Never fabricate a time slot, a professional name or an appointment.
- Always include a "reply" text for the patient, including when escalating.`)
	return b.String()
}

// promptHistory maps the session's rolling window onto chat turns, keeping the
// last historyWindow entries.
func promptHistory(turns []session.Turn) []ChatMessage {
	if len(turns) > historyWindow {
		turns = turns[len(turns)-historyWindow:]
	}
	out := make([]ChatMessage, 0, len(turns))
	for _, t := range turns {
		role := ChatRoleUser
		if t.Role == session.RoleAssistant {
			role = ChatRoleAssistant
		}
		out = append(out, ChatMessage{Role: role, Content: t.Content})
	}
	return out
}
