package conversation

import (
	"errors"
	"testing"
)

func TestParseAction(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Action
		wantErr bool
	}{
		{
			name: "reply",
			raw:  `{"action":"reply","reply":"Olá! Como posso ajudar?"}`,
			want: Action{Action: ActionReply, Reply: "Olá! Como posso ajudar?"},
		},
		{
			name: "confirm with id",
			raw:  `{"action":"confirm_appointment","appointment_id":"9f1c1ada-53a3-4a34-9173-6a50b86a4c55","reply":"Confirmado!"}`,
			want: Action{Action: ActionConfirm, AppointmentID: "9f1c1ada-53a3-4a34-9173-6a50b86a4c55", Reply: "Confirmado!"},
		},
		{
			name: "escalate without reply",
			raw:  `{"action":"escalate"}`,
			want: Action{Action: ActionEscalate},
		},
		{
			name: "fenced json",
			raw:  "```json\n{\"action\":\"reply\",\"reply\":\"oi\"}\n```",
			want: Action{Action: ActionReply, Reply: "oi"},
		},
		{
			name:    "reply without text",
			raw:     `{"action":"reply"}`,
			wantErr: true,
		},
		{
			name:    "confirm without appointment id",
			raw:     `{"action":"confirm_appointment","reply":"ok"}`,
			wantErr: true,
		},
		{
			name:    "cancel without appointment id",
			raw:     `{"action":"cancel_appointment"}`,
			wantErr: true,
		},
		{
			name:    "unknown action",
			raw:     `{"action":"reschedule"}`,
			wantErr: true,
		},
		{
			name:    "prose instead of json",
			raw:     "Claro, vou confirmar seu agendamento!",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseAction(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, errMalformedAction) {
					t.Fatalf("expected malformed action error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEscalateWithDefaultsReply(t *testing.T) {
	a := EscalateWith("  ")
	if a.Action != ActionEscalate {
		t.Fatalf("unexpected action %q", a.Action)
	}
	if a.Reply != HandoffReply {
		t.Fatalf("expected handoff reply, got %q", a.Reply)
	}
	if !a.Escalation() {
		t.Error("expected Escalation() to be true")
	}
}
