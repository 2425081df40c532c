// Package clinic exposes the clinic-side configuration the messaging core
// depends on: channel config, display facts and channel credentials. All of it
// is owned by clinic administration and read-only here.
package clinic

import "github.com/google/uuid"

// Reminder lead times supported by the channel.
const (
	LeadTimeDayBefore = "day-before"
	LeadTimeSameDay   = "same-day"
)

// Channel identifies a clinic's WhatsApp messaging channel.
type Channel struct {
	ClinicID          uuid.UUID `json:"clinic_id"`
	PhoneNumberID     string    `json:"phone_number_id"`
	Enabled           bool      `json:"enabled"`
	VerifyToken       string    `json:"verify_token"`
	ModelID           string    `json:"model_id"`
	Timezone          string    `json:"timezone"`
	RemindDayBefore   bool      `json:"remind_day_before"`
	RemindSameDay     bool      `json:"remind_same_day"`
	TemplateDayBefore string    `json:"template_day_before"`
	TemplateSameDay   string    `json:"template_same_day"`
	TemplateLanguage  string    `json:"template_language"`
}

// ReminderEnabled reports whether the channel sends reminders for the lead time.
func (c *Channel) ReminderEnabled(leadTime string) bool {
	switch leadTime {
	case LeadTimeDayBefore:
		return c.RemindDayBefore
	case LeadTimeSameDay:
		return c.RemindSameDay
	default:
		return false
	}
}

// ReminderTemplate returns the template name configured for the lead time.
func (c *Channel) ReminderTemplate(leadTime string) string {
	switch leadTime {
	case LeadTimeDayBefore:
		return c.TemplateDayBefore
	case LeadTimeSameDay:
		return c.TemplateSameDay
	default:
		return ""
	}
}

// Info holds the clinic display facts surfaced to the AI decision engine.
type Info struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Address string    `json:"address"`
	Phone   string    `json:"phone"`
}
