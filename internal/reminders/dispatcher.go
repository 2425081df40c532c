package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinvia/whatsapp-engage/internal/clinic"
	"github.com/clinvia/whatsapp-engage/internal/clinicdata"
	"github.com/clinvia/whatsapp-engage/internal/messaging"
	"github.com/clinvia/whatsapp-engage/internal/observability/metrics"
	"github.com/clinvia/whatsapp-engage/pkg/logging"
)

type channelSource interface {
	Channel(ctx context.Context, clinicID uuid.UUID) (*clinic.Channel, error)
}

type candidateSource interface {
	ReminderCandidates(ctx context.Context, from, to time.Time, limit int) ([]clinicdata.ReminderCandidate, error)
}

type messageDispatcher interface {
	Send(ctx context.Context, req messaging.SendRequest) (string, error)
}

// Report aggregates one batch run's outcome.
type Report struct {
	LeadTime string   `json:"lead_time"`
	Sent     int      `json:"sent"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

// Dispatcher is the scheduled reminder batch. It iterates candidate
// appointments sequentially, deduplicates against the notification log and
// never aborts early; individual failures are recorded and counted.
type Dispatcher struct {
	channels   channelSource
	data       candidateSource
	log        *Store
	sender     messageDispatcher
	timezone   string
	batchLimit int
	metrics    *metrics.MessagingMetrics
	logger     *logging.Logger
}

type DispatcherConfig struct {
	Channels   channelSource
	Data       candidateSource
	Log        *Store
	Sender     messageDispatcher
	Timezone   string
	BatchLimit int
	Metrics    *metrics.MessagingMetrics
	Logger     *logging.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "America/Sao_Paulo"
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 500
	}
	return &Dispatcher{
		channels:   cfg.Channels,
		data:       cfg.Data,
		log:        cfg.Log,
		sender:     cfg.Sender,
		timezone:   cfg.Timezone,
		batchLimit: cfg.BatchLimit,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

// Run executes one batch for the given lead time, using now to resolve the
// target calendar date.
func (d *Dispatcher) Run(ctx context.Context, leadTime string, now time.Time) (Report, error) {
	report := Report{LeadTime: leadTime}
	if leadTime != clinic.LeadTimeDayBefore && leadTime != clinic.LeadTimeSameDay {
		return report, fmt.Errorf("reminders: unknown lead time %q", leadTime)
	}

	loc, err := time.LoadLocation(d.timezone)
	if err != nil {
		return report, fmt.Errorf("reminders: load timezone %s: %w", d.timezone, err)
	}
	from, to := targetWindow(now, leadTime, loc)

	candidates, err := d.data.ReminderCandidates(ctx, from, to, d.batchLimit)
	if err != nil {
		return report, err
	}
	d.logger.Info("reminder batch starting", "lead_time", leadTime, "candidates", len(candidates), "window_from", from, "window_to", to)

	for _, c := range candidates {
		switch outcome, errText := d.process(ctx, leadTime, c); outcome {
		case StatusSent:
			report.Sent++
			d.metrics.ObserveReminder(leadTime, "sent")
		case StatusFailed:
			report.Errors = append(report.Errors, fmt.Sprintf("appointment %s: %s", c.ID, errText))
			d.metrics.ObserveReminder(leadTime, "failed")
		default:
			report.Skipped++
			d.metrics.ObserveReminder(leadTime, "skipped")
		}
	}

	d.logger.Info("reminder batch finished", "lead_time", leadTime, "sent", report.Sent, "skipped", report.Skipped, "failed", len(report.Errors))
	return report, nil
}

// process handles one candidate. Returns StatusSent, StatusFailed (with error
// text) or "" for a skip.
func (d *Dispatcher) process(ctx context.Context, leadTime string, c clinicdata.ReminderCandidate) (string, string) {
	ch, err := d.channels.Channel(ctx, c.ClinicID)
	if err != nil {
		d.logger.Warn("skipping reminder, channel unavailable", "error", err, "clinic_id", c.ClinicID, "appointment_id", c.ID)
		return "", ""
	}
	if !ch.Enabled || !ch.ReminderEnabled(leadTime) {
		return "", ""
	}
	if c.PatientPhone == "" {
		return "", ""
	}

	sentAlready, err := d.log.HasNonFailed(ctx, c.ID, ChannelWhatsApp, leadTime)
	if err != nil {
		d.logger.Error("notification log lookup failed", "error", err, "appointment_id", c.ID)
		return StatusFailed, err.Error()
	}
	if sentAlready {
		return "", ""
	}

	template := ch.ReminderTemplate(leadTime)
	if template == "" {
		d.logger.Warn("skipping reminder, no template configured", "clinic_id", c.ClinicID, "lead_time", leadTime)
		return "", ""
	}

	phone, err := messaging.NormalizeBR(c.PatientPhone)
	if err != nil {
		// Fail closed: an unroutable number is skipped, not guessed at.
		d.logger.Warn("skipping reminder, phone not normalizable", "clinic_id", c.ClinicID, "appointment_id", c.ID, "error", err)
		return "", ""
	}

	providerID, sendErr := d.sender.Send(ctx, messaging.SendRequest{
		ClinicID:   c.ClinicID,
		Originator: messaging.OriginatorSystem,
		To:         phone,
		Kind:       messaging.KindTemplate,
		Template: messaging.TemplatePayload{
			Name:       template,
			Language:   ch.TemplateLanguage,
			Parameters: templateParams(leadTime, c, ch.Timezone, d.timezone),
		},
	})

	entry := LogEntry{
		ClinicID:          c.ClinicID,
		AppointmentID:     c.ID,
		PatientID:         c.PatientID,
		Channel:           ChannelWhatsApp,
		Kind:              leadTime,
		Status:            StatusSent,
		ProviderMessageID: providerID,
	}
	result := StatusSent
	errText := ""
	if sendErr != nil {
		entry.Status = StatusFailed
		entry.Error = sendErr.Error()
		entry.ProviderMessageID = ""
		result = StatusFailed
		errText = sendErr.Error()
		d.logger.Error("reminder send failed", "error", sendErr, "clinic_id", c.ClinicID, "appointment_id", c.ID)
	}
	if err := d.log.Record(ctx, entry); err != nil {
		d.logger.Error("failed to record notification log entry", "error", err, "appointment_id", c.ID)
	}
	return result, errText
}

// targetWindow converts the lead time's local calendar date into the UTC
// storage window [from, to).
func targetWindow(now time.Time, leadTime string, loc *time.Location) (time.Time, time.Time) {
	local := now.In(loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	if leadTime == clinic.LeadTimeDayBefore {
		day = day.AddDate(0, 0, 1)
	}
	return day.UTC(), day.AddDate(0, 0, 1).UTC()
}

// templateParams builds the lead-time-specific positional parameter list.
// Day-before includes the date; same-day omits it.
func templateParams(leadTime string, c clinicdata.ReminderCandidate, clinicTZ, fallbackTZ string) []string {
	loc, err := time.LoadLocation(clinicTZ)
	if err != nil || clinicTZ == "" {
		if l, err := time.LoadLocation(fallbackTZ); err == nil {
			loc = l
		} else {
			loc = time.UTC
		}
	}
	starts := c.StartsAt.In(loc)
	if leadTime == clinic.LeadTimeDayBefore {
		return []string{c.PatientName, starts.Format("02/01/2006"), starts.Format("15:04"), c.ProfessionalName}
	}
	return []string{c.PatientName, starts.Format("15:04"), c.ProfessionalName}
}
