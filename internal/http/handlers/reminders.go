package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/clinvia/whatsapp-engage/internal/reminders"
	"github.com/clinvia/whatsapp-engage/pkg/logging"
)

type reminderRunner interface {
	Run(ctx context.Context, leadTime string, now time.Time) (reminders.Report, error)
}

// ReminderHandler triggers a reminder batch on demand. The scheduler (cron,
// Cloud Scheduler) calls this endpoint once per lead time per day.
type ReminderHandler struct {
	runner reminderRunner
	logger *logging.Logger
}

func NewReminderHandler(runner reminderRunner, logger *logging.Logger) *ReminderHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ReminderHandler{runner: runner, logger: logger}
}

type reminderRunRequest struct {
	LeadTime string `json:"lead_time"`
}

// Run handles POST /internal/reminders/run.
func (h *ReminderHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req reminderRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	report, err := h.runner.Run(r.Context(), req.LeadTime, time.Now())
	if err != nil {
		h.logger.Error("reminder run failed", "error", err, "lead_time", req.LeadTime)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.logger.Info("reminder run finished",
		"lead_time", report.LeadTime, "sent", report.Sent, "skipped", report.Skipped, "errors", len(report.Errors))
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}
