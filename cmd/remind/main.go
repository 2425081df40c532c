package main

import (
	"context"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/clinvia/whatsapp-engage/internal/clinic"
	"github.com/clinvia/whatsapp-engage/internal/clinicdata"
	appconfig "github.com/clinvia/whatsapp-engage/internal/config"
	"github.com/clinvia/whatsapp-engage/internal/messaging"
	"github.com/clinvia/whatsapp-engage/internal/observability/metrics"
	"github.com/clinvia/whatsapp-engage/internal/reminders"
	"github.com/clinvia/whatsapp-engage/internal/session"
	"github.com/clinvia/whatsapp-engage/pkg/logging"
)

// Invoked by the scheduler: /bin/remind day-before | same-day
func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	leadTime := clinic.LeadTimeDayBefore
	if len(os.Args) > 1 {
		leadTime = os.Args[1]
	}
	logger.Info("starting reminder batch", "lead_time", leadTime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	clinicStore := clinic.NewStore(pool)
	waClient := messaging.NewWhatsAppClient(cfg.WhatsAppAPIBaseURL, cfg.WhatsAppSendTimeout, cfg.WhatsAppSendRetries, logger)
	dispatcher := messaging.NewDispatcher(messaging.DispatcherConfig{
		Channels: clinicStore,
		Secrets:  clinic.NewSecretStore(pool),
		Sender:   waClient,
		Store:    messaging.NewStore(pool),
		Sessions: session.NewStore(pool),
		Metrics:  metrics.NewMessagingMetrics(nil),
		Logger:   logger.WithComponent("dispatcher"),
	})

	batch := reminders.NewDispatcher(reminders.DispatcherConfig{
		Channels:   clinicStore,
		Data:       clinicdata.NewStore(pool),
		Log:        reminders.NewStore(pool),
		Sender:     dispatcher,
		Timezone:   cfg.DefaultTimezone,
		BatchLimit: cfg.ReminderBatchLimit,
		Logger:     logger.WithComponent("reminders"),
	})

	report, err := batch.Run(ctx, leadTime, time.Now())
	if err != nil {
		logger.Error("reminder batch failed", "error", err, "lead_time", leadTime)
		os.Exit(1)
	}

	logger.Info("reminder batch finished",
		"lead_time", report.LeadTime,
		"sent", report.Sent,
		"skipped", report.Skipped,
		"errors", len(report.Errors),
	)
	for _, msg := range report.Errors {
		logger.Warn("reminder error", "detail", msg)
	}
}
