package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clinvia/whatsapp-engage/internal/api/router"
	"github.com/clinvia/whatsapp-engage/internal/clinic"
	"github.com/clinvia/whatsapp-engage/internal/clinicdata"
	appconfig "github.com/clinvia/whatsapp-engage/internal/config"
	"github.com/clinvia/whatsapp-engage/internal/conversation"
	"github.com/clinvia/whatsapp-engage/internal/http/handlers"
	"github.com/clinvia/whatsapp-engage/internal/messaging"
	"github.com/clinvia/whatsapp-engage/internal/notify"
	"github.com/clinvia/whatsapp-engage/internal/observability/metrics"
	"github.com/clinvia/whatsapp-engage/internal/reminders"
	"github.com/clinvia/whatsapp-engage/internal/session"
	"github.com/clinvia/whatsapp-engage/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting whatsapp-engage API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		redisClient = redis.NewClient(opts)
		defer func() { _ = redisClient.Close() }()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	msgMetrics := metrics.NewMessagingMetrics(registry)

	// Stores
	clinicStore := clinic.NewStore(pool)
	channels := clinic.NewCachedChannels(clinicStore, redisClient, cfg.ChannelCacheTTL, logger)
	secrets := clinic.NewSecretStore(pool)
	sessionStore := session.NewStore(pool)
	messageStore := messaging.NewStore(pool)
	dataStore := clinicdata.NewStore(pool)
	reminderLog := reminders.NewStore(pool)

	// Outbound messaging
	waClient := messaging.NewWhatsAppClient(cfg.WhatsAppAPIBaseURL, cfg.WhatsAppSendTimeout, cfg.WhatsAppSendRetries, logger)
	dispatcher := messaging.NewDispatcher(messaging.DispatcherConfig{
		Channels: channels,
		Secrets:  secrets,
		Sender:   waClient,
		Store:    messageStore,
		Sessions: sessionStore,
		Metrics:  msgMetrics,
		Logger:   logger.WithComponent("dispatcher"),
	})

	// AI decision engine
	llm := conversation.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	engine := conversation.NewEngine(conversation.EngineConfig{
		LLM:          llm,
		Clinics:      clinicStore,
		Appointments: dataStore,
		Timeout:      cfg.DecisionTimeout,
		Metrics:      msgMetrics,
		Logger:       logger.WithComponent("engine"),
	})

	// Escalation notifications
	notifier := notify.NewService(buildEmailSender(ctx, cfg, logger), clinicStore, logger.WithComponent("notify"))

	// Reminder batch, exposed for scheduler-triggered runs
	reminderDispatcher := reminders.NewDispatcher(reminders.DispatcherConfig{
		Channels:   channels,
		Data:       dataStore,
		Log:        reminderLog,
		Sender:     dispatcher,
		Timezone:   cfg.DefaultTimezone,
		BatchLimit: cfg.ReminderBatchLimit,
		Metrics:    msgMetrics,
		Logger:     logger.WithComponent("reminders"),
	})

	// Handlers
	webhookHandler := handlers.NewWebhookHandler(handlers.WebhookConfig{
		Channels:     channels,
		Messages:     messageStore,
		Sessions:     sessionStore,
		Patients:     dataStore,
		Appointments: dataStore,
		Engine:       engine,
		Dispatcher:   dispatcher,
		Notifier:     notifier,
		AppSecret:    cfg.WhatsAppAppSecret,
		Metrics:      msgMetrics,
		Logger:       logger.WithComponent("webhook"),
	})

	r := router.New(&router.Config{
		Logger:         logger,
		Webhook:        webhookHandler,
		Dispatch:       handlers.NewDispatchHandler(dispatcher, logger),
		Decide:         handlers.NewDecideHandler(engine, channels, logger),
		Sessions:       handlers.NewSessionHandler(sessionStore, logger),
		Reminders:      handlers.NewReminderHandler(reminderDispatcher, logger),
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		InternalSecret: cfg.InternalJWTSecret,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func buildEmailSender(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	if cfg.EmailProvider == "ses" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			logger.Error("failed to load AWS config, escalation emails disabled", "error", err)
			return nil
		}
		sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger)
		if sender == nil {
			return nil
		}
		return sender
	}
	sender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger)
	if sender == nil {
		logger.Warn("no email provider configured, escalation emails disabled")
		return nil
	}
	return sender
}
