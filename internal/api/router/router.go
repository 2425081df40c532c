package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clinvia/whatsapp-engage/internal/http/handlers"
	httpmiddleware "github.com/clinvia/whatsapp-engage/internal/http/middleware"
	"github.com/clinvia/whatsapp-engage/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	Webhook        *handlers.WebhookHandler
	Dispatch       *handlers.DispatchHandler
	Decide         *handlers.DecideHandler
	Sessions       *handlers.SessionHandler
	Reminders      *handlers.ReminderHandler
	MetricsHandler http.Handler
	InternalSecret string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (provider webhooks, health checks)
	r.Group(func(public chi.Router) {
		public.Get("/health", handleHealth)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Webhook != nil {
			public.Get("/webhooks/whatsapp", cfg.Webhook.HandleVerify)
			public.Post("/webhooks/whatsapp", cfg.Webhook.HandleEvents)
		}
	})

	// Internal endpoints for the main application, behind a shared-secret JWT
	r.Route("/internal", func(internal chi.Router) {
		internal.Use(httpmiddleware.InternalJWT(cfg.InternalSecret))
		if cfg.Dispatch != nil {
			internal.Post("/messages/send", cfg.Dispatch.Send)
		}
		if cfg.Decide != nil {
			internal.Post("/ai/decide", cfg.Decide.Decide)
		}
		if cfg.Sessions != nil {
			internal.Post("/sessions/{id}/takeover", cfg.Sessions.Takeover)
			internal.Post("/sessions/{id}/resolve", cfg.Sessions.Resolve)
		}
		if cfg.Reminders != nil {
			internal.Post("/reminders/run", cfg.Reminders.Run)
		}
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
