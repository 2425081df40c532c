package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.WhatsAppSendTimeout != 10*time.Second {
		t.Fatalf("expected default send timeout 10s, got %s", cfg.WhatsAppSendTimeout)
	}
	if cfg.ContextWindowCap != 10 {
		t.Fatalf("expected context window cap 10, got %d", cfg.ContextWindowCap)
	}
	if cfg.DefaultTimezone != "America/Sao_Paulo" {
		t.Fatalf("unexpected default timezone %s", cfg.DefaultTimezone)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("WHATSAPP_SEND_RETRIES", "5")
	t.Setenv("REDIS_TLS", "true")
	t.Setenv("DECISION_TIMEOUT", "45s")

	cfg := Load()
	if cfg.Port != "9999" {
		t.Fatalf("expected port override, got %s", cfg.Port)
	}
	if cfg.WhatsAppSendRetries != 5 {
		t.Fatalf("expected 5 retries, got %d", cfg.WhatsAppSendRetries)
	}
	if !cfg.RedisTLS {
		t.Fatal("expected redis tls enabled")
	}
	if cfg.DecisionTimeout != 45*time.Second {
		t.Fatalf("expected 45s decision timeout, got %s", cfg.DecisionTimeout)
	}
}

func TestGetEnvAsIntInvalid(t *testing.T) {
	t.Setenv("HISTORY_WINDOW", "not-a-number")
	cfg := Load()
	if cfg.HistoryWindow != 8 {
		t.Fatalf("expected fallback history window 8, got %d", cfg.HistoryWindow)
	}
}
