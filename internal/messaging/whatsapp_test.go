package messaging

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestWhatsAppClientSendText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/12345/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("unexpected auth header %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["type"] != "text" {
			t.Errorf("unexpected type %v", body["type"])
		}
		if body["to"] != "5511999998888" {
			t.Errorf("unexpected to %v", body["to"])
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.ABC"}]}`))
	}))
	defer srv.Close()

	client := NewWhatsAppClient(srv.URL, 5*time.Second, 1, nil)
	id, err := client.SendText(context.Background(), "tok-1", "12345", "5511999998888", TextPayload{Body: "Olá"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if id != "wamid.ABC" {
		t.Fatalf("expected provider message id wamid.ABC, got %q", id)
	}
}

func TestWhatsAppClientClientErrorIsFinal(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid recipient"}}`))
	}))
	defer srv.Close()

	client := NewWhatsAppClient(srv.URL, 5*time.Second, 3, nil)
	_, err := client.SendText(context.Background(), "tok", "pnid", "123", TextPayload{Body: "oi"})
	var providerErr *ProviderError
	if !errors.As(err, &providerErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	if providerErr.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", providerErr.StatusCode)
	}
	if providerErr.Description != "invalid recipient" {
		t.Errorf("unexpected description %q", providerErr.Description)
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("expected 1 attempt for a client error, got %d", got)
	}
}

func TestWhatsAppClientRetriesServerError(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.RETRY"}]}`))
	}))
	defer srv.Close()

	client := NewWhatsAppClient(srv.URL, 5*time.Second, 3, nil)
	id, err := client.SendText(context.Background(), "tok", "pnid", "123", TextPayload{Body: "oi"})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if id != "wamid.RETRY" {
		t.Fatalf("unexpected id %q", id)
	}
	if got := attempts.Load(); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}

func TestWhatsAppClientSendTemplateBuildsComponents(t *testing.T) {
	var captured map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.TPL"}]}`))
	}))
	defer srv.Close()

	client := NewWhatsAppClient(srv.URL, 5*time.Second, 1, nil)
	_, err := client.SendTemplate(context.Background(), "tok", "pnid", "123", TemplatePayload{
		Name:       "lembrete_vespera",
		Parameters: []string{"Maria", "10/02/2026", "14:30", "Dra. Ana"},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	tpl, ok := captured["template"].(map[string]any)
	if !ok {
		t.Fatalf("template block missing: %v", captured)
	}
	if tpl["name"] != "lembrete_vespera" {
		t.Errorf("unexpected template name %v", tpl["name"])
	}
	lang, _ := tpl["language"].(map[string]any)
	if lang["code"] != "pt_BR" {
		t.Errorf("expected default language pt_BR, got %v", lang["code"])
	}
	components, _ := tpl["components"].([]any)
	if len(components) != 1 {
		t.Fatalf("expected 1 component, got %d", len(components))
	}
}

func TestVerifySignature(t *testing.T) {
	secret := "app-secret"
	body := []byte(`{"object":"whatsapp_business_account"}`)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	valid := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if err := VerifySignature(secret, valid, body); err != nil {
		t.Errorf("expected valid signature to pass, got %v", err)
	}
	if err := VerifySignature(secret, "sha256=deadbeef", body); err == nil {
		t.Error("expected mismatched signature to fail")
	}
	if err := VerifySignature(secret, "", body); err == nil {
		t.Error("expected missing header to fail")
	}
	if err := VerifySignature("", "", body); err != nil {
		t.Errorf("expected verification to be skipped without a secret, got %v", err)
	}
}
