package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clinvia/whatsapp-engage/internal/http/handlers"
)

func TestHealthEndpoint(t *testing.T) {
	r := New(&Config{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != `{"status":"ok"}` {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestInternalRoutesRequireAuth(t *testing.T) {
	r := New(&Config{
		InternalSecret: "secret",
		Dispatch:       handlers.NewDispatchHandler(nil, nil),
		Decide:         handlers.NewDecideHandler(nil, nil, nil),
		Sessions:       handlers.NewSessionHandler(nil, nil),
		Reminders:      handlers.NewReminderHandler(nil, nil),
	})

	paths := []string{
		"/internal/messages/send",
		"/internal/ai/decide",
		"/internal/reminders/run",
	}
	for _, path := range paths {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401 without a token, got %d", path, rec.Code)
		}
	}
}

func TestMetricsEndpointMounted(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r := New(&Config{MetricsHandler: metrics})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
