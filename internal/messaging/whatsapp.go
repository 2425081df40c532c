package messaging

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinvia/whatsapp-engage/pkg/logging"
)

var waSendTracer = otel.Tracer("clinvia.internal.messaging.whatsapp_send")

// Message kinds supported by the channel.
const (
	KindText        = "text"
	KindTemplate    = "template"
	KindInteractive = "interactive"
)

// TextPayload is a plain text outbound body.
type TextPayload struct {
	Body string `json:"body"`
}

// TemplatePayload references a pre-approved template with positional text
// parameters and a language tag.
type TemplatePayload struct {
	Name       string   `json:"name"`
	Language   string   `json:"language"`
	Parameters []string `json:"parameters"`
}

// Button is one reply option on an interactive message.
type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// InteractivePayload is a button-reply outbound body.
type InteractivePayload struct {
	Body    string   `json:"body"`
	Buttons []Button `json:"buttons"`
}

// ProviderError carries the upstream API's error description so callers can
// log or persist it for audit.
type ProviderError struct {
	StatusCode  int
	Description string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("messaging: provider rejected send: status %d: %s", e.StatusCode, e.Description)
}

// WhatsAppClient posts messages through the WhatsApp Cloud API.
type WhatsAppClient struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	logger     *logging.Logger
}

// NewWhatsAppClient builds a Cloud API client. baseURL points at the Graph API
// root, e.g. https://graph.facebook.com/v19.0.
func NewWhatsAppClient(baseURL string, timeout time.Duration, maxRetries int, logger *logging.Logger) *WhatsAppClient {
	if logger == nil {
		logger = logging.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &WhatsAppClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// SendText dispatches a plain text message and returns the provider message id.
func (c *WhatsAppClient) SendText(ctx context.Context, accessToken, phoneNumberID, to string, payload TextPayload) (string, error) {
	if strings.TrimSpace(payload.Body) == "" {
		return "", errors.New("messaging: text body required")
	}
	body := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": payload.Body},
	}
	return c.send(ctx, accessToken, phoneNumberID, to, KindText, body)
}

// SendTemplate dispatches a named template with positional text parameters.
func (c *WhatsAppClient) SendTemplate(ctx context.Context, accessToken, phoneNumberID, to string, payload TemplatePayload) (string, error) {
	if strings.TrimSpace(payload.Name) == "" {
		return "", errors.New("messaging: template name required")
	}
	lang := payload.Language
	if lang == "" {
		lang = "pt_BR"
	}
	params := make([]map[string]string, 0, len(payload.Parameters))
	for _, p := range payload.Parameters {
		params = append(params, map[string]string{"type": "text", "text": p})
	}
	template := map[string]any{
		"name":     payload.Name,
		"language": map[string]string{"code": lang},
	}
	if len(params) > 0 {
		template["components"] = []map[string]any{
			{"type": "body", "parameters": params},
		}
	}
	body := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "template",
		"template":          template,
	}
	return c.send(ctx, accessToken, phoneNumberID, to, KindTemplate, body)
}

// SendInteractive dispatches a button-reply message.
func (c *WhatsAppClient) SendInteractive(ctx context.Context, accessToken, phoneNumberID, to string, payload InteractivePayload) (string, error) {
	if strings.TrimSpace(payload.Body) == "" || len(payload.Buttons) == 0 {
		return "", errors.New("messaging: interactive body and buttons required")
	}
	buttons := make([]map[string]any, 0, len(payload.Buttons))
	for _, b := range payload.Buttons {
		buttons = append(buttons, map[string]any{
			"type":  "reply",
			"reply": map[string]string{"id": b.ID, "title": b.Title},
		})
	}
	body := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "interactive",
		"interactive": map[string]any{
			"type":   "button",
			"body":   map[string]string{"text": payload.Body},
			"action": map[string]any{"buttons": buttons},
		},
	}
	return c.send(ctx, accessToken, phoneNumberID, to, KindInteractive, body)
}

func (c *WhatsAppClient) send(ctx context.Context, accessToken, phoneNumberID, to, kind string, payload map[string]any) (string, error) {
	if accessToken == "" {
		return "", errors.New("messaging: access token missing")
	}
	if phoneNumberID == "" {
		return "", errors.New("messaging: phone number id missing")
	}
	if to == "" {
		return "", errors.New("messaging: recipient required")
	}

	ctx, span := waSendTracer.Start(ctx, "messaging.whatsapp.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinvia.kind", kind),
		attribute.String("clinvia.phone_number_id", phoneNumberID),
	)

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, phoneNumberID)
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("messaging: marshal whatsapp payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
		if err != nil {
			lastErr = err
			break
		}
		req.Header.Set("Authorization", "Bearer "+accessToken)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
		} else {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
			resp.Body.Close()
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				var parsed struct {
					Messages []struct {
						ID string `json:"id"`
					} `json:"messages"`
				}
				if err := json.Unmarshal(respBody, &parsed); err != nil || len(parsed.Messages) == 0 {
					return "", fmt.Errorf("messaging: provider response missing message id")
				}
				c.logger.Info("whatsapp message sent", "kind", kind, "phone_number_id", phoneNumberID)
				return parsed.Messages[0].ID, nil
			}
			lastErr = &ProviderError{StatusCode: resp.StatusCode, Description: providerErrorDescription(respBody)}
			// Client errors are final; retrying cannot fix a rejected payload.
			if resp.StatusCode < 500 {
				break
			}
		}

		if attempt < c.maxRetries {
			sleep := time.Duration(200+rand.Intn(300)) * time.Millisecond
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(sleep):
			}
		}
	}

	if lastErr != nil {
		span.RecordError(lastErr)
		c.logger.Error("failed to send whatsapp message", "error", lastErr, "kind", kind, "phone_number_id", phoneNumberID)
	}
	return "", lastErr
}

func providerErrorDescription(body []byte) string {
	var parsed struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if len(body) > 0 && json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return "unknown provider error"
}

// VerifySignature checks the HMAC-SHA256 webhook signature header
// ("sha256=<hex>") over the raw request body.
func VerifySignature(appSecret, header string, body []byte) error {
	if appSecret == "" {
		return nil
	}
	provided, ok := strings.CutPrefix(header, "sha256=")
	if !ok || provided == "" {
		return errors.New("messaging: missing webhook signature")
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(provided))) {
		return errors.New("messaging: webhook signature mismatch")
	}
	return nil
}
