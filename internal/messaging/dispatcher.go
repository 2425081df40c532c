package messaging

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinvia/whatsapp-engage/internal/clinic"
	"github.com/clinvia/whatsapp-engage/internal/observability/metrics"
	"github.com/clinvia/whatsapp-engage/pkg/logging"
)

// Configuration errors cause a skip or deny, never a crash.
var (
	ErrChannelDisabled     = errors.New("messaging: clinic channel disabled")
	ErrChannelUnconfigured = errors.New("messaging: clinic channel has no phone number id")
)

// ChannelSource resolves a clinic's channel configuration.
type ChannelSource interface {
	Channel(ctx context.Context, clinicID uuid.UUID) (*clinic.Channel, error)
}

// SecretSource retrieves channel credentials. Values must never be logged.
type SecretSource interface {
	AccessToken(ctx context.Context, clinicID uuid.UUID) (string, error)
}

// SessionToucher refreshes a session's last-activity timestamp.
type SessionToucher interface {
	Touch(ctx context.Context, sessionID uuid.UUID) error
}

// Sender is the provider client surface the dispatcher needs.
type Sender interface {
	SendText(ctx context.Context, accessToken, phoneNumberID, to string, payload TextPayload) (string, error)
	SendTemplate(ctx context.Context, accessToken, phoneNumberID, to string, payload TemplatePayload) (string, error)
	SendInteractive(ctx context.Context, accessToken, phoneNumberID, to string, payload InteractivePayload) (string, error)
}

// SendRequest describes a single outbound message.
type SendRequest struct {
	ClinicID    uuid.UUID
	SessionID   *uuid.UUID
	Originator  string
	To          string
	Kind        string
	Text        TextPayload
	Template    TemplatePayload
	Interactive InteractivePayload
}

// Dispatcher is the sole point of outbound provider I/O. It resolves channel
// config and credentials, performs the send and records the outbound message.
type Dispatcher struct {
	channels ChannelSource
	secrets  SecretSource
	sender   Sender
	store    *Store
	sessions SessionToucher
	metrics  *metrics.MessagingMetrics
	logger   *logging.Logger
}

type DispatcherConfig struct {
	Channels ChannelSource
	Secrets  SecretSource
	Sender   Sender
	Store    *Store
	Sessions SessionToucher
	Metrics  *metrics.MessagingMetrics
	Logger   *logging.Logger
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Dispatcher{
		channels: cfg.Channels,
		secrets:  cfg.Secrets,
		sender:   cfg.Sender,
		store:    cfg.Store,
		sessions: cfg.Sessions,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
	}
}

// Send dispatches one outbound message and returns the provider message id.
// The message record write is best-effort logging: a failure there is logged
// and must not mask a successful send.
func (d *Dispatcher) Send(ctx context.Context, req SendRequest) (string, error) {
	ch, err := d.channels.Channel(ctx, req.ClinicID)
	if err != nil {
		return "", fmt.Errorf("messaging: resolve channel for clinic %s: %w", req.ClinicID, err)
	}
	if !ch.Enabled {
		return "", fmt.Errorf("%w: clinic %s", ErrChannelDisabled, req.ClinicID)
	}
	if ch.PhoneNumberID == "" {
		return "", fmt.Errorf("%w: clinic %s", ErrChannelUnconfigured, req.ClinicID)
	}

	token, err := d.secrets.AccessToken(ctx, req.ClinicID)
	if err != nil {
		return "", fmt.Errorf("messaging: resolve channel credential for clinic %s: %w", req.ClinicID, err)
	}

	var providerMessageID string
	switch req.Kind {
	case KindText:
		providerMessageID, err = d.sender.SendText(ctx, token, ch.PhoneNumberID, req.To, req.Text)
	case KindTemplate:
		providerMessageID, err = d.sender.SendTemplate(ctx, token, ch.PhoneNumberID, req.To, req.Template)
	case KindInteractive:
		providerMessageID, err = d.sender.SendInteractive(ctx, token, ch.PhoneNumberID, req.To, req.Interactive)
	default:
		return "", fmt.Errorf("messaging: unsupported message kind %q", req.Kind)
	}
	if err != nil {
		d.metrics.ObserveOutbound(req.Kind, "failed")
		return "", err
	}
	d.metrics.ObserveOutbound(req.Kind, "sent")

	if req.SessionID != nil && d.store != nil {
		rec := MessageRecord{
			SessionID:         *req.SessionID,
			ClinicID:          req.ClinicID,
			Direction:         DirectionOutbound,
			ProviderMessageID: providerMessageID,
			Body:              outboundBody(req),
			Kind:              req.Kind,
			Originator:        req.Originator,
			DeliveryStatus:    "sent",
		}
		if _, err := d.store.InsertMessage(ctx, nil, rec); err != nil {
			d.logger.Error("failed to record outbound message", "error", err, "clinic_id", req.ClinicID, "session_id", req.SessionID)
		}
		if d.sessions != nil {
			if err := d.sessions.Touch(ctx, *req.SessionID); err != nil {
				d.logger.Error("failed to touch session activity", "error", err, "session_id", req.SessionID)
			}
		}
	}
	return providerMessageID, nil
}

func outboundBody(req SendRequest) string {
	switch req.Kind {
	case KindText:
		return req.Text.Body
	case KindInteractive:
		return req.Interactive.Body
	case KindTemplate:
		return req.Template.Name
	default:
		return ""
	}
}
