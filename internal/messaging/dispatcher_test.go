package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/clinvia/whatsapp-engage/internal/clinic"
)

type stubChannels struct {
	ch  *clinic.Channel
	err error
}

func (s *stubChannels) Channel(context.Context, uuid.UUID) (*clinic.Channel, error) {
	return s.ch, s.err
}

type stubSecrets struct {
	token string
	err   error
}

func (s *stubSecrets) AccessToken(context.Context, uuid.UUID) (string, error) {
	return s.token, s.err
}

type stubSender struct {
	lastKind  string
	lastToken string
	lastPNID  string
	id        string
	err       error
}

func (s *stubSender) SendText(_ context.Context, token, pnid, _ string, _ TextPayload) (string, error) {
	s.lastKind, s.lastToken, s.lastPNID = KindText, token, pnid
	return s.id, s.err
}

func (s *stubSender) SendTemplate(_ context.Context, token, pnid, _ string, _ TemplatePayload) (string, error) {
	s.lastKind, s.lastToken, s.lastPNID = KindTemplate, token, pnid
	return s.id, s.err
}

func (s *stubSender) SendInteractive(_ context.Context, token, pnid, _ string, _ InteractivePayload) (string, error) {
	s.lastKind, s.lastToken, s.lastPNID = KindInteractive, token, pnid
	return s.id, s.err
}

func TestDispatcherSendText(t *testing.T) {
	clinicID := uuid.New()
	sender := &stubSender{id: "wamid.OK"}
	d := NewDispatcher(DispatcherConfig{
		Channels: &stubChannels{ch: &clinic.Channel{ClinicID: clinicID, PhoneNumberID: "pnid-1", Enabled: true}},
		Secrets:  &stubSecrets{token: "tok-1"},
		Sender:   sender,
	})

	id, err := d.Send(context.Background(), SendRequest{
		ClinicID:   clinicID,
		Originator: OriginatorAI,
		To:         "5511999998888",
		Kind:       KindText,
		Text:       TextPayload{Body: "Olá"},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if id != "wamid.OK" {
		t.Fatalf("unexpected provider id %q", id)
	}
	if sender.lastKind != KindText || sender.lastToken != "tok-1" || sender.lastPNID != "pnid-1" {
		t.Errorf("sender called with wrong values: %+v", sender)
	}
}

func TestDispatcherRejectsDisabledChannel(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{
		Channels: &stubChannels{ch: &clinic.Channel{PhoneNumberID: "pnid-1", Enabled: false}},
		Secrets:  &stubSecrets{token: "tok"},
		Sender:   &stubSender{},
	})

	_, err := d.Send(context.Background(), SendRequest{ClinicID: uuid.New(), To: "55119", Kind: KindText, Text: TextPayload{Body: "x"}})
	if !errors.Is(err, ErrChannelDisabled) {
		t.Fatalf("expected ErrChannelDisabled, got %v", err)
	}
}

func TestDispatcherRejectsUnconfiguredChannel(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{
		Channels: &stubChannels{ch: &clinic.Channel{Enabled: true}},
		Secrets:  &stubSecrets{token: "tok"},
		Sender:   &stubSender{},
	})

	_, err := d.Send(context.Background(), SendRequest{ClinicID: uuid.New(), To: "55119", Kind: KindText, Text: TextPayload{Body: "x"}})
	if !errors.Is(err, ErrChannelUnconfigured) {
		t.Fatalf("expected ErrChannelUnconfigured, got %v", err)
	}
}

func TestDispatcherRejectsUnknownKind(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{
		Channels: &stubChannels{ch: &clinic.Channel{PhoneNumberID: "pnid", Enabled: true}},
		Secrets:  &stubSecrets{token: "tok"},
		Sender:   &stubSender{},
	})

	if _, err := d.Send(context.Background(), SendRequest{ClinicID: uuid.New(), To: "55119", Kind: "video"}); err == nil {
		t.Fatal("expected error for unsupported kind")
	}
}

func TestDispatcherPropagatesProviderError(t *testing.T) {
	provErr := &ProviderError{StatusCode: 502, Description: "downstream"}
	d := NewDispatcher(DispatcherConfig{
		Channels: &stubChannels{ch: &clinic.Channel{PhoneNumberID: "pnid", Enabled: true}},
		Secrets:  &stubSecrets{token: "tok"},
		Sender:   &stubSender{err: provErr},
	})

	_, err := d.Send(context.Background(), SendRequest{ClinicID: uuid.New(), To: "55119", Kind: KindText, Text: TextPayload{Body: "x"}})
	var got *ProviderError
	if !errors.As(err, &got) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
}
