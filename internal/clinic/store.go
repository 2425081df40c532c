package clinic

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads clinic channel configuration from Postgres.
type Store struct {
	pool pgxQuerier
}

func NewStore(pool pgxQuerier) *Store {
	if pool == nil {
		return nil
	}
	return &Store{pool: pool}
}

const channelColumns = `
	clinic_id, phone_number_id, enabled, verify_token,
	COALESCE(model_id, ''), COALESCE(timezone, ''),
	remind_day_before, remind_same_day,
	COALESCE(template_day_before, ''), COALESCE(template_same_day, ''),
	COALESCE(template_language, 'pt_BR')
`

func scanChannel(row pgx.Row) (*Channel, error) {
	var ch Channel
	if err := row.Scan(&ch.ClinicID, &ch.PhoneNumberID, &ch.Enabled, &ch.VerifyToken, &ch.ModelID, &ch.Timezone, &ch.RemindDayBefore, &ch.RemindSameDay, &ch.TemplateDayBefore, &ch.TemplateSameDay, &ch.TemplateLanguage); err != nil {
		return nil, err
	}
	return &ch, nil
}

// Channel returns a clinic's channel configuration.
func (s *Store) Channel(ctx context.Context, clinicID uuid.UUID) (*Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM clinic_channels WHERE clinic_id = $1`
	ch, err := scanChannel(s.pool.QueryRow(ctx, query, clinicID))
	if err != nil {
		return nil, fmt.Errorf("clinic: load channel for %s: %w", clinicID, err)
	}
	return ch, nil
}

// ChannelByPhoneNumberID resolves the enabled channel owning a provider phone
// number id. Returns pgx.ErrNoRows (wrapped) when no enabled clinic matches.
func (s *Store) ChannelByPhoneNumberID(ctx context.Context, phoneNumberID string) (*Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM clinic_channels WHERE phone_number_id = $1 AND enabled LIMIT 1`
	ch, err := scanChannel(s.pool.QueryRow(ctx, query, phoneNumberID))
	if err != nil {
		return nil, fmt.Errorf("clinic: resolve channel by phone number id: %w", err)
	}
	return ch, nil
}

// ChannelByVerifyToken resolves the enabled channel whose stored verify token
// matches, for the webhook verification handshake.
func (s *Store) ChannelByVerifyToken(ctx context.Context, token string) (*Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM clinic_channels WHERE verify_token = $1 AND enabled LIMIT 1`
	ch, err := scanChannel(s.pool.QueryRow(ctx, query, token))
	if err != nil {
		return nil, fmt.Errorf("clinic: resolve channel by verify token: %w", err)
	}
	return ch, nil
}

// EnabledChannels lists all enabled channels, used by the reminder batch.
func (s *Store) EnabledChannels(ctx context.Context) ([]Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM clinic_channels WHERE enabled`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("clinic: list enabled channels: %w", err)
	}
	defer rows.Close()
	var out []Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("clinic: scan channel: %w", err)
		}
		out = append(out, *ch)
	}
	return out, rows.Err()
}

// EscalationRecipients returns the staff addresses configured for escalation
// notices.
func (s *Store) EscalationRecipients(ctx context.Context, clinicID uuid.UUID) ([]string, error) {
	query := `SELECT COALESCE(notification_emails, '{}') FROM clinics WHERE id = $1`
	var emails []string
	if err := s.pool.QueryRow(ctx, query, clinicID).Scan(&emails); err != nil {
		return nil, fmt.Errorf("clinic: load escalation recipients: %w", err)
	}
	return emails, nil
}

// Info returns the clinic display facts used in AI prompts.
func (s *Store) Info(ctx context.Context, clinicID uuid.UUID) (*Info, error) {
	query := `
		SELECT id, name, COALESCE(address, ''), COALESCE(phone, '')
		FROM clinics
		WHERE id = $1
	`
	var info Info
	if err := s.pool.QueryRow(ctx, query, clinicID).Scan(&info.ID, &info.Name, &info.Address, &info.Phone); err != nil {
		return nil, fmt.Errorf("clinic: load info for %s: %w", clinicID, err)
	}
	return &info, nil
}
