package clinic

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrSecretNotFound indicates a clinic has no channel credential on file.
var ErrSecretNotFound = errors.New("clinic: channel credential not found")

// SecretStore reads channel credentials. Tokens must never appear in logs or
// API responses; callers receive the value and nothing else.
type SecretStore struct {
	pool pgxQuerier
}

func NewSecretStore(pool pgxQuerier) *SecretStore {
	if pool == nil {
		return nil
	}
	return &SecretStore{pool: pool}
}

// AccessToken returns the clinic's channel access token.
func (s *SecretStore) AccessToken(ctx context.Context, clinicID uuid.UUID) (string, error) {
	query := `SELECT access_token FROM channel_secrets WHERE clinic_id = $1`
	var token string
	if err := s.pool.QueryRow(ctx, query, clinicID).Scan(&token); err != nil {
		// Deliberately drop the driver error detail so a misconfigured
		// clinic id can never leak credential material into logs.
		return "", fmt.Errorf("%w: clinic %s", ErrSecretNotFound, clinicID)
	}
	if token == "" {
		return "", fmt.Errorf("%w: clinic %s", ErrSecretNotFound, clinicID)
	}
	return token, nil
}
