package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/clinvia/whatsapp-engage/pkg/logging"
)

const (
	channelByClinicKey = "channel:clinic:"
	channelByNumberKey = "channel:pnid:"
)

// CachedChannels is a Redis read-through cache in front of the channel store,
// for the webhook hot path. Cache failures degrade to direct store reads.
type CachedChannels struct {
	store  *Store
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

func NewCachedChannels(store *Store, client *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedChannels {
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedChannels{store: store, client: client, ttl: ttl, logger: logger}
}

// Channel returns a clinic's channel config, preferring the cache.
func (c *CachedChannels) Channel(ctx context.Context, clinicID uuid.UUID) (*Channel, error) {
	if ch := c.cached(ctx, channelByClinicKey+clinicID.String()); ch != nil {
		return ch, nil
	}
	ch, err := c.store.Channel(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	c.put(ctx, channelByClinicKey+clinicID.String(), ch)
	return ch, nil
}

// ChannelByPhoneNumberID resolves an enabled channel by provider phone number
// id, preferring the cache.
func (c *CachedChannels) ChannelByPhoneNumberID(ctx context.Context, phoneNumberID string) (*Channel, error) {
	if ch := c.cached(ctx, channelByNumberKey+phoneNumberID); ch != nil {
		return ch, nil
	}
	ch, err := c.store.ChannelByPhoneNumberID(ctx, phoneNumberID)
	if err != nil {
		return nil, err
	}
	c.put(ctx, channelByNumberKey+phoneNumberID, ch)
	return ch, nil
}

// ChannelByVerifyToken resolves an enabled channel by its verification token.
// The handshake is rare, so this is a direct store read.
func (c *CachedChannels) ChannelByVerifyToken(ctx context.Context, token string) (*Channel, error) {
	return c.store.ChannelByVerifyToken(ctx, token)
}

// Invalidate drops a clinic's cached channel entries after an admin change.
func (c *CachedChannels) Invalidate(ctx context.Context, ch *Channel) {
	if c.client == nil || ch == nil {
		return
	}
	keys := []string{channelByClinicKey + ch.ClinicID.String()}
	if ch.PhoneNumberID != "" {
		keys = append(keys, channelByNumberKey+ch.PhoneNumberID)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn("failed to invalidate channel cache", "error", err, "clinic_id", ch.ClinicID)
	}
}

func (c *CachedChannels) cached(ctx context.Context, key string) *Channel {
	if c.client == nil {
		return nil
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("channel cache read failed", "error", err, "key", key)
		}
		return nil
	}
	var ch Channel
	if err := json.Unmarshal(raw, &ch); err != nil {
		c.logger.Warn("channel cache entry corrupt", "error", err, "key", key)
		return nil
	}
	return &ch
}

func (c *CachedChannels) put(ctx context.Context, key string, ch *Channel) {
	if c.client == nil {
		return
	}
	raw, err := json.Marshal(ch)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("channel cache write failed", "error", err, "key", key)
	}
}
