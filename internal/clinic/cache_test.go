package clinic

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/redis/go-redis/v9"
)

func TestCachedChannelsReadThrough(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	clinicID := uuid.New()
	// Store is hit exactly once; the second lookup is served from Redis.
	mock.ExpectQuery("SELECT (.+) FROM clinic_channels WHERE phone_number_id").
		WithArgs("pnid-1").
		WillReturnRows(channelRows(clinicID, "pnid-1", true))

	cached := NewCachedChannels(NewStore(mock), client, time.Minute, nil)

	for i := 0; i < 2; i++ {
		ch, err := cached.ChannelByPhoneNumberID(context.Background(), "pnid-1")
		if err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
		if ch.ClinicID != clinicID {
			t.Fatalf("lookup %d: unexpected clinic id", i)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expected a single store read: %v", err)
	}
}

func TestCachedChannelsCorruptEntryFallsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	clinicID := uuid.New()
	if err := mr.Set(channelByClinicKey+clinicID.String(), "not-json"); err != nil {
		t.Fatalf("seed redis: %v", err)
	}

	mock.ExpectQuery("SELECT (.+) FROM clinic_channels WHERE clinic_id").
		WithArgs(clinicID).
		WillReturnRows(channelRows(clinicID, "pnid-1", true))

	cached := NewCachedChannels(NewStore(mock), client, time.Minute, nil)
	ch, err := cached.Channel(context.Background(), clinicID)
	if err != nil {
		t.Fatalf("expected fallback to store, got %v", err)
	}
	if ch.PhoneNumberID != "pnid-1" {
		t.Errorf("unexpected channel %+v", ch)
	}
}

func TestCachedChannelsInvalidate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	ch := &Channel{ClinicID: uuid.New(), PhoneNumberID: "pnid-9"}
	raw, _ := json.Marshal(ch)
	if err := mr.Set(channelByClinicKey+ch.ClinicID.String(), string(raw)); err != nil {
		t.Fatalf("seed redis: %v", err)
	}
	if err := mr.Set(channelByNumberKey+ch.PhoneNumberID, string(raw)); err != nil {
		t.Fatalf("seed redis: %v", err)
	}

	cached := NewCachedChannels(NewStore(mock), client, time.Minute, nil)
	cached.Invalidate(context.Background(), ch)

	if mr.Exists(channelByClinicKey + ch.ClinicID.String()) {
		t.Error("clinic key should be gone")
	}
	if mr.Exists(channelByNumberKey + ch.PhoneNumberID) {
		t.Error("phone number key should be gone")
	}
}

func TestCachedChannelsNilClientDegradesToStore(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	clinicID := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM clinic_channels WHERE clinic_id").
		WithArgs(clinicID).
		WillReturnRows(channelRows(clinicID, "pnid-1", true))

	cached := NewCachedChannels(NewStore(mock), nil, time.Minute, nil)
	if _, err := cached.Channel(context.Background(), clinicID); err != nil {
		t.Fatalf("expected direct store read, got %v", err)
	}
}
