package access

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:"

// RedisSessions is a SessionProvider backed by Redis. Session records are
// JSON principals stored under "session:<id>"; creation and expiry of the
// records is the login flow's business, not ours.
type RedisSessions struct {
	client *redis.Client
}

// NewRedisSessions creates a Redis-backed session provider.
func NewRedisSessions(client *redis.Client) *RedisSessions {
	return &RedisSessions{client: client}
}

// Lookup resolves a session ID. A missing key is ErrNoSession; anything
// else is a transient provider failure.
func (s *RedisSessions) Lookup(ctx context.Context, sessionID string) (Principal, error) {
	payload, err := s.client.Get(ctx, sessionKeyPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Principal{}, ErrNoSession
		}
		return Principal{}, err
	}
	var p Principal
	if err := json.Unmarshal(payload, &p); err != nil {
		return Principal{}, err
	}
	return p, nil
}

// Put stores a session record with a time-to-live. Exposed for seeding and
// tests; the dispatcher itself never creates sessions.
func (s *RedisSessions) Put(ctx context.Context, sessionID string, p Principal, ttl time.Duration) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionKeyPrefix+sessionID, payload, ttl).Err()
}
