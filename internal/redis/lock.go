package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Availability saves for one mentor are serialized through a short-lived
// Redis lock: two concurrent saves would otherwise race on the slot
// collections with last-writer-wins semantics. The financial path does not
// use this; it relies on row-level database locks.

const lockKeyPrefix = "availability-lock:"

var unlockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

type MentorLock struct {
	client *Client
	key    string
	token  string
}

// AcquireMentorLock takes the per-mentor availability lock, waiting up to
// the context deadline. It polls rather than subscribing; saves are rare
// and the hold time is a single transaction.
func (c *Client) AcquireMentorLock(ctx context.Context, mentorID string, ttl time.Duration) (*MentorLock, error) {
	key := lockKeyPrefix + mentorID
	token := uuid.NewString()

	for {
		ok, err := c.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire mentor lock: %w", err)
		}
		if ok {
			return &MentorLock{client: c, key: key, token: token}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire mentor lock: %w", ctx.Err())
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Release drops the lock if it is still held by this owner. An expired or
// stolen lock is released as a no-op.
func (l *MentorLock) Release(ctx context.Context) error {
	return unlockScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}
