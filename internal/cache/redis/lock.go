package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/syntheticfi/boxloan/internal/domain"
)

// releaseLua deletes a lock key only when its value still carries the
// holder's token, so a holder whose TTL lapsed cannot release a lock that
// was since re-acquired by another replica.
const releaseLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// lockKeyPrefix namespaces lock keys away from the contract cache and
// rate limit keys sharing the same Redis database.
const lockKeyPrefix = "boxloan:lock:"

// releaseTimeout bounds the release round trip once the holder's own
// context is gone.
const releaseTimeout = 5 * time.Second

// LockManager implements domain.LockManager with SETNX plus a TTL. Its
// one production job is making sure a single replica refreshes the
// contract feed per interval.
type LockManager struct {
	rdb     *redis.Client
	release *redis.Script
}

// NewLockManager creates a LockManager backed by the given Client.
func NewLockManager(c *Client) *LockManager {
	return &LockManager{
		rdb:     c.Underlying(),
		release: redis.NewScript(releaseLua),
	}
}

// Acquire takes the lock for key with the given TTL and returns a release
// function that is safe to call more than once. It returns
// domain.ErrLockHeld while another replica holds the lock; the TTL covers
// holders that die without releasing.
func (lm *LockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.New().String()
	lk := lockKeyPrefix + key

	ok, err := lm.rdb.SetNX(ctx, lk, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrLockHeld
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true

		// The caller's context may already be cancelled on shutdown.
		relCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()

		_ = lm.release.Run(relCtx, lm.rdb, []string{lk}, token).Err()
	}, nil
}

// Compile-time interface check.
var _ domain.LockManager = (*LockManager)(nil)
