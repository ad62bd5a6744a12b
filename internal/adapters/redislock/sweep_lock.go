// Package redislock provides the cross-instance lock that keeps concurrent
// deployments from running the auction sweep at the same time.
package redislock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/artfolio/auctions/internal/domain/auctions"
)

// releaseScript deletes the lock key only when it still holds our token, so
// an expired lock re-acquired by another instance is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SweepLock implements auctions.Locker with a SET NX lease in Redis
type SweepLock struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

// NewSweepLock creates a lock on the given key. The TTL bounds how long a
// crashed holder can block other instances.
func NewSweepLock(client *redis.Client, key string, ttl time.Duration) *SweepLock {
	return &SweepLock{
		client: client,
		key:    key,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// TryLock attempts to acquire the lock without blocking. Returns false when
// another holder currently has it.
func (l *SweepLock) TryLock(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire sweep lock: %w", err)
	}
	return ok, nil
}

// Unlock releases the lock if this instance still holds it
func (l *SweepLock) Unlock(ctx context.Context) error {
	deleted, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("failed to release sweep lock: %w", err)
	}
	if deleted == 0 {
		return auctions.ErrLockNotHeld
	}
	return nil
}
