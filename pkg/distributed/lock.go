package distributed

import (
	"context"
	"fmt"
	"time"

	"whipcast/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the lock key only when it is still held by the value
// that acquired it, so a holder cannot release a lock that expired and was
// re-acquired by someone else.
const unlockScript = `
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`

// Lock is a non-blocking distributed lock on a single Redis key. Each Lock
// instance carries its own holder value; TTL bounds how long a crashed
// holder can keep the key.
type Lock struct {
	client *redis.Client
	key    string
	value  string
	ttl    time.Duration
}

func NewLock(client *redis.Client, key string, ttl time.Duration) *Lock {
	return &Lock{
		client: client,
		key:    key,
		value:  utils.GenerateLockValue(),
		ttl:    ttl,
	}
}

// TryLock attempts to acquire the lock without blocking. It reports whether
// this instance now holds it.
func (l *Lock) TryLock(ctx context.Context) (bool, error) {
	acquired, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	return acquired, nil
}

// Unlock releases the lock if this instance still holds it. Releasing a lock
// held by another instance is a no-op, reported via the return value.
func (l *Lock) Unlock(ctx context.Context) (bool, error) {
	result, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Result()
	if err != nil {
		return false, fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	n, ok := result.(int64)
	return ok && n > 0, nil
}

// ForceUnlock deletes the lock key regardless of the holder. Operator
// tooling only.
func (l *Lock) ForceUnlock(ctx context.Context) error {
	if err := l.client.Del(ctx, l.key).Err(); err != nil {
		return fmt.Errorf("failed to force-release lock %s: %w", l.key, err)
	}
	return nil
}

// Extend refreshes the TTL while the lock is held.
func (l *Lock) Extend(ctx context.Context) error {
	ok, err := l.client.Expire(ctx, l.key, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to extend lock %s: %w", l.key, err)
	}
	if !ok {
		return fmt.Errorf("lock %s is no longer held", l.key)
	}
	return nil
}
