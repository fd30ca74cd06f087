package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/fileforge/fileforge/internal/auth"
	"github.com/redis/go-redis/v9"
)

// mergeLockPrefix keys the per-source-account merge lock.
const mergeLockPrefix = "merge:lock:"

// releaseLockScript deletes the lock only if it still holds our token, so
// an expired lock re-acquired by someone else is never released by us.
var releaseLockScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// AcquireMergeLock tries to take the merge lock of a source account.
// It returns the lock token and true when acquired.
func (c *Cache) AcquireMergeLock(ctx context.Context, sourceAccountID string, ttl time.Duration) (string, bool, error) {
	token, err := auth.GenerateSessionToken()
	if err != nil {
		return "", false, err
	}

	ok, err := c.client.SetNX(ctx, mergeLockPrefix+sourceAccountID, token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire merge lock: %w", err)
	}
	return token, ok, nil
}

// ReleaseMergeLock releases a lock previously acquired with token.
func (c *Cache) ReleaseMergeLock(ctx context.Context, sourceAccountID, token string) error {
	if err := releaseLockScript.Run(ctx, c.client, []string{mergeLockPrefix + sourceAccountID}, token).Err(); err != nil {
		return fmt.Errorf("failed to release merge lock: %w", err)
	}
	return nil
}
