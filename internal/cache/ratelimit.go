package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// bucket describes one token bucket family stored under prefix.
type bucket struct {
	prefix string
	// refill rate in tokens per second
	rate  float64
	burst int
	ttl   time.Duration
}

func (b bucket) key(subject string) string {
	return "ratelimit:" + b.prefix + ":" + subject
}

// redeemBucket throttles merge code attempts per account. Codes are short,
// so guessing has to stay slow.
func redeemBucket(perMinute, burst int) bucket {
	return bucket{prefix: "redeem", rate: float64(perMinute) / 60, burst: burst, ttl: 2 * time.Minute}
}

// authBucket throttles the OAuth endpoints per hashed client IP.
func authBucket(perSecond, burst int) bucket {
	return bucket{prefix: "auth", rate: float64(perSecond), burst: burst, ttl: 10 * time.Second}
}

// takeTokenScript refills and takes one token atomically. Times are in
// milliseconds so sub-second refill rates stay exact.
var takeTokenScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])
	local burst = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])
	local ttl = tonumber(ARGV[4])

	local state = redis.call('HMGET', key, 'tokens', 'ts')
	local tokens = tonumber(state[1]) or burst
	local ts = tonumber(state[2]) or now

	tokens = math.min(burst, tokens + (math.max(0, now - ts) / 1000) * rate)

	local allowed = 0
	local wait = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		wait = math.ceil(((1 - tokens) / rate) * 1000)
	end

	redis.call('HSET', key, 'tokens', tokens, 'ts', now)
	redis.call('PEXPIRE', key, ttl)

	return {allowed, wait, math.floor(tokens)}
`)

// CheckRedeemRateLimit takes a merge code attempt from accountID's bucket.
// A non-positive rate disables the limit.
func (c *Cache) CheckRedeemRateLimit(ctx context.Context, accountID string, ratePerMinute, burst int) (*RateLimitResult, error) {
	if ratePerMinute <= 0 {
		return unlimited(burst), nil
	}
	return c.take(ctx, redeemBucket(ratePerMinute, burst), accountID)
}

// CheckIPRateLimit takes a request from the client IP's bucket. Raw
// addresses never reach Redis.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*RateLimitResult, error) {
	if ratePerSecond <= 0 {
		return unlimited(burst), nil
	}
	return c.take(ctx, authBucket(ratePerSecond, burst), hashIP(ip))
}

func (c *Cache) take(ctx context.Context, b bucket, subject string) (*RateLimitResult, error) {
	now := time.Now()
	res, err := takeTokenScript.Run(ctx, c.client,
		[]string{b.key(subject)},
		b.rate, b.burst, now.UnixMilli(), b.ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit %s: %w", b.prefix, err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("rate limit %s: unexpected reply %v", b.prefix, res)
	}

	wait := time.Duration(res[1]) * time.Millisecond
	return &RateLimitResult{
		Allowed:    res[0] == 1,
		Remaining:  res[2],
		ResetAt:    now.Add(b.refillTime()),
		RetryAfter: wait,
	}, nil
}

// refillTime is how long one token takes to come back.
func (b bucket) refillTime() time.Duration {
	return time.Duration(float64(time.Second) / b.rate)
}

func unlimited(burst int) *RateLimitResult {
	return &RateLimitResult{
		Allowed:   true,
		Remaining: int64(burst),
		ResetAt:   time.Now().Add(time.Minute),
	}
}

// hashIP keeps the first 8 bytes of the SHA-256 digest as hex.
func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}
