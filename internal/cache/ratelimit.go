package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// authLimitPrefix namespaces per-client keys for signup and login.
const authLimitPrefix = "ratelimit:auth:"

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// gcraScript is a generic cell rate limiter. The key stores the theoretical
// arrival time (TAT) in milliseconds; a request is admitted while the TAT
// stays within burst emission intervals of now.
//
// ARGV: emission interval ms, burst, now ms.
// Returns: allowed, retry after ms, remaining, ms until the bucket is full.
var gcraScript = redis.NewScript(`
local interval = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])

local tat = tonumber(redis.call('GET', KEYS[1]))
if not tat or tat < now then
	tat = now
end

local limit = interval * burst
local next_tat = tat + interval
local allow_at = next_tat - limit

if now < allow_at then
	return {0, allow_at - now, 0, tat - now}
end

redis.call('SET', KEYS[1], next_tat, 'PX', math.max(1, next_tat - now))
local remaining = math.floor((limit - (next_tat - now)) / interval)
return {1, 0, remaining, next_tat - now}
`)

// CheckIPRateLimit admits one request from ip against a budget of
// ratePerSecond with bursts up to burst. Only a hash of the address is
// stored.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*RateLimitResult, error) {
	if ratePerSecond <= 0 || burst <= 0 {
		return nil, fmt.Errorf("invalid rate limit %d/s burst %d", ratePerSecond, burst)
	}

	now := time.Now()
	interval := int64(time.Second/time.Millisecond) / int64(ratePerSecond)
	if interval < 1 {
		interval = 1
	}

	res, err := gcraScript.Run(ctx, c.client,
		[]string{authLimitPrefix + hashIP(ip)},
		interval, burst, now.UnixMilli(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 4 {
		return nil, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}

	return &RateLimitResult{
		Allowed:    res[0] == 1,
		RetryAfter: time.Duration(res[1]) * time.Millisecond,
		Remaining:  res[2],
		ResetAt:    now.Add(time.Duration(res[3]) * time.Millisecond),
	}, nil
}

// hashIP returns 16 hex characters of SHA-256 over the address.
func hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}
