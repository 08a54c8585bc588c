package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// bucketScript keeps one token bucket per key in a hash. Tokens are stored
// in thousandths so the script only deals in integers, and the script itself
// works out how long a denied caller has to wait.
//
// KEYS[1] bucket key
// ARGV    refill per second (milli-tokens), capacity (milli-tokens), ttl ms
// returns {allowed, remaining tokens, wait ms}
const bucketScript = `
local refill = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local t = redis.call("TIME")
local now = t[1] * 1000 + math.floor(t[2] / 1000)

local level = tonumber(redis.call("HGET", KEYS[1], "level"))
local seen = tonumber(redis.call("HGET", KEYS[1], "seen"))
if level == nil or seen == nil then
  level = capacity
elseif now > seen then
  level = math.min(capacity, level + math.floor((now - seen) * refill / 1000))
end

local allowed = 0
local wait = 0
if level >= 1000 then
  allowed = 1
  level = level - 1000
else
  wait = math.ceil((1000 - level) * 1000 / refill)
end

redis.call("HSET", KEYS[1], "level", level, "seen", now)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, math.floor(level / 1000), wait}
`

var errBucketMisconfigured = errors.New("token bucket needs a redis client, a positive rate and a positive burst")

// Decision is the outcome of one bucket check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// TokenBucket is a redis-backed token bucket shared by every API replica.
type TokenBucket struct {
	client redis.Scripter
	script *redis.Script
	rate   float64
	burst  int
}

func NewTokenBucket(client redis.Scripter, rate float64, burst int) (*TokenBucket, error) {
	if client == nil || rate <= 0 || burst <= 0 {
		return nil, errBucketMisconfigured
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(bucketScript),
		rate:   rate,
		burst:  burst,
	}, nil
}

// Take spends one token from the bucket stored under key.
func (b *TokenBucket) Take(ctx context.Context, key string) (Decision, error) {
	if key == "" {
		return Decision{}, errors.New("token bucket key is empty")
	}

	refill, capacity := b.milliTokens()
	raw, err := b.script.Run(ctx, b.client, []string{key}, refill, capacity, bucketTTL(b.rate, b.burst).Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("token bucket %s: %w", key, err)
	}
	if len(raw) != 3 {
		return Decision{}, fmt.Errorf("token bucket %s: unexpected reply of %d values", key, len(raw))
	}

	return Decision{
		Allowed:    raw[0] == 1,
		Limit:      b.burst,
		Remaining:  int(raw[1]),
		RetryAfter: time.Duration(raw[2]) * time.Millisecond,
	}, nil
}

func (b *TokenBucket) milliTokens() (refill, capacity int64) {
	refill = int64(math.Round(b.rate * 1000))
	if refill < 1 {
		refill = 1
	}
	return refill, int64(b.burst) * 1000
}

// bucketTTL keeps an idle bucket around for twice the time it takes to fill
// up, after which a fresh full bucket is equivalent.
func bucketTTL(rate float64, burst int) time.Duration {
	if rate <= 0 || burst <= 0 {
		return time.Second
	}
	seconds := math.Ceil(2 * float64(burst) / rate)
	return time.Duration(math.Max(seconds, 1)) * time.Second
}
