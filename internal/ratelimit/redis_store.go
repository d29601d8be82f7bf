package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// WindowStore is a shared counter for provider request windows. It lets
// multiple dashboard replicas honor one provider quota together. The
// in-process Limiter remains authoritative for cooldown and circuit state;
// the store only guards the counting windows.
type WindowStore interface {
	// Incr atomically increments the provider's counter for the window and
	// returns the count after the increment and the unix time the window
	// resets.
	Incr(ctx context.Context, provider string, window time.Duration) (count int64, resetAt int64, err error)
}

// RedisWindowStore implements WindowStore using Redis and a Lua script so
// window start and counter stay consistent under concurrent increments.
type RedisWindowStore struct {
	client *redis.Client
	script *redis.Script
}

// NewRedisWindowStore creates a new RedisWindowStore instance.
func NewRedisWindowStore(client *redis.Client) *RedisWindowStore {
	luaScript := `
local window_key = KEYS[1]
local counter_key = KEYS[2]
local now = tonumber(ARGV[1])
local window_size = tonumber(ARGV[2])

local window_start = redis.call('GET', window_key)

if not window_start or (now - tonumber(window_start)) >= window_size then
    redis.call('SET', window_key, tostring(now))
    redis.call('SET', counter_key, 1)
    redis.call('EXPIRE', window_key, window_size)
    redis.call('EXPIRE', counter_key, window_size)
    return {tostring(now), 1}
end

local counter = redis.call('INCR', counter_key)
if redis.call('TTL', counter_key) == -1 then
    redis.call('EXPIRE', counter_key, window_size)
end
return {window_start, counter}
`
	return &RedisWindowStore{
		client: client,
		script: redis.NewScript(luaScript),
	}
}

// Incr increments the shared counter for the provider window.
func (s *RedisWindowStore) Incr(ctx context.Context, provider string, window time.Duration) (int64, int64, error) {
	now := time.Now().Unix()
	windowSize := int64(window.Seconds())
	if windowSize <= 0 {
		windowSize = 60
	}

	// Hash tag keeps window and counter keys on the same Redis node.
	base := fmt.Sprintf("{feedgate:%s}:%ds", provider, windowSize)
	keys := []string{base + ":window", base + ":count"}

	val, err := s.script.Run(ctx, s.client, keys, now, windowSize).Result()
	if err != nil {
		return 0, 0, err
	}

	results, ok := val.([]interface{})
	if !ok || len(results) != 2 {
		return 0, 0, fmt.Errorf("unexpected result from redis script: %T", val)
	}

	windowStart := toInt64(results[0])
	count := toInt64(results[1])
	return count, windowStart + windowSize, nil
}

func toInt64(v interface{}) int64 {
	switch value := v.(type) {
	case int64:
		return value
	case string:
		parsed, _ := strconv.ParseInt(value, 10, 64)
		return parsed
	case float64:
		return int64(value)
	default:
		parsed, _ := strconv.ParseInt(fmt.Sprintf("%v", value), 10, 64)
		return parsed
	}
}
