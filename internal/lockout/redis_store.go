package lockout

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "lockout:v1:"

// recordFailure clears an expired lock, increments the counter and, once the counter
// reaches the threshold, stamps locked_until. KEYS[1] = hash key.
// ARGV = threshold, now (unix ms), lock until (unix ms), ttl (ms).
var recordFailure = redis.NewScript(`
local until = tonumber(redis.call('HGET', KEYS[1], 'locked_until') or '0')
local now = tonumber(ARGV[2])
if until > 0 and until <= now then
  redis.call('DEL', KEYS[1])
  until = 0
end
local count = redis.call('HINCRBY', KEYS[1], 'failed', 1)
if count >= tonumber(ARGV[1]) and until <= now then
  until = tonumber(ARGV[3])
  redis.call('HSET', KEYS[1], 'locked_until', until)
end
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return {count, until}
`)

// RedisStore keeps lockout counters in Redis hashes so every API instance sees the same lock.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) key(phone string) string { return redisKeyPrefix + phone }

func (s *RedisStore) Load(ctx context.Context, phone string) (State, error) {
	vals, err := s.client.HGetAll(ctx, s.key(phone)).Result()
	if err != nil {
		return State{}, fmt.Errorf("load lockout: %w", err)
	}
	st := State{Phone: phone}
	if v, ok := vals["failed"]; ok {
		st.FailedAttempts, _ = strconv.Atoi(v)
	}
	if v, ok := vals["locked_until"]; ok {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil && ms > 0 {
			st.LockedUntil = time.UnixMilli(ms)
		}
	}
	return st, nil
}

func (s *RedisStore) RecordFailure(ctx context.Context, phone string, threshold int, now, lockUntil time.Time, ttl time.Duration) (State, error) {
	res, err := recordFailure.Run(ctx, s.client, []string{s.key(phone)},
		threshold, now.UnixMilli(), lockUntil.UnixMilli(), ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return State{}, fmt.Errorf("record failure: %w", err)
	}
	st := State{Phone: phone, FailedAttempts: int(res[0])}
	if res[1] > 0 {
		st.LockedUntil = time.UnixMilli(res[1])
	}
	return st, nil
}

func (s *RedisStore) Lock(ctx context.Context, phone string, until time.Time, ttl time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.key(phone), "locked_until", until.UnixMilli())
	pipe.PExpire(ctx, s.key(phone), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("lock: %w", err)
	}
	return nil
}

func (s *RedisStore) Reset(ctx context.Context, phone string) error {
	if err := s.client.Del(ctx, s.key(phone)).Err(); err != nil {
		return fmt.Errorf("reset lockout: %w", err)
	}
	return nil
}
