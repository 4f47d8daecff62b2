package verification

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps one pending code per phone together with its wrong-attempt counter.
// Get returns "" when no live code exists. Take deletes the code only if it equals code,
// as one atomic step; found is false when no live code exists.
type Store interface {
	Save(ctx context.Context, phone, code string, ttl time.Duration) error
	Get(ctx context.Context, phone string) (string, error)
	Take(ctx context.Context, phone, code string) (found, taken bool, err error)
	IncrAttempts(ctx context.Context, phone string) (int, error)
	Delete(ctx context.Context, phone string) error
}

// RedisStore keeps codes under otp:{phone} and attempts under otp_attempts:{phone}.
type RedisStore struct {
	cli *redis.Client
}

func NewRedisStore(cli *redis.Client) *RedisStore {
	return &RedisStore{cli: cli}
}

func (s *RedisStore) Save(ctx context.Context, phone, code string, ttl time.Duration) error {
	pipe := s.cli.TxPipeline()
	pipe.Set(ctx, "otp:"+phone, code, ttl)
	pipe.Set(ctx, "otp_attempts:"+phone, 0, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save code: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, phone string) (string, error) {
	val, err := s.cli.Get(ctx, "otp:"+phone).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get code: %w", err)
	}
	return val, nil
}

// IncrAttempts keeps the counter's TTL aligned with the code it belongs to.
func (s *RedisStore) IncrAttempts(ctx context.Context, phone string) (int, error) {
	n, err := s.cli.Incr(ctx, "otp_attempts:"+phone).Result()
	if err != nil {
		return 0, fmt.Errorf("count attempt: %w", err)
	}
	if ttl, err := s.cli.PTTL(ctx, "otp:"+phone).Result(); err == nil && ttl > 0 {
		s.cli.PExpire(ctx, "otp_attempts:"+phone, ttl)
	}
	return int(n), nil
}

// takeScript returns 0 when no code exists, 1 when it differs and 2 when it was deleted.
var takeScript = redis.NewScript(`
local stored = redis.call("GET", KEYS[1])
if not stored then
	return 0
end
if stored ~= ARGV[1] then
	return 1
end
redis.call("DEL", KEYS[1], KEYS[2])
return 2
`)

func (s *RedisStore) Take(ctx context.Context, phone, code string) (bool, bool, error) {
	res, err := takeScript.Run(ctx, s.cli, []string{"otp:" + phone, "otp_attempts:" + phone}, code).Int()
	if err != nil {
		return false, false, fmt.Errorf("take code: %w", err)
	}
	return res > 0, res == 2, nil
}

func (s *RedisStore) Delete(ctx context.Context, phone string) error {
	if err := s.cli.Del(ctx, "otp:"+phone, "otp_attempts:"+phone).Err(); err != nil {
		return fmt.Errorf("delete code: %w", err)
	}
	return nil
}

type memoryCode struct {
	code     string
	attempts int
	expires  time.Time
}

type memoryStore struct {
	mu    sync.Mutex
	codes map[string]memoryCode
	now   func() time.Time
}

// NewMemoryStore returns a process-local store for development and tests.
func NewMemoryStore() Store {
	return &memoryStore{codes: make(map[string]memoryCode), now: time.Now}
}

func (s *memoryStore) Save(_ context.Context, phone, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[phone] = memoryCode{code: code, expires: s.now().Add(ttl)}
	return nil
}

func (s *memoryStore) Get(_ context.Context, phone string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.live(phone)
	if !ok {
		return "", nil
	}
	return c.code, nil
}

func (s *memoryStore) IncrAttempts(_ context.Context, phone string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.live(phone)
	if !ok {
		return 0, nil
	}
	c.attempts++
	s.codes[phone] = c
	return c.attempts, nil
}

func (s *memoryStore) Take(_ context.Context, phone, code string) (bool, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.live(phone)
	if !ok {
		return false, false, nil
	}
	if subtle.ConstantTimeCompare([]byte(c.code), []byte(code)) != 1 {
		return true, false, nil
	}
	delete(s.codes, phone)
	return true, true, nil
}

func (s *memoryStore) Delete(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, phone)
	return nil
}

func (s *memoryStore) live(phone string) (memoryCode, bool) {
	c, ok := s.codes[phone]
	if !ok {
		return memoryCode{}, false
	}
	if !s.now().Before(c.expires) {
		delete(s.codes, phone)
		return memoryCode{}, false
	}
	return c, true
}
