// Package flags provides the durable readiness/idempotency markers used to
// join the parallel pipeline branches. Keys take the form
// "{project_id}:{flag}".
//
// TryAcquire is the only safe gate for one-time side effects (starting video
// assembly, enqueuing the CDN send): exactly one caller wins, everyone else
// skips. When the backing store is unreachable the store fails OPEN — the
// caller is treated as the winner rather than deadlocking the pipeline. That
// trades exactly-once for liveness during a store outage, deliberately.
package flags

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultTTL bounds how long an idempotency flag survives. Long enough to
// cover any realistic pipeline run, short enough that a crashed run does not
// poison the next day's rerun forever.
const DefaultTTL = 6 * time.Hour

// Key builds the canonical flag key for a project.
func Key(projectID int64, flag string) string {
	return fmt.Sprintf("%d:%s", projectID, flag)
}

// Store is the readiness/idempotency marker contract.
type Store interface {
	// MarkDone sets a flag unconditionally. Idempotent.
	MarkDone(ctx context.Context, key string) error

	// IsDone reports whether a flag is set.
	IsDone(ctx context.Context, key string) bool

	// TryAcquire atomically sets the flag if absent. Returns true only to
	// the caller that wins the race. Fails open on store errors.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) bool

	// Clear removes flags, used when a fresh pipeline run starts.
	Clear(ctx context.Context, keys ...string) error
}

// ---------------------------------------------------------------------------
// Redis implementation
// ---------------------------------------------------------------------------

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) MarkDone(ctx context.Context, key string) error {
	if err := s.client.Set(ctx, key, "1", DefaultTTL).Err(); err != nil {
		return fmt.Errorf("failed to mark %s done: %w", key, err)
	}
	return nil
}

func (s *RedisStore) IsDone(ctx context.Context, key string) bool {
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		log.Printf("[Flags] IsDone(%s) redis error: %v", key, err)
		return false
	}
	return val == "1"
}

func (s *RedisStore) TryAcquire(ctx context.Context, key string, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ok, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		// Fail open: better to risk a duplicate one-time action than to
		// block the pipeline while redis is down.
		log.Printf("[Flags] TryAcquire(%s) redis error, failing open: %v", key, err)
		return true
	}
	return ok
}

func (s *RedisStore) Clear(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to clear flags: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// In-memory implementation — single-process runs and tests
// ---------------------------------------------------------------------------

type MemoryStore struct {
	mu    sync.Mutex
	flags map[string]time.Time // key -> expiry (zero = no expiry)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{flags: make(map[string]time.Time)}
}

func (s *MemoryStore) MarkDone(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[key] = time.Time{}
	return nil
}

func (s *MemoryStore) IsDone(ctx context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.present(key)
}

func (s *MemoryStore) TryAcquire(ctx context.Context, key string, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.present(key) {
		return false
	}
	s.flags[key] = time.Now().Add(ttl)
	return true
}

func (s *MemoryStore) Clear(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.flags, k)
	}
	return nil
}

// present must be called with the lock held.
func (s *MemoryStore) present(key string) bool {
	expiry, ok := s.flags[key]
	if !ok {
		return false
	}
	if !expiry.IsZero() && time.Now().After(expiry) {
		delete(s.flags, key)
		return false
	}
	return true
}
