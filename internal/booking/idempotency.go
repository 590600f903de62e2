package booking

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// MemoryTokens is the in-process TokenStore used when Redis is not
// configured. Tokens live for the lifetime of the process, which is enough
// for single-instance retry safety.
type MemoryTokens struct {
	mu     sync.RWMutex
	tokens map[string]string
}

func NewMemoryTokens() *MemoryTokens {
	return &MemoryTokens{tokens: make(map[string]string)}
}

func (m *MemoryTokens) Get(ctx context.Context, token string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.tokens[token]
	return id, ok
}

func (m *MemoryTokens) Set(ctx context.Context, token, bookingID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = bookingID
}

// RedisTokens stores idempotency tokens in Redis with a TTL so retries keep
// working across server instances and restarts.
type RedisTokens struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisTokens(addr, password string, ttl time.Duration) *RedisTokens {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisTokens{client: c, ttl: ttl}
}

func (r *RedisTokens) Get(ctx context.Context, token string) (string, bool) {
	v, err := r.client.Get(ctx, tokenKey(token)).Result()
	if err != nil {
		return "", false
	}
	return v, true
}

func (r *RedisTokens) Set(ctx context.Context, token, bookingID string) {
	_ = r.client.Set(ctx, tokenKey(token), bookingID, r.ttl).Err()
}

func tokenKey(token string) string { return "booking:token:" + token }
