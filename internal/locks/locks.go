package locks

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	expiresAt time.Time
}

// Manager provides named try-locks with TTL expiration. The booking
// coordinator uses one lock per trip id so seat mutations on a single trip
// serialize while unrelated trips proceed concurrently. The TTL guards
// against a holder that never releases (for example a panicking request
// handler) wedging a trip forever.
type Manager struct {
	mu    sync.Mutex
	locks map[string]*entry
	ttl   time.Duration
}

func NewManager(ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &Manager{locks: make(map[string]*entry), ttl: ttl}
}

// TryAcquire attempts to take the named lock. It returns false when the lock
// is held and unexpired.
func (m *Manager) TryAcquire(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.locks[key]; ok && time.Now().Before(e.expiresAt) {
		return false
	}
	m.locks[key] = &entry{expiresAt: time.Now().Add(m.ttl)}
	return true
}

// Release frees the named lock before its TTL expires.
func (m *Manager) Release(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
}

// Acquire retries TryAcquire with doubling backoff until it succeeds, the
// attempts are exhausted, or ctx is done. It returns false when the lock was
// not obtained; the caller surfaces that as a retryable contention failure.
func (m *Manager) Acquire(ctx context.Context, key string, attempts int, delay time.Duration) bool {
	for i := 0; i < attempts; i++ {
		if m.TryAcquire(key) {
			return true
		}
		if i == attempts-1 {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		delay *= 2
	}
	return false
}
