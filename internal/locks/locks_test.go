package locks

import (
	"context"
	"testing"
	"time"
)

func TestTryAcquireAndRelease(t *testing.T) {
	m := NewManager(time.Second)
	if !m.TryAcquire("trip-1") {
		t.Fatal("fresh lock should acquire")
	}
	if m.TryAcquire("trip-1") {
		t.Fatal("held lock should not acquire")
	}
	if !m.TryAcquire("trip-2") {
		t.Fatal("unrelated key should acquire")
	}
	m.Release("trip-1")
	if !m.TryAcquire("trip-1") {
		t.Fatal("released lock should acquire")
	}
}

func TestTTLExpiry(t *testing.T) {
	m := NewManager(10 * time.Millisecond)
	if !m.TryAcquire("k") {
		t.Fatal("acquire failed")
	}
	time.Sleep(20 * time.Millisecond)
	if !m.TryAcquire("k") {
		t.Fatal("expired lock should be re-acquirable")
	}
}

func TestAcquireRetries(t *testing.T) {
	m := NewManager(time.Second)
	m.TryAcquire("k")
	go func() {
		time.Sleep(15 * time.Millisecond)
		m.Release("k")
	}()
	if !m.Acquire(context.Background(), "k", 5, 10*time.Millisecond) {
		t.Fatal("expected acquire after release")
	}
}

func TestAcquireGivesUp(t *testing.T) {
	m := NewManager(time.Minute)
	m.TryAcquire("k")
	if m.Acquire(context.Background(), "k", 2, time.Millisecond) {
		t.Fatal("expected failure while lock held")
	}
}

func TestAcquireHonoursContext(t *testing.T) {
	m := NewManager(time.Minute)
	m.TryAcquire("k")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if m.Acquire(ctx, "k", 10, 50*time.Millisecond) {
		t.Fatal("expected failure with cancelled context")
	}
}
