package economy

import (
	"context"
	"errors"
	"testing"
	"time"

	appErr "duel-service/pkg/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisLocker(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisLocker) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	l := NewRedisLocker(rdb, ttl)
	l.wait = 100 * time.Millisecond
	return mr, l
}

func TestRedisLockerContention(t *testing.T) {
	ctx := context.Background()
	mr, l := newRedisLocker(t, time.Second)

	unlock, err := l.Lock(ctx, 7)
	if err != nil {
		t.Fatalf("first lock failed: %v", err)
	}
	if !mr.Exists(buildWalletLockKey(7)) {
		t.Fatalf("lock key not written")
	}

	start := time.Now()
	if _, err := l.Lock(ctx, 7); !errors.Is(err, appErr.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	if waited := time.Since(start); waited < l.wait {
		t.Fatalf("gave up after %v, before the wait of %v", waited, l.wait)
	}

	other, err := l.Lock(ctx, 8)
	if err != nil {
		t.Fatalf("another player must not be blocked: %v", err)
	}
	other()

	unlock()
	if mr.Exists(buildWalletLockKey(7)) {
		t.Fatalf("unlock left the key behind")
	}
	again, err := l.Lock(ctx, 7)
	if err != nil {
		t.Fatalf("relock after unlock failed: %v", err)
	}
	again()
}

func TestRedisLockerWaitsForRelease(t *testing.T) {
	ctx := context.Background()
	_, l := newRedisLocker(t, time.Second)
	l.wait = 2 * time.Second

	unlock, err := l.Lock(ctx, 7)
	if err != nil {
		t.Fatalf("first lock failed: %v", err)
	}
	go func() {
		time.Sleep(50 * time.Millisecond)
		unlock()
	}()

	second, err := l.Lock(ctx, 7)
	if err != nil {
		t.Fatalf("waiter should get the lock once released: %v", err)
	}
	second()
}

func TestRedisLockerKeepsForeignLock(t *testing.T) {
	ctx := context.Background()
	mr, l := newRedisLocker(t, time.Second)
	key := buildWalletLockKey(7)

	unlock, err := l.Lock(ctx, 7)
	if err != nil {
		t.Fatalf("lock failed: %v", err)
	}

	// Our lease runs out and someone else takes the wallet.
	mr.FastForward(2 * time.Second)
	if mr.Exists(key) {
		t.Fatalf("lease should have expired")
	}
	if err := mr.Set(key, "other-owner"); err != nil {
		t.Fatalf("seed foreign lock: %v", err)
	}

	unlock()
	got, err := mr.Get(key)
	if err != nil || got != "other-owner" {
		t.Fatalf("stale unlock removed a lock it did not own: %q %v", got, err)
	}
}

func TestRedisLockerHonoursContext(t *testing.T) {
	mr, l := newRedisLocker(t, time.Second)
	l.wait = 5 * time.Second
	if err := mr.Set(buildWalletLockKey(7), "other-owner"); err != nil {
		t.Fatalf("seed foreign lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := l.Lock(ctx, 7); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("lock ignored the context deadline")
	}
}

func TestLockPairOrdersKeys(t *testing.T) {
	ctx := context.Background()
	mr, l := newRedisLocker(t, time.Second)

	unlock, err := lockPair(ctx, l, 9, 3)
	if err != nil {
		t.Fatalf("lock pair failed: %v", err)
	}
	if !mr.Exists(buildWalletLockKey(3)) || !mr.Exists(buildWalletLockKey(9)) {
		t.Fatalf("both wallets must be locked")
	}
	unlock()
	if mr.Exists(buildWalletLockKey(3)) || mr.Exists(buildWalletLockKey(9)) {
		t.Fatalf("pair unlock left keys behind")
	}

	// One side held elsewhere: the pair fails and releases what it took.
	if err := mr.Set(buildWalletLockKey(9), "other-owner"); err != nil {
		t.Fatalf("seed foreign lock: %v", err)
	}
	if _, err := lockPair(ctx, l, 3, 9); !errors.Is(err, appErr.ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	if mr.Exists(buildWalletLockKey(3)) {
		t.Fatalf("failed pair lock must release the first wallet")
	}
}
