package economy

import (
	"context"
	"fmt"
	"sync"
	"time"

	appErr "duel-service/pkg/errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker serialises balance mutations per player across every caller that
// touches the same wallet, not just sessions.
type Locker interface {
	Lock(ctx context.Context, userID int64) (unlock func(), err error)
}

const (
	lockRetryInterval = 20 * time.Millisecond
	defaultLockWait   = 3 * time.Second
	defaultLockTTL    = 10 * time.Second
)

// releaseScript deletes the key only if we still own it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	rdb  *redis.Client
	ttl  time.Duration
	wait time.Duration
}

func NewRedisLocker(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, wait: defaultLockWait}
}

func (l *RedisLocker) Lock(ctx context.Context, userID int64) (func(), error) {
	key := buildWalletLockKey(userID)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				releaseScript.Run(context.WithoutCancel(ctx), l.rdb, []string{key}, token)
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: user %d", appErr.ErrLockTimeout, userID)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}
}

func buildWalletLockKey(userID int64) string {
	return fmt.Sprintf("economy:wallet:lock:%d", userID)
}

// LocalLocker is the single-process fallback when Redis is not configured.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[int64]chan struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[int64]chan struct{})}
}

func (l *LocalLocker) Lock(ctx context.Context, userID int64) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[userID]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[userID] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		return func() { <-slot }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// lockPair takes both players' locks in ascending id order so two settlements
// over the same pair can never deadlock.
func lockPair(ctx context.Context, l Locker, a, b int64) (func(), error) {
	if a > b {
		a, b = b, a
	}
	unlockA, err := l.Lock(ctx, a)
	if err != nil {
		return nil, err
	}
	unlockB, err := l.Lock(ctx, b)
	if err != nil {
		unlockA()
		return nil, err
	}
	return func() {
		unlockB()
		unlockA()
	}, nil
}
