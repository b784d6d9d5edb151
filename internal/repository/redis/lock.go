package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockTimeout = errors.New("lock wait timed out")

// KEYS[1] = lock key, ARGV[1] = owner token
const luaCompareAndDelete = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`

// ShowLocker is a per-show mutual exclusion region shared by all
// instances. The lock expires after ttl so a crashed holder cannot wedge
// the show forever.
type ShowLocker struct {
	rdb     *redis.Client
	ttl     time.Duration
	retry   time.Duration
	release *redis.Script
	token   func() string
}

func NewShowLocker(rdb *redis.Client, ttl time.Duration) *ShowLocker {
	return &ShowLocker{
		rdb:     rdb,
		ttl:     ttl,
		retry:   25 * time.Millisecond,
		release: redis.NewScript(luaCompareAndDelete),
		token:   uuid.NewString,
	}
}

// Lock blocks until the lock for showID is held or ctx is done. The
// returned func releases the lock only if it is still owned by this caller.
func (l *ShowLocker) Lock(ctx context.Context, showID int64) (func(), error) {
	const op = "redis.ShowLocker.Lock"

	key := KeyShowLock(showID)
	token := l.token()

	for {
		ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%s: %w", op, ErrLockTimeout)
		case <-time.After(l.retry):
		}
	}

	return func() {
		// detached so an expired request context still frees the lock
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		_ = l.release.Run(ctx, l.rdb, []string{key}, token).Err()
	}, nil
}
