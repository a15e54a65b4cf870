package keys

import (
	"context"
	"errors"
	"time"

	"github.com/berry-13/vicsam-group-sub002/internal/security"

	"github.com/redis/go-redis/v9"
)

// Locker serializes key initialization across processes.
type Locker interface {
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker is a single-instance Redis lock: SET NX PX to take it and a
// compare-and-delete script to release only our own token.
type RedisLocker struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
	poll   time.Duration
}

func NewRedisLocker(client redis.UniversalClient, key string, ttl time.Duration) *RedisLocker {
	if key == "" {
		key = "authd:keys:init-lock"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: client, key: key, ttl: ttl, poll: 50 * time.Millisecond}
}

func (l *RedisLocker) Acquire(ctx context.Context) (func(context.Context) error, error) {
	token, err := security.SecureToken(16)
	if err != nil {
		return nil, err
	}
	ticker := time.NewTicker(l.poll)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func(ctx context.Context) error {
				err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err()
				if errors.Is(err, redis.Nil) {
					return nil
				}
				return err
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
