package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLocked is returned when the meeting is processed by another run
var ErrLocked = errors.New("meeting is being processed")

const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

type store interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Locker keeps one pipeline run per meeting using redis keys
type Locker struct {
	rdb    store
	ttl    time.Duration
	prefix string
}

// NewLocker connects to redis by url, like redis://:pass@host:6379/0
func NewLocker(ctx context.Context, urlStr string, ttl time.Duration) (*Locker, *redis.Client, error) {
	if urlStr == "" {
		return nil, nil, fmt.Errorf("no URL")
	}
	opt, err := redis.ParseURL(urlStr)
	if err != nil {
		return nil, nil, fmt.Errorf("wrong redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("can't connect to redis: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Minute * 30
	}
	goapp.Log.Info().Str("addr", opt.Addr).Int("db", opt.DB).Dur("ttl", ttl).Msg("redis locker")
	return newLocker(rdb, ttl), rdb, nil
}

func newLocker(rdb store, ttl time.Duration) *Locker {
	return &Locker{rdb: rdb, ttl: ttl, prefix: "meetnotes:lock:"}
}

// Lock takes the meeting lock, call the returned func to release it
func (l *Locker) Lock(ctx context.Context, id string) (func(), error) {
	key := l.prefix + id
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("can't lock %s: %w", id, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	goapp.Log.Debug().Str("ID", id).Msg("locked")
	return func() {
		ctx, cf := context.WithTimeout(context.WithoutCancel(ctx), time.Second*5)
		defer cf()
		if err := l.rdb.Eval(ctx, releaseScript, []string{key}, token).Err(); err != nil {
			goapp.Log.Warn().Err(err).Str("ID", id).Msg("can't release lock")
		}
	}, nil
}
