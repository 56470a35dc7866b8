package populations

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/neurocurate/composer/internal/platform/logger"
)

// ErrLocked means another reassignment run holds the population lease.
var ErrLocked = errors.New("population lease held by another run")

// Locker serializes reassignment runs per population.
type Locker interface {
	Acquire(ctx context.Context, population string) (release func(context.Context), err error)
	Close() error
}

type redisLocker struct {
	rdb *goredis.Client
	ttl time.Duration
	log *logger.Logger
}

// releaseScript deletes the lease only when the caller still owns it.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// NewRedisLocker connects to REDIS_ADDR and returns a lease-based
// locker. Leases expire on their own if a run dies mid-way.
func NewRedisLocker(baseLog *logger.Logger, ttl time.Duration) (Locker, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &redisLocker{
		rdb: rdb,
		ttl: ttl,
		log: baseLog.With("component", "RedisLocker"),
	}, nil
}

func (l *redisLocker) Acquire(ctx context.Context, population string) (func(context.Context), error) {
	key := "composer:reassign:" + population
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", population, ErrLocked)
	}

	release := func(ctx context.Context) {
		if err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil {
			l.log.Warn("release lease failed", "key", key, "error", err)
		}
	}
	return release, nil
}

func (l *redisLocker) Close() error {
	return l.rdb.Close()
}
