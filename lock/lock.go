// Package lock keeps at most one batch coordinator running.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"safemigrator/logger"
)

// Name is the well-known key of the coordinator lock.
const Name = "safemigrator:coordinator"

var ErrHeld = errors.New("coordinator lock is held by another run")

// Locker hands out the coordinator lock. Acquire never waits: it fails with
// ErrHeld when someone else holds it.
type Locker interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// Local is a process-wide lock.
type Local struct {
	mu sync.Mutex
}

func NewLocal() *Local { return &Local{} }

func (l *Local) Acquire(ctx context.Context) (func(), error) {
	if !l.mu.TryLock() {
		return nil, ErrHeld
	}
	var once sync.Once
	return func() { once.Do(l.mu.Unlock) }, nil
}

const (
	dialTimeout = 3 * time.Second
	pingTimeout = 2 * time.Second
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Redis is a host-level lock shared by every process pointing at the same
// server. The key expires after TTL so a crashed holder cannot block
// forever; a run longer than TTL must not rely on it.
type Redis struct {
	client *redis.Client
	Key    string
	TTL    time.Duration
}

// NewRedis parses url, connects and pings.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: invalid URL: %w", err)
	}
	opts.PoolSize = 2
	opts.DialTimeout = dialTimeout

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping failed: %w", err)
	}
	logger.Infow("redis lock connected", "addr", opts.Addr)
	return &Redis{client: client, Key: Name, TTL: 30 * time.Minute}, nil
}

func (r *Redis) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.Key, token, r.TTL).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lock: %w", err)
	}
	if !ok {
		return nil, ErrHeld
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
			defer cancel()
			if err := releaseScript.Run(ctx, r.client, []string{r.Key}, token).Err(); err != nil {
				logger.Warnw("redis lock release failed", "key", r.Key, "error", err)
			}
		})
	}, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
