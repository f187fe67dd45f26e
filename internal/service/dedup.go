package service

import (
	"context"
	"sync"
	"time"

	"rollcall/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const dedupKeyPrefix = "rollcall:errlog:"

// Deduper answers whether a key is seen for the first time within a window.
type Deduper interface {
	First(ctx context.Context, key string, window time.Duration) bool
}

// LocalDeduper is an in-memory rolling window.
type LocalDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

func NewLocalDeduper() *LocalDeduper {
	return &LocalDeduper{seen: make(map[string]time.Time), now: time.Now}
}

func (d *LocalDeduper) First(_ context.Context, key string, window time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, exp := range d.seen {
		if !now.Before(exp) {
			delete(d.seen, k)
		}
	}
	if exp, ok := d.seen[key]; ok && now.Before(exp) {
		return false
	}
	d.seen[key] = now.Add(window)
	return true
}

// RedisDeduper shares the window across agents with SET NX EX.
// It degrades to the local window when redis is unreachable.
type RedisDeduper struct {
	rdb      *redis.Client
	fallback *LocalDeduper
}

func NewRedisDeduper(rdb *redis.Client) *RedisDeduper {
	return &RedisDeduper{rdb: rdb, fallback: NewLocalDeduper()}
}

func (d *RedisDeduper) First(ctx context.Context, key string, window time.Duration) bool {
	ok, err := d.rdb.SetNX(ctx, dedupKeyPrefix+key, 1, window).Result()
	if err != nil {
		logger.Warn("redis dedup unavailable, using local window", zap.Error(err))
		return d.fallback.First(ctx, key, window)
	}
	return ok
}
