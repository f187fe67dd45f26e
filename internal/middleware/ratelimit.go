package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"rollcall/internal/service"
	"rollcall/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	rateLimitKeyPrefix = "rollcall:ratelimit:"
	redisLimitTimeout  = 100 * time.Millisecond
	idleBucketTTL      = 10 * time.Minute
	pruneEvery         = time.Minute
)

// scopedLimiter caps one route scope per caller. With redis every agent
// sharing it counts against one fixed one-second window; without redis, or
// when a call fails, an in-process token bucket answers instead.
type scopedLimiter struct {
	rdb   *redis.Client
	scope string
	limit int

	mu        sync.Mutex
	buckets   map[string]*localBucket
	lastPrune time.Time
	now       func() time.Time
}

type localBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimitMiddleware limits calls in scope per caller. Authenticated
// callers are keyed by user id, anonymous and shared local callers by IP.
func RateLimitMiddleware(rdb *redis.Client, scope string, requestsPerSecond int) gin.HandlerFunc {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	l := &scopedLimiter{
		rdb:     rdb,
		scope:   scope,
		limit:   requestsPerSecond,
		buckets: make(map[string]*localBucket),
		now:     time.Now,
	}
	return l.handle
}

func (l *scopedLimiter) handle(c *gin.Context) {
	caller := callerKey(c)
	now := l.now()

	allowed, remaining, reset, err := l.takeShared(c.Request.Context(), caller, now)
	if err != nil {
		if l.rdb != nil {
			logger.Warn("shared rate limit unavailable, using local bucket",
				zap.String("scope", l.scope), zap.String("caller", caller), zap.Error(err))
		}
		allowed, remaining, reset = l.takeLocal(caller, now)
	}

	c.Header("X-RateLimit-Limit", strconv.Itoa(l.limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(reset, 10))

	if !allowed {
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too Many Requests"})
		return
	}
	c.Next()
}

func callerKey(c *gin.Context) string {
	if a := service.ActorFrom(c.Request.Context()); a != nil && a.UserID != "" && a.UserID != localActor.UserID {
		return "user:" + a.UserID
	}
	return "ip:" + c.ClientIP()
}

var errNoRedis = errors.New("no shared rate limit store")

func (l *scopedLimiter) takeShared(ctx context.Context, caller string, now time.Time) (bool, int, int64, error) {
	if l.rdb == nil {
		return false, 0, 0, errNoRedis
	}
	window := now.Unix()
	key := fmt.Sprintf("%s%s:%s:%d", rateLimitKeyPrefix, l.scope, caller, window)

	ctx, cancel := context.WithTimeout(ctx, redisLimitTimeout)
	defer cancel()

	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, 2*time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, 0, err
	}

	count := int(incr.Val())
	return count <= l.limit, max(0, l.limit-count), window + 1, nil
}

func (l *scopedLimiter) takeLocal(caller string, now time.Time) (bool, int, int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastPrune) > pruneEvery {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > idleBucketTTL {
				delete(l.buckets, k)
			}
		}
		l.lastPrune = now
	}

	b, ok := l.buckets[caller]
	if !ok {
		b = &localBucket{limiter: rate.NewLimiter(rate.Limit(l.limit), l.limit)}
		l.buckets[caller] = b
	}
	b.lastSeen = now

	allowed := b.limiter.AllowN(now, 1)
	remaining := max(0, int(b.limiter.TokensAt(now)))
	return allowed, remaining, now.Unix() + 1
}
