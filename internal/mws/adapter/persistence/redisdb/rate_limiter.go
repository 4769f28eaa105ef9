// Package redisdb provides the redis-backed alternative to the mongo
// sliding-window rate limiter, for deployments that prefer to keep the
// request-accounting churn off the shared document store.
package redisdb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"mws-server/internal/mws/config"
	apperrors "mws-server/internal/shared/errors"
	"mws-server/internal/shared/logger"

	"github.com/redis/go-redis/v9"
)

// RateLimiter keeps one sorted set per session, scored by event time in
// nanoseconds. Admission trims the set to the window, records the event and
// counts what remains — the same insert-then-count shape as the mongo
// limiter.
type RateLimiter struct {
	client *redis.Client
	quota  int
	expiry time.Duration
	log    logger.Logger
}

// NewRateLimiter creates the redis-backed limiter.
func NewRateLimiter(client *redis.Client, cfg *config.Config, log logger.Logger) *RateLimiter {
	return &RateLimiter{
		client: client,
		quota:  cfg.RateLimitQuota,
		expiry: cfg.RateLimitExpiry,
		log:    log.WithComponent("redis_rate_limiter"),
	}
}

// Admit records the request and rejects it when the session has exceeded
// its quota within the rolling window.
func (l *RateLimiter) Admit(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return apperrors.NewUnauthorized("Cannot rate limit without session_id cookie")
	}

	key := l.key(sessionID)
	now := time.Now()
	windowStart := now.Add(-l.expiry)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	countCmd := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, l.expiry)

	if _, err := pipe.Exec(ctx); err != nil {
		return apperrors.NewStorageError("failed to record rate limit event", err)
	}

	if countCmd.Val() > int64(l.quota) {
		l.log.WithFields(map[string]interface{}{
			"session_id": sessionID,
			"count":      countCmd.Val(),
		}).Warn("Rate limit exceeded")
		return apperrors.NewRateLimitExceeded()
	}
	return nil
}

func (l *RateLimiter) key(sessionID string) string {
	return fmt.Sprintf("mws:ratelimit:%s", sessionID)
}
