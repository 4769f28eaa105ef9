package mongodb

import (
	"context"
	"time"

	"mws-server/internal/mws/config"
	"mws-server/internal/mws/domain/model"
	apperrors "mws-server/internal/shared/errors"
	"mws-server/internal/shared/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RateLimiter is the insert-then-count sliding-window limiter: each admitted
// call records an access event, then the events inside the window are
// counted. Simple and correct under low contention; the window collection
// should carry a TTL index so old events age out on their own.
type RateLimiter struct {
	accesses *mongo.Collection
	quota    int
	expiry   time.Duration
	log      logger.Logger
}

// NewRateLimiter creates the mongo-backed limiter.
func NewRateLimiter(db *mongo.Database, cfg *config.Config, log logger.Logger) *RateLimiter {
	return &RateLimiter{
		accesses: db.Collection(cfg.RateLimitCollection),
		quota:    cfg.RateLimitQuota,
		expiry:   cfg.RateLimitExpiry,
		log:      log.WithComponent("rate_limiter"),
	}
}

// Admit records the request and rejects it when the session has exceeded
// its quota within the rolling window. Limiting is keyed by session id, not
// res_id, though nothing here depends on a session owning a single tenant.
func (l *RateLimiter) Admit(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return apperrors.NewUnauthorized("Cannot rate limit without session_id cookie")
	}

	event := model.RateLimitEvent{SessionID: sessionID, Timestamp: time.Now()}
	if _, err := l.accesses.InsertOne(ctx, event); err != nil {
		return apperrors.NewStorageError("failed to record rate limit event", err)
	}

	windowStart := time.Now().Add(-l.expiry)
	count, err := l.accesses.CountDocuments(ctx, bson.M{
		"session_id": sessionID,
		"timestamp":  bson.M{"$gt": windowStart},
	})
	if err != nil {
		return apperrors.NewStorageError("failed to count rate limit events", err)
	}

	if count > int64(l.quota) {
		l.log.WithFields(map[string]interface{}{
			"session_id": sessionID,
			"count":      count,
		}).Warn("Rate limit exceeded")
		return apperrors.NewRateLimitExceeded()
	}
	return nil
}

// EnsureIndexes creates the TTL index that expires old access events.
func (l *RateLimiter) EnsureIndexes(ctx context.Context) error {
	ttl := int32(l.expiry.Seconds())
	if ttl < 1 {
		ttl = 1
	}
	_, err := l.accesses.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "timestamp", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(ttl),
	})
	if err != nil {
		return apperrors.NewStorageError("failed to create rate limit TTL index", err)
	}
	return nil
}
