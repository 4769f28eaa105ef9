package mongodb_test

import (
	"context"
	"testing"
	"time"

	"mws-server/internal/mws/adapter/persistence/mongodb"
	"mws-server/internal/mws/config"
	apperrors "mws-server/internal/shared/errors"
	"mws-server/internal/shared/logger"

	"github.com/stretchr/testify/suite"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// RateLimiterTestSuite runs against a local MongoDB instance and skips when
// none is reachable.
type RateLimiterTestSuite struct {
	suite.Suite
	client   *mongo.Client
	database *mongo.Database
}

func (suite *RateLimiterTestSuite) SetupSuite() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI("mongodb://localhost:27017"))
	if err != nil {
		suite.T().Skip("MongoDB not available for testing")
		return
	}
	if err := client.Ping(ctx, nil); err != nil {
		suite.T().Skip("MongoDB not available for testing")
		return
	}

	suite.client = client
	suite.database = client.Database("mws_ratelimit_test_db")
}

func (suite *RateLimiterTestSuite) TearDownSuite() {
	if suite.client != nil {
		suite.database.Drop(context.Background())
		suite.client.Disconnect(context.Background())
	}
}

func (suite *RateLimiterTestSuite) SetupTest() {
	suite.database.Collection("ratelimit").Drop(context.Background())
}

func (suite *RateLimiterTestSuite) newLimiter(quota int, expiry time.Duration) *mongodb.RateLimiter {
	cfg := config.DefaultConfig()
	cfg.RateLimitQuota = quota
	cfg.RateLimitExpiry = expiry
	return mongodb.NewRateLimiter(suite.database, cfg, logger.NewLoggerWithConfig("error", "text"))
}

func (suite *RateLimiterTestSuite) TestAdmitsUpToQuota() {
	limiter := suite.newLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		suite.Require().NoError(limiter.Admit(ctx, "sess1"))
	}

	err := limiter.Admit(ctx, "sess1")
	suite.Require().Error(err)
	suite.True(apperrors.IsRateLimitExceeded(err))
	suite.Equal(429, apperrors.AsMWSError(err).HTTPStatus)
}

func (suite *RateLimiterTestSuite) TestSessionsAreLimitedIndependently() {
	limiter := suite.newLimiter(2, time.Minute)
	ctx := context.Background()

	suite.Require().NoError(limiter.Admit(ctx, "sess1"))
	suite.Require().NoError(limiter.Admit(ctx, "sess1"))
	suite.True(apperrors.IsRateLimitExceeded(limiter.Admit(ctx, "sess1")))

	// A different session still has its full quota.
	suite.Require().NoError(limiter.Admit(ctx, "sess2"))
}

func (suite *RateLimiterTestSuite) TestWindowSlides() {
	limiter := suite.newLimiter(2, 300*time.Millisecond)
	ctx := context.Background()

	suite.Require().NoError(limiter.Admit(ctx, "sess1"))
	suite.Require().NoError(limiter.Admit(ctx, "sess1"))
	suite.True(apperrors.IsRateLimitExceeded(limiter.Admit(ctx, "sess1")))

	time.Sleep(400 * time.Millisecond)

	suite.Require().NoError(limiter.Admit(ctx, "sess1"))
}

func (suite *RateLimiterTestSuite) TestRejectsMissingSession() {
	limiter := suite.newLimiter(3, time.Minute)

	err := limiter.Admit(context.Background(), "")
	suite.Require().Error(err)
	suite.Equal(401, apperrors.AsMWSError(err).HTTPStatus)
}

func TestRateLimiterTestSuite(t *testing.T) {
	suite.Run(t, new(RateLimiterTestSuite))
}
