// Package mws wires the tenant-isolation core: registry, quota guard,
// scoped handle, cursor pager, rate limiter, reaper and the HTTP boundary.
package mws

import (
	"context"
	"fmt"

	httpadapter "mws-server/internal/mws/adapter/http"
	mongodbpersistence "mws-server/internal/mws/adapter/persistence/mongodb"
	redispersistence "mws-server/internal/mws/adapter/persistence/redisdb"
	"mws-server/internal/mws/config"
	"mws-server/internal/mws/domain/repository"
	"mws-server/internal/mws/reaper"
	"mws-server/internal/mws/usecase"
	"mws-server/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// Module bundles the assembled web-shell service.
type Module struct {
	Config *config.Config
	Logger logger.Logger

	Registry repository.TenantRegistry
	Acquirer repository.ScopedAcquirer
	Quota    repository.QuotaGuard
	Pager    repository.CursorPager
	Limiter  repository.RateLimiter
	Usecase  usecase.ShellUsecase
	Reaper   *reaper.Reaper
	Handler  *httpadapter.Handler

	// RedisClient is non-nil only when the redis limiter backend is active.
	RedisClient *redis.Client
}

// NewModule assembles the service on top of the shared database handle.
func NewModule(db *mongo.Database, cfg *config.Config, log logger.Logger) (*Module, error) {
	registry := mongodbpersistence.NewTenantRegistry(db, cfg, log)
	acquirer := mongodbpersistence.NewScopedAcquirer(db, registry, log)
	quota := mongodbpersistence.NewQuotaGuard(db, cfg, log)
	pager := mongodbpersistence.NewCursorPager(cfg.CursorTimeout, log)

	var limiter repository.RateLimiter
	var redisClient *redis.Client
	switch cfg.RateLimitBackend {
	case config.RateLimitBackendRedis:
		redisClient = config.NewRedisClient(cfg.Redis)
		limiter = redispersistence.NewRateLimiter(redisClient, cfg, log)
	case config.RateLimitBackendMongo:
		limiter = mongodbpersistence.NewRateLimiter(db, cfg, log)
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", cfg.RateLimitBackend)
	}

	uc := usecase.NewShellUsecase(registry, acquirer, quota, pager, cfg.CursorBatchSize, log)
	sessions := httpadapter.NewSessionManager(cfg.SessionSecret, log)
	handler := httpadapter.NewHandler(uc, limiter, sessions, log)
	rp := reaper.New(registry, acquirer, cfg.ExpireSessionEvery, cfg.ExpireSessionDuration, log)

	return &Module{
		Config:      cfg,
		Logger:      log,
		Registry:    registry,
		Acquirer:    acquirer,
		Quota:       quota,
		Pager:       pager,
		Limiter:     limiter,
		Usecase:     uc,
		Reaper:      rp,
		Handler:     handler,
		RedisClient: redisClient,
	}, nil
}

// RegisterRoutes mounts the web-shell API on the fiber app.
func (m *Module) RegisterRoutes(app fiber.Router) {
	m.Handler.RegisterRoutes(app)
}

// Start launches the background workers (reaper) and prepares indexes.
func (m *Module) Start(ctx context.Context) error {
	if mongoLimiter, ok := m.Limiter.(*mongodbpersistence.RateLimiter); ok {
		if err := mongoLimiter.EnsureIndexes(ctx); err != nil {
			return err
		}
	}
	m.Reaper.Start()
	return nil
}

// Shutdown stops background workers and releases live cursors.
func (m *Module) Shutdown(ctx context.Context) error {
	m.Reaper.Stop()
	m.Pager.Shutdown(ctx)
	if m.RedisClient != nil {
		return m.RedisClient.Close()
	}
	return nil
}
