// Package di holds the process-wide service context: the explicitly
// constructed, shared backing-store client and the assembled mws module,
// initialized once on startup and passed read-only to each request scope.
package di

import (
	"context"
	"fmt"
	"sync"

	"mws-server/internal/mws"
	"mws-server/internal/mws/config"
	"mws-server/internal/shared/logger"

	"go.mongodb.org/mongo-driver/mongo"
)

// Container owns the lifecycle of the shared connections and modules.
type Container struct {
	mu sync.Mutex

	MongoClient *mongo.Client
	MongoDB     *mongo.Database
	Config      *config.Config
	Logger      logger.Logger
	MWSModule   *mws.Module
}

// NewContainer creates an empty container.
func NewContainer() *Container {
	return &Container{}
}

// InitializeMWS assembles the web-shell module over the shared database.
func (c *Container) InitializeMWS(client *mongo.Client, cfg *config.Config, log logger.Logger) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client == nil {
		return fmt.Errorf("mongo client must be initialized before the mws module")
	}

	c.MongoClient = client
	c.MongoDB = client.Database(cfg.DatabaseName)
	c.Config = cfg
	c.Logger = log

	module, err := mws.NewModule(c.MongoDB, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create mws module: %w", err)
	}
	c.MWSModule = module
	return nil
}

// HealthCheck pings the shared connections.
func (c *Container) HealthCheck(ctx context.Context) error {
	if c.MongoClient == nil {
		return fmt.Errorf("mongo client not initialized")
	}
	if err := c.MongoClient.Ping(ctx, nil); err != nil {
		return fmt.Errorf("mongo ping failed: %w", err)
	}
	if c.MWSModule != nil && c.MWSModule.RedisClient != nil {
		if err := c.MWSModule.RedisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
	}
	return nil
}

// Close shuts the module down and disconnects the shared client.
func (c *Container) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.MWSModule != nil {
		if err := c.MWSModule.Shutdown(ctx); err != nil {
			c.Logger.Errorf("Failed to shut down mws module: %v", err)
		}
	}
	if c.MongoClient != nil {
		return c.MongoClient.Disconnect(ctx)
	}
	return nil
}
