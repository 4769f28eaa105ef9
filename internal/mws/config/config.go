package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v6"
)

// Limiter backends selectable via RATELIMIT_BACKEND.
const (
	RateLimitBackendMongo = "mongo"
	RateLimitBackendRedis = "redis"
)

// Config holds all configuration for the web-shell service.
type Config struct {
	MongoURI     string `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017"`
	DatabaseName string `env:"MWS_DATABASE" envDefault:"mws"`

	// ClientsCollection is the shared control collection holding one tenant
	// record per res_id.
	ClientsCollection string `env:"CLIENTS_COLLECTION" envDefault:"clients"`

	// QuotaCollectionSize is the per-collection byte quota.
	QuotaCollectionSize int64 `env:"QUOTA_COLLECTION_SIZE" envDefault:"1048576"`

	// QuotaNumCollections caps distinct collections per tenant. Nil means
	// unlimited; zero forbids creating any collection.
	QuotaNumCollections *int `env:"QUOTA_NUM_COLLECTIONS"`

	RateLimitQuota      int           `env:"RATELIMIT_QUOTA" envDefault:"100"`
	RateLimitExpiry     time.Duration `env:"RATELIMIT_EXPIRY" envDefault:"15s"`
	RateLimitCollection string        `env:"RATELIMIT_COLLECTION" envDefault:"ratelimit"`
	RateLimitBackend    string        `env:"RATELIMIT_BACKEND" envDefault:"mongo"`

	// CursorTimeout is the idle lifetime of an open paged cursor.
	CursorTimeout   time.Duration `env:"CURSOR_TIMEOUT" envDefault:"10m"`
	CursorBatchSize int64         `env:"CURSOR_BATCH_SIZE" envDefault:"100"`

	// Idle-tenant expiry sweep.
	ExpireSessionEvery    time.Duration `env:"EXPIRE_SESSION_EVERY" envDefault:"10m"`
	ExpireSessionDuration time.Duration `env:"EXPIRE_SESSION_DURATION" envDefault:"30m"`

	// SessionSecret signs the session-id cookie.
	SessionSecret string `env:"SESSION_SECRET" envDefault:"mws-dev-secret"`

	Redis RedisConfig
}

// RedisConfig holds the connection settings of the optional redis-backed
// rate limiter.
type RedisConfig struct {
	Host     string `env:"REDIS_HOST" envDefault:"localhost"`
	Port     string `env:"REDIS_PORT" envDefault:"6379"`
	Password string `env:"REDIS_PASSWORD" envDefault:""`
	Database int    `env:"REDIS_DATABASE" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"10"`
}

// Addr returns the host:port address of the redis server.
func (c RedisConfig) Addr() string {
	return c.Host + ":" + c.Port
}

// LoadConfig loads configuration from environment variables and applies
// defaults.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, errors.New("failed to load mws configuration from environment: " + err.Error())
	}
	if err := env.Parse(&cfg.Redis); err != nil {
		return nil, errors.New("failed to load redis configuration from environment: " + err.Error())
	}

	if cfg.MongoURI == "" {
		return nil, errors.New("MONGODB_URI environment variable is not set")
	}
	if cfg.RateLimitBackend != RateLimitBackendMongo && cfg.RateLimitBackend != RateLimitBackendRedis {
		return nil, errors.New("RATELIMIT_BACKEND must be 'mongo' or 'redis'")
	}
	if cfg.QuotaNumCollections != nil && *cfg.QuotaNumCollections < 0 {
		return nil, errors.New("QUOTA_NUM_COLLECTIONS must not be negative")
	}
	if cfg.CursorBatchSize <= 0 {
		cfg.CursorBatchSize = 100
	}

	return cfg, nil
}

// DefaultConfig returns a Config with development defaults.
func DefaultConfig() *Config {
	return &Config{
		MongoURI:              "mongodb://localhost:27017",
		DatabaseName:          "mws",
		ClientsCollection:     "clients",
		QuotaCollectionSize:   1 << 20,
		RateLimitQuota:        100,
		RateLimitExpiry:       15 * time.Second,
		RateLimitCollection:   "ratelimit",
		RateLimitBackend:      RateLimitBackendMongo,
		CursorTimeout:         10 * time.Minute,
		CursorBatchSize:       100,
		ExpireSessionEvery:    10 * time.Minute,
		ExpireSessionDuration: 30 * time.Minute,
		SessionSecret:         "mws-dev-secret",
		Redis: RedisConfig{
			Host:     "localhost",
			Port:     "6379",
			PoolSize: 10,
		},
	}
}
