package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mws-server/internal/di"
	"mws-server/internal/mws/config"
	"mws-server/internal/shared/logger"

	"github.com/caarlos0/env/v6"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Host       string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Port       string `env:"SERVER_PORT" envDefault:"5000"`
	CORSOrigin string `env:"CORS_ORIGIN" envDefault:"*"`
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	serverCfg := &ServerConfig{}
	if err := env.Parse(serverCfg); err != nil {
		log.Fatalf("Failed to load server configuration: %v", err)
	}

	appLogger := logger.NewLogger()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load mws configuration: %v", err)
	}
	appLogger.Info("Configuration loaded successfully")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	if err := mongoClient.Ping(ctx, nil); err != nil {
		log.Fatalf("Failed to ping MongoDB: %v", err)
	}
	appLogger.Info("MongoDB connection established successfully")

	container := di.NewContainer()
	if err := container.InitializeMWS(mongoClient, cfg, appLogger); err != nil {
		log.Fatalf("Failed to initialize mws module: %v", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := container.Close(shutdownCtx); err != nil {
			appLogger.Errorf("Failed to close container: %v", err)
		}
	}()

	if err := container.MWSModule.Start(ctx); err != nil {
		log.Fatalf("Failed to start mws module: %v", err)
	}
	appLogger.Info("MWS module initialized successfully")

	app := fiber.New(fiber.Config{
		AppName:      "MWS Server v1.0",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     serverCfg.CORSOrigin,
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept",
		AllowCredentials: serverCfg.CORSOrigin != "*",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		healthCtx, healthCancel := context.WithTimeout(c.Context(), 5*time.Second)
		defer healthCancel()

		if err := container.HealthCheck(healthCtx); err != nil {
			appLogger.Errorf("Health check failed: %v", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "UNHEALTHY",
				"error":  err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"status":    "HEALTHY",
			"timestamp": time.Now().UTC(),
		})
	})

	container.MWSModule.RegisterRoutes(app)

	go func() {
		addr := serverCfg.Host + ":" + serverCfg.Port
		appLogger.Infof("Starting server on %s", addr)
		if err := app.Listen(addr); err != nil {
			appLogger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		appLogger.Errorf("Server shutdown failed: %v", err)
	}
}
