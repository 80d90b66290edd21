// cmd/api/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/your-org/storefront-cart/internal/config"
	"github.com/your-org/storefront-cart/internal/domain/cart"
	"github.com/your-org/storefront-cart/internal/domain/product"
	"github.com/your-org/storefront-cart/internal/infrastructure/storage"
	"github.com/your-org/storefront-cart/internal/infrastructure/storage/memory"
	"github.com/your-org/storefront-cart/internal/infrastructure/storage/postgres"
	storageredis "github.com/your-org/storefront-cart/internal/infrastructure/storage/redis"
	httpserver "github.com/your-org/storefront-cart/internal/interfaces/http"
	"github.com/your-org/storefront-cart/internal/pkg/apiclient"
	"github.com/your-org/storefront-cart/internal/pkg/logging"
	"github.com/your-org/storefront-cart/internal/pkg/notify"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg)
	logger.WithField("version", cfg.App.Version).
		WithField("environment", cfg.App.Environment).
		Infof("Starting %s", cfg.App.Name)

	// Guest cart storage backend
	var guestStorage storage.Store
	var redisClient *goredis.Client

	switch cfg.Cart.StorageBackend {
	case config.StorageBackendRedis:
		redisClient, err = storageredis.NewConnection(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		guestStorage = storageredis.NewStore(redisClient)

	case config.StorageBackendPostgres:
		db, err := postgres.NewConnection(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		guestStorage = postgres.NewStore(db)

	case config.StorageBackendMemory:
		guestStorage = memory.New()
	}

	// Upstream commerce API
	api := apiclient.New(cfg.Upstream.BaseURL, cfg.Upstream.RequestTimeout, logger)
	products := product.NewService(api)
	gateway := cart.NewHTTPGateway(api)

	guestStore := cart.NewGuestStore(guestStorage, products, logger, cfg.Cart.GuestCartTTL)
	sessions := cart.NewManager(guestStore, gateway, notify.NewLogNotifier(logger), logger, cfg.Cart)

	// Create and start HTTP server
	server := httpserver.NewServer(cfg, sessions, redisClient, logger)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		logger.WithError(err).Error("Failed to shutdown HTTP server gracefully")
	}

	logger.Info("Server shutdown completed")
}
