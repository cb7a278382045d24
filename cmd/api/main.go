package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"antarin/internal/chat"
	"antarin/internal/config"
	"antarin/internal/database"
	"antarin/internal/dispatch"
	"antarin/internal/gateway"
	"antarin/internal/handler"
	"antarin/internal/intent"
	"antarin/internal/presence"
	"antarin/internal/receipt"
	"antarin/internal/repository"
	"antarin/internal/router"
	"antarin/internal/scheduler"
	"antarin/internal/service"
	"antarin/internal/session"

	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize logger
	logger := config.NewLogger(cfg.Logger)
	logger.Info().Msg("starting antarin dispatch server")

	// Create context for application lifecycle
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Run database migrations before opening the pool
	if err := database.Migrate(cfg.Database, logger); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// Initialize database connection pool
	pool, err := database.NewPool(ctx, cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer pool.Close()

	// Initialize redis client for sessions and presence
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	// Initialize repositories
	orderRepo := repository.NewOrderRepository(pool, logger)
	courierRepo := repository.NewCourierRepository(pool, logger)
	customerRepo := repository.NewCustomerRepository(pool, logger)

	// Initialize external collaborators
	messenger := gateway.NewHTTPMessenger(cfg.Gateway.BaseURL, cfg.Gateway.Token, cfg.Gateway.Timeout, logger)
	parser := intent.NewHTTPParser(cfg.Parser.BaseURL, cfg.Parser.Timeout, logger)
	reader := receipt.NewHTTPReader(cfg.Receipt.BaseURL, cfg.Receipt.Timeout, logger)

	// Initialize session stores and presence registry
	draftStore := session.NewDraftStore(redisClient, cfg.Dispatch.SessionTTL, logger)
	notifyGuard := session.NewNotifyGuard(redisClient, cfg.Dispatch.NotifyDedupTTL, logger)
	registry := presence.NewRegistry(redisClient, courierRepo, logger)

	// Initialize services and the dispatch engine
	orderService := service.NewOrderService(orderRepo, courierRepo, logger)
	engine := dispatch.NewEngine(
		orderRepo,
		courierRepo,
		registry,
		notifyGuard,
		messenger,
		cfg.Dispatch.OfferTimeout,
		dispatch.ShiftWindows{
			Shift1Start: cfg.Dispatch.Shift1Start,
			Shift1End:   cfg.Dispatch.Shift1End,
			Shift2End:   cfg.Dispatch.Shift2End,
		},
		logger,
	)

	// Initialize background workers
	retryWorker := scheduler.NewRetryWorker(
		orderRepo, engine,
		cfg.Dispatch.RetryInterval, cfg.Dispatch.OfferTimeout, cfg.Dispatch.RetryBatch,
		logger,
	)
	autoCancelWorker := scheduler.NewAutoCancelWorker(
		orderRepo, orderService, messenger,
		cfg.Dispatch.AutoCancelInterval, cfg.Dispatch.AutoCancelAge, cfg.Dispatch.AutoCancelBatch,
		logger,
	)
	retryWorker.Start(ctx)
	autoCancelWorker.Start(ctx)

	// Initialize conversation flows
	customerFlow := chat.NewCustomerFlow(
		orderService, customerRepo, orderRepo, draftStore, parser, messenger, engine, logger,
	)
	courierFlow := chat.NewCourierFlow(
		orderService, courierRepo, reader, messenger, registry, retryWorker, logger,
	)

	// Initialize HTTP handlers
	webhookHandler := handler.NewWebhookHandler(customerFlow, courierFlow, courierRepo, logger)
	orderHandler := handler.NewOrderHandler(orderService, engine, logger)

	// Initialize router
	mux := router.New(webhookHandler, orderHandler, cfg.Auth.APIKey, logger)

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for errors from the server
	serverErrors := make(chan error, 1)

	// Start HTTP server in a goroutine
	go func() {
		logger.Info().
			Str("address", cfg.Server.Address()).
			Msg("HTTP server started")
		serverErrors <- server.ListenAndServe()
	}()

	// Channel to listen for interrupt signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a signal or an error
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info().
			Str("signal", sig.String()).
			Msg("shutdown signal received, starting graceful shutdown")

		// Stop the background workers alongside the HTTP server
		cancel()

		// Create a context with timeout for shutdown
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		// Attempt graceful shutdown
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shutdown server gracefully")
			// Force close
			if closeErr := server.Close(); closeErr != nil {
				logger.Error().Err(closeErr).Msg("failed to close server")
			}
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		logger.Info().Msg("server shutdown completed")
	}

	return nil
}
