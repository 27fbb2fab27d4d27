// Package main is the entrypoint for the Crosswalk API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crosswalk-io/crosswalk/internal/api"
	"github.com/crosswalk-io/crosswalk/internal/api/handler"
	mw "github.com/crosswalk-io/crosswalk/internal/api/middleware"
	"github.com/crosswalk-io/crosswalk/internal/cache"
	"github.com/crosswalk-io/crosswalk/internal/config"
	"github.com/crosswalk-io/crosswalk/internal/dispatch"
	"github.com/crosswalk-io/crosswalk/internal/mapping"
	"github.com/crosswalk-io/crosswalk/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "region", cfg.AWS.Region)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to DynamoDB
	dynamoClient, err := store.NewDynamoClient(ctx, cfg.AWS)
	if err != nil {
		return fmt.Errorf("create dynamodb client: %w", err)
	}
	jobStore := store.NewDynamoStore(dynamoClient, cfg.Tables.Jobs, cfg.Pipeline.JobTTLDays)
	catalog := store.NewDynamoCatalog(dynamoClient, cfg.Tables)
	slog.Info("dynamodb client ready", "jobs_table", cfg.Tables.Jobs)

	// 3. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 4. Create SQS publisher and redriver
	sqsClient, err := dispatch.NewSQSClient(ctx, cfg.AWS)
	if err != nil {
		return fmt.Errorf("create sqs client: %w", err)
	}
	publisher := dispatch.NewPublisher(sqsClient, cfg.Queue.MappingRequestURL)
	redriver := dispatch.NewRedriver(sqsClient, cfg.Queue.DLQURL, cfg.Queue.MappingRequestURL, cfg.Queue.RedriveMaxMessages)

	// 5. Build the accept service and router
	svc := mapping.NewService(jobStore, catalog, publisher)
	rateLimit := mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMin)

	deps := api.Dependencies{
		RateLimit: rateLimit,

		HealthHandler: handler.NewHealthHandler(map[string]handler.Pinger{
			"dynamodb": jobStore,
			"redis":    redisCache,
			"sqs":      publisher,
		}),
		CreateMappingHandler: handler.NewCreateMappingHandler(svc),
		StatusHandler:        handler.NewStatusHandler(svc),
		RedriveHandler:       handler.NewRedriveHandler(redriver),
	}

	router := api.NewRouter(deps)

	// 6. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
