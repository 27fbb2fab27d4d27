// Package main is the entrypoint for the Crosswalk mapping worker. It
// consumes dispatch messages from SQS and runs the mapping pipeline for each
// job.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/crosswalk-io/crosswalk/internal/cache"
	"github.com/crosswalk-io/crosswalk/internal/config"
	"github.com/crosswalk-io/crosswalk/internal/dispatch"
	"github.com/crosswalk-io/crosswalk/internal/jobs"
	"github.com/crosswalk-io/crosswalk/internal/pipeline"
	"github.com/crosswalk-io/crosswalk/internal/reasoner"
	"github.com/crosswalk-io/crosswalk/internal/scorer"
	"github.com/crosswalk-io/crosswalk/internal/store"
	"github.com/crosswalk-io/crosswalk/internal/workflow"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "queue_url", cfg.Queue.MappingRequestURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dynamoClient, err := store.NewDynamoClient(ctx, cfg.AWS)
	if err != nil {
		return fmt.Errorf("create dynamodb client: %w", err)
	}
	jobStore := store.NewDynamoStore(dynamoClient, cfg.Tables.Jobs, cfg.Pipeline.JobTTLDays)
	catalog := store.NewDynamoCatalog(dynamoClient, cfg.Tables)

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	scorerClient := scorer.NewClient(cfg.Scorer)
	reasonerClient := reasoner.NewClient(cfg.Reasoner)
	slog.Info("ml clients ready", "scorer", scorerClient.Name(), "reasoner", reasonerClient.Name())

	orch := pipeline.New(catalog, redisCache, scorerClient, pipeline.Options{
		ModelVersion:     cfg.Scorer.ModelVersion,
		RetrieveTopK:     cfg.Pipeline.RetrieveTopK,
		RerankThreshold:  cfg.Pipeline.RerankThreshold,
		EmbedConcurrency: cfg.Pipeline.EmbedConcurrency,
	})
	runner := workflow.NewRunner(jobStore, orch, reasonerClient, jobs.NewUpdater(jobStore))

	sqsClient, err := dispatch.NewSQSClient(ctx, cfg.AWS)
	if err != nil {
		return fmt.Errorf("create sqs client: %w", err)
	}
	consumer := dispatch.NewConsumer(sqsClient, cfg.Queue.MappingRequestURL, runner,
		cfg.Worker.BatchSize, cfg.Worker.WaitTime)

	if err := consumer.Run(ctx); err != nil {
		return fmt.Errorf("consumer: %w", err)
	}

	slog.Info("worker stopped gracefully")
	return nil
}
