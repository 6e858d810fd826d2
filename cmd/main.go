package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RishiKendai/overlap/internal/api"
	"github.com/RishiKendai/overlap/internal/config"
	"github.com/RishiKendai/overlap/internal/configs/env"
	"github.com/RishiKendai/overlap/internal/infra/mongo"
	redisInfra "github.com/RishiKendai/overlap/internal/infra/redis"
	"github.com/RishiKendai/overlap/internal/ingest"
	"github.com/RishiKendai/overlap/internal/logger"
	"github.com/RishiKendai/overlap/internal/metrics"
	"github.com/RishiKendai/overlap/internal/overlap"
	"github.com/RishiKendai/overlap/internal/repository"
	"github.com/RishiKendai/overlap/internal/stream"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := env.LoadEnv(); err != nil {
		log.Warn().Err(err).Msg("Failed to load .env file, continuing with system environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Int("upperBound", cfg.PopularityUpperBound).
		Str("scope", string(cfg.PopularityScope)).
		Bool("includeSelfPairs", cfg.IncludeSelfPairs).
		Msg("Starting overlap server")

	metrics.InitPrometheus()

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsServer := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("port", cfg.MetricsPort).Msg("Metrics server started")
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Metrics server failed to start")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect MongoDB
	mongoClient, err := mongo.NewClient(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create MongoDB client")
	}
	defer mongoClient.Close(context.Background())

	// Connect Redis
	redisClient, err := redisInfra.NewClient(ctx, cfg.RedisHost, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Redis client")
	}
	defer redisClient.Close()

	mongoRepo := repository.NewMongoRepository(mongoClient)
	fingerprintsRepo := repository.NewFingerprintsRepository(mongoRepo)
	resultsRepo := repository.NewResultsRepository(mongoRepo)

	if err := fingerprintsRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to create fingerprint indexes")
	}
	if err := resultsRepo.EnsureIndexes(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to create result indexes")
	}

	// Source-only submissions need the fingerprinting service
	var fingerprinter ingest.Fingerprinter
	if cfg.FingerprinterBaseURL != "" {
		fingerprinter = ingest.NewFingerprinterClient(cfg.FingerprinterBaseURL, cfg.FingerprinterAPIKey, cfg.FingerprinterTimeout)
	} else {
		log.Warn().Msg("FINGERPRINTER_BASE_URL not set, only submissions with inline fingerprints are accepted")
	}
	ingestSvc := ingest.NewService(fingerprinter, fingerprintsRepo)

	retryHandler := stream.NewRetryHandler(redisClient.Client, cfg.RedisDeadLetterKey, cfg.MaxRetries)

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	consumerName := fmt.Sprintf("consumer-%s-%d-%s", hostname, os.Getpid(), uuid.New().String()[:8])
	consumer := stream.NewConsumer(
		redisClient.Client,
		cfg.RedisStreamKey,
		cfg.RedisConsumerGroup,
		consumerName,
		ingestSvc,
		retryHandler,
		cfg.StreamRetentionDuration,
	)
	log.Info().Str("consumer_name", consumerName).Msg("Redis stream consumer initialized")

	var workerPool *overlap.WorkerPool
	if cfg.Workers > 0 {
		workerPool = overlap.NewWorkerPoolSize(ctx, cfg.Workers)
	} else {
		workerPool = overlap.NewWorkerPool(ctx)
	}
	defer workerPool.Close()
	log.Info().Int("workers", workerPool.Size()).Msg("Worker pool started")

	handler := api.NewHandler(
		cfg,
		fingerprintsRepo,
		resultsRepo,
		overlap.NewStatusTracker(redisClient),
		workerPool,
	)
	router := api.SetupRoutes(cfg, handler)

	consumer.WithRunTrigger(handler, cfg.AutoRunSettle)
	if cfg.AutoRunSettle > 0 {
		log.Info().Dur("settle", cfg.AutoRunSettle).Msg("Auto runs enabled for settled corpora")
	}

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Start(consumerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Redis consumer error")
		}
	}()
	log.Info().Msg("Redis consumer started")

	srv := api.StartServer(router, cfg.ServerPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down gracefully...")

	if err := api.ShutdownServer(srv, 30*time.Second); err != nil {
		log.Error().Err(err).Msg("Error shutting down API server")
	}

	consumerCancel()
	<-consumerDone

	// Let accepted runs finish before the pool and clients go away
	handler.Wait()

	metricsCtx, metricsCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer metricsCancel()
	if err := metricsServer.Shutdown(metricsCtx); err != nil {
		log.Error().Err(err).Msg("Error shutting down metrics server")
	}

	log.Info().Msg("Shutdown complete")
}
