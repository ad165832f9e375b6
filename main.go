// main.go
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

	"github.com/inngest/inngestgo"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/api"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/config"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/database"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/logging"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/metrics"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/providers"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/providers/common"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/queue"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/repositories/memory"
	"github.com/AI-Template-SDK/senso-visibility-tracker/internal/search"
	"github.com/AI-Template-SDK/senso-visibility-tracker/services"
	"github.com/AI-Template-SDK/senso-visibility-tracker/workflows"
)

const appID = "senso-visibility-tracker"

const reapInterval = 10 * time.Minute

func main() {
	envNote := "Loaded .env file"
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("dev.env"); err != nil {
			envNote = fmt.Sprintf("No .env or dev.env file loaded: %v", err)
		} else {
			envNote = "Loaded dev.env file for local development"
		}
	}

	cfg := config.Load()
	logging.Init(appID, cfg.Environment, cfg.LogLevel)
	metrics.Init()

	log.Info().Msg(envNote)
	log.Info().
		Str("environment", cfg.Environment).
		Str("port", cfg.Port).
		Str("storage", cfg.StorageBackend).
		Str("queue", cfg.Queue.Backend).
		Strs("providers", cfg.Providers.Enabled).
		Msg("configuration loaded")

	if cfg.IsDevelopment() {
		os.Unsetenv("INNGEST_SIGNING_KEY")
		cfg.InngestSigningKey = ""
		log.Info().Msg("running in development mode, signing key verification disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repoManager, closeStorage := mustRepositories(ctx, cfg)
	defer closeStorage()

	aiProviders, err := providers.NewFromConfig(cfg, common.NewCostService())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build AI providers")
	}

	index := mustResponseIndex(ctx, cfg)
	notifier := workflows.NewSlackNotifier(cfg.SlackWebhookURL)

	jobHandler := workflows.NewSessionJobHandler()
	policy := queue.RetryPolicy{
		MaxAttempts:   cfg.Queue.MaxAttempts,
		BaseDelay:     cfg.Queue.BackoffBase,
		KeepCompleted: cfg.Queue.KeepCompleted,
		KeepFailed:    cfg.Queue.KeepFailed,
	}

	var (
		jobs          queue.Queue
		worker        queue.Worker
		inngestClient inngestgo.Client
	)
	switch cfg.Queue.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr()).Msg("failed to connect to redis")
		}
		redisQueue := queue.NewRedisQueue(rdb, queue.RedisOptions{
			Name:        cfg.Queue.Name,
			Policy:      policy,
			Concurrency: cfg.Queue.Concurrency,
			Handler:     jobHandler.Handle,
			OnExhausted: jobHandler.Exhausted,
		})
		jobs, worker = redisQueue, redisQueue
	case "memory":
		memoryQueue := queue.NewMemoryQueue(queue.MemoryOptions{
			Name:        cfg.Queue.Name,
			Policy:      policy,
			Concurrency: cfg.Queue.Concurrency,
			Handler:     jobHandler.Handle,
			OnExhausted: jobHandler.Exhausted,
		})
		jobs, worker = memoryQueue, memoryQueue
	case "inngest":
		inngestClient, err = inngestgo.NewClient(inngestgo.ClientOpts{
			AppID:    appID,
			EventKey: inngestgo.StrPtr(cfg.InngestEventKey),
			Env:      inngestgo.StrPtr(cfg.Environment),
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create Inngest client")
		}
		jobs = workflows.NewInngestQueue(inngestClient)
	default:
		log.Fatal().Str("backend", cfg.Queue.Backend).Msg("unknown QUEUE_BACKEND")
	}

	trackingService := services.NewTrackingService(cfg, repoManager, aiProviders, jobs, index, notifier)
	jobHandler.SetService(trackingService)
	scheduledProcessor := workflows.NewScheduledProcessor(trackingService)

	extra := map[string]http.Handler{}
	if inngestClient != nil {
		trackingProcessor := workflows.NewTrackingProcessor(trackingService, cfg)
		trackingProcessor.SetClient(inngestClient)
		trackingProcessor.RunTrackingSession()

		scheduledProcessor.SetClient(inngestClient)
		scheduledProcessor.StaleSessionReaper()

		extra["/api/inngest"] = inngestClient.Serve()
		log.Info().Msg("Inngest functions registered")
	}

	if worker != nil {
		go func() {
			if err := worker.Run(ctx); err != nil {
				log.Error().Err(err).Msg("queue worker stopped")
			}
		}()
		go scheduledProcessor.Run(ctx, reapInterval)
		log.Info().Int("concurrency", cfg.Queue.Concurrency).Msg("queue worker started")
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewServer(trackingService, extra),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("graceful shutdown failed")
		}
	}()

	log.Info().Str("port", cfg.Port).Msg("starting visibility tracker")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("server stopped")
}

func mustRepositories(ctx context.Context, cfg *config.Config) (*services.RepositoryManager, func()) {
	if cfg.StorageBackend == "memory" {
		log.Warn().Msg("using in-memory storage, sessions are lost on restart")
		return services.NewMemoryRepositoryManager(memory.NewStore()), func() {}
	}

	dbClient, err := database.NewClient(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := dbClient.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to apply database schema")
	}
	log.Info().Str("host", cfg.Database.Host).Str("name", cfg.Database.Name).Msg("connected to database")
	return services.NewRepositoryManager(dbClient), func() { dbClient.Close() }
}

func mustResponseIndex(ctx context.Context, cfg *config.Config) search.ResponseIndex {
	if cfg.Typesense.Host == "" {
		log.Info().Msg("TYPESENSE_HOST not set, response search scans stored responses")
		return search.NopIndex{}
	}

	index := search.NewTypesenseIndex(fmt.Sprintf("http://%s:%d", cfg.Typesense.Host, cfg.Typesense.Port), cfg.Typesense.APIKey)
	if err := index.EnsureCollection(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to prepare Typesense collection")
	}
	return index
}
