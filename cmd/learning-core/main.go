package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/chenxi840221/personalized-learning-copilot/internal/adapters/driven/abcedu"
	"github.com/chenxi840221/personalized-learning-copilot/internal/adapters/driven/ai"
	"github.com/chenxi840221/personalized-learning-copilot/internal/adapters/driven/auth"
	"github.com/chenxi840221/personalized-learning-copilot/internal/adapters/driven/azsearch"
	"github.com/chenxi840221/personalized-learning-copilot/internal/adapters/driven/postgres"
	postgresqueue "github.com/chenxi840221/personalized-learning-copilot/internal/adapters/driven/queue/postgres"
	redisqueue "github.com/chenxi840221/personalized-learning-copilot/internal/adapters/driven/queue/redis"
	redisadapter "github.com/chenxi840221/personalized-learning-copilot/internal/adapters/driven/redis"
	"github.com/chenxi840221/personalized-learning-copilot/internal/adapters/driving/http"
	"github.com/chenxi840221/personalized-learning-copilot/internal/classify"
	"github.com/chenxi840221/personalized-learning-copilot/internal/config"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/domain"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driven"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/ports/driving"
	"github.com/chenxi840221/personalized-learning-copilot/internal/core/services"
	"github.com/chenxi840221/personalized-learning-copilot/internal/runtime"
	"github.com/chenxi840221/personalized-learning-copilot/internal/worker"
	"github.com/redis/go-redis/v9"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Run mode comes from config (LEARNING_SERVER_MODE) with a
	// command line override: learning-core [api|worker|all]
	mode := cfg.Server.Mode
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	log.Printf("learning-core %s starting in %s mode", version, mode)

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutdown signal received, stopping...")
		cancel()
	}()

	// ===== Initialize PostgreSQL =====
	log.Println("Connecting to PostgreSQL...")
	db, err := postgres.Connect(ctx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Initialize schema (idempotent)
	if err := db.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}
	log.Println("PostgreSQL connected and schema initialized")

	// ===== Initialize Redis (optional) =====
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		log.Println("Connecting to Redis...")
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("Failed to parse Redis URL: %v", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		log.Println("Redis connected")
	}

	// ===== Initialize Azure AI Search =====
	log.Println("Connecting to Azure AI Search...")
	contentStore := azsearch.NewContentStore(azsearch.Config{
		Endpoint:   cfg.Search.Endpoint,
		APIKey:     cfg.Search.APIKey,
		IndexName:  cfg.Search.IndexName,
		APIVersion: cfg.Search.APIVersion,
		Timeout:    cfg.Search.Timeout,
	})
	if err := contentStore.EnsureIndex(ctx); err != nil {
		if errors.Is(err, domain.ErrServiceUnavailable) {
			log.Printf("Warning: search index unreachable: %v (retrieval may not work)", err)
		} else {
			log.Fatalf("Failed to ensure search index: %v", err)
		}
	} else {
		log.Println("Search index ready")
	}

	// ===== Embedding provider (optional) =====
	embeddingService, err := ai.NewEmbeddingService(cfg.Embedding, logger)
	if err != nil {
		log.Fatalf("Failed to create embedding service: %v", err)
	}

	// Runtime configuration
	queueBackend := "postgres"
	if redisClient != nil {
		queueBackend = "redis"
	}
	runtimeConfig := domain.NewRuntimeConfig(queueBackend)
	runtimeServices := runtime.NewServices(runtimeConfig)
	if embeddingService != nil {
		runtimeServices.SetEmbeddingService(embeddingService)
	}

	// ===== Content source =====
	source, err := abcedu.NewSource(abcedu.Config{
		BaseURL:      cfg.Source.BaseURL,
		Subjects:     cfg.Source.Subjects,
		RequestDelay: cfg.Source.RequestDelay,
		FetchTimeout: cfg.Source.FetchTimeout,
		MaxRetries:   cfg.Source.MaxRetries,
		UserAgent:    cfg.Source.UserAgent,
	})
	if err != nil {
		log.Fatalf("Failed to create content source: %v", err)
	}

	// ===== PostgreSQL Stores =====
	catalogStore := postgres.NewCatalogStore(db)
	planStore := postgres.NewPlanStore(db)
	scheduleStore := postgres.NewScheduleStore(db)

	// ===== Task Queue (Redis if available, otherwise PostgreSQL) =====
	var taskQueue driven.TaskQueue
	if redisClient != nil {
		taskQueue, err = redisqueue.NewQueue(redisClient, fmt.Sprintf("worker-%d", os.Getpid()))
		if err != nil {
			log.Fatalf("Failed to create task queue: %v", err)
		}
		log.Println("Using Redis task queue")
	} else {
		taskQueue = postgresqueue.NewQueue(db.DB)
		log.Println("Using PostgreSQL task queue")
	}

	// ===== Distributed Lock (Redis if available, otherwise PostgreSQL advisory locks) =====
	var distributedLock driven.DistributedLock
	if redisClient != nil {
		distributedLock = redisadapter.NewLock(redisClient)
		log.Println("Using Redis distributed lock")
	} else {
		distributedLock = postgres.NewAdvisoryLock(db)
		log.Println("Using PostgreSQL advisory lock")
	}

	classifier := classify.New()

	// Services (core business logic)
	retrievalService := services.NewRetrievalService(contentStore, runtimeServices, logger)
	planService := services.NewPlanService(retrievalService, planStore, logger)
	pipelineService := services.NewPipelineService(taskQueue, catalogStore, contentStore, logger)

	// Log startup configuration
	log.Printf("Runtime config: queue_backend=%s, embedding=%t, retrieval_mode=%s",
		runtimeConfig.QueueBackend,
		runtimeConfig.EmbeddingAvailable(),
		runtimeConfig.EffectiveRetrievalMode())

	// Pipeline stages for worker mode
	indexer := services.NewResourceIndexer(services.ResourceIndexerConfig{
		Source:  source,
		Catalog: catalogStore,
		Lock:    distributedLock,
		Logger:  logger,
	})
	extractor := services.NewExtractOrchestrator(services.ExtractOrchestratorConfig{
		Source:     source,
		Catalog:    catalogStore,
		Content:    contentStore,
		Classifier: classifier,
		Services:   runtimeServices,
		Logger:     logger,
	})

	// Scheduler for worker mode (if enabled)
	var scheduler *services.Scheduler
	if cfg.Scheduler.Enabled {
		scheduler = services.NewScheduler(services.SchedulerConfig{
			Store:        scheduleStore,
			TaskQueue:    taskQueue,
			Lock:         distributedLock,
			Logger:       logger,
			PollInterval: cfg.Scheduler.CheckInterval,
			LockRequired: cfg.Scheduler.LockRequired,
		})
		if err := seedSchedules(ctx, scheduler, cfg.Source.Subjects); err != nil {
			log.Fatalf("Failed to seed schedules: %v", err)
		}
		log.Printf("Scheduler enabled (lock_required=%t)", cfg.Scheduler.LockRequired)
	} else {
		log.Println("Scheduler disabled via configuration")
	}

	switch mode {
	case "api":
		// API-only mode: HTTP server, no worker
		runAPI(cfg, retrievalService, planService, pipelineService, contentStore, db, redisClient, logger)

	case "worker":
		// Worker-only mode: task processing and scheduling, no HTTP server
		runWorkerMode(ctx, cfg, taskQueue, indexer, extractor, scheduler, logger)

	case "all":
		// Combined mode: worker in background, API in foreground (blocks)
		go runWorkerMode(ctx, cfg, taskQueue, indexer, extractor, scheduler, logger)
		runAPI(cfg, retrievalService, planService, pipelineService, contentStore, db, redisClient, logger)

	default:
		log.Fatalf("Unknown mode: %s (use: api, worker, or all)", mode)
	}
}

func runAPI(
	cfg *config.Config,
	retrievalService driving.RetrievalService,
	planService driving.PlanService,
	pipelineService driving.PipelineService,
	contentStore driven.ContentStore,
	db *postgres.DB,
	redisClient *redis.Client,
	logger *slog.Logger,
) {
	serverCfg := http.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		Version:        version,
		AllowedOrigins: []string{"*"},
		TokenParser:    auth.NewAdapter(cfg.Auth.JWTSecret),
		Logger:         logger,
	}

	var redisPing http.Pinger
	if redisClient != nil {
		redisPing = redisPinger{client: redisClient}
	}

	server := http.NewServer(
		serverCfg,
		retrievalService,
		planService,
		pipelineService,
		contentStore,
		db,
		redisPing,
	)

	log.Printf("API server starting on :%d", cfg.Server.Port)
	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// runWorkerMode starts the worker and scheduler. It processes pipeline
// tasks from the queue and triggers scheduled discovery runs.
func runWorkerMode(
	ctx context.Context,
	cfg *config.Config,
	taskQueue driven.TaskQueue,
	indexer *services.ResourceIndexer,
	extractor *services.ExtractOrchestrator,
	scheduler *services.Scheduler,
	logger *slog.Logger,
) {
	log.Println("Starting worker mode...")

	w := worker.NewWorker(worker.WorkerConfig{
		TaskQueue:      taskQueue,
		Indexer:        indexer,
		Extractor:      extractor,
		Scheduler:      scheduler,
		Logger:         logger,
		Concurrency:    cfg.Worker.Concurrency,
		DequeueTimeout: cfg.Worker.DequeueTimeout,
	})

	if err := w.Start(ctx); err != nil {
		log.Fatalf("Failed to start worker: %v", err)
	}

	log.Println("Worker started, processing tasks...")
	log.Println("Worker handles:")
	log.Println("  - index_subject: Discover catalog entries for a subject")
	log.Println("  - extract_subject: Extract and index pending entries")
	log.Println("  - refresh_embeddings: Retry embedding for degraded items")

	// Completed and failed tasks accumulate in the queue table; prune
	// anything older than a day at startup. Only the PostgreSQL queue
	// keeps history, Redis entries expire on their own.
	if pq, ok := taskQueue.(*postgresqueue.Queue); ok {
		if n, err := pq.PurgeTasks(ctx, 86400); err != nil {
			log.Printf("Warning: failed to purge old tasks: %v", err)
		} else if n > 0 {
			log.Printf("Purged %d old tasks", n)
		}
	}

	// Wait for context cancellation
	<-ctx.Done()

	log.Println("Stopping worker...")
	w.Stop()
	log.Println("Worker stopped")
}

// seedSchedules registers the recurring pipeline tasks for each
// configured subject. Existing schedules are left untouched so their
// next-run times survive restarts.
func seedSchedules(ctx context.Context, scheduler *services.Scheduler, subjects []string) error {
	for _, subject := range subjects {
		slug := strings.ToLower(strings.ReplaceAll(subject, " ", "-"))

		seeds := []*domain.ScheduledTask{
			domain.NewScheduledTask("index-"+slug, "Index "+subject, domain.TaskTypeIndexSubject, subject, 24*time.Hour),
			domain.NewScheduledTask("extract-"+slug, "Extract "+subject, domain.TaskTypeExtractSubject, subject, 24*time.Hour),
			domain.NewScheduledTask("refresh-"+slug, "Refresh embeddings "+subject, domain.TaskTypeRefreshEmbeddings, subject, 6*time.Hour),
		}

		for _, seed := range seeds {
			_, err := scheduler.GetScheduledTask(ctx, seed.ID)
			if err == nil {
				continue
			}
			if !errors.Is(err, domain.ErrNotFound) {
				return err
			}
			if err := scheduler.CreateScheduledTask(ctx, seed); err != nil {
				return err
			}
		}
	}
	return nil
}

// newLogger builds the process-wide structured logger.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// redisPinger adapts the Redis client to the readiness Pinger.
type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
