package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"corelms/internal/adapter"
	"corelms/internal/adapter/provider"
	"corelms/internal/adapter/storage"
	"corelms/internal/config"
	"corelms/internal/database"
	"corelms/internal/domain"
	"corelms/internal/job"
	"corelms/internal/logger"
	"corelms/internal/queue"
	"corelms/internal/repository"
	"corelms/internal/service"

	"go.uber.org/zap"

	rediscache "corelms/internal/cache"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Initialize(cfg.Logger); err != nil {
		panic(err)
	}
	appLogger := logger.Get()
	defer logger.Sync()

	db, err := database.NewPostgresDB(cfg.GetDSN())
	if err != nil {
		appLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := rediscache.NewRedisClient(cfg.Redis)
	if err != nil {
		appLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	cacheAdapter := adapter.NewRedisCacheAdapter(redisClient)

	objectStorage, err := storage.NewMinioStorage(cfg.Storage)
	if err != nil {
		appLogger.Fatal("Failed to create object storage client", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := objectStorage.EnsureBucket(ctx); err != nil {
		appLogger.Fatal("Failed to ensure storage bucket", zap.Error(err))
	}

	moduleRepo := repository.NewModuleDatabaseAdapter(db)
	quizRepo := repository.NewQuizDatabaseAdapter(db)
	txManager := repository.NewTransactionManagerAdapter(db)

	jobQueue := queue.NewRedisQueue(redisClient, cfg.Worker.QueueName)
	dedup := service.NewEnqueueDeduplicator(cacheAdapter, cfg.Worker.LockTTL, cfg.Worker.TitleLockTTL)

	importHandler := job.NewImportHandler(
		cacheAdapter, objectStorage, moduleRepo, quizRepo, txManager,
		jobQueue, dedup, cfg.Quiz, cfg.Worker)
	regenHandler := job.NewRegenHandler(
		cacheAdapter, moduleRepo, quizRepo, txManager,
		cfg.LLM, cfg.Quiz, provider.Build)

	worker := queue.NewWorker(redisClient, cfg.Worker.QueueName,
		cfg.Worker.Concurrency, cfg.Worker.JobTimeout, cfg.Worker.ResultTTL)
	worker.Register(domain.JobKindImport, importHandler.Handle)
	worker.Register(domain.JobKindRegenerate, regenHandler.Handle)

	appLogger.Info("Worker started",
		zap.String("queue", cfg.Worker.QueueName),
		zap.Int("concurrency", cfg.Worker.Concurrency))
	if err := worker.Run(ctx); err != nil {
		appLogger.Fatal("Worker stopped with error", zap.Error(err))
	}
	appLogger.Info("Worker exited gracefully")
}
