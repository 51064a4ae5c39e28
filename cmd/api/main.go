package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"corelms/internal/adapter"
	"corelms/internal/adapter/storage"
	"corelms/internal/config"
	"corelms/internal/database"
	"corelms/internal/handler"
	"corelms/internal/logger"
	"corelms/internal/middleware"
	"corelms/internal/queue"
	"corelms/internal/repository"
	"corelms/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	rediscache "corelms/internal/cache"
)

// requestLogger logs every HTTP request with its outcome and duration.
func requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		logger.Get().Info("http request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("duration", time.Since(start)),
			zap.String("ip", c.IP()),
		)
		return err
	}
}

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

	moduleRepo := repository.NewModuleDatabaseAdapter(db)
	quizRepo := repository.NewQuizDatabaseAdapter(db)
	attemptRepo := repository.NewAttemptDatabaseAdapter(db)
	txManager := repository.NewTransactionManagerAdapter(db)

	jobQueue := queue.NewRedisQueue(redisClient, cfg.Worker.QueueName)
	dedup := service.NewEnqueueDeduplicator(cacheAdapter, cfg.Worker.LockTTL, cfg.Worker.TitleLockTTL)
	adminService := service.NewAdminService(objectStorage, moduleRepo, jobQueue, cacheAdapter, dedup, cfg.Worker)

	assembler := service.NewFinalExamAssembler(moduleRepo, quizRepo, cfg.Quiz.FinalPerLesson, cfg.Quiz.FinalExamFloor)
	sessionService := service.NewQuizSessionService(cacheAdapter, quizRepo, moduleRepo, attemptRepo, txManager, assembler, cfg.Quiz)

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorHandler: middleware.ErrorHandler(),
	})
	app.Use(requestLogger())
	app.Use(recover.New())

	handler.NewQuizHandler(sessionService).Register(app)
	handler.NewAdminHandler(adminService).Register(app)

	go func() {
		appLogger.Info("Starting server", zap.Int("port", cfg.Server.Port))
		if err := app.Listen(":" + strconv.Itoa(cfg.Server.Port)); err != nil {
			appLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(ctx); err != nil {
		appLogger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	appLogger.Info("Server exited gracefully")
}
