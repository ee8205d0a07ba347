package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/workflow"

	"github.com/wms-platform/disposition-service/internal/activities"
	"github.com/wms-platform/disposition-service/internal/application"
	"github.com/wms-platform/disposition-service/internal/infrastructure/locking"
	mongoRepo "github.com/wms-platform/disposition-service/internal/infrastructure/mongodb"
	"github.com/wms-platform/disposition-service/internal/workflows"
	"github.com/wms-platform/disposition-service/pkg/cloudevents"
	"github.com/wms-platform/disposition-service/pkg/logging"
	"github.com/wms-platform/disposition-service/pkg/metrics"
	"github.com/wms-platform/disposition-service/pkg/mongodb"
	"github.com/wms-platform/disposition-service/pkg/resilience"
	"github.com/wms-platform/disposition-service/pkg/temporal"
)

const serviceName = "disposition-worker"

func main() {
	_ = godotenv.Load()

	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting disposition worker")

	config := loadConfig()
	ctx := context.Background()
	m := metrics.New(metrics.DefaultConfig(serviceName))

	mongoClient, err := resilience.RetryWithResult(ctx, resilience.StartupRetryConfig(), func() (*mongodb.Client, error) {
		return mongodb.NewClient(ctx, config.MongoDB)
	})
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer mongoClient.Close(context.Background())
	logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

	db := mongoClient.Database()
	inst := mongodb.NewInstrumentation(config.MongoDB.Database, m, logger)
	positions := mongoRepo.NewPositionRepository(db, cloudevents.NewEventFactory(cloudevents.SourceDisposition), inst)
	loads := mongoRepo.NewLoadRepository(db, inst)

	var locker application.Locker = locking.NewKeyedMutex()
	if config.LockBackend == "redis" {
		redisClient := redis.NewClient(&redis.Options{Addr: config.RedisAddr})
		defer redisClient.Close()
		locker = locking.NewRedisLocker(redisClient, locking.DefaultRedisLockOptions(), logger)
		logger.Info("Using Redis locks", "addr", config.RedisAddr)
	} else {
		logger.Warn("Using in-process locks; run the API with the same lock backend when sharing storage")
	}

	service := application.NewDispositionApplicationService(positions, loads, locker, logger, m)
	dispositionActivities := activities.NewDispositionActivities(service)

	temporalClient, err := temporal.NewClient(ctx, config.Temporal, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to create Temporal client")
		os.Exit(1)
	}
	defer temporalClient.Close()
	logger.Info("Connected to Temporal", "hostPort", config.Temporal.HostPort, "namespace", config.Temporal.Namespace)

	w := temporalClient.NewWorker(temporal.DefaultWorkerOptions(temporal.TaskQueues.Disposition))

	w.RegisterWorkflowWithOptions(workflows.BulkConfirmWorkflow, workflow.RegisterOptions{Name: temporal.WorkflowNames.BulkConfirm})
	w.RegisterActivityWithOptions(dispositionActivities.ConfirmPosition, activity.RegisterOptions{Name: activities.ConfirmPositionName})
	logger.Info("Registered workflows and activities",
		"workflows", []string{temporal.WorkflowNames.BulkConfirm},
		"activities", []string{activities.ConfirmPositionName},
	)

	go func() {
		if err := w.Run(nil); err != nil {
			logger.WithError(err).Error("Worker failed")
			os.Exit(1)
		}
	}()
	logger.Info("Worker started", "taskQueue", temporal.TaskQueues.Disposition)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down worker...")

	w.Stop()
	logger.Info("Worker stopped")
}

// Config holds worker configuration
type Config struct {
	LockBackend string
	RedisAddr   string
	MongoDB     *mongodb.Config
	Temporal    *temporal.Config
}

func loadConfig() *Config {
	mongoConfig := mongodb.DefaultConfig()
	mongoConfig.URI = getEnv("MONGODB_URI", mongoConfig.URI)
	mongoConfig.Database = getEnv("MONGODB_DATABASE", mongoConfig.Database)
	mongoConfig.ConnectTimeout = 10 * time.Second

	return &Config{
		LockBackend: getEnv("LOCK_BACKEND", "memory"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		MongoDB:     mongoConfig,
		Temporal: &temporal.Config{
			HostPort:  getEnv("TEMPORAL_HOST", "localhost:7233"),
			Namespace: getEnv("TEMPORAL_NAMESPACE", "default"),
			Identity:  serviceName,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
