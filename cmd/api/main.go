package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/wms-platform/disposition-service/internal/application"
	"github.com/wms-platform/disposition-service/internal/domain"
	kafkaHandlers "github.com/wms-platform/disposition-service/internal/infrastructure/kafka"
	"github.com/wms-platform/disposition-service/internal/infrastructure/locking"
	"github.com/wms-platform/disposition-service/internal/infrastructure/memory"
	mongoRepo "github.com/wms-platform/disposition-service/internal/infrastructure/mongodb"
	"github.com/wms-platform/disposition-service/internal/workflows"
	"github.com/wms-platform/disposition-service/pkg/cloudevents"
	"github.com/wms-platform/disposition-service/pkg/idempotency"
	"github.com/wms-platform/disposition-service/pkg/kafka"
	"github.com/wms-platform/disposition-service/pkg/logging"
	"github.com/wms-platform/disposition-service/pkg/metrics"
	"github.com/wms-platform/disposition-service/pkg/middleware"
	"github.com/wms-platform/disposition-service/pkg/mongodb"
	"github.com/wms-platform/disposition-service/pkg/outbox"
	"github.com/wms-platform/disposition-service/pkg/resilience"
	wmstemporal "github.com/wms-platform/disposition-service/pkg/temporal"
	"github.com/wms-platform/disposition-service/pkg/tracing"
)

const serviceName = "disposition-service"

func main() {
	_ = godotenv.Load()

	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.LogLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting disposition-service API")

	config := loadConfig()
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = config.OTLPEndpoint
	tracingConfig.Environment = logConfig.Environment
	tracingConfig.Enabled = config.TracingEnabled

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "endpoint", tracingConfig.OTLPEndpoint, "enabled", tracingConfig.Enabled)
	}

	m := metrics.New(metrics.DefaultConfig(serviceName))
	logger.Info("Metrics initialized")

	var (
		positions domain.PositionRepository
		loads     domain.LoadRepository
		idemStore idempotency.Store
		readiness []middleware.Check
	)

	switch config.StorageBackend {
	case "memory":
		positions = memory.NewPositionRepository()
		loads = memory.NewLoadRepository()
		idemStore = idempotency.NewMemoryStore()
		logger.Warn("Using in-memory storage; data is lost on restart and events are not published")

	default:
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
		eventFactory := cloudevents.NewEventFactory(cloudevents.SourceDisposition)

		positionRepo := mongoRepo.NewPositionRepository(db, eventFactory, inst)
		loadRepo := mongoRepo.NewLoadRepository(db, inst)
		if err := positionRepo.EnsureIndexes(ctx); err != nil {
			logger.WithError(err).Warn("Failed to create position indexes")
		}
		if err := loadRepo.EnsureIndexes(ctx); err != nil {
			logger.WithError(err).Warn("Failed to create load indexes")
		}
		positions, loads = positionRepo, loadRepo

		mongoIdem := idempotency.NewMongoStore(db)
		if err := mongoIdem.EnsureIndexes(ctx); err != nil {
			logger.WithError(err).Warn("Failed to create idempotency indexes")
		}
		idemStore = mongoIdem
		readiness = append(readiness, middleware.Check{Name: "mongodb", Probe: mongoClient.HealthCheck})

		if err := config.Kafka.Validate(); err != nil {
			logger.WithError(err).Error("Invalid Kafka configuration")
			os.Exit(1)
		}
		producer, baseProducer := kafka.NewProductionProducer(config.Kafka, m, logger)
		defer baseProducer.Close()

		outboxPublisher := outbox.NewPublisher(positionRepo.Outbox(), producer, logger, m, outbox.DefaultPublisherConfig())
		if err := outboxPublisher.Start(ctx); err != nil {
			logger.WithError(err).Error("Failed to start outbox publisher")
			os.Exit(1)
		}
		defer outboxPublisher.Stop()
		logger.Info("Outbox publisher started", "brokers", config.Kafka.Brokers)
	}

	var locker application.Locker
	switch config.LockBackend {
	case "redis":
		redisClient := redis.NewClient(&redis.Options{Addr: config.RedisAddr})
		defer redisClient.Close()
		locker = locking.NewRedisLocker(redisClient, locking.DefaultRedisLockOptions(), logger)
		readiness = append(readiness, middleware.Check{Name: "redis", Probe: func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}})
		logger.Info("Using Redis locks", "addr", config.RedisAddr)
	default:
		locker = locking.NewKeyedMutex()
	}

	service := application.NewDispositionApplicationService(positions, loads, locker, logger, m)

	if config.KafkaConsumerEnabled {
		consumer := kafka.NewConsumer(config.Kafka, logger)
		kafkaHandlers.NewLoadEventHandler(service, logger).Register(consumer, config.Kafka.ConsumerGroup, m)
		go func() {
			if err := consumer.Start(ctx); err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("Load event consumer stopped")
			}
		}()
		defer consumer.Close()
		logger.Info("Load event consumer started", "topic", kafka.Topics.LoadEvents)
	}

	var runner BulkConfirmRunner
	if config.TemporalEnabled {
		temporalClient, err := wmstemporal.NewClient(ctx, config.Temporal, logger)
		if err != nil {
			logger.WithError(err).Error("Failed to connect to Temporal; async bulk confirmation disabled")
		} else {
			defer temporalClient.Close()
			runner = workflows.NewBulkConfirmClient(temporalClient, m)
			logger.Info("Connected to Temporal", "hostPort", config.Temporal.HostPort)
		}
	}

	router := gin.New()
	middleware.Setup(router, middleware.DefaultConfig(serviceName, logger))
	router.Use(middleware.MetricsMiddleware(m))
	router.Use(middleware.TracingMiddleware(middleware.DefaultTracingConfig(serviceName)))

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, readiness...))
	router.GET("/metrics", middleware.MetricsEndpoint(m))

	idempotent := idempotency.Middleware(idempotency.DefaultConfig(serviceName, idemStore, logger, m))
	registerRoutes(router, service, runner, idempotent, logger)

	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Error("Server error")
		}
	}()
	logger.Info("Server started", "addr", config.ServerAddr, "storage", config.StorageBackend, "locks", config.LockBackend)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	stop()

	logger.Info("Server stopped")
}

// Config holds application configuration
type Config struct {
	ServerAddr           string
	StorageBackend       string
	LockBackend          string
	RedisAddr            string
	KafkaConsumerEnabled bool
	TemporalEnabled      bool
	TracingEnabled       bool
	OTLPEndpoint         string
	MongoDB              *mongodb.Config
	Kafka                *kafka.Config
	Temporal             *wmstemporal.Config
}

func loadConfig() *Config {
	mongoConfig := mongodb.DefaultConfig()
	mongoConfig.URI = getEnv("MONGODB_URI", mongoConfig.URI)
	mongoConfig.Database = getEnv("MONGODB_DATABASE", mongoConfig.Database)

	kafkaConfig := kafka.DefaultConfig()
	kafkaConfig.Brokers = strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ",")
	kafkaConfig.ConsumerGroup = getEnv("KAFKA_CONSUMER_GROUP", serviceName)
	kafkaConfig.ClientID = serviceName

	temporalConfig := wmstemporal.DefaultConfig()
	temporalConfig.HostPort = getEnv("TEMPORAL_HOST", temporalConfig.HostPort)
	temporalConfig.Namespace = getEnv("TEMPORAL_NAMESPACE", temporalConfig.Namespace)
	temporalConfig.Identity = serviceName

	storage := getEnv("STORAGE_BACKEND", "mongodb")

	return &Config{
		ServerAddr:           getEnv("SERVER_ADDR", ":8016"),
		StorageBackend:       storage,
		LockBackend:          getEnv("LOCK_BACKEND", "memory"),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		KafkaConsumerEnabled: getEnv("KAFKA_CONSUMER_ENABLED", boolString(storage != "memory")) == "true",
		TemporalEnabled:      getEnv("TEMPORAL_ENABLED", "false") == "true",
		TracingEnabled:       getEnv("TRACING_ENABLED", "true") == "true",
		OTLPEndpoint:         getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		MongoDB:              mongoConfig,
		Kafka:                kafkaConfig,
		Temporal:             temporalConfig,
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
