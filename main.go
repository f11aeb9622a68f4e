package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"consultation-desk/app"
	"consultation-desk/config"
	"consultation-desk/consumer"
	"consultation-desk/document"
	"consultation-desk/handlers"
	"consultation-desk/middleware"
	"consultation-desk/models"
	"consultation-desk/monitoring"
	"consultation-desk/store"
	"consultation-desk/utils"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, envLoaded := config.Load()

	logger, err := utils.NewLogger(cfg.LogLevel, cfg.LogFormat, "consultation-desk")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	if !envLoaded {
		logger.Debug("No .env file found, using process environment")
	}

	if cfg.SentryDSN != "" {
		flush, err := utils.InitSentry(cfg.SentryDSN, cfg.AppEnv, cfg.AppVersion)
		if err != nil {
			logger.Warn("Sentry disabled", zap.Error(err))
		}
		defer flush()
	}

	monitoring.Init()

	clock := func() time.Time { return time.Now().In(cfg.Location) }
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps := store.Deps{Clock: clock, Logger: logger}
	var documentLink func(string) string

	if cfg.Backend() == config.BackendLocal {
		switch cfg.LocalKV {
		case config.KVRedis:
			if redisClient := connectRedis(cfg, logger); redisClient != nil {
				deps.Redis = redisClient
				defer closeWithLog(logger, "Redis", redisClient.Close)
			}
		case config.KVPostgres:
			repo, err := models.NewPostgresRepository(models.PostgresConfig{
				Host:     cfg.DBHost,
				User:     cfg.DBUser,
				Password: cfg.DBPassword,
				Name:     cfg.DBName,
				Port:     cfg.DBPort,
			})
			if err != nil {
				logger.Error("Failed to connect to PostgreSQL", zap.Error(err))
			} else {
				deps.Postgres = repo
				defer closeWithLog(logger, "PostgreSQL", repo.Close)
			}
		}

		renderer, err := document.NewRenderer(cfg.DocumentDir, cfg.DocumentBaseURL)
		if err != nil {
			logger.Error("Document generation disabled", zap.Error(err))
		} else {
			deps.Documents = renderer
			documentLink = renderer.URL
		}
	} else {
		documentLink = document.DriveFileURL
	}

	if cfg.KafkaBroker != "" {
		producer, err := utils.NewKafkaProducer(cfg.KafkaBroker)
		if err != nil {
			logger.Warn("Kafka producer disabled", zap.Error(err))
		} else {
			deps.Events = producer
			defer closeWithLog(logger, "Kafka producer", producer.Close)
		}
	}

	var index utils.ConsultationIndex
	if cfg.ElasticsearchURL != "" {
		index, err = utils.NewElasticsearchClient(cfg.ElasticsearchURL)
		if err != nil {
			logger.Warn("Elasticsearch disabled", zap.Error(err))
			index = nil
		} else {
			defer closeWithLog(logger, "Elasticsearch", index.Close)
		}
	}

	recordStore, backend := store.Select(cfg, deps)
	logger.Info("Record store selected", zap.String("backend", backend))

	appOpts := []app.Option{app.WithClock(clock)}
	if documentLink != nil {
		appOpts = append(appOpts, app.WithDocumentLinks(documentLink))
	}
	sessions := handlers.NewSessions(func() *app.App {
		return app.New(recordStore, logger.Named("desk"), appOpts...)
	}, handlers.WithIdleTimeout(cfg.SessionIdleTimeout))
	go sessions.RunSweeper(ctx, time.Minute, logger.Named("sessions"))

	if cfg.KafkaBroker != "" && cfg.KafkaTopic != "" {
		c := consumer.NewConsultationConsumer(cfg.KafkaBroker, cfg.KafkaTopic, index,
			func(ctx context.Context, _ models.Consultation) { sessions.ReloadAll(ctx) },
			logger.Named("consumer"))
		c.Start(ctx)
		defer c.Stop()
	}

	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestLogger(logger.Named("http")),
		middleware.SentryMiddleware(),
		middleware.PrometheusMetrics(),
		middleware.ErrorHandler(logger),
	)
	router.GET("/metrics", gin.WrapH(monitoring.Handler()))
	if deps.Documents != nil {
		router.Static("/documents", cfg.DocumentDir)
	}

	api := router.Group("/api/v1")
	{
		api.GET("/health", handlers.NewHealthHandler(backend, deps.Redis).Health)
		handlers.NewConsultationHandler(recordStore, sessions, index, clock, logger.Named("api")).Register(api)
	}

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("Server is running", zap.String("port", cfg.Port), zap.String("env", cfg.AppEnv))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("Server error", zap.Error(err))
	}
}

// connectRedis retries a few times before giving up; the local store then
// reports itself unavailable.
func connectRedis(cfg *config.Config, logger *zap.Logger) utils.RedisClient {
	const (
		maxRetries = 5
		retryDelay = 3 * time.Second
	)

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		client, err := utils.NewRedisClient(cfg.RedisHost, cfg.RedisPassword)
		if err == nil {
			return client
		}
		lastErr = err
		logger.Warn("Failed to connect to Redis", zap.Int("attempt", i+1), zap.Error(err))
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}
	logger.Error("Giving up on Redis", zap.Int("attempts", maxRetries), zap.Error(lastErr))
	return nil
}

func closeWithLog(logger *zap.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.Warn("Error closing connection", zap.String("component", name), zap.Error(err))
	}
}
