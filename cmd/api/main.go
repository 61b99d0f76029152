package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/maison-chat-platform/cmd/mainconfig"
	"github.com/wolfman30/maison-chat-platform/internal/api/router"
	"github.com/wolfman30/maison-chat-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/maison-chat-platform/internal/config"
	"github.com/wolfman30/maison-chat-platform/internal/conversation"
	"github.com/wolfman30/maison-chat-platform/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/maison-chat-platform/internal/http/middleware"
	"github.com/wolfman30/maison-chat-platform/internal/notify"
	"github.com/wolfman30/maison-chat-platform/internal/observability/metrics"
	"github.com/wolfman30/maison-chat-platform/internal/webchat"
	"github.com/wolfman30/maison-chat-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	logger.Info("starting maison chat API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg := loadAWS(ctx, cfg, logger)
	metricsHandler, chatMetrics := setupMetrics()

	store, db, err := bootstrap.BuildStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialise conversation store", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	llmClient, err := bootstrap.BuildLLMClient(ctx, cfg, awsCfg, chatMetrics, logger)
	if err != nil {
		logger.Error("failed to build llm client", "error", err)
		os.Exit(1)
	}

	properties := bootstrap.BuildPropertyProvider(cfg, redisClient, logger)
	queue, inProcess := bootstrap.BuildNotificationQueue(cfg, awsCfg, logger)
	if inProcess {
		// Nothing else drains the memory queue, so deliver from this process.
		deliverer := notify.NewService(bootstrap.BuildEmailSender(cfg, awsCfg, logger), properties, logger)
		worker := notify.NewWorker(queue, deliverer, logger, notify.WithWorkerCount(1))
		worker.Start(ctx)
		defer worker.Wait()
	}

	engine := bootstrap.BuildEngine(bootstrap.EngineDeps{
		Store:      store,
		Pending:    bootstrap.BuildPendingStore(cfg, redisClient, awsCfg, logger),
		LLM:        llmClient,
		Properties: properties,
		Publisher:  notify.NewQueuePublisher(queue),
		Archiver:   bootstrap.BuildArchiver(cfg, awsCfg, logger),
		Metrics:    chatMetrics,
		Logger:     logger,
	})

	if cfg.SessionCleanupEnabled {
		go conversation.NewCleanupWorker(engine.Sessions, cfg.SessionCleanupInterval, logger).Start(ctx)
	}

	var limiter *httpmiddleware.RateLimiter
	if cfg.RateLimitPerMinute > 0 {
		limiter = httpmiddleware.NewRateLimiter(cfg.RateLimitPerMinute)
		go limiter.RunEviction(ctx, 5*time.Minute)
	}

	routerCfg := &router.Config{
		Logger:              logger,
		ConversationHandler: conversation.NewHandler(engine.Controller, logger),
		WebChat:             webchat.NewHandler(engine.Controller, cfg.CORSAllowedOrigins, logger),
		MetricsHandler:      metricsHandler,
		ServiceJWTSecret:    cfg.ServiceJWTSecret,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimiter:         limiter,
		HealthChecks:        map[string]router.HealthCheck{},
	}
	if db.SQL != nil {
		routerCfg.AdminReporting = handlers.NewAdminReportingHandler(db.SQL, logger)
		routerCfg.HealthChecks["postgres"] = db.SQL.PingContext
	}
	if redisClient != nil {
		routerCfg.HealthChecks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router.New(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	logger.Info("server stopped")
}

// loadAWS returns nil when no AWS-backed feature is configured or the SDK
// config cannot be loaded; the dependent components then fall back.
func loadAWS(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) *aws.Config {
	if !needsAWS(cfg) {
		return nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Warn("failed to load AWS config; AWS-backed features disabled", "error", err)
		return nil
	}
	return &awsCfg
}

func needsAWS(cfg *appconfig.Config) bool {
	return cfg.BedrockModelID != "" ||
		cfg.PendingQuestionStore == "dynamodb" ||
		cfg.NotificationQueueURL != "" ||
		cfg.EmailProvider == "ses" ||
		cfg.ArchiveBucket != ""
}

func setupMetrics() (http.Handler, *metrics.ChatMetrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewChatMetrics(reg)
}
