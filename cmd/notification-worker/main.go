package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"

	"github.com/wolfman30/maison-chat-platform/cmd/mainconfig"
	"github.com/wolfman30/maison-chat-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/maison-chat-platform/internal/config"
	"github.com/wolfman30/maison-chat-platform/internal/notify"
	"github.com/wolfman30/maison-chat-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if cfg.NotificationQueueURL == "" {
		logger.Error("NOTIFICATION_QUEUE_URL is required; the API delivers in-process without it")
		os.Exit(1)
	}

	awsConfig, err := mainconfig.LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	redisClient := bootstrap.BuildRedisClient(context.Background(), cfg, logger, false)
	if redisClient != nil {
		defer redisClient.Close()
	}

	queue := notify.NewSQSQueue(sqs.NewFromConfig(awsConfig), cfg.NotificationQueueURL)
	deliverer := notify.NewService(
		bootstrap.BuildEmailSender(cfg, &awsConfig, logger),
		bootstrap.BuildPropertyProvider(cfg, redisClient, logger),
		logger,
	)
	worker := notify.NewWorker(queue, deliverer, logger, notify.WithWorkerCount(2))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker.Start(ctx)
	logger.Info("notification worker running", "queue_url", cfg.NotificationQueueURL)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down notification worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("notification worker stopped")
	case <-doneCtx.Done():
		logger.Error("notification worker shutdown timed out", "error", doneCtx.Err())
	}
}
