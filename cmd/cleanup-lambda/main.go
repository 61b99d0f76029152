package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/wolfman30/maison-chat-platform/cmd/mainconfig"
	"github.com/wolfman30/maison-chat-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/maison-chat-platform/internal/config"
	"github.com/wolfman30/maison-chat-platform/internal/conversation"
	"github.com/wolfman30/maison-chat-platform/pkg/logging"
)

type sessionCleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

type cleanupResult struct {
	Deleted int64 `json:"deleted"`
}

func main() {
	cfg := appconfig.Load()
	logger := logging.NewWithOptions(logging.Options{Level: cfg.LogLevel, Format: "json"})

	ctx := context.Background()
	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required for scheduled session cleanup")
		os.Exit(1)
	}
	store, db, err := bootstrap.BuildStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var archiver conversation.Archiver
	if cfg.ArchiveBucket != "" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Warn("failed to load AWS config; archiving disabled", "error", err)
		} else {
			archiver = bootstrap.BuildArchiver(cfg, &awsCfg, logger)
		}
	}

	sessions := conversation.NewSessionManager(store, logger, conversation.WithArchiver(archiver))
	lambda.Start(func(ctx context.Context, evt events.CloudWatchEvent) (cleanupResult, error) {
		return handle(ctx, sessions, logger, evt)
	})
}

// handle runs one cleanup pass per scheduled invocation.
func handle(ctx context.Context, sessions sessionCleaner, logger *logging.Logger, evt events.CloudWatchEvent) (cleanupResult, error) {
	logger.Info("session cleanup triggered", "event_id", evt.ID, "source", evt.Source)
	deleted, err := sessions.CleanupExpired(ctx)
	if err != nil {
		return cleanupResult{}, fmt.Errorf("cleanup expired sessions: %w", err)
	}
	logger.Info("session cleanup finished", "deleted", deleted)
	return cleanupResult{Deleted: deleted}, nil
}
