package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/maison-chat-platform/internal/archive"
	appconfig "github.com/wolfman30/maison-chat-platform/internal/config"
	"github.com/wolfman30/maison-chat-platform/internal/conversation"
	"github.com/wolfman30/maison-chat-platform/internal/notify"
	"github.com/wolfman30/maison-chat-platform/internal/property"
	"github.com/wolfman30/maison-chat-platform/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildPendingStore selects the pending-question ledger backend. Redis falls
// back to memory when no client is available.
func BuildPendingStore(cfg *appconfig.Config, redisClient *redis.Client, awsCfg *aws.Config, logger *logging.Logger) conversation.PendingQuestionStore {
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.PendingQuestionStore {
	case "dynamodb":
		if awsCfg != nil {
			logger.Info("pending question ledger: dynamodb", "table", cfg.PendingQuestionsTable)
			return conversation.NewDynamoPendingStore(dynamodb.NewFromConfig(*awsCfg), cfg.PendingQuestionsTable, cfg.PendingQuestionTTL, logger)
		}
		logger.Warn("dynamodb ledger requested without aws config; using memory")
	case "redis", "":
		if redisClient != nil {
			logger.Info("pending question ledger: redis")
			return conversation.NewRedisPendingStore(redisClient, cfg.PendingQuestionTTL)
		}
		logger.Warn("redis ledger requested but redis is unavailable; using memory")
	case "memory":
	default:
		logger.Warn("unknown pending question store; using memory", "store", cfg.PendingQuestionStore)
	}
	return conversation.NewMemoryPendingStore(cfg.PendingQuestionTTL)
}

// BuildPropertyProvider returns the listings client, cached in Redis when available.
func BuildPropertyProvider(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) property.Provider {
	client := property.NewClient(cfg.PropertyAPIBaseURL, cfg.PropertyAPITimeout, logger)
	if cfg.PropertyAPIBaseURL == "" {
		logger.Warn("PROPERTY_API_BASE_URL not set; listings lookups are disabled")
		return client
	}
	if redisClient == nil {
		return client
	}
	return property.NewCachedProvider(client, redisClient, cfg.PropertyCacheTTL, logger)
}

// BuildNotificationQueue returns the queue shared by the publisher and the
// worker. The memory queue only works when both run in one process.
func BuildNotificationQueue(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (notify.Queue, bool) {
	if !cfg.UseMemoryQueue && cfg.NotificationQueueURL != "" && awsCfg != nil {
		logger.Info("notification queue: sqs", "queue_url", cfg.NotificationQueueURL)
		return notify.NewSQSQueue(sqs.NewFromConfig(*awsCfg), cfg.NotificationQueueURL), false
	}
	if !cfg.UseMemoryQueue {
		logger.Warn("NOTIFICATION_QUEUE_URL not set; using in-process notification queue")
	}
	return notify.NewMemoryQueue(256), true
}

// BuildEmailSender picks the configured provider and falls back to the stub
// sender when it is not usable.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) notify.EmailSender {
	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFromAddress,
			FromName:  cfg.EmailFromName,
		}, logger); sender != nil {
			return sender
		}
		logger.Warn("sendgrid selected without SENDGRID_API_KEY; using stub email sender")
	case "ses":
		if awsCfg != nil {
			return notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
				FromEmail: cfg.EmailFromAddress,
				FromName:  cfg.EmailFromName,
			}, logger)
		}
		logger.Warn("ses selected without aws config; using stub email sender")
	}
	return notify.NewStubEmailSender(logger)
}

// BuildArchiver returns the S3 archive store, or nil when no bucket is configured.
func BuildArchiver(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) conversation.Archiver {
	if cfg.ArchiveBucket == "" || awsCfg == nil {
		return nil
	}
	client := s3.NewFromConfig(*awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.AWSEndpointOverride != ""
	})
	logger.Info("conversation archive enabled", "bucket", cfg.ArchiveBucket)
	return archive.NewStore(client, cfg.ArchiveBucket, logger)
}
