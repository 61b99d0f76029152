package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/prometheus/client_golang/prometheus"

	appconfig "github.com/wolfman30/maison-chat-platform/internal/config"
	"github.com/wolfman30/maison-chat-platform/internal/conversation"
	"github.com/wolfman30/maison-chat-platform/internal/llm"
	"github.com/wolfman30/maison-chat-platform/internal/notify"
	"github.com/wolfman30/maison-chat-platform/internal/observability/metrics"
	"github.com/wolfman30/maison-chat-platform/internal/property"
	"github.com/wolfman30/maison-chat-platform/pkg/logging"
)

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		LLMProvider:           "stub",
		LLMTimeout:            time.Second,
		PendingQuestionStore:  "memory",
		PendingQuestionTTL:    time.Hour,
		PendingQuestionsTable: "pending_questions",
		PropertyCacheTTL:      time.Hour,
		EmailProvider:         "stub",
	}
}

func TestBuildLLMClientRequiresConfig(t *testing.T) {
	if _, err := BuildLLMClient(context.Background(), nil, nil, nil, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestBuildLLMClientWithoutProvidersReturnsNil(t *testing.T) {
	cfg := testConfig()
	cfg.LLMProvider = "gemini"
	cfg.LLMFallbackProviders = []string{"bedrock", "openai", "mystery"}

	client, err := BuildLLMClient(context.Background(), cfg, nil, nil, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client != nil {
		t.Fatalf("expected nil client without credentials, got %T", client)
	}
}

func TestBuildLLMClientBuildsFallbackChain(t *testing.T) {
	cfg := testConfig()
	cfg.LLMProvider = "openai"
	cfg.LLMFallbackProviders = []string{"anthropic", "openai"}
	cfg.OpenAIAPIKey = "sk-test"
	cfg.OpenAIModel = "gpt-4o"
	cfg.AnthropicAPIKey = "ak-test"
	cfg.AnthropicModel = "claude-3-5-sonnet-latest"

	client, err := BuildLLMClient(context.Background(), cfg, nil, metrics.NewChatMetrics(prometheus.NewRegistry()), logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chain, ok := client.(*llm.FallbackClient)
	if !ok {
		t.Fatalf("expected FallbackClient, got %T", client)
	}
	if chain.Len() != 2 {
		t.Fatalf("expected 2 providers after dedupe, got %d", chain.Len())
	}
}

func TestBuildPendingStoreSelection(t *testing.T) {
	logger := logging.New("error")
	mr := miniredis.RunT(t)

	cfg := testConfig()
	if _, ok := BuildPendingStore(cfg, nil, nil, logger).(*conversation.MemoryPendingStore); !ok {
		t.Fatalf("expected memory store")
	}

	cfg.PendingQuestionStore = "redis"
	if _, ok := BuildPendingStore(cfg, nil, nil, logger).(*conversation.MemoryPendingStore); !ok {
		t.Fatalf("expected memory fallback without redis")
	}
	rdb := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logger, true)
	if rdb == nil {
		t.Fatalf("expected redis client")
	}
	defer rdb.Close()
	if _, ok := BuildPendingStore(cfg, rdb, nil, logger).(*conversation.RedisPendingStore); !ok {
		t.Fatalf("expected redis store")
	}

	cfg.PendingQuestionStore = "dynamodb"
	if _, ok := BuildPendingStore(cfg, nil, &aws.Config{Region: "eu-west-2"}, logger).(*conversation.DynamoPendingStore); !ok {
		t.Fatalf("expected dynamodb store")
	}
}

func TestBuildRedisClientDisabledOrUnreachable(t *testing.T) {
	if BuildRedisClient(context.Background(), &appconfig.Config{}, nil, true) != nil {
		t.Fatalf("expected nil client without address")
	}
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	if BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: addr}, logging.New("error"), true) != nil {
		t.Fatalf("expected nil client when ping fails")
	}
}

func TestBuildPropertyProviderCachesWithRedis(t *testing.T) {
	logger := logging.New("error")
	cfg := testConfig()
	if _, ok := BuildPropertyProvider(cfg, nil, logger).(*property.Client); !ok {
		t.Fatalf("expected plain client when disabled")
	}

	mr := miniredis.RunT(t)
	rdb := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logger, false)
	defer rdb.Close()
	cfg.PropertyAPIBaseURL = "http://listings.internal"
	if _, ok := BuildPropertyProvider(cfg, rdb, logger).(*property.CachedProvider); !ok {
		t.Fatalf("expected cached provider")
	}
}

func TestBuildNotificationQueueAndEmail(t *testing.T) {
	logger := logging.New("error")
	cfg := testConfig()

	queue, inProcess := BuildNotificationQueue(cfg, nil, logger)
	if _, ok := queue.(*notify.MemoryQueue); !ok || !inProcess {
		t.Fatalf("expected in-process memory queue, got %T", queue)
	}
	cfg.NotificationQueueURL = "https://sqs.eu-west-2.amazonaws.com/123/notifications"
	queue, inProcess = BuildNotificationQueue(cfg, &aws.Config{Region: "eu-west-2"}, logger)
	if _, ok := queue.(*notify.SQSQueue); !ok || inProcess {
		t.Fatalf("expected sqs queue, got %T", queue)
	}

	cfg.EmailProvider = "sendgrid"
	if _, ok := BuildEmailSender(cfg, nil, logger).(*notify.StubEmailSender); !ok {
		t.Fatalf("expected stub sender without sendgrid key")
	}
	cfg.SendGridAPIKey = "SG.test"
	if _, ok := BuildEmailSender(cfg, nil, logger).(*notify.SendGridSender); !ok {
		t.Fatalf("expected sendgrid sender")
	}
	cfg.EmailProvider = "ses"
	if _, ok := BuildEmailSender(cfg, &aws.Config{Region: "eu-west-2"}, logger).(*notify.SESSender); !ok {
		t.Fatalf("expected ses sender")
	}
}

func TestBuildArchiverDisabledWithoutBucket(t *testing.T) {
	cfg := testConfig()
	if BuildArchiver(cfg, &aws.Config{Region: "eu-west-2"}, logging.New("error")) != nil {
		t.Fatalf("expected nil archiver without bucket")
	}
	cfg.ArchiveBucket = "maison-archive"
	if BuildArchiver(cfg, &aws.Config{Region: "eu-west-2"}, logging.New("error")) == nil {
		t.Fatalf("expected archiver")
	}
}

func TestBuildStoreWithoutDatabaseUsesMemory(t *testing.T) {
	store, db, err := BuildStore(context.Background(), testConfig(), logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer db.Close()
	if _, ok := store.(*conversation.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestBuildEngineWithoutLLMFallsBack(t *testing.T) {
	engine := BuildEngine(EngineDeps{
		Store:   conversation.NewMemoryStore(),
		Metrics: metrics.NewChatMetrics(prometheus.NewRegistry()),
		Logger:  logging.New("error"),
	})

	resp, err := engine.Controller.HandleGeneralChat(context.Background(), conversation.GeneralChatRequest{Message: "hello there"})
	if err != nil {
		t.Fatalf("HandleGeneralChat: %v", err)
	}
	if resp.Intent != "unknown" || resp.Response == "" || resp.SessionID == "" {
		t.Fatalf("unexpected response %+v", resp)
	}

	deleted, err := engine.Sessions.CleanupExpired(context.Background())
	if err != nil || deleted != 0 {
		t.Fatalf("expected no expired sessions, got %d %v", deleted, err)
	}
}
