package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	appconfig "github.com/wolfman30/maison-chat-platform/internal/config"
	"github.com/wolfman30/maison-chat-platform/internal/conversation"
	"github.com/wolfman30/maison-chat-platform/internal/intent"
	"github.com/wolfman30/maison-chat-platform/internal/llm"
	"github.com/wolfman30/maison-chat-platform/internal/notify"
	"github.com/wolfman30/maison-chat-platform/internal/observability/metrics"
	"github.com/wolfman30/maison-chat-platform/internal/property"
	"github.com/wolfman30/maison-chat-platform/internal/specialist"
	"github.com/wolfman30/maison-chat-platform/pkg/logging"
)

// Database bundles the pgx pool used by the chat store and the database/sql
// handle used by admin reporting. Both are nil without DATABASE_URL.
type Database struct {
	Pool *pgxpool.Pool
	SQL  *sql.DB
}

// Close releases both handles.
func (d *Database) Close() {
	if d == nil {
		return
	}
	if d.Pool != nil {
		d.Pool.Close()
	}
	if d.SQL != nil {
		_ = d.SQL.Close()
	}
}

// BuildStore connects to Postgres when configured and otherwise returns the
// in-memory store.
func BuildStore(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (conversation.Store, *Database, error) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set; using in-memory conversation store")
		return conversation.NewMemoryStore(), &Database{}, nil
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("bootstrap: open sql db: %w", err)
	}
	return conversation.NewPostgresStore(pool), &Database{Pool: pool, SQL: sqlDB}, nil
}

// EngineDeps are the collaborators the chat engine is assembled from.
type EngineDeps struct {
	Store      conversation.Store
	Pending    conversation.PendingQuestionStore
	LLM        llm.Client
	Properties property.Provider
	Publisher  notify.Publisher
	Archiver   conversation.Archiver
	Metrics    *metrics.ChatMetrics
	Logger     *logging.Logger
}

// Engine is the assembled chat engine.
type Engine struct {
	Controller *conversation.Controller
	Sessions   *conversation.SessionManager
	Workflow   *conversation.QuestionWorkflow
	Router     *conversation.MessageRouter
}

// BuildEngine wires the classifier, specialists, question workflow, router
// and controller around one store.
func BuildEngine(deps EngineDeps) *Engine {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	if deps.Pending == nil {
		deps.Pending = conversation.NewMemoryPendingStore(0)
	}
	if deps.Properties == nil {
		deps.Properties = property.NewClient("", 0, logger)
	}

	sessionOpts := []conversation.SessionOption{conversation.WithCleanupObserver(deps.Metrics)}
	if deps.Archiver != nil {
		sessionOpts = append(sessionOpts, conversation.WithArchiver(deps.Archiver))
	}
	sessions := conversation.NewSessionManager(deps.Store, logger, sessionOpts...)

	workflowOpts := []conversation.WorkflowOption{conversation.WithWorkflowObserver(deps.Metrics)}
	if deps.Publisher != nil {
		workflowOpts = append(workflowOpts, conversation.WithPublisher(deps.Publisher))
	}
	workflow := conversation.NewQuestionWorkflow(deps.Store, deps.Pending, deps.LLM, logger, workflowOpts...)

	classifier := intent.NewClassifier(deps.LLM, logger, deps.Metrics)
	router := conversation.NewMessageRouter(
		classifier,
		specialist.NewProperty(deps.LLM, deps.Properties, deps.Metrics, logger),
		specialist.NewCommunication(deps.LLM, deps.Properties, deps.Metrics, logger),
		workflow,
		logger,
	)

	return &Engine{
		Controller: conversation.NewController(deps.Store, sessions, router, deps.Properties, workflow, logger),
		Sessions:   sessions,
		Workflow:   workflow,
		Router:     router,
	}
}
