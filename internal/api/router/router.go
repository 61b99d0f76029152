package router

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/maison-chat-platform/internal/conversation"
	"github.com/wolfman30/maison-chat-platform/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/maison-chat-platform/internal/http/middleware"
	"github.com/wolfman30/maison-chat-platform/internal/webchat"
	"github.com/wolfman30/maison-chat-platform/pkg/logging"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	ConversationHandler *conversation.Handler
	AdminReporting      *handlers.AdminReportingHandler
	WebChat             *webchat.Handler
	MetricsHandler      http.Handler
	ServiceJWTSecret    string
	CORSAllowedOrigins  []string
	RateLimiter         *httpmiddleware.RateLimiter

	// HealthChecks are run by /health; any failure reports 503.
	HealthChecks map[string]HealthCheck
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg.ConversationHandler == nil {
		panic("router: conversation handler required")
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", healthHandler(cfg.HealthChecks))
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}
	if cfg.WebChat != nil {
		r.With(httpmiddleware.RateLimit(cfg.RateLimiter)).Get("/ws/chat", cfg.WebChat.HandleWebSocket)
	}

	h := cfg.ConversationHandler
	r.Route("/api/v1", func(api chi.Router) {
		api.Route("/chat", func(chat chi.Router) {
			chat.Use(httpmiddleware.RateLimit(cfg.RateLimiter))
			chat.Post("/general", h.GeneralChat)
			chat.Post("/property", h.PropertyChat)
		})
		api.Route("/conversations", func(c chi.Router) {
			c.Get("/general/{conversationID}/history", h.GeneralHistory)
			c.Get("/property/{conversationID}/history", h.PropertyHistory)
			c.Patch("/property/{conversationID}/status", h.UpdateStatus)
			c.Get("/user/{userID}", h.UserConversations)
			c.Get("/counterpart/{userID}", h.CounterpartConversations)
		})
		api.Route("/seller/questions", func(s chi.Router) {
			s.Use(httpmiddleware.ServiceJWT(cfg.ServiceJWTSecret, httpmiddleware.RoleSeller, httpmiddleware.RoleAdmin))
			s.Get("/{sellerID}", h.SellerQuestions)
			s.Post("/{questionID}/answer", h.AnswerQuestion)
		})
	})

	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.ServiceJWT(cfg.ServiceJWTSecret, httpmiddleware.RoleAdmin))
		admin.Post("/sessions/cleanup", h.CleanupSessions)
		if cfg.AdminReporting != nil {
			admin.Get("/conversations", cfg.AdminReporting.ListConversations)
			admin.Get("/questions", cfg.AdminReporting.QuestionBacklog)
		}
	})

	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok"}
		failed := map[string]string{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				failed[name] = err.Error()
			}
		}
		if len(failed) > 0 {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
			body["checks"] = failed
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
