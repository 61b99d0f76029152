package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/maison-chat-platform/internal/conversation"
	httpmiddleware "github.com/wolfman30/maison-chat-platform/internal/http/middleware"
	"github.com/wolfman30/maison-chat-platform/pkg/logging"
)

type stubService struct {
	cleaned int
}

func (s *stubService) HandleGeneralChat(_ context.Context, req conversation.GeneralChatRequest) (*conversation.GeneralChatResponse, error) {
	return &conversation.GeneralChatResponse{Response: "hi", SessionID: "sess-1", ConversationID: 1, Intent: "greeting"}, nil
}

func (s *stubService) HandlePropertyChat(context.Context, conversation.PropertyChatRequest) (*conversation.PropertyChatResponse, error) {
	return nil, conversation.ErrSessionExpired
}

func (s *stubService) GeneralHistory(context.Context, int64) ([]conversation.Message, error) {
	return nil, nil
}

func (s *stubService) PropertyHistory(context.Context, int64) ([]conversation.Message, error) {
	return nil, conversation.ErrNotFound
}

func (s *stubService) UserConversations(context.Context, string) (*conversation.UserConversations, error) {
	return &conversation.UserConversations{}, nil
}

func (s *stubService) CounterpartConversations(context.Context, string) ([]conversation.PropertyConversation, error) {
	return nil, nil
}

func (s *stubService) SellerQuestions(context.Context, string, string) ([]conversation.Question, error) {
	return nil, nil
}

func (s *stubService) AnswerQuestion(context.Context, int64, string) error {
	return nil
}

func (s *stubService) UpdatePropertyStatus(context.Context, int64, string) (*conversation.PropertyConversation, error) {
	return nil, conversation.ErrInvalidStatus
}

func (s *stubService) CleanupSessions(context.Context) (int64, error) {
	s.cleaned++
	return 2, nil
}

func newTestRouter(t *testing.T, secret string, checks map[string]HealthCheck) (http.Handler, *stubService) {
	t.Helper()
	svc := &stubService{}
	logger := logging.New("error")
	return New(&Config{
		Logger:              logger,
		ConversationHandler: conversation.NewHandler(svc, logger),
		ServiceJWTSecret:    secret,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
		HealthChecks: checks,
	}), svc
}

func serve(h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, "", nil)
	rr := serve(router, http.MethodGet, "/health", "", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", resp["status"])
	}
}

func TestRouterHealthDegraded(t *testing.T) {
	router, _ := newTestRouter(t, "", map[string]HealthCheck{
		"postgres": func(context.Context) error { return errors.New("connection refused") },
	})
	rr := serve(router, http.MethodGet, "/health", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "postgres") {
		t.Fatalf("expected failing check in body: %s", rr.Body.String())
	}
}

func TestRouterChatRoutes(t *testing.T) {
	router, _ := newTestRouter(t, "", nil)

	rr := serve(router, http.MethodPost, "/api/v1/chat/general", `{"message":"hello"}`, "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"session_id":"sess-1"`) {
		t.Fatalf("unexpected general chat response %d %s", rr.Code, rr.Body.String())
	}

	rr = serve(router, http.MethodPost, "/api/v1/chat/property", `{"message":"hi","user_id":"u","property_id":"p","role":"buyer","counterpart_id":"s"}`, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired session, got %d", rr.Code)
	}

	rr = serve(router, http.MethodGet, "/api/v1/conversations/property/5/history", "", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	rr = serve(router, http.MethodPatch, "/api/v1/conversations/property/5/status", `{"status":"archived"}`, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, "", nil)
	if rr := serve(router, http.MethodGet, "/metrics", "", ""); rr.Code != http.StatusOK {
		t.Fatalf("expected metrics 200, got %d", rr.Code)
	}
}

func TestRouterAdminRequiresAdminToken(t *testing.T) {
	router, svc := newTestRouter(t, "secret", nil)

	if rr := serve(router, http.MethodPost, "/admin/sessions/cleanup", "", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	if rr := serve(router, http.MethodPost, "/admin/sessions/cleanup", "", token(t, "secret", httpmiddleware.RoleSeller)); rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for seller token, got %d", rr.Code)
	}
	rr := serve(router, http.MethodPost, "/admin/sessions/cleanup", "", token(t, "secret", httpmiddleware.RoleAdmin))
	if rr.Code != http.StatusOK || svc.cleaned != 1 {
		t.Fatalf("expected cleanup to run, got %d cleaned=%d", rr.Code, svc.cleaned)
	}
}

func TestRouterSellerRoutesAcceptSellerToken(t *testing.T) {
	router, _ := newTestRouter(t, "secret", nil)

	if rr := serve(router, http.MethodGet, "/api/v1/seller/questions/seller-1", "", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}
	rr := serve(router, http.MethodGet, "/api/v1/seller/questions/seller-1", "", token(t, "secret", httpmiddleware.RoleSeller))
	if rr.Code != http.StatusOK || strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("unexpected seller questions response %d %s", rr.Code, rr.Body.String())
	}
}

func token(t *testing.T, secret, role string) string {
	t.Helper()
	claims := httpmiddleware.ServiceClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "svc",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}
