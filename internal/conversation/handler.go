package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/maison-chat-platform/pkg/logging"
)

const genericErrorMessage = "Error processing message"

// ChatService is the controller surface the HTTP handler depends on.
type ChatService interface {
	HandleGeneralChat(ctx context.Context, req GeneralChatRequest) (*GeneralChatResponse, error)
	HandlePropertyChat(ctx context.Context, req PropertyChatRequest) (*PropertyChatResponse, error)
	GeneralHistory(ctx context.Context, id int64) ([]Message, error)
	PropertyHistory(ctx context.Context, id int64) ([]Message, error)
	UserConversations(ctx context.Context, userID string) (*UserConversations, error)
	CounterpartConversations(ctx context.Context, userID string) ([]PropertyConversation, error)
	SellerQuestions(ctx context.Context, sellerID, status string) ([]Question, error)
	AnswerQuestion(ctx context.Context, questionID int64, answer string) error
	UpdatePropertyStatus(ctx context.Context, id int64, status string) (*PropertyConversation, error)
	CleanupSessions(ctx context.Context) (int64, error)
}

var _ ChatService = (*Controller)(nil)

// Handler wires HTTP requests to the chat controller.
type Handler struct {
	service ChatService
	logger  *logging.Logger
}

func NewHandler(service ChatService, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// GeneralChat handles POST /api/v1/chat/general.
func (h *Handler) GeneralChat(w http.ResponseWriter, r *http.Request) {
	var req GeneralChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	resp, err := h.service.HandleGeneralChat(r.Context(), req)
	if err != nil {
		h.fail(w, "general chat failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// PropertyChat handles POST /api/v1/chat/property.
func (h *Handler) PropertyChat(w http.ResponseWriter, r *http.Request) {
	var req PropertyChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	resp, err := h.service.HandlePropertyChat(r.Context(), req)
	if err != nil {
		h.fail(w, "property chat failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GeneralHistory handles GET /api/v1/conversations/general/{conversationID}/history.
func (h *Handler) GeneralHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "conversationID")
	if !ok {
		return
	}
	msgs, err := h.service.GeneralHistory(r.Context(), id)
	if err != nil {
		h.fail(w, "general history failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"conversation_id": id, "messages": nonNil(msgs)})
}

// PropertyHistory handles GET /api/v1/conversations/property/{conversationID}/history.
func (h *Handler) PropertyHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "conversationID")
	if !ok {
		return
	}
	msgs, err := h.service.PropertyHistory(r.Context(), id)
	if err != nil {
		h.fail(w, "property history failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"conversation_id": id, "messages": nonNil(msgs)})
}

// UpdateStatus handles PATCH /api/v1/conversations/property/{conversationID}/status.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "conversationID")
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	conv, err := h.service.UpdatePropertyStatus(r.Context(), id, body.Status)
	if err != nil {
		h.fail(w, "status update failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, conv)
}

// UserConversations handles GET /api/v1/conversations/user/{userID}.
func (h *Handler) UserConversations(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.UserConversations(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, "user conversations failed", err)
		return
	}
	out.GeneralConversations = nonNil(out.GeneralConversations)
	out.PropertyConversations = nonNil(out.PropertyConversations)
	h.writeJSON(w, http.StatusOK, out)
}

// CounterpartConversations handles GET /api/v1/conversations/counterpart/{userID}.
func (h *Handler) CounterpartConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.service.CounterpartConversations(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, "counterpart conversations failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"property_conversations": nonNil(convs)})
}

// SellerQuestions handles GET /api/v1/seller/questions/{sellerID}.
func (h *Handler) SellerQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := h.service.SellerQuestions(r.Context(), chi.URLParam(r, "sellerID"), r.URL.Query().Get("status"))
	if err != nil {
		h.fail(w, "seller questions failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, nonNil(questions))
}

// AnswerQuestion handles POST /api/v1/seller/questions/{questionID}/answer.
func (h *Handler) AnswerQuestion(w http.ResponseWriter, r *http.Request) {
	id, ok := h.idParam(w, r, "questionID")
	if !ok {
		return
	}
	var body struct {
		Answer string `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Answer) == "" {
		h.writeError(w, http.StatusBadRequest, "answer is required")
		return
	}
	if err := h.service.AnswerQuestion(r.Context(), id, body.Answer); err != nil {
		h.fail(w, "answer question failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Answer recorded and sent to buyer",
	})
}

// CleanupSessions handles POST /admin/sessions/cleanup.
func (h *Handler) CleanupSessions(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.service.CleanupSessions(r.Context())
	if err != nil {
		h.fail(w, "session cleanup failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

func (h *Handler) idParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

// fail maps domain errors to status codes; anything unexpected becomes a
// uniform 500.
func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	status, body := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, "error", err)
	} else {
		h.logger.Warn(msg, "error", err, "status", status)
	}
	h.writeError(w, status, body)
}

// StatusFor maps an engine error to an HTTP status and client-facing message.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrSessionExpired):
		return http.StatusUnauthorized, "Session expired or unauthorized"
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrQuestionNotFound), errors.Is(err, ErrConversationMissing):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, ErrQuestionAnswered):
		return http.StatusConflict, "Question already answered"
	case errors.Is(err, ErrInvalidRole), errors.Is(err, ErrInvalidStatus),
		errors.Is(err, ErrEmptyMessage), errors.Is(err, ErrMissingField):
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, genericErrorMessage
}

func (h *Handler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
