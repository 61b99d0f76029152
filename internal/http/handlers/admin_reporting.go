package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/wolfman30/maison-chat-platform/pkg/logging"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// AdminReportingHandler serves read-only admin views straight from Postgres.
type AdminReportingHandler struct {
	db     *sql.DB
	logger *logging.Logger
	now    func() time.Time
}

func NewAdminReportingHandler(db *sql.DB, logger *logging.Logger) *AdminReportingHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminReportingHandler{db: db, logger: logger, now: time.Now}
}

// ConversationListItem is one row of the admin conversation listing.
type ConversationListItem struct {
	ID            int64     `json:"id"`
	Kind          string    `json:"kind"`
	SessionID     string    `json:"session_id"`
	UserID        string    `json:"user_id,omitempty"`
	PropertyID    string    `json:"property_id,omitempty"`
	Role          string    `json:"role,omitempty"`
	CounterpartID string    `json:"counterpart_id,omitempty"`
	Status        string    `json:"status,omitempty"`
	IsLoggedIn    bool      `json:"is_logged_in"`
	MessageCount  int       `json:"message_count"`
	LastActivity  time.Time `json:"last_activity"`
}

// ConversationsListResponse is a page of conversations.
type ConversationsListResponse struct {
	Conversations []ConversationListItem `json:"conversations"`
	Total         int                    `json:"total"`
	Page          int                    `json:"page"`
	PageSize      int                    `json:"page_size"`
	TotalPages    int                    `json:"total_pages"`
}

// QuestionBacklogItem is one forwarded buyer question.
type QuestionBacklogItem struct {
	ID           int64      `json:"id"`
	PropertyID   string     `json:"property_id"`
	BuyerID      string     `json:"buyer_id"`
	SellerID     string     `json:"seller_id"`
	QuestionText string     `json:"question_text"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	AnsweredAt   *time.Time `json:"answered_at,omitempty"`
	AgeHours     float64    `json:"age_hours"`
}

// QuestionBacklogResponse lists questions plus per-status totals.
type QuestionBacklogResponse struct {
	Questions []QuestionBacklogItem `json:"questions"`
	Counts    map[string]int        `json:"counts"`
}

// ListConversations handles GET /admin/conversations.
// Query: kind=property|general, status=active,pending (property only), page, page_size.
func (h *AdminReportingHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	kind := q.Get("kind")
	if kind == "" {
		kind = "property"
	}
	if kind != "property" && kind != "general" {
		jsonError(w, "kind must be property or general", http.StatusBadRequest)
		return
	}
	page, pageSize := pagination(q.Get("page"), q.Get("page_size"))
	statuses := splitCSV(q.Get("status"))

	var (
		countQuery string
		listQuery  string
		args       []any
	)
	if kind == "general" {
		countQuery = `SELECT COUNT(*) FROM general_conversations`
		listQuery = `
			SELECT g.id, g.session_id, COALESCE(g.user_id, ''), g.is_logged_in, g.last_activity,
				(SELECT COUNT(*) FROM messages m WHERE m.general_conversation_id = g.id)
			FROM general_conversations g
			ORDER BY g.last_activity DESC
			LIMIT $1 OFFSET $2`
	} else {
		// An empty status array matches everything.
		countQuery = `SELECT COUNT(*) FROM property_conversations WHERE cardinality($1::text[]) = 0 OR conversation_status = ANY($1)`
		listQuery = `
			SELECT p.id, p.session_id, p.user_id, p.property_id, p.role, COALESCE(p.counterpart_id, ''), p.conversation_status, p.last_activity,
				(SELECT COUNT(*) FROM messages m WHERE m.property_conversation_id = p.id)
			FROM property_conversations p
			WHERE cardinality($3::text[]) = 0 OR p.conversation_status = ANY($3)
			ORDER BY p.last_activity DESC
			LIMIT $1 OFFSET $2`
		args = []any{pq.Array(statuses)}
	}

	ctx := r.Context()
	var total int
	if err := h.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		h.logger.Error("failed to count conversations", "kind", kind, "error", err)
		jsonError(w, "failed to list conversations", http.StatusInternalServerError)
		return
	}

	rows, err := h.db.QueryContext(ctx, listQuery, append([]any{pageSize, (page - 1) * pageSize}, args...)...)
	if err != nil {
		h.logger.Error("failed to list conversations", "kind", kind, "error", err)
		jsonError(w, "failed to list conversations", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	items := []ConversationListItem{}
	for rows.Next() {
		item := ConversationListItem{Kind: kind}
		if kind == "general" {
			err = rows.Scan(&item.ID, &item.SessionID, &item.UserID, &item.IsLoggedIn, &item.LastActivity, &item.MessageCount)
		} else {
			err = rows.Scan(&item.ID, &item.SessionID, &item.UserID, &item.PropertyID, &item.Role, &item.CounterpartID, &item.Status, &item.LastActivity, &item.MessageCount)
			item.IsLoggedIn = true
		}
		if err != nil {
			h.logger.Error("failed to scan conversation row", "error", err)
			jsonError(w, "failed to list conversations", http.StatusInternalServerError)
			return
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		h.logger.Error("conversation rows error", "error", err)
		jsonError(w, "failed to list conversations", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ConversationsListResponse{
		Conversations: items,
		Total:         total,
		Page:          page,
		PageSize:      pageSize,
		TotalPages:    (total + pageSize - 1) / pageSize,
	})
}

// QuestionBacklog handles GET /admin/questions.
// Query: status (default pending), property_ids=a,b.
func (h *AdminReportingHandler) QuestionBacklog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := q.Get("status")
	if status == "" {
		status = "pending"
	}
	propertyIDs := splitCSV(q.Get("property_ids"))
	ctx := r.Context()

	rows, err := h.db.QueryContext(ctx, `
		SELECT id, property_id, buyer_id, seller_id, question_text, status, created_at, answered_at
		FROM property_questions
		WHERE status = $1 AND (cardinality($2::text[]) = 0 OR property_id = ANY($2))
		ORDER BY created_at ASC`, status, pq.Array(propertyIDs))
	if err != nil {
		h.logger.Error("failed to query question backlog", "error", err)
		jsonError(w, "failed to load questions", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	now := h.now()
	resp := QuestionBacklogResponse{Questions: []QuestionBacklogItem{}, Counts: map[string]int{}}
	for rows.Next() {
		var (
			item       QuestionBacklogItem
			answeredAt sql.NullTime
		)
		if err := rows.Scan(&item.ID, &item.PropertyID, &item.BuyerID, &item.SellerID, &item.QuestionText, &item.Status, &item.CreatedAt, &answeredAt); err != nil {
			h.logger.Error("failed to scan question row", "error", err)
			jsonError(w, "failed to load questions", http.StatusInternalServerError)
			return
		}
		if answeredAt.Valid {
			t := answeredAt.Time
			item.AnsweredAt = &t
		}
		item.AgeHours = roundHours(now.Sub(item.CreatedAt))
		resp.Questions = append(resp.Questions, item)
	}
	if err := rows.Err(); err != nil {
		h.logger.Error("question rows error", "error", err)
		jsonError(w, "failed to load questions", http.StatusInternalServerError)
		return
	}

	counts, err := h.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM property_questions GROUP BY status`)
	if err != nil {
		h.logger.Error("failed to count questions", "error", err)
		jsonError(w, "failed to load questions", http.StatusInternalServerError)
		return
	}
	defer counts.Close()
	for counts.Next() {
		var (
			s string
			n int
		)
		if err := counts.Scan(&s, &n); err != nil {
			h.logger.Error("failed to scan question count", "error", err)
			jsonError(w, "failed to load questions", http.StatusInternalServerError)
			return
		}
		resp.Counts[s] = n
	}

	writeJSON(w, http.StatusOK, resp)
}

func pagination(rawPage, rawSize string) (int, int) {
	page, _ := strconv.Atoi(rawPage)
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(rawSize)
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}

func splitCSV(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func roundHours(d time.Duration) float64 {
	return float64(int(d.Hours()*10)) / 10
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
