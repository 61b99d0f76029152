package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txBeginner interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore persists conversations with pgx.
type PostgresStore struct {
	pgRepo
	db txBeginner
}

// pgRepo implements Repository over either the pool or an open transaction.
type pgRepo struct {
	q querier
}

// NewPostgresStore builds a store on a pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return newPostgresStoreWithDB(pool)
}

func newPostgresStoreWithDB(db txBeginner) *PostgresStore {
	if db == nil {
		panic("conversation: db required")
	}
	return &PostgresStore{pgRepo: pgRepo{q: db}, db: db}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) InTx(ctx context.Context, fn func(repo Repository) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("conversation: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(pgRepo{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("conversation: commit: %w", err)
	}
	return nil
}

const generalColumns = `id, session_id, COALESCE(user_id, ''), is_logged_in, started_at, last_activity, context`

func scanGeneral(row pgx.Row) (*GeneralConversation, error) {
	var c GeneralConversation
	var raw []byte
	if err := row.Scan(&c.ID, &c.SessionID, &c.UserID, &c.IsLoggedIn, &c.StartedAt, &c.LastActivity, &raw); err != nil {
		return nil, err
	}
	if err := decodeJSON(raw, &c.Context); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r pgRepo) CreateGeneralConversation(ctx context.Context, c *GeneralConversation) error {
	raw, err := json.Marshal(c.Context)
	if err != nil {
		return fmt.Errorf("conversation: encode context: %w", err)
	}
	query := `
		INSERT INTO general_conversations (session_id, user_id, is_logged_in, started_at, last_activity, context)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6)
		RETURNING id
	`
	if err := r.q.QueryRow(ctx, query, c.SessionID, c.UserID, c.IsLoggedIn, c.StartedAt, c.LastActivity, raw).Scan(&c.ID); err != nil {
		return fmt.Errorf("conversation: insert general conversation: %w", err)
	}
	return nil
}

func (r pgRepo) GeneralConversation(ctx context.Context, id int64) (*GeneralConversation, error) {
	c, err := scanGeneral(r.q.QueryRow(ctx, `SELECT `+generalColumns+` FROM general_conversations WHERE id = $1`, id))
	return c, notFound(err, "load general conversation")
}

func (r pgRepo) GeneralConversationBySession(ctx context.Context, sessionID string) (*GeneralConversation, error) {
	c, err := scanGeneral(r.q.QueryRow(ctx, `SELECT `+generalColumns+` FROM general_conversations WHERE session_id = $1`, sessionID))
	return c, notFound(err, "load general conversation by session")
}

func (r pgRepo) UpdateGeneralConversation(ctx context.Context, c *GeneralConversation) error {
	raw, err := json.Marshal(c.Context)
	if err != nil {
		return fmt.Errorf("conversation: encode context: %w", err)
	}
	ct, err := r.q.Exec(ctx, `UPDATE general_conversations SET last_activity = $2, context = $3 WHERE id = $1`, c.ID, c.LastActivity, raw)
	if err != nil {
		return fmt.Errorf("conversation: update general conversation: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r pgRepo) GeneralConversationsForUser(ctx context.Context, userID string) ([]GeneralConversation, error) {
	rows, err := r.q.Query(ctx, `SELECT `+generalColumns+` FROM general_conversations WHERE user_id = $1 ORDER BY last_activity DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("conversation: list general conversations: %w", err)
	}
	defer rows.Close()
	var out []GeneralConversation
	for rows.Next() {
		c, err := scanGeneral(rows)
		if err != nil {
			return nil, fmt.Errorf("conversation: scan general conversation: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

const propertyColumns = `id, session_id, user_id, property_id, role, counterpart_id, conversation_status, started_at, last_activity, property_context`

func scanProperty(row pgx.Row) (*PropertyConversation, error) {
	var c PropertyConversation
	var role, status string
	var raw []byte
	if err := row.Scan(&c.ID, &c.SessionID, &c.UserID, &c.PropertyID, &role, &c.CounterpartID, &status, &c.StartedAt, &c.LastActivity, &raw); err != nil {
		return nil, err
	}
	c.Role = Role(role)
	c.Status = Status(status)
	if err := decodeJSON(raw, &c.Context); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r pgRepo) CreatePropertyConversation(ctx context.Context, c *PropertyConversation) error {
	raw, err := json.Marshal(c.Context)
	if err != nil {
		return fmt.Errorf("conversation: encode property context: %w", err)
	}
	query := `
		INSERT INTO property_conversations
			(session_id, user_id, property_id, role, counterpart_id, conversation_status, started_at, last_activity, property_context)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	if err := r.q.QueryRow(ctx, query, c.SessionID, c.UserID, c.PropertyID, string(c.Role), c.CounterpartID, string(c.Status), c.StartedAt, c.LastActivity, raw).Scan(&c.ID); err != nil {
		return fmt.Errorf("conversation: insert property conversation: %w", err)
	}
	return nil
}

func (r pgRepo) PropertyConversation(ctx context.Context, id int64) (*PropertyConversation, error) {
	c, err := scanProperty(r.q.QueryRow(ctx, `SELECT `+propertyColumns+` FROM property_conversations WHERE id = $1`, id))
	return c, notFound(err, "load property conversation")
}

func (r pgRepo) PropertyConversationBySession(ctx context.Context, sessionID string) (*PropertyConversation, error) {
	c, err := scanProperty(r.q.QueryRow(ctx, `SELECT `+propertyColumns+` FROM property_conversations WHERE session_id = $1`, sessionID))
	return c, notFound(err, "load property conversation by session")
}

func (r pgRepo) UpdatePropertyConversation(ctx context.Context, c *PropertyConversation) error {
	raw, err := json.Marshal(c.Context)
	if err != nil {
		return fmt.Errorf("conversation: encode property context: %w", err)
	}
	ct, err := r.q.Exec(ctx, `
		UPDATE property_conversations
		SET last_activity = $2, conversation_status = $3, property_context = $4
		WHERE id = $1
	`, c.ID, c.LastActivity, string(c.Status), raw)
	if err != nil {
		return fmt.Errorf("conversation: update property conversation: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r pgRepo) listProperty(ctx context.Context, query string, args ...any) ([]PropertyConversation, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("conversation: list property conversations: %w", err)
	}
	defer rows.Close()
	var out []PropertyConversation
	for rows.Next() {
		c, err := scanProperty(rows)
		if err != nil {
			return nil, fmt.Errorf("conversation: scan property conversation: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r pgRepo) PropertyConversationsForUser(ctx context.Context, userID string) ([]PropertyConversation, error) {
	return r.listProperty(ctx, `SELECT `+propertyColumns+` FROM property_conversations WHERE user_id = $1 ORDER BY last_activity DESC`, userID)
}

func (r pgRepo) CounterpartConversations(ctx context.Context, userID string) ([]PropertyConversation, error) {
	return r.listProperty(ctx, `SELECT `+propertyColumns+` FROM property_conversations WHERE counterpart_id = $1 ORDER BY last_activity DESC`, userID)
}

func (r pgRepo) CreateMessage(ctx context.Context, m *Message) error {
	general, prop := m.Conversation.columns()
	var meta []byte
	if m.Metadata != nil {
		var err error
		if meta, err = json.Marshal(m.Metadata); err != nil {
			return fmt.Errorf("conversation: encode message metadata: %w", err)
		}
	}
	query := `
		INSERT INTO messages (general_conversation_id, property_conversation_id, role, content, intent, metadata, timestamp)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)
		RETURNING id
	`
	if err := r.q.QueryRow(ctx, query, general, prop, string(m.Role), m.Content, m.Intent, meta, m.Timestamp).Scan(&m.ID); err != nil {
		return fmt.Errorf("conversation: insert message: %w", err)
	}
	return nil
}

func (r pgRepo) ListMessages(ctx context.Context, ref Ref, limit int) ([]Message, error) {
	column := "general_conversation_id"
	if ref.Kind == KindProperty {
		column = "property_conversation_id"
	}
	// Newest first with an optional limit, reversed below.
	query := `
		SELECT id, general_conversation_id, property_conversation_id, role, content, COALESCE(intent, ''), metadata, timestamp
		FROM messages WHERE ` + column + ` = $1
		ORDER BY timestamp DESC, id DESC`
	args := []any{ref.ID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("conversation: list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var general, prop *int64
		var role string
		var meta []byte
		if err := rows.Scan(&m.ID, &general, &prop, &role, &m.Content, &m.Intent, &meta, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("conversation: scan message: %w", err)
		}
		m.Conversation = refFromColumns(general, prop)
		m.Role = MessageRole(role)
		if len(meta) > 0 {
			m.Metadata = &MessageMetadata{}
			if err := json.Unmarshal(meta, m.Metadata); err != nil {
				return nil, fmt.Errorf("conversation: decode message metadata: %w", err)
			}
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r pgRepo) CreateCrossReference(ctx context.Context, ref *CrossReference) error {
	general, prop := ref.Conversation.columns()
	meta, err := json.Marshal(ref.Metadata)
	if err != nil {
		return fmt.Errorf("conversation: encode reference metadata: %w", err)
	}
	query := `
		INSERT INTO external_references (general_conversation_id, property_conversation_id, service_name, external_id, reference_metadata, last_synced)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	if err := r.q.QueryRow(ctx, query, general, prop, ref.ServiceName, ref.ExternalID, meta, ref.LastSynced).Scan(&ref.ID); err != nil {
		return fmt.Errorf("conversation: insert cross reference: %w", err)
	}
	return nil
}

func (r pgRepo) CrossReferences(ctx context.Context, conv Ref) ([]CrossReference, error) {
	column := "general_conversation_id"
	if conv.Kind == KindProperty {
		column = "property_conversation_id"
	}
	rows, err := r.q.Query(ctx, `
		SELECT id, service_name, external_id, reference_metadata, last_synced
		FROM external_references WHERE `+column+` = $1 ORDER BY id`, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("conversation: list cross references: %w", err)
	}
	defer rows.Close()
	var out []CrossReference
	for rows.Next() {
		ref := CrossReference{Conversation: conv}
		var meta []byte
		if err := rows.Scan(&ref.ID, &ref.ServiceName, &ref.ExternalID, &meta, &ref.LastSynced); err != nil {
			return nil, fmt.Errorf("conversation: scan cross reference: %w", err)
		}
		if err := decodeJSON(meta, &ref.Metadata); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

const questionColumns = `id, property_id, buyer_id, seller_id, conversation_id, question_message_id, question_text, status, created_at, COALESCE(answer_text, ''), answered_at`

func scanQuestion(row pgx.Row) (*Question, error) {
	var q Question
	var status string
	if err := row.Scan(&q.ID, &q.PropertyID, &q.BuyerID, &q.SellerID, &q.ConversationID, &q.QuestionMessageID, &q.QuestionText, &status, &q.CreatedAt, &q.AnswerText, &q.AnsweredAt); err != nil {
		return nil, err
	}
	q.Status = QuestionStatus(status)
	return &q, nil
}

func (r pgRepo) CreateQuestion(ctx context.Context, q *Question) (bool, error) {
	query := `
		INSERT INTO property_questions
			(property_id, buyer_id, seller_id, conversation_id, question_message_id, question_text, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (question_message_id) DO NOTHING
		RETURNING id
	`
	err := r.q.QueryRow(ctx, query, q.PropertyID, q.BuyerID, q.SellerID, q.ConversationID, q.QuestionMessageID, q.QuestionText, string(q.Status), q.CreatedAt).Scan(&q.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("conversation: insert question: %w", err)
	}
	return true, nil
}

func (r pgRepo) QuestionByMessageID(ctx context.Context, messageID int64) (*Question, error) {
	q, err := scanQuestion(r.q.QueryRow(ctx, `SELECT `+questionColumns+` FROM property_questions WHERE question_message_id = $1`, messageID))
	return q, notFound(err, "load question by message")
}

func (r pgRepo) QuestionForUpdate(ctx context.Context, id int64) (*Question, error) {
	q, err := scanQuestion(r.q.QueryRow(ctx, `SELECT `+questionColumns+` FROM property_questions WHERE id = $1 FOR UPDATE`, id))
	return q, notFound(err, "load question")
}

func (r pgRepo) UpdateQuestion(ctx context.Context, q *Question) error {
	ct, err := r.q.Exec(ctx, `
		UPDATE property_questions SET status = $2, answer_text = $3, answered_at = $4 WHERE id = $1
	`, q.ID, string(q.Status), q.AnswerText, q.AnsweredAt)
	if err != nil {
		return fmt.Errorf("conversation: update question: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r pgRepo) QuestionsForSeller(ctx context.Context, sellerID string, status QuestionStatus) ([]Question, error) {
	query := `SELECT ` + questionColumns + ` FROM property_questions WHERE seller_id = $1`
	args := []any{sellerID}
	if status != "" {
		query += ` AND status = $2`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("conversation: list seller questions: %w", err)
	}
	defer rows.Close()
	var out []Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, fmt.Errorf("conversation: scan question: %w", err)
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

const expiredPredicate = `(is_logged_in = FALSE AND last_activity < $1) OR (is_logged_in = TRUE AND last_activity < $2)`

func (r pgRepo) ExpiredGeneralConversations(ctx context.Context, anonCutoff, authCutoff time.Time) ([]GeneralConversation, error) {
	rows, err := r.q.Query(ctx, `SELECT `+generalColumns+` FROM general_conversations WHERE `+expiredPredicate, anonCutoff, authCutoff)
	if err != nil {
		return nil, fmt.Errorf("conversation: list expired conversations: %w", err)
	}
	defer rows.Close()
	var out []GeneralConversation
	for rows.Next() {
		c, err := scanGeneral(rows)
		if err != nil {
			return nil, fmt.Errorf("conversation: scan expired conversation: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// DeleteExpiredGeneralConversations relies on ON DELETE CASCADE for messages and references.
func (r pgRepo) DeleteExpiredGeneralConversations(ctx context.Context, anonCutoff, authCutoff time.Time) (int64, error) {
	ct, err := r.q.Exec(ctx, `DELETE FROM general_conversations WHERE `+expiredPredicate, anonCutoff, authCutoff)
	if err != nil {
		return 0, fmt.Errorf("conversation: delete expired conversations: %w", err)
	}
	return ct.RowsAffected(), nil
}

func notFound(err error, action string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("conversation: %s: %w", action, err)
}

func decodeJSON(raw []byte, out any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("conversation: decode json column: %w", err)
	}
	return nil
}
