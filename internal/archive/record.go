package archive

import (
	"strconv"
	"time"

	"github.com/wolfman30/maison-chat-platform/internal/conversation"
)

// Record is the JSON document written for one expired general conversation.
type Record struct {
	ConversationID string    `json:"conversation_id"`
	SessionID      string    `json:"session_id"`
	IsLoggedIn     bool      `json:"is_logged_in"`
	StartedAt      time.Time `json:"started_at"`
	LastActivity   time.Time `json:"last_activity"`
	ArchivedAt     time.Time `json:"archived_at"`
	Topics         []string  `json:"topics,omitempty"`
	MessageCount   int       `json:"message_count"`
	Messages       []Message `json:"messages"`
}

// Message is one archived chat turn. User identifiers are dropped.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Intent    string    `json:"intent,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ManifestEntry is one line of the monthly JSONL manifest.
type ManifestEntry struct {
	ConversationID string `json:"conversation_id"`
	S3Key          string `json:"s3_key"`
	MessageCount   int    `json:"message_count"`
	LastIntent     string `json:"last_intent,omitempty"`
	ArchivedAt     string `json:"archived_at"`
}

// NewRecord converts a conversation and its messages, scrubbing contact details.
func NewRecord(conv conversation.GeneralConversation, msgs []conversation.Message, archivedAt time.Time) *Record {
	rec := &Record{
		ConversationID: strconv.FormatInt(conv.ID, 10),
		SessionID:      conv.SessionID,
		IsLoggedIn:     conv.IsLoggedIn,
		StartedAt:      conv.StartedAt,
		LastActivity:   conv.LastActivity,
		ArchivedAt:     archivedAt,
		Topics:         append([]string(nil), conv.Context.TopicsDiscussed...),
		MessageCount:   len(msgs),
		Messages:       make([]Message, 0, len(msgs)),
	}
	for _, m := range msgs {
		rec.Messages = append(rec.Messages, Message{
			Role:      string(m.Role),
			Content:   ScrubPII(m.Content),
			Intent:    m.Intent,
			Timestamp: m.Timestamp,
		})
	}
	return rec
}
