package conversation

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/maison-chat-platform/internal/property"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("conversation: not found")
	// ErrInvalidRole is returned when a property conversation role is not buyer or seller.
	ErrInvalidRole = errors.New("conversation: role must be buyer or seller")
	// ErrInvalidStatus is returned for unknown property conversation statuses.
	ErrInvalidStatus = errors.New("conversation: invalid conversation status")
	// ErrSessionExpired signals an expired or closed property session.
	ErrSessionExpired = errors.New("conversation: session expired or unauthorized")
)

// Kind distinguishes general from property-scoped conversations.
type Kind string

const (
	KindGeneral  Kind = "general"
	KindProperty Kind = "property"
)

// Role is the party a property conversation belongs to.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// ParseRole validates a role string.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleBuyer:
		return RoleBuyer, nil
	case RoleSeller:
		return RoleSeller, nil
	}
	return "", ErrInvalidRole
}

// Counterpart returns the opposite party.
func (r Role) Counterpart() Role {
	if r == RoleSeller {
		return RoleBuyer
	}
	return RoleSeller
}

// Status is a property conversation's lifecycle state.
type Status string

const (
	StatusActive  Status = "active"
	StatusPending Status = "pending"
	StatusClosed  Status = "closed"
)

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusActive:
		return StatusActive, nil
	case StatusPending:
		return StatusPending, nil
	case StatusClosed:
		return StatusClosed, nil
	}
	return "", ErrInvalidStatus
}

// ConversationContext is the per-turn state kept on a general conversation.
type ConversationContext struct {
	LastIntent               string   `json:"last_intent,omitempty"`
	TopicsDiscussed          []string `json:"topics_discussed,omitempty"`
	PropertyDetailsRequested bool     `json:"property_details_requested,omitempty"`
	PriceDiscussed           bool     `json:"price_discussed,omitempty"`
	PropertyID               string   `json:"property_id,omitempty"`
}

// PropertyContext is the state kept on a property-scoped conversation.
type PropertyContext struct {
	Listing            *property.Listing `json:"listing,omitempty"`
	LastIntent         string            `json:"last_intent,omitempty"`
	QuestionsForwarded int               `json:"questions_forwarded,omitempty"`
}

// GeneralConversation is a thread that is not tied to a property.
type GeneralConversation struct {
	ID           int64               `json:"id"`
	SessionID    string              `json:"session_id"`
	UserID       string              `json:"user_id,omitempty"`
	IsLoggedIn   bool                `json:"is_logged_in"`
	StartedAt    time.Time           `json:"started_at"`
	LastActivity time.Time           `json:"last_activity"`
	Context      ConversationContext `json:"context"`
}

// PropertyConversation is a thread scoped to one property and one party.
type PropertyConversation struct {
	ID            int64           `json:"id"`
	SessionID     string          `json:"session_id"`
	UserID        string          `json:"user_id"`
	PropertyID    string          `json:"property_id"`
	Role          Role            `json:"role"`
	CounterpartID string          `json:"counterpart_id"`
	Status        Status          `json:"conversation_status"`
	StartedAt     time.Time       `json:"started_at"`
	LastActivity  time.Time       `json:"last_activity"`
	Context       PropertyContext `json:"property_context"`
}

// NewGeneralConversation starts a general conversation with a fresh session token.
func NewGeneralConversation(userID string, now time.Time) *GeneralConversation {
	userID = strings.TrimSpace(userID)
	return &GeneralConversation{
		SessionID:    uuid.NewString(),
		UserID:       userID,
		IsLoggedIn:   userID != "",
		StartedAt:    now,
		LastActivity: now,
	}
}

// NewPropertyConversation validates the role before building the conversation.
func NewPropertyConversation(userID, propertyID, role, counterpartID string, now time.Time) (*PropertyConversation, error) {
	r, err := ParseRole(role)
	if err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)
	propertyID = strings.TrimSpace(propertyID)
	if userID == "" || propertyID == "" {
		return nil, errors.New("conversation: user id and property id are required")
	}
	return &PropertyConversation{
		SessionID:     uuid.NewString(),
		UserID:        userID,
		PropertyID:    propertyID,
		Role:          r,
		CounterpartID: strings.TrimSpace(counterpartID),
		Status:        StatusActive,
		StartedAt:     now,
		LastActivity:  now,
	}, nil
}

// Ref identifies exactly one conversation of either kind.
type Ref struct {
	Kind Kind  `json:"kind"`
	ID   int64 `json:"id"`
}

func GeneralRef(id int64) Ref  { return Ref{Kind: KindGeneral, ID: id} }
func PropertyRef(id int64) Ref { return Ref{Kind: KindProperty, ID: id} }

// columns maps a ref onto the (general_conversation_id, property_conversation_id) pair.
func (r Ref) columns() (*int64, *int64) {
	id := r.ID
	if r.Kind == KindProperty {
		return nil, &id
	}
	return &id, nil
}

func refFromColumns(general, prop *int64) Ref {
	if prop != nil {
		return PropertyRef(*prop)
	}
	if general != nil {
		return GeneralRef(*general)
	}
	return Ref{}
}

// MessageRole is the author of a message.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
	MessageRoleSystem    MessageRole = "system"
)

// MessageMetadata carries optional message annotations.
type MessageMetadata struct {
	IsSellerResponse   bool  `json:"is_seller_response,omitempty"`
	OriginalQuestionID int64 `json:"original_question_id,omitempty"`
	Forwarded          bool  `json:"forwarded,omitempty"`
}

// Message belongs to exactly one conversation.
type Message struct {
	ID           int64            `json:"id"`
	Conversation Ref              `json:"conversation"`
	Role         MessageRole      `json:"role"`
	Content      string           `json:"content"`
	Intent       string           `json:"intent,omitempty"`
	Metadata     *MessageMetadata `json:"metadata,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
}

// ReferenceMetadata describes why a cross reference was written.
type ReferenceMetadata struct {
	MessageForwarded bool       `json:"message_forwarded,omitempty"`
	ForwardedAt      *time.Time `json:"forwarded_at,omitempty"`
	PropertyID       string     `json:"property_id,omitempty"`
	SenderRole       Role       `json:"sender_role,omitempty"`
	MessageType      string     `json:"message_type,omitempty"`
	QuestionID       int64      `json:"question_id,omitempty"`
}

const (
	ServiceSellerBuyer           = "seller_buyer_communication"
	ServiceCounterpartVisibility = "counterpart_visibility"
)

// CrossReference links a conversation to an identifier in another context.
type CrossReference struct {
	ID           int64             `json:"id"`
	Conversation Ref               `json:"conversation"`
	ServiceName  string            `json:"service_name"`
	ExternalID   string            `json:"external_id"`
	Metadata     ReferenceMetadata `json:"reference_metadata"`
	LastSynced   time.Time         `json:"last_synced"`
}

// QuestionStatus is monotonic: pending then answered.
type QuestionStatus string

const (
	QuestionPending  QuestionStatus = "pending"
	QuestionAnswered QuestionStatus = "answered"
)

// Question is a buyer query forwarded to the seller.
type Question struct {
	ID                int64          `json:"id"`
	PropertyID        string         `json:"property_id"`
	BuyerID           string         `json:"buyer_id"`
	SellerID          string         `json:"seller_id"`
	ConversationID    int64          `json:"conversation_id"`
	QuestionMessageID int64          `json:"question_message_id"`
	QuestionText      string         `json:"question_text"`
	Status            QuestionStatus `json:"status"`
	CreatedAt         time.Time      `json:"created_at"`
	AnswerText        string         `json:"answer_text,omitempty"`
	AnsweredAt        *time.Time     `json:"answered_at,omitempty"`
}

// HistoryEntry is a role-tagged message passed to specialists.
type HistoryEntry struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}
