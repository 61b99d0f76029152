package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wolfman30/maison-chat-platform/internal/intent"
	"github.com/wolfman30/maison-chat-platform/internal/property"
	"github.com/wolfman30/maison-chat-platform/pkg/logging"
)

const historyWindow = 5

var (
	// ErrEmptyMessage is returned when the inbound message has no text.
	ErrEmptyMessage = errors.New("conversation: message is required")
	// ErrMissingField is returned when a required identifier is absent.
	ErrMissingField = errors.New("conversation: required field missing")
)

// Router produces the response for one turn.
type Router interface {
	Route(ctx context.Context, message string, turn Turn) (Result, error)
}

// ListingLookup fetches a listing snapshot for a new property conversation.
type ListingLookup interface {
	Listing(ctx context.Context, propertyID string) (*property.Listing, error)
}

// AnswerRecorder stores a seller's answer to a forwarded question.
type AnswerRecorder interface {
	RecordAnswer(ctx context.Context, questionID int64, answer string) error
}

type GeneralChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

type GeneralChatResponse struct {
	Response       string              `json:"response"`
	ConversationID int64               `json:"conversation_id"`
	SessionID      string              `json:"session_id"`
	Intent         string              `json:"intent"`
	Context        ConversationContext `json:"context"`
}

type PropertyChatRequest struct {
	Message       string `json:"message"`
	UserID        string `json:"user_id"`
	PropertyID    string `json:"property_id"`
	Role          string `json:"role"`
	CounterpartID string `json:"counterpart_id"`
	SessionID     string `json:"session_id,omitempty"`
}

type PropertyChatResponse struct {
	Response        string          `json:"response"`
	ConversationID  int64           `json:"conversation_id"`
	SessionID       string          `json:"session_id"`
	Intent          string          `json:"intent"`
	PropertyContext PropertyContext `json:"property_context"`
}

// UserConversations lists everything a user owns.
type UserConversations struct {
	GeneralConversations  []GeneralConversation  `json:"general_conversations"`
	PropertyConversations []PropertyConversation `json:"property_conversations"`
}

// Controller is the boundary between transports and the chat engine. It owns
// persistence and session bookkeeping around each routed turn.
type Controller struct {
	store    Store
	sessions *SessionManager
	router   Router
	listings ListingLookup
	answers  AnswerRecorder
	logger   *logging.Logger
}

func NewController(store Store, sessions *SessionManager, router Router, listings ListingLookup, answers AnswerRecorder, logger *logging.Logger) *Controller {
	if store == nil || sessions == nil || router == nil {
		panic("conversation: controller requires store, session manager and router")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Controller{
		store:    store,
		sessions: sessions,
		router:   router,
		listings: listings,
		answers:  answers,
		logger:   logger,
	}
}

// HandleGeneralChat runs one general turn. Unknown or expired sessions are
// replaced by a new conversation with a fresh session id.
func (c *Controller) HandleGeneralChat(ctx context.Context, req GeneralChatRequest) (*GeneralChatResponse, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	conv, err := c.resumeGeneral(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	isNew := conv == nil
	if isNew {
		conv = NewGeneralConversation(req.UserID, c.sessions.Now())
	}

	var history []HistoryEntry
	if !isNew {
		if history, err = c.history(ctx, GeneralRef(conv.ID)); err != nil {
			return nil, err
		}
	}

	userMsg := &Message{Role: MessageRoleUser, Content: message, Timestamp: c.sessions.Now()}
	if err := c.store.InTx(ctx, func(repo Repository) error {
		if isNew {
			if err := repo.CreateGeneralConversation(ctx, conv); err != nil {
				return err
			}
		}
		userMsg.Conversation = GeneralRef(conv.ID)
		return repo.CreateMessage(ctx, userMsg)
	}); err != nil {
		return nil, fmt.Errorf("conversation: persist general message: %w", err)
	}

	result, err := c.router.Route(ctx, message, Turn{
		Kind:           KindGeneral,
		ConversationID: conv.ID,
		MessageID:      userMsg.ID,
		UserID:         conv.UserID,
		PropertyID:     conv.Context.PropertyID,
		History:        history,
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: route general message: %w", err)
	}

	updateGeneralContext(&conv.Context, result.Intent)
	c.sessions.RefreshGeneral(conv)
	if err := c.store.InTx(ctx, func(repo Repository) error {
		if err := repo.CreateMessage(ctx, &Message{
			Conversation: GeneralRef(conv.ID),
			Role:         MessageRoleAssistant,
			Content:      result.Response,
			Intent:       string(result.Intent),
			Timestamp:    conv.LastActivity,
		}); err != nil {
			return err
		}
		return repo.UpdateGeneralConversation(ctx, conv)
	}); err != nil {
		return nil, fmt.Errorf("conversation: persist general response: %w", err)
	}

	return &GeneralChatResponse{
		Response:       result.Response,
		ConversationID: conv.ID,
		SessionID:      conv.SessionID,
		Intent:         string(result.Intent),
		Context:        conv.Context,
	}, nil
}

func (c *Controller) resumeGeneral(ctx context.Context, sessionID string) (*GeneralConversation, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, nil
	}
	conv, err := c.store.GeneralConversationBySession(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: load general session: %w", err)
	}
	if !c.sessions.IsGeneralSessionValid(conv) {
		c.logger.Info("general session expired, starting a new one", "conversation_id", conv.ID, "logged_in", conv.IsLoggedIn)
		return nil, nil
	}
	return conv, nil
}

// HandlePropertyChat runs one property turn. Expired or closed sessions, and
// sessions owned by another user, return ErrSessionExpired.
func (c *Controller) HandlePropertyChat(ctx context.Context, req PropertyChatRequest) (*PropertyChatResponse, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.PropertyID) == "" {
		return nil, fmt.Errorf("%w: user_id and property_id", ErrMissingField)
	}

	conv, err := c.resumeProperty(ctx, req)
	if err != nil {
		return nil, err
	}
	isNew := conv == nil
	if isNew {
		if conv, err = NewPropertyConversation(req.UserID, req.PropertyID, req.Role, req.CounterpartID, c.sessions.Now()); err != nil {
			return nil, err
		}
		conv.Context.Listing = c.listingSnapshot(ctx, conv.PropertyID)
		if conv.CounterpartID == "" && conv.Role == RoleBuyer && conv.Context.Listing != nil {
			conv.CounterpartID = conv.Context.Listing.SellerID
		}
	}

	var history []HistoryEntry
	if !isNew {
		if history, err = c.history(ctx, PropertyRef(conv.ID)); err != nil {
			return nil, err
		}
	}

	userMsg := &Message{Role: MessageRoleUser, Content: message, Timestamp: c.sessions.Now()}
	if err := c.store.InTx(ctx, func(repo Repository) error {
		if isNew {
			if err := repo.CreatePropertyConversation(ctx, conv); err != nil {
				return err
			}
			if conv.CounterpartID != "" {
				if err := repo.CreateCrossReference(ctx, &CrossReference{
					Conversation: PropertyRef(conv.ID),
					ServiceName:  ServiceCounterpartVisibility,
					ExternalID:   conv.CounterpartID,
					Metadata: ReferenceMetadata{
						PropertyID: conv.PropertyID,
						SenderRole: conv.Role,
					},
					LastSynced: conv.StartedAt,
				}); err != nil {
					return err
				}
			}
		}
		userMsg.Conversation = PropertyRef(conv.ID)
		return repo.CreateMessage(ctx, userMsg)
	}); err != nil {
		return nil, fmt.Errorf("conversation: persist property message: %w", err)
	}

	result, err := c.router.Route(ctx, message, Turn{
		Kind:           KindProperty,
		ConversationID: conv.ID,
		MessageID:      userMsg.ID,
		UserID:         conv.UserID,
		PropertyID:     conv.PropertyID,
		Role:           conv.Role,
		CounterpartID:  conv.CounterpartID,
		Listing:        conv.Context.Listing,
		History:        history,
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: route property message: %w", err)
	}

	conv.Context.LastIntent = string(result.Intent)
	if result.Outcome == OutcomeForwarded {
		conv.Context.QuestionsForwarded++
	}
	c.sessions.RefreshProperty(conv)
	if err := c.store.InTx(ctx, func(repo Repository) error {
		var meta *MessageMetadata
		if result.Outcome == OutcomeForwarded {
			meta = &MessageMetadata{Forwarded: true}
		}
		if err := repo.CreateMessage(ctx, &Message{
			Conversation: PropertyRef(conv.ID),
			Role:         MessageRoleAssistant,
			Content:      result.Response,
			Intent:       string(result.Intent),
			Metadata:     meta,
			Timestamp:    conv.LastActivity,
		}); err != nil {
			return err
		}
		return repo.UpdatePropertyConversation(ctx, conv)
	}); err != nil {
		return nil, fmt.Errorf("conversation: persist property response: %w", err)
	}

	return &PropertyChatResponse{
		Response:        result.Response,
		ConversationID:  conv.ID,
		SessionID:       conv.SessionID,
		Intent:          string(result.Intent),
		PropertyContext: conv.Context,
	}, nil
}

func (c *Controller) resumeProperty(ctx context.Context, req PropertyChatRequest) (*PropertyConversation, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return nil, nil
	}
	conv, err := c.store.PropertyConversationBySession(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: load property session: %w", err)
	}
	if conv.UserID != strings.TrimSpace(req.UserID) || !c.sessions.IsPropertySessionValid(conv) {
		return nil, ErrSessionExpired
	}
	return conv, nil
}

// listingSnapshot returns nil when the listings API is unavailable.
func (c *Controller) listingSnapshot(ctx context.Context, propertyID string) *property.Listing {
	if c.listings == nil {
		return nil
	}
	listing, err := c.listings.Listing(ctx, propertyID)
	if err != nil {
		if !errors.Is(err, property.ErrDisabled) {
			c.logger.Warn("listing snapshot unavailable", "property_id", propertyID, "error", err)
		}
		return nil
	}
	return listing
}

func (c *Controller) history(ctx context.Context, ref Ref) ([]HistoryEntry, error) {
	msgs, err := c.store.ListMessages(ctx, ref, historyWindow)
	if err != nil {
		return nil, fmt.Errorf("conversation: load history: %w", err)
	}
	out := make([]HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, HistoryEntry{Role: m.Role, Content: m.Content})
	}
	return out, nil
}

func updateGeneralContext(ctx *ConversationContext, it intent.Intent) {
	ctx.LastIntent = string(it)
	seen := false
	for _, t := range ctx.TopicsDiscussed {
		if t == string(it) {
			seen = true
			break
		}
	}
	if !seen {
		ctx.TopicsDiscussed = append(ctx.TopicsDiscussed, string(it))
	}
	switch it {
	case intent.PropertyInquiry, intent.PropertyListingsInquiry:
		ctx.PropertyDetailsRequested = true
	case intent.PriceInquiry:
		ctx.PriceDiscussed = true
	}
}

// GeneralHistory returns every message of a general conversation, oldest first.
func (c *Controller) GeneralHistory(ctx context.Context, id int64) ([]Message, error) {
	if _, err := c.store.GeneralConversation(ctx, id); err != nil {
		return nil, err
	}
	return c.store.ListMessages(ctx, GeneralRef(id), 0)
}

// PropertyHistory returns every message of a property conversation, oldest first.
func (c *Controller) PropertyHistory(ctx context.Context, id int64) ([]Message, error) {
	if _, err := c.store.PropertyConversation(ctx, id); err != nil {
		return nil, err
	}
	return c.store.ListMessages(ctx, PropertyRef(id), 0)
}

func (c *Controller) UserConversations(ctx context.Context, userID string) (*UserConversations, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user_id", ErrMissingField)
	}
	general, err := c.store.GeneralConversationsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	props, err := c.store.PropertyConversationsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UserConversations{GeneralConversations: general, PropertyConversations: props}, nil
}

// CounterpartConversations lists property conversations where userID is the counterpart.
func (c *Controller) CounterpartConversations(ctx context.Context, userID string) ([]PropertyConversation, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user_id", ErrMissingField)
	}
	return c.store.CounterpartConversations(ctx, userID)
}

// SellerQuestions lists a seller's questions; an empty status means all.
func (c *Controller) SellerQuestions(ctx context.Context, sellerID, status string) ([]Question, error) {
	var st QuestionStatus
	switch QuestionStatus(strings.ToLower(strings.TrimSpace(status))) {
	case "":
	case QuestionPending:
		st = QuestionPending
	case QuestionAnswered:
		st = QuestionAnswered
	default:
		return nil, ErrInvalidStatus
	}
	return c.store.QuestionsForSeller(ctx, sellerID, st)
}

func (c *Controller) AnswerQuestion(ctx context.Context, questionID int64, answer string) error {
	if c.answers == nil {
		return errors.New("conversation: answering questions is not configured")
	}
	return c.answers.RecordAnswer(ctx, questionID, answer)
}

// UpdatePropertyStatus performs the explicit status transition that ends or
// reopens a property conversation.
func (c *Controller) UpdatePropertyStatus(ctx context.Context, id int64, status string) (*PropertyConversation, error) {
	st, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}
	var out *PropertyConversation
	err = c.store.InTx(ctx, func(repo Repository) error {
		conv, err := repo.PropertyConversation(ctx, id)
		if err != nil {
			return err
		}
		conv.Status = st
		if err := repo.UpdatePropertyConversation(ctx, conv); err != nil {
			return err
		}
		out = conv
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("property conversation status updated", "conversation_id", id, "status", st)
	return out, nil
}

// CleanupSessions purges expired general conversations.
func (c *Controller) CleanupSessions(ctx context.Context) (int64, error) {
	return c.sessions.CleanupExpired(ctx)
}
