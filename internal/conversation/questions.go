package conversation

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/maison-chat-platform/internal/intent"
	"github.com/wolfman30/maison-chat-platform/internal/llm"
	"github.com/wolfman30/maison-chat-platform/internal/notify"
	"github.com/wolfman30/maison-chat-platform/pkg/logging"
)

const (
	ForwardAck           = "I will forward your question to the seller and let you know once I have a response."
	OfferForwardPrompt   = "Would you like me to pass this question on to the seller?"
	DeclineAck           = "No problem, I won't forward that question."
	SellerResponsePrefix = "The seller has responded to your question"
	RelayAck             = "I've passed your message on to the buyer."
	RelayRejected        = "I couldn't pass that message on. Please rephrase it in a few words and keep it under 1000 characters."

	insufficientSentinel = "INSUFFICIENT_INFORMATION"
	maxRelayLength       = 1000
)

var (
	ErrQuestionNotFound    = errors.New("conversation: question not found")
	ErrQuestionAnswered    = errors.New("conversation: question already answered")
	ErrConversationMissing = errors.New("conversation: owning conversation not found")
)

// Workflow outcomes reported to the observer.
const (
	OutcomeForwarded = "forwarded"
	OutcomeDuplicate = "duplicate"
	OutcomeOffered   = "offered"
	OutcomeDeclined  = "declined"
	OutcomeAnswered  = "answered"
	OutcomeRelayed   = "relayed"
	OutcomeRejected  = "rejected"
	OutcomeDirect    = "direct_answer"
)

// WorkflowReply is the workflow's answer for one turn and the outcome that
// produced it. Callers branch on Outcome, never on Text.
type WorkflowReply struct {
	Text    string
	Outcome string
}

// WorkflowObserver records question workflow outcomes.
type WorkflowObserver interface {
	ObserveQuestion(outcome string)
}

type confirmation int

const (
	confirmOther confirmation = iota
	confirmYes
	confirmNo
)

var (
	confirmPhrases = []string{"yes please", "please do", "go ahead", "yes", "yeah", "yep", "sure", "ok", "okay"}
	declinePhrases = []string{"no thanks", "no thank you", "don't", "do not", "no", "nope", "nah"}

	sellerInputPattern = regexp.MustCompile(`(?i)\b(ask|contact|tell|message|check with)\s+(the\s+)?(seller|owner|vendor|landlord)\b|\b(seller|owner|vendor|landlord)('s)?\s+(opinion|answer|input|response)\b`)
	wordPattern        = regexp.MustCompile(`[a-z']+`)

	inappropriateTerms = []string{"scam", "illegal", "fraud"}
)

// QuestionWorkflow runs the buyer question, seller answer cycle for property
// conversations, including the confirm-before-forward step.
type QuestionWorkflow struct {
	store     Store
	pending   PendingQuestionStore
	llm       llm.Client
	publisher notify.Publisher
	observer  WorkflowObserver
	now       func() time.Time
	logger    *logging.Logger
	locks     *keyedMutex
}

// WorkflowOption customises a QuestionWorkflow.
type WorkflowOption func(*QuestionWorkflow)

func WithPublisher(p notify.Publisher) WorkflowOption {
	return func(w *QuestionWorkflow) { w.publisher = p }
}

func WithWorkflowObserver(o WorkflowObserver) WorkflowOption {
	return func(w *QuestionWorkflow) { w.observer = o }
}

func WithWorkflowClock(now func() time.Time) WorkflowOption {
	return func(w *QuestionWorkflow) {
		if now != nil {
			w.now = now
		}
	}
}

func NewQuestionWorkflow(store Store, pending PendingQuestionStore, client llm.Client, logger *logging.Logger, opts ...WorkflowOption) *QuestionWorkflow {
	if store == nil {
		panic("conversation: workflow requires a store")
	}
	if pending == nil {
		panic("conversation: workflow requires a pending question store")
	}
	if logger == nil {
		logger = logging.Default()
	}
	w := &QuestionWorkflow{
		store:   store,
		pending: pending,
		llm:     client,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger,
		locks:   newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// HasPending reports whether a question is awaiting the buyer's confirmation.
// Ledger errors read as false.
func (w *QuestionWorkflow) HasPending(ctx context.Context, conversationID int64) bool {
	q, err := w.pending.Get(ctx, conversationID)
	if err != nil {
		w.logger.Warn("pending question lookup failed", "conversation_id", conversationID, "error", err)
		return false
	}
	return q != nil
}

// Handle processes one cross-party message. Sellers' messages are relayed to
// the buyer; buyers' messages go through the confirm-before-forward flow.
func (w *QuestionWorkflow) Handle(ctx context.Context, message string, turn Turn) (WorkflowReply, error) {
	unlock := w.locks.Lock(turn.ConversationID)
	defer unlock()

	if turn.Role == RoleSeller {
		return w.relay(ctx, message, turn)
	}

	pending, err := w.pending.Get(ctx, turn.ConversationID)
	if err != nil {
		w.logger.Warn("pending question lookup failed", "conversation_id", turn.ConversationID, "error", err)
		pending = nil
	}

	if pending != nil {
		switch w.judgeConfirmation(ctx, message) {
		case confirmYes:
			taken, err := w.pending.Take(ctx, turn.ConversationID)
			if err != nil {
				w.logger.Warn("failed to take pending question", "conversation_id", turn.ConversationID, "error", err)
				taken = pending
			}
			if taken == nil {
				// Another request already forwarded it.
				return w.reply(OutcomeDuplicate, ForwardAck), nil
			}
			return w.forward(ctx, taken.Text, taken.MessageID, turn)
		case confirmNo:
			w.clearPending(ctx, turn.ConversationID)
			return w.reply(OutcomeDeclined, DeclineAck), nil
		}
	}

	if w.requiresSellerInput(ctx, message) {
		if pending != nil {
			w.clearPending(ctx, turn.ConversationID)
		}
		return w.forward(ctx, message, turn.MessageID, turn)
	}

	if answer, ok := w.answerFromListing(ctx, message, turn); ok {
		if pending != nil {
			w.clearPending(ctx, turn.ConversationID)
		}
		return w.reply(OutcomeDirect, answer), nil
	}

	if err := w.pending.Put(ctx, turn.ConversationID, PendingQuestion{
		Text:      strings.TrimSpace(message),
		MessageID: turn.MessageID,
		CreatedAt: w.now(),
	}); err != nil {
		w.logger.Warn("failed to record pending question", "conversation_id", turn.ConversationID, "error", err)
	}
	return w.reply(OutcomeOffered, "I don't have that information in the property details. "+OfferForwardPrompt), nil
}

// Forward records text as a pending Question for the seller. It is idempotent
// on messageID: a second call returns the same acknowledgment without writing.
func (w *QuestionWorkflow) Forward(ctx context.Context, text string, messageID int64, turn Turn) (WorkflowReply, error) {
	unlock := w.locks.Lock(turn.ConversationID)
	defer unlock()
	return w.forward(ctx, text, messageID, turn)
}

func (w *QuestionWorkflow) forward(ctx context.Context, text string, messageID int64, turn Turn) (WorkflowReply, error) {
	if messageID != 0 {
		existing, err := w.store.QuestionByMessageID(ctx, messageID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return WorkflowReply{}, fmt.Errorf("conversation: check forwarded question: %w", err)
		}
		if existing != nil {
			return w.reply(OutcomeDuplicate, ForwardAck), nil
		}
	}

	formatted := w.formatForCounterpart(ctx, text, RoleBuyer, turn)
	now := w.now()
	sellerID := turn.CounterpartID
	if sellerID == "" && turn.Listing != nil {
		sellerID = turn.Listing.SellerID
	}
	q := &Question{
		PropertyID:        turn.PropertyID,
		BuyerID:           turn.UserID,
		SellerID:          sellerID,
		ConversationID:    turn.ConversationID,
		QuestionMessageID: messageID,
		QuestionText:      formatted,
		Status:            QuestionPending,
		CreatedAt:         now,
	}

	var created bool
	err := w.store.InTx(ctx, func(repo Repository) error {
		ok, err := repo.CreateQuestion(ctx, q)
		if err != nil {
			return err
		}
		created = ok
		if !ok {
			return nil
		}
		return repo.CreateCrossReference(ctx, &CrossReference{
			Conversation: PropertyRef(turn.ConversationID),
			ServiceName:  ServiceSellerBuyer,
			ExternalID:   sellerID,
			Metadata: ReferenceMetadata{
				MessageForwarded: true,
				ForwardedAt:      &now,
				PropertyID:       turn.PropertyID,
				SenderRole:       RoleBuyer,
				MessageType:      ClassifyMessageType(text),
				QuestionID:       q.ID,
			},
			LastSynced: now,
		})
	})
	if err != nil {
		return WorkflowReply{}, fmt.Errorf("conversation: forward question: %w", err)
	}
	if !created {
		// Lost a race with a concurrent forward of the same message.
		return w.reply(OutcomeDuplicate, ForwardAck), nil
	}

	w.logger.Info("question forwarded to seller", "question_id", q.ID, "conversation_id", turn.ConversationID, "property_id", turn.PropertyID)
	reply := w.reply(OutcomeForwarded, ForwardAck)
	w.publish(ctx, notify.Event{
		Type:           notify.EventQuestionForwarded,
		PropertyID:     turn.PropertyID,
		ConversationID: turn.ConversationID,
		QuestionID:     q.ID,
		RecipientID:    sellerID,
		RecipientRole:  string(RoleSeller),
		SenderID:       turn.UserID,
		Text:           formatted,
		MessageType:    ClassifyMessageType(text),
	})
	return reply, nil
}

// RecordAnswer stores the seller's answer and appends it to the buyer's
// conversation in one transaction.
func (w *QuestionWorkflow) RecordAnswer(ctx context.Context, questionID int64, answer string) error {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return errors.New("conversation: answer text is required")
	}

	var answered Question
	err := w.store.InTx(ctx, func(repo Repository) error {
		q, err := repo.QuestionForUpdate(ctx, questionID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrQuestionNotFound
			}
			return err
		}
		if q.Status == QuestionAnswered {
			return ErrQuestionAnswered
		}
		if _, err := repo.PropertyConversation(ctx, q.ConversationID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return ErrConversationMissing
			}
			return err
		}

		now := w.now()
		q.Status = QuestionAnswered
		q.AnswerText = answer
		q.AnsweredAt = &now
		if err := repo.UpdateQuestion(ctx, q); err != nil {
			return err
		}
		if err := repo.CreateMessage(ctx, &Message{
			Conversation: PropertyRef(q.ConversationID),
			Role:         MessageRoleAssistant,
			Content:      fmt.Sprintf("%s: %s", SellerResponsePrefix, answer),
			Intent:       string(intent.BuyerSellerCommunication),
			Metadata: &MessageMetadata{
				IsSellerResponse:   true,
				OriginalQuestionID: q.ID,
			},
			Timestamp: now,
		}); err != nil {
			return err
		}
		answered = *q
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrQuestionNotFound) || errors.Is(err, ErrQuestionAnswered) || errors.Is(err, ErrConversationMissing) {
			w.observe(OutcomeRejected)
			return err
		}
		return fmt.Errorf("conversation: record answer: %w", err)
	}

	w.observe(OutcomeAnswered)
	w.publish(ctx, notify.Event{
		Type:           notify.EventQuestionAnswered,
		PropertyID:     answered.PropertyID,
		ConversationID: answered.ConversationID,
		QuestionID:     answered.ID,
		RecipientID:    answered.BuyerID,
		RecipientRole:  string(RoleBuyer),
		SenderID:       answered.SellerID,
		Text:           answer,
	})
	return nil
}

// Answer reports whether the answer was recorded; every failure reads as false.
func (w *QuestionWorkflow) Answer(ctx context.Context, questionID int64, answer string) bool {
	if err := w.RecordAnswer(ctx, questionID, answer); err != nil {
		w.logger.Warn("seller answer rejected", "question_id", questionID, "error", err)
		return false
	}
	return true
}

// relay passes a seller's message to the buyer.
func (w *QuestionWorkflow) relay(ctx context.Context, message string, turn Turn) (WorkflowReply, error) {
	if !ValidateRelayContent(message) {
		return w.reply(OutcomeRejected, RelayRejected), nil
	}

	formatted := w.formatForCounterpart(ctx, message, RoleSeller, turn)
	now := w.now()
	msgType := ClassifyMessageType(message)
	err := w.store.InTx(ctx, func(repo Repository) error {
		return repo.CreateCrossReference(ctx, &CrossReference{
			Conversation: PropertyRef(turn.ConversationID),
			ServiceName:  ServiceSellerBuyer,
			ExternalID:   turn.CounterpartID,
			Metadata: ReferenceMetadata{
				MessageForwarded: true,
				ForwardedAt:      &now,
				PropertyID:       turn.PropertyID,
				SenderRole:       RoleSeller,
				MessageType:      msgType,
			},
			LastSynced: now,
		})
	})
	if err != nil {
		return WorkflowReply{}, fmt.Errorf("conversation: relay seller message: %w", err)
	}

	reply := w.reply(OutcomeRelayed, RelayAck)
	w.publish(ctx, notify.Event{
		Type:           notify.EventMessageRelayed,
		PropertyID:     turn.PropertyID,
		ConversationID: turn.ConversationID,
		RecipientID:    turn.CounterpartID,
		RecipientRole:  string(RoleBuyer),
		SenderID:       turn.UserID,
		Text:           formatted,
		MessageType:    msgType,
	})
	return reply, nil
}

func (w *QuestionWorkflow) judgeConfirmation(ctx context.Context, message string) confirmation {
	if w.llm != nil {
		out, err := llm.Generate(ctx, w.llm, []llm.ChatMessage{
			llm.System("The assistant asked a buyer whether to forward their question to the property's seller. " +
				"Classify the buyer's reply. Answer with exactly one word: YES if it confirms, NO if it declines, OTHER if it is neither."),
			llm.User(message),
		}, 0)
		if err == nil {
			switch firstWord(out) {
			case "yes":
				return confirmYes
			case "no":
				return confirmNo
			case "other":
				return confirmOther
			}
		} else {
			w.logger.Debug("confirmation judgment fell back to keywords", "error", err)
		}
	}
	return keywordConfirmation(message)
}

func (w *QuestionWorkflow) requiresSellerInput(ctx context.Context, message string) bool {
	if w.llm != nil {
		out, err := llm.Generate(ctx, w.llm, []llm.ChatMessage{
			llm.System("Decide whether a buyer's message asks for information only the property's seller can provide, " +
				"or explicitly asks for the question to be passed to the seller or owner. Answer with exactly one word: YES or NO."),
			llm.User(message),
		}, 0)
		if err == nil {
			switch firstWord(out) {
			case "yes":
				return true
			case "no":
				return false
			}
		} else {
			w.logger.Debug("seller-input judgment fell back to keywords", "error", err)
		}
	}
	return sellerInputPattern.MatchString(message)
}

// answerFromListing returns false when the listing cannot answer the message
// or generation failed.
func (w *QuestionWorkflow) answerFromListing(ctx context.Context, message string, turn Turn) (string, bool) {
	if w.llm == nil || turn.Listing == nil {
		return "", false
	}
	out, err := llm.Generate(ctx, w.llm, []llm.ChatMessage{
		llm.System("You answer a buyer's question using only the property details below. " +
			"If the details do not contain the answer, reply with exactly " + insufficientSentinel + " and nothing else.\n\n" +
			turn.Listing.Summary()),
		llm.User(message),
	}, 0.3)
	if err != nil {
		w.logger.Warn("listing answer generation failed", "conversation_id", turn.ConversationID, "error", err)
		return "", false
	}
	if strings.Contains(out, insufficientSentinel) {
		return "", false
	}
	return out, true
}

// formatForCounterpart rewrites text as a direct, professional message for
// the other party, falling back to the trimmed original.
func (w *QuestionWorkflow) formatForCounterpart(ctx context.Context, text string, sender Role, turn Turn) string {
	trimmed := strings.TrimSpace(text)
	if w.llm == nil {
		return trimmed
	}
	recipient := sender.Counterpart()
	prompt := fmt.Sprintf("Rewrite this message from a property %s as a clear, direct and professional message to the %s. "+
		"Keep the meaning, do not add information, and reply with the rewritten message only.", sender, recipient)
	if turn.Listing != nil {
		prompt += "\n\nProperty:\n" + turn.Listing.Summary()
	}
	out, err := llm.Generate(ctx, w.llm, []llm.ChatMessage{llm.System(prompt), llm.User(trimmed)}, 0.7)
	if err != nil {
		w.logger.Debug("counterpart formatting fell back to original text", "error", err)
		return trimmed
	}
	return out
}

func (w *QuestionWorkflow) clearPending(ctx context.Context, conversationID int64) {
	if err := w.pending.Delete(ctx, conversationID); err != nil {
		w.logger.Warn("failed to clear pending question", "conversation_id", conversationID, "error", err)
	}
}

func (w *QuestionWorkflow) publish(ctx context.Context, evt notify.Event) {
	if w.publisher == nil {
		return
	}
	if err := w.publisher.Publish(context.WithoutCancel(ctx), evt); err != nil {
		w.logger.Warn("failed to publish counterpart notification", "type", evt.Type, "error", err)
	}
}

// reply records outcome with the observer and pairs it with text.
func (w *QuestionWorkflow) reply(outcome, text string) WorkflowReply {
	w.observe(outcome)
	return WorkflowReply{Text: text, Outcome: outcome}
}

func (w *QuestionWorkflow) observe(outcome string) {
	if w.observer != nil {
		w.observer.ObserveQuestion(outcome)
	}
}

// ClassifyMessageType buckets a message for notification metadata.
func ClassifyMessageType(message string) string {
	lower := strings.ToLower(message)
	containsAny := func(words ...string) bool {
		for _, w := range words {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}
	switch {
	case containsAny("offer", "bid", "price", "propose"):
		return "negotiation"
	case containsAny("when", "time", "schedule", "visit"):
		return "viewing_arrangement"
	case containsAny("condition", "repair", "fix", "issue"):
		return "property_condition"
	case containsAny("document", "contract", "agreement"):
		return "documentation"
	default:
		return "general_inquiry"
	}
}

// ValidateRelayContent rejects messages that are too short, too long or contain
// flagged terms.
func ValidateRelayContent(message string) bool {
	trimmed := strings.TrimSpace(message)
	if len(strings.Fields(trimmed)) < 2 || len(trimmed) > maxRelayLength {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, term := range inappropriateTerms {
		if strings.Contains(lower, term) {
			return false
		}
	}
	return true
}

func keywordConfirmation(message string) confirmation {
	words := wordPattern.FindAllString(strings.ToLower(message), -1)
	if len(words) == 0 {
		return confirmOther
	}
	switch words[0] {
	case "yes", "yeah", "yep", "sure", "ok", "okay":
		return confirmYes
	case "no", "nope", "nah":
		return confirmNo
	}
	normalized := " " + strings.Join(words, " ") + " "
	for _, p := range declinePhrases {
		if strings.Contains(normalized, " "+p+" ") {
			return confirmNo
		}
	}
	for _, p := range confirmPhrases {
		if strings.Contains(normalized, " "+p+" ") {
			return confirmYes
		}
	}
	return confirmOther
}

func firstWord(s string) string {
	words := wordPattern.FindAllString(strings.ToLower(s), 1)
	if len(words) == 0 {
		return ""
	}
	return words[0]
}

// keyedMutex serialises work per conversation id.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[int64]*refMutex)}
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *keyedMutex) Lock(key int64) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
