package conversation

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/maison-chat-platform/internal/intent"
	"github.com/wolfman30/maison-chat-platform/internal/property"
	"github.com/wolfman30/maison-chat-platform/pkg/logging"
)

const (
	selectPropertyPrompt = "Please select a property first so I can answer questions about it."
	noCounterpartReply   = "I can only pass messages between buyers and sellers from within a property conversation. Please open the property you're interested in and send your message there."
)

// Turn is everything the router knows about the conversation an inbound
// message belongs to.
type Turn struct {
	Kind           Kind
	ConversationID int64
	// MessageID is the persisted id of the inbound message; it is the
	// idempotency key for forwarded questions.
	MessageID     int64
	UserID        string
	PropertyID    string
	Role          Role
	CounterpartID string
	Listing       *property.Listing
	History       []HistoryEntry
}

// PropertyScoped reports whether the turn belongs to a property conversation.
func (t Turn) PropertyScoped() bool {
	return t.Kind == KindProperty && t.ConversationID != 0
}

// SpecialistRequest is what a specialist handler receives.
type SpecialistRequest struct {
	Message    string
	Intent     intent.Intent
	Kind       Kind
	UserID     string
	PropertyID string
	Role       Role
	Listing    *property.Listing
	History    []HistoryEntry
}

// PropertySpecialist answers property, price and booking questions for one property.
// Implementations recover from generation failures themselves.
type PropertySpecialist interface {
	AnswerProperty(ctx context.Context, req SpecialistRequest) (string, error)
}

// CommunicationSpecialist handles every intent that is not property-scoped or cross-party.
type CommunicationSpecialist interface {
	Respond(ctx context.Context, req SpecialistRequest) (string, error)
}

// IntentClassifier never fails; unmatched input maps to intent.Unknown.
type IntentClassifier interface {
	Classify(ctx context.Context, message string) intent.Intent
}

// CrossPartyHandler runs the buyer/seller question workflow for one turn.
type CrossPartyHandler interface {
	Handle(ctx context.Context, message string, turn Turn) (WorkflowReply, error)
	HasPending(ctx context.Context, conversationID int64) bool
}

// Result is the router's output for one turn. Intent is always the
// classified intent; Outcome is set only when the question workflow answered.
type Result struct {
	Response string
	Intent   intent.Intent
	Outcome  string
}

// MessageRouter classifies a message and dispatches it. It never touches storage
// itself and never swallows handler errors.
type MessageRouter struct {
	classifier    IntentClassifier
	property      PropertySpecialist
	communication CommunicationSpecialist
	workflow      CrossPartyHandler
	tracer        trace.Tracer
	logger        *logging.Logger
}

func NewMessageRouter(classifier IntentClassifier, prop PropertySpecialist, comm CommunicationSpecialist, workflow CrossPartyHandler, logger *logging.Logger) *MessageRouter {
	if classifier == nil || prop == nil || comm == nil || workflow == nil {
		panic("conversation: router requires classifier, specialists and workflow")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &MessageRouter{
		classifier:    classifier,
		property:      prop,
		communication: comm,
		workflow:      workflow,
		tracer:        otel.Tracer("maison.internal.conversation.router"),
		logger:        logger,
	}
}

// Route classifies message and returns the response for this turn.
func (r *MessageRouter) Route(ctx context.Context, message string, turn Turn) (Result, error) {
	ctx, span := r.tracer.Start(ctx, "conversation.route")
	defer span.End()

	it := r.classifier.Classify(ctx, message)
	res := Result{Intent: it}

	// A buyer answering "should I forward this?" classifies as an open-ended
	// intent, so while a question is pending those turns stay in the workflow.
	// Topical intents such as greetings keep their normal handler and leave the
	// pending question untouched.
	toWorkflow := it.IsCrossParty()
	if !toWorkflow && it.IsOpenEnded() && turn.PropertyScoped() && turn.Role == RoleBuyer {
		toWorkflow = r.workflow.HasPending(ctx, turn.ConversationID)
	}

	span.SetAttributes(
		attribute.String("chat.intent", it.String()),
		attribute.Bool("chat.workflow", toWorkflow),
		attribute.Int64("chat.conversation_id", turn.ConversationID),
	)
	r.logger.Debug("routing message", "intent", it.String(), "workflow", toWorkflow, "kind", turn.Kind, "conversation_id", turn.ConversationID)

	var (
		text string
		err  error
	)
	switch {
	case toWorkflow:
		if !turn.PropertyScoped() {
			res.Response = noCounterpartReply
			return res, nil
		}
		var reply WorkflowReply
		reply, err = r.workflow.Handle(ctx, message, turn)
		text, res.Outcome = reply.Text, reply.Outcome
	case it.IsPropertyScoped():
		propertyID := strings.TrimSpace(turn.PropertyID)
		if propertyID == "" && turn.Listing != nil {
			propertyID = turn.Listing.PropertyID
		}
		if propertyID == "" {
			res.Response = selectPropertyPrompt
			return res, nil
		}
		text, err = r.property.AnswerProperty(ctx, r.request(message, it, turn, propertyID))
	default:
		text, err = r.communication.Respond(ctx, r.request(message, it, turn, turn.PropertyID))
	}
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}
	res.Response = text
	return res, nil
}

func (r *MessageRouter) request(message string, it intent.Intent, turn Turn, propertyID string) SpecialistRequest {
	return SpecialistRequest{
		Message:    message,
		Intent:     it,
		Kind:       turn.Kind,
		UserID:     turn.UserID,
		PropertyID: propertyID,
		Role:       turn.Role,
		Listing:    turn.Listing,
		History:    turn.History,
	}
}
