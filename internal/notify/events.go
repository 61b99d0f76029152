package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType names a counterpart notification.
type EventType string

const (
	EventQuestionForwarded EventType = "question.forwarded"
	EventQuestionAnswered  EventType = "question.answered"
	EventMessageRelayed    EventType = "message.relayed"
)

// Event tells one party that the other side of a property conversation did something.
type Event struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	PropertyID     string    `json:"property_id"`
	ConversationID int64     `json:"conversation_id,omitempty"`
	QuestionID     int64     `json:"question_id,omitempty"`
	RecipientID    string    `json:"recipient_id"`
	RecipientRole  string    `json:"recipient_role"`
	SenderID       string    `json:"sender_id,omitempty"`
	Text           string    `json:"text"`
	MessageType    string    `json:"message_type,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Publisher hands events to whatever delivers them.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// QueuePublisher serialises events onto a Queue.
type QueuePublisher struct {
	queue Queue
}

func NewQueuePublisher(queue Queue) *QueuePublisher {
	if queue == nil {
		panic("notify: queue cannot be nil")
	}
	return &QueuePublisher{queue: queue}
}

func (p *QueuePublisher) Publish(ctx context.Context, evt Event) error {
	body, err := encodeEvent(evt)
	if err != nil {
		return err
	}
	if err := p.queue.Send(ctx, body); err != nil {
		return fmt.Errorf("notify: publish %s: %w", evt.Type, err)
	}
	return nil
}

func encodeEvent(evt Event) (string, error) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now().UTC()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return "", fmt.Errorf("notify: failed to encode event: %w", err)
	}
	return string(data), nil
}

func decodeEvent(body string) (Event, error) {
	var evt Event
	if err := json.Unmarshal([]byte(body), &evt); err != nil {
		return Event{}, fmt.Errorf("notify: failed to decode event: %w", err)
	}
	return evt, nil
}

var _ Publisher = (*QueuePublisher)(nil)
