package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const defaultPendingTTL = 24 * time.Hour

// RedisPendingStore keeps the ledger in Redis so it survives restarts and is
// shared across replicas.
type RedisPendingStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

func NewRedisPendingStore(client *redis.Client, ttl time.Duration) *RedisPendingStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	return &RedisPendingStore{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("maison.internal.conversation.pending"),
	}
}

var _ PendingQuestionStore = (*RedisPendingStore)(nil)

func (s *RedisPendingStore) Put(ctx context.Context, conversationID int64, q PendingQuestion) error {
	ctx, span := s.tracer.Start(ctx, "conversation.pending.put")
	defer span.End()

	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(q)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to marshal pending question: %w", err)
	}
	if err := s.redis.Set(ctx, pendingKey(conversationID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist pending question: %w", err)
	}
	return nil
}

func (s *RedisPendingStore) Get(ctx context.Context, conversationID int64) (*PendingQuestion, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.pending.get")
	defer span.End()
	return s.decode(span, s.redis.Get(ctx, pendingKey(conversationID)))
}

func (s *RedisPendingStore) Take(ctx context.Context, conversationID int64) (*PendingQuestion, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.pending.take")
	defer span.End()
	return s.decode(span, s.redis.GetDel(ctx, pendingKey(conversationID)))
}

func (s *RedisPendingStore) Delete(ctx context.Context, conversationID int64) error {
	ctx, span := s.tracer.Start(ctx, "conversation.pending.delete")
	defer span.End()
	if err := s.redis.Del(ctx, pendingKey(conversationID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to delete pending question: %w", err)
	}
	return nil
}

func (s *RedisPendingStore) decode(span trace.Span, cmd *redis.StringCmd) (*PendingQuestion, error) {
	data, err := cmd.Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load pending question: %w", err)
	}
	var q PendingQuestion
	if err := json.Unmarshal(data, &q); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to decode pending question: %w", err)
	}
	return &q, nil
}

func pendingKey(conversationID int64) string {
	return fmt.Sprintf("pending_question:%d", conversationID)
}
