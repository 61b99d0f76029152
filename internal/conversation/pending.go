package conversation

import (
	"context"
	"sync"
	"time"
)

// PendingQuestion is an unconfirmed question awaiting the buyer's go-ahead.
type PendingQuestion struct {
	Text      string    `json:"text" dynamodbav:"text"`
	MessageID int64     `json:"message_id" dynamodbav:"messageId"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"createdAt"`
}

// PendingQuestionStore is the short-lived ledger behind the confirm-before-forward
// flow. Get returns nil when no question is pending.
type PendingQuestionStore interface {
	Put(ctx context.Context, conversationID int64, q PendingQuestion) error
	Get(ctx context.Context, conversationID int64) (*PendingQuestion, error)
	// Take removes and returns the pending question atomically.
	Take(ctx context.Context, conversationID int64) (*PendingQuestion, error)
	Delete(ctx context.Context, conversationID int64) error
}

// MemoryPendingStore keeps the ledger in process memory.
type MemoryPendingStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[int64]pendingEntry
}

type pendingEntry struct {
	question PendingQuestion
	storedAt time.Time
}

func NewMemoryPendingStore(ttl time.Duration) *MemoryPendingStore {
	return &MemoryPendingStore{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[int64]pendingEntry),
	}
}

var _ PendingQuestionStore = (*MemoryPendingStore)(nil)

func (s *MemoryPendingStore) Put(_ context.Context, conversationID int64, q PendingQuestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	s.entries[conversationID] = pendingEntry{question: q, storedAt: now}
	return nil
}

func (s *MemoryPendingStore) Get(_ context.Context, conversationID int64) (*PendingQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live(conversationID), nil
}

func (s *MemoryPendingStore) Take(_ context.Context, conversationID int64) (*PendingQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.live(conversationID)
	delete(s.entries, conversationID)
	return q, nil
}

func (s *MemoryPendingStore) Delete(_ context.Context, conversationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, conversationID)
	return nil
}

func (s *MemoryPendingStore) live(conversationID int64) *PendingQuestion {
	e, ok := s.entries[conversationID]
	if !ok {
		return nil
	}
	if s.ttl > 0 && s.now().Sub(e.storedAt) >= s.ttl {
		delete(s.entries, conversationID)
		return nil
	}
	q := e.question
	return &q
}
