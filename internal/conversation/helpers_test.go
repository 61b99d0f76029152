package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/maison-chat-platform/internal/intent"
	"github.com/wolfman30/maison-chat-platform/internal/llm"
	"github.com/wolfman30/maison-chat-platform/internal/notify"
	"github.com/wolfman30/maison-chat-platform/internal/property"
)

// scriptedLLM answers by matching a substring of the system prompt.
type scriptedLLM struct {
	mu      sync.Mutex
	replies map[string]string
	err     error
	calls   []llm.Request
}

func (s *scriptedLLM) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	if s.err != nil {
		return llm.Response{}, s.err
	}
	var system string
	for _, m := range req.Messages {
		if m.Role == llm.RoleSystem {
			system += m.Content
		}
	}
	system += strings.Join(req.System, "\n")
	for key, reply := range s.replies {
		if strings.Contains(system, key) {
			return llm.Response{Text: reply}, nil
		}
	}
	return llm.Response{}, errors.New("no scripted reply")
}

type fakePublisher struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, evt notify.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, evt)
	return f.err
}

func (f *fakePublisher) Events() []notify.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notify.Event(nil), f.events...)
}

type outcomeCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func newOutcomeCounter() *outcomeCounter {
	return &outcomeCounter{counts: map[string]int{}}
}

func (o *outcomeCounter) ObserveQuestion(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counts[outcome]++
}

func (o *outcomeCounter) get(outcome string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counts[outcome]
}

type fixedClassifier struct {
	byMessage map[string]intent.Intent
}

func (f fixedClassifier) Classify(_ context.Context, message string) intent.Intent {
	if it, ok := f.byMessage[message]; ok {
		return it
	}
	return intent.Unknown
}

type listingLookup map[string]property.Listing

func (l listingLookup) Listing(_ context.Context, id string) (*property.Listing, error) {
	listing, ok := l[id]
	if !ok {
		return nil, property.ErrNotFound
	}
	return &listing, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testListing() *property.Listing {
	return &property.Listing{
		PropertyID: "prop-1",
		Price:      325000,
		Bedrooms:   3,
		SellerID:   "seller-1",
		Address:    &property.Address{Street: "Elm Road", City: "York"},
	}
}

// seedPropertyConversation stores a buyer conversation plus one inbound message
// and returns the matching turn.
func seedPropertyConversation(store *MemoryStore, text string) Turn {
	ctx := context.Background()
	conv, _ := NewPropertyConversation("buyer-1", "prop-1", "buyer", "seller-1", time.Now())
	_ = store.CreatePropertyConversation(ctx, conv)
	msg := &Message{Conversation: PropertyRef(conv.ID), Role: MessageRoleUser, Content: text}
	_ = store.CreateMessage(ctx, msg)
	return Turn{
		Kind:           KindProperty,
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		UserID:         conv.UserID,
		PropertyID:     conv.PropertyID,
		Role:           RoleBuyer,
		CounterpartID:  conv.CounterpartID,
		Listing:        testListing(),
	}
}
