package conversation

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for development and tests. Transactions
// run against a copy of the state that replaces the original on success.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

var _ Store = (*MemoryStore)(nil)

var errDuplicateSession = errors.New("conversation: duplicate session id")

type memState struct {
	nextID    int64
	general   map[int64]GeneralConversation
	property  map[int64]PropertyConversation
	messages  []Message
	refs      []CrossReference
	questions map[int64]Question
}

func newMemState() *memState {
	return &memState{
		general:   make(map[int64]GeneralConversation),
		property:  make(map[int64]PropertyConversation),
		questions: make(map[int64]Question),
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		nextID:    s.nextID,
		general:   make(map[int64]GeneralConversation, len(s.general)),
		property:  make(map[int64]PropertyConversation, len(s.property)),
		messages:  append([]Message(nil), s.messages...),
		refs:      append([]CrossReference(nil), s.refs...),
		questions: make(map[int64]Question, len(s.questions)),
	}
	for k, v := range s.general {
		v.Context.TopicsDiscussed = append([]string(nil), v.Context.TopicsDiscussed...)
		c.general[k] = v
	}
	for k, v := range s.property {
		c.property[k] = v
	}
	for k, v := range s.questions {
		c.questions[k] = v
	}
	return c
}

func (s *memState) id() int64 {
	s.nextID++
	return s.nextID
}

func (m *MemoryStore) InTx(ctx context.Context, fn func(repo Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	working := m.state.clone()
	if err := fn(working); err != nil {
		return err
	}
	m.state = working
	return nil
}

func (m *MemoryStore) with(fn func(s *memState) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.state)
}

func (s *memState) CreateGeneralConversation(_ context.Context, c *GeneralConversation) error {
	for _, existing := range s.general {
		if existing.SessionID == c.SessionID {
			return errDuplicateSession
		}
	}
	c.ID = s.id()
	s.general[c.ID] = *c
	return nil
}

func (s *memState) GeneralConversation(_ context.Context, id int64) (*GeneralConversation, error) {
	c, ok := s.general[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *memState) GeneralConversationBySession(_ context.Context, sessionID string) (*GeneralConversation, error) {
	for _, c := range s.general {
		if c.SessionID == sessionID {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memState) UpdateGeneralConversation(_ context.Context, c *GeneralConversation) error {
	existing, ok := s.general[c.ID]
	if !ok {
		return ErrNotFound
	}
	existing.LastActivity = c.LastActivity
	existing.Context = c.Context
	s.general[c.ID] = existing
	return nil
}

func (s *memState) GeneralConversationsForUser(_ context.Context, userID string) ([]GeneralConversation, error) {
	var out []GeneralConversation
	for _, c := range s.general {
		if c.UserID != "" && c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	return out, nil
}

func (s *memState) CreatePropertyConversation(_ context.Context, c *PropertyConversation) error {
	for _, existing := range s.property {
		if existing.SessionID == c.SessionID {
			return errDuplicateSession
		}
	}
	c.ID = s.id()
	s.property[c.ID] = *c
	return nil
}

func (s *memState) PropertyConversation(_ context.Context, id int64) (*PropertyConversation, error) {
	c, ok := s.property[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *memState) PropertyConversationBySession(_ context.Context, sessionID string) (*PropertyConversation, error) {
	for _, c := range s.property {
		if c.SessionID == sessionID {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memState) UpdatePropertyConversation(_ context.Context, c *PropertyConversation) error {
	existing, ok := s.property[c.ID]
	if !ok {
		return ErrNotFound
	}
	existing.LastActivity = c.LastActivity
	existing.Status = c.Status
	existing.Context = c.Context
	s.property[c.ID] = existing
	return nil
}

func (s *memState) filterProperty(match func(PropertyConversation) bool) []PropertyConversation {
	var out []PropertyConversation
	for _, c := range s.property {
		if match(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivity.After(out[j].LastActivity) })
	return out
}

func (s *memState) PropertyConversationsForUser(_ context.Context, userID string) ([]PropertyConversation, error) {
	return s.filterProperty(func(c PropertyConversation) bool { return c.UserID == userID }), nil
}

func (s *memState) CounterpartConversations(_ context.Context, userID string) ([]PropertyConversation, error) {
	return s.filterProperty(func(c PropertyConversation) bool { return c.CounterpartID == userID }), nil
}

func (s *memState) exists(ref Ref) bool {
	switch ref.Kind {
	case KindGeneral:
		_, ok := s.general[ref.ID]
		return ok
	case KindProperty:
		_, ok := s.property[ref.ID]
		return ok
	}
	return false
}

func (s *memState) CreateMessage(_ context.Context, m *Message) error {
	if !s.exists(m.Conversation) {
		return ErrNotFound
	}
	m.ID = s.id()
	stored := *m
	if m.Metadata != nil {
		meta := *m.Metadata
		stored.Metadata = &meta
	}
	s.messages = append(s.messages, stored)
	return nil
}

func (s *memState) ListMessages(_ context.Context, ref Ref, limit int) ([]Message, error) {
	var out []Message
	for _, m := range s.messages {
		if m.Conversation == ref {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *memState) CreateCrossReference(_ context.Context, ref *CrossReference) error {
	if !s.exists(ref.Conversation) {
		return ErrNotFound
	}
	ref.ID = s.id()
	s.refs = append(s.refs, *ref)
	return nil
}

func (s *memState) CrossReferences(_ context.Context, conv Ref) ([]CrossReference, error) {
	var out []CrossReference
	for _, r := range s.refs {
		if r.Conversation == conv {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memState) CreateQuestion(_ context.Context, q *Question) (bool, error) {
	for _, existing := range s.questions {
		if existing.QuestionMessageID == q.QuestionMessageID {
			return false, nil
		}
	}
	q.ID = s.id()
	s.questions[q.ID] = *q
	return true, nil
}

func (s *memState) QuestionByMessageID(_ context.Context, messageID int64) (*Question, error) {
	for _, q := range s.questions {
		if q.QuestionMessageID == messageID {
			return &q, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memState) QuestionForUpdate(_ context.Context, id int64) (*Question, error) {
	q, ok := s.questions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &q, nil
}

func (s *memState) UpdateQuestion(_ context.Context, q *Question) error {
	if _, ok := s.questions[q.ID]; !ok {
		return ErrNotFound
	}
	s.questions[q.ID] = *q
	return nil
}

func (s *memState) QuestionsForSeller(_ context.Context, sellerID string, status QuestionStatus) ([]Question, error) {
	var out []Question
	for _, q := range s.questions {
		if q.SellerID == sellerID && (status == "" || q.Status == status) {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func expired(c GeneralConversation, anonCutoff, authCutoff time.Time) bool {
	if c.IsLoggedIn {
		return c.LastActivity.Before(authCutoff)
	}
	return c.LastActivity.Before(anonCutoff)
}

func (s *memState) ExpiredGeneralConversations(_ context.Context, anonCutoff, authCutoff time.Time) ([]GeneralConversation, error) {
	var out []GeneralConversation
	for _, c := range s.general {
		if expired(c, anonCutoff, authCutoff) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memState) DeleteExpiredGeneralConversations(_ context.Context, anonCutoff, authCutoff time.Time) (int64, error) {
	var deleted int64
	for id, c := range s.general {
		if !expired(c, anonCutoff, authCutoff) {
			continue
		}
		delete(s.general, id)
		deleted++
		s.messages = dropMessages(s.messages, GeneralRef(id))
		s.refs = dropRefs(s.refs, GeneralRef(id))
	}
	return deleted, nil
}

func dropMessages(in []Message, ref Ref) []Message {
	out := in[:0]
	for _, m := range in {
		if m.Conversation != ref {
			out = append(out, m)
		}
	}
	return out
}

func dropRefs(in []CrossReference, ref Ref) []CrossReference {
	out := in[:0]
	for _, r := range in {
		if r.Conversation != ref {
			out = append(out, r)
		}
	}
	return out
}

// MemoryStore forwards every Repository call to the current state under lock.

func (m *MemoryStore) CreateGeneralConversation(ctx context.Context, c *GeneralConversation) error {
	return m.with(func(s *memState) error { return s.CreateGeneralConversation(ctx, c) })
}

func (m *MemoryStore) GeneralConversation(ctx context.Context, id int64) (out *GeneralConversation, err error) {
	_ = m.with(func(s *memState) error { out, err = s.GeneralConversation(ctx, id); return nil })
	return
}

func (m *MemoryStore) GeneralConversationBySession(ctx context.Context, sessionID string) (out *GeneralConversation, err error) {
	_ = m.with(func(s *memState) error { out, err = s.GeneralConversationBySession(ctx, sessionID); return nil })
	return
}

func (m *MemoryStore) UpdateGeneralConversation(ctx context.Context, c *GeneralConversation) error {
	return m.with(func(s *memState) error { return s.UpdateGeneralConversation(ctx, c) })
}

func (m *MemoryStore) GeneralConversationsForUser(ctx context.Context, userID string) (out []GeneralConversation, err error) {
	_ = m.with(func(s *memState) error { out, err = s.GeneralConversationsForUser(ctx, userID); return nil })
	return
}

func (m *MemoryStore) CreatePropertyConversation(ctx context.Context, c *PropertyConversation) error {
	return m.with(func(s *memState) error { return s.CreatePropertyConversation(ctx, c) })
}

func (m *MemoryStore) PropertyConversation(ctx context.Context, id int64) (out *PropertyConversation, err error) {
	_ = m.with(func(s *memState) error { out, err = s.PropertyConversation(ctx, id); return nil })
	return
}

func (m *MemoryStore) PropertyConversationBySession(ctx context.Context, sessionID string) (out *PropertyConversation, err error) {
	_ = m.with(func(s *memState) error { out, err = s.PropertyConversationBySession(ctx, sessionID); return nil })
	return
}

func (m *MemoryStore) UpdatePropertyConversation(ctx context.Context, c *PropertyConversation) error {
	return m.with(func(s *memState) error { return s.UpdatePropertyConversation(ctx, c) })
}

func (m *MemoryStore) PropertyConversationsForUser(ctx context.Context, userID string) (out []PropertyConversation, err error) {
	_ = m.with(func(s *memState) error { out, err = s.PropertyConversationsForUser(ctx, userID); return nil })
	return
}

func (m *MemoryStore) CounterpartConversations(ctx context.Context, userID string) (out []PropertyConversation, err error) {
	_ = m.with(func(s *memState) error { out, err = s.CounterpartConversations(ctx, userID); return nil })
	return
}

func (m *MemoryStore) CreateMessage(ctx context.Context, msg *Message) error {
	return m.with(func(s *memState) error { return s.CreateMessage(ctx, msg) })
}

func (m *MemoryStore) ListMessages(ctx context.Context, ref Ref, limit int) (out []Message, err error) {
	_ = m.with(func(s *memState) error { out, err = s.ListMessages(ctx, ref, limit); return nil })
	return
}

func (m *MemoryStore) CreateCrossReference(ctx context.Context, ref *CrossReference) error {
	return m.with(func(s *memState) error { return s.CreateCrossReference(ctx, ref) })
}

func (m *MemoryStore) CrossReferences(ctx context.Context, conv Ref) (out []CrossReference, err error) {
	_ = m.with(func(s *memState) error { out, err = s.CrossReferences(ctx, conv); return nil })
	return
}

func (m *MemoryStore) CreateQuestion(ctx context.Context, q *Question) (created bool, err error) {
	_ = m.with(func(s *memState) error { created, err = s.CreateQuestion(ctx, q); return nil })
	return
}

func (m *MemoryStore) QuestionByMessageID(ctx context.Context, messageID int64) (out *Question, err error) {
	_ = m.with(func(s *memState) error { out, err = s.QuestionByMessageID(ctx, messageID); return nil })
	return
}

func (m *MemoryStore) QuestionForUpdate(ctx context.Context, id int64) (out *Question, err error) {
	_ = m.with(func(s *memState) error { out, err = s.QuestionForUpdate(ctx, id); return nil })
	return
}

func (m *MemoryStore) UpdateQuestion(ctx context.Context, q *Question) error {
	return m.with(func(s *memState) error { return s.UpdateQuestion(ctx, q) })
}

func (m *MemoryStore) QuestionsForSeller(ctx context.Context, sellerID string, status QuestionStatus) (out []Question, err error) {
	_ = m.with(func(s *memState) error { out, err = s.QuestionsForSeller(ctx, sellerID, status); return nil })
	return
}

func (m *MemoryStore) ExpiredGeneralConversations(ctx context.Context, anonCutoff, authCutoff time.Time) (out []GeneralConversation, err error) {
	_ = m.with(func(s *memState) error {
		out, err = s.ExpiredGeneralConversations(ctx, anonCutoff, authCutoff)
		return nil
	})
	return
}

func (m *MemoryStore) DeleteExpiredGeneralConversations(ctx context.Context, anonCutoff, authCutoff time.Time) (n int64, err error) {
	_ = m.with(func(s *memState) error {
		n, err = s.DeleteExpiredGeneralConversations(ctx, anonCutoff, authCutoff)
		return nil
	})
	return
}
