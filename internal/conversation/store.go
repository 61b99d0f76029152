package conversation

import (
	"context"
	"time"
)

// Repository is the persistence surface used by the chat engine. Lookups that
// find nothing return ErrNotFound.
type Repository interface {
	CreateGeneralConversation(ctx context.Context, c *GeneralConversation) error
	GeneralConversation(ctx context.Context, id int64) (*GeneralConversation, error)
	GeneralConversationBySession(ctx context.Context, sessionID string) (*GeneralConversation, error)
	UpdateGeneralConversation(ctx context.Context, c *GeneralConversation) error
	GeneralConversationsForUser(ctx context.Context, userID string) ([]GeneralConversation, error)

	CreatePropertyConversation(ctx context.Context, c *PropertyConversation) error
	PropertyConversation(ctx context.Context, id int64) (*PropertyConversation, error)
	PropertyConversationBySession(ctx context.Context, sessionID string) (*PropertyConversation, error)
	UpdatePropertyConversation(ctx context.Context, c *PropertyConversation) error
	PropertyConversationsForUser(ctx context.Context, userID string) ([]PropertyConversation, error)
	// CounterpartConversations lists property conversations whose counterpart is userID.
	CounterpartConversations(ctx context.Context, userID string) ([]PropertyConversation, error)

	CreateMessage(ctx context.Context, m *Message) error
	// ListMessages returns messages oldest first; limit > 0 keeps only the most recent.
	ListMessages(ctx context.Context, ref Ref, limit int) ([]Message, error)

	CreateCrossReference(ctx context.Context, ref *CrossReference) error
	CrossReferences(ctx context.Context, conv Ref) ([]CrossReference, error)

	// CreateQuestion inserts q unless a question already exists for its
	// originating message; created reports whether a row was written.
	CreateQuestion(ctx context.Context, q *Question) (created bool, err error)
	QuestionByMessageID(ctx context.Context, messageID int64) (*Question, error)
	// QuestionForUpdate loads a question and locks it for the enclosing transaction.
	QuestionForUpdate(ctx context.Context, id int64) (*Question, error)
	UpdateQuestion(ctx context.Context, q *Question) error
	QuestionsForSeller(ctx context.Context, sellerID string, status QuestionStatus) ([]Question, error)

	// ExpiredGeneralConversations lists anonymous conversations idle since before
	// anonCutoff and authenticated ones idle since before authCutoff.
	ExpiredGeneralConversations(ctx context.Context, anonCutoff, authCutoff time.Time) ([]GeneralConversation, error)
	DeleteExpiredGeneralConversations(ctx context.Context, anonCutoff, authCutoff time.Time) (int64, error)
}

// Store is a Repository that can run a unit of work atomically.
type Store interface {
	Repository
	// InTx runs fn in one transaction; any error rolls back every write made through repo.
	InTx(ctx context.Context, fn func(repo Repository) error) error
}
