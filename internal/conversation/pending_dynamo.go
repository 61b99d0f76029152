package conversation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wolfman30/maison-chat-platform/pkg/logging"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type pendingRecord struct {
	ConversationID string `dynamodbav:"conversationId"`
	PendingQuestion
	ExpiresAt int64 `dynamodbav:"expiresAt,omitempty"`
}

// DynamoPendingStore persists the ledger in a DynamoDB table keyed by
// conversationId with a TTL attribute named expiresAt.
type DynamoPendingStore struct {
	client    dynamoAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
	logger    *logging.Logger
}

var _ PendingQuestionStore = (*DynamoPendingStore)(nil)

func NewDynamoPendingStore(client dynamoAPI, tableName string, ttl time.Duration, logger *logging.Logger) *DynamoPendingStore {
	if client == nil {
		panic("conversation: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("conversation: table name cannot be empty")
	}
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoPendingStore{
		client:    client,
		tableName: tableName,
		ttl:       ttl,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger,
	}
}

func (s *DynamoPendingStore) Put(ctx context.Context, conversationID int64, q PendingQuestion) error {
	now := s.now()
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	item, err := attributevalue.MarshalMap(pendingRecord{
		ConversationID:  strconv.FormatInt(conversationID, 10),
		PendingQuestion: q,
		ExpiresAt:       now.Add(s.ttl).Unix(),
	})
	if err != nil {
		return fmt.Errorf("conversation: failed to marshal pending question: %w", err)
	}
	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("conversation: failed to persist pending question: %w", err)
	}
	return nil
}

func (s *DynamoPendingStore) Get(ctx context.Context, conversationID int64) (*PendingQuestion, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            pendingItemKey(conversationID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to fetch pending question: %w", err)
	}
	return s.decode(out.Item)
}

// Take relies on DeleteItem returning the old image, so two concurrent takers
// never both receive the question.
func (s *DynamoPendingStore) Take(ctx context.Context, conversationID int64) (*PendingQuestion, error) {
	out, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(s.tableName),
		Key:          pendingItemKey(conversationID),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to take pending question: %w", err)
	}
	return s.decode(out.Attributes)
}

func (s *DynamoPendingStore) Delete(ctx context.Context, conversationID int64) error {
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       pendingItemKey(conversationID),
	}); err != nil {
		return fmt.Errorf("conversation: failed to delete pending question: %w", err)
	}
	return nil
}

func (s *DynamoPendingStore) decode(item map[string]types.AttributeValue) (*PendingQuestion, error) {
	if len(item) == 0 {
		return nil, nil
	}
	var rec pendingRecord
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, fmt.Errorf("conversation: failed to decode pending question: %w", err)
	}
	// DynamoDB TTL deletion is lazy; treat lapsed rows as absent.
	if rec.ExpiresAt > 0 && s.now().Unix() >= rec.ExpiresAt {
		s.logger.Debug("ignoring lapsed pending question", "conversation_id", rec.ConversationID)
		return nil, nil
	}
	q := rec.PendingQuestion
	return &q, nil
}

func pendingItemKey(conversationID int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"conversationId": &types.AttributeValueMemberS{Value: strconv.FormatInt(conversationID, 10)},
	}
}
