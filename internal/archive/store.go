// Package archive exports expired general conversations to S3 before the
// session cleanup deletes them.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/wolfman30/maison-chat-platform/internal/conversation"
	"github.com/wolfman30/maison-chat-platform/pkg/logging"
)

// S3API is the subset of the S3 client used by Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store writes archived conversations to S3.
type Store struct {
	bucket   string
	s3Client S3API
	now      func() time.Time
	logger   *logging.Logger
}

var _ conversation.Archiver = (*Store)(nil)

// NewStore creates an archive Store. If bucket is empty, all operations are no-ops.
func NewStore(s3Client S3API, bucket string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		bucket:   bucket,
		s3Client: s3Client,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger,
	}
}

// Enabled returns true if archival is configured.
func (s *Store) Enabled() bool {
	return s != nil && s.bucket != "" && s.s3Client != nil
}

// ArchiveExpired writes one conversation and appends it to the monthly manifest.
func (s *Store) ArchiveExpired(ctx context.Context, conv conversation.GeneralConversation, msgs []conversation.Message) error {
	if !s.Enabled() {
		return nil
	}
	rec := NewRecord(conv, msgs, s.now())
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("archive: marshal record: %w", err)
	}

	at := rec.ArchivedAt
	key := fmt.Sprintf("conversations/v1/by-date/%d/%02d/%02d/%s.json", at.Year(), at.Month(), at.Day(), rec.ConversationID)
	if _, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return fmt.Errorf("archive: s3 put %s: %w", key, err)
	}
	s.logger.Info("archived expired conversation", "conversation_id", conv.ID, "s3_key", key, "message_count", rec.MessageCount)

	entry := ManifestEntry{
		ConversationID: rec.ConversationID,
		S3Key:          key,
		MessageCount:   rec.MessageCount,
		LastIntent:     conv.Context.LastIntent,
		ArchivedAt:     at.Format(time.RFC3339),
	}
	if err := s.appendManifest(ctx, entry, at); err != nil {
		// The record itself is stored; a missing manifest line is recoverable.
		s.logger.Warn("failed to append archive manifest", "conversation_id", conv.ID, "error", err)
	}
	return nil
}

// appendManifest does a read-modify-write since S3 has no append.
func (s *Store) appendManifest(ctx context.Context, entry ManifestEntry, at time.Time) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: marshal manifest entry: %w", err)
	}
	key := fmt.Sprintf("conversations/v1/manifests/%d-%02d.jsonl", at.Year(), at.Month())

	var existing []byte
	out, err := s.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	switch {
	case err == nil:
		existing, err = io.ReadAll(out.Body)
		out.Body.Close()
		if err != nil {
			return fmt.Errorf("archive: read manifest: %w", err)
		}
	case isNoSuchKey(err):
	default:
		return fmt.Errorf("archive: get manifest: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(existing)
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		buf.WriteByte('\n')
	}
	buf.Write(line)
	buf.WriteByte('\n')

	if _, err := s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("application/x-ndjson"),
	}); err != nil {
		return fmt.Errorf("archive: s3 put manifest: %w", err)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	var nsk *s3types.NoSuchKey
	return errors.As(err, &nsk)
}
