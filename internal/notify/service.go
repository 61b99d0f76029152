package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/wolfman30/maison-chat-platform/internal/property"
	"github.com/wolfman30/maison-chat-platform/pkg/logging"
)

// Directory resolves a user id to contact details.
type Directory interface {
	UserDashboard(ctx context.Context, userID string) (*property.UserDashboard, error)
}

// Service turns counterpart events into emails.
type Service struct {
	email     EmailSender
	directory Directory
	logger    *logging.Logger
}

func NewService(email EmailSender, directory Directory, logger *logging.Logger) *Service {
	if email == nil {
		panic("notify: email sender cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{email: email, directory: directory, logger: logger}
}

// Deliver emails the event's recipient. Recipients without a resolvable
// address are skipped without error.
func (s *Service) Deliver(ctx context.Context, evt Event) error {
	if strings.TrimSpace(evt.RecipientID) == "" {
		s.logger.Debug("notify: event has no recipient, skipping", "type", evt.Type)
		return nil
	}
	if s.directory == nil {
		s.logger.Debug("notify: no user directory configured, skipping", "type", evt.Type)
		return nil
	}

	dash, err := s.directory.UserDashboard(ctx, evt.RecipientID)
	if err != nil {
		if errors.Is(err, property.ErrNotFound) || errors.Is(err, property.ErrDisabled) {
			s.logger.Warn("notify: recipient not resolvable", "recipient_id", evt.RecipientID, "error", err)
			return nil
		}
		return fmt.Errorf("notify: resolve recipient: %w", err)
	}
	if dash == nil || dash.User.Email == "" {
		s.logger.Warn("notify: recipient has no email address", "recipient_id", evt.RecipientID)
		return nil
	}

	subject, body := render(evt)
	return s.email.Send(ctx, EmailMessage{
		To:      dash.User.Email,
		ToName:  dash.User.DisplayName(),
		Subject: subject,
		Body:    body,
		HTML:    "<p>" + strings.ReplaceAll(html.EscapeString(body), "\n", "<br>") + "</p>",
	})
}

func render(evt Event) (subject, body string) {
	switch evt.Type {
	case EventQuestionForwarded:
		subject = fmt.Sprintf("New buyer question about property %s", evt.PropertyID)
		body = fmt.Sprintf("A buyer has asked a question about your property %s:\n\n%s\n\nReply from your MaiSON dashboard to answer.", evt.PropertyID, evt.Text)
	case EventQuestionAnswered:
		subject = fmt.Sprintf("The seller answered your question about property %s", evt.PropertyID)
		body = fmt.Sprintf("The seller has responded to your question:\n\n%s", evt.Text)
	default:
		subject = fmt.Sprintf("New message about property %s", evt.PropertyID)
		body = fmt.Sprintf("You have a new %s message:\n\n%s", strings.ReplaceAll(evt.MessageType, "_", " "), evt.Text)
	}
	return subject, truncate(body, 4000)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
