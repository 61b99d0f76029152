package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/maison-chat-platform/internal/property"
)

type mockSendGrid struct {
	sent   []*mail.SGMailV3
	status int
	err    error
}

func (m *mockSendGrid) SendWithContext(_ context.Context, email *mail.SGMailV3) (*rest.Response, error) {
	m.sent = append(m.sent, email)
	if m.err != nil {
		return nil, m.err
	}
	status := m.status
	if status == 0 {
		status = 202
	}
	return &rest.Response{StatusCode: status}, nil
}

type mockSES struct {
	input *sesv2.SendEmailInput
	err   error
}

func (m *mockSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	m.input = in
	if m.err != nil {
		return nil, m.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

type mockEmailSender struct {
	mu   sync.Mutex
	sent []EmailMessage
	err  error
}

func (m *mockEmailSender) Send(_ context.Context, msg EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

func (m *mockEmailSender) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type fakeDirectory struct {
	users map[string]property.UserInfo
	err   error
}

func (f fakeDirectory) UserDashboard(_ context.Context, userID string) (*property.UserDashboard, error) {
	if f.err != nil {
		return nil, f.err
	}
	u, ok := f.users[userID]
	if !ok {
		return nil, property.ErrNotFound
	}
	return &property.UserDashboard{User: u}, nil
}

func TestNewSendGridSender_NilWithoutAPIKey(t *testing.T) {
	if sender := NewSendGridSender(SendGridConfig{FromEmail: "noreply@maison.test"}, nil); sender != nil {
		t.Fatal("expected nil sender when API key is empty")
	}
}

func TestSendGridSender_DefaultsFromName(t *testing.T) {
	sender := NewSendGridSender(SendGridConfig{APIKey: "key", FromEmail: "noreply@maison.test"}, nil)
	if sender == nil {
		t.Fatal("expected sender")
	}
	if sender.fromName != "MaiSON" {
		t.Fatalf("expected default from name, got %q", sender.fromName)
	}
}

func TestSendGridSender_Send(t *testing.T) {
	api := &mockSendGrid{}
	sender := newSendGridSender(api, SendGridConfig{FromEmail: "noreply@maison.test"}, nil)

	if err := sender.Send(context.Background(), EmailMessage{To: "seller@example.com", Subject: "Hi", Body: "hello"}); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if len(api.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(api.sent))
	}
	if api.sent[0].Subject != "Hi" {
		t.Fatalf("unexpected subject %q", api.sent[0].Subject)
	}
}

func TestSendGridSender_ErrorStatus(t *testing.T) {
	sender := newSendGridSender(&mockSendGrid{status: 401}, SendGridConfig{}, nil)
	err := sender.Send(context.Background(), EmailMessage{To: "a@b.c"})
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestSendGridSender_NilClient(t *testing.T) {
	var sender *SendGridSender
	if err := sender.Send(context.Background(), EmailMessage{}); err == nil {
		t.Fatal("expected error for unconfigured sender")
	}
}

func TestSESSender_Send(t *testing.T) {
	api := &mockSES{}
	sender := NewSESSender(api, SESConfig{FromEmail: "noreply@maison.test"}, nil)

	err := sender.Send(context.Background(), EmailMessage{To: "buyer@example.com", Subject: "Answer", Body: "text", HTML: "<p>text</p>"})
	if err != nil {
		t.Fatalf("Send returned error: %v", err)
	}
	if got := aws.ToString(api.input.FromEmailAddress); got != "MaiSON <noreply@maison.test>" {
		t.Fatalf("unexpected from address %q", got)
	}
	body := api.input.Content.Simple.Body
	if body.Text == nil || body.Html == nil {
		t.Fatal("expected both text and html bodies")
	}
}

func TestSESSender_Error(t *testing.T) {
	sender := NewSESSender(&mockSES{err: errors.New("throttled")}, SESConfig{}, nil)
	if err := sender.Send(context.Background(), EmailMessage{To: "x@y.z"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewSESSender_NilClient(t *testing.T) {
	if NewSESSender(nil, SESConfig{}, nil) != nil {
		t.Fatal("expected nil sender for nil client")
	}
}

func TestStubEmailSender_Send(t *testing.T) {
	if err := NewStubEmailSender(nil).Send(context.Background(), EmailMessage{To: "a@b.c"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestQueuePublisher_RoundTripThroughMemoryQueue(t *testing.T) {
	queue := NewMemoryQueue(4)
	pub := NewQueuePublisher(queue)

	err := pub.Publish(context.Background(), Event{
		Type:        EventQuestionForwarded,
		PropertyID:  "prop-1",
		QuestionID:  7,
		RecipientID: "seller-1",
		Text:        "Is parking included?",
	})
	if err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}

	msgs, err := queue.Receive(context.Background(), 5, 1)
	if err != nil {
		t.Fatalf("Receive returned error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(msgs))
	}
	evt, err := decodeEvent(msgs[0].Body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.ID == "" || evt.OccurredAt.IsZero() {
		t.Fatal("expected id and timestamp to be populated")
	}
	if evt.QuestionID != 7 || evt.RecipientID != "seller-1" {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestMemoryQueue_ReceiveTimesOut(t *testing.T) {
	queue := NewMemoryQueue(1)
	start := time.Now()
	msgs, err := queue.Receive(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages, got %d", len(msgs))
	}
	if time.Since(start) < 900*time.Millisecond {
		t.Fatal("expected receive to wait for the timeout")
	}
}

type mockSQS struct {
	sent      []*sqs.SendMessageInput
	deleted   []string
	responses []sqstypes.Message
}

func (m *mockSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.sent = append(m.sent, in)
	return &sqs.SendMessageOutput{}, nil
}

func (m *mockSQS) ReceiveMessage(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	return &sqs.ReceiveMessageOutput{Messages: m.responses}, nil
}

func (m *mockSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	m.deleted = append(m.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSQueue(t *testing.T) {
	api := &mockSQS{responses: []sqstypes.Message{{
		MessageId:     aws.String("m-1"),
		Body:          aws.String(`{"type":"question.answered"}`),
		ReceiptHandle: aws.String("r-1"),
	}}}
	queue := NewSQSQueue(api, "https://sqs.local/notifications")

	if err := queue.Send(context.Background(), "body"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if aws.ToString(api.sent[0].QueueUrl) != "https://sqs.local/notifications" {
		t.Fatal("expected queue url to be set")
	}
	msgs, err := queue.Receive(context.Background(), 10, 0)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ReceiptHandle != "r-1" {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	if err := queue.Delete(context.Background(), ""); err != nil {
		t.Fatalf("Delete with empty handle: %v", err)
	}
	if err := queue.Delete(context.Background(), "r-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(api.deleted) != 1 {
		t.Fatalf("expected one delete call, got %d", len(api.deleted))
	}
}

func TestService_DeliverForwardedQuestion(t *testing.T) {
	email := &mockEmailSender{}
	svc := NewService(email, fakeDirectory{users: map[string]property.UserInfo{
		"seller-1": {UserID: "seller-1", FirstName: "Sam", LastName: "Seller", Email: "sam@example.com"},
	}}, nil)

	err := svc.Deliver(context.Background(), Event{
		Type:        EventQuestionForwarded,
		PropertyID:  "prop-9",
		RecipientID: "seller-1",
		Text:        "Does the property have parking?",
	})
	if err != nil {
		t.Fatalf("Deliver returned error: %v", err)
	}
	if len(email.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(email.sent))
	}
	msg := email.sent[0]
	if msg.To != "sam@example.com" || msg.ToName != "Sam Seller" {
		t.Fatalf("unexpected recipient %+v", msg)
	}
	if !strings.Contains(msg.Subject, "prop-9") || !strings.Contains(msg.Body, "parking") {
		t.Fatalf("unexpected content %+v", msg)
	}
}

func TestService_DeliverSkipsUnknownRecipient(t *testing.T) {
	email := &mockEmailSender{}
	svc := NewService(email, fakeDirectory{}, nil)
	if err := svc.Deliver(context.Background(), Event{Type: EventQuestionAnswered, RecipientID: "ghost"}); err != nil {
		t.Fatalf("expected unknown recipient to be skipped, got %v", err)
	}
	if len(email.sent) != 0 {
		t.Fatal("expected no email")
	}
}

func TestService_DeliverPropagatesDirectoryFailure(t *testing.T) {
	svc := NewService(&mockEmailSender{}, fakeDirectory{err: errors.New("connection refused")}, nil)
	if err := svc.Deliver(context.Background(), Event{RecipientID: "buyer-1"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRender_AnsweredQuestion(t *testing.T) {
	subject, body := render(Event{Type: EventQuestionAnswered, PropertyID: "p1", Text: "Yes, two spaces."})
	if !strings.Contains(subject, "answered") {
		t.Fatalf("unexpected subject %q", subject)
	}
	if !strings.HasPrefix(body, "The seller has responded to your question") {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello world", 8); got != "hello..." {
		t.Fatalf("got %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Fatalf("got %q", got)
	}
}

func TestWorker_DeliversQueuedEvents(t *testing.T) {
	queue := NewMemoryQueue(4)
	email := &mockEmailSender{}
	svc := NewService(email, fakeDirectory{users: map[string]property.UserInfo{
		"buyer-1": {UserID: "buyer-1", Email: "buyer@example.com"},
	}}, nil)
	worker := NewWorker(queue, svc, nil, WithReceiveWaitSeconds(1))

	ctx, cancel := context.WithCancel(context.Background())
	worker.Start(ctx)

	if err := NewQueuePublisher(queue).Publish(ctx, Event{Type: EventQuestionAnswered, RecipientID: "buyer-1", Text: "Yes"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for email.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	worker.Wait()

	if email.count() != 1 {
		t.Fatalf("expected one email, got %d", email.count())
	}
}
