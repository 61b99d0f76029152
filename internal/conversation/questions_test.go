package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wolfman30/maison-chat-platform/internal/notify"
)

func replyText(r WorkflowReply, err error) (string, error) {
	return r.Text, err
}

func newTestWorkflow(store *MemoryStore, client *scriptedLLM, pub *fakePublisher, obs *outcomeCounter) *QuestionWorkflow {
	opts := []WorkflowOption{WithWorkflowClock(newClock().Now)}
	if pub != nil {
		opts = append(opts, WithPublisher(pub))
	}
	if obs != nil {
		opts = append(opts, WithWorkflowObserver(obs))
	}
	var w *QuestionWorkflow
	if client == nil {
		w = NewQuestionWorkflow(store, NewMemoryPendingStore(time.Hour), nil, nil, opts...)
	} else {
		w = NewQuestionWorkflow(store, NewMemoryPendingStore(time.Hour), client, nil, opts...)
	}
	return w
}

func TestWorkflowExplicitRequestForwardsImmediately(t *testing.T) {
	store := NewMemoryStore()
	pub := &fakePublisher{}
	obs := newOutcomeCounter()
	w := newTestWorkflow(store, nil, pub, obs)
	msg := "Can you ask the seller when the boiler was last serviced?"
	turn := seedPropertyConversation(store, msg)

	got, err := replyText(w.Handle(context.Background(), msg, turn))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != ForwardAck {
		t.Fatalf("expected forward ack, got %q", got)
	}

	questions, _ := store.QuestionsForSeller(context.Background(), "seller-1", QuestionPending)
	if len(questions) != 1 {
		t.Fatalf("expected one pending question, got %d", len(questions))
	}
	q := questions[0]
	if q.QuestionMessageID != turn.MessageID || q.BuyerID != "buyer-1" || q.PropertyID != "prop-1" || q.QuestionText != msg {
		t.Fatalf("unexpected question %+v", q)
	}

	refs, _ := store.CrossReferences(context.Background(), PropertyRef(turn.ConversationID))
	if len(refs) != 1 || refs[0].ServiceName != ServiceSellerBuyer || refs[0].ExternalID != "seller-1" {
		t.Fatalf("unexpected references %+v", refs)
	}
	if refs[0].Metadata.QuestionID != q.ID || refs[0].Metadata.MessageType != "viewing_arrangement" {
		t.Fatalf("unexpected reference metadata %+v", refs[0].Metadata)
	}

	events := pub.Events()
	if len(events) != 1 || events[0].Type != notify.EventQuestionForwarded || events[0].RecipientID != "seller-1" {
		t.Fatalf("unexpected events %+v", events)
	}
	if obs.get(OutcomeForwarded) != 1 {
		t.Fatalf("expected forwarded outcome, got %v", obs.counts)
	}
}

func TestWorkflowConfirmBeforeForward(t *testing.T) {
	store := NewMemoryStore()
	w := newTestWorkflow(store, nil, nil, nil)
	ctx := context.Background()
	question := "Does the loft have planning permission?"
	turn := seedPropertyConversation(store, question)

	got, err := replyText(w.Handle(ctx, question, turn))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(got, OfferForwardPrompt) {
		t.Fatalf("expected offer to forward, got %q", got)
	}
	if !w.HasPending(ctx, turn.ConversationID) {
		t.Fatalf("expected pending question")
	}
	if qs, _ := store.QuestionsForSeller(ctx, "seller-1", ""); len(qs) != 0 {
		t.Fatalf("nothing should be forwarded before confirmation, got %d", len(qs))
	}

	confirmTurn := turn
	confirmTurn.MessageID = turn.MessageID + 100
	got, err = replyText(w.Handle(ctx, "yes please", confirmTurn))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != ForwardAck {
		t.Fatalf("expected forward ack, got %q", got)
	}
	qs, _ := store.QuestionsForSeller(ctx, "seller-1", QuestionPending)
	if len(qs) != 1 || qs[0].QuestionText != question || qs[0].QuestionMessageID != turn.MessageID {
		t.Fatalf("expected original question forwarded, got %+v", qs)
	}
	if w.HasPending(ctx, turn.ConversationID) {
		t.Fatalf("pending question should be consumed")
	}
}

func TestWorkflowDeclineClearsPending(t *testing.T) {
	store := NewMemoryStore()
	obs := newOutcomeCounter()
	w := newTestWorkflow(store, nil, nil, obs)
	ctx := context.Background()
	turn := seedPropertyConversation(store, "Is the cellar damp?")

	if _, err := w.Handle(ctx, "Is the cellar damp?", turn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := replyText(w.Handle(ctx, "no thanks", turn))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != DeclineAck {
		t.Fatalf("expected decline ack, got %q", got)
	}
	if w.HasPending(ctx, turn.ConversationID) {
		t.Fatalf("expected pending question cleared")
	}
	if qs, _ := store.QuestionsForSeller(ctx, "seller-1", ""); len(qs) != 0 {
		t.Fatalf("declined question must not be forwarded")
	}
	if obs.get(OutcomeDeclined) != 1 || obs.get(OutcomeOffered) != 1 {
		t.Fatalf("unexpected outcomes %v", obs.counts)
	}
}

func TestWorkflowAnswersFromListingWhenPossible(t *testing.T) {
	store := NewMemoryStore()
	client := &scriptedLLM{replies: map[string]string{
		"only the property's seller can provide":   "NO",
		"If the details do not contain the answer": "It has three bedrooms.",
	}}
	w := newTestWorkflow(store, client, nil, nil)
	turn := seedPropertyConversation(store, "How many bedrooms?")

	got, err := replyText(w.Handle(context.Background(), "How many bedrooms?", turn))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "It has three bedrooms." {
		t.Fatalf("expected direct answer, got %q", got)
	}
	if w.HasPending(context.Background(), turn.ConversationID) {
		t.Fatalf("direct answers must not leave a pending question")
	}
}

func TestWorkflowInsufficientListingOffersForward(t *testing.T) {
	store := NewMemoryStore()
	client := &scriptedLLM{replies: map[string]string{
		"only the property's seller can provide":   "NO",
		"If the details do not contain the answer": "INSUFFICIENT_INFORMATION",
		"Classify the buyer's reply":               "YES",
		"Rewrite this message":                     "Could you confirm the age of the roof?",
	}}
	pub := &fakePublisher{}
	w := newTestWorkflow(store, client, pub, nil)
	ctx := context.Background()
	turn := seedPropertyConversation(store, "How old is the roof?")

	got, _ := replyText(w.Handle(ctx, "How old is the roof?", turn))
	if !strings.Contains(got, OfferForwardPrompt) {
		t.Fatalf("expected offer, got %q", got)
	}
	got, _ = replyText(w.Handle(ctx, "go on then", turn))
	if got != ForwardAck {
		t.Fatalf("expected forward after model confirmation, got %q", got)
	}
	qs, _ := store.QuestionsForSeller(ctx, "seller-1", "")
	if len(qs) != 1 || qs[0].QuestionText != "Could you confirm the age of the roof?" {
		t.Fatalf("expected reformatted question, got %+v", qs)
	}
	if events := pub.Events(); len(events) != 1 || events[0].Text != qs[0].QuestionText {
		t.Fatalf("expected event with formatted text, got %+v", events)
	}
}

func TestWorkflowForwardIsIdempotent(t *testing.T) {
	store := NewMemoryStore()
	obs := newOutcomeCounter()
	w := newTestWorkflow(store, nil, nil, obs)
	ctx := context.Background()
	turn := seedPropertyConversation(store, "Ask the seller about parking")

	for i := 0; i < 3; i++ {
		got, err := replyText(w.Forward(ctx, "Ask the seller about parking", turn.MessageID, turn))
		if err != nil || got != ForwardAck {
			t.Fatalf("attempt %d: got %q err=%v", i, got, err)
		}
	}
	if qs, _ := store.QuestionsForSeller(ctx, "seller-1", ""); len(qs) != 1 {
		t.Fatalf("expected exactly one question, got %d", len(qs))
	}
	if obs.get(OutcomeDuplicate) != 2 {
		t.Fatalf("expected two duplicates, got %v", obs.counts)
	}
}

func TestWorkflowConcurrentConfirmationsForwardOnce(t *testing.T) {
	store := NewMemoryStore()
	w := newTestWorkflow(store, nil, nil, nil)
	ctx := context.Background()
	turn := seedPropertyConversation(store, "Is the garden south facing?")
	if _, err := w.Handle(ctx, "Is the garden south facing?", turn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[string]int{}
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reply, err := w.Handle(ctx, "yes", turn)
			if err != nil {
				return
			}
			mu.Lock()
			outcomes[reply.Outcome]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if qs, _ := store.QuestionsForSeller(ctx, "seller-1", ""); len(qs) != 1 {
		t.Fatalf("expected one forwarded question, got %d", len(qs))
	}
	if outcomes[OutcomeForwarded] != 1 {
		t.Fatalf("exactly one confirmation should report a forward, got %v", outcomes)
	}
}

func TestWorkflowReplyOutcomeSeparatesDuplicates(t *testing.T) {
	store := NewMemoryStore()
	w := newTestWorkflow(store, nil, nil, nil)
	ctx := context.Background()
	turn := seedPropertyConversation(store, "Ask the seller about parking")

	first, err := w.Forward(ctx, "Ask the seller about parking", turn.MessageID, turn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := w.Forward(ctx, "Ask the seller about parking", turn.MessageID, turn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Text != ForwardAck || second.Text != ForwardAck {
		t.Fatalf("both calls should acknowledge, got %q and %q", first.Text, second.Text)
	}
	if first.Outcome != OutcomeForwarded || second.Outcome != OutcomeDuplicate {
		t.Fatalf("expected forwarded then duplicate, got %q then %q", first.Outcome, second.Outcome)
	}
}

func TestRecordAnswerAppendsToBuyerConversation(t *testing.T) {
	store := NewMemoryStore()
	pub := &fakePublisher{}
	w := newTestWorkflow(store, nil, pub, nil)
	ctx := context.Background()
	turn := seedPropertyConversation(store, "Ask the seller if the boiler is new")
	if _, err := w.Handle(ctx, "Ask the seller if the boiler is new", turn); err != nil {
		t.Fatalf("forward: %v", err)
	}
	qs, _ := store.QuestionsForSeller(ctx, "seller-1", QuestionPending)
	if len(qs) != 1 {
		t.Fatalf("expected pending question")
	}

	if err := w.RecordAnswer(ctx, qs[0].ID, "  Yes, fitted in 2023.  "); err != nil {
		t.Fatalf("RecordAnswer: %v", err)
	}

	answered, _ := store.QuestionsForSeller(ctx, "seller-1", QuestionAnswered)
	if len(answered) != 1 || answered[0].AnswerText != "Yes, fitted in 2023." || answered[0].AnsweredAt == nil {
		t.Fatalf("unexpected answered question %+v", answered)
	}

	msgs, _ := store.ListMessages(ctx, PropertyRef(turn.ConversationID), 0)
	last := msgs[len(msgs)-1]
	if last.Role != MessageRoleAssistant || last.Content != "The seller has responded to your question: Yes, fitted in 2023." {
		t.Fatalf("unexpected appended message %+v", last)
	}
	if last.Metadata == nil || !last.Metadata.IsSellerResponse || last.Metadata.OriginalQuestionID != qs[0].ID {
		t.Fatalf("unexpected metadata %+v", last.Metadata)
	}
	if last.Intent != "buyer_seller_communication" {
		t.Fatalf("unexpected intent %q", last.Intent)
	}

	events := pub.Events()
	if len(events) != 2 || events[1].Type != notify.EventQuestionAnswered || events[1].RecipientID != "buyer-1" {
		t.Fatalf("unexpected events %+v", events)
	}

	if err := w.RecordAnswer(ctx, qs[0].ID, "again"); !errors.Is(err, ErrQuestionAnswered) {
		t.Fatalf("expected ErrQuestionAnswered, got %v", err)
	}
	if w.Answer(ctx, qs[0].ID, "again") {
		t.Fatalf("Answer should report false for answered question")
	}
	msgs2, _ := store.ListMessages(ctx, PropertyRef(turn.ConversationID), 0)
	if len(msgs2) != len(msgs) {
		t.Fatalf("rejected answer must not append messages")
	}
}

func TestRecordAnswerFailures(t *testing.T) {
	store := NewMemoryStore()
	w := newTestWorkflow(store, nil, nil, nil)
	ctx := context.Background()

	if err := w.RecordAnswer(ctx, 4242, "hello"); !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}
	if err := w.RecordAnswer(ctx, 1, "   "); err == nil {
		t.Fatalf("expected error for empty answer")
	}

	orphan := &Question{SellerID: "s", ConversationID: 999, QuestionMessageID: 77, Status: QuestionPending}
	if _, err := store.CreateQuestion(ctx, orphan); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := w.RecordAnswer(ctx, orphan.ID, "answer"); !errors.Is(err, ErrConversationMissing) {
		t.Fatalf("expected ErrConversationMissing, got %v", err)
	}
	q, _ := store.QuestionForUpdate(ctx, orphan.ID)
	if q.Status != QuestionPending {
		t.Fatalf("failed answer must leave question pending, got %s", q.Status)
	}
}

func TestWorkflowSellerRelay(t *testing.T) {
	store := NewMemoryStore()
	pub := &fakePublisher{}
	w := newTestWorkflow(store, nil, pub, nil)
	ctx := context.Background()

	conv, _ := NewPropertyConversation("seller-1", "prop-1", "seller", "buyer-1", time.Now())
	_ = store.CreatePropertyConversation(ctx, conv)
	turn := Turn{Kind: KindProperty, ConversationID: conv.ID, UserID: "seller-1", PropertyID: "prop-1", Role: RoleSeller, CounterpartID: "buyer-1"}

	got, err := replyText(w.Handle(ctx, "The boiler was serviced last May.", turn))
	if err != nil || got != RelayAck {
		t.Fatalf("expected relay ack, got %q err=%v", got, err)
	}
	refs, _ := store.CrossReferences(ctx, PropertyRef(conv.ID))
	if len(refs) != 1 || refs[0].Metadata.SenderRole != RoleSeller || refs[0].ExternalID != "buyer-1" {
		t.Fatalf("unexpected references %+v", refs)
	}
	if events := pub.Events(); len(events) != 1 || events[0].Type != notify.EventMessageRelayed {
		t.Fatalf("unexpected events %+v", events)
	}

	for _, bad := range []string{"ok", "this is a scam offer", strings.Repeat("word ", 300)} {
		got, err := replyText(w.Handle(ctx, bad, turn))
		if err != nil || got != RelayRejected {
			t.Fatalf("expected rejection for %q, got %q err=%v", bad[:min(len(bad), 20)], got, err)
		}
	}
}

func TestClassifyMessageType(t *testing.T) {
	cases := map[string]string{
		"Would you accept an offer of 300k?":  "negotiation",
		"When can I visit?":                   "viewing_arrangement",
		"Is there any damp or repair needed?": "property_condition",
		"Can I see the contract?":             "documentation",
		"Do you like the neighbours?":         "general_inquiry",
	}
	for in, want := range cases {
		if got := ClassifyMessageType(in); got != want {
			t.Fatalf("ClassifyMessageType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestKeywordConfirmation(t *testing.T) {
	cases := map[string]confirmation{
		"yes":                              confirmYes,
		"Yes, no problem":                  confirmYes,
		"sure thing":                       confirmYes,
		"please go ahead":                  confirmYes,
		"no":                               confirmNo,
		"Nope.":                            confirmNo,
		"I'd rather you didn't, no thanks": confirmNo,
		"what about the garden?":           confirmOther,
		"":                                 confirmOther,
	}
	for in, want := range cases {
		if got := keywordConfirmation(in); got != want {
			t.Fatalf("keywordConfirmation(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestValidateRelayContent(t *testing.T) {
	if !ValidateRelayContent("Viewing on Saturday works") {
		t.Fatalf("expected valid content")
	}
	if ValidateRelayContent("hi") || ValidateRelayContent("   ") {
		t.Fatalf("single words must be rejected")
	}
	if ValidateRelayContent("this looks ILLEGAL to me") {
		t.Fatalf("flagged terms must be rejected")
	}
}
