package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/wolfman30/maison-chat-platform/internal/intent"
)

type recordingSpecialist struct {
	reply string
	err   error
	reqs  []SpecialistRequest
}

func (r *recordingSpecialist) AnswerProperty(_ context.Context, req SpecialistRequest) (string, error) {
	r.reqs = append(r.reqs, req)
	return r.reply, r.err
}

func (r *recordingSpecialist) Respond(_ context.Context, req SpecialistRequest) (string, error) {
	r.reqs = append(r.reqs, req)
	return r.reply, r.err
}

type stubWorkflow struct {
	pending bool
	reply   string
	outcome string
	err     error
	handled []string
}

func (s *stubWorkflow) Handle(_ context.Context, msg string, _ Turn) (WorkflowReply, error) {
	s.handled = append(s.handled, msg)
	return WorkflowReply{Text: s.reply, Outcome: s.outcome}, s.err
}

func (s *stubWorkflow) HasPending(context.Context, int64) bool { return s.pending }

func newTestRouter(classes map[string]intent.Intent, prop, comm *recordingSpecialist, wf *stubWorkflow) *MessageRouter {
	return NewMessageRouter(fixedClassifier{byMessage: classes}, prop, comm, wf, nil)
}

func TestRouteDispatchesByIntent(t *testing.T) {
	classes := map[string]intent.Intent{
		"price?":     intent.PriceInquiry,
		"hello":      intent.Greeting,
		"ask seller": intent.SellerMessage,
		"offer 200k": intent.Negotiation,
	}
	prop := &recordingSpecialist{reply: "property answer"}
	comm := &recordingSpecialist{reply: "communication answer"}
	wf := &stubWorkflow{reply: ForwardAck}
	r := newTestRouter(classes, prop, comm, wf)
	ctx := context.Background()
	propertyTurn := Turn{Kind: KindProperty, ConversationID: 5, PropertyID: "p1", Role: RoleBuyer}

	tests := []struct {
		msg    string
		turn   Turn
		want   string
		intent intent.Intent
	}{
		{"price?", propertyTurn, "property answer", intent.PriceInquiry},
		{"hello", propertyTurn, "communication answer", intent.Greeting},
		{"ask seller", propertyTurn, ForwardAck, intent.SellerMessage},
		{"offer 200k", propertyTurn, ForwardAck, intent.Negotiation},
		{"gibberish", Turn{Kind: KindGeneral, ConversationID: 1}, "communication answer", intent.Unknown},
	}
	for _, tt := range tests {
		res, err := r.Route(ctx, tt.msg, tt.turn)
		if err != nil {
			t.Fatalf("%q: unexpected error %v", tt.msg, err)
		}
		if res.Response != tt.want || res.Intent != tt.intent {
			t.Fatalf("%q: got %+v", tt.msg, res)
		}
	}
	if len(wf.handled) != 2 {
		t.Fatalf("expected two workflow calls, got %v", wf.handled)
	}
	if prop.reqs[0].PropertyID != "p1" || prop.reqs[0].Intent != intent.PriceInquiry {
		t.Fatalf("unexpected property request %+v", prop.reqs[0])
	}
}

func TestRoutePropertyIntentWithoutProperty(t *testing.T) {
	prop := &recordingSpecialist{reply: "x"}
	r := newTestRouter(map[string]intent.Intent{"how many rooms": intent.PropertyInquiry}, prop, &recordingSpecialist{}, &stubWorkflow{})

	res, err := r.Route(context.Background(), "how many rooms", Turn{Kind: KindGeneral, ConversationID: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Response != selectPropertyPrompt || res.Intent != intent.PropertyInquiry {
		t.Fatalf("expected select-property prompt, got %+v", res)
	}
	if len(prop.reqs) != 0 {
		t.Fatalf("property specialist must not be called")
	}
}

func TestRouteCrossPartyOutsidePropertyScope(t *testing.T) {
	wf := &stubWorkflow{reply: ForwardAck}
	r := newTestRouter(map[string]intent.Intent{"tell the seller": intent.SellerMessage}, &recordingSpecialist{}, &recordingSpecialist{}, wf)

	res, err := r.Route(context.Background(), "tell the seller", Turn{Kind: KindGeneral, ConversationID: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Response != noCounterpartReply || len(wf.handled) != 0 {
		t.Fatalf("expected no-counterpart reply, got %+v", res)
	}
}

func TestRoutePendingQuestionKeepsOpenEndedRepliesInWorkflow(t *testing.T) {
	wf := &stubWorkflow{pending: true, reply: ForwardAck, outcome: OutcomeForwarded}
	comm := &recordingSpecialist{reply: "hi"}
	classes := map[string]intent.Intent{
		"yes please": intent.Unknown,
		"go on then": intent.GeneralQuestion,
	}
	r := newTestRouter(classes, &recordingSpecialist{}, comm, wf)
	turn := Turn{Kind: KindProperty, ConversationID: 9, PropertyID: "p1", Role: RoleBuyer}

	for msg, classified := range classes {
		res, err := r.Route(context.Background(), msg, turn)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Response != ForwardAck || res.Outcome != OutcomeForwarded {
			t.Fatalf("%q: expected workflow handling, got %+v", msg, res)
		}
		if res.Intent != classified {
			t.Fatalf("%q: expected classified intent %s to be reported, got %s", msg, classified, res.Intent)
		}
	}
	if len(comm.reqs) != 0 {
		t.Fatalf("communication specialist must not be called")
	}

	turn.Role = RoleSeller
	res, _ := r.Route(context.Background(), "yes please", turn)
	if res.Response != "hi" || res.Outcome != "" {
		t.Fatalf("sellers are never diverted by the buyer ledger, got %+v", res)
	}
}

func TestRoutePendingQuestionLeavesTopicalIntentsAlone(t *testing.T) {
	wf := &stubWorkflow{pending: true, reply: ForwardAck}
	comm := &recordingSpecialist{reply: "communication answer"}
	classes := map[string]intent.Intent{
		"Hello there":              intent.Greeting,
		"How do I save a search?":  intent.WebsiteFunctionality,
		"What does MaiSON charge?": intent.CompanyInformation,
		"Show me flats in Leeds":   intent.PropertyListingsInquiry,
	}
	r := newTestRouter(classes, &recordingSpecialist{}, comm, wf)
	turn := Turn{Kind: KindProperty, ConversationID: 9, PropertyID: "p1", Role: RoleBuyer}

	for msg, classified := range classes {
		res, err := r.Route(context.Background(), msg, turn)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Response != "communication answer" || res.Intent != classified {
			t.Fatalf("%q: expected communication specialist with intent %s, got %+v", msg, classified, res)
		}
	}
	if len(wf.handled) != 0 {
		t.Fatalf("workflow must not see topical messages, got %v", wf.handled)
	}
	if len(comm.reqs) != len(classes) {
		t.Fatalf("expected %d communication calls, got %d", len(classes), len(comm.reqs))
	}
}

func TestRouteGreetingKeepsPendingQuestion(t *testing.T) {
	store := NewMemoryStore()
	w := newTestWorkflow(store, nil, nil, nil)
	ctx := context.Background()
	question := "Is there a bakery nearby?"
	turn := seedPropertyConversation(store, question)

	comm := &recordingSpecialist{reply: "Hello! How can I help?"}
	classes := map[string]intent.Intent{
		question:      intent.BuyerSellerCommunication,
		"Hello there": intent.Greeting,
		"yes":         intent.Unknown,
	}
	r := NewMessageRouter(fixedClassifier{byMessage: classes}, &recordingSpecialist{}, comm, w, nil)

	res, err := r.Route(ctx, question, turn)
	if err != nil || res.Outcome != OutcomeOffered {
		t.Fatalf("expected offer to forward, got %+v err=%v", res, err)
	}

	res, err = r.Route(ctx, "Hello there", turn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Response != "Hello! How can I help?" || res.Intent != intent.Greeting || len(comm.reqs) != 1 {
		t.Fatalf("greeting should reach the communication specialist, got %+v", res)
	}
	pending, err := w.pending.Get(ctx, turn.ConversationID)
	if err != nil || pending == nil || pending.Text != question {
		t.Fatalf("pending question should survive the greeting, got %+v err=%v", pending, err)
	}

	res, err = r.Route(ctx, "yes", turn)
	if err != nil || res.Outcome != OutcomeForwarded {
		t.Fatalf("expected confirmation to forward, got %+v err=%v", res, err)
	}
	qs, _ := store.QuestionsForSeller(ctx, "seller-1", "")
	if len(qs) != 1 {
		t.Fatalf("expected one forwarded question, got %d", len(qs))
	}
}

func TestRoutePropagatesHandlerErrors(t *testing.T) {
	boom := errors.New("db down")
	r := newTestRouter(map[string]intent.Intent{"ask": intent.SellerMessage}, &recordingSpecialist{}, &recordingSpecialist{}, &stubWorkflow{err: boom})

	_, err := r.Route(context.Background(), "ask", Turn{Kind: KindProperty, ConversationID: 1, PropertyID: "p"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected workflow error, got %v", err)
	}
}

func TestNewMessageRouterPanicsOnMissingDeps(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic")
		}
	}()
	NewMessageRouter(nil, &recordingSpecialist{}, &recordingSpecialist{}, &stubWorkflow{}, nil)
}
