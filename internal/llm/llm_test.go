package llm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type mockConverse struct {
	input    *bedrockruntime.ConverseInput
	response string
	err      error
}

func (m *mockConverse) Converse(_ context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	m.input = in
	if m.err != nil {
		return nil, m.err
	}
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: m.response}},
			},
		},
		StopReason: brtypes.StopReasonEndTurn,
		Usage:      &brtypes.TokenUsage{InputTokens: aws.Int32(10), OutputTokens: aws.Int32(4), TotalTokens: aws.Int32(14)},
	}, nil
}

type fakeClient struct {
	calls int32
	text  string
	err   error
	delay time.Duration
}

func (f *fakeClient) Complete(ctx context.Context, _ Request) (Response, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
	}
	if f.err != nil {
		return Response{}, f.err
	}
	return Response{Text: f.text}, nil
}

type recordingObserver struct {
	outcomes []string
}

func (r *recordingObserver) ObserveLLMCall(_ string, outcome string, _ time.Duration) {
	r.outcomes = append(r.outcomes, outcome)
}

type fakeModel struct {
	messages []llms.MessageContent
	reply    string
}

func (f *fakeModel) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply, StopReason: "stop"}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, _ ...llms.CallOption) (string, error) {
	return f.reply, nil
}

func TestBedrockClient_MapsRolesAndUsage(t *testing.T) {
	api := &mockConverse{response: "  hello there  "}
	c := NewBedrockClient(api, "anthropic.claude")

	resp, err := c.Complete(context.Background(), Request{
		System: []string{"be brief"},
		Messages: []ChatMessage{
			System("you are a property assistant"),
			User("hi"),
			{Role: RoleAssistant, Content: "hello"},
			User("   "),
			User("any parking?"),
		},
		Temperature: 0.1,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Text)
	assert.Equal(t, "bedrock", resp.Provider)
	assert.Equal(t, int32(14), resp.Usage.TotalTokens)
	assert.Equal(t, "anthropic.claude", aws.ToString(api.input.ModelId))
	assert.Len(t, api.input.System, 2)
	assert.Len(t, api.input.Messages, 3)
	assert.Equal(t, brtypes.ConversationRoleAssistant, api.input.Messages[1].Role)
}

func TestSplitSystem_StartsWithUserAndAlternates(t *testing.T) {
	tests := []struct {
		name  string
		msgs  []ChatMessage
		roles []string
		first string
	}{
		{
			name: "window opening on an assistant reply",
			msgs: []ChatMessage{
				{Role: RoleAssistant, Content: "Welcome to MaiSON"},
				User("2 beds in Leeds?"),
				{Role: RoleAssistant, Content: "Here are three"},
				User("cheaper ones?"),
				{Role: RoleAssistant, Content: "Two under 200k"},
				User("thanks"),
			},
			roles: []string{RoleUser, RoleAssistant, RoleUser, RoleAssistant, RoleUser},
			first: "2 beds in Leeds?",
		},
		{
			name: "unanswered user message after a failed turn",
			msgs: []ChatMessage{
				User("is the loft converted?"),
				User("hello?"),
				{Role: RoleAssistant, Content: "Yes it is"},
				{Role: RoleAssistant, Content: "Anything else?"},
				User("parking?"),
			},
			roles: []string{RoleUser, RoleAssistant, RoleUser},
			first: "is the loft converted?\n\nhello?",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, turns := splitSystem(Request{Messages: tt.msgs})
			roles := make([]string, 0, len(turns))
			for _, m := range turns {
				roles = append(roles, m.Role)
			}
			assert.Equal(t, tt.roles, roles)
			assert.Equal(t, tt.first, turns[0].Content)
		})
	}
}

func TestBedrockClient_SendsAlternatingTurns(t *testing.T) {
	api := &mockConverse{response: "ok"}
	c := NewBedrockClient(api, "anthropic.claude")

	_, err := c.Complete(context.Background(), Request{Messages: []ChatMessage{
		{Role: RoleAssistant, Content: "earlier reply"},
		User("first"),
		User("second"),
	}})
	require.NoError(t, err)
	require.Len(t, api.input.Messages, 1)
	assert.Equal(t, brtypes.ConversationRoleUser, api.input.Messages[0].Role)
	text, ok := api.input.Messages[0].Content[0].(*brtypes.ContentBlockMemberText)
	require.True(t, ok)
	assert.Equal(t, "first\n\nsecond", text.Value)
}

func TestBedrockClient_Errors(t *testing.T) {
	_, err := NewBedrockClient(&mockConverse{}, "").Complete(context.Background(), Request{Messages: []ChatMessage{User("hi")}})
	require.Error(t, err)

	_, err = NewBedrockClient(&mockConverse{response: " "}, "m").Complete(context.Background(), Request{Messages: []ChatMessage{User("hi")}})
	assert.ErrorIs(t, err, ErrEmptyResponse)

	_, err = NewBedrockClient(&mockConverse{}, "m").Complete(context.Background(), Request{Messages: []ChatMessage{{Role: "tool", Content: "x"}}})
	require.Error(t, err)
}

func TestLangchainClient_BuildsMessageContent(t *testing.T) {
	model := &fakeModel{reply: " forwarded "}
	c := NewLangchainClient(model, "openai")

	resp, err := c.Complete(context.Background(), Request{
		Messages: []ChatMessage{System("rules"), User("question"), {Role: RoleAssistant, Content: "answer"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "forwarded", resp.Text)
	assert.Equal(t, "openai", resp.Provider)
	require.Len(t, model.messages, 3)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
	assert.Equal(t, llms.ChatMessageTypeAI, model.messages[2].Role)
}

func TestFallbackClient_UsesNextProvider(t *testing.T) {
	primary := &fakeClient{err: errors.New("quota")}
	secondary := &fakeClient{text: "ok"}
	c := NewFallbackClient(nil, Provider{Name: "gemini", Client: primary}, Provider{Name: "nil"}, Provider{Name: "openai", Client: secondary})

	assert.Equal(t, 2, c.Len())
	resp, err := c.Complete(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)
	assert.Equal(t, "openai", resp.Provider)
}

func TestFallbackClient_AllFail(t *testing.T) {
	first := errors.New("first")
	second := errors.New("second")
	c := NewFallbackClient(nil, Provider{Name: "a", Client: &fakeClient{err: first}}, Provider{Name: "b", Client: &fakeClient{err: second}})

	_, err := c.Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, first)
	assert.ErrorIs(t, err, second)

	_, err = NewFallbackClient(nil).Complete(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestGuardedClient_RetriesOnce(t *testing.T) {
	inner := &fakeClient{err: errors.New("boom")}
	obs := &recordingObserver{}
	c := NewGuardedClient(inner, "gemini", time.Second, 1, obs)

	_, err := c.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&inner.calls))
	assert.Equal(t, []string{"error", "error"}, obs.outcomes)
}

func TestGuardedClient_TimeoutIsRecoverable(t *testing.T) {
	inner := &fakeClient{text: "late", delay: 200 * time.Millisecond}
	obs := &recordingObserver{}
	c := NewGuardedClient(inner, "gemini", 10*time.Millisecond, 0, obs)

	_, err := c.Complete(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, []string{"timeout"}, obs.outcomes)
}

func TestGenerate(t *testing.T) {
	text, err := Generate(context.Background(), &fakeClient{text: " yes "}, []ChatMessage{User("?")}, 0)
	require.NoError(t, err)
	assert.Equal(t, "yes", text)

	_, err = Generate(context.Background(), &fakeClient{text: ""}, nil, 0)
	assert.ErrorIs(t, err, ErrEmptyResponse)

	_, err = Generate(context.Background(), nil, nil, 0)
	assert.ErrorIs(t, err, ErrNoProvider)
}
