package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/openai"
)

// LangchainClient adapts a langchaingo model (OpenAI, Anthropic) to Client.
type LangchainClient struct {
	model    llms.Model
	provider string
}

// NewLangchainClient wraps an already constructed langchaingo model.
func NewLangchainClient(model llms.Model, provider string) *LangchainClient {
	if model == nil {
		panic("llm: langchain model cannot be nil")
	}
	return &LangchainClient{model: model, provider: provider}
}

// NewOpenAIClient builds an OpenAI-backed client.
func NewOpenAIClient(apiKey, model string) (*LangchainClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm: openai api key is required")
	}
	m, err := openai.New(openai.WithToken(apiKey), openai.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("llm: create openai model: %w", err)
	}
	return NewLangchainClient(m, "openai"), nil
}

// NewAnthropicClient builds an Anthropic-backed client.
func NewAnthropicClient(apiKey, model string) (*LangchainClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm: anthropic api key is required")
	}
	m, err := anthropic.New(anthropic.WithToken(apiKey), anthropic.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("llm: create anthropic model: %w", err)
	}
	return NewLangchainClient(m, "anthropic"), nil
}

func (c *LangchainClient) Complete(ctx context.Context, req Request) (Response, error) {
	system, turns := splitSystem(req)
	if len(turns) == 0 {
		return Response{}, fmt.Errorf("llm: %s requires at least one message", c.provider)
	}

	content := make([]llms.MessageContent, 0, len(turns)+1)
	if len(system) > 0 {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, strings.Join(system, "\n\n")))
	}
	for _, msg := range turns {
		msgType := llms.ChatMessageTypeHuman
		if msg.Role == RoleAssistant {
			msgType = llms.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(msgType, msg.Content))
	}

	var opts []llms.CallOption
	if req.Temperature >= 0 {
		opts = append(opts, llms.WithTemperature(float64(req.Temperature)))
	}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(int(req.MaxTokens)))
	}
	if req.TopP > 0 {
		opts = append(opts, llms.WithTopP(float64(req.TopP)))
	}
	if strings.TrimSpace(req.Model) != "" {
		opts = append(opts, llms.WithModel(req.Model))
	}

	out, err := c.model.GenerateContent(ctx, content, opts...)
	if err != nil {
		return Response{}, fmt.Errorf("llm: %s generate: %w", c.provider, err)
	}
	if out == nil || len(out.Choices) == 0 || out.Choices[0] == nil {
		return Response{}, ErrEmptyResponse
	}
	choice := out.Choices[0]
	return Response{
		Text:       strings.TrimSpace(choice.Content),
		StopReason: choice.StopReason,
		Provider:   c.provider,
	}, nil
}
