// Package llm wraps the text-generation providers used by the chat engine.
package llm

import (
	"context"
	"errors"
	"strings"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrEmptyResponse is returned when a provider answers with no usable text.
	ErrEmptyResponse = errors.New("llm: empty response")
	// ErrNoProvider is returned when no provider is configured.
	ErrNoProvider = errors.New("llm: no provider configured")
)

// ChatMessage is a role-tagged message sent to a provider.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type TokenUsage struct {
	InputTokens  int32
	OutputTokens int32
	TotalTokens  int32
}

// Request describes one completion. Model is optional; providers fall back to
// their configured default.
type Request struct {
	Model       string
	System      []string
	Messages    []ChatMessage
	MaxTokens   int32
	Temperature float32
	TopP        float32
}

type Response struct {
	Text       string
	Usage      TokenUsage
	StopReason string
	Provider   string
}

// Client is implemented by every provider and wrapper.
type Client interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// Generate runs a completion over an ordered message list and returns the text.
// An empty completion is reported as ErrEmptyResponse.
func Generate(ctx context.Context, c Client, messages []ChatMessage, temperature float32) (string, error) {
	if c == nil {
		return "", ErrNoProvider
	}
	resp, err := c.Complete(ctx, Request{Messages: messages, Temperature: temperature})
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

// System builds a system-role message.
func System(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

// User builds a user-role message.
func User(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// splitSystem separates system messages from the conversational turns. The
// turns always open with a user message and never repeat a role back to back,
// which Bedrock Converse and Anthropic both require.
func splitSystem(req Request) ([]string, []ChatMessage) {
	system := make([]string, 0, len(req.System))
	for _, s := range req.System {
		if strings.TrimSpace(s) != "" {
			system = append(system, s)
		}
	}
	turns := make([]ChatMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		if msg.Role == RoleSystem {
			system = append(system, content)
			continue
		}
		if len(turns) == 0 && msg.Role == RoleAssistant {
			continue
		}
		if last := len(turns) - 1; last >= 0 && turns[last].Role == msg.Role {
			turns[last].Content += "\n\n" + content
			continue
		}
		turns = append(turns, ChatMessage{Role: msg.Role, Content: content})
	}
	return system, turns
}
