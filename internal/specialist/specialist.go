// Package specialist holds the response handlers the message router delegates
// to. Every handler recovers from generation failures with a templated reply.
package specialist

import (
	"context"

	"github.com/wolfman30/maison-chat-platform/internal/conversation"
	"github.com/wolfman30/maison-chat-platform/internal/llm"
	"github.com/wolfman30/maison-chat-platform/pkg/logging"
)

const (
	responseTemperature = 0.7
	responseMaxTokens   = 600
)

// GenerationObserver records whether a specialist reply came from the model
// or from a template.
type GenerationObserver interface {
	ObserveGeneration(handler string, fallback bool)
}

type base struct {
	llm      llm.Client
	observer GenerationObserver
	logger   *logging.Logger
}

func newBase(client llm.Client, observer GenerationObserver, logger *logging.Logger) base {
	if logger == nil {
		logger = logging.Default()
	}
	return base{llm: client, observer: observer, logger: logger}
}

// generate returns fallback when the model is unavailable or fails.
func (b base) generate(ctx context.Context, handler string, system string, req conversation.SpecialistRequest, prompt string, fallback string) string {
	if b.llm == nil {
		b.observe(handler, true)
		return fallback
	}
	messages := make([]llm.ChatMessage, 0, len(req.History)+1)
	for _, h := range req.History {
		role := llm.RoleUser
		if h.Role == conversation.MessageRoleAssistant {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.ChatMessage{Role: role, Content: h.Content})
	}
	messages = append(messages, llm.User(prompt))

	resp, err := b.llm.Complete(ctx, llm.Request{
		System:      []string{system},
		Messages:    messages,
		MaxTokens:   responseMaxTokens,
		Temperature: responseTemperature,
	})
	if err == nil && resp.Text != "" {
		b.observe(handler, false)
		return resp.Text
	}
	if err == nil {
		err = llm.ErrEmptyResponse
	}
	b.logger.Warn("specialist generation failed, using template", "handler", handler, "intent", req.Intent.String(), "error", err)
	b.observe(handler, true)
	return fallback
}

func (b base) observe(handler string, fallback bool) {
	if b.observer != nil {
		b.observer.ObserveGeneration(handler, fallback)
	}
}
