package intent

import (
	"context"
	"fmt"
	"strings"

	"github.com/wolfman30/maison-chat-platform/internal/llm"
	"github.com/wolfman30/maison-chat-platform/pkg/logging"
)

const classifierTemperature = 0.0

// classifierPrompt is rendered once; the intent list never changes at runtime.
var classifierPrompt = buildPrompt()

func buildPrompt() string {
	var b strings.Builder
	b.WriteString("You classify messages sent to MaiSON, a real-estate assistant.\n")
	b.WriteString("Reply with exactly one intent name from the list below and nothing else.\n\nIntents:\n")
	for _, d := range definitions {
		fmt.Fprintf(&b, "- %s: %s\n", d.intent, d.description)
	}
	b.WriteString("\nExamples:\n")
	for _, d := range definitions {
		for _, ex := range d.examples {
			fmt.Fprintf(&b, "Message: %s\nIntent: %s\n", ex, d.intent)
		}
	}
	return b.String()
}

// Observer receives classification outcomes.
type Observer interface {
	ObserveIntent(intent string)
}

// Classifier delegates intent judgment to a text-generation client.
type Classifier struct {
	client   llm.Client
	logger   *logging.Logger
	observer Observer
}

// NewClassifier creates a classifier. A nil client classifies everything as Unknown.
func NewClassifier(client llm.Client, logger *logging.Logger, observer Observer) *Classifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &Classifier{client: client, logger: logger, observer: observer}
}

// Classify never fails: collaborator errors and unrecognized tokens yield Unknown.
func (c *Classifier) Classify(ctx context.Context, message string) Intent {
	result := c.classify(ctx, message)
	if c.observer != nil {
		c.observer.ObserveIntent(string(result))
	}
	return result
}

func (c *Classifier) classify(ctx context.Context, message string) Intent {
	message = strings.TrimSpace(message)
	if message == "" || c.client == nil {
		return Unknown
	}

	text, err := llm.Generate(ctx, c.client, []llm.ChatMessage{
		llm.System(classifierPrompt),
		llm.User("Message: " + message + "\nIntent:"),
	}, classifierTemperature)
	if err != nil {
		c.logger.Warn("intent classification failed", "error", err)
		return Unknown
	}

	it, ok := Parse(text)
	if !ok {
		c.logger.Debug("intent classifier returned unrecognized token", "token", text)
		return Unknown
	}
	return it
}
