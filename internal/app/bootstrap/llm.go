package bootstrap

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	appconfig "github.com/wolfman30/maison-chat-platform/internal/config"
	"github.com/wolfman30/maison-chat-platform/internal/llm"
	"github.com/wolfman30/maison-chat-platform/pkg/logging"
)

// providerFactory builds one named provider, returning nil when it is not configured.
type providerFactory func(ctx context.Context) (llm.Client, error)

// BuildLLMClient assembles the configured provider chain. Each provider is
// wrapped with the per-call timeout and retry guard before the chain falls
// through to the next one. It returns nil when no provider is usable, which
// puts every specialist on its canned fallback replies.
func BuildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg *aws.Config, observer llm.CallObserver, logger *logging.Logger) (llm.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	factories := map[string]providerFactory{
		"gemini": func(ctx context.Context) (llm.Client, error) {
			if cfg.GoogleAPIKey == "" {
				return nil, nil
			}
			return llm.NewGeminiClient(ctx, cfg.GoogleAPIKey, cfg.GeminiModelID)
		},
		"bedrock": func(context.Context) (llm.Client, error) {
			if cfg.BedrockModelID == "" || awsCfg == nil {
				return nil, nil
			}
			return llm.NewBedrockClient(bedrockruntime.NewFromConfig(*awsCfg), cfg.BedrockModelID), nil
		},
		"openai": func(context.Context) (llm.Client, error) {
			if cfg.OpenAIAPIKey == "" {
				return nil, nil
			}
			return llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		},
		"anthropic": func(context.Context) (llm.Client, error) {
			if cfg.AnthropicAPIKey == "" {
				return nil, nil
			}
			return llm.NewAnthropicClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		},
	}

	var providers []llm.Provider
	seen := map[string]bool{}
	for _, name := range append([]string{cfg.LLMProvider}, cfg.LLMFallbackProviders...) {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || name == "stub" || seen[name] {
			continue
		}
		seen[name] = true

		factory, ok := factories[name]
		if !ok {
			logger.Warn("unknown llm provider ignored", "provider", name)
			continue
		}
		client, err := factory(ctx)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: build %s client: %w", name, err)
		}
		if client == nil {
			logger.Info("llm provider not configured; skipping", "provider", name)
			continue
		}
		providers = append(providers, llm.Provider{
			Name:   name,
			Client: llm.NewGuardedClient(client, name, cfg.LLMTimeout, cfg.LLMRetryAttempts, observer),
		})
	}

	if len(providers) == 0 {
		logger.Warn("no llm provider configured; responses will use fallbacks")
		return nil, nil
	}
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name)
	}
	logger.Info("llm provider chain ready", "providers", strings.Join(names, ","))
	return llm.NewFallbackClient(logger, providers...), nil
}
