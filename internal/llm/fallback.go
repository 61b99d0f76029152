package llm

import (
	"context"
	"errors"

	"github.com/wolfman30/maison-chat-platform/pkg/logging"
)

// Provider pairs a client with the name used in logs and metrics.
type Provider struct {
	Name   string
	Client Client
}

// FallbackClient tries each provider in order until one succeeds.
type FallbackClient struct {
	providers []Provider
	logger    *logging.Logger
}

// NewFallbackClient builds a provider chain. Providers with a nil client are skipped.
func NewFallbackClient(logger *logging.Logger, providers ...Provider) *FallbackClient {
	if logger == nil {
		logger = logging.Default()
	}
	chain := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p.Client != nil {
			chain = append(chain, p)
		}
	}
	return &FallbackClient{providers: chain, logger: logger}
}

// Len reports the number of usable providers.
func (c *FallbackClient) Len() int {
	return len(c.providers)
}

func (c *FallbackClient) Complete(ctx context.Context, req Request) (Response, error) {
	if len(c.providers) == 0 {
		return Response{}, ErrNoProvider
	}
	var errs []error
	for i, p := range c.providers {
		resp, err := p.Client.Complete(ctx, req)
		if err == nil {
			if resp.Provider == "" {
				resp.Provider = p.Name
			}
			if i > 0 {
				c.logger.Info("llm fallback provider succeeded", "provider", p.Name)
			}
			return resp, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
		c.logger.Warn("llm provider failed",
			"provider", p.Name,
			"error", err,
			"fallback_available", i < len(c.providers)-1,
		)
	}
	return Response{}, errors.Join(errs...)
}
