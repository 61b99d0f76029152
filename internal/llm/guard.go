package llm

import (
	"context"
	"time"
)

// CallObserver records the outcome of provider calls.
type CallObserver interface {
	ObserveLLMCall(provider, outcome string, duration time.Duration)
}

// GuardedClient bounds every attempt with a timeout and retries failed attempts.
type GuardedClient struct {
	next     Client
	name     string
	timeout  time.Duration
	retries  int
	observer CallObserver
}

// NewGuardedClient wraps next. A zero timeout disables the per-attempt deadline;
// retries is the number of extra attempts after the first.
func NewGuardedClient(next Client, name string, timeout time.Duration, retries int, observer CallObserver) *GuardedClient {
	if next == nil {
		panic("llm: guarded client requires a delegate")
	}
	if retries < 0 {
		retries = 0
	}
	return &GuardedClient{next: next, name: name, timeout: timeout, retries: retries, observer: observer}
}

func (c *GuardedClient) Complete(ctx context.Context, req Request) (Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return Response{}, err
		}
		resp, err := c.attempt(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return Response{}, lastErr
}

func (c *GuardedClient) attempt(ctx context.Context, req Request) (Response, error) {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.next.Complete(callCtx, req)
	if err == nil && resp.Text == "" {
		err = ErrEmptyResponse
	}
	if c.observer != nil {
		c.observer.ObserveLLMCall(c.name, outcome(callCtx, err), time.Since(start))
	}
	if err != nil {
		return Response{}, err
	}
	return resp, nil
}

func outcome(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return "success"
	case ctx.Err() == context.DeadlineExceeded:
		return "timeout"
	default:
		return "error"
	}
}
