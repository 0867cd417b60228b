package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedClient wraps a Client with a token bucket shared by all callers.
type RateLimitedClient struct {
	next    Client
	limiter *rate.Limiter
}

// NewRateLimitedClient limits next to requestsPerSecond with the given burst.
// A non-positive rate returns next unchanged.
func NewRateLimitedClient(next Client, requestsPerSecond float64, burst int) Client {
	if requestsPerSecond <= 0 {
		return next
	}
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedClient{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

func (c *RateLimitedClient) wait(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter error: %w", err)
	}
	return nil
}

// GenerateContent waits for a token then delegates.
func (c *RateLimitedClient) GenerateContent(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	return c.next.GenerateContent(ctx, prompt, tier)
}

// GenerateJSON waits for a token then delegates.
func (c *RateLimitedClient) GenerateJSON(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	return c.next.GenerateJSON(ctx, prompt, tier)
}

// GetModel delegates to the wrapped client.
func (c *RateLimitedClient) GetModel(tier ModelTier) string {
	return c.next.GetModel(tier)
}

// Close closes the wrapped client.
func (c *RateLimitedClient) Close() error {
	return c.next.Close()
}
