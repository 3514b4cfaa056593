package providers

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket refilled continuously at a fixed rate.
type RateLimiter struct {
	mu sync.Mutex

	perSecond  float64
	burst      float64
	tokens     float64
	lastUpdate time.Time
}

// NewRateLimiter creates a limiter allowing perSecond requests with a burst
// of one second's worth of tokens.
func NewRateLimiter(perSecond float64) *RateLimiter {
	if perSecond <= 0 {
		perSecond = 1
	}
	burst := perSecond
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		perSecond:  perSecond,
		burst:      burst,
		tokens:     burst,
		lastUpdate: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()
		if r.tokens >= 1.0 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}
		wait := time.Duration((1.0 - r.tokens) / r.perSecond * float64(time.Second))
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// refill adds tokens based on elapsed time. Must be called with lock held.
func (r *RateLimiter) refill() {
	now := time.Now()
	r.tokens += now.Sub(r.lastUpdate).Seconds() * r.perSecond
	if r.tokens > r.burst {
		r.tokens = r.burst
	}
	r.lastUpdate = now
}

// rateLimitedClient waits on a limiter before each call.
type rateLimitedClient struct {
	LLMClient
	limiter *RateLimiter
}

// WithRateLimit wraps client so calls are spaced to perSecond.
// A non-positive rate returns client unchanged.
func WithRateLimit(client LLMClient, perSecond float64) LLMClient {
	if perSecond <= 0 {
		return client
	}
	return &rateLimitedClient{LLMClient: client, limiter: NewRateLimiter(perSecond)}
}

func (c *rateLimitedClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return &ChatResult{
			Provider:     c.Name(),
			ErrorType:    "rate_limit_wait",
			ErrorMessage: err.Error(),
		}, err
	}
	return c.LLMClient.Chat(ctx, req)
}
