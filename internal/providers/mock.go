package providers

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const MockClientName = "mock"

// MockClient is an LLMClient for testing. Responses are returned in order;
// once exhausted the last one (or ResponseText) repeats.
type MockClient struct {
	// Configurable behavior
	Latency      time.Duration
	ShouldFail   bool
	FailAfter    int // Fail after N requests (0 = never)
	ResponseText string
	Responses    []string

	mu       sync.Mutex
	requests []ChatRequest
}

// NewMockClient creates a new mock client with sensible defaults.
func NewMockClient(responses ...string) *MockClient {
	return &MockClient{
		ResponseText: "mock response",
		Responses:    responses,
	}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockClientName
}

// Chat records the request and returns the next scripted response.
func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()

	c.mu.Lock()
	c.requests = append(c.requests, *req)
	count := len(c.requests)
	text := c.ResponseText
	if len(c.Responses) > 0 {
		idx := count - 1
		if idx >= len(c.Responses) {
			idx = len(c.Responses) - 1
		}
		text = c.Responses[idx]
	}
	c.mu.Unlock()

	result := &ChatResult{
		RequestID: fmt.Sprintf("mock-%d", count),
		Provider:  MockClientName,
		ModelUsed: req.Model,
	}

	if c.ShouldFail {
		result.ErrorType = "mock_failure"
		result.ErrorMessage = "mock client configured to fail"
		return result, fmt.Errorf("mock client configured to fail")
	}
	if c.FailAfter > 0 && count > c.FailAfter {
		result.ErrorType = "mock_failure"
		result.ErrorMessage = fmt.Sprintf("mock client failed after %d requests", c.FailAfter)
		return result, fmt.Errorf("mock client failed after %d requests", c.FailAfter)
	}

	if c.Latency > 0 {
		select {
		case <-time.After(c.Latency):
		case <-ctx.Done():
			result.ErrorType = "context_cancelled"
			result.ErrorMessage = ctx.Err().Error()
			return result, ctx.Err()
		}
	}

	promptTokens := 0
	for _, m := range req.Messages {
		promptTokens += len(m.Content) / 4 // Rough estimate
	}

	result.Success = true
	result.Content = text
	result.PromptTokens = promptTokens
	result.CompletionTokens = len(text) / 4
	result.TotalTokens = result.PromptTokens + result.CompletionTokens
	result.ExecutionTime = time.Since(start)
	return result, nil
}

// Requests returns a copy of every request received.
func (c *MockClient) Requests() []ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ChatRequest, len(c.requests))
	copy(out, c.requests)
	return out
}

// RequestCount returns the number of requests made.
func (c *MockClient) RequestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// Verify interface
var _ LLMClient = (*MockClient)(nil)
