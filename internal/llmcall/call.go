// Package llmcall provides LLM call recording and querying for traceability.
// Every tracker generation call is recorded with its prompt key, response, and metrics.
package llmcall

import (
	"time"

	"github.com/google/uuid"

	"github.com/jackzampolin/tracker/internal/providers"
)

// Prompt keys identify which generation stage issued a call.
const (
	KeySingleStage = "tracker.single_stage"
	KeyFirstStage  = "tracker.first_stage"
	KeySecondStage = "tracker.second_stage"
)

// Call represents a recorded LLM API call.
type Call struct {
	// Unique identifier
	ID string `json:"id" db:"id"`

	// Timing
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	LatencyMs int       `json:"latency_ms" db:"latency_ms"`

	// Context references
	ChatID       string `json:"chat_id,omitempty" db:"chat_id"`
	MessageIndex int    `json:"message_index" db:"message_index"`

	// Prompt traceability
	PromptKey string `json:"prompt_key" db:"prompt_key"`
	Prompt    string `json:"prompt,omitempty" db:"prompt"`

	// Model info
	Provider string `json:"provider" db:"provider"`
	Model    string `json:"model" db:"model"`

	// Token usage
	InputTokens  int `json:"input_tokens" db:"input_tokens"`
	OutputTokens int `json:"output_tokens" db:"output_tokens"`

	// Response
	Response string `json:"response" db:"response"`

	// Status
	Success bool   `json:"success" db:"success"`
	Error   string `json:"error,omitempty" db:"error"`
}

// RecordOptions provides context for recording an LLM call.
type RecordOptions struct {
	// Context references (all optional)
	ChatID       string
	MessageIndex int

	// Prompt identification (required for traceability)
	PromptKey string
	Prompt    string
}

// FromChatResult creates a Call from a ChatResult.
// Returns nil if result is nil.
func FromChatResult(result *providers.ChatResult, opts RecordOptions) *Call {
	if result == nil {
		return nil
	}

	call := &Call{
		ID:           uuid.New().String(),
		Timestamp:    time.Now().UTC(),
		LatencyMs:    int(result.ExecutionTime.Milliseconds()),
		ChatID:       opts.ChatID,
		MessageIndex: opts.MessageIndex,
		PromptKey:    opts.PromptKey,
		Prompt:       opts.Prompt,
		Provider:     result.Provider,
		Model:        result.ModelUsed,
		InputTokens:  result.PromptTokens,
		OutputTokens: result.CompletionTokens,
		Response:     result.Content,
		Success:      result.Success,
	}

	if !result.Success {
		call.Error = result.ErrorMessage
	}

	return call
}
