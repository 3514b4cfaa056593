package llmcall

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store provides access to LLM call records in SQLite.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new LLMCall store, creating its table if needed.
func NewStore(db *sqlx.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate llm_calls: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS llm_calls (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		latency_ms INTEGER NOT NULL,
		chat_id TEXT NOT NULL DEFAULT '',
		message_index INTEGER NOT NULL,
		prompt_key TEXT NOT NULL,
		prompt TEXT NOT NULL DEFAULT '',
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		input_tokens INTEGER NOT NULL,
		output_tokens INTEGER NOT NULL,
		response TEXT NOT NULL,
		success INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_llm_calls_chat ON llm_calls(chat_id, message_index);
	CREATE INDEX IF NOT EXISTS idx_llm_calls_timestamp ON llm_calls(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// callRow is the on-disk shape of a Call.
type callRow struct {
	ID           string `db:"id"`
	Timestamp    string `db:"timestamp"`
	LatencyMs    int    `db:"latency_ms"`
	ChatID       string `db:"chat_id"`
	MessageIndex int    `db:"message_index"`
	PromptKey    string `db:"prompt_key"`
	Prompt       string `db:"prompt"`
	Provider     string `db:"provider"`
	Model        string `db:"model"`
	InputTokens  int    `db:"input_tokens"`
	OutputTokens int    `db:"output_tokens"`
	Response     string `db:"response"`
	Success      bool   `db:"success"`
	Error        string `db:"error"`
}

func toRow(c *Call) callRow {
	return callRow{
		ID:           c.ID,
		Timestamp:    c.Timestamp.UTC().Format(timeLayout),
		LatencyMs:    c.LatencyMs,
		ChatID:       c.ChatID,
		MessageIndex: c.MessageIndex,
		PromptKey:    c.PromptKey,
		Prompt:       c.Prompt,
		Provider:     c.Provider,
		Model:        c.Model,
		InputTokens:  c.InputTokens,
		OutputTokens: c.OutputTokens,
		Response:     c.Response,
		Success:      c.Success,
		Error:        c.Error,
	}
}

func (r callRow) call() Call {
	ts, _ := time.Parse(timeLayout, r.Timestamp)
	return Call{
		ID:           r.ID,
		Timestamp:    ts,
		LatencyMs:    r.LatencyMs,
		ChatID:       r.ChatID,
		MessageIndex: r.MessageIndex,
		PromptKey:    r.PromptKey,
		Prompt:       r.Prompt,
		Provider:     r.Provider,
		Model:        r.Model,
		InputTokens:  r.InputTokens,
		OutputTokens: r.OutputTokens,
		Response:     r.Response,
		Success:      r.Success,
		Error:        r.Error,
	}
}

// SaveCall inserts a call record.
func (s *Store) SaveCall(ctx context.Context, call *Call) error {
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO llm_calls
		(id, timestamp, latency_ms, chat_id, message_index, prompt_key, prompt,
		 provider, model, input_tokens, output_tokens, response, success, error)
		VALUES (:id, :timestamp, :latency_ms, :chat_id, :message_index, :prompt_key, :prompt,
		 :provider, :model, :input_tokens, :output_tokens, :response, :success, :error)`,
		toRow(call))
	if err != nil {
		return fmt.Errorf("insert llm call %s: %w", call.ID, err)
	}
	return nil
}

// QueryFilter specifies filters for listing LLM calls.
type QueryFilter struct {
	ChatID       string
	MessageIndex *int
	PromptKey    string
	Provider     string
	Model        string
	After        *time.Time
	Before       *time.Time
	Success      *bool
	Limit        int
	Offset       int
}

// Get retrieves a single LLM call by ID. Returns nil if not found.
func (s *Store) Get(ctx context.Context, id string) (*Call, error) {
	var row callRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM llm_calls WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	call := row.call()
	return &call, nil
}

// List retrieves LLM calls matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter QueryFilter) ([]Call, error) {
	var (
		conditions []string
		args       []any
	)
	add := func(cond string, arg any) {
		conditions = append(conditions, cond)
		args = append(args, arg)
	}

	if filter.ChatID != "" {
		add("chat_id = ?", filter.ChatID)
	}
	if filter.MessageIndex != nil {
		add("message_index = ?", *filter.MessageIndex)
	}
	if filter.PromptKey != "" {
		add("prompt_key = ?", filter.PromptKey)
	}
	if filter.Provider != "" {
		add("provider = ?", filter.Provider)
	}
	if filter.Model != "" {
		add("model = ?", filter.Model)
	}
	if filter.Success != nil {
		add("success = ?", *filter.Success)
	}
	if filter.After != nil {
		add("timestamp > ?", filter.After.UTC().Format(timeLayout))
	}
	if filter.Before != nil {
		add("timestamp < ?", filter.Before.UTC().Format(timeLayout))
	}

	query := "SELECT * FROM llm_calls"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY timestamp DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	var rows []callRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}

	calls := make([]Call, len(rows))
	for i, r := range rows {
		calls[i] = r.call()
	}
	return calls, nil
}

var _ Sink = (*Store)(nil)
