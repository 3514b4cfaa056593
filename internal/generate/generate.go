// Package generate builds tracker prompts from conversation state, calls the
// model and extracts the resulting record.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackzampolin/tracker/internal/conversation"
	"github.com/jackzampolin/tracker/internal/extract"
	"github.com/jackzampolin/tracker/internal/llmcall"
	"github.com/jackzampolin/tracker/internal/providers"
	"github.com/jackzampolin/tracker/internal/template"
	"github.com/jackzampolin/tracker/internal/tracker"
)

// Strategy selects single-stage or summarize-then-generate.
type Strategy string

const (
	StrategySingleStage Strategy = "single_stage"
	StrategyTwoStage    Strategy = "two_stage"
)

// ParseStrategy parses a strategy name. Empty means single-stage.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategySingleStage:
		return StrategySingleStage, nil
	case StrategyTwoStage:
		return StrategyTwoStage, nil
	}
	return "", fmt.Errorf("unknown generation strategy %q", s)
}

// ErrReadOnly is returned by GenerateAndAttach when the store cannot take records.
var ErrReadOnly = errors.New("conversation store does not accept trackers")

// Prompts holds the templates for one generation call.
type Prompts struct {
	System  string
	Request string
	Message string // one recent message
}

// Config configures a Generator.
type Config struct {
	Definition tracker.Definition
	Strategy   Strategy
	Filter     tracker.Filter // used when a call passes no filter
	Format     tracker.Format

	RecentMessages    int
	MaxResponseTokens int // <= 0 means no limit
	CharacterTemplate string
	Model             string // client default when empty

	Generation Prompts
	Summary    Prompts // two-stage only

	// ChatID tags recorded calls.
	ChatID   string
	Recorder *llmcall.Recorder
	Logger   *slog.Logger
}

// Generator produces tracker records for messages of one conversation.
type Generator struct {
	cfg       Config
	client    providers.LLMClient
	store     conversation.Store
	builder   *conversation.Builder
	extractor *extract.Extractor
	logger    *slog.Logger
}

// New creates a Generator.
func New(client providers.LLMClient, store conversation.Store, cfg Config) *Generator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategySingleStage
	}
	if cfg.Filter == "" {
		cfg.Filter = tracker.FilterDynamic
	}
	if cfg.Format == "" {
		cfg.Format = tracker.FormatStructured
	}

	return &Generator{
		cfg:    cfg,
		client: client,
		store:  store,
		builder: conversation.NewBuilder(store, conversation.BuilderConfig{
			Definition:        cfg.Definition,
			Format:            cfg.Format,
			Window:            cfg.RecentMessages,
			CharacterTemplate: cfg.CharacterTemplate,
		}),
		extractor: extract.New(cfg.Definition, cfg.Format, logger),
		logger:    logger,
	}
}

// GenerateTracker generates the tracker for the message at index.
// It returns nil, nil for a missing index, a system interjection, or model
// output without a usable tracker. Errors come only from the model call or
// from rendering context.
func (g *Generator) GenerateTracker(ctx context.Context, index int, filter tracker.Filter) (tracker.Record, error) {
	msg, ok := g.target(index)
	if !ok {
		g.logger.Debug("skipping tracker generation", "index", index)
		return nil, nil
	}
	if filter == "" {
		filter = g.cfg.Filter
	}

	logger := g.logger.With("index", index, "strategy", g.cfg.Strategy, "filter", filter)

	summary := ""
	if g.cfg.Strategy == StrategyTwoStage {
		var err error
		summary, err = g.firstStage(ctx, logger, index, msg, filter)
		if err != nil {
			return nil, err
		}
	}

	raw, err := g.trackerStage(ctx, logger, index, msg, filter, summary)
	if err != nil {
		return nil, err
	}

	rec, ok := g.extractor.Extract(raw, filter)
	if !ok {
		logger.Warn("model response had no usable tracker")
		return nil, nil
	}
	logger.Info("generated tracker", "fields", len(rec))
	logger.Debug("parsed tracker", "record", rec)
	return rec, nil
}

// GenerateAndAttach generates the tracker for index and stores it on the
// message. A nil record is not attached.
func (g *Generator) GenerateAndAttach(ctx context.Context, index int, filter tracker.Filter) (tracker.Record, error) {
	attacher, ok := g.store.(conversation.Attacher)
	if !ok {
		return nil, ErrReadOnly
	}

	rec, err := g.GenerateTracker(ctx, index, filter)
	if err != nil || rec == nil {
		return nil, err
	}
	if err := attacher.AttachTracker(index, rec); err != nil {
		return nil, fmt.Errorf("attach tracker to message %d: %w", index, err)
	}
	return rec, nil
}

// target returns the message at index unless it is absent or an interjection.
func (g *Generator) target(index int) (conversation.Message, bool) {
	if index < 0 {
		return conversation.Message{}, false
	}
	msg, ok := g.store.Message(index)
	if !ok || msg.Interjection {
		return conversation.Message{}, false
	}
	return msg, true
}

// firstStage asks the model to describe what the message changes.
func (g *Generator) firstStage(ctx context.Context, logger *slog.Logger, index int, msg conversation.Message, filter tracker.Filter) (string, error) {
	vars, conds, err := g.contextVars(index, msg, filter, g.cfg.Summary)
	if err != nil {
		return "", err
	}
	system := template.Render(g.cfg.Summary.System, vars, conds)
	request := template.Render(g.cfg.Summary.Request, vars, conds)
	return g.call(ctx, logger, llmcall.KeyFirstStage, index, system, request)
}

// trackerStage asks the model for the tracker block. summary fills
// {{firstStageMessage}} only when the request template has that placeholder;
// the system prompt always sees it empty.
func (g *Generator) trackerStage(ctx context.Context, logger *slog.Logger, index int, msg conversation.Message, filter tracker.Filter, summary string) (string, error) {
	vars, conds, err := g.contextVars(index, msg, filter, g.cfg.Generation)
	if err != nil {
		return "", err
	}
	system := template.Render(g.cfg.Generation.System, vars, conds)

	key := llmcall.KeySingleStage
	if g.cfg.Strategy == StrategyTwoStage {
		key = llmcall.KeySecondStage
		if template.HasPlaceholder(g.cfg.Generation.Request, "firstStageMessage") {
			vars["firstStageMessage"] = summary
			conds["firstStageMessage"] = summary != ""
		} else {
			logger.Debug("request template has no firstStageMessage placeholder; summary unused")
		}
	}
	request := template.Render(g.cfg.Generation.Request, vars, conds)
	return g.call(ctx, logger, key, index, system, request)
}

// contextVars assembles the prompt variables for the message at index.
// The recent window ends at the message, and the current tracker is its own
// record when it has one.
func (g *Generator) contextVars(index int, msg conversation.Message, filter tracker.Filter, prompts Prompts) (template.Vars, map[string]bool, error) {
	recent, hasRecent, err := g.builder.RecentMessages(prompts.Message, index, filter)
	if err != nil {
		return nil, nil, err
	}
	current, err := g.builder.CurrentTracker(index, filter)
	if err != nil {
		return nil, nil, fmt.Errorf("render current tracker: %w", err)
	}
	examples, err := tracker.ExamplesText(g.cfg.Definition, filter, g.cfg.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("render tracker examples: %w", err)
	}

	vars := template.Vars{
		"charNames":             conversation.JoinNames(g.builder.Roster()),
		"characterDescriptions": g.builder.CharacterDescriptions(),
		"trackerExamples":       examples,
		"recentMessages":        recent,
		"currentTracker":        current,
		"trackerFormat":         formatLabel(g.cfg.Format),
		"trackerFieldPrompt":    tracker.FieldPrompt(g.cfg.Definition, filter, g.cfg.Format),
		"firstStageMessage":     "",
		"message":               tracker.StripPayload(msg.Body),
	}
	conds := map[string]bool{
		"recentMessages":    hasRecent,
		"firstStageMessage": false,
	}
	return vars, conds, nil
}

// call sends one prompt pair and records it.
func (g *Generator) call(ctx context.Context, logger *slog.Logger, key string, index int, system, request string) (string, error) {
	req := providers.NewChatRequest(system, request, g.cfg.MaxResponseTokens)
	req.Model = g.cfg.Model

	logger.Debug("sending tracker prompt",
		"prompt_key", key,
		"system_prompt", system,
		"request_prompt", request)

	result, err := g.client.Chat(ctx, req)
	g.cfg.Recorder.Record(ctx, result, llmcall.RecordOptions{
		ChatID:       g.cfg.ChatID,
		MessageIndex: index,
		PromptKey:    key,
		Prompt:       request,
	})
	if err != nil {
		return "", fmt.Errorf("%s call for message %d: %w", key, index, err)
	}

	logger.Debug("received tracker response",
		"prompt_key", key,
		"response", result.Content,
		"total_tokens", result.TotalTokens)
	return result.Content, nil
}

func formatLabel(f tracker.Format) string {
	if f == tracker.FormatFlat {
		return "YAML with one line of plain text per field"
	}
	return "YAML"
}
