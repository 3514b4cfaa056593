package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/tracker/internal/api"
	"github.com/jackzampolin/tracker/internal/config"
	"github.com/jackzampolin/tracker/internal/generate"
	"github.com/jackzampolin/tracker/internal/llmcall"
	"github.com/jackzampolin/tracker/internal/providers"
	"github.com/jackzampolin/tracker/internal/store"
	"github.com/jackzampolin/tracker/internal/svcctx"
	"github.com/jackzampolin/tracker/internal/tracker"
)

// dryRunProvider is registered for --dry-run; it answers without a tracker.
const dryRunProvider = "dry-run"

var (
	genChatID   string
	genIndex    int
	genFilter   string
	genStrategy string
	genProvider string
	genModel    string
	genAttach   bool
	genDryRun   bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate the tracker for one message of a stored chat",
	Long: `Generate the tracker for the message at --index of the chat --chat.

The result is printed and, with --attach, saved on the message so later
generations use it as the previous scene state. --dry-run prints the composed
prompts without calling a model.

Examples:
  tracker generate --chat c1 --index 4
  tracker generate --chat c1 --index 4 --strategy two_stage --attach
  tracker generate --chat c1 --index 4 --filter all -o json
  tracker generate --chat c1 --index 4 --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cleanup, err := loadServices(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer cleanup()

		chat, err := svcctx.DBFrom(ctx).OpenChat(ctx, genChatID)
		if err != nil {
			return err
		}

		opts := generatorOptions{
			provider: genProvider,
			model:    genModel,
			strategy: genStrategy,
			filter:   genFilter,
		}
		var mock *providers.MockClient
		if genDryRun {
			mock = providers.NewMockClient()
			svcctx.RegistryFrom(ctx).RegisterLLM(dryRunProvider, mock)
			opts.provider = dryRunProvider
			opts.noRecord = true
		}

		gen, filter, err := newGenerator(ctx, svcctx.ConfigFrom(ctx).Get(), chat, opts)
		if err != nil {
			return err
		}

		if genDryRun {
			if _, err := gen.GenerateTracker(ctx, genIndex, filter); err != nil {
				return err
			}
			return api.Output(mock.Requests())
		}

		var rec tracker.Record
		if genAttach {
			rec, err = gen.GenerateAndAttach(ctx, genIndex, filter)
		} else {
			rec, err = gen.GenerateTracker(ctx, genIndex, filter)
		}
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("no tracker generated for message %d", genIndex)
		}
		return api.Output(rec)
	},
}

// generatorOptions are the per-run overrides shared by generate and backfill.
type generatorOptions struct {
	provider string
	model    string
	strategy string
	filter   string
	noRecord bool
}

// newGenerator builds a generator for chat from cfg and the registry in ctx.
// It returns the filter to pass to GenerateTracker.
func newGenerator(ctx context.Context, cfg *config.Config, chat *store.ChatStore, opts generatorOptions) (*generate.Generator, tracker.Filter, error) {
	logger := svcctx.LoggerFrom(ctx)

	name := opts.provider
	if name == "" {
		name = cfg.Defaults.LLMProvider
	}
	registry := svcctx.RegistryFrom(ctx)
	if !registry.HasLLM(name) {
		if err := cfg.ExplainProvider(name); err != nil {
			return nil, "", err
		}
	}
	client, err := registry.GetLLM(name)
	if err != nil {
		return nil, "", fmt.Errorf("%w (registered: %s)", err, strings.Join(registry.ListLLM(), ", "))
	}

	genCfg := cfg.GeneratorConfig()
	filter := genCfg.Filter
	if opts.filter != "" {
		if filter, err = tracker.ParseFilter(opts.filter); err != nil {
			return nil, "", err
		}
	}
	if opts.strategy != "" {
		strategy, err := generate.ParseStrategy(opts.strategy)
		if err != nil {
			return nil, "", err
		}
		genCfg.Strategy = strategy
	}
	genCfg.Model = opts.model
	genCfg.ChatID = chat.ID()
	genCfg.Logger = logger.With("chat", chat.ID())
	if calls := svcctx.LLMCallStoreFrom(ctx); calls != nil && !opts.noRecord {
		genCfg.Recorder = llmcall.NewRecorder(calls, logger)
	}

	return generate.New(client, chat, genCfg), filter, nil
}

func init() {
	generateCmd.Flags().StringVar(&genChatID, "chat", "", "chat id (required)")
	generateCmd.Flags().IntVar(&genIndex, "index", -1, "message index (required)")
	generateCmd.Flags().StringVar(&genFilter, "filter", "", "field filter: all, static, dynamic (default: generation.filter)")
	generateCmd.Flags().StringVar(&genStrategy, "strategy", "", "single_stage or two_stage (default: generation.strategy)")
	generateCmd.Flags().StringVar(&genProvider, "provider", "", "LLM provider name (default: defaults.llm_provider)")
	generateCmd.Flags().StringVar(&genModel, "model", "", "model override (default: provider model)")
	generateCmd.Flags().BoolVar(&genAttach, "attach", false, "save the tracker on the message")
	generateCmd.Flags().BoolVar(&genDryRun, "dry-run", false, "print the prompts instead of calling a model")
	addDBFlag(generateCmd)
	_ = generateCmd.MarkFlagRequired("chat")
	_ = generateCmd.MarkFlagRequired("index")
	generateCmd.MarkFlagsMutuallyExclusive("dry-run", "attach")
	rootCmd.AddCommand(generateCmd)
}
