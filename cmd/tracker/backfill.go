package main

import (
	"sync"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/tracker/internal/api"
	"github.com/jackzampolin/tracker/internal/config"
	"github.com/jackzampolin/tracker/internal/svcctx"
)

var (
	bfChatID    string
	bfFrom      int
	bfOverwrite bool
	bfFilter    string
	bfStrategy  string
	bfProvider  string
	bfModel     string
)

type backfillResult struct {
	Chat      string `json:"chat" yaml:"chat"`
	Generated int    `json:"generated" yaml:"generated"`
	Skipped   int    `json:"skipped" yaml:"skipped"`
	Missed    int    `json:"missed" yaml:"missed"`
}

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Generate and attach trackers for every message of a chat",
	Long: `Walk the chat from --from to the end, generating and attaching a tracker
for each message that has none. Messages are processed in order so each one
sees the tracker attached to the message before it.

The config file is watched while the run is in progress. Edits to providers,
prompts or the tracker definition apply from the next message; an invalid edit
is ignored.

Examples:
  tracker backfill --chat c1
  tracker backfill --chat c1 --from 10 --overwrite`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cleanup, err := loadServices(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer cleanup()

		logger := svcctx.LoggerFrom(ctx)
		cm := svcctx.ConfigFrom(ctx)
		registry := svcctx.RegistryFrom(ctx)

		chat, err := svcctx.DBFrom(ctx).OpenChat(ctx, bfChatID)
		if err != nil {
			return err
		}

		var (
			mu      sync.Mutex
			latest  = cm.Get()
			changed bool
		)
		opts := generatorOptions{
			provider: bfProvider,
			model:    bfModel,
			strategy: bfStrategy,
			filter:   bfFilter,
		}
		gen, filter, err := newGenerator(ctx, latest, chat, opts)
		if err != nil {
			return err
		}

		cm.OnChange(func(cfg *config.Config) {
			registry.Reload(cfg.ToProviderRegistryConfig())
			mu.Lock()
			latest = cfg
			changed = true
			mu.Unlock()
			logger.Info("config reloaded", "file", cm.ConfigFile())
		})
		if cm.ConfigFile() != "" {
			cm.WatchConfig()
		}

		res := backfillResult{Chat: chat.ID()}
		for i := max(bfFrom, 0); i < chat.Len(); i++ {
			if err := ctx.Err(); err != nil {
				return err
			}

			mu.Lock()
			cfg, reload := latest, changed
			changed = false
			mu.Unlock()
			if reload {
				if gen, filter, err = newGenerator(ctx, cfg, chat, opts); err != nil {
					return err
				}
			}

			msg, ok := chat.Message(i)
			if !ok || msg.Interjection {
				continue
			}
			if len(msg.Tracker) > 0 && !bfOverwrite {
				res.Skipped++
				continue
			}

			rec, err := gen.GenerateAndAttach(ctx, i, filter)
			if err != nil {
				return err
			}
			if rec == nil {
				res.Missed++
				continue
			}
			res.Generated++
		}

		logger.Info("backfill complete", "chat", res.Chat, "generated", res.Generated, "skipped", res.Skipped, "missed", res.Missed)
		return api.Output(res)
	},
}

func init() {
	backfillCmd.Flags().StringVar(&bfChatID, "chat", "", "chat id (required)")
	backfillCmd.Flags().IntVar(&bfFrom, "from", 0, "first message index")
	backfillCmd.Flags().BoolVar(&bfOverwrite, "overwrite", false, "regenerate messages that already have a tracker")
	backfillCmd.Flags().StringVar(&bfFilter, "filter", "", "field filter: all, static, dynamic (default: generation.filter)")
	backfillCmd.Flags().StringVar(&bfStrategy, "strategy", "", "single_stage or two_stage (default: generation.strategy)")
	backfillCmd.Flags().StringVar(&bfProvider, "provider", "", "LLM provider name (default: defaults.llm_provider)")
	backfillCmd.Flags().StringVar(&bfModel, "model", "", "model override (default: provider model)")
	addDBFlag(backfillCmd)
	_ = backfillCmd.MarkFlagRequired("chat")
	rootCmd.AddCommand(backfillCmd)
}
