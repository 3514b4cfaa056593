package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/tracker/internal/api"
	"github.com/jackzampolin/tracker/internal/llmcall"
	"github.com/jackzampolin/tracker/internal/svcctx"
)

var (
	callsChatID  string
	callsIndex   int
	callsKey     string
	callsSince   time.Duration
	callsFailed  bool
	callsLimit   int
	callsVerbose bool
)

var callsCmd = &cobra.Command{
	Use:   "calls [id]",
	Short: "Inspect recorded LLM calls",
	Long: `List recorded LLM calls, newest first, or show one call by id.

Examples:
  tracker calls --chat c1
  tracker calls --chat c1 --index 4 --verbose
  tracker calls --failed --since 1h
  tracker calls 0b6f...`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cleanup, err := loadServices(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer cleanup()

		calls := svcctx.LLMCallStoreFrom(ctx)

		if len(args) == 1 {
			call, err := calls.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if call == nil {
				return fmt.Errorf("call not found: %s", args[0])
			}
			return api.Output(call)
		}

		filter := llmcall.QueryFilter{
			ChatID:    callsChatID,
			PromptKey: callsKey,
			Limit:     callsLimit,
		}
		if cmd.Flags().Changed("index") {
			filter.MessageIndex = &callsIndex
		}
		if callsSince > 0 {
			after := time.Now().Add(-callsSince)
			filter.After = &after
		}
		if callsFailed {
			success := false
			filter.Success = &success
		}

		list, err := calls.List(ctx, filter)
		if err != nil {
			return err
		}
		if !callsVerbose {
			for i := range list {
				list[i].Prompt = ""
				list[i].Response = ""
			}
		}
		return api.Output(list)
	},
}

func init() {
	callsCmd.Flags().StringVar(&callsChatID, "chat", "", "only calls for this chat")
	callsCmd.Flags().IntVar(&callsIndex, "index", 0, "only calls for this message index")
	callsCmd.Flags().StringVar(&callsKey, "key", "", "only calls with this prompt key, e.g. tracker.first_stage")
	callsCmd.Flags().DurationVar(&callsSince, "since", 0, "only calls newer than this duration")
	callsCmd.Flags().BoolVar(&callsFailed, "failed", false, "only failed calls")
	callsCmd.Flags().IntVar(&callsLimit, "limit", 20, "maximum calls to list (0 = all)")
	callsCmd.Flags().BoolVarP(&callsVerbose, "verbose", "v", false, "include prompts and responses")
	addDBFlag(callsCmd)
	rootCmd.AddCommand(callsCmd)
}
