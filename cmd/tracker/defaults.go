package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/tracker/internal/api"
	"github.com/jackzampolin/tracker/internal/svcctx"
	"github.com/jackzampolin/tracker/internal/tracker"
)

var defaultsFilter string

// definitionView is what `tracker defaults` prints.
type definitionView struct {
	Filter      tracker.Filter   `json:"filter" yaml:"filter"`
	Format      tracker.Format   `json:"format" yaml:"format"`
	Default     tracker.Record   `json:"default" yaml:"default"`
	DefaultText string           `json:"default_text" yaml:"default_text"`
	Examples    []tracker.Record `json:"examples" yaml:"examples"`
	FieldPrompt string           `json:"field_prompt" yaml:"field_prompt"`
}

var defaultsCmd = &cobra.Command{
	Use:   "defaults",
	Short: "Show the default record, examples and field prompt for the tracker definition",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cleanup, err := loadServices(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer cleanup()

		cfg := svcctx.ConfigFrom(ctx).Get()
		filter := tracker.Filter(cfg.Generation.Filter)
		if defaultsFilter != "" {
			if filter, err = tracker.ParseFilter(defaultsFilter); err != nil {
				return err
			}
		}
		format, _ := tracker.ParseFormat(cfg.Generation.Format)

		def := tracker.DefaultRecord(cfg.Tracker, filter, format)
		text, err := tracker.CodecFor(format).PromptText(def, cfg.Tracker.Included(filter, false))
		if err != nil {
			return err
		}

		return api.Output(definitionView{
			Filter:      filter,
			Format:      format,
			Default:     def,
			DefaultText: text,
			Examples:    tracker.ExampleRecords(cfg.Tracker, filter, format),
			FieldPrompt: tracker.FieldPrompt(cfg.Tracker, filter, format),
		})
	},
}

func init() {
	defaultsCmd.Flags().StringVar(&defaultsFilter, "filter", "", "field filter: all, static, dynamic (default: generation.filter)")
	rootCmd.AddCommand(defaultsCmd)
}
