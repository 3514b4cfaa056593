package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/tracker/internal/api"
	"github.com/jackzampolin/tracker/internal/extract"
	"github.com/jackzampolin/tracker/internal/svcctx"
	"github.com/jackzampolin/tracker/internal/tracker"
)

var extractFilter string

var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Extract a tracker from raw model output",
	Long: `Parse and validate the tracker block in raw model output read from a
file or stdin, using the configured tracker definition and format.

Examples:
  tracker extract reply.txt
  cat reply.txt | tracker extract --filter all -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cleanup, err := loadServices(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer cleanup()

		cfg := svcctx.ConfigFrom(ctx).Get()

		var in io.Reader = os.Stdin
		if len(args) == 1 {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			in = f
		}
		raw, err := io.ReadAll(in)
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		filter := tracker.Filter(cfg.Generation.Filter)
		if extractFilter != "" {
			if filter, err = tracker.ParseFilter(extractFilter); err != nil {
				return err
			}
		}
		format, _ := tracker.ParseFormat(cfg.Generation.Format)

		ex := extract.New(cfg.Tracker, format, svcctx.LoggerFrom(ctx))
		rec, ok := ex.Extract(string(raw), filter)
		if !ok {
			return fmt.Errorf("no valid tracker in input")
		}
		return api.Output(rec)
	},
}

func init() {
	extractCmd.Flags().StringVar(&extractFilter, "filter", "", "field filter: all, static, dynamic (default: generation.filter)")
	rootCmd.AddCommand(extractCmd)
}
