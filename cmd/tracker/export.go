package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/tracker/internal/svcctx"
)

var exportPath string

var exportCmd = &cobra.Command{
	Use:   "export <chat id>",
	Short: "Export a stored chat with its trackers as YAML",
	Long: `Export a stored chat, trackers included, in the same YAML layout
that import reads. Use --file - to write to stdout.

Examples:
  tracker export c1                  # writes <home>/exports/c1.yaml
  tracker export c1 --file - | less`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cleanup, err := loadServices(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer cleanup()

		id := args[0]
		db := svcctx.DBFrom(ctx)

		if exportPath == "-" {
			return db.ExportChat(ctx, id, cmd.OutOrStdout())
		}

		path := exportPath
		if path == "" {
			h := svcctx.HomeFrom(ctx)
			if err := h.EnsureExists(); err != nil {
				return err
			}
			path = h.ExportPath(id)
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := db.ExportChat(ctx, id, f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportPath, "file", "", "output file (default: <home>/exports/<id>.yaml)")
	addDBFlag(exportCmd)
	rootCmd.AddCommand(exportCmd)
}
