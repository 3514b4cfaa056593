package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/tracker/internal/api"
	"github.com/jackzampolin/tracker/internal/svcctx"
)

var importID string

var importCmd = &cobra.Command{
	Use:   "import <chat.yaml>",
	Short: "Import a chat from YAML into the database",
	Long: `Import a chat from a YAML file, replacing any chat with the same id.

File layout:
  cast:
    user: {name: Sam}
    counterpart: {name: Ada, description: A sharp-tongued engineer.}
  messages:
    - {speaker: Sam, body: "Morning.", is_user: true}
    - {speaker: Ada, body: "You're late."}`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cleanup, err := loadServices(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer cleanup()

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		chat, err := svcctx.DBFrom(ctx).ImportChat(ctx, importID, f)
		if err != nil {
			return err
		}
		svcctx.LoggerFrom(ctx).Info("imported chat", "id", importID, "messages", chat.Len())
		return api.Output(map[string]any{"id": importID, "messages": chat.Len()})
	},
}

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List stored chats",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cleanup, err := loadServices(cmd.Context(), true)
		if err != nil {
			return err
		}
		defer cleanup()

		db := svcctx.DBFrom(ctx)
		ids, err := db.ChatIDs(ctx)
		if err != nil {
			return err
		}

		type chatView struct {
			ID       string `json:"id" yaml:"id"`
			Messages int    `json:"messages" yaml:"messages"`
		}
		out := make([]chatView, 0, len(ids))
		for _, id := range ids {
			chat, err := db.OpenChat(ctx, id)
			if err != nil {
				return fmt.Errorf("open chat %s: %w", id, err)
			}
			out = append(out, chatView{ID: chat.ID(), Messages: chat.Len()})
		}
		return api.Output(out)
	},
}

func init() {
	importCmd.Flags().StringVar(&importID, "id", "", "chat id (required)")
	_ = importCmd.MarkFlagRequired("id")
	addDBFlag(importCmd)
	addDBFlag(chatsCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(chatsCmd)
}
