package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/jackzampolin/tracker/internal/api"
	"github.com/jackzampolin/tracker/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
	logLevel     string
)

var rootCmd = &cobra.Command{
	Use:   "tracker",
	Short: "Scene tracker generation for roleplay chats",
	Long: `Tracker keeps a structured record of scene state (time, location,
characters, outfits, topics) alongside each message of a roleplay chat.

It renders prompts from configurable templates, asks an LLM for the tracker
of a message in one or two stages, and extracts the record from the reply.`,
	Version:       version.GitRelease,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.tracker/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "tracker home directory (default: ~/.tracker)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)
	rootCmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "info", "log level: debug, info, warn, error",
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		format, err := api.ParseOutputFormat(outputFormat)
		if err != nil {
			return err
		}
		api.SetOutputFormat(format)

		logger, err := newLogger(logLevel)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	}

	rootCmd.AddCommand(versionCmd)
}

// newLogger returns a slog logger backed by a charm handler on stderr so
// command output on stdout stays machine-readable.
func newLogger(level string) (*slog.Logger, error) {
	lvl, err := charmlog.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", level, err)
	}
	handler := charmlog.NewWithOptions(os.Stderr, charmlog.Options{
		ReportTimestamp: true,
		Level:           lvl,
		TimeFormat:      time.Kitchen,
	})
	return slog.New(handler), nil
}
