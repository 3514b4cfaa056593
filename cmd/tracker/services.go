package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/tracker/internal/config"
	"github.com/jackzampolin/tracker/internal/home"
	"github.com/jackzampolin/tracker/internal/llmcall"
	"github.com/jackzampolin/tracker/internal/providers"
	"github.com/jackzampolin/tracker/internal/store"
	"github.com/jackzampolin/tracker/internal/svcctx"
)

var dbPath string

// addDBFlag registers --db on commands that open the chat database.
func addDBFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&dbPath, "db", "", "chat database path (default: storage.path, then <home>/tracker.db)")
}

// loadServices loads config and, when withDB is set, opens the chat database
// and call log. The returned context carries the services; call the cleanup
// func when done.
func loadServices(ctx context.Context, withDB bool) (context.Context, func(), error) {
	logger := slog.Default()

	h, err := home.New(homeDir)
	if err != nil {
		return nil, nil, err
	}
	file := cfgFile
	if file == "" && homeDir != "" && h.ConfigExists() {
		file = h.ConfigPath()
	}

	cm, err := config.NewManager(file)
	if err != nil {
		return nil, nil, err
	}
	cfg := cm.Get()
	if f := cm.ConfigFile(); f != "" {
		logger.Debug("loaded config", "file", f)
	}

	registry := providers.NewRegistryFromConfig(cfg.ToProviderRegistryConfig())
	registry.SetLogger(logger)

	svcs := &svcctx.Services{
		Home:     h,
		Config:   cm,
		Registry: registry,
		Logger:   logger,
	}
	cleanup := func() {}

	if withDB {
		path := dbPath
		if path == "" {
			path = cfg.Storage.Path
		}
		if path == "" {
			if err := h.EnsureExists(); err != nil {
				return nil, nil, err
			}
			path = h.DatabasePath()
		}
		db, err := store.Open(path)
		if err != nil {
			return nil, nil, err
		}
		calls, err := llmcall.NewStore(db.SQL())
		if err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to init call log: %w", err)
		}
		svcs.DB = db
		svcs.LLMCallStore = calls
		cleanup = func() {
			if err := db.Close(); err != nil {
				logger.Warn("failed to close database", "error", err)
			}
		}
	}

	return svcctx.WithServices(ctx, svcs), cleanup, nil
}
