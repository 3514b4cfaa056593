package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/tracker/internal/api"
	"github.com/jackzampolin/tracker/internal/config"
	"github.com/jackzampolin/tracker/internal/svcctx"
)

var configForce bool

type providerView struct {
	Name    string `json:"name" yaml:"name"`
	Type    string `json:"type" yaml:"type"`
	Model   string `json:"model" yaml:"model"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Ready   bool   `json:"ready" yaml:"ready"`
	Problem string `json:"problem,omitempty" yaml:"problem,omitempty"`
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage tracker configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default config file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil && !configForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.WriteDefault(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cleanup, err := loadServices(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer cleanup()

		cfg := svcctx.ConfigFrom(ctx).Get()
		registry := svcctx.RegistryFrom(ctx)

		names := make([]string, 0, len(cfg.LLMProviders))
		for name := range cfg.LLMProviders {
			names = append(names, name)
		}
		sort.Strings(names)
		views := make([]providerView, 0, len(names))
		for _, name := range names {
			prov, _ := cfg.GetLLMProvider(name)
			v := providerView{
				Name:    name,
				Type:    prov.Type,
				Model:   prov.Model,
				Enabled: prov.Enabled,
				Ready:   registry.HasLLM(name),
			}
			if !v.Ready {
				if err := cfg.ExplainProvider(name); err != nil {
					v.Problem = err.Error()
				}
			}
			views = append(views, v)
		}

		return api.Output(map[string]any{
			"config_file": svcctx.ConfigFrom(ctx).ConfigFile(),
			"providers":   views,
			"config":      cfg,
		})
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
