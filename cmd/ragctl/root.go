package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/WessleyAI/groundwork/engine/app"
	"github.com/WessleyAI/groundwork/pkg/config"
)

type rootOptions struct {
	configPath string
	memory     bool
	deps       app.Deps
}

func newRootCmd(deps app.Deps) *cobra.Command {
	o := &rootOptions{deps: deps}
	root := &cobra.Command{
		Use:           "ragctl",
		Short:         "Ingest documents and ask grounded questions",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&o.configPath, "config", "c", "", "config file (YAML)")
	root.PersistentFlags().BoolVar(&o.memory, "memory", false, "use the in-memory store and no external index or queue")

	root.AddCommand(
		ingestCmd(o),
		queryCmd(o),
		migrateCmd(o),
		reindexCmd(o),
		checksumCmd(),
	)
	return root
}

func (o *rootOptions) config() (config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if o.memory {
		cfg.Store.Driver = config.DriverMemory
		cfg.Index.Driver = config.DriverNone
		cfg.NATS.URL = ""
	}
	return cfg, nil
}

// open builds the application with a text logger on stderr.
func (o *rootOptions) open(cmd *cobra.Command) (*app.App, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	deps := o.deps
	if deps.Logger == nil {
		deps.Logger = config.NewLogger(config.LogConfig{Level: cfg.Log.Level, Format: "text"}, cmd.ErrOrStderr())
	}
	a, err := app.New(cmd.Context(), cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("ragctl: %w", err)
	}
	return a, nil
}
