package main

import (
	"context"
	"fmt"

	"monitor-hub/config"
	"monitor-hub/core/appbootstrap"
	"monitor-hub/core/utils"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "monitor-hub",
		Short:         "Uptime checks, incidents and alert delivery",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "path to the YAML config file")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newSweepCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newAPIKeyCmd(opts))
	return cmd
}

func (o *rootOptions) load() (*config.AppConfig, *utils.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := utils.NewLoggerFromConfig(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, logger, nil
}

func (o *rootOptions) compose(ctx context.Context) (*appbootstrap.App, error) {
	cfg, logger, err := o.load()
	if err != nil {
		return nil, err
	}
	app, err := appbootstrap.Compose(ctx, cfg, logger)
	if err != nil {
		logger.Close()
		return nil, err
	}
	return app, nil
}
