package main

import (
	"github.com/spf13/cobra"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the check scheduler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := opts.compose(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Logger.Close()
			defer app.Close()
			app.Logger.Printf("monitor-hub listening on %s", app.Config.ListenAddr)
			return app.Run(cmd.Context(), opts.configPath)
		},
	}
}
