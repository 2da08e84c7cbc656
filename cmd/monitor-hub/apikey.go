package main

import (
	"fmt"

	"monitor-hub/core/auth"

	"github.com/spf13/cobra"
)

func newAPIKeyCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	cmd.AddCommand(newAPIKeyCreateCmd(opts), newAPIKeyRevokeCmd(opts))
	return cmd
}

func newAPIKeyCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		userID int64
		name   string
		role   string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a key and print the token once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID <= 0 {
				return fmt.Errorf("--user must be positive")
			}
			app, err := opts.compose(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Logger.Close()
			defer app.Close()
			token, key, err := app.Keys.Create(cmd.Context(), userID, name, role)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:    %s\n", key.ID)
			fmt.Fprintf(out, "role:  %s\n", key.Role)
			fmt.Fprintf(out, "token: %s\n", token)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", auth.DefaultUser, "owner user id")
	cmd.Flags().StringVar(&name, "name", "", "label for the key")
	cmd.Flags().StringVar(&role, "role", auth.RoleViewer, "admin or viewer")
	return cmd
}

func newAPIKeyRevokeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke a key by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.compose(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Logger.Close()
			defer app.Close()
			if err := app.Keys.Revoke(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked %s\n", args[0])
			return nil
		},
	}
}
