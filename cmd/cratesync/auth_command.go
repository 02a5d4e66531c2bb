package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cratesync/internal/config"
	"cratesync/internal/daemonrun"
	"cratesync/internal/preflight"
)

func newAuthCommand(ctx *commandContext) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the Tidal session",
	}
	authCmd.AddCommand(newAuthLoginCommand(ctx))
	authCmd.AddCommand(newAuthStatusCommand(ctx))
	return authCmd
}

func newAuthLoginCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Link this machine to a Tidal account with a device code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withRuntime(func(cfg *config.Config, rt *daemonrun.Runtime) error {
				login, err := rt.Catalog.StartDeviceLogin(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Open %s\n", login.VerificationURI)
				fmt.Fprintf(out, "and confirm the code %s\n", login.UserCode)
				fmt.Fprintln(out, "Waiting for approval...")
				if err := rt.Catalog.CompleteDeviceLogin(cmd.Context(), login); err != nil {
					return err
				}
				fmt.Fprintf(out, "Logged in; session saved to %s\n", cfg.TokenPath())
				return nil
			})
		},
	}
}

func newAuthStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether a usable session is stored",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			result := preflight.CheckTidalSession(cfg)
			kind := statusOK
			if !result.Passed {
				kind = statusError
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, shouldColorize(out)))
			if !result.Passed {
				return fmt.Errorf("no usable Tidal session; run `cratesync auth login`")
			}
			return nil
		},
	}
}
