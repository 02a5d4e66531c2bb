package main

import (
	"github.com/spf13/cobra"

	"cratesync/internal/daemonrun"
)

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var development bool
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run sync (and optionally recover) on the configured interval",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    ctx.resolvedLogLevel(cfg),
				Development: development,
			})
		},
	}
	cmd.Flags().BoolVar(&development, "development", false, "Include source locations in log output")
	return cmd
}
