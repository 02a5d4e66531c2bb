package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cratesync/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var filter []string
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the cratesync log file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.LogFilePath()
			out := cmd.OutOrStdout()
			tail, offset, err := logs.Last(path, lines, filter)
			if err != nil {
				return err
			}
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}
			return logs.Follow(cmd.Context(), path, offset, 0, filter, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing lines as they are written")
	cmd.Flags().StringSliceVar(&filter, "grep", nil, "Only show lines containing this text (repeatable)")
	return cmd
}
