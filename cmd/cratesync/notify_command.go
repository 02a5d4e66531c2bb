package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cratesync/internal/notifications"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification to the configured ntfy topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if cfg.Notifications.NtfyTopic == "" {
				fmt.Fprintln(out, "notifications.ntfy_topic is not set; nothing to send")
				return nil
			}
			if err := notifications.NewService(cfg).TestNotification(cmd.Context()); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintf(out, "Test notification sent to %s\n", cfg.Notifications.NtfyTopic)
			return nil
		},
	}
}
