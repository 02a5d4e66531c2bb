package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"cratesync/internal/config"
	"cratesync/internal/store"
)

func newTracksCommand(ctx *commandContext) *cobra.Command {
	tracksCmd := &cobra.Command{
		Use:   "tracks",
		Short: "Inspect track mappings",
	}
	tracksCmd.AddCommand(newTracksListCommand(ctx))
	return tracksCmd
}

func newTracksListCommand(ctx *commandContext) *cobra.Command {
	var statusFlags []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List track mappings, optionally filtered by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			statuses := make([]store.Status, 0, len(statusFlags))
			for _, raw := range statusFlags {
				s, err := store.ParseStatus(raw)
				if err != nil {
					return err
				}
				statuses = append(statuses, s)
			}
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				tracks, err := st.ListTracks(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(tracks) == 0 {
					fmt.Fprintln(out, "No tracks.")
					return nil
				}
				rows := make([][]string, 0, len(tracks))
				for _, t := range tracks {
					bitrate := "-"
					if t.Bitrate > 0 {
						bitrate = strconv.Itoa(t.Bitrate)
					}
					label := t.LocalPath
					if t.IsPlaceholder() && t.DisplayName != "" {
						label = t.DisplayName + " (remote only)"
					}
					rows = append(rows, []string{
						strconv.FormatInt(t.ID, 10),
						label,
						dash(t.RemoteID),
						bitrate,
						string(t.Status),
					})
				}
				fmt.Fprintln(out, renderTable([]column{
					{header: "ID", align: alignRight},
					{header: "Track"},
					{header: "Tidal ID"},
					{header: "kbps", align: alignRight},
					{header: "Status"},
				}, rows))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&statusFlags, "status", nil, "Filter by status (synced, pending_download, pending_cleanup, failed)")
	return cmd
}
