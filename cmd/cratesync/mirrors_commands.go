package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"cratesync/internal/config"
	"cratesync/internal/reconcile"
	"cratesync/internal/store"
)

func newMirrorsCommand(ctx *commandContext) *cobra.Command {
	mirrorsCmd := &cobra.Command{
		Use:   "mirrors",
		Short: "Manage which crates are mirrored to Tidal",
	}
	mirrorsCmd.AddCommand(newMirrorsDiscoverCommand(ctx))
	mirrorsCmd.AddCommand(newMirrorsListCommand(ctx))
	mirrorsCmd.AddCommand(newMirrorsAddCommand(ctx))
	mirrorsCmd.AddCommand(newMirrorsRemoveCommand(ctx))
	return mirrorsCmd
}

func newMirrorsDiscoverCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Register every Serato subcrate as an inactive mirror",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withLocalEngine(func(cfg *config.Config, engine *reconcile.Engine) error {
				added, err := engine.Discover(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Scanned %s\n", cfg.Paths.SeratoDir)
				fmt.Fprintf(out, "Registered %d new crate(s); all start inactive\n", added)
				fmt.Fprintln(out, "Use `cratesync mirrors list` to see them and `cratesync mirrors add <index>` to activate one")
				return nil
			})
		},
	}
}

func newMirrorsListCommand(ctx *commandContext) *cobra.Command {
	var activeOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered crates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				mirrors, err := st.ListMirrors(cmd.Context(), false)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(mirrors) == 0 {
					fmt.Fprintln(out, "No crates registered. Run `cratesync mirrors discover` first.")
					return nil
				}
				// Indexes always refer to the full listing so they stay valid for add/remove.
				rows := make([][]string, 0, len(mirrors))
				for i, m := range mirrors {
					if activeOnly && !m.Active {
						continue
					}
					rows = append(rows, []string{
						strconv.Itoa(i + 1),
						m.CrateName,
						dash(m.PlaylistID),
						yesNo(m.Active),
					})
				}
				if len(rows) == 0 {
					fmt.Fprintln(out, "No active mirrors.")
					return nil
				}
				fmt.Fprintln(out, renderTable([]column{
					{header: "#", align: alignRight},
					{header: "Crate"},
					{header: "Playlist"},
					{header: "Active"},
				}, rows))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&activeOnly, "active", false, "Only show active mirrors")
	return cmd
}

func newMirrorsAddCommand(ctx *commandContext) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "add <index>",
		Short: "Activate mirroring for a crate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				mirror, err := mirrorFromArg(cmd, st, args[0])
				if err != nil {
					return err
				}
				active := true
				update := store.MirrorUpdate{Active: &active}
				if trimmed := strings.TrimSpace(name); trimmed != "" {
					update.CrateName = &trimmed
				}
				if err := st.UpsertMirror(cmd.Context(), mirror.CratePath, update); err != nil {
					return err
				}
				label := mirror.CrateName
				if update.CrateName != nil {
					label = *update.CrateName
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Mirroring %s as playlist %q\n", mirror.CratePath, label)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Playlist name to use instead of the crate name")
	return cmd
}

func newMirrorsRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <index>",
		Short: "Deactivate mirroring for a crate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, st *store.Store) error {
				mirror, err := mirrorFromArg(cmd, st, args[0])
				if err != nil {
					return err
				}
				if err := st.SetMirrorActive(cmd.Context(), mirror.CratePath, false); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stopped mirroring %s\n", mirror.CrateName)
				return nil
			})
		},
	}
}

func mirrorFromArg(cmd *cobra.Command, st *store.Store, raw string) (*store.Mirror, error) {
	index, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid index %q: %w", raw, err)
	}
	return st.MirrorAt(cmd.Context(), index, false)
}
