package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"cratesync/internal/config"
	"cratesync/internal/preflight"
	"cratesync/internal/store"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show mapping counts and environment checks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				stats, err := st.Stats(cmd.Context())
				if err != nil {
					return err
				}
				mirrors, err := st.ListMirrors(cmd.Context(), false)
				if err != nil {
					return err
				}
				active := 0
				for _, m := range mirrors {
					if m.Active {
						active++
					}
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				lines := renderSectionHeader("Daemon", colorize)
				lines = append(lines, daemonLine(cfg, colorize))

				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Mirrors", colorize)...)
				lines = append(lines, renderStatusLine("Registered crates", statusInfo, strconv.Itoa(len(mirrors)), colorize))
				activeKind := statusOK
				if active == 0 {
					activeKind = statusWarn
				}
				lines = append(lines, renderStatusLine("Active mirrors", activeKind, strconv.Itoa(active), colorize))

				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Tracks", colorize)...)
				for _, s := range store.AllStatuses() {
					kind := statusInfo
					if s == store.StatusFailed && stats[s] > 0 {
						kind = statusWarn
					}
					lines = append(lines, renderStatusLine(string(s), kind, strconv.Itoa(stats[s]), colorize))
				}

				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
				lines = append(lines, dependencyLines(preflight.CheckSystemDeps(cfg), colorize)...)

				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Environment", colorize)...)
				lines = append(lines, preflightLines(preflight.RunAll(cmd.Context(), cfg), colorize)...)

				for _, line := range lines {
					fmt.Fprintln(out, line)
				}
				return nil
			})
		},
	}
}

// daemonLine probes the daemon's single-instance lock: if it can be taken,
// no daemon holds it.
func daemonLine(cfg *config.Config, colorize bool) string {
	lock := flock.New(cfg.LockPath())
	ok, err := lock.TryLock()
	if err != nil {
		return renderStatusLine("Daemon", statusWarn, "lock check failed: "+err.Error(), colorize)
	}
	if ok {
		_ = lock.Unlock()
		return renderStatusLine("Daemon", statusInfo, "not running", colorize)
	}
	message := "running"
	if data, err := os.ReadFile(cfg.PIDPath()); err == nil {
		message += " (pid " + strings.TrimSpace(string(data)) + ")"
	}
	return renderStatusLine("Daemon", statusOK, message, colorize)
}
