package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"cratesync/internal/config"
	"cratesync/internal/daemonrun"
	"cratesync/internal/reconcile"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	var maxBitrate int
	var forceUpdate bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile every active crate with its Tidal playlist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withRuntime(func(cfg *config.Config, rt *daemonrun.Runtime) error {
				opts := reconcile.SyncOptions{MaxBitrate: cfg.Sync.MaxBitrate, ForceUpdate: cfg.Sync.ForceUpdate}
				if cmd.Flags().Changed("max-bitrate") {
					opts.MaxBitrate = maxBitrate
				}
				if cmd.Flags().Changed("force-update") {
					opts.ForceUpdate = forceUpdate
				}
				report, err := rt.Engine.Sync(cmd.Context(), opts)
				if report != nil {
					printSyncReport(cmd.OutOrStdout(), report)
				}
				if err != nil {
					return err
				}
				if failed := report.Failed(); failed > 0 {
					return fmt.Errorf("%d mirror(s) failed; see the log for details", failed)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&maxBitrate, "max-bitrate", 0, "Skip local tracks above this bitrate in kbps (0 disables)")
	cmd.Flags().BoolVar(&forceUpdate, "force-update", false, "Queue present tracks for re-download")
	return cmd
}

func printSyncReport(out io.Writer, report *reconcile.SyncReport) {
	if len(report.Mirrors) == 0 {
		fmt.Fprintln(out, "No active mirrors synced.")
		return
	}
	rows := make([][]string, 0, len(report.Mirrors))
	for _, m := range report.Mirrors {
		result := "ok"
		switch {
		case m.Removed:
			result = "crate gone; mirror removed"
		case m.Err != nil:
			result = m.Err.Error()
		case m.Partial:
			result = "crate damaged; partial"
		}
		rows = append(rows, []string{
			m.CrateName,
			dash(m.PlaylistID),
			strconv.Itoa(m.Entries),
			strconv.Itoa(m.Mapped),
			strconv.Itoa(m.Added),
			strconv.Itoa(m.Missing),
			strconv.Itoa(m.Scheduled + m.Linked),
			result,
		})
	}
	fmt.Fprintln(out, renderTable([]column{
		{header: "Crate"},
		{header: "Playlist"},
		{header: "Entries", align: alignRight},
		{header: "Mapped", align: alignRight},
		{header: "Added", align: alignRight},
		{header: "Missing", align: alignRight},
		{header: "Remote only", align: alignRight},
		{header: "Result"},
	}, rows))
}

func newRecoverCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	var scriptPath string
	var quality string
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Download tracks marked pending_download and put them in place",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if q := strings.TrimSpace(quality); q != "" {
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				cfg.Recovery.Quality = strings.ToUpper(q)
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			if dryRun {
				return ctx.withLocalEngine(func(_ *config.Config, engine *reconcile.Engine) error {
					report, err := engine.Recover(cmd.Context(), reconcile.RecoverOptions{DryRun: true})
					if err != nil {
						return err
					}
					return printRecoverPlan(cmd.OutOrStdout(), report.Planned, scriptPath)
				})
			}
			return ctx.withRuntime(func(_ *config.Config, rt *daemonrun.Runtime) error {
				report, err := rt.Engine.Recover(cmd.Context(), reconcile.RecoverOptions{})
				if report != nil {
					printRecoverReport(cmd.OutOrStdout(), report)
				}
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List the downloads without running them")
	cmd.Flags().StringVar(&scriptPath, "script", "", "With --dry-run, also write the download commands to this shell script")
	cmd.Flags().StringVar(&quality, "quality", "", "Override recovery.quality for this run")
	return cmd
}

func printRecoverPlan(out io.Writer, planned []reconcile.PlannedDownload, scriptPath string) error {
	if len(planned) == 0 {
		fmt.Fprintln(out, "Nothing is pending download.")
		return nil
	}
	rows := make([][]string, 0, len(planned))
	commands := make([]string, 0, len(planned))
	for _, p := range planned {
		rows = append(rows, []string{p.Key, p.RemoteID, p.Target})
		commands = append(commands, p.Command)
	}
	fmt.Fprintln(out, renderTable([]column{{header: "Track"}, {header: "Tidal ID"}, {header: "Target"}}, rows))
	for _, c := range commands {
		fmt.Fprintln(out, c)
	}

	scriptPath = strings.TrimSpace(scriptPath)
	if scriptPath == "" {
		return nil
	}
	script := "#!/bin/sh\nset -e\n" + strings.Join(commands, "\n") + "\n"
	if err := os.WriteFile(scriptPath, []byte(script), 0o755); err != nil {
		return fmt.Errorf("write recovery script: %w", err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(scriptPath, 0o755); err != nil {
		return fmt.Errorf("chmod recovery script: %w", err)
	}
	fmt.Fprintf(out, "Wrote %s\n", scriptPath)
	return nil
}

func printRecoverReport(out io.Writer, report *reconcile.RecoverReport) {
	if n := len(report.Stale.Removed); n > 0 {
		fmt.Fprintf(out, "Removed %d stale staging file(s)\n", n)
	}
	if len(report.Items) == 0 {
		fmt.Fprintln(out, "Nothing recovered.")
		return
	}
	rows := make([][]string, 0, len(report.Items))
	for _, item := range report.Items {
		detail := item.Path
		if item.Err != nil {
			detail = item.Err.Error()
		} else if item.Reused {
			detail += " (from staging)"
		}
		rows = append(rows, []string{item.Key, string(item.Outcome), detail})
	}
	fmt.Fprintln(out, renderTable([]column{{header: "Track"}, {header: "Outcome"}, {header: "Detail"}}, rows))
	fmt.Fprintf(out, "%d restored, %d imported, %d failed\n",
		report.Count(reconcile.OutcomeRestored),
		report.Count(reconcile.OutcomeImported),
		report.Count(reconcile.OutcomeFailed),
	)
}

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete backups of replaced files and forget their mappings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withLocalEngine(func(_ *config.Config, engine *reconcile.Engine) error {
				report, err := engine.Cleanup(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				for _, path := range report.Deleted {
					fmt.Fprintf(out, "deleted %s\n", path)
				}
				fmt.Fprintf(out, "%d deleted, %d already gone, %d failed\n", len(report.Deleted), len(report.Missing), len(report.Errors))
				if len(report.Errors) > 0 {
					return fmt.Errorf("%d backup(s) could not be removed", len(report.Errors))
				}
				return nil
			})
		},
	}
}

func newRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Queue failed tracks for another recover pass",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withLocalEngine(func(_ *config.Config, engine *reconcile.Engine) error {
				n, err := engine.Retry(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d track(s) queued for download\n", n)
				return nil
			})
		},
	}
}

func newResetCommand(ctx *commandContext) *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget every track mapping; mirrors are kept",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirmed {
				return fmt.Errorf("reset deletes all track mappings; pass --yes to confirm")
			}
			return ctx.withLocalEngine(func(_ *config.Config, engine *reconcile.Engine) error {
				n, err := engine.Reset(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d track mapping(s)\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm the reset")
	return cmd
}
