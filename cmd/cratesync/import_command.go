package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"cratesync/internal/config"
	"cratesync/internal/csvimport"
	"cratesync/internal/daemonrun"
)

func newImportCSVCommand(ctx *commandContext) *cobra.Command {
	var opts csvimport.Options
	cmd := &cobra.Command{
		Use:   "import-csv <file>",
		Short: "Create a Tidal playlist from a CSV of titles and artists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := csvimport.ParseFile(args[0])
			if err != nil {
				return err
			}
			return ctx.withRuntime(func(cfg *config.Config, rt *daemonrun.Runtime) error {
				if opts.Folder == "" {
					opts.Folder = cfg.Tidal.PlaylistFolder
				}
				logger, err := ctx.ensureLogger()
				if err != nil {
					return err
				}
				result, err := csvimport.NewImporter(rt.Catalog, logger).Import(cmd.Context(), rows, opts)
				out := cmd.OutOrStdout()
				if result != nil {
					if len(result.Missed) > 0 {
						missed := make([][]string, 0, len(result.Missed))
						for _, row := range result.Missed {
							missed = append(missed, []string{strconv.Itoa(row.Line), row.Artist, row.Title})
						}
						fmt.Fprintln(out, "Not found on Tidal:")
						fmt.Fprintln(out, renderTable([]column{{header: "Line", align: alignRight}, {header: "Artist"}, {header: "Title"}}, missed))
					}
					fmt.Fprintf(out, "%d of %d row(s) matched\n", len(result.Found), len(rows))
					if result.PlaylistID != "" {
						fmt.Fprintf(out, "Playlist %q created (%s) with %d track(s)\n", opts.Name, result.PlaylistID, result.Added)
					}
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "Name of the playlist to create")
	cmd.Flags().StringVar(&opts.Description, "description", "", "Playlist description")
	cmd.Flags().StringVar(&opts.Folder, "folder", "", "Playlist folder (defaults to tidal.playlist_folder)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
