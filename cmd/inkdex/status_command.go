package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"inkdex/internal/tracking"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the processing state of tracked notebook files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := tracking.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			files, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			summary, err := store.Summary(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintln(out, "No tracked notebook files")
				return nil
			}

			t := newTable(out)
			t.AppendHeader(table.Row{"File", "Status", "Pages updated", "Last run", "Error"})
			for _, file := range files {
				lastRun := ""
				if !file.UpdatedAt.IsZero() {
					lastRun = file.UpdatedAt.Local().Format("2006-01-02 15:04:05")
				}
				t.AppendRow(table.Row{
					file.Path,
					file.Status,
					file.PagesUpdated,
					lastRun,
					truncate(file.ErrorMessage, 48),
				})
			}
			t.Render()

			fmt.Fprintf(out, "\n%d tracked: %d completed, %d failed, %d skipped, %d in flight\n",
				summary.Total, summary.Completed, summary.Failed, summary.Skipped, summary.Processing)
			return nil
		},
	}
}
