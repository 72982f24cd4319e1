package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tilebatch/internal/ledger"
	"tilebatch/internal/logging"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var failedOnly bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show progress recorded in the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			l, err := openLedger(cfg, logging.NewNop(), "")
			if err != nil {
				return err
			}
			defer l.Close()

			summary := l.Summary()
			records := l.Records()
			if failedOnly {
				filtered := records[:0]
				for _, rec := range records {
					if rec.Status == ledger.StatusFailed {
						filtered = append(filtered, rec)
					}
				}
				records = filtered
			}

			if jsonOutput {
				return writeJSON(cmd, struct {
					Summary ledger.Summary  `json:"summary"`
					Records []ledger.Record `json:"records"`
				}{summary, records})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Ledger: %s\n", l.Path())
			fmt.Fprintln(out, renderTable(
				[]string{"Total", "Done", "Failed", "Skipped", "Pending"},
				[][]string{{
					humanize.Comma(int64(summary.Total)),
					humanize.Comma(int64(summary.Done)),
					humanize.Comma(int64(summary.Failed)),
					humanize.Comma(int64(summary.Skipped)),
					humanize.Comma(int64(summary.Pending)),
				}},
				[]columnAlignment{alignRight, alignRight, alignRight, alignRight, alignRight},
			))
			if !failedOnly {
				return nil
			}
			if len(records) == 0 {
				fmt.Fprintln(out, "No failed tiles")
				return nil
			}
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{rec.Tile, rec.Detail, humanize.Time(rec.At), shortRun(rec.Run)})
			}
			fmt.Fprintln(out, renderTable([]string{"Tile", "Reason", "When", "Run"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "List failed tiles with their reasons")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the summary and records as JSON")
	return cmd
}

func shortRun(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
