package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tilebatch/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var runFlag string
	var tileFlag string
	var levelFlag string
	var lines int
	var follow bool
	var listRuns bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show records from a run log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if listRuns {
				runs, err := logs.List(cfg.Paths.LogDir)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					fmt.Fprintln(out, "No run logs found")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					rows = append(rows, []string{shortRun(run.RunID), run.ModTime.Format(time.DateTime), humanize.IBytes(uint64(run.Size))})
				}
				fmt.Fprintln(out, renderTable([]string{"Run", "Modified", "Size"}, rows, nil))
				return nil
			}

			run, err := logs.Find(cfg.Paths.LogDir, runFlag)
			if err != nil {
				return err
			}
			filter := logs.Filter{TileID: tileFlag, MinLevel: levelFlag}
			limit := lines
			if filter.TileID != "" || filter.MinLevel != "" {
				// Filtering happens after the read, so read the whole file.
				limit = 0
			}

			res, err := logs.Tail(cmd.Context(), run.Path, logs.TailOptions{Offset: startOffset(limit), Limit: limit})
			if err != nil {
				return err
			}
			printEntries(out, filter.Apply(res.Lines), lines)

			for follow {
				res, err = logs.Tail(cmd.Context(), run.Path, logs.TailOptions{Offset: res.Offset, Follow: true, Wait: 2 * time.Second})
				if err != nil {
					if cmd.Context().Err() != nil {
						return nil
					}
					return err
				}
				printEntries(out, filter.Apply(res.Lines), 0)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runFlag, "run", "", "Run id or prefix (default: latest run)")
	cmd.Flags().StringVar(&tileFlag, "tile", "", "Only show records for this tile")
	cmd.Flags().StringVar(&levelFlag, "level", "", "Minimum level (debug, info, warn, error)")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of records to show (0 for all)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new records")
	cmd.Flags().BoolVar(&listRuns, "list", false, "List run logs instead of printing records")
	return cmd
}

func startOffset(limit int) int64 {
	if limit > 0 {
		return -1
	}
	return 0
}

func printEntries(out io.Writer, entries []logs.Entry, limit int) {
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	for _, e := range entries {
		fmt.Fprintln(out, formatEntry(e))
	}
}

func formatEntry(e logs.Entry) string {
	var b strings.Builder
	if !e.Time.IsZero() {
		b.WriteString(e.Time.Local().Format(time.TimeOnly))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s %s", strings.ToUpper(e.Level), e.Msg)
	if e.TileID != "" {
		fmt.Fprintf(&b, " tile=%s", e.TileID)
	}
	if hint, ok := e.Fields["error_hint"].(string); ok && hint != "" {
		fmt.Fprintf(&b, " reason=%q", hint)
	} else if msg, ok := e.Fields["error"].(string); ok && msg != "" {
		fmt.Fprintf(&b, " error=%q", msg)
	}
	return b.String()
}
