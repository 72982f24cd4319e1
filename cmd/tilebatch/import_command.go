package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"tilebatch/internal/config"
	"tilebatch/internal/importer"
	"tilebatch/internal/manifest"
	"tilebatch/internal/preflight"
)

type importFlags struct {
	workers      int
	dryRun       bool
	retryFailed  bool
	retrySkipped bool
	noProgress   bool
	jsonOutput   bool
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	var flags importFlags

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import every tile under the tiles directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, ctx, flags)
		},
	}

	cmd.Flags().IntVarP(&flags.workers, "workers", "w", 0, "Worker pool size for parsing and decoding")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Parse descriptors and print the plan without importing")
	cmd.Flags().BoolVar(&flags.retryFailed, "retry-failed", true, "Retry tiles that failed in earlier runs")
	cmd.Flags().BoolVar(&flags.retrySkipped, "retry-skipped", false, "Retry tiles skipped in earlier runs")
	cmd.Flags().BoolVar(&flags.noProgress, "no-progress", false, "Disable the progress bar")
	cmd.Flags().BoolVar(&flags.jsonOutput, "json", false, "Print the run summary as JSON")
	return cmd
}

func runImport(cmd *cobra.Command, ctx *commandContext, flags importFlags) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateTiles(); err != nil {
		return err
	}
	if cmd.Flags().Changed("workers") {
		if flags.workers < 1 {
			return fmt.Errorf("--workers must be >= 1")
		}
		cfg.Import.Workers = flags.workers
		if cfg.Import.Window < flags.workers {
			cfg.Import.Window = flags.workers * 4
		}
	}
	if cmd.Flags().Changed("retry-failed") {
		cfg.Import.RetryFailed = flags.retryFailed
	}
	if cmd.Flags().Changed("retry-skipped") {
		cfg.Import.RetrySkipped = flags.retrySkipped
	}

	runID := uuid.NewString()
	logger, closeLog, err := ctx.newLogger(runID)
	if err != nil {
		return err
	}
	defer closeLog()

	if failed := preflight.Failed(preflight.RunAll(cmd.Context(), cfg)); len(failed) > 0 {
		names := make([]string, 0, len(failed))
		for _, r := range failed {
			names = append(names, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
		return fmt.Errorf("preflight failed: %s", strings.Join(names, "; "))
	}

	sources, err := manifest.Scan(cfg.Paths.TilesDir, cfg.Import.Pattern, cfg.Import.Recursive)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if flags.dryRun {
		l, err := openLedger(cfg, logger, runID)
		if err != nil {
			return err
		}
		defer l.Close()
		mgr := importer.NewManager(cfg, nil, l, nil, logger)
		return printPlan(out, mgr.Plan(sources))
	}

	if cfg.Output.Format == config.OutputMemory {
		return fmt.Errorf("output.format %q does not persist the scene; set output.format = %q to import", config.OutputMemory, config.OutputGLB)
	}

	st, err := openStores(cmd.Context(), cfg, logger, runID)
	if err != nil {
		return err
	}
	defer st.Close()

	bar := newProgressBar(os.Stderr, flags.noProgress || flags.jsonOutput)
	mgr := importer.NewManager(cfg, st.cache, st.ledger, st.host, logger,
		importer.WithRunID(runID),
		importer.WithEvents(func(e importer.Event) {
			if bar == nil {
				return
			}
			if e.Index == 1 {
				bar.ChangeMax(e.Total)
			}
			bar.Describe(e.TileID)
			_ = bar.Add(1)
		}),
	)

	summary, runErr := mgr.Run(cmd.Context(), sources)
	if bar != nil {
		_ = bar.Finish()
	}
	if err := st.Close(); err != nil && runErr == nil {
		runErr = err
	}

	if flags.jsonOutput {
		if err := writeJSON(cmd, summary); err != nil {
			return err
		}
	} else {
		printSummary(out, summary)
	}
	if runErr != nil {
		return runErr
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d tiles failed; see 'tilebatch status --failed'", summary.Failed, summary.Total)
	}
	return nil
}

// newProgressBar returns nil when stderr is not a terminal or the bar is
// disabled.
func newProgressBar(w *os.File, disabled bool) *progressbar.ProgressBar {
	if disabled {
		return nil
	}
	fd := w.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return nil
	}
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("importing"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(30),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func printSummary(out io.Writer, s importer.Summary) {
	rows := [][]string{
		{"Tiles", humanize.Comma(int64(s.Total))},
		{"Done", humanize.Comma(int64(s.Done))},
		{"Failed", humanize.Comma(int64(s.Failed))},
		{"Skipped", humanize.Comma(int64(s.Skipped))},
		{"Already done", humanize.Comma(int64(s.AlreadyDone))},
		{"Held", humanize.Comma(int64(s.Held))},
		{"Cache hits", humanize.Comma(int64(s.CacheHits))},
		{"Cache misses", humanize.Comma(int64(s.CacheMisses))},
		{"Decodes", humanize.Comma(int64(s.Decodes))},
		{"Materials created", humanize.Comma(int64(s.MaterialsCreated))},
		{"Materials reused", humanize.Comma(int64(s.MaterialsReused))},
		{"Elapsed", s.Elapsed.Round(time.Millisecond).String()},
	}
	if s.Canceled {
		rows = append(rows, []string{"Canceled", "yes"})
	}
	fmt.Fprintf(out, "Run %s\n", s.RunID)
	fmt.Fprintln(out, renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
	if len(s.Failures) == 0 {
		return
	}
	failures := make([][]string, 0, len(s.Failures))
	for _, f := range s.Failures {
		failures = append(failures, []string{f.TileID, f.Reason})
	}
	fmt.Fprintln(out, renderTable([]string{"Tile", "Reason"}, failures, nil))
}

func printPlan(out io.Writer, plan []importer.PlanEntry) error {
	counts := map[string]int{}
	rows := make([][]string, 0, len(plan))
	for _, entry := range plan {
		counts[entry.Action]++
		note := entry.Problem
		if note == "" && len(entry.MissingTextures) > 0 {
			note = "missing textures: " + strings.Join(entry.MissingTextures, ", ")
		}
		status := string(entry.Status)
		if status == "" {
			status = "new"
		}
		rows = append(rows, []string{
			entry.TileID,
			entry.Group,
			status,
			entry.Action,
			strconv.Itoa(entry.Primitives),
			note,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]string{"Tile", "Group", "Ledger", "Action", "Primitives", "Notes"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
	fmt.Fprintf(out, "%d to import, %d already done, %d held, %d will fail\n",
		counts[importer.ActionImport], counts[importer.ActionSkip], counts[importer.ActionHold], counts[importer.ActionFail])
	return nil
}
