package importer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"tilebatch/internal/faults"
	"tilebatch/internal/ledger"
	"tilebatch/internal/logging"
	"tilebatch/internal/manifest"
)

// runState is owned by the consumer goroutine.
type runState struct {
	summary   Summary
	total     int
	finished  int
	committed []string
	sampler   *logging.ProgressSampler
}

// Run imports sources in order. Per-tile failures are recorded in the ledger
// and the summary; the returned error is reserved for ledger write failures
// and cancellation, in which case the summary still reflects every tile that
// reached a terminal state.
func (m *Manager) Run(ctx context.Context, sources []manifest.Source) (Summary, error) {
	start := time.Now()
	if m.runID != "" {
		ctx = faults.WithRunID(ctx, m.runID)
	}
	logger := logging.WithContext(ctx, m.logger)

	st := &runState{
		summary: Summary{RunID: m.runID, Total: len(sources)},
		sampler: logging.NewProgressSampler(10),
	}
	regStats := m.host.Registry().Stats()
	decodes := m.decodeCount.Load()
	finish := func(err error) (Summary, error) {
		after := m.host.Registry().Stats()
		st.summary.MaterialsCreated = after.Created - regStats.Created
		st.summary.MaterialsReused = after.Reused - regStats.Reused
		st.summary.Decodes = int(m.decodeCount.Load() - decodes)
		st.summary.Elapsed = time.Since(start)
		return st.summary, err
	}

	if _, err := m.ledger.Register(manifest.IDs(sources)); err != nil {
		return finish(fmt.Errorf("register tiles: %w", err))
	}

	work := m.selectWork(sources, st)
	st.total = len(work)
	logger.Info("import starting",
		logging.Int("tiles", len(sources)),
		logging.Int("queued", len(work)),
		logging.Int("already_done", st.summary.AlreadyDone),
		logging.Int("held", st.summary.Held),
		logging.Int("workers", m.workers()),
	)

	err := m.pipeline(ctx, work, st, logger)
	if err == nil {
		err = ctx.Err()
	}
	ckCtx := ctx
	if ctx.Err() != nil {
		st.summary.Canceled = true
		ckCtx = context.WithoutCancel(ctx)
	}
	if ckErr := m.checkpoint(ckCtx, st, logger); ckErr != nil && err == nil {
		err = ckErr
	}

	summary, err := finish(err)
	logger.Info("import finished",
		logging.Int("done", summary.Done),
		logging.Int("failed", summary.Failed),
		logging.Int("skipped", summary.Skipped),
		logging.Int("already_done", summary.AlreadyDone),
		logging.Int("cache_hits", summary.CacheHits),
		logging.Int("cache_misses", summary.CacheMisses),
		logging.Int("decodes", summary.Decodes),
		logging.Bool("canceled", summary.Canceled),
		logging.Duration("elapsed", summary.Elapsed),
	)
	return summary, err
}

// selectWork drops duplicate ids, tiles already done, and failed or skipped
// tiles the retry settings hold back.
func (m *Manager) selectWork(sources []manifest.Source, st *runState) []manifest.Source {
	byID := make(map[string]manifest.Source, len(sources))
	ids := make([]string, 0, len(sources))
	for _, src := range sources {
		if _, dup := byID[src.ID]; dup {
			continue
		}
		byID[src.ID] = src
		ids = append(ids, src.ID)
	}

	pending := m.ledger.Pending(ids)
	st.summary.AlreadyDone += len(ids) - len(pending)

	work := make([]manifest.Source, 0, len(pending))
	for _, id := range pending {
		if m.held(id) {
			st.summary.Held++
			continue
		}
		work = append(work, byID[id])
	}
	return work
}

// held reports whether a failed or skipped tile stays out of this run.
func (m *Manager) held(id string) bool {
	rec, ok := m.ledger.Status(id)
	if !ok {
		return false
	}
	switch rec.Status {
	case ledger.StatusFailed:
		return !m.cfg.Import.RetryFailed
	case ledger.StatusSkipped:
		return !m.cfg.Import.RetrySkipped
	}
	return false
}

func (m *Manager) workers() int {
	if m.cfg.Import.Workers < 1 {
		return 1
	}
	return m.cfg.Import.Workers
}

func (m *Manager) window() int {
	if w := m.cfg.Import.Window; w >= m.workers() {
		return w
	}
	return m.workers()
}

// pipeline prepares tiles on the worker pool and consumes them in order.
// A slot in the window is taken before a tile is prepared and returned once
// the consumer has handled it.
func (m *Manager) pipeline(ctx context.Context, work []manifest.Source, st *runState, logger *slog.Logger) error {
	if len(work) == 0 {
		return nil
	}
	results := make([]chan prepared, len(work))
	for i := range results {
		results[i] = make(chan prepared, 1)
	}

	prepCtx, stop := context.WithCancel(ctx)
	defer stop()
	window := semaphore.NewWeighted(int64(m.window()))
	g, gctx := errgroup.WithContext(prepCtx)
	g.SetLimit(m.workers())

	fed := make(chan struct{})
	go func() {
		defer close(fed)
		for i, src := range work {
			i, src := i, src
			if err := window.Acquire(gctx, 1); err != nil {
				break
			}
			g.Go(func() error {
				results[i] <- m.prepare(gctx, src)
				return nil
			})
		}
		_ = g.Wait()
	}()
	defer func() {
		stop()
		<-fed
	}()

	interval := m.cfg.Import.CheckpointInterval
	for i := range work {
		var p prepared
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p = <-results[i]:
		}
		window.Release(1)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := m.handle(ctx, p, st); err != nil {
			return err
		}
		if interval > 0 && len(st.committed) >= interval {
			if err := m.checkpoint(ctx, st, logger); err != nil {
				return err
			}
		}
		pct := float64(i+1) / float64(len(work)) * 100
		if st.sampler.ShouldLog(pct, "import") {
			logger.Info("import progress",
				logging.Int("position", i+1),
				logging.Int("queued", len(work)),
				logging.Float64("percent", pct),
			)
		}
	}
	return nil
}
