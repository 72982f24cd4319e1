package testsupport

import (
	"context"
	"testing"

	"tilebatch/internal/config"
	"tilebatch/internal/contentcache"
	"tilebatch/internal/ledger"
)

// OpenCache opens the content cache configured in cfg and closes it when the
// test ends.
func OpenCache(t testing.TB, cfg *config.Config) *contentcache.Cache {
	t.Helper()

	cache, err := contentcache.Open(context.Background(), cfg.Cache.Path, contentcache.Options{})
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

// OpenLedger opens the progress ledger configured in cfg and closes it when
// the test ends.
func OpenLedger(t testing.TB, cfg *config.Config, runID string) *ledger.Ledger {
	t.Helper()

	l, err := ledger.Open(cfg.Ledger.Path, ledger.Options{Sync: cfg.Ledger.Sync, RunID: runID})
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}
