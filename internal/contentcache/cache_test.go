package contentcache_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/flywave/go3d/vec3"

	"tilebatch/internal/contentcache"
	"tilebatch/internal/fileutil"
	"tilebatch/internal/geometry"
	"tilebatch/internal/testsupport"
)

type sourceFiles struct {
	descriptor string
	buffer     string
}

func writeSources(t *testing.T, dir, name string) sourceFiles {
	t.Helper()
	files := sourceFiles{
		descriptor: filepath.Join(dir, name+".gltf"),
		buffer:     filepath.Join(dir, name+".bin"),
	}
	testsupport.WriteFile(t, files.descriptor, 64)
	testsupport.WriteFile(t, files.buffer, 128)
	return files
}

func fingerprintFor(t *testing.T, tileID string, files sourceFiles) contentcache.Fingerprint {
	t.Helper()
	desc, err := fileutil.Stat(files.descriptor)
	if err != nil {
		t.Fatalf("stat descriptor: %v", err)
	}
	buf, err := fileutil.Stat(files.buffer)
	if err != nil {
		t.Fatalf("stat buffer: %v", err)
	}
	return contentcache.NewFingerprint(tileID, desc, buf)
}

func triangle(name string) *geometry.Geometry {
	return &geometry.Geometry{Meshes: []geometry.Mesh{{
		Name:      name,
		Positions: []vec3.T{{0, 0, 0}, {1, 0, 0}, {0, 0, 1}},
		Faces:     [][3]uint32{{0, 1, 2}},
		Transform: geometry.Identity(),
		Material:  geometry.NoMaterial,
	}}}
}

func openCache(t *testing.T, path string) *contentcache.Cache {
	t.Helper()
	cache, err := contentcache.Open(context.Background(), path, contentcache.Options{})
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	t.Cleanup(func() { _ = cache.Close() })
	return cache
}

func TestStoreVisibleBeforeFlushAndPersistedAfter(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "state", "cache.db")
	files := writeSources(t, dir, "a")
	fp := fingerprintFor(t, "a", files)

	cache := openCache(t, path)
	if _, ok := cache.Lookup(ctx, fp); ok {
		t.Fatal("expected miss on empty cache")
	}
	if err := cache.Store(fp, triangle("a_0")); err != nil {
		t.Fatalf("store: %v", err)
	}
	if geom, ok := cache.Lookup(ctx, fp); !ok || geom.Meshes[0].Name != "a_0" {
		t.Fatalf("pending lookup = %v, %v", geom, ok)
	}
	stats, err := cache.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Pending != 1 || stats.Entries != 0 {
		t.Fatalf("stats before flush = %+v", stats)
	}
	if err := cache.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := openCache(t, path)
	geom, ok := reopened.Lookup(ctx, fp)
	if !ok {
		t.Fatal("expected hit after reopen")
	}
	if v, f := geom.Counts(); v != 3 || f != 1 {
		t.Fatalf("counts = %d/%d, want 3/1", v, f)
	}
}

func TestCloseFlushesPendingEntries(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.db")
	fp := fingerprintFor(t, "a", writeSources(t, dir, "a"))

	cache, err := contentcache.Open(ctx, path, contentcache.Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := cache.Store(fp, triangle("a_0")); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, ok := openCache(t, path).Lookup(ctx, fp); !ok {
		t.Fatal("expected entry written by Close")
	}
}

func TestChangedSourceIsMiss(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	files := writeSources(t, dir, "a")
	before := fingerprintFor(t, "a", files)

	cache := openCache(t, filepath.Join(dir, "cache.db"))
	if err := cache.Store(before, triangle("a_0")); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := cache.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	tests := []struct {
		name   string
		mutate func()
	}{
		{"buffer mtime", func() { testsupport.Touch(t, files.buffer) }},
		{"descriptor size", func() { testsupport.WriteFile(t, files.descriptor, 65) }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			tt.mutate()
			after := fingerprintFor(t, "a", files)
			if after.Key == before.Key {
				t.Fatal("fingerprint did not change")
			}
			if _, ok := cache.Lookup(ctx, after); ok {
				t.Fatal("expected miss for changed source")
			}
		})
	}
}

func TestFlushReplacesStaleEntriesForTile(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	files := writeSources(t, dir, "a")
	first := fingerprintFor(t, "a", files)

	cache := openCache(t, filepath.Join(dir, "cache.db"))
	if err := cache.Store(first, triangle("a_0")); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := cache.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	testsupport.Touch(t, files.buffer)
	second := fingerprintFor(t, "a", files)
	if err := cache.Store(second, triangle("a_0")); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := cache.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}

	stats, err := cache.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Entries != 1 {
		t.Fatalf("entries = %d, want 1", stats.Entries)
	}
	if _, ok := cache.Lookup(ctx, first); ok {
		t.Fatal("stale fingerprint still hits")
	}
}

func TestCorruptFileMovedAside(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.db")
	garbage := []byte(strings.Repeat("not a sqlite database ", 200))
	if err := os.WriteFile(path, garbage, 0o644); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache, err := contentcache.Open(ctx, path, contentcache.Options{Now: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("open corrupt cache: %v", err)
	}
	defer cache.Close()

	stats, err := cache.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !stats.Reset || stats.MovedTo == "" || stats.Corrupt != 1 {
		t.Fatalf("stats = %+v, want reset with moved file", stats)
	}
	if !strings.HasPrefix(filepath.Base(stats.MovedTo), "cache.db.corrupt-") {
		t.Fatalf("moved to %q", stats.MovedTo)
	}
	moved, err := os.ReadFile(stats.MovedTo)
	if err != nil {
		t.Fatalf("read moved file: %v", err)
	}
	if string(moved) != string(garbage) {
		t.Fatal("moved file content changed")
	}
	fp := fingerprintFor(t, "a", writeSources(t, dir, "a"))
	if err := cache.Store(fp, triangle("a_0")); err != nil {
		t.Fatalf("store into fresh cache: %v", err)
	}
	if err := cache.Flush(ctx); err != nil {
		t.Fatalf("flush fresh cache: %v", err)
	}
}

func TestSchemaVersionChangeResetsStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.db")
	fp := fingerprintFor(t, "a", writeSources(t, dir, "a"))

	cache, err := contentcache.Open(ctx, path, contentcache.Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := cache.Store(fp, triangle("a_0")); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	reopened := openCache(t, path)
	if _, ok := reopened.Lookup(ctx, fp); ok {
		t.Fatal("expected miss after schema reset")
	}
	stats, err := reopened.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !stats.Reset || stats.MovedTo != "" || stats.Entries != 0 {
		t.Fatalf("stats = %+v, want in-place reset", stats)
	}
}

func TestUnreadablePayloadIsMiss(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.db")
	fp := fingerprintFor(t, "a", writeSources(t, dir, "a"))

	cache, err := contentcache.Open(ctx, path, contentcache.Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := cache.Store(fp, triangle("a_0")); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("UPDATE entries SET payload = ?", []byte("TBGM\x01")); err != nil {
		t.Fatalf("damage payload: %v", err)
	}
	_ = db.Close()

	reopened := openCache(t, path)
	if _, ok := reopened.Lookup(ctx, fp); ok {
		t.Fatal("expected miss for damaged payload")
	}
	if err := reopened.Store(fp, triangle("a_0")); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if err := reopened.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	stats, _ := reopened.Stats(ctx)
	if stats.Corrupt != 1 || stats.Misses != 1 {
		t.Fatalf("stats = %+v, want one corrupt miss", stats)
	}
	reopened.Close()
	if _, ok := openCache(t, path).Lookup(ctx, fp); !ok {
		t.Fatal("expected overwritten entry to hit")
	}
}

func TestClearDropsEverything(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cache := openCache(t, filepath.Join(dir, "cache.db"))
	a := fingerprintFor(t, "a", writeSources(t, dir, "a"))
	b := fingerprintFor(t, "b", writeSources(t, dir, "b"))

	_ = cache.Store(a, triangle("a_0"))
	if err := cache.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	_ = cache.Store(b, triangle("b_0"))

	removed, err := cache.Clear(ctx)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	for _, fp := range []contentcache.Fingerprint{a, b} {
		if _, ok := cache.Lookup(ctx, fp); ok {
			t.Fatalf("%s still cached after clear", fp)
		}
	}
}

func TestOpenFailsWhenLocationCannotBeCreated(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	testsupport.WriteFile(t, blocker, 1)
	_, err := contentcache.Open(context.Background(), filepath.Join(blocker, "cache.db"), contentcache.Options{})
	if err == nil {
		t.Fatal("expected error when parent is a file")
	}
}
