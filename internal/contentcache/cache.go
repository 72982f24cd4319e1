package contentcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"tilebatch/internal/faults"
	"tilebatch/internal/fileutil"
	"tilebatch/internal/geometry"
	"tilebatch/internal/logging"
)

// Options configures a Cache.
type Options struct {
	Logger *slog.Logger
	// Now overrides the clock used for timestamps and move-aside names.
	Now func() time.Time
}

// Stats summarizes cache contents and activity for the current process.
type Stats struct {
	Path         string
	Entries      int
	PayloadBytes int64
	FileBytes    int64
	Pending      int
	Hits         int
	Misses       int
	Stores       int
	Corrupt      int
	// Reset is set when the store was recreated on open, either after a
	// schema change or after moving a corrupt file aside.
	Reset     bool
	MovedTo   string
	UpdatedAt time.Time
}

type pendingEntry struct {
	fp       Fingerprint
	payload  []byte
	vertices int
	faces    int
	geom     *geometry.Geometry
	seq      uint64
}

// Cache is the persisted content cache. Lookup is safe for concurrent use;
// Store, Flush, and Clear are called by a single owner.
type Cache struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	pending map[string]pendingEntry
	seq     uint64
	hits    int
	misses  int
	stores  int
	corrupt int
	reset   bool
	movedTo string
}

// Open opens or creates the cache file at path. An unreadable file is moved
// aside and replaced; only failure to create the location is returned.
func Open(ctx context.Context, path string, opts Options) (*Cache, error) {
	if path == "" {
		return nil, faults.Wrap(faults.ErrConfiguration, "", "open cache", "cache path is empty", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "contentcache")
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, faults.Wrap(faults.ErrConfiguration, "", "open cache", "create cache directory", err)
	}

	c := &Cache{path: path, logger: logger, now: now, pending: make(map[string]pendingEntry)}
	db, reset, err := openDB(ctx, path)
	if err != nil {
		cause := faults.Wrap(faults.ErrCacheCorruption, "", "open cache", path, err)
		moved, moveErr := moveAside(path, now())
		if moveErr != nil {
			return nil, fmt.Errorf("replace unreadable cache: %w", errors.Join(cause, moveErr))
		}
		logger.Warn("content cache unreadable; starting empty",
			logging.String(logging.FieldEventType, "cache_corrupt"),
			logging.String(logging.FieldErrorKind, faults.Kind(cause)),
			logging.Error(cause),
			logging.String("moved_to", moved),
			logging.String(logging.FieldImpact, "every tile decodes from source this run"),
		)
		c.movedTo = moved
		c.corrupt++
		db, _, err = openDB(ctx, path)
		if err != nil {
			return nil, faults.Wrap(faults.ErrConfiguration, "", "open cache", "create fresh cache", err)
		}
		reset = true
	} else if reset {
		logger.Info("content cache schema changed; store reset",
			logging.String(logging.FieldEventType, "cache_reset"),
			logging.Int("schema_version", schemaVersion),
		)
	}
	c.db = db
	c.reset = reset
	return c, nil
}

func openDB(ctx context.Context, path string) (*sql.DB, bool, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, false, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, false, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	var check string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&check); err != nil {
		_ = db.Close()
		return nil, false, fmt.Errorf("integrity check: %w", err)
	}
	if check != "ok" {
		_ = db.Close()
		return nil, false, fmt.Errorf("integrity check: %s", check)
	}
	reset, err := initSchema(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, false, err
	}
	return db, reset, nil
}

// moveAside renames the cache file and drops its WAL sidecars.
func moveAside(path string, now time.Time) (string, error) {
	moved, err := fileutil.MoveAside(path, now)
	if err != nil {
		return "", err
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
			return moved, fmt.Errorf("remove %s: %w", path+suffix, err)
		}
	}
	return moved, nil
}

// Path returns the cache file location.
func (c *Cache) Path() string {
	return c.path
}

// Lookup returns the geometry stored under fp. Pending entries are visible.
// A payload that fails to decode is reported as a miss and logged.
func (c *Cache) Lookup(ctx context.Context, fp Fingerprint) (*geometry.Geometry, bool) {
	if c == nil || !fp.Valid() {
		return nil, false
	}
	c.mu.Lock()
	if entry, ok := c.pending[fp.Key]; ok {
		c.hits++
		c.mu.Unlock()
		return entry.geom, true
	}
	c.mu.Unlock()

	var payload []byte
	err := c.db.QueryRowContext(ctx,
		"SELECT payload FROM entries WHERE fingerprint = ? AND format_version = ?",
		fp.Key, FormatVersion,
	).Scan(&payload)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) && ctx.Err() == nil {
			c.logger.Warn("content cache read failed; treating as miss",
				logging.String(logging.FieldTileID, fp.TileID),
				logging.String(logging.FieldEventType, "cache_read_failed"),
				logging.Error(err),
			)
		}
		c.recordMiss(false)
		return nil, false
	}
	geom, err := decodeGeometry(payload)
	if err != nil {
		cause := faults.Wrap(faults.ErrCacheCorruption, fp.TileID, "cache lookup", "decode payload", err)
		c.logger.Warn("content cache entry unreadable; treating as miss",
			logging.String(logging.FieldTileID, fp.TileID),
			logging.String(logging.FieldEventType, "cache_entry_corrupt"),
			logging.String(logging.FieldErrorKind, faults.Kind(cause)),
			logging.Error(cause),
		)
		c.recordMiss(true)
		return nil, false
	}
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
	return geom, true
}

func (c *Cache) recordMiss(corrupt bool) {
	c.mu.Lock()
	c.misses++
	if corrupt {
		c.corrupt++
	}
	c.mu.Unlock()
}

// Store queues geom under fp until the next Flush. A later store for the same
// key replaces the pending payload.
func (c *Cache) Store(fp Fingerprint, geom *geometry.Geometry) error {
	if c == nil {
		return nil
	}
	if !fp.Valid() {
		return fmt.Errorf("store %s: empty fingerprint", fp.TileID)
	}
	if geom == nil {
		return fmt.Errorf("store %s: nil geometry", fp.TileID)
	}
	payload, err := encodeGeometry(geom)
	if err != nil {
		return fmt.Errorf("encode %s: %w", fp.TileID, err)
	}
	vertices, faces := geom.Counts()
	c.mu.Lock()
	c.seq++
	c.pending[fp.Key] = pendingEntry{fp: fp, payload: payload, vertices: vertices, faces: faces, geom: geom, seq: c.seq}
	c.stores++
	c.mu.Unlock()
	return nil
}

// Flush writes pending entries in one transaction. Older entries for the same
// tile are replaced rather than left to accumulate.
func (c *Cache) Flush(ctx context.Context) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return nil
	}
	batch := make([]pendingEntry, 0, len(c.pending))
	for _, entry := range c.pending {
		batch = append(batch, entry)
	}
	c.mu.Unlock()
	sort.Slice(batch, func(i, j int) bool { return batch[i].fp.Key < batch[j].fp.Key })

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cache flush: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	storedAt := c.now().UTC().Format(time.RFC3339Nano)
	for _, entry := range batch {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM entries WHERE tile_id = ? AND fingerprint <> ?",
			entry.fp.TileID, entry.fp.Key,
		); err != nil {
			return fmt.Errorf("evict stale entries for %s: %w", entry.fp.TileID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO entries (
                fingerprint, tile_id, source_path, format_version, payload, vertices, faces, stored_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			entry.fp.Key, entry.fp.TileID, entry.fp.Source, FormatVersion,
			entry.payload, entry.vertices, entry.faces, storedAt,
		); err != nil {
			return fmt.Errorf("write cache entry %s: %w", entry.fp.TileID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cache flush: %w", err)
	}

	c.mu.Lock()
	for _, entry := range batch {
		if current, ok := c.pending[entry.fp.Key]; ok && current.seq == entry.seq {
			delete(c.pending, entry.fp.Key)
		}
	}
	c.mu.Unlock()
	c.logger.Debug("content cache flushed",
		logging.String(logging.FieldEventType, "cache_flush"),
		logging.Int("entries", len(batch)),
	)
	return nil
}

// Stats reports persisted and in-process counters.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	c.mu.Lock()
	stats := Stats{
		Path:    c.path,
		Pending: len(c.pending),
		Hits:    c.hits,
		Misses:  c.misses,
		Stores:  c.stores,
		Corrupt: c.corrupt,
		Reset:   c.reset,
		MovedTo: c.movedTo,
	}
	c.mu.Unlock()

	var updated sql.NullString
	err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(1), COALESCE(SUM(LENGTH(payload)), 0), MAX(stored_at) FROM entries",
	).Scan(&stats.Entries, &stats.PayloadBytes, &updated)
	if err != nil {
		return stats, fmt.Errorf("read cache stats: %w", err)
	}
	if updated.Valid {
		if ts, parseErr := time.Parse(time.RFC3339Nano, updated.String); parseErr == nil {
			stats.UpdatedAt = ts
		}
	}
	if info, err := os.Stat(c.path); err == nil {
		stats.FileBytes = info.Size()
	}
	return stats, nil
}

// Clear removes every entry, pending or persisted, and returns how many
// persisted entries were dropped.
func (c *Cache) Clear(ctx context.Context) (int, error) {
	c.mu.Lock()
	c.pending = make(map[string]pendingEntry)
	c.mu.Unlock()

	res, err := c.db.ExecContext(ctx, "DELETE FROM entries")
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	n, _ := res.RowsAffected()
	if _, err := c.db.ExecContext(ctx, "VACUUM"); err != nil {
		c.logger.Debug("cache vacuum failed", logging.Error(err))
	}
	return int(n), nil
}

// Close flushes pending entries and closes the database.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	flushErr := c.Flush(context.Background())
	closeErr := c.db.Close()
	c.db = nil
	return errors.Join(flushErr, closeErr)
}
