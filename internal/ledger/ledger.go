package ledger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"tilebatch/internal/faults"
	"tilebatch/internal/fileutil"
	"tilebatch/internal/logging"
)

// Options configures a Ledger.
type Options struct {
	// Sync fsyncs the file after every append.
	Sync   bool
	RunID  string
	Logger *slog.Logger
	Now    func() time.Time
}

// Ledger is the persisted per-tile progress table. Methods are safe for
// concurrent use, though the importer drives it from one goroutine.
type Ledger struct {
	path   string
	opts   Options
	logger *slog.Logger
	lock   *flock.Flock

	mu      sync.Mutex
	file    *os.File
	records map[string]Record
	// appended counts lines written since the last compaction.
	appended int
}

// Open loads the ledger at path, creating it when absent, and takes the
// ledger lock. A second Open on the same path fails with ErrLocked until the
// first is closed.
func Open(path string, opts Options) (*Ledger, error) {
	if path == "" {
		return nil, faults.Wrap(faults.ErrConfiguration, "", "open ledger", "ledger path is empty", nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "ledger")

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, faults.Wrap(faults.ErrConfiguration, "", "open ledger", "create ledger directory", err)
	}
	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, faults.Wrap(faults.ErrConfiguration, "", "open ledger", "acquire ledger lock", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}

	l := &Ledger{path: path, opts: opts, logger: logger, lock: lock, records: make(map[string]Record)}
	damaged, err := l.load()
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	if damaged {
		if err := l.rewrite(); err != nil {
			_ = lock.Unlock()
			return nil, err
		}
	}
	if err := l.openAppend(); err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	return l, nil
}

// load replays the file. It reports whether any line had to be discarded, in
// which case the file is rewritten before new lines are appended.
func (l *Ledger) load() (bool, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, faults.Wrap(faults.ErrConfiguration, "", "open ledger", "read ledger", err)
	}

	damaged := false
	torn := len(data) > 0 && data[len(data)-1] != '\n'
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	lines := bytes.Count(data, []byte{'\n'})
	if torn {
		lines++
	}
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil || rec.Tile == "" || !rec.Status.valid() {
			damaged = true
			if lineNo == lines {
				l.logger.Warn("ignoring torn ledger line",
					logging.String(logging.FieldEventType, "ledger_torn_line"),
					logging.Int("line", lineNo),
				)
			} else {
				logging.WarnWithContext(l.logger, "ignoring unreadable ledger line", "ledger_bad_line",
					logging.Int("line", lineNo),
					logging.String(logging.FieldErrorHint, "inspect the ledger file; the tile will be treated as pending"),
				)
			}
			continue
		}
		l.records[rec.Tile] = rec
	}
	if err := scanner.Err(); err != nil {
		return false, faults.Wrap(faults.ErrConfiguration, "", "open ledger", "scan ledger", err)
	}
	return damaged || torn, nil
}

func (l *Ledger) openAppend() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return faults.Wrap(faults.ErrConfiguration, "", "open ledger", "open ledger for append", err)
	}
	l.file = f
	return nil
}

// Path returns the ledger file location.
func (l *Ledger) Path() string {
	return l.path
}

// Register appends a pending record for every id not yet in the ledger and
// returns how many were added.
func (l *Ledger) Register(ids []string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.opts.Now().UTC()
	var batch []Record
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := l.records[id]; ok {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		batch = append(batch, Record{Tile: id, Status: StatusPending, Run: l.opts.RunID, At: now})
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if err := l.append(batch...); err != nil {
		return 0, err
	}
	return len(batch), nil
}

// IsDone reports whether id has been committed in any run.
func (l *Ledger) IsDone(id string) bool {
	rec, ok := l.Status(id)
	return ok && rec.Status == StatusDone
}

// Status returns the latest record for id.
func (l *Ledger) Status(id string) (Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[id]
	return rec, ok
}

// MarkDone records that id was committed to the host.
func (l *Ledger) MarkDone(id, detail string) error {
	return l.mark(id, StatusDone, detail)
}

// MarkFailed records a failure reason for id. The tile stays retriable.
func (l *Ledger) MarkFailed(id, reason string) error {
	return l.mark(id, StatusFailed, reason)
}

// MarkSkipped records that id had nothing to import.
func (l *Ledger) MarkSkipped(id, reason string) error {
	return l.mark(id, StatusSkipped, reason)
}

func (l *Ledger) mark(id string, status Status, detail string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	current, ok := l.records[id]
	if !ok {
		return fmt.Errorf("mark %s %s: %w", id, status, ErrUnknownTile)
	}
	if current.Status == StatusDone {
		return fmt.Errorf("mark %s %s: %w: already done", id, status, ErrIllegalTransition)
	}
	return l.append(Record{Tile: id, Status: status, Detail: detail, Run: l.opts.RunID, At: l.opts.Now().UTC()})
}

// append writes records as one block and updates the in-memory table only
// after the write (and sync, when enabled) succeeds. Caller holds mu.
func (l *Ledger) append(records ...Record) error {
	if l.file == nil {
		return errors.New("ledger is closed")
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode ledger record %s: %w", rec.Tile, err)
		}
	}
	if _, err := l.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	if l.opts.Sync {
		if err := l.file.Sync(); err != nil {
			return fmt.Errorf("sync ledger: %w", err)
		}
	}
	for _, rec := range records {
		l.records[rec.Tile] = rec
	}
	l.appended += len(records)
	return nil
}

// Pending filters ids down to those not yet done, preserving order.
func (l *Ledger) Pending(ids []string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if rec, ok := l.records[id]; ok && rec.Status == StatusDone {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Summary counts records per status.
func (l *Ledger) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()
	var s Summary
	for _, rec := range l.records {
		s.Total++
		switch rec.Status {
		case StatusPending:
			s.Pending++
		case StatusDone:
			s.Done++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		}
	}
	return s
}

// Records returns the latest record per tile sorted by tile id.
func (l *Ledger) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sortedLocked()
}

func (l *Ledger) sortedLocked() []Record {
	out := make([]Record, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tile < out[j].Tile })
	return out
}

// Reset forgets the given tiles, or every tile when none are named, and
// compacts the file. It returns how many records were removed.
func (l *Ledger) Reset(ids ...string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	if len(ids) == 0 {
		removed = len(l.records)
		l.records = make(map[string]Record)
	} else {
		for _, id := range ids {
			if _, ok := l.records[id]; ok {
				delete(l.records, id)
				removed++
			}
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, l.compactLocked()
}

// Compact rewrites the file with one line per tile.
func (l *Ledger) Compact() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.compactLocked()
}

func (l *Ledger) compactLocked() error {
	if l.file != nil {
		if err := l.file.Close(); err != nil {
			return fmt.Errorf("close ledger: %w", err)
		}
		l.file = nil
	}
	if err := l.rewrite(); err != nil {
		return err
	}
	return l.openAppend()
}

func (l *Ledger) rewrite() error {
	records := l.sortedLocked()
	err := fileutil.WriteAtomic(l.path, 0o644, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		for _, rec := range records {
			if err := enc.Encode(rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("compact ledger: %w", err)
	}
	l.appended = 0
	return nil
}

// Close compacts the file when anything was appended and releases the lock.
func (l *Ledger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil && l.lock == nil {
		return nil
	}

	var errs []error
	if l.appended > 0 && l.file != nil {
		if err := l.compactLocked(); err != nil {
			errs = append(errs, err)
		}
	}
	if l.file != nil {
		if err := l.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close ledger: %w", err))
		}
		l.file = nil
	}
	if l.lock != nil {
		if err := l.lock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("release ledger lock: %w", err))
		}
		l.lock = nil
	}
	return errors.Join(errs...)
}
