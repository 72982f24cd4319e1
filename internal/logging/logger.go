package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"tilebatch/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	Level  string
	Format string
	// OutputPaths accepts "stdout", "stderr" or file paths; empty means stderr.
	OutputPaths []string
	// RunID, when set, is attached to every record as run_id.
	RunID     string
	AddSource bool
}

// New constructs a slog logger using the provided options.
func New(opts Options) (*slog.Logger, error) {
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(opts.Level))

	paths := opts.OutputPaths
	if len(paths) == 0 {
		paths = []string{"stderr"}
	}
	w, err := openWriters(paths)
	if err != nil {
		return nil, err
	}

	handler, err := newHandler(opts.Format, w, levelVar, opts.AddSource || levelVar.Level() <= slog.LevelDebug)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.RunID) != "" {
		handler = newRunIDHandler(handler, opts.RunID)
	}
	return slog.New(handler), nil
}

// NewHandler builds a bare handler writing to w, used for secondary sinks
// such as per-run log files.
func NewHandler(format string, w io.Writer, level string) (slog.Handler, error) {
	levelVar := new(slog.LevelVar)
	levelVar.Set(parseLevel(level))
	return newHandler(format, w, levelVar, false)
}

func newHandler(format string, w io.Writer, levelVar *slog.LevelVar, addSource bool) (slog.Handler, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		return newJSONHandler(w, levelVar, addSource)
	case "console", "":
		return newPrettyHandler(w, levelVar, addSource), nil
	case "styled":
		return newStyledHandler(w, levelVar.Level(), addSource), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", format)
	}
}

// NewFromConfig builds the logger for one batch run: console records on
// stderr in the configured format, plus JSON records in the run's log file
// under paths.log_dir. Expired run logs and aside-moved caches are pruned.
// The returned closer releases the run log; it is never nil.
func NewFromConfig(cfg *config.Config, runID string) (*slog.Logger, io.Closer, error) {
	if cfg == nil {
		defaults := config.Default()
		cfg = &defaults
	}
	logger, err := New(Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr"},
		RunID:       runID,
	})
	if err != nil {
		return nil, nopCloser{}, fmt.Errorf("init logger: %w", err)
	}

	runLog := cfg.RunLogPath(runID)
	if runLog == "" {
		return logger, nopCloser{}, nil
	}
	handler, closer, err := OpenRunLog(runLog, cfg.Logging.Level)
	if err != nil {
		return nil, nopCloser{}, err
	}
	logger = TeeLogger(logger, newRunIDHandler(handler, runID))

	targets := []RetentionTarget{{Dir: cfg.Paths.LogDir, Pattern: "run-*.log", Exclude: []string{runLog}}}
	if cfg.Cache.Path != "" {
		// Unreadable caches are renamed aside on open; age them out with the logs.
		targets = append(targets, RetentionTarget{Dir: filepath.Dir(cfg.Cache.Path), Pattern: filepath.Base(cfg.Cache.Path) + ".corrupt-*"})
	}
	CleanupOldLogs(logger, cfg.Logging.RetentionDays, targets...)
	return logger, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openWriters(paths []string) (io.Writer, error) {
	seen := make(map[string]bool, len(paths))
	var writers []io.Writer
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true

		switch path {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := ensureLogDir(path); err != nil {
				return nil, err
			}
			file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", path, err)
			}
			writers = append(writers, file)
		}
	}
	switch len(writers) {
	case 0:
		return os.Stderr, nil
	case 1:
		return writers[0], nil
	default:
		return io.MultiWriter(writers...), nil
	}
}

func ensureLogDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
