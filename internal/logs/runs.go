package logs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNoRuns is returned by Find when the directory holds no run logs.
var ErrNoRuns = errors.New("no run logs")

const (
	runPrefix = "run-"
	runSuffix = ".log"
)

// RunLog is one per-run log file.
type RunLog struct {
	RunID   string
	Path    string
	Size    int64
	ModTime time.Time
}

// List returns the run logs in dir, newest first. A missing directory yields
// no runs.
func List(dir string) ([]RunLog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list run logs: %w", err)
	}
	var runs []RunLog
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, runPrefix) || !strings.HasSuffix(name, runSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		runs = append(runs, RunLog{
			RunID:   strings.TrimSuffix(strings.TrimPrefix(name, runPrefix), runSuffix),
			Path:    filepath.Join(dir, name),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].ModTime.After(runs[j].ModTime)
	})
	return runs, nil
}

// Find returns the newest run whose id starts with prefix; an empty prefix
// selects the latest run.
func Find(dir, prefix string) (RunLog, error) {
	runs, err := List(dir)
	if err != nil {
		return RunLog{}, err
	}
	if len(runs) == 0 {
		return RunLog{}, fmt.Errorf("%w in %s", ErrNoRuns, dir)
	}
	prefix = strings.TrimSpace(prefix)
	for _, run := range runs {
		if strings.HasPrefix(run.RunID, prefix) {
			return run, nil
		}
	}
	return RunLog{}, fmt.Errorf("no run log matching %q in %s", prefix, dir)
}
