package logging

import (
	"io"
	"log/slog"
	"time"

	charmlog "github.com/charmbracelet/log"
)

// newStyledHandler returns a colourised handler for interactive terminals.
// charmbracelet/log implements slog.Handler directly.
func newStyledHandler(w io.Writer, level slog.Level, addSource bool) slog.Handler {
	logger := charmlog.NewWithOptions(w, charmlog.Options{
		ReportCaller:    addSource,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           charmlog.Level(level),
	})
	return logger
}
