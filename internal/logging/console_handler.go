package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// prettyHandler writes one human-readable line per record:
//
//	15:04:05 WARN importer: [t07 · commit] tile failed error_kind=HostCommitError
//
// The component, tile id and stage move into the header. run_id is dropped
// because every line on a console belongs to the same run.
type prettyHandler struct {
	out       *lockedWriter
	level     *slog.LevelVar
	attrs     []kv
	prefix    string
	addSource bool
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) write(p []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.w.Write(p)
	return err
}

func newPrettyHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &prettyHandler{out: &lockedWriter{w: w}, level: lvl, addSource: addSource}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *prettyHandler) Handle(_ context.Context, record slog.Record) error {
	kvs := append([]kv(nil), h.attrs...)
	record.Attrs(func(attr slog.Attr) bool {
		kvs = appendAttr(kvs, h.prefix, attr)
		return true
	})
	head, rest := splitHeader(kvs)

	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var buf bytes.Buffer
	buf.WriteString(ts.Local().Format(time.TimeOnly))
	buf.WriteByte(' ')
	buf.WriteString(levelLabel(record.Level))
	buf.WriteByte(' ')
	if head.component != "" {
		buf.WriteString(head.component)
		buf.WriteString(": ")
	}
	if subject := FormatSubject(head.tileID, head.stage); subject != "" {
		buf.WriteString("[" + subject + "] ")
	}
	if msg := strings.TrimSpace(record.Message); msg != "" {
		buf.WriteString(msg)
	} else {
		buf.WriteString("(no message)")
	}
	if h.addSource {
		// Equivalent of slog.Record.Source (Go 1.25+) for older toolchains.
		if record.PC != 0 {
			src, _ := runtime.CallersFrames([]uintptr{record.PC}).Next()
			buf.WriteString(" [" + filepath.Base(src.File) + ":" + strconv.Itoa(src.Line) + "]")
		}
	}
	for _, field := range rest {
		buf.WriteByte(' ')
		buf.WriteString(field.key)
		buf.WriteByte('=')
		buf.WriteString(formatValue(field.value))
	}
	buf.WriteByte('\n')
	return h.out.write(buf.Bytes())
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]kv(nil), h.attrs...)
	for _, attr := range attrs {
		next.attrs = appendAttr(next.attrs, h.prefix, attr)
	}
	return &next
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

// FormatSubject builds the tile/stage subject string used in console output.
func FormatSubject(tileID, stage string) string {
	tileID = strings.TrimSpace(tileID)
	stage = strings.TrimSpace(stage)
	switch {
	case tileID != "" && stage != "":
		return tileID + " · " + stage
	case tileID != "":
		return tileID
	default:
		return stage
	}
}

type kv struct {
	key   string
	value slog.Value
}

type header struct {
	component string
	tileID    string
	stage     string
}

// splitHeader lifts the first component, tile id and stage out of kvs.
func splitHeader(kvs []kv) (header, []kv) {
	var h header
	rest := make([]kv, 0, len(kvs))
	for _, field := range kvs {
		switch field.key {
		case FieldComponent:
			if h.component == "" {
				h.component = plainValue(field.value)
			}
		case FieldTileID:
			if h.tileID == "" {
				h.tileID = plainValue(field.value)
			}
		case FieldStage:
			if h.stage == "" {
				h.stage = plainValue(field.value)
			}
		case FieldRunID:
		default:
			rest = append(rest, field)
		}
	}
	return h, rest
}

func appendAttr(dst []kv, prefix string, attr slog.Attr) []kv {
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	value := attr.Value.Resolve()
	if value.Kind() != slog.KindGroup {
		return append(dst, kv{key: prefix + attr.Key, value: value})
	}
	inner := prefix
	if attr.Key != "" {
		inner = prefix + attr.Key + "."
	}
	for _, a := range value.Group() {
		dst = appendAttr(dst, inner, a)
	}
	return dst
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

func formatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339)
}
