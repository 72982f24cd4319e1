package logs

import (
	"encoding/json"
	"strings"
	"time"
)

// Entry is one decoded JSON log record.
type Entry struct {
	Time   time.Time
	Level  string
	Msg    string
	TileID string
	Fields map[string]any
	Raw    string
}

// Parse decodes a run log line. Lines that are not JSON objects report false.
func Parse(line string) (Entry, bool) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return Entry{}, false
	}
	e := Entry{Fields: fields, Raw: line}
	e.Level, _ = fields["level"].(string)
	e.Msg, _ = fields["msg"].(string)
	e.TileID, _ = fields["tile_id"].(string)
	if ts, ok := fields["ts"].(string); ok {
		e.Time, _ = time.Parse(time.RFC3339, ts)
	}
	return e, true
}

var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

// Filter selects entries. Zero values match everything.
type Filter struct {
	TileID   string
	MinLevel string
}

// Match reports whether e passes the filter.
func (f Filter) Match(e Entry) bool {
	if f.TileID != "" && e.TileID != f.TileID {
		return false
	}
	if f.MinLevel != "" {
		want, ok := levelRank[strings.ToLower(f.MinLevel)]
		if ok && levelRank[strings.ToLower(e.Level)] < want {
			return false
		}
	}
	return true
}

// Apply parses lines and keeps the matching entries in order.
func (f Filter) Apply(lines []string) []Entry {
	var out []Entry
	for _, line := range lines {
		e, ok := Parse(line)
		if !ok || !f.Match(e) {
			continue
		}
		out = append(out, e)
	}
	return out
}
