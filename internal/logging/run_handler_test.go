package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestRunIDHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newRunIDHandler(slog.NewJSONHandler(&buf, nil), "run-123")).With("extra", "value")
	logger.Info("test message")

	output := buf.String()
	if !strings.Contains(output, `"run_id":"run-123"`) {
		t.Errorf("expected run_id in output, got: %s", output)
	}
	if !strings.Contains(output, `"extra":"value"`) {
		t.Errorf("expected extra attr in output, got: %s", output)
	}
}

func TestRunIDHandlerNilBase(t *testing.T) {
	if _, ok := newRunIDHandler(nil, "run").(discardHandler); !ok {
		t.Error("expected discard handler when base is nil")
	}
}

func TestRunIDHandlerStaysTopLevelInGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newRunIDHandler(slog.NewJSONHandler(&buf, nil), "run-9")).WithGroup("cache")
	logger.Info("checkpoint", "hits", 2)

	output := buf.String()
	if !strings.Contains(output, `"run_id":"run-9"`) || !strings.Contains(output, `"cache":{"hits":2}`) {
		t.Fatalf("unexpected output: %s", output)
	}
}

func TestRunIDHandlerDefersToExplicitRunID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newRunIDHandler(slog.NewJSONHandler(&buf, nil), "run-1")).With(FieldRunID, "run-1")
	logger.Info("tile committed")

	if got := strings.Count(buf.String(), `"run_id"`); got != 1 {
		t.Fatalf("run_id written %d times: %s", got, buf.String())
	}
}
