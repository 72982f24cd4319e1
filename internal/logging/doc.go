// Package logging assembles the slog loggers used across tilebatch.
//
// A batch run logs twice: human-readable lines on stderr (console, or styled
// via charmbracelet/log) and JSON records in the run's own log file, which
// `tilebatch logs` reads back. NewFromConfig wires both and prunes expired
// run logs. Context helpers tag records with tile, stage and run ids, and
// WarnWithContext/ErrorWithContext guarantee event_type and error_hint on
// every degraded-path record.
package logging
