// Package logs reads the per-run JSON log files written by imports.
//
// List and Find locate run logs by run id, Tail streams a file with bounded
// memory (negative offsets mean "last N lines", Follow polls for growth), and
// Entry/Filter narrow records to one tile or a minimum level so
// `tilebatch logs --tile` can show the history of a single tile across a run.
package logs
