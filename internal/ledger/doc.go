// Package ledger records per-tile import progress in a JSON Lines file.
//
// Each line is one record; the last record for a tile wins. Marks are
// appended and synced before they return, so a tile reported done survives a
// crash. Open ignores a torn final line left by an interrupted write, and
// Close rewrites the file with one line per tile. A lock file beside the
// ledger keeps a second run from writing to it concurrently.
package ledger
