// Package contentcache persists normalized tile geometry in a SQLite file
// keyed by a fingerprint of the tile's source files.
//
// Entries stored during a run are held in memory and written in a single
// transaction on Flush, which the importer calls at each checkpoint. Lookups
// see pending entries. A schema version change resets the store, and a file
// SQLite cannot read is moved aside and replaced by an empty cache instead of
// failing the batch.
package contentcache
