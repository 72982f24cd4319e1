// Package importer drives a batch of tiles through the ingestion pipeline.
//
// Per tile the Manager checks the ledger, parses the descriptor, looks up the
// content cache, decodes and normalizes on a miss, resolves materials through
// the host's registry, commits to the host, and records the outcome. Parsing,
// fingerprinting, cache reads, decoding, and normalization run on a bounded
// worker pool; everything that mutates state (cache stores, ledger marks,
// registry, host) happens on the single goroutine that consumes prepared
// tiles in manifest order.
//
// Ledger marks for committed tiles are written at checkpoints, after the
// cache and the host have been flushed, so a tile is never recorded done
// before the host has made it durable.
package importer
