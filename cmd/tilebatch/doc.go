// Package main hosts the tilebatch CLI entrypoint and command graph.
//
// The Cobra-based command tree loads configuration, opens the content cache,
// progress ledger, and destination scene, and hands a scanned manifest to the
// importer. Maintenance commands inspect and reset the ledger and cache
// without running an import.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
