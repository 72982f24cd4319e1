// Package faults defines the failure taxonomy shared by the ingestion
// pipeline.
//
// Every per-tile failure is tagged with one of the sentinel kinds below via
// Wrap so the orchestrator can classify it with errors.Is, record the kind name
// in the progress ledger, and keep the batch running. The package also carries
// the context keys used to thread tile, run, and stage identifiers into log
// lines.
package faults
