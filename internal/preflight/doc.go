// Package preflight provides readiness checks for the filesystem locations
// a batch import depends on.
//
// These checks run in two contexts:
//   - The import command calls RunAll before opening any store. If a check
//     fails, the run stops before a single tile is touched.
//   - The CLI "tilebatch preflight" command prints every result.
//
// Checks for optional locations are skipped when they are not configured.
package preflight
