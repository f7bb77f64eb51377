// Package preflight provides readiness checks for the filesystem inputs and
// outputs bimcvprep depends on.
//
// These checks run in two contexts:
//   - The pipeline calls RunAll before reading any shard. If a check fails the
//     run stops before hours are spent on a doomed extraction.
//   - The CLI "bimcvprep check" command prints every result as a table.
package preflight
