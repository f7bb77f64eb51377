// Package pipeline runs one preparation pass over the archive.
//
// A run locks the prepared root, extracts sessions one at a time into a
// locked scratch directory, groups and decodes each session's series,
// normalizes CT volumes, writes the series layout and records it in the
// catalog. After the last session the session and subject aggregates are
// rebuilt. Expected data conditions skip the item; schema drift, malformed
// archives under the abort policy and cancellation stop the run.
package pipeline
