// Package archive extracts session subtrees from the sharded tar dumps of
// the dataset.
//
// Extraction runs in two phases. An index pass reads only tar headers from
// every shard, recognizes session roots (sub-*/ses-* directory members) and
// assigns file members to them; a session split over several shards is
// merged into one plan. Sessions are then materialized one at a time into a
// fresh directory under the scratch root, yielded to the caller, and removed
// as soon as the caller advances, breaks out of the loop, or the context is
// cancelled. Only one session's file contents are ever on disk.
package archive
