// Package catalog persists preparation progress in SQLite.
//
// The catalog records every run and every series written to the prepared
// layout. Session and subject aggregates are rebuilt from it so that runs
// over different shard subsets accumulate into one consistent index.
package catalog
