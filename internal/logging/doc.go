// Package logging assembles the structured slog loggers used across the
// preparation pipeline.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context helpers so extraction and series code can tag
// log lines with the run, shard, session and series they concern. A no-op
// logger is provided for tests and for wiring code that has no logger yet.
package logging
