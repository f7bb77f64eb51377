// Package faults defines the error markers shared by every pipeline stage
// and the policy that decides which of them stop a run.
//
// Stages tag failures with Wrap so callers can match markers with errors.Is
// while the message keeps the stage and operation context. Classify maps an
// error to the pipeline's response: abort the run, count the item as failed,
// or skip it quietly.
package faults
