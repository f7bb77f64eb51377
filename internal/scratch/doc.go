// Package scratch manages the scratch root where sessions are extracted.
//
// Every preparation run owns one run directory, locked with an advisory file
// lock for its lifetime and removed when the run ends. Directories left behind
// by crashed runs are reclaimed by CleanStale, which never touches a directory
// whose lock is still held.
package scratch
