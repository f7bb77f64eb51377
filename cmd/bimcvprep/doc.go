// Package main hosts the bimcvprep CLI entrypoint and command graph.
//
// The Cobra-based command tree runs preparation passes, inspects and cleans
// the scratch root, summarizes the catalog, scaffolds configuration and runs
// the preflight checks. It centralizes configuration resolution and logger
// construction so subcommands can focus on output.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
