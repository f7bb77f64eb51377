package preflight

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"bimcvprep/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(_ context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckReadableDirectory("Archive directory", cfg.Paths.ArchiveDir),
		CheckCreatableDirectory("Prepared directory", cfg.Paths.PreparedDir),
		CheckCreatableDirectory("Scratch directory", cfg.Paths.ScratchDir),
	}
	if results[0].Passed {
		results = append(results, CheckShards(cfg.Paths.ArchiveDir, cfg.Extraction.ShardPattern))
	}

	if cfg.Normalization.RotateCT {
		results = append(results, CheckRotationTable(cfg.Normalization.RotationTable))
	}
	if cfg.Catalog.Enabled {
		results = append(results, CheckCreatableDirectory("Catalog directory", filepath.Dir(cfg.Catalog.Path)))
	}
	return results
}

// Failed returns an error naming every failed check, or nil.
func Failed(results []Result) error {
	var failed []string
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, fmt.Sprintf("%s: %s", r.Name, r.Detail))
		}
	}
	if len(failed) == 0 {
		return nil
	}
	return errors.New("preflight failed: " + strings.Join(failed, "; "))
}
