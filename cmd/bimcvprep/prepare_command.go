package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"bimcvprep/internal/catalog"
	"bimcvprep/internal/config"
	"bimcvprep/internal/pipeline"
)

func newPrepareCommand(ctx *commandContext) *cobra.Command {
	var shardError string
	var noCatalog bool

	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Extract, decode and write every series in the archive",
		Long: `Run one preparation pass over the shards in paths.archive_dir.

Sessions are extracted one at a time into the scratch root, their series are
decoded and CT volumes are rotated and trimmed before the series layout and
the session/subject aggregates are written to paths.prepared_dir.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if policy := strings.ToLower(strings.TrimSpace(shardError)); policy != "" {
				if policy != config.ShardErrorSkip && policy != config.ShardErrorAbort {
					return fmt.Errorf("--on-shard-error must be %q or %q", config.ShardErrorSkip, config.ShardErrorAbort)
				}
				cfg.Extraction.OnShardError = policy
			}
			if noCatalog {
				cfg.Catalog.Enabled = false
			}

			logger, err := ctx.logger()
			if err != nil {
				return err
			}

			var store *catalog.Store
			if cfg.Catalog.Enabled {
				store, err = catalog.Open(cfg)
				if err != nil {
					return fmt.Errorf("open catalog: %w", err)
				}
				defer store.Close()
			}

			p, err := pipeline.New(pipeline.Options{Config: cfg, Logger: logger, Catalog: store})
			if err != nil {
				return err
			}
			summary, runErr := p.Run(cmd.Context())
			if summary != nil {
				if ctx.JSONMode() {
					if err := writeJSON(cmd, summaryJSON(summary, runErr)); err != nil {
						return err
					}
				} else {
					printSummary(cmd, summary)
				}
			}
			return runErr
		},
	}

	cmd.Flags().StringVar(&shardError, "on-shard-error", "", "Override extraction.on_shard_error (skip or abort)")
	cmd.Flags().BoolVar(&noCatalog, "no-catalog", false, "Do not record this run in the catalog")
	return cmd
}

func printSummary(cmd *cobra.Command, s *pipeline.Summary) {
	out := cmd.OutOrStdout()
	rows := [][]string{
		{"Run", s.RunID},
		{"Shards", strconv.Itoa(s.Shards)},
		{"Sessions", strconv.Itoa(s.Sessions)},
		{"Series written", strconv.Itoa(s.Written)},
		{"Series failed", strconv.Itoa(s.Failed)},
	}
	for _, reason := range s.SkipReasons() {
		rows = append(rows, []string{"Skipped (" + reason + ")", strconv.Itoa(s.Skipped[reason])})
	}
	rows = append(rows, []string{"Duration", s.Duration.Round(time.Millisecond).String()})
	fmt.Fprint(out, renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func summaryJSON(s *pipeline.Summary, runErr error) map[string]any {
	out := map[string]any{
		"run_id":      s.RunID,
		"shards":      s.Shards,
		"sessions":    s.Sessions,
		"written":     s.Written,
		"failed":      s.Failed,
		"skipped":     s.Skipped,
		"duration_ms": s.Duration.Milliseconds(),
	}
	if runErr != nil {
		out["error"] = runErr.Error()
	}
	return out
}
