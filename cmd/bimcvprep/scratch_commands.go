package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"bimcvprep/internal/scratch"
)

func newScratchCommand(ctx *commandContext) *cobra.Command {
	scratchCmd := &cobra.Command{
		Use:   "scratch",
		Short: "Manage the scratch root",
	}

	scratchCmd.AddCommand(newScratchListCommand(ctx))
	scratchCmd.AddCommand(newScratchCleanCommand(ctx))

	return scratchCmd
}

func newScratchListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scratch directories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			scratchDir := strings.TrimSpace(cfg.Paths.ScratchDir)
			dirs, err := scratch.ListDirectories(scratchDir)
			if err != nil {
				return fmt.Errorf("list scratch directories: %w", err)
			}

			var totalSize int64
			for _, dir := range dirs {
				totalSize += dir.Size
			}

			if ctx.JSONMode() {
				if dirs == nil {
					dirs = []scratch.DirInfo{}
				}
				return writeJSON(cmd, map[string]any{
					"scratch_dir":      scratchDir,
					"directories":      dirs,
					"total_size_bytes": totalSize,
				})
			}

			if len(dirs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No scratch directories found")
				return nil
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scratch directory: %s\n\n", scratchDir)

			rows := make([][]string, 0, len(dirs))
			for _, dir := range dirs {
				age := time.Since(dir.ModTime).Truncate(time.Minute)
				rows = append(rows, []string{dir.Name, formatDuration(age), formatBytes(dir.Size), yesNo(dir.InUse)})
			}
			fmt.Fprint(out, renderTable(
				[]string{"Directory", "Age", "Size", "In use"},
				rows,
				[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
			))
			fmt.Fprintf(out, "\nTotal: %d directories, %s\n", len(dirs), formatBytes(totalSize))
			return nil
		},
	}
}

func newScratchCleanCommand(ctx *commandContext) *cobra.Command {
	var cleanAll bool

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove scratch directories left behind by crashed runs",
		Long: `Remove scratch directories older than scratch.stale_after_hours.

Directories whose run lock is still held are never removed. Use --all to
ignore the age threshold.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return err
			}

			maxAge := time.Duration(cfg.Scratch.StaleAfterHours) * time.Hour
			if cleanAll {
				maxAge = 0
			}
			result := scratch.CleanStale(cmd.Context(), cfg.Paths.ScratchDir, maxAge, logger)

			if ctx.JSONMode() {
				errs := make([]string, 0, len(result.Errors))
				for _, e := range result.Errors {
					errs = append(errs, fmt.Sprintf("%s: %v", e.Path, e.Error))
				}
				return writeJSON(cmd, map[string]any{
					"removed": len(result.Removed),
					"in_use":  len(result.Skipped),
					"errors":  errs,
				})
			}
			return printCleanResult(cmd, result)
		},
	}

	cmd.Flags().BoolVar(&cleanAll, "all", false, "Remove every unlocked scratch directory regardless of age")
	return cmd
}

func printCleanResult(cmd *cobra.Command, result scratch.CleanStaleResult) error {
	out := cmd.OutOrStdout()
	if len(result.Removed) == 0 && len(result.Errors) == 0 {
		fmt.Fprintln(out, "No stale scratch directories to clean")
	} else {
		fmt.Fprintf(out, "Removed %d scratch directories\n", len(result.Removed))
	}
	if len(result.Skipped) > 0 {
		fmt.Fprintf(out, "Kept %d directories in use by a running preparation\n", len(result.Skipped))
	}
	for _, e := range result.Errors {
		fmt.Fprintf(out, "  Error: %s: %v\n", e.Path, e.Error)
	}
	return nil
}
