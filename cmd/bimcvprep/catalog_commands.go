package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"bimcvprep/internal/catalog"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the preparation catalog",
	}

	catalogCmd.AddCommand(newCatalogSummaryCommand(ctx))
	catalogCmd.AddCommand(newCatalogRunsCommand(ctx))

	return catalogCmd
}

func newCatalogSummaryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show prepared series counts per modality",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(func(store *catalog.Store) error {
				totals, err := store.Totals(cmd.Context())
				if err != nil {
					return err
				}
				counts, err := store.ModalityCounts(cmd.Context())
				if err != nil {
					return err
				}

				if ctx.JSONMode() {
					if counts == nil {
						counts = []catalog.ModalityCount{}
					}
					return writeJSON(cmd, map[string]any{
						"series":     totals.Series,
						"sessions":   totals.Sessions,
						"subjects":   totals.Subjects,
						"modalities": counts,
					})
				}

				out := cmd.OutOrStdout()
				if totals.Series == 0 {
					fmt.Fprintln(out, "Catalog is empty; run bimcvprep prepare first")
					return nil
				}
				rows := make([][]string, 0, len(counts)+1)
				for _, mc := range counts {
					rows = append(rows, []string{mc.Modality, strconv.Itoa(mc.Series), strconv.Itoa(mc.Sessions), strconv.Itoa(mc.Subjects)})
				}
				rows = append(rows, []string{"total", strconv.Itoa(totals.Series), strconv.Itoa(totals.Sessions), strconv.Itoa(totals.Subjects)})
				fmt.Fprint(out, renderTable(
					[]string{"Modality", "Series", "Sessions", "Subjects"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
}

func newCatalogRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent preparation runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withCatalog(func(store *catalog.Store) error {
				runs, err := store.RecentRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					if runs == nil {
						runs = []*catalog.Run{}
					}
					return writeJSON(cmd, runs)
				}
				if len(runs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					rows = append(rows, []string{
						run.ID,
						run.StartedAt.Local().Format("2006-01-02 15:04"),
						string(run.Status),
						strconv.Itoa(run.Sessions),
						strconv.Itoa(run.Written),
						strconv.Itoa(run.Skipped),
						strconv.Itoa(run.Failed),
					})
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"Run", "Started", "Status", "Sessions", "Written", "Skipped", "Failed"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of runs to show")
	return cmd
}
