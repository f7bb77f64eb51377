package catalog_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	_ "modernc.org/sqlite"

	"bimcvprep/internal/catalog"
	"bimcvprep/internal/testsupport"
)

func TestRunLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)
	ctx := context.Background()

	if err := store.BeginRun(ctx, "run-1", 3); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	run, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != catalog.RunRunning || run.Shards != 3 || run.StartedAt.IsZero() {
		t.Fatalf("unexpected running run: %+v", run)
	}

	totals := catalog.RunTotals{Sessions: 2, Written: 5, Skipped: 1, Failed: 1}
	if err := store.FinishRun(ctx, "run-1", totals, nil); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	run, err = store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != catalog.RunCompleted || run.Written != 5 || run.Failed != 1 || run.FinishedAt.IsZero() {
		t.Fatalf("unexpected finished run: %+v", run)
	}

	if err := store.BeginRun(ctx, "run-2", 1); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if err := store.FinishRun(ctx, "run-2", catalog.RunTotals{}, errors.New("shard unreadable")); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	failed, err := store.GetRun(ctx, "run-2")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if failed.Status != catalog.RunFailed || failed.Error != "shard unreadable" {
		t.Fatalf("unexpected failed run: %+v", failed)
	}

	runs, err := store.RecentRuns(ctx, 5)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
}

func TestFinishUnknownRun(t *testing.T) {
	store := testsupport.MustOpenCatalog(t, testsupport.NewConfig(t))
	err := store.FinishRun(context.Background(), "missing", catalog.RunTotals{}, nil)
	if !errors.Is(err, catalog.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
	if _, err := store.GetRun(context.Background(), "missing"); !errors.Is(err, catalog.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestRecordSeriesUpsertsAndAggregates(t *testing.T) {
	store := testsupport.MustOpenCatalog(t, testsupport.NewConfig(t))
	ctx := context.Background()
	for _, id := range []string{"run-1", "run-2"} {
		if err := store.BeginRun(ctx, id, 1); err != nil {
			t.Fatalf("BeginRun: %v", err)
		}
	}

	records := []catalog.SeriesRecord{
		{UID: "sub-S02_ses-E03_run-1_bp-chest_vp-pa_cr", SubjectID: "sub-S02", SessionID: "ses-E03", Modality: "CR", DType: "uint16", Shape: []int{4, 5}, Spacing: []float64{0.1, 0.1}, RunID: "run-1"},
		{UID: "sub-S01_ses-E01_run-1_bp-chest_ct", SubjectID: "sub-S01", SessionID: "ses-E01", Modality: "CT", DType: "int16", Shape: []int{2, 3, 4}, RunID: "run-1"},
		{UID: "sub-S01_ses-E02_run-1_bp-chest_vp-ap_dx", SubjectID: "sub-S01", SessionID: "ses-E02", Modality: "DX", DType: "uint8", Shape: []int{8, 8}, RunID: "run-1"},
	}
	for _, rec := range records {
		if err := store.RecordSeries(ctx, rec); err != nil {
			t.Fatalf("RecordSeries: %v", err)
		}
	}

	updated := records[1]
	updated.Shape = []int{2, 3, 3}
	updated.Spacing = []float64{1, 0.5, 0.5}
	updated.RunID = "run-2"
	if err := store.RecordSeries(ctx, updated); err != nil {
		t.Fatalf("RecordSeries update: %v", err)
	}

	got, err := store.GetSeries(ctx, updated.UID)
	if err != nil {
		t.Fatalf("GetSeries: %v", err)
	}
	if diff := cmp.Diff(updated, *got, cmpopts.IgnoreFields(catalog.SeriesRecord{}, "WrittenAt")); diff != "" {
		t.Fatalf("series mismatch (-want +got):\n%s", diff)
	}
	if missing, err := store.GetSeries(ctx, "nope"); err != nil || missing != nil {
		t.Fatalf("GetSeries(nope) = %v, %v", missing, err)
	}

	all, err := store.AllSeries(ctx)
	if err != nil {
		t.Fatalf("AllSeries: %v", err)
	}
	var order []string
	for _, rec := range all {
		order = append(order, rec.UID)
	}
	want := []string{records[1].UID, records[2].UID, records[0].UID}
	if diff := cmp.Diff(want, order); diff != "" {
		t.Fatalf("series order mismatch (-want +got):\n%s", diff)
	}

	counts, err := store.ModalityCounts(ctx)
	if err != nil {
		t.Fatalf("ModalityCounts: %v", err)
	}
	wantCounts := []catalog.ModalityCount{
		{Modality: "CR", Series: 1, Sessions: 1, Subjects: 1},
		{Modality: "CT", Series: 1, Sessions: 1, Subjects: 1},
		{Modality: "DX", Series: 1, Sessions: 1, Subjects: 1},
	}
	if diff := cmp.Diff(wantCounts, counts); diff != "" {
		t.Fatalf("modality counts mismatch (-want +got):\n%s", diff)
	}

	totals, err := store.Totals(ctx)
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if diff := cmp.Diff(catalog.Totals{Series: 3, Sessions: 3, Subjects: 2}, totals); diff != "" {
		t.Fatalf("totals mismatch (-want +got):\n%s", diff)
	}
}

func TestSkipReasons(t *testing.T) {
	store := testsupport.MustOpenCatalog(t, testsupport.NewConfig(t))
	ctx := context.Background()
	if err := store.BeginRun(ctx, "run-1", 1); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	for _, reason := range []string{"empty_file", "ambiguous_group", "empty_file"} {
		if err := store.RecordSkip(ctx, "run-1", "item", reason, ""); err != nil {
			t.Fatalf("RecordSkip: %v", err)
		}
	}
	got, err := store.SkipReasons(ctx, "run-1")
	if err != nil {
		t.Fatalf("SkipReasons: %v", err)
	}
	if diff := cmp.Diff(map[string]int{"empty_file": 2, "ambiguous_group": 1}, got); diff != "" {
		t.Fatalf("skip reasons mismatch (-want +got):\n%s", diff)
	}
}

func TestSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	store, err := catalog.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	_ = store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	_ = db.Close()

	if _, err := catalog.OpenPath(path); !errors.Is(err, catalog.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
