package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/google/go-cmp/cmp"

	"bimcvprep/internal/catalog"
	"bimcvprep/internal/config"
	"bimcvprep/internal/faults"
	"bimcvprep/internal/layout"
	"bimcvprep/internal/logging"
	"bimcvprep/internal/ndarray"
	"bimcvprep/internal/pipeline"
	"bimcvprep/internal/testsupport"
)

const (
	ctUID    = "sub-S01_ses-E01_run-1_bp-chest_ct"
	crUID    = "sub-S01_ses-E02_run-1_bp-chest_vp-pa_cr"
	stillUID = "sub-S01_ses-E02_run-2_bp-chest_cr"
	emptyUID = "sub-S01_ses-E02_run-3_bp-chest_dx"
	tagsUID  = "sub-S02_ses-E03_run-1_bp-chest_cr"
)

// writeArchive lays out two shards. Session ses-E01 is split: its tags are in
// the first shard and its volume in the second.
func writeArchive(t *testing.T, dir string) {
	t.Helper()
	volume := make([]float64, 24)
	for i := range volume {
		volume[i] = float64(i)
	}
	nii := testsupport.NIfTI{
		Shape:   []int{2, 3, 4},
		Spacing: []float64{1, 2, 3},
		DType:   ndarray.Int16,
		Values:  volume,
		Gzip:    true,
	}.Encode(t)

	ctTags := []byte(`{"00080060": {"vr": "CS", "Value": ["CT"]}}`)
	crTags := []byte(`{"00080060": {"vr": "CS", "Value": ["CR"]}, "00280030": {"vr": "DS", "Value": [0.1, 0.2]}}`)

	testsupport.NewShard(t, filepath.Join(dir, "bimcv_covid19_posi_subjects_part1.tar.gz"), true).
		Dir("covid19_posi/sub-S01/ses-E01").
		File("covid19_posi/sub-S01/ses-E01/sub-S01_ses-E01_scans.tsv", []byte("filename\n")).
		File("covid19_posi/sub-S01/ses-E01/mod-ct/"+ctUID+".json", ctTags).
		Dir("covid19_posi/sub-S01/ses-E02").
		File("covid19_posi/sub-S01/ses-E02/mod-rx/"+crUID+".png", testsupport.GrayPNG(t, 3, 2, []uint8{0, 10, 20, 30, 40, 50})).
		File("covid19_posi/sub-S01/ses-E02/mod-rx/"+crUID+".json", crTags).
		File("covid19_posi/sub-S01/ses-E02/mod-rx/"+stillUID+".png", testsupport.RGBPNG(t, 2, 2, color.RGBA{R: 255, A: 255})).
		File("covid19_posi/sub-S01/ses-E02/mod-rx/"+emptyUID+".png", nil).
		Close()

	testsupport.NewShard(t, filepath.Join(dir, "bimcv_covid19_posi_subjects_part2.tar.gz"), false).
		Dir("covid19_posi/sub-S01/ses-E01").
		File("covid19_posi/sub-S01/ses-E01/mod-ct/"+ctUID+".nii.gz", nii).
		Dir("covid19_posi/sub-S02/ses-E03").
		File("covid19_posi/sub-S02/ses-E03/mod-rx/"+tagsUID+".json", crTags).
		Close()
}

func newConfig(t *testing.T, opts ...testsupport.ConfigOption) *config.Config {
	t.Helper()
	opts = append([]testsupport.ConfigOption{testsupport.WithRotationTable(map[string]string{ctUID: "type_5"})}, opts...)
	cfg := testsupport.NewConfig(t, opts...)
	cfg.Normalization.TrimCT = false
	writeArchive(t, cfg.Paths.ArchiveDir)
	return cfg
}

func newPipeline(t *testing.T, cfg *config.Config, store *catalog.Store) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.New(pipeline.Options{Config: cfg, Logger: logging.NewNop(), Catalog: store})
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return p
}

func readJSON(t *testing.T, path string, out any) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
}

func TestRunPreparesArchive(t *testing.T) {
	cfg := newConfig(t)
	store := testsupport.MustOpenCatalog(t, cfg)

	summary, err := newPipeline(t, cfg, store).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Shards != 2 || summary.Sessions != 3 || summary.Written != 2 || summary.Failed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	wantSkipped := map[string]int{
		pipeline.ReasonColorStill: 1,
		pipeline.ReasonNoImage:    1,
		"empty_file":              1,
	}
	if diff := cmp.Diff(wantSkipped, summary.Skipped); diff != "" {
		t.Fatalf("skipped mismatch (-want +got):\n%s", diff)
	}

	prepared := cfg.Paths.PreparedDir
	for _, uid := range []string{stillUID, emptyUID, tagsUID} {
		if _, err := os.Stat(filepath.Join(prepared, "series", uid)); !os.IsNotExist(err) {
			t.Errorf("series %s should not be written (stat err %v)", uid, err)
		}
	}

	writer := layout.NewWriter(prepared, logging.NewNop())
	ct, err := writer.ReadSeriesImage(ctUID)
	if err != nil {
		t.Fatalf("read ct image: %v", err)
	}
	if diff := cmp.Diff([]int{3, 2, 4}, ct.Shape()); diff != "" {
		t.Fatalf("ct shape mismatch (-want +got):\n%s", diff)
	}
	if ct.DType() != ndarray.Int8 {
		t.Fatalf("ct dtype = %s, want int8", ct.DType())
	}
	var spacing []float64
	readJSON(t, filepath.Join(prepared, "series", ctUID, "spacing.json"), &spacing)
	if diff := cmp.Diff([]float64{2, 1, 3}, spacing); diff != "" {
		t.Fatalf("ct spacing mismatch (-want +got):\n%s", diff)
	}

	var crSpacing []float64
	readJSON(t, filepath.Join(prepared, "series", crUID, "spacing.json"), &crSpacing)
	if diff := cmp.Diff([]float64{0.1, 0.2}, crSpacing); diff != "" {
		t.Fatalf("cr spacing mismatch (-want +got):\n%s", diff)
	}

	var sessions []string
	readJSON(t, filepath.Join(prepared, "subjects", "sub-S01", "sessions_ids.json"), &sessions)
	if diff := cmp.Diff([]string{"ses-E01", "ses-E02"}, sessions); diff != "" {
		t.Fatalf("subject sessions mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(prepared, "sessions", "ses-E03")); !os.IsNotExist(err) {
		t.Fatalf("session without written series should not be indexed (stat err %v)", err)
	}

	run, err := store.GetRun(context.Background(), summary.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != catalog.RunCompleted || run.Written != 2 || run.Skipped != 3 {
		t.Fatalf("unexpected catalog run: %+v", run)
	}
	reasons, err := store.SkipReasons(context.Background(), summary.RunID)
	if err != nil {
		t.Fatalf("SkipReasons: %v", err)
	}
	if diff := cmp.Diff(wantSkipped, reasons); diff != "" {
		t.Fatalf("catalog skip reasons mismatch (-want +got):\n%s", diff)
	}

	leftovers, err := os.ReadDir(cfg.Paths.ScratchDir)
	if err != nil {
		t.Fatalf("read scratch: %v", err)
	}
	if len(leftovers) != 0 {
		t.Fatalf("scratch not cleaned: %d entries", len(leftovers))
	}
}

func TestRunWithoutCatalogIndexesThisRun(t *testing.T) {
	cfg := newConfig(t, testsupport.WithoutCatalog(), testsupport.WithColorStills())

	summary, err := newPipeline(t, cfg, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Written != 3 {
		t.Fatalf("expected colour still to be written, summary %+v", summary)
	}

	var ids []string
	readJSON(t, filepath.Join(cfg.Paths.PreparedDir, "sessions", "ses-E02", "series_ids.json"), &ids)
	if diff := cmp.Diff([]string{crUID, stillUID}, ids); diff != "" {
		t.Fatalf("session series mismatch (-want +got):\n%s", diff)
	}
	var shape []int
	readJSON(t, filepath.Join(cfg.Paths.PreparedDir, "series", stillUID, "shape.json"), &shape)
	if diff := cmp.Diff([]int{2, 2, 3}, shape); diff != "" {
		t.Fatalf("still shape mismatch (-want +got):\n%s", diff)
	}
}

func TestRunAbortsOnMalformedShard(t *testing.T) {
	cfg := newConfig(t, testsupport.WithShardErrorPolicy(config.ShardErrorAbort))
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.ArchiveDir, "a_part0.tar.gz"), []byte{0x1f, 0x8b, 0x08, 0x00, 0xde, 0xad})
	store := testsupport.MustOpenCatalog(t, cfg)

	summary, err := newPipeline(t, cfg, store).Run(context.Background())
	if !errors.Is(err, faults.ErrMalformedArchive) {
		t.Fatalf("expected malformed archive error, got %v", err)
	}
	if summary == nil || summary.Written != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	run, err := store.GetRun(context.Background(), summary.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != catalog.RunFailed {
		t.Fatalf("run status = %s, want failed", run.Status)
	}
}

func TestRunSkipsMalformedShardByDefault(t *testing.T) {
	cfg := newConfig(t, testsupport.WithoutCatalog())
	testsupport.WriteFile(t, filepath.Join(cfg.Paths.ArchiveDir, "a_part0.tar.gz"), []byte{0x1f, 0x8b, 0x08, 0x00, 0xde, 0xad})

	summary, err := newPipeline(t, cfg, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Shards != 3 || summary.Written != 2 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestRunRefusesLockedPreparedDir(t *testing.T) {
	cfg := newConfig(t, testsupport.WithoutCatalog())
	if err := os.MkdirAll(cfg.Paths.PreparedDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	holder := flock.New(filepath.Join(cfg.Paths.PreparedDir, pipeline.LockFileName))
	if ok, err := holder.TryLock(); err != nil || !ok {
		t.Fatalf("hold lock: ok=%v err=%v", ok, err)
	}
	t.Cleanup(func() { _ = holder.Unlock() })

	if _, err := newPipeline(t, cfg, nil).Run(context.Background()); !errors.Is(err, pipeline.ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	cfg := newConfig(t, testsupport.WithoutCatalog())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newPipeline(t, cfg, nil).Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewRequiresConfig(t *testing.T) {
	if _, err := pipeline.New(pipeline.Options{}); err == nil {
		t.Fatal("expected error without config")
	}
}
