package grouping_test

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"bimcvprep/internal/faults"
	"bimcvprep/internal/grouping"
	"bimcvprep/internal/logging"
	"bimcvprep/internal/testsupport"
)

func collect(t *testing.T, root string) ([]grouping.Descriptor, error) {
	t.Helper()
	var out []grouping.Descriptor
	for desc, err := range grouping.Group(root, logging.NewNop()) {
		if err != nil {
			return out, err
		}
		out = append(out, desc)
	}
	return out, nil
}

func TestGroupPairsImageWithSidecar(t *testing.T) {
	root := t.TempDir()
	files := []string{
		"mod-rx/sub-S01_ses-E01_run-1_bp-chest_vp-ap_cr.png",
		"mod-rx/sub-S01_ses-E01_run-1_bp-chest_vp-ap_cr.json",
		"mod-ct/sub-S01_ses-E01_run-1_bp-chest_ct.json",
		"mod-ct/sub-S01_ses-E01_run-1_bp-chest_ct.nii.gz",
	}
	for _, f := range files {
		testsupport.WriteFile(t, filepath.Join(root, filepath.FromSlash(f)), []byte("x"))
	}

	got, err := collect(t, root)
	if err != nil {
		t.Fatalf("Group returned error: %v", err)
	}
	want := []grouping.Descriptor{
		{
			UID:       "sub-S01_ses-E01_run-1_bp-chest_ct",
			Key:       "mod-ct/sub-S01_ses-E01_run-1_bp-chest_ct",
			ImagePath: filepath.Join(root, "mod-ct", "sub-S01_ses-E01_run-1_bp-chest_ct.nii.gz"),
			TagsPath:  filepath.Join(root, "mod-ct", "sub-S01_ses-E01_run-1_bp-chest_ct.json"),
		},
		{
			UID:       "sub-S01_ses-E01_run-1_bp-chest_vp-ap_cr",
			Key:       "mod-rx/sub-S01_ses-E01_run-1_bp-chest_vp-ap_cr",
			ImagePath: filepath.Join(root, "mod-rx", "sub-S01_ses-E01_run-1_bp-chest_vp-ap_cr.png"),
			TagsPath:  filepath.Join(root, "mod-rx", "sub-S01_ses-E01_run-1_bp-chest_vp-ap_cr.json"),
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("descriptor mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupManifestExclusion(t *testing.T) {
	root := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(root, "sub-S01_ses-E01_scans.tsv"), []byte("filename\n"))
	testsupport.WriteFile(t, filepath.Join(root, "mod-ct", "sub-S01_ses-E01_ct.nii.gz"), []byte("x"))
	testsupport.WriteFile(t, filepath.Join(root, "nested", "sub-S01_ses-E01_scans.tsv"), []byte("x"))

	got, err := collect(t, root)
	if err != nil {
		t.Fatalf("Group returned error: %v", err)
	}
	var keys []string
	for _, d := range got {
		keys = append(keys, d.Key)
		if d.Key == "mod-ct/sub-S01_ses-E01_ct" && (d.ImagePath == "" || d.TagsPath != "") {
			t.Fatalf("lone volume should be image without tags: %+v", d)
		}
	}
	want := []string{"mod-ct/sub-S01_ses-E01_ct", "nested/sub-S01_ses-E01_scans"}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestGroupSkipsOversizedGroups(t *testing.T) {
	root := t.TempDir()
	for _, f := range []string{"a_ct.nii.gz", "a_ct.json", "a_ct.png", "b_cr.png"} {
		testsupport.WriteFile(t, filepath.Join(root, f), []byte("x"))
	}
	got, err := collect(t, root)
	if err != nil {
		t.Fatalf("Group returned error: %v", err)
	}
	if len(got) != 1 || got[0].UID != "b_cr" {
		t.Fatalf("expected only b_cr, got %+v", got)
	}
}

func TestGroupRejectsTwoImagesWithoutSidecar(t *testing.T) {
	root := t.TempDir()
	for _, f := range []string{"a_ct.nii.gz", "a_ct.png"} {
		testsupport.WriteFile(t, filepath.Join(root, f), []byte("x"))
	}
	got, err := collect(t, root)
	if err != nil {
		t.Fatalf("Group returned error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected ambiguous pair skipped, got %+v", got)
	}
}

func TestGroupFailsFastOnUnknownSuffix(t *testing.T) {
	root := t.TempDir()
	testsupport.WriteFile(t, filepath.Join(root, "a_cr.png"), []byte("x"))
	testsupport.WriteFile(t, filepath.Join(root, "z_cr.dcm"), []byte("x"))

	got, err := collect(t, root)
	if !errors.Is(err, faults.ErrUnrecognizedExtension) {
		t.Fatalf("expected ErrUnrecognizedExtension, got %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("nothing may be yielded before the schema check, got %+v", got)
	}
}

func TestStripSuffix(t *testing.T) {
	key, suffix, ok := grouping.StripSuffix("x/sub-1_ses-2_ct.nii.gz")
	if !ok || key != "x/sub-1_ses-2_ct" || suffix != ".nii.gz" {
		t.Fatalf("unexpected strip: %q %q %v", key, suffix, ok)
	}
	if _, _, ok := grouping.StripSuffix("a.nii"); ok {
		t.Fatal("bare .nii is not a known suffix")
	}
}
