package dicomtags_test

import (
	"testing"

	"bimcvprep/internal/dicomtags"
)

func TestDictionaryResolvesStandardTags(t *testing.T) {
	dict := dicomtags.Default()
	tests := []struct {
		code string
		want string
	}{
		{"00100010", "PatientName"},
		{"00080060", "Modality"},
		{"00280030", "PixelSpacing"},
		{"0028 0030", ""},
		{"zz", ""},
	}
	for _, tc := range tests {
		got, ok := dict.Keyword(tc.code)
		if tc.want == "" {
			if ok {
				t.Fatalf("Keyword(%q) = %q, want unresolved", tc.code, got)
			}
			continue
		}
		if !ok || got != tc.want {
			t.Fatalf("Keyword(%q) = %q, %v; want %q", tc.code, got, ok, tc.want)
		}
	}
}

func TestDictionaryOverridesWin(t *testing.T) {
	dict := dicomtags.NewDictionary(map[string]string{"00091001": "SiteCreator", "00100010": "Name"})
	if got, ok := dict.Keyword("00091001"); !ok || got != "SiteCreator" {
		t.Fatalf("private override = %q, %v", got, ok)
	}
	if got, _ := dict.Keyword("00100010"); got != "Name" {
		t.Fatalf("override should shadow standard keyword, got %q", got)
	}
	// cached path
	if got, _ := dict.Keyword("00100010"); got != "Name" {
		t.Fatalf("cached lookup = %q", got)
	}
}

func TestIsTagCode(t *testing.T) {
	if !dicomtags.IsTagCode("7fe00010") {
		t.Fatal("expected lower-case hex code accepted")
	}
	if dicomtags.IsTagCode("PatientName") {
		t.Fatal("keyword must not be treated as a code")
	}
}
