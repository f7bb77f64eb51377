package archive

import "testing"

func TestNormalizeMember(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"./sub-1/ses-1/", "sub-1/ses-1", false},
		{"sub-1//ses-1/a.png", "sub-1/ses-1/a.png", false},
		{"./", "", false},
		{"../x", "", true},
		{"a/../../x", "", true},
		{"/etc/passwd", "", true},
	}
	for _, tc := range tests {
		got, err := normalizeMember(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("normalizeMember(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Fatalf("normalizeMember(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestIsSessionRootAndMatch(t *testing.T) {
	if !isSessionRoot("covid19_posi/sub-S1/ses-E1") {
		t.Fatal("expected session root")
	}
	if isSessionRoot("covid19_posi/ses-E1") || isSessionRoot("sub-S1/ses-E1/mod-rx") {
		t.Fatal("unexpected session root match")
	}
	roots := []string{"sub-S1/ses-E1", "sub-S1/ses-E10"}
	root, rel, ok := matchRoot("sub-S1/ses-E10/a.png", roots)
	if !ok || root != "sub-S1/ses-E10" || rel != "a.png" {
		t.Fatalf("prefix match must respect segment boundaries: %q %q %v", root, rel, ok)
	}
	if _, _, ok := matchRoot("sub-S1/ses-E1", roots); ok {
		t.Fatal("the root itself is not a member file")
	}
}
