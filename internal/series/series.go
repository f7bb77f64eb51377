package series

import (
	"strings"

	"bimcvprep/internal/ndarray"
)

// Series is one decoded acquisition. It owns Image and Tags exclusively
// until handed to the layout writer; the geometry normalizer mutates it in
// place.
type Series struct {
	UID       string
	Image     *ndarray.Array
	Spacing   []float64
	Tags      map[string]any
	SubjectID string
	SessionID string
	Modality  string
	// SourcePath is the decoded image file, kept for log context.
	SourcePath string
}

// IsCT reports whether the uid ends in "ct", compared case-insensitively.
func (s *Series) IsCT() bool {
	return s != nil && strings.HasSuffix(strings.ToLower(s.UID), "ct")
}
