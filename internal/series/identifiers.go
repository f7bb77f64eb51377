package series

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"bimcvprep/internal/faults"
)

const (
	subjectPrefix = "sub-"
	sessionPrefix = "ses-"
)

var upper = cases.Upper(language.Und)

// Identifiers are the ids encoded in a series uid.
type Identifiers struct {
	SubjectID string
	SessionID string
	Modality  string
}

// ParseIdentifiers scans the underscore-delimited tokens of uid, e.g.
// sub-S01_ses-E01_run-1_ct gives sub-S01, ses-E01 and CT.
func ParseIdentifiers(uid string) (Identifiers, error) {
	tokens := strings.Split(uid, "_")
	var ids Identifiers
	for _, tok := range tokens {
		switch {
		case ids.SubjectID == "" && strings.HasPrefix(tok, subjectPrefix):
			ids.SubjectID = tok
		case ids.SessionID == "" && strings.HasPrefix(tok, sessionPrefix):
			ids.SessionID = tok
		}
	}
	if ids.SubjectID == "" || ids.SessionID == "" {
		return Identifiers{}, faults.Wrap(faults.ErrMalformedIdentifier, "series", "parse uid", uid, nil)
	}
	ids.Modality = upper.String(tokens[len(tokens)-1])
	return ids, nil
}
