package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"bimcvprep/internal/logging"
)

// Entry identifies one written series for the aggregate indexes.
type Entry struct {
	UID       string
	SubjectID string
	SessionID string
	Modality  string
}

// SessionIndex aggregates the series of one session.
type SessionIndex struct {
	ID         string
	SubjectID  string
	SeriesIDs  []string
	Modalities []string
}

// SubjectIndex aggregates the sessions and series of one subject.
type SubjectIndex struct {
	ID         string
	SeriesIDs  []string
	SessionIDs []string
	Modalities []string
}

// Index is the full set of aggregates, each list sorted.
type Index struct {
	Sessions []SessionIndex
	Subjects []SubjectIndex
}

type set map[string]struct{}

func (s set) add(v string) { s[v] = struct{}{} }

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// BuildIndex groups entries by session and subject. Sessions and subjects
// without series never appear. A session is attributed to the subject of its
// first entry.
func BuildIndex(entries []Entry) Index {
	type sessionAcc struct {
		subject    string
		series     set
		modalities set
	}
	type subjectAcc struct {
		series     set
		sessions   set
		modalities set
	}
	sessions := map[string]*sessionAcc{}
	subjects := map[string]*subjectAcc{}

	for _, e := range entries {
		ses, ok := sessions[e.SessionID]
		if !ok {
			ses = &sessionAcc{subject: e.SubjectID, series: set{}, modalities: set{}}
			sessions[e.SessionID] = ses
		}
		ses.series.add(e.UID)
		ses.modalities.add(e.Modality)

		sub, ok := subjects[e.SubjectID]
		if !ok {
			sub = &subjectAcc{series: set{}, sessions: set{}, modalities: set{}}
			subjects[e.SubjectID] = sub
		}
		sub.series.add(e.UID)
		sub.sessions.add(e.SessionID)
		sub.modalities.add(e.Modality)
	}

	var idx Index
	for _, id := range keys(sessions) {
		acc := sessions[id]
		idx.Sessions = append(idx.Sessions, SessionIndex{
			ID:         id,
			SubjectID:  acc.subject,
			SeriesIDs:  acc.series.sorted(),
			Modalities: acc.modalities.sorted(),
		})
	}
	for _, id := range keys(subjects) {
		acc := subjects[id]
		idx.Subjects = append(idx.Subjects, SubjectIndex{
			ID:         id,
			SeriesIDs:  acc.series.sorted(),
			SessionIDs: acc.sessions.sorted(),
			Modalities: acc.modalities.sorted(),
		})
	}
	return idx
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// WriteIndex writes sessions/<id>/ and subjects/<id>/ for every aggregate.
func (w *Writer) WriteIndex(idx Index) error {
	for _, ses := range idx.Sessions {
		dir := w.path(SessionsDir, ses.ID)
		if err := writeAll(dir, map[string]any{
			"uid.json":               ses.ID,
			"subject_id.json":        ses.SubjectID,
			"series_ids.json":        ses.SeriesIDs,
			"series_modalities.json": ses.Modalities,
		}); err != nil {
			return fmt.Errorf("write session %s: %w", ses.ID, err)
		}
	}
	for _, sub := range idx.Subjects {
		dir := w.path(SubjectsDir, sub.ID)
		if err := writeAll(dir, map[string]any{
			"uid.json":          sub.ID,
			"series_ids.json":   sub.SeriesIDs,
			"sessions_ids.json": sub.SessionIDs,
			"modalities.json":   sub.Modalities,
		}); err != nil {
			return fmt.Errorf("write subject %s: %w", sub.ID, err)
		}
	}
	w.logger.Info("aggregate index written",
		logging.String(logging.FieldEventType, "index_written"),
		logging.Int("sessions", len(idx.Sessions)),
		logging.Int("subjects", len(idx.Subjects)),
	)
	return nil
}

func writeAll(dir string, files map[string]any) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for name, value := range files {
		if err := writeJSON(filepath.Join(dir, name), value); err != nil {
			return err
		}
	}
	return nil
}
