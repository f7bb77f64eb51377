package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SeriesRecord describes one series directory in the prepared layout.
type SeriesRecord struct {
	UID       string
	SubjectID string
	SessionID string
	Modality  string
	DType     string
	Shape     []int
	Spacing   []float64
	Source    string
	RunID     string
	WrittenAt time.Time
}

// RecordSeries inserts or replaces the row for rec.UID. Re-preparing a series
// moves it to the newer run.
func (s *Store) RecordSeries(ctx context.Context, rec SeriesRecord) error {
	shape, err := json.Marshal(rec.Shape)
	if err != nil {
		return fmt.Errorf("encode shape: %w", err)
	}
	var spacing any
	if rec.Spacing != nil {
		raw, err := json.Marshal(rec.Spacing)
		if err != nil {
			return fmt.Errorf("encode spacing: %w", err)
		}
		spacing = string(raw)
	}
	writtenAt := rec.WrittenAt
	if writtenAt.IsZero() {
		writtenAt = time.Now()
	}

	_, err = s.execWithRetry(ctx,
		`INSERT INTO series (uid, subject_id, session_id, modality, dtype, shape, spacing, source, run_id, written_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(uid) DO UPDATE SET
            subject_id = excluded.subject_id,
            session_id = excluded.session_id,
            modality = excluded.modality,
            dtype = excluded.dtype,
            shape = excluded.shape,
            spacing = excluded.spacing,
            source = excluded.source,
            run_id = excluded.run_id,
            written_at = excluded.written_at`,
		rec.UID, rec.SubjectID, rec.SessionID, rec.Modality, rec.DType, string(shape), spacing,
		nullableString(rec.Source), rec.RunID, formatTime(writtenAt),
	)
	if err != nil {
		return fmt.Errorf("upsert series %s: %w", rec.UID, err)
	}
	return nil
}

const seriesColumns = "uid, subject_id, session_id, modality, dtype, shape, spacing, source, run_id, written_at"

func scanSeries(scanner interface{ Scan(dest ...any) error }) (*SeriesRecord, error) {
	var (
		rec        SeriesRecord
		shapeRaw   string
		spacingRaw sql.NullString
		source     sql.NullString
		writtenRaw string
	)
	if err := scanner.Scan(&rec.UID, &rec.SubjectID, &rec.SessionID, &rec.Modality, &rec.DType,
		&shapeRaw, &spacingRaw, &source, &rec.RunID, &writtenRaw); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(shapeRaw), &rec.Shape); err != nil {
		return nil, fmt.Errorf("decode shape of %s: %w", rec.UID, err)
	}
	if spacingRaw.Valid {
		if err := json.Unmarshal([]byte(spacingRaw.String), &rec.Spacing); err != nil {
			return nil, fmt.Errorf("decode spacing of %s: %w", rec.UID, err)
		}
	}
	rec.Source = source.String
	if written, err := parseTimeString(writtenRaw); err == nil {
		rec.WrittenAt = written
	}
	return &rec, nil
}

// GetSeries loads one series row. It returns nil, nil when uid is unknown.
func (s *Store) GetSeries(ctx context.Context, uid string) (*SeriesRecord, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+seriesColumns+` FROM series WHERE uid = ?`, uid)
	rec, err := scanSeries(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get series: %w", err)
	}
	return rec, nil
}

// AllSeries lists every recorded series ordered by subject, session and uid.
func (s *Store) AllSeries(ctx context.Context) ([]*SeriesRecord, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+seriesColumns+` FROM series ORDER BY subject_id, session_id, uid`)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}
	defer rows.Close()

	var out []*SeriesRecord
	for rows.Next() {
		rec, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ModalityCount is the number of series, sessions and subjects with one modality.
type ModalityCount struct {
	Modality string `json:"modality"`
	Series   int    `json:"series"`
	Sessions int    `json:"sessions"`
	Subjects int    `json:"subjects"`
}

// ModalityCounts summarizes the catalog per modality, ordered by modality.
func (s *Store) ModalityCounts(ctx context.Context) ([]ModalityCount, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT modality, COUNT(1), COUNT(DISTINCT session_id), COUNT(DISTINCT subject_id)
         FROM series GROUP BY modality ORDER BY modality`)
	if err != nil {
		return nil, fmt.Errorf("query modality counts: %w", err)
	}
	defer rows.Close()

	var out []ModalityCount
	for rows.Next() {
		var mc ModalityCount
		if err := rows.Scan(&mc.Modality, &mc.Series, &mc.Sessions, &mc.Subjects); err != nil {
			return nil, err
		}
		out = append(out, mc)
	}
	return out, rows.Err()
}

// Totals counts distinct series, sessions and subjects.
type Totals struct {
	Series   int
	Sessions int
	Subjects int
}

// Totals summarizes the whole catalog.
func (s *Store) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(1), COUNT(DISTINCT session_id), COUNT(DISTINCT subject_id) FROM series`,
	).Scan(&t.Series, &t.Sessions, &t.Subjects)
	if err != nil {
		return Totals{}, fmt.Errorf("query totals: %w", err)
	}
	return t, nil
}
