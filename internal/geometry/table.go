package geometry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

const (
	columnSeriesID  = "series_id"
	columnTransform = "transform_type"
)

// RotationTable maps series uids to rotation variants. The CSV behind it is
// read on first use and cached for the life of the process.
type RotationTable struct {
	path string

	once     sync.Once
	variants map[string]Variant
	err      error
}

// NewRotationTable returns a table backed by the CSV at path. An empty path
// yields a table in which every series uses the identity variant.
func NewRotationTable(path string) *RotationTable {
	return &RotationTable{path: path}
}

// Load reads the table if it has not been read yet.
func (t *RotationTable) Load() error {
	t.once.Do(func() {
		if strings.TrimSpace(t.path) == "" {
			t.variants = map[string]Variant{}
			return
		}
		f, err := os.Open(t.path)
		if err != nil {
			t.err = fmt.Errorf("open rotation table: %w", err)
			return
		}
		defer f.Close()
		t.variants, t.err = ParseRotationTable(f)
		if t.err != nil {
			t.err = fmt.Errorf("%s: %w", t.path, t.err)
		}
	})
	return t.err
}

// Lookup returns the variant for uid, Type0 when the uid is not listed.
func (t *RotationTable) Lookup(uid string) (Variant, error) {
	if err := t.Load(); err != nil {
		return Type0, err
	}
	if v, ok := t.variants[uid]; ok {
		return v, nil
	}
	return Type0, nil
}

// Len returns the number of listed series.
func (t *RotationTable) Len() int {
	if t.Load() != nil {
		return 0
	}
	return len(t.variants)
}

// ParseRotationTable reads a CSV with series_id and transform_type columns.
// Other columns are ignored.
func ParseRotationTable(r io.Reader) (map[string]Variant, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("rotation table is empty")
		}
		return nil, fmt.Errorf("read rotation table header: %w", err)
	}
	idCol, typeCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case columnSeriesID:
			idCol = i
		case columnTransform:
			typeCol = i
		}
	}
	if idCol < 0 || typeCol < 0 {
		return nil, fmt.Errorf("rotation table needs %s and %s columns, got %v", columnSeriesID, columnTransform, header)
	}

	out := make(map[string]Variant)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read rotation table: %w", err)
		}
		if idCol >= len(record) || typeCol >= len(record) {
			return nil, fmt.Errorf("rotation table line %d: missing columns", line)
		}
		uid := strings.TrimSpace(record[idCol])
		if uid == "" {
			continue
		}
		variant, err := ParseVariant(strings.TrimSpace(record[typeCol]))
		if err != nil {
			return nil, fmt.Errorf("rotation table line %d: %w", line, err)
		}
		out[uid] = variant
	}
}
