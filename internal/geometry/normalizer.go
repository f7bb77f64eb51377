package geometry

import (
	"errors"
	"fmt"
	"log/slog"

	"bimcvprep/internal/logging"
	"bimcvprep/internal/series"
)

var (
	// ErrNotVolume marks an image that is not three-dimensional.
	ErrNotVolume = errors.New("not a 3-D volume")
	// ErrNotCT marks a series whose uid does not end in ct.
	ErrNotCT = errors.New("not a CT series")
)

// Options configures a Normalizer.
type Options struct {
	Table *RotationTable
	// Rotate applies the table's variant; Trim drops degenerate borders.
	Rotate bool
	Trim   bool
	Logger *slog.Logger
}

// Normalizer corrects CT series in place.
type Normalizer struct {
	table  *RotationTable
	rotate bool
	trim   bool
	logger *slog.Logger
}

// NewNormalizer builds a Normalizer. A nil table means identity rotation
// for every series.
func NewNormalizer(opts Options) *Normalizer {
	table := opts.Table
	if table == nil {
		table = NewRotationTable("")
	}
	return &Normalizer{
		table:  table,
		rotate: opts.Rotate,
		trim:   opts.Trim,
		logger: logging.NewComponentLogger(opts.Logger, "geometry"),
	}
}

// Normalize rotates s according to the table and then trims its borders.
// Image and Spacing are replaced; the rest of s is untouched.
func (n *Normalizer) Normalize(s *series.Series) error {
	if !s.IsCT() {
		return fmt.Errorf("normalize %s: %w", s.UID, ErrNotCT)
	}
	if s.Image == nil || s.Image.NDim() != 3 {
		return fmt.Errorf("normalize %s: %w", s.UID, ErrNotVolume)
	}

	variant := Type0
	if n.rotate {
		v, err := n.table.Lookup(s.UID)
		if err != nil {
			return fmt.Errorf("normalize %s: %w", s.UID, err)
		}
		variant = v
	}

	before := s.Image.Shape()
	view, spacing, err := variant.Apply(s.Image.View(), s.Spacing)
	if err != nil {
		return fmt.Errorf("normalize %s: %w", s.UID, err)
	}
	if n.trim {
		view = trimView(view)
	}
	if variant == Type0 && !n.trim {
		return nil
	}
	s.Image = view.Materialize()
	s.Spacing = spacing

	n.logger.Debug("series normalized",
		logging.String(logging.FieldSeries, s.UID),
		logging.String("variant", variant.String()),
		logging.Any("shape_before", before),
		logging.Any("shape_after", s.Image.Shape()),
	)
	return nil
}
