package layout

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"bimcvprep/internal/logging"
	"bimcvprep/internal/ndarray"
	"bimcvprep/internal/series"
)

// Directory names below the prepared root.
const (
	SeriesDir   = "series"
	SessionsDir = "sessions"
	SubjectsDir = "subjects"
)

// compressionLevel matches the level the dataset has always been published with.
const compressionLevel = 3

// ErrNoImage reports a series that has only tags; such series are not written.
var ErrNoImage = errors.New("series has no image")

// Writer materializes series and aggregate indexes under a prepared root.
type Writer struct {
	root   string
	logger *slog.Logger
}

// NewWriter returns a writer rooted at dir.
func NewWriter(dir string, logger *slog.Logger) *Writer {
	return &Writer{root: dir, logger: logging.NewComponentLogger(logger, "layout")}
}

// Root returns the prepared root.
func (w *Writer) Root() string { return w.root }

// Prepare creates the root and its three top-level directories.
func (w *Writer) Prepare() error {
	for _, dir := range []string{w.root, w.path(SeriesDir), w.path(SessionsDir), w.path(SubjectsDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func (w *Writer) path(parts ...string) string {
	return filepath.Join(append([]string{w.root}, parts...)...)
}

// SeriesPath returns the directory a series uid is written to.
func (w *Writer) SeriesPath(uid string) string {
	return w.path(SeriesDir, uid)
}

// WriteSeries writes s into series/<uid>. The directory is assembled under a
// temporary name and renamed into place, replacing any previous version.
func (w *Writer) WriteSeries(s *series.Series) (string, error) {
	if s.Image == nil {
		return "", fmt.Errorf("write series %s: %w", s.UID, ErrNoImage)
	}
	parent := w.path(SeriesDir)
	tmp, err := os.MkdirTemp(parent, "."+s.UID+".tmp-")
	if err != nil {
		return "", fmt.Errorf("create staging dir for %s: %w", s.UID, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(tmp)
		}
	}()

	if err := writeSeriesFiles(tmp, s); err != nil {
		return "", fmt.Errorf("write series %s: %w", s.UID, err)
	}

	final := w.SeriesPath(s.UID)
	if err := os.RemoveAll(final); err != nil {
		return "", fmt.Errorf("replace series %s: %w", s.UID, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return "", fmt.Errorf("commit series %s: %w", s.UID, err)
	}
	committed = true

	w.logger.Debug("series written",
		logging.String(logging.FieldSeries, s.UID),
		logging.String("path", final),
		logging.String("dtype", s.Image.DType().String()),
		logging.Any("shape", s.Image.Shape()),
	)
	return final, nil
}

func writeSeriesFiles(dir string, s *series.Series) error {
	if err := writeJSON(filepath.Join(dir, "uid.json"), s.UID); err != nil {
		return err
	}
	if err := writeGzip(filepath.Join(dir, "image.npy.gz"), func(w io.Writer) error {
		return WriteNPY(w, s.Image)
	}); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, "shape.json"), s.Image.Shape()); err != nil {
		return err
	}
	if s.Spacing != nil {
		if err := writeJSON(filepath.Join(dir, "spacing.json"), s.Spacing); err != nil {
			return err
		}
	}
	if s.Tags != nil {
		if err := writeGzip(filepath.Join(dir, "tags.json.gz"), func(w io.Writer) error {
			data, err := marshalJSON(s.Tags)
			if err != nil {
				return err
			}
			_, err = w.Write(data)
			return err
		}); err != nil {
			return err
		}
	}
	for name, value := range map[string]string{
		"subject.json":  s.SubjectID,
		"session.json":  s.SessionID,
		"modality.json": s.Modality,
	} {
		if err := writeJSON(filepath.Join(dir, name), value); err != nil {
			return err
		}
	}
	return nil
}

// marshalJSON encodes value without HTML escaping; tag values carry free text.
func marshalJSON(value any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(value); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func writeJSON(path string, value any) error {
	data, err := marshalJSON(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeGzip(path string, encode func(io.Writer) error) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	zw, err := gzip.NewWriterLevel(f, compressionLevel)
	if err != nil {
		return err
	}
	if err := encode(zw); err != nil {
		_ = zw.Close()
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("compress %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// ReadSeriesImage decodes series/<uid>/image.npy.gz.
func (w *Writer) ReadSeriesImage(uid string) (*ndarray.Array, error) {
	f, err := os.Open(filepath.Join(w.SeriesPath(uid), "image.npy.gz"))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open image of %s: %w", uid, err)
	}
	defer zr.Close()
	return ReadNPY(zr)
}
