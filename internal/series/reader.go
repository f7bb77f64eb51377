package series

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"bimcvprep/internal/dicomtags"
	"bimcvprep/internal/faults"
	"bimcvprep/internal/grouping"
	"bimcvprep/internal/imageio"
	"bimcvprep/internal/ndarray"
)

// Reader decodes descriptors. It holds no per-series state; the resolver is
// the only shared dependency.
type Reader struct {
	resolver dicomtags.Resolver
}

// NewReader returns a Reader resolving tag codes through resolver. A nil
// resolver falls back to the process-wide DICOM dictionary.
func NewReader(resolver dicomtags.Resolver) *Reader {
	if resolver == nil {
		resolver = dicomtags.Default()
	}
	return &Reader{resolver: resolver}
}

// Read decodes d into a Series. Spacing comes from the NIfTI header when
// present and otherwise from the tags.
func (r *Reader) Read(d grouping.Descriptor) (*Series, error) {
	ids, err := ParseIdentifiers(d.UID)
	if err != nil {
		return nil, err
	}
	s := &Series{
		UID:        d.UID,
		SubjectID:  ids.SubjectID,
		SessionID:  ids.SessionID,
		Modality:   ids.Modality,
		SourcePath: d.ImagePath,
	}

	if d.ImagePath != "" {
		img, spacing, err := readImage(d.ImagePath)
		if err != nil {
			return nil, err
		}
		s.Image = ndarray.DownType(img)
		s.Spacing = spacing
	}

	if d.TagsPath != "" {
		tags, err := r.readTags(d.TagsPath)
		if err != nil {
			return nil, err
		}
		s.Tags = tags
	}

	if s.Spacing == nil {
		spacing, err := SpacingFromTags(s.Tags)
		if err != nil {
			return nil, err
		}
		s.Spacing = spacing
	}
	return s, nil
}

func readImage(path string) (*ndarray.Array, []float64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, fmt.Errorf("stat image: %w", err)
	}
	if info.Size() == 0 {
		return nil, nil, faults.Wrap(faults.ErrEmptyFile, "series", "read image", path, nil)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	switch {
	case strings.HasSuffix(path, ".png"):
		img, err := imageio.DecodePNG(f)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		return img, nil, nil
	case strings.HasSuffix(path, ".nii.gz"), strings.HasSuffix(path, ".nii"):
		img, hdr, err := imageio.DecodeNIfTI(f)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", path, err)
		}
		return img, hdr.Spacing(), nil
	default:
		return nil, nil, faults.Wrap(faults.ErrUnsupportedFormat, "series", "read image", path, nil)
	}
}

func (r *Reader) readTags(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tags: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, faults.Wrap(faults.ErrInvalidTags, "series", "decode tags", path, err)
	}
	tags, err := CollapseTags(raw, r.resolver)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tags, nil
}
