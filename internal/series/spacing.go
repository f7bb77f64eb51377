package series

import (
	"encoding/json"
	"fmt"
	"strings"

	"bimcvprep/internal/faults"
)

// SpacingFromTags derives voxel spacing from collapsed tags. It returns nil
// when PixelSpacing or Modality is missing. Only projection radiographs
// (CR, DX) carry their full geometry in PixelSpacing; every other modality
// yields ErrSpacingDerivationUnsupported.
func SpacingFromTags(tags map[string]any) ([]float64, error) {
	if tags == nil {
		return nil, nil
	}
	raw, ok := tags["PixelSpacing"]
	if !ok {
		return nil, nil
	}
	modalityValue, ok := tags["Modality"]
	if !ok {
		return nil, nil
	}
	modality, _ := modalityValue.(string)

	switch strings.ToLower(strings.TrimSpace(modality)) {
	case "cr", "dx":
		spacing, err := toFloats(raw)
		if err != nil {
			return nil, faults.Wrap(faults.ErrInvalidTags, "series", "pixel spacing", "", err)
		}
		return spacing, nil
	default:
		return nil, faults.Wrap(faults.ErrSpacingDerivationUnsupported, "series", "spacing from tags", fmt.Sprintf("modality %q", modality), nil)
	}
}

func toFloats(v any) ([]float64, error) {
	switch t := v.(type) {
	case []any:
		out := make([]float64, 0, len(t))
		for _, item := range t {
			f, err := toFloat(item)
			if err != nil {
				return nil, err
			}
			out = append(out, f)
		}
		return out, nil
	default:
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		return []float64{f}, nil
	}
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case json.Number:
		return t.Float64()
	case string:
		return json.Number(strings.TrimSpace(t)).Float64()
	default:
		return 0, fmt.Errorf("spacing value %v (%T) is not numeric", v, v)
	}
}
