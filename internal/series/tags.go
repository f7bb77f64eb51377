package series

import (
	"fmt"

	"bimcvprep/internal/dicomtags"
	"bimcvprep/internal/faults"
)

const (
	keyValue = "Value"
	keyVR    = "vr"
)

// CollapseTags flattens a DICOM JSON object ({"00100010": {"vr": "PN",
// "Value": [...]}}) into a keyword mapping. Codes the resolver does not know
// keep their raw form. The result is nil or a mapping; any other top-level
// shape is ErrInvalidTags.
func CollapseTags(raw any, resolver dicomtags.Resolver) (map[string]any, error) {
	if raw == nil {
		return nil, nil
	}
	collapsed, err := collapse(raw, resolver)
	if err != nil {
		return nil, err
	}
	switch v := collapsed.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	default:
		return nil, faults.Wrap(faults.ErrInvalidTags, "series", "collapse tags", fmt.Sprintf("top level is %T", collapsed), nil)
	}
}

func collapse(node any, resolver dicomtags.Resolver) (any, error) {
	obj, ok := node.(map[string]any)
	if !ok {
		return node, nil
	}

	if len(obj) == 1 {
		if _, ok := obj[keyVR]; ok {
			return nil, nil
		}
	}

	if len(obj) == 2 {
		value, hasValue := obj[keyValue]
		_, hasVR := obj[keyVR]
		if hasValue && hasVR {
			items, ok := value.([]any)
			if !ok {
				return nil, faults.Wrap(faults.ErrInvalidTags, "series", "collapse tags", fmt.Sprintf("Value is %T, want list", value), nil)
			}
			out := make([]any, 0, len(items))
			for _, item := range items {
				c, err := collapse(item, resolver)
				if err != nil {
					return nil, err
				}
				out = append(out, c)
			}
			switch len(out) {
			case 0:
				return nil, nil
			case 1:
				return out[0], nil
			default:
				return out, nil
			}
		}
	}

	out := make(map[string]any, len(obj))
	for key, value := range obj {
		c, err := collapse(value, resolver)
		if err != nil {
			return nil, err
		}
		out[resolveKey(key, resolver)] = c
	}
	return out, nil
}

func resolveKey(key string, resolver dicomtags.Resolver) string {
	if resolver == nil || !dicomtags.IsTagCode(key) {
		return key
	}
	if keyword, ok := resolver.Keyword(key); ok {
		return keyword
	}
	return key
}
