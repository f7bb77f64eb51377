package geometry

import (
	"fmt"

	"bimcvprep/internal/ndarray"
)

// Variant is one of the fixed axis corrections applied to CT volumes.
type Variant uint8

const (
	Type0 Variant = iota
	Type1
	Type2
	Type3
	Type4
	Type5
)

var variantNames = [...]string{"type_0", "type_1", "type_2", "type_3", "type_4", "type_5"}

func (v Variant) String() string {
	if int(v) < len(variantNames) {
		return variantNames[v]
	}
	return fmt.Sprintf("Variant(%d)", uint8(v))
}

// ParseVariant resolves a table value such as "type_3".
func ParseVariant(name string) (Variant, error) {
	for i, n := range variantNames {
		if n == name {
			return Variant(i), nil
		}
	}
	return Type0, fmt.Errorf("unknown rotation variant %q", name)
}

// variantSpec is the image half (applied in order to a strided view) and the
// spacing half (spacing'[i] = spacing[perm[i]]) of one variant.
type variantSpec struct {
	image func(ndarray.View) ndarray.View
	perm  [3]int
}

var variants = [...]variantSpec{
	Type0: {
		image: func(v ndarray.View) ndarray.View { return v },
		perm:  [3]int{0, 1, 2},
	},
	Type1: {
		image: func(v ndarray.View) ndarray.View { return v.Rot90(1, 2).Rot90(0, 1).Flip(2) },
		perm:  [3]int{2, 0, 1},
	},
	Type2: {
		image: func(v ndarray.View) ndarray.View { return v.Rot90(1, 2).Flip(2) },
		perm:  [3]int{0, 2, 1},
	},
	Type3: {
		image: func(v ndarray.View) ndarray.View { return v.Rot90(0, 1).Flip(2) },
		perm:  [3]int{1, 0, 2},
	},
	Type4: {
		image: func(v ndarray.View) ndarray.View { return v.Rot90(1, 2).Flip(1).Flip(2) },
		perm:  [3]int{0, 2, 1},
	},
	Type5: {
		image: func(v ndarray.View) ndarray.View { return v.Rot90(0, 1) },
		perm:  [3]int{1, 0, 2},
	},
}

// Apply transforms a 3-D view and its spacing. A nil spacing stays nil.
func (v Variant) Apply(view ndarray.View, spacing []float64) (ndarray.View, []float64, error) {
	if int(v) >= len(variants) {
		return view, spacing, fmt.Errorf("apply %s: unknown variant", v)
	}
	if view.NDim() != 3 {
		return view, spacing, fmt.Errorf("apply %s: %w", v, ErrNotVolume)
	}
	def := variants[v]
	if spacing == nil {
		return def.image(view), nil, nil
	}
	if len(spacing) != 3 {
		return view, spacing, fmt.Errorf("apply %s: spacing has %d components, want 3", v, len(spacing))
	}
	out := make([]float64, 3)
	for i, src := range def.perm {
		out[i] = spacing[src]
	}
	return def.image(view), out, nil
}
