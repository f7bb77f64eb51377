package geometry

import "bimcvprep/internal/ndarray"

// face is one outer slice: the min or max index along an axis.
type face struct {
	axis int
	max  bool
}

// faceOrder is the fixed priority in which faces are checked.
var faceOrder = [...]face{
	{axis: 0}, {axis: 0, max: true},
	{axis: 1}, {axis: 1, max: true},
	{axis: 2}, {axis: 2, max: true},
}

// TrimBorders drops degenerate border slices one at a time, always
// restarting from the first face, until no face is degenerate or an axis
// runs empty. A fully blank volume trims to an empty array.
func TrimBorders(a *ndarray.Array) *ndarray.Array {
	return trimView(a.View()).Materialize()
}

func trimView(v ndarray.View) ndarray.View {
	for !v.Empty() {
		trimmed := false
		for _, f := range faceOrder {
			n := v.Dim(f.axis)
			idx := 0
			if f.max {
				idx = n - 1
			}
			if !degenerate(v.Index(f.axis, idx)) {
				continue
			}
			if f.max {
				v = v.Slice(f.axis, 0, n-1)
			} else {
				v = v.Slice(f.axis, 1, n)
			}
			trimmed = true
			break
		}
		if !trimmed {
			break
		}
	}
	return v
}

func degenerate(f ndarray.View) bool {
	values := f.Values()
	return isBlank(values) || regularity(values, f.Dim(0), f.Dim(1)) > regularityThreshold
}
