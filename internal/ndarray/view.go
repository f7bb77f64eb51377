package ndarray

import (
	"fmt"
	"slices"
)

// View is a strided window over an Array's values. Flips, axis swaps and
// slices only rewrite the stride bookkeeping; Materialize copies the result.
type View struct {
	dtype   DType
	data    []float64
	shape   []int
	strides []int
	offset  int
}

// View returns a view covering the whole array.
func (a *Array) View() View {
	strides := make([]int, len(a.shape))
	step := 1
	for axis := len(a.shape) - 1; axis >= 0; axis-- {
		strides[axis] = step
		step *= a.shape[axis]
	}
	return View{dtype: a.dtype, data: a.data, shape: slices.Clone(a.shape), strides: strides}
}

// Shape returns a copy of the view's dimensions.
func (v View) Shape() []int { return slices.Clone(v.shape) }

// NDim returns the number of axes.
func (v View) NDim() int { return len(v.shape) }

// Dim returns the size of one axis.
func (v View) Dim(axis int) int { return v.shape[axis] }

// Empty reports whether any axis has zero length.
func (v View) Empty() bool {
	return slices.Contains(v.shape, 0)
}

func (v View) clone() View {
	return View{
		dtype:   v.dtype,
		data:    v.data,
		shape:   slices.Clone(v.shape),
		strides: slices.Clone(v.strides),
		offset:  v.offset,
	}
}

func (v View) checkAxis(axis int) {
	if axis < 0 || axis >= len(v.shape) {
		panic(fmt.Sprintf("ndarray: axis %d out of range for %d axes", axis, len(v.shape)))
	}
}

// Flip reverses the order of elements along axis.
func (v View) Flip(axis int) View {
	v.checkAxis(axis)
	out := v.clone()
	if out.shape[axis] > 0 {
		out.offset += (out.shape[axis] - 1) * out.strides[axis]
	}
	out.strides[axis] = -out.strides[axis]
	return out
}

// SwapAxes interchanges two axes.
func (v View) SwapAxes(a, b int) View {
	v.checkAxis(a)
	v.checkAxis(b)
	out := v.clone()
	out.shape[a], out.shape[b] = out.shape[b], out.shape[a]
	out.strides[a], out.strides[b] = out.strides[b], out.strides[a]
	return out
}

// Rot90 rotates by 90 degrees in the plane of axes (a, b), turning from the
// first axis toward the second. It is a flip of b followed by swapping a and b.
func (v View) Rot90(a, b int) View {
	if a == b {
		panic("ndarray: rot90 axes must differ")
	}
	return v.Flip(b).SwapAxes(a, b)
}

// Slice keeps indices [lo, hi) along axis.
func (v View) Slice(axis, lo, hi int) View {
	v.checkAxis(axis)
	if lo < 0 || hi > v.shape[axis] || lo > hi {
		panic(fmt.Sprintf("ndarray: slice [%d:%d] out of range for axis %d of size %d", lo, hi, axis, v.shape[axis]))
	}
	out := v.clone()
	out.offset += lo * out.strides[axis]
	out.shape[axis] = hi - lo
	return out
}

// Index fixes axis at i and drops it, e.g. a face of a volume.
func (v View) Index(axis, i int) View {
	v.checkAxis(axis)
	if i < 0 || i >= v.shape[axis] {
		panic(fmt.Sprintf("ndarray: index %d out of range for axis %d of size %d", i, axis, v.shape[axis]))
	}
	out := v.clone()
	out.offset += i * out.strides[axis]
	out.shape = slices.Delete(out.shape, axis, axis+1)
	out.strides = slices.Delete(out.strides, axis, axis+1)
	return out
}

// Values copies the view's elements in row-major order.
func (v View) Values() []float64 {
	n := 1
	for _, dim := range v.shape {
		n *= dim
	}
	out := make([]float64, 0, n)
	if n == 0 {
		return out
	}
	if len(v.shape) == 0 {
		return append(out, v.data[v.offset])
	}
	idx := make([]int, len(v.shape))
	pos := v.offset
	last := len(v.shape) - 1
	for {
		out = append(out, v.data[pos])
		axis := last
		for axis >= 0 {
			idx[axis]++
			pos += v.strides[axis]
			if idx[axis] < v.shape[axis] {
				break
			}
			pos -= idx[axis] * v.strides[axis]
			idx[axis] = 0
			axis--
		}
		if axis < 0 {
			return out
		}
	}
}

// Materialize copies the view into a new contiguous Array.
func (v View) Materialize() *Array {
	return &Array{dtype: v.dtype, shape: slices.Clone(v.shape), data: v.Values()}
}
