package ndarray

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// Array is a dense row-major n-dimensional array.
type Array struct {
	dtype DType
	shape []int
	data  []float64
}

// ErrShapeMismatch reports a data length that does not fit the requested shape.
var ErrShapeMismatch = errors.New("data length does not match shape")

// New wraps data (row-major) in an Array. The slice is owned by the Array afterwards.
func New(dtype DType, shape []int, data []float64) (*Array, error) {
	if dtype.Size() == 0 {
		return nil, fmt.Errorf("new array: invalid dtype %s", dtype)
	}
	n, err := volume(shape)
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, fmt.Errorf("%w: shape %v needs %d values, got %d", ErrShapeMismatch, shape, n, len(data))
	}
	return &Array{dtype: dtype, shape: slices.Clone(shape), data: data}, nil
}

// Zeros allocates a zero-filled array.
func Zeros(dtype DType, shape ...int) *Array {
	n, err := volume(shape)
	if err != nil {
		panic(err)
	}
	return &Array{dtype: dtype, shape: slices.Clone(shape), data: make([]float64, n)}
}

func volume(shape []int) (int, error) {
	n := 1
	for _, dim := range shape {
		if dim < 0 {
			return 0, fmt.Errorf("negative dimension in shape %v", shape)
		}
		n *= dim
	}
	return n, nil
}

// DType returns the element type.
func (a *Array) DType() DType { return a.dtype }

// Shape returns a copy of the dimensions.
func (a *Array) Shape() []int { return slices.Clone(a.shape) }

// NDim returns the number of axes.
func (a *Array) NDim() int { return len(a.shape) }

// Len returns the number of elements.
func (a *Array) Len() int { return len(a.data) }

// Data exposes the row-major backing values. Callers must not grow it.
func (a *Array) Data() []float64 { return a.data }

func (a *Array) offset(idx []int) int {
	if len(idx) != len(a.shape) {
		panic(fmt.Sprintf("ndarray: %d indices for %d axes", len(idx), len(a.shape)))
	}
	off := 0
	for axis, i := range idx {
		if i < 0 || i >= a.shape[axis] {
			panic(fmt.Sprintf("ndarray: index %d out of range for axis %d of size %d", i, axis, a.shape[axis]))
		}
		off = off*a.shape[axis] + i
	}
	return off
}

// At returns the element at idx.
func (a *Array) At(idx ...int) float64 { return a.data[a.offset(idx)] }

// Set stores v at idx without casting.
func (a *Array) Set(v float64, idx ...int) { a.data[a.offset(idx)] = v }

// AsType returns a copy cast to dtype.
func (a *Array) AsType(dtype DType) *Array {
	out := make([]float64, len(a.data))
	for i, v := range a.data {
		out[i] = dtype.Convert(v)
	}
	return &Array{dtype: dtype, shape: slices.Clone(a.shape), data: out}
}

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	return &Array{dtype: a.dtype, shape: slices.Clone(a.shape), data: slices.Clone(a.data)}
}

// Equal reports whether a and b share dtype, shape and values. NaNs compare equal
// to each other so cloned arrays are always Equal.
func (a *Array) Equal(b *Array) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.dtype != b.dtype || !slices.Equal(a.shape, b.shape) {
		return false
	}
	for i, v := range a.data {
		w := b.data[i]
		if v != w && !(math.IsNaN(v) && math.IsNaN(w)) {
			return false
		}
	}
	return true
}

func (a *Array) String() string {
	return fmt.Sprintf("ndarray(%s, shape=%v)", a.dtype, a.shape)
}
