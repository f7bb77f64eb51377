package ndarray

import (
	"fmt"
	"math"

	"github.com/x448/float16"
)

// DType identifies the element type an Array represents.
type DType uint8

const (
	Invalid DType = iota
	Int8
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float16
	Float32
	Float64
)

var dtypeNames = map[DType]string{
	Int8:    "int8",
	Uint8:   "uint8",
	Int16:   "int16",
	Uint16:  "uint16",
	Int32:   "int32",
	Uint32:  "uint32",
	Int64:   "int64",
	Uint64:  "uint64",
	Float16: "float16",
	Float32: "float32",
	Float64: "float64",
}

func (d DType) String() string {
	if name, ok := dtypeNames[d]; ok {
		return name
	}
	return fmt.Sprintf("dtype(%d)", uint8(d))
}

// ParseDType resolves a NumPy-style type name such as "uint16".
func ParseDType(name string) (DType, error) {
	for dt, n := range dtypeNames {
		if n == name {
			return dt, nil
		}
	}
	return Invalid, fmt.Errorf("unknown dtype %q", name)
}

// Size returns the element width in bytes.
func (d DType) Size() int {
	switch d {
	case Int8, Uint8:
		return 1
	case Int16, Uint16, Float16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	default:
		return 0
	}
}

// IsFloat reports whether d is a floating point type.
func (d DType) IsFloat() bool {
	return d == Float16 || d == Float32 || d == Float64
}

// Descr returns the little-endian NumPy array-protocol type string, e.g. "<i2".
func (d DType) Descr() string {
	switch d {
	case Int8:
		return "|i1"
	case Uint8:
		return "|u1"
	case Int16:
		return "<i2"
	case Uint16:
		return "<u2"
	case Int32:
		return "<i4"
	case Uint32:
		return "<u4"
	case Int64:
		return "<i8"
	case Uint64:
		return "<u8"
	case Float16:
		return "<f2"
	case Float32:
		return "<f4"
	case Float64:
		return "<f8"
	default:
		return ""
	}
}

func (d DType) intRange() (lo, hi float64, ok bool) {
	switch d {
	case Int8:
		return math.MinInt8, math.MaxInt8, true
	case Uint8:
		return 0, math.MaxUint8, true
	case Int16:
		return math.MinInt16, math.MaxInt16, true
	case Uint16:
		return 0, math.MaxUint16, true
	case Int32:
		return math.MinInt32, math.MaxInt32, true
	case Uint32:
		return 0, math.MaxUint32, true
	case Int64:
		return math.MinInt64, math.MaxInt64, true
	case Uint64:
		return 0, math.MaxUint64, true
	default:
		return 0, 0, false
	}
}

// Holds reports whether v survives a cast to d unchanged. NaN never does,
// mirroring element-wise equality after the cast.
func (d DType) Holds(v float64) bool {
	if math.IsNaN(v) {
		return false
	}
	switch d {
	case Float64:
		return true
	case Float32:
		return float64(float32(v)) == v
	case Float16:
		if float64(float32(v)) != v {
			return false
		}
		return float64(float16.Fromfloat32(float32(v)).Float32()) == v
	}
	lo, hi, ok := d.intRange()
	if !ok {
		return false
	}
	return v == math.Trunc(v) && v >= lo && v <= hi
}

// Convert casts v to d with C-style semantics: floats are rounded to the
// target precision, integers are truncated toward zero and wrapped.
func (d DType) Convert(v float64) float64 {
	switch d {
	case Float64:
		return v
	case Float32:
		return float64(float32(v))
	case Float16:
		return float64(float16.Fromfloat32(float32(v)).Float32())
	case Int8:
		return float64(int8(wrapInt(v)))
	case Uint8:
		return float64(uint8(wrapInt(v)))
	case Int16:
		return float64(int16(wrapInt(v)))
	case Uint16:
		return float64(uint16(wrapInt(v)))
	case Int32:
		return float64(int32(wrapInt(v)))
	case Uint32:
		return float64(uint32(wrapInt(v)))
	case Int64:
		return float64(wrapInt(v))
	case Uint64:
		return float64(uint64(wrapInt(v)))
	default:
		return v
	}
}

func wrapInt(v float64) int64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	t := math.Trunc(v)
	if t >= -(1<<63) && t < 1<<63 {
		return int64(t)
	}
	m := math.Mod(t, 1<<64)
	if m < 0 {
		m += 1 << 64
	}
	if m >= 1<<64 {
		return 0
	}
	return int64(uint64(m))
}
