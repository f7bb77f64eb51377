package imageio

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/gzip"

	"bimcvprep/internal/faults"
	"bimcvprep/internal/ndarray"
)

const (
	niftiHeaderSize = 348
	niftiMinOffset  = 352
)

// NIfTI-1 datatype codes.
const (
	niftiUint8   = 2
	niftiInt16   = 4
	niftiInt32   = 8
	niftiFloat32 = 16
	niftiFloat64 = 64
	niftiInt8    = 256
	niftiUint16  = 512
	niftiUint32  = 768
	niftiInt64   = 1024
	niftiUint64  = 1280
)

// NIfTIHeader holds the parts of a NIfTI-1 header needed to decode the
// voxel block and report voxel size.
type NIfTIHeader struct {
	ByteOrder binary.ByteOrder
	Dims      []int
	PixDim    []float64
	DataType  int16
	BitPix    int16
	VoxOffset int64
	Slope     float64
	Inter     float64
	Magic     string
}

// Spacing returns pixdim[1..ndim], or nil when the header does not describe
// a usable voxel size.
func (h *NIfTIHeader) Spacing() []float64 {
	if h == nil || len(h.Dims) == 0 || len(h.PixDim) < len(h.Dims) {
		return nil
	}
	out := make([]float64, len(h.Dims))
	for i := range h.Dims {
		v := h.PixDim[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		out[i] = v
	}
	return out
}

func (h *NIfTIHeader) scaled() bool {
	if h.Slope == 0 || math.IsNaN(h.Slope) || math.IsInf(h.Slope, 0) {
		return false
	}
	return h.Slope != 1 || h.Inter != 0
}

// DecodeNIfTI reads a single-file NIfTI-1 image, gzip-compressed or plain.
// The returned array has shape dim[1..ndim] with the first axis being x, the
// same order nibabel reports. Non-trivial scl_slope/scl_inter are applied and
// promote the array to floating point.
func DecodeNIfTI(r io.Reader) (*ndarray.Array, *NIfTIHeader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil {
		return nil, nil, faults.Wrap(faults.ErrUnsupportedFormat, "imageio", "read nifti", "header too short", err)
	}
	var src io.Reader = br
	if magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, nil, faults.Wrap(faults.ErrUnsupportedFormat, "imageio", "read nifti", "gzip stream", err)
		}
		defer zr.Close()
		src = zr
	}

	raw := make([]byte, niftiHeaderSize)
	if _, err := io.ReadFull(src, raw); err != nil {
		return nil, nil, faults.Wrap(faults.ErrUnsupportedFormat, "imageio", "read nifti", "header too short", err)
	}
	hdr, err := parseNIfTIHeader(raw)
	if err != nil {
		return nil, nil, err
	}

	if skip := hdr.VoxOffset - niftiHeaderSize; skip > 0 {
		if _, err := io.CopyN(io.Discard, src, skip); err != nil {
			return nil, nil, faults.Wrap(faults.ErrUnsupportedFormat, "imageio", "read nifti", "extension block", err)
		}
	}

	dtype, width, err := niftiDType(hdr.DataType)
	if err != nil {
		return nil, nil, err
	}
	count, err := voxelCount(hdr.Dims, width)
	if err != nil {
		return nil, nil, err
	}
	// Read through a limit so a header promising more voxels than the file
	// holds only costs what is actually there.
	need := int64(count) * int64(width)
	block, err := io.ReadAll(io.LimitReader(src, need))
	if err != nil {
		return nil, nil, faults.Wrap(faults.ErrUnsupportedFormat, "imageio", "read nifti", "voxel block", err)
	}
	if int64(len(block)) != need {
		return nil, nil, faults.Wrap(faults.ErrUnsupportedFormat, "imageio", "read nifti",
			fmt.Sprintf("voxel block truncated: %d of %d bytes", len(block), need), io.ErrUnexpectedEOF)
	}

	data := decodeRowMajor(block, dtype, hdr.ByteOrder, hdr.Dims)

	if hdr.scaled() {
		dtype = scaledDType(dtype)
		for i, v := range data {
			data[i] = dtype.Convert(v*hdr.Slope + hdr.Inter)
		}
	}

	arr, err := ndarray.New(dtype, hdr.Dims, data)
	if err != nil {
		return nil, nil, fmt.Errorf("read nifti: %w", err)
	}
	return arr, hdr, nil
}

func parseNIfTIHeader(raw []byte) (*NIfTIHeader, error) {
	var order binary.ByteOrder
	switch {
	case binary.LittleEndian.Uint32(raw[0:4]) == niftiHeaderSize:
		order = binary.LittleEndian
	case binary.BigEndian.Uint32(raw[0:4]) == niftiHeaderSize:
		order = binary.BigEndian
	default:
		return nil, faults.Wrap(faults.ErrUnsupportedFormat, "imageio", "read nifti", "not a NIfTI-1 header", nil)
	}

	magic := string(raw[344:347])
	if magic != "n+1" {
		return nil, faults.Wrap(faults.ErrUnsupportedFormat, "imageio", "read nifti", fmt.Sprintf("unsupported magic %q", magic), nil)
	}

	ndim := int(int16(order.Uint16(raw[40:42])))
	if ndim < 1 || ndim > 7 {
		return nil, faults.Wrap(faults.ErrUnsupportedFormat, "imageio", "read nifti", fmt.Sprintf("dimension count %d", ndim), nil)
	}
	dims := make([]int, ndim)
	for i := range dims {
		d := int(int16(order.Uint16(raw[42+2*i : 44+2*i])))
		if d < 1 {
			return nil, faults.Wrap(faults.ErrUnsupportedFormat, "imageio", "read nifti", fmt.Sprintf("dim[%d]=%d", i+1, d), nil)
		}
		dims[i] = d
	}

	pixdim := make([]float64, 7)
	for i := range pixdim {
		off := 80 + 4*i
		pixdim[i] = float64(math.Float32frombits(order.Uint32(raw[off : off+4])))
	}

	voxOffset := float64(math.Float32frombits(order.Uint32(raw[108:112])))
	offset := int64(voxOffset)
	if offset < niftiMinOffset {
		offset = niftiMinOffset
	}

	return &NIfTIHeader{
		ByteOrder: order,
		Dims:      dims,
		PixDim:    pixdim,
		DataType:  int16(order.Uint16(raw[70:72])),
		BitPix:    int16(order.Uint16(raw[72:74])),
		VoxOffset: offset,
		Slope:     float64(math.Float32frombits(order.Uint32(raw[112:116]))),
		Inter:     float64(math.Float32frombits(order.Uint32(raw[116:120]))),
		Magic:     magic,
	}, nil
}

func niftiDType(code int16) (ndarray.DType, int, error) {
	var dt ndarray.DType
	switch code {
	case niftiUint8:
		dt = ndarray.Uint8
	case niftiInt8:
		dt = ndarray.Int8
	case niftiInt16:
		dt = ndarray.Int16
	case niftiUint16:
		dt = ndarray.Uint16
	case niftiInt32:
		dt = ndarray.Int32
	case niftiUint32:
		dt = ndarray.Uint32
	case niftiInt64:
		dt = ndarray.Int64
	case niftiUint64:
		dt = ndarray.Uint64
	case niftiFloat32:
		dt = ndarray.Float32
	case niftiFloat64:
		dt = ndarray.Float64
	default:
		return ndarray.Invalid, 0, faults.Wrap(faults.ErrUnsupportedFormat, "imageio", "read nifti", fmt.Sprintf("datatype %d", code), nil)
	}
	return dt, dt.Size(), nil
}

// scaledDType follows numpy promotion of the raw type with a float32 slope.
func scaledDType(raw ndarray.DType) ndarray.DType {
	switch raw {
	case ndarray.Int8, ndarray.Uint8, ndarray.Int16, ndarray.Uint16, ndarray.Float32:
		return ndarray.Float32
	default:
		return ndarray.Float64
	}
}

// maxVoxels bounds the element count of one image. Every voxel costs eight
// bytes once decoded.
const maxVoxels = 1 << 30

func voxelCount(dims []int, width int) (int, error) {
	count := 1
	for _, d := range dims {
		if d > maxVoxels/count {
			return 0, faults.Wrap(faults.ErrUnsupportedFormat, "imageio", "read nifti",
				fmt.Sprintf("voxel count of %v exceeds %d", dims, maxVoxels), nil)
		}
		count *= d
	}
	if width <= 0 {
		return 0, faults.Wrap(faults.ErrUnsupportedFormat, "imageio", "read nifti", "zero sample width", nil)
	}
	return count, nil
}

func decodeSample(b []byte, dt ndarray.DType, order binary.ByteOrder) float64 {
	switch dt {
	case ndarray.Uint8:
		return float64(b[0])
	case ndarray.Int8:
		return float64(int8(b[0]))
	case ndarray.Int16:
		return float64(int16(order.Uint16(b)))
	case ndarray.Uint16:
		return float64(order.Uint16(b))
	case ndarray.Int32:
		return float64(int32(order.Uint32(b)))
	case ndarray.Uint32:
		return float64(order.Uint32(b))
	case ndarray.Int64:
		return float64(int64(order.Uint64(b)))
	case ndarray.Uint64:
		return float64(order.Uint64(b))
	case ndarray.Float32:
		return float64(math.Float32frombits(order.Uint32(b)))
	case ndarray.Float64:
		return math.Float64frombits(order.Uint64(b))
	}
	return 0
}

// decodeRowMajor decodes column-major voxel samples straight into a
// row-major slice, so index (i0, i1, ...) addresses the same voxel in an
// array of shape dims.
func decodeRowMajor(block []byte, dt ndarray.DType, order binary.ByteOrder, dims []int) []float64 {
	width := dt.Size()
	count := len(block) / width
	out := make([]float64, count)
	strides := make([]int, len(dims))
	step := 1
	for axis := len(dims) - 1; axis >= 0; axis-- {
		strides[axis] = step
		step *= dims[axis]
	}
	idx := make([]int, len(dims))
	pos := 0
	for i := 0; i < count; i++ {
		out[pos] = decodeSample(block[i*width:(i+1)*width], dt, order)
		for axis := 0; axis < len(dims); axis++ {
			idx[axis]++
			pos += strides[axis]
			if idx[axis] < dims[axis] {
				break
			}
			pos -= idx[axis] * strides[axis]
			idx[axis] = 0
		}
	}
	return out
}
