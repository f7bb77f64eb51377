package layout

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/x448/float16"

	"bimcvprep/internal/ndarray"
)

var npyMagic = []byte("\x93NUMPY")

const npyAlign = 64

// npyHeader renders the version 1.0 header dictionary, padded with spaces and
// a trailing newline so the data starts on an aligned offset.
func npyHeader(a *ndarray.Array) ([]byte, error) {
	descr := a.DType().Descr()
	if descr == "" {
		return nil, fmt.Errorf("npy: no descriptor for dtype %s", a.DType())
	}
	dims := make([]string, 0, a.NDim())
	for _, d := range a.Shape() {
		dims = append(dims, strconv.Itoa(d))
	}
	shape := "(" + strings.Join(dims, ", ")
	if len(dims) == 1 {
		shape += ","
	}
	shape += ")"

	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': %s, }", descr, shape)
	prefix := len(npyMagic) + 2 + 2
	total := prefix + len(dict) + 1
	if pad := total % npyAlign; pad != 0 {
		dict += strings.Repeat(" ", npyAlign-pad)
	}
	dict += "\n"
	if len(dict) > math.MaxUint16 {
		return nil, fmt.Errorf("npy: header too long (%d bytes)", len(dict))
	}

	out := make([]byte, 0, prefix+len(dict))
	out = append(out, npyMagic...)
	out = append(out, 1, 0)
	out = binary.LittleEndian.AppendUint16(out, uint16(len(dict)))
	out = append(out, dict...)
	return out, nil
}

// WriteNPY encodes a as a little-endian, C-ordered .npy v1.0 stream.
func WriteNPY(w io.Writer, a *ndarray.Array) error {
	header, err := npyHeader(a)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(header); err != nil {
		return err
	}

	dt := a.DType()
	buf := make([]byte, 0, dt.Size())
	for _, v := range a.Data() {
		buf = appendElement(buf[:0], dt, v)
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func appendElement(b []byte, dt ndarray.DType, v float64) []byte {
	le := binary.LittleEndian
	switch dt {
	case ndarray.Int8:
		return append(b, byte(int8(v)))
	case ndarray.Uint8:
		return append(b, uint8(v))
	case ndarray.Int16:
		return le.AppendUint16(b, uint16(int16(v)))
	case ndarray.Uint16:
		return le.AppendUint16(b, uint16(v))
	case ndarray.Int32:
		return le.AppendUint32(b, uint32(int32(v)))
	case ndarray.Uint32:
		return le.AppendUint32(b, uint32(v))
	case ndarray.Int64:
		return le.AppendUint64(b, uint64(int64(v)))
	case ndarray.Uint64:
		return le.AppendUint64(b, uint64(v))
	case ndarray.Float16:
		return le.AppendUint16(b, float16.Fromfloat32(float32(v)).Bits())
	case ndarray.Float32:
		return le.AppendUint32(b, math.Float32bits(float32(v)))
	default:
		return le.AppendUint64(b, math.Float64bits(v))
	}
}

// ReadNPY decodes a stream written by WriteNPY.
func ReadNPY(r io.Reader) (*ndarray.Array, error) {
	br := bufio.NewReader(r)
	prefix := make([]byte, len(npyMagic)+4)
	if _, err := io.ReadFull(br, prefix); err != nil {
		return nil, fmt.Errorf("npy: read preamble: %w", err)
	}
	if string(prefix[:len(npyMagic)]) != string(npyMagic) {
		return nil, fmt.Errorf("npy: bad magic")
	}
	if prefix[6] != 1 {
		return nil, fmt.Errorf("npy: unsupported version %d.%d", prefix[6], prefix[7])
	}
	header := make([]byte, binary.LittleEndian.Uint16(prefix[8:]))
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, fmt.Errorf("npy: read header: %w", err)
	}
	dt, shape, err := parseNPYHeader(string(header))
	if err != nil {
		return nil, err
	}

	n := 1
	for _, d := range shape {
		n *= d
	}
	data := make([]float64, n)
	elem := make([]byte, dt.Size())
	for i := range data {
		if _, err := io.ReadFull(br, elem); err != nil {
			return nil, fmt.Errorf("npy: read element %d: %w", i, err)
		}
		data[i] = decodeElement(dt, elem)
	}
	return ndarray.New(dt, shape, data)
}

func parseNPYHeader(h string) (ndarray.DType, []int, error) {
	descr, ok := headerField(h, "'descr': '", "'")
	if !ok {
		return ndarray.Invalid, nil, fmt.Errorf("npy: header without descr")
	}
	var dt ndarray.DType
	for _, cand := range []ndarray.DType{
		ndarray.Int8, ndarray.Uint8, ndarray.Int16, ndarray.Uint16, ndarray.Int32, ndarray.Uint32,
		ndarray.Int64, ndarray.Uint64, ndarray.Float16, ndarray.Float32, ndarray.Float64,
	} {
		if cand.Descr() == descr {
			dt = cand
			break
		}
	}
	if dt == ndarray.Invalid {
		return ndarray.Invalid, nil, fmt.Errorf("npy: unsupported descr %q", descr)
	}
	if strings.Contains(h, "'fortran_order': True") {
		return ndarray.Invalid, nil, fmt.Errorf("npy: fortran order not supported")
	}
	rawShape, ok := headerField(h, "'shape': (", ")")
	if !ok {
		return ndarray.Invalid, nil, fmt.Errorf("npy: header without shape")
	}
	var shape []int
	for _, part := range strings.Split(rawShape, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := strconv.Atoi(part)
		if err != nil {
			return ndarray.Invalid, nil, fmt.Errorf("npy: bad dimension %q", part)
		}
		shape = append(shape, d)
	}
	return dt, shape, nil
}

func headerField(h, start, end string) (string, bool) {
	_, rest, ok := strings.Cut(h, start)
	if !ok {
		return "", false
	}
	value, _, ok := strings.Cut(rest, end)
	return value, ok
}

func decodeElement(dt ndarray.DType, b []byte) float64 {
	le := binary.LittleEndian
	switch dt {
	case ndarray.Int8:
		return float64(int8(b[0]))
	case ndarray.Uint8:
		return float64(b[0])
	case ndarray.Int16:
		return float64(int16(le.Uint16(b)))
	case ndarray.Uint16:
		return float64(le.Uint16(b))
	case ndarray.Int32:
		return float64(int32(le.Uint32(b)))
	case ndarray.Uint32:
		return float64(le.Uint32(b))
	case ndarray.Int64:
		return float64(int64(le.Uint64(b)))
	case ndarray.Uint64:
		return float64(le.Uint64(b))
	case ndarray.Float16:
		return float64(float16.Frombits(le.Uint16(b)).Float32())
	case ndarray.Float32:
		return float64(math.Float32frombits(le.Uint32(b)))
	default:
		return math.Float64frombits(le.Uint64(b))
	}
}
