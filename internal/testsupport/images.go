package testsupport

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/klauspost/compress/gzip"

	"bimcvprep/internal/ndarray"
)

// NIfTI describes a single-file NIfTI-1 fixture. Values are row-major over
// Shape, the same layout the decoder returns.
type NIfTI struct {
	Shape     []int
	Spacing   []float64
	DType     ndarray.DType
	Values    []float64
	Slope     float64
	Inter     float64
	BigEndian bool
	Gzip      bool
}

var niftiCodes = map[ndarray.DType]int16{
	ndarray.Uint8:   2,
	ndarray.Int16:   4,
	ndarray.Int32:   8,
	ndarray.Float32: 16,
	ndarray.Float64: 64,
	ndarray.Int8:    256,
	ndarray.Uint16:  512,
}

// Encode renders the fixture.
func (n NIfTI) Encode(t testing.TB) []byte {
	t.Helper()

	code, ok := niftiCodes[n.DType]
	if !ok {
		t.Fatalf("nifti fixture: unsupported dtype %s", n.DType)
	}
	var order binary.ByteOrder = binary.LittleEndian
	if n.BigEndian {
		order = binary.BigEndian
	}

	hdr := make([]byte, 352)
	order.PutUint32(hdr[0:4], 348)
	order.PutUint16(hdr[40:42], uint16(len(n.Shape)))
	for i, d := range n.Shape {
		order.PutUint16(hdr[42+2*i:44+2*i], uint16(d))
	}
	order.PutUint16(hdr[70:72], uint16(code))
	order.PutUint16(hdr[72:74], uint16(n.DType.Size()*8))
	order.PutUint32(hdr[76:80], math.Float32bits(1))
	for i, s := range n.Spacing {
		order.PutUint32(hdr[80+4*i:84+4*i], math.Float32bits(float32(s)))
	}
	order.PutUint32(hdr[108:112], math.Float32bits(352))
	order.PutUint32(hdr[112:116], math.Float32bits(float32(n.Slope)))
	order.PutUint32(hdr[116:120], math.Float32bits(float32(n.Inter)))
	copy(hdr[344:348], "n+1\x00")

	var buf bytes.Buffer
	buf.Write(hdr)
	width := n.DType.Size()
	sample := make([]byte, width)
	for _, v := range rowMajorToFortran(n.Values, n.Shape) {
		switch n.DType {
		case ndarray.Uint8, ndarray.Int8:
			sample[0] = byte(int64(v))
		case ndarray.Int16, ndarray.Uint16:
			order.PutUint16(sample, uint16(int64(v)))
		case ndarray.Int32:
			order.PutUint32(sample, uint32(int64(v)))
		case ndarray.Float32:
			order.PutUint32(sample, math.Float32bits(float32(v)))
		case ndarray.Float64:
			order.PutUint64(sample, math.Float64bits(v))
		}
		buf.Write(sample)
	}

	if !n.Gzip {
		return buf.Bytes()
	}
	var out bytes.Buffer
	zw := gzip.NewWriter(&out)
	if _, err := zw.Write(buf.Bytes()); err != nil {
		t.Fatalf("gzip nifti fixture: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip nifti fixture: %v", err)
	}
	return out.Bytes()
}

func rowMajorToFortran(values []float64, shape []int) []float64 {
	out := make([]float64, len(values))
	idx := make([]int, len(shape))
	for k := range out {
		off := 0
		for axis := range shape {
			off = off*shape[axis] + idx[axis]
		}
		out[k] = values[off]
		for axis := range shape {
			idx[axis]++
			if idx[axis] < shape[axis] {
				break
			}
			idx[axis] = 0
		}
	}
	return out
}

// GrayPNG encodes an 8-bit grayscale image of the given size.
func GrayPNG(t testing.TB, width, height int, pix []uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, width, height))
	copy(img.Pix, pix)
	return encodePNG(t, img)
}

// Gray16PNG encodes a 16-bit grayscale image.
func Gray16PNG(t testing.TB, width, height int, pix []uint16) []byte {
	t.Helper()
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for i, v := range pix {
		img.SetGray16(i%width, i/width, color.Gray16{Y: v})
	}
	return encodePNG(t, img)
}

// RGBPNG encodes an opaque colour image filled with c.
func RGBPNG(t testing.TB, width, height int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return encodePNG(t, img)
}

func encodePNG(t testing.TB, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png fixture: %v", err)
	}
	return buf.Bytes()
}
