package imageio

import (
	"image"
	"image/png"
	"io"

	"bimcvprep/internal/faults"
	"bimcvprep/internal/ndarray"
)

// DecodePNG reads a PNG into a row-major array. Grayscale images become
// (height, width) arrays of uint8 or uint16; colour images become
// (height, width, channels) with three channels when fully opaque and four
// otherwise.
func DecodePNG(r io.Reader) (*ndarray.Array, error) {
	img, err := png.Decode(r)
	if err != nil {
		return nil, faults.Wrap(faults.ErrUnsupportedFormat, "imageio", "decode png", "", err)
	}
	bounds := img.Bounds()
	h, w := bounds.Dy(), bounds.Dx()

	switch src := img.(type) {
	case *image.Gray:
		out := ndarray.Zeros(ndarray.Uint8, h, w)
		data := out.Data()
		for y := 0; y < h; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+w]
			for x, v := range row {
				data[y*w+x] = float64(v)
			}
		}
		return out, nil
	case *image.Gray16:
		out := ndarray.Zeros(ndarray.Uint16, h, w)
		data := out.Data()
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				data[y*w+x] = float64(src.Gray16At(bounds.Min.X+x, bounds.Min.Y+y).Y)
			}
		}
		return out, nil
	}

	return decodeColor(img, h, w)
}

func decodeColor(img image.Image, h, w int) (*ndarray.Array, error) {
	bounds := img.Bounds()
	wide := false
	switch img.(type) {
	case *image.RGBA64, *image.NRGBA64:
		wide = true
	}

	opaque := true
	if o, ok := img.(interface{ Opaque() bool }); ok {
		opaque = o.Opaque()
	}
	channels := 4
	if opaque {
		channels = 3
	}

	dtype := ndarray.Uint8
	shift := uint32(8)
	if wide {
		dtype = ndarray.Uint16
		shift = 0
	}
	out := ndarray.Zeros(dtype, h, w, channels)
	data := out.Data()
	i := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := toNRGBA64(img, bounds.Min.X+x, bounds.Min.Y+y)
			data[i] = float64(uint32(c[0]) >> shift)
			data[i+1] = float64(uint32(c[1]) >> shift)
			data[i+2] = float64(uint32(c[2]) >> shift)
			if channels == 4 {
				data[i+3] = float64(uint32(c[3]) >> shift)
			}
			i += channels
		}
	}
	return out, nil
}

// toNRGBA64 returns non-premultiplied 16-bit channels.
func toNRGBA64(img image.Image, x, y int) [4]uint16 {
	r, g, b, a := img.At(x, y).RGBA()
	if a == 0 {
		return [4]uint16{}
	}
	if a != 0xffff {
		r = r * 0xffff / a
		g = g * 0xffff / a
		b = b * 0xffff / a
	}
	return [4]uint16{uint16(r), uint16(g), uint16(b), uint16(a)}
}

// IsColor reports whether a decoded PNG still carries a channel axis.
func IsColor(a *ndarray.Array) bool {
	return a != nil && a.NDim() == 3 && (a.Shape()[2] == 3 || a.Shape()[2] == 4)
}
