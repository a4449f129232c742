package value

import (
	"image"
	"image/color"
	"strconv"

	"github.com/chewxy/math32"
)

// FallbackDim is the square edge used for buffer-producing coercions when
// neither sibling inputs nor the canvas yield dimensions.
const FallbackDim = 256

// Dims carries the inferred target dimensions for buffer-producing
// coercions. The zero value means "nothing inferred".
type Dims struct {
	W, H int
}

// Valid reports whether both dimensions are positive.
func (d Dims) Valid() bool { return d.W > 0 && d.H > 0 }

// CanCoerce reports whether a declared-type pairing has a defined
// coercion. Identity pairings and wildcard pairings are not coercions and
// return false.
func CanCoerce(from, to DataType) bool {
	if from == to || from == TypeAny || to == TypeAny {
		return false
	}
	switch from {
	case TypeNumber:
		switch to {
		case TypeImage, TypeMask, TypeBool, TypeString:
			return true
		}
	case TypeMask:
		return to == TypeImage
	case TypeImage:
		return to == TypeMask
	case TypeBool:
		return to == TypeNumber
	case TypeColor:
		return to == TypeImage
	}
	return false
}

// Coerce converts v from the source port's declared type to the target
// port's declared type. Callers apply it only when the types differ and
// neither is the wildcard. An unsupported pairing returns the value
// unchanged: mismatches are flagged at validation time, and execution is
// best-effort.
func Coerce(v Value, from, to DataType, hint Dims) Value {
	if !CanCoerce(from, to) {
		return v
	}
	w, h := hint.W, hint.H
	if !hint.Valid() {
		w, h = FallbackDim, FallbackDim
	}

	switch from {
	case TypeNumber:
		n, ok := v.Number()
		if !ok {
			return v
		}
		switch to {
		case TypeImage:
			return ImageValue(NewImage(fillGray(w, h, clampByte(n))))
		case TypeMask:
			return MaskValue(NewMask(fillBytes(w, h, clampByte(n)), w, h))
		case TypeBool:
			return BoolValue(n != 0)
		case TypeString:
			return StringValue(strconv.FormatFloat(n, 'g', -1, 64))
		}
	case TypeMask:
		m, ok := v.Mask()
		if !ok {
			return v
		}
		m = m.Materialize()
		img := image.NewRGBA(image.Rect(0, 0, m.W, m.H))
		for i, g := range m.Data {
			img.Pix[i*4+0] = g
			img.Pix[i*4+1] = g
			img.Pix[i*4+2] = g
			img.Pix[i*4+3] = 0xff
		}
		return ImageValue(NewImage(img))
	case TypeImage:
		img, ok := v.Image()
		if !ok {
			return v
		}
		img = img.Materialize(color.RGBA{})
		data := make([]uint8, img.W*img.H)
		for i := range data {
			data[i] = Luma(img.Pix.Pix[i*4], img.Pix.Pix[i*4+1], img.Pix.Pix[i*4+2])
		}
		return MaskValue(NewMask(data, img.W, img.H))
	case TypeBool:
		b, ok := v.Bool()
		if !ok {
			return v
		}
		if b {
			return NumberValue(1)
		}
		return NumberValue(0)
	case TypeColor:
		c, ok := v.Color()
		if !ok {
			return v
		}
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		for i := 0; i < len(img.Pix); i += 4 {
			img.Pix[i+0] = c.R
			img.Pix[i+1] = c.G
			img.Pix[i+2] = c.B
			img.Pix[i+3] = c.A
		}
		return ImageValue(NewImage(img))
	}
	return v
}

// Luma computes Rec.601 luminance of an RGB triple.
func Luma(r, g, b uint8) uint8 {
	return uint8(math32.Round(0.299*float32(r) + 0.587*float32(g) + 0.114*float32(b)))
}

func clampByte(n float64) uint8 {
	switch {
	case n <= 0:
		return 0
	case n >= 255:
		return 255
	default:
		return uint8(n + 0.5)
	}
}

func fillGray(w, h int, g uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = g
		img.Pix[i+1] = g
		img.Pix[i+2] = g
		img.Pix[i+3] = 0xff
	}
	return img
}

func fillBytes(w, h int, v uint8) []uint8 {
	data := make([]uint8, w*h)
	for i := range data {
		data[i] = v
	}
	return data
}
