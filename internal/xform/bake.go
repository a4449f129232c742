package xform

import (
	"image"
	"image/color"

	"github.com/chewxy/math32"
)

// Bake resamples src through m into a new buffer with src's dimensions.
// Inverse mapping with bilinear filtering: each destination pixel is
// sampled from the source at the inverse-transformed position, and
// samples falling outside the source take the fill color. The operation
// is one-way and lossy, which is why callers defer it as long as the
// downstream consumer tolerates a pending transform.
func Bake(src *image.RGBA, m Affine, fill color.RGBA) *image.RGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(image.Rect(0, 0, w, h))

	inv, err := m.Invert()
	if err != nil {
		// A singular transform collapses the image; everything lands on
		// the fill color.
		for i := 0; i < len(dst.Pix); i += 4 {
			dst.Pix[i+0] = fill.R
			dst.Pix[i+1] = fill.G
			dst.Pix[i+2] = fill.B
			dst.Pix[i+3] = fill.A
		}
		return dst
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx, sy := inv.Apply(float32(x), float32(y))
			r, g, bl, a := sampleBilinear(src, sx, sy, fill)
			i := dst.PixOffset(x, y)
			dst.Pix[i+0] = r
			dst.Pix[i+1] = g
			dst.Pix[i+2] = bl
			dst.Pix[i+3] = a
		}
	}
	return dst
}

// BakeMask is the single-channel variant of Bake. fill is the value used
// for out-of-bounds samples.
func BakeMask(src []uint8, w, h int, m Affine, fill uint8) []uint8 {
	dst := make([]uint8, w*h)

	inv, err := m.Invert()
	if err != nil {
		for i := range dst {
			dst[i] = fill
		}
		return dst
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sx, sy := inv.Apply(float32(x), float32(y))
			dst[y*w+x] = sampleMaskBilinear(src, w, h, sx, sy, fill)
		}
	}
	return dst
}

func sampleBilinear(src *image.RGBA, x, y float32, fill color.RGBA) (uint8, uint8, uint8, uint8) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()

	x0 := int(math32.Floor(x))
	y0 := int(math32.Floor(y))
	fx := x - float32(x0)
	fy := y - float32(y0)

	px := func(ix, iy int) (float32, float32, float32, float32) {
		if ix < 0 || iy < 0 || ix >= w || iy >= h {
			return float32(fill.R), float32(fill.G), float32(fill.B), float32(fill.A)
		}
		i := src.PixOffset(b.Min.X+ix, b.Min.Y+iy)
		return float32(src.Pix[i]), float32(src.Pix[i+1]), float32(src.Pix[i+2]), float32(src.Pix[i+3])
	}

	r00, g00, b00, a00 := px(x0, y0)
	r10, g10, b10, a10 := px(x0+1, y0)
	r01, g01, b01, a01 := px(x0, y0+1)
	r11, g11, b11, a11 := px(x0+1, y0+1)

	lerp2 := func(v00, v10, v01, v11 float32) uint8 {
		top := v00 + (v10-v00)*fx
		bot := v01 + (v11-v01)*fx
		return uint8(math32.Round(top + (bot-top)*fy))
	}

	return lerp2(r00, r10, r01, r11),
		lerp2(g00, g10, g01, g11),
		lerp2(b00, b10, b01, b11),
		lerp2(a00, a10, a01, a11)
}

func sampleMaskBilinear(src []uint8, w, h int, x, y float32, fill uint8) uint8 {
	x0 := int(math32.Floor(x))
	y0 := int(math32.Floor(y))
	fx := x - float32(x0)
	fy := y - float32(y0)

	px := func(ix, iy int) float32 {
		if ix < 0 || iy < 0 || ix >= w || iy >= h {
			return float32(fill)
		}
		return float32(src[iy*w+ix])
	}

	top := px(x0, y0) + (px(x0+1, y0)-px(x0, y0))*fx
	bot := px(x0, y0+1) + (px(x0+1, y0+1)-px(x0, y0+1))*fx
	return uint8(math32.Round(top + (bot-top)*fy))
}
