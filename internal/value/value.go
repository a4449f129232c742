// Package value defines the closed tagged union for values flowing across
// node ports: images, masks, numbers, booleans, strings, colors, and
// GPU-resident textures. Everything that consumes a Value switches on its
// Kind, so adding a value kind is a compile-visible change at every
// consumption site.
package value

import (
	"fmt"
	"image"
	"image/color"

	"github.com/vk/pixelgraph/internal/gpu"
	"github.com/vk/pixelgraph/internal/xform"
)

// Kind discriminates the union.
type Kind int

const (
	KindNone Kind = iota
	KindImage
	KindMask
	KindNumber
	KindBool
	KindString
	KindColor
	KindTexture
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindMask:
		return "mask"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindString:
		return "string"
	case KindColor:
		return "color"
	case KindTexture:
		return "texture"
	default:
		return "none"
	}
}

// DataType is the declared semantic type of a port, as written in node
// definitions and graph files.
type DataType string

const (
	TypeImage   DataType = "image"
	TypeMask    DataType = "mask"
	TypeNumber  DataType = "number"
	TypeBool    DataType = "boolean"
	TypeString  DataType = "string"
	TypeColor   DataType = "color"
	TypeTexture DataType = "texture"
	// TypeAny is the wildcard: edges touching it never coerce.
	TypeAny DataType = "any"
)

// KindOf maps a declared port type to the union kind it carries.
// TypeAny has no single kind and maps to KindNone.
func KindOf(t DataType) Kind {
	switch t {
	case TypeImage:
		return KindImage
	case TypeMask:
		return KindMask
	case TypeNumber:
		return KindNumber
	case TypeBool:
		return KindBool
	case TypeString:
		return KindString
	case TypeColor:
		return KindColor
	case TypeTexture:
		return KindTexture
	default:
		return KindNone
	}
}

// Image is a pixel buffer with an optional pending affine transform.
// A nil Pending means the pixels are materialized; a non-nil Pending
// means consumers must either understand deferred transforms or call
// Materialize first.
type Image struct {
	Pix     *image.RGBA
	W, H    int
	Pending *xform.Affine
	// Origin records the node that produced the buffer. Display metadata
	// only; never consulted by the engine.
	Origin string
}

// NewImage wraps an RGBA buffer.
func NewImage(pix *image.RGBA) *Image {
	b := pix.Bounds()
	return &Image{Pix: pix, W: b.Dx(), H: b.Dy()}
}

// HasPendingTransform reports whether a non-identity transform is attached.
func (m *Image) HasPendingTransform() bool {
	return m.Pending != nil && !m.Pending.IsIdentity()
}

// Materialize bakes any pending transform into the pixels and returns a
// plain-pixels image. When no transform is pending the receiver is
// returned unchanged.
func (m *Image) Materialize(fill color.RGBA) *Image {
	if !m.HasPendingTransform() {
		if m.Pending != nil {
			return &Image{Pix: m.Pix, W: m.W, H: m.H, Origin: m.Origin}
		}
		return m
	}
	baked := xform.Bake(m.Pix, *m.Pending, fill)
	return &Image{Pix: baked, W: m.W, H: m.H, Origin: m.Origin}
}

// WithTransform returns a copy of the image carrying t composed after any
// transform already pending. Pixels are shared, not copied.
func (m *Image) WithTransform(t xform.Affine) *Image {
	pending := t
	if m.Pending != nil {
		pending = m.Pending.Then(t)
	}
	return &Image{Pix: m.Pix, W: m.W, H: m.H, Pending: &pending, Origin: m.Origin}
}

// Mask is a single-channel byte buffer with the same pending-transform
// discipline as Image.
type Mask struct {
	Data    []uint8
	W, H    int
	Pending *xform.Affine
	Origin  string
}

// NewMask wraps a byte buffer of w*h elements.
func NewMask(data []uint8, w, h int) *Mask {
	return &Mask{Data: data, W: w, H: h}
}

// HasPendingTransform reports whether a non-identity transform is attached.
func (m *Mask) HasPendingTransform() bool {
	return m.Pending != nil && !m.Pending.IsIdentity()
}

// Materialize bakes any pending transform. Out-of-bounds samples take 0.
func (m *Mask) Materialize() *Mask {
	if !m.HasPendingTransform() {
		if m.Pending != nil {
			return &Mask{Data: m.Data, W: m.W, H: m.H, Origin: m.Origin}
		}
		return m
	}
	baked := xform.BakeMask(m.Data, m.W, m.H, *m.Pending, 0)
	return &Mask{Data: baked, W: m.W, H: m.H, Origin: m.Origin}
}

// WithTransform returns a copy carrying t composed after any pending transform.
func (m *Mask) WithTransform(t xform.Affine) *Mask {
	pending := t
	if m.Pending != nil {
		pending = m.Pending.Then(t)
	}
	return &Mask{Data: m.Data, W: m.W, H: m.H, Pending: &pending, Origin: m.Origin}
}

// Texture is a handle into a gpu.Context. It is valid only while the
// owning context holds the handle.
type Texture struct {
	ID   gpu.TextureID
	W, H int
}

// Value is the tagged union.
type Value struct {
	kind Kind
	img  *Image
	mask *Mask
	num  float64
	b    bool
	str  string
	col  color.RGBA
	tex  *Texture
}

// Constructors, one per kind.

func ImageValue(img *Image) Value      { return Value{kind: KindImage, img: img} }
func MaskValue(m *Mask) Value          { return Value{kind: KindMask, mask: m} }
func NumberValue(n float64) Value      { return Value{kind: KindNumber, num: n} }
func BoolValue(b bool) Value           { return Value{kind: KindBool, b: b} }
func StringValue(s string) Value       { return Value{kind: KindString, str: s} }
func ColorValue(c color.RGBA) Value    { return Value{kind: KindColor, col: c} }
func TextureValue(t *Texture) Value    { return Value{kind: KindTexture, tex: t} }

// Kind returns the union discriminant.
func (v Value) Kind() Kind { return v.kind }

// IsZero reports whether the value is the unset zero Value.
func (v Value) IsZero() bool { return v.kind == KindNone }

// Accessors, one per kind. The boolean reports whether the value holds
// that kind.

func (v Value) Image() (*Image, bool)     { return v.img, v.kind == KindImage }
func (v Value) Mask() (*Mask, bool)       { return v.mask, v.kind == KindMask }
func (v Value) Number() (float64, bool)   { return v.num, v.kind == KindNumber }
func (v Value) Bool() (bool, bool)        { return v.b, v.kind == KindBool }
func (v Value) Str() (string, bool)       { return v.str, v.kind == KindString }
func (v Value) Color() (color.RGBA, bool) { return v.col, v.kind == KindColor }
func (v Value) Texture() (*Texture, bool) { return v.tex, v.kind == KindTexture }

func (v Value) String() string {
	switch v.kind {
	case KindImage:
		return fmt.Sprintf("image(%dx%d)", v.img.W, v.img.H)
	case KindMask:
		return fmt.Sprintf("mask(%dx%d)", v.mask.W, v.mask.H)
	case KindNumber:
		return fmt.Sprintf("number(%g)", v.num)
	case KindBool:
		return fmt.Sprintf("boolean(%t)", v.b)
	case KindString:
		return fmt.Sprintf("string(%q)", v.str)
	case KindColor:
		return fmt.Sprintf("color(#%02x%02x%02x%02x)", v.col.R, v.col.G, v.col.B, v.col.A)
	case KindTexture:
		return fmt.Sprintf("texture(%d, %dx%d)", v.tex.ID, v.tex.W, v.tex.H)
	default:
		return "none"
	}
}

// ParseHexColor parses "#rrggbb" or "#rrggbbaa" (case-insensitive).
func ParseHexColor(s string) (color.RGBA, error) {
	if len(s) == 0 || s[0] != '#' || (len(s) != 7 && len(s) != 9) {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	hex := func(c byte) (uint8, bool) {
		switch {
		case c >= '0' && c <= '9':
			return c - '0', true
		case c >= 'a' && c <= 'f':
			return c - 'a' + 10, true
		case c >= 'A' && c <= 'F':
			return c - 'A' + 10, true
		}
		return 0, false
	}
	byteAt := func(i int) (uint8, bool) {
		hi, ok1 := hex(s[i])
		lo, ok2 := hex(s[i+1])
		return hi<<4 | lo, ok1 && ok2
	}
	r, ok1 := byteAt(1)
	g, ok2 := byteAt(3)
	b, ok3 := byteAt(5)
	if !ok1 || !ok2 || !ok3 {
		return color.RGBA{}, fmt.Errorf("invalid hex color %q", s)
	}
	a := uint8(0xff)
	if len(s) == 9 {
		var ok bool
		if a, ok = byteAt(7); !ok {
			return color.RGBA{}, fmt.Errorf("invalid hex color %q", s)
		}
	}
	return color.RGBA{R: r, G: g, B: b, A: a}, nil
}
