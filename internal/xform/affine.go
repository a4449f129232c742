// Package xform implements the 2D affine transform algebra used for lazy
// geometric composition across graph nodes: construction, composition,
// inversion, point application, and the one-way "bake" that resamples a
// pixel buffer through a pending transform.
package xform

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Affine is a 2×3 affine matrix: a 2×2 linear part plus a translation.
// A point (x, y) maps to (XX*x + XY*y + X0, YX*x + YY*y + Y0).
type Affine struct {
	XX, YX float32
	XY, YY float32
	X0, Y0 float32
}

// epsilon below which matrix entries are considered equal for identity
// and non-invertibility checks.
const epsilon = 1e-6

// Identity returns the identity transform.
func Identity() Affine {
	return Affine{XX: 1, YY: 1}
}

// Translate returns a pure translation by (tx, ty).
func Translate(tx, ty float32) Affine {
	return Affine{XX: 1, YY: 1, X0: tx, Y0: ty}
}

// Scale returns a scale about the origin.
func Scale(sx, sy float32) Affine {
	return Affine{XX: sx, YY: sy}
}

// Rotate returns a counter-clockwise rotation by angle radians about the origin.
func Rotate(angle float32) Affine {
	c := math32.Cos(angle)
	s := math32.Sin(angle)
	return Affine{XX: c, YX: s, XY: -s, YY: c}
}

// RotateAbout returns a rotation by angle radians about the point (cx, cy).
func RotateAbout(angle, cx, cy float32) Affine {
	return Translate(cx, cy).Mul(Rotate(angle)).Mul(Translate(-cx, -cy))
}

// Mul returns a∘b: the transform that applies b first, then a.
func (a Affine) Mul(b Affine) Affine {
	return Affine{
		XX: a.XX*b.XX + a.XY*b.YX,
		YX: a.YX*b.XX + a.YY*b.YX,
		XY: a.XX*b.XY + a.XY*b.YY,
		YY: a.YX*b.XY + a.YY*b.YY,
		X0: a.XX*b.X0 + a.XY*b.Y0 + a.X0,
		Y0: a.YX*b.X0 + a.YY*b.Y0 + a.Y0,
	}
}

// Then returns the transform that applies a first, then b. This is the
// composition rule for chained transform nodes: a node's local transform
// is applied after whatever transform its input already carries.
func (a Affine) Then(b Affine) Affine {
	return b.Mul(a)
}

// Apply maps the point (x, y) through the transform.
func (a Affine) Apply(x, y float32) (float32, float32) {
	return a.XX*x + a.XY*y + a.X0, a.YX*x + a.YY*y + a.Y0
}

// Det returns the determinant of the linear part.
func (a Affine) Det() float32 {
	return a.XX*a.YY - a.XY*a.YX
}

// Invert returns the inverse transform, or an error when the linear part
// is singular (zero determinant within tolerance).
func (a Affine) Invert() (Affine, error) {
	det := a.Det()
	if math32.Abs(det) < epsilon {
		return Affine{}, fmt.Errorf("affine transform is not invertible (det=%g)", det)
	}
	inv := 1 / det
	out := Affine{
		XX: a.YY * inv,
		YX: -a.YX * inv,
		XY: -a.XY * inv,
		YY: a.XX * inv,
	}
	out.X0 = -(out.XX*a.X0 + out.XY*a.Y0)
	out.Y0 = -(out.YX*a.X0 + out.YY*a.Y0)
	return out, nil
}

// IsIdentity reports whether the transform is the identity within tolerance.
func (a Affine) IsIdentity() bool {
	return math32.Abs(a.XX-1) < epsilon &&
		math32.Abs(a.YY-1) < epsilon &&
		math32.Abs(a.YX) < epsilon &&
		math32.Abs(a.XY) < epsilon &&
		math32.Abs(a.X0) < epsilon &&
		math32.Abs(a.Y0) < epsilon
}

func (a Affine) String() string {
	return fmt.Sprintf("[%g %g %g; %g %g %g]", a.XX, a.XY, a.X0, a.YX, a.YY, a.Y0)
}
