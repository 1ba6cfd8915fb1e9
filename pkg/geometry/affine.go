package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// singularRatio bounds |det| relative to the squared largest linear
// coefficient; below it an affine map is treated as non-invertible.
const singularRatio = 1e-12

// AffineTransform represents a 2x3 affine transformation matrix.
// [a b tx]
// [c d ty]
//
// The implied third row is (0, 0, 1).
type AffineTransform struct {
	A, B, TX float64
	C, D, TY float64
}

// Identity returns the identity transform.
func Identity() AffineTransform {
	return AffineTransform{A: 1, D: 1}
}

// Translation returns a translation transform.
func Translation(tx, ty float64) AffineTransform {
	return AffineTransform{A: 1, D: 1, TX: tx, TY: ty}
}

// Rotation returns a rotation transform around the origin.
func Rotation(radians float64) AffineTransform {
	sin, cos := math.Sincos(radians)
	return AffineTransform{A: cos, B: -sin, C: sin, D: cos}
}

// Scale returns a scaling transform.
func Scale(sx, sy float64) AffineTransform {
	return AffineTransform{A: sx, D: sy}
}

// NewAffine builds a transform from its components. Rotation and shear are in
// radians; the shear angle is measured from the rotated Y axis.
//
//	[sx*cos(r)  -sy*sin(r+shear)  tx]
//	[sx*sin(r)   sy*cos(r+shear)  ty]
func NewAffine(sx, sy, rotation, shear, tx, ty float64) AffineTransform {
	sinR, cosR := math.Sincos(rotation)
	sinRS, cosRS := math.Sincos(rotation + shear)
	return AffineTransform{
		A: sx * cosR, B: -sy * sinRS, TX: tx,
		C: sx * sinR, D: sy * cosRS, TY: ty,
	}
}

// Apply applies the transform to a point.
func (t AffineTransform) Apply(p Point2D) Point2D {
	return Point2D{
		X: t.A*p.X + t.B*p.Y + t.TX,
		Y: t.C*p.X + t.D*p.Y + t.TY,
	}
}

// Compose returns this transform composed with another (this * other), i.e.
// other is applied first.
func (t AffineTransform) Compose(other AffineTransform) AffineTransform {
	return AffineTransform{
		A:  t.A*other.A + t.B*other.C,
		B:  t.A*other.B + t.B*other.D,
		TX: t.A*other.TX + t.B*other.TY + t.TX,
		C:  t.C*other.A + t.D*other.C,
		D:  t.C*other.B + t.D*other.D,
		TY: t.C*other.TX + t.D*other.TY + t.TY,
	}
}

// Det returns the determinant of the linear part.
func (t AffineTransform) Det() float64 {
	return t.A*t.D - t.B*t.C
}

// Inverse returns the inverse transform, if it exists. The singularity test
// is relative to the size of the linear part, so uniformly tiny or huge maps
// still invert.
func (t AffineTransform) Inverse() (AffineTransform, bool) {
	det := t.Det()
	scale := math.Max(math.Max(math.Abs(t.A), math.Abs(t.B)), math.Max(math.Abs(t.C), math.Abs(t.D)))
	if scale == 0 || math.IsNaN(det) || math.Abs(det) <= singularRatio*scale*scale {
		return AffineTransform{}, false
	}

	invDet := 1.0 / det
	inv := AffineTransform{
		A:  t.D * invDet,
		B:  -t.B * invDet,
		TX: (t.B*t.TY - t.D*t.TX) * invDet,
		C:  -t.C * invDet,
		D:  t.A * invDet,
		TY: (t.C*t.TX - t.A*t.TY) * invDet,
	}
	for _, v := range inv.Params() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return AffineTransform{}, false
		}
	}
	return inv, true
}

// Params returns the six coefficients in row order A, B, TX, C, D, TY.
func (t AffineTransform) Params() []float64 {
	return []float64{t.A, t.B, t.TX, t.C, t.D, t.TY}
}

// ScaleXY returns the scale factors along the transformed X and Y axes.
func (t AffineTransform) ScaleXY() (sx, sy float64) {
	return math.Hypot(t.A, t.C), math.Hypot(t.B, t.D)
}

// RotationAngle returns the rotation in radians.
func (t AffineTransform) RotationAngle() float64 {
	return math.Atan2(t.C, t.A)
}

// ShearAngle returns the shear angle in radians, wrapped to (-pi, pi].
func (t AffineTransform) ShearAngle() float64 {
	return wrapAngle(math.Atan2(-t.B, t.D) - t.RotationAngle())
}

// TranslationXY returns the translation component.
func (t AffineTransform) TranslationXY() (tx, ty float64) {
	return t.TX, t.TY
}

// Homogeneous returns the 3x3 homogeneous matrix with last row (0, 0, 1).
func (t AffineTransform) Homogeneous() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		t.A, t.B, t.TX,
		t.C, t.D, t.TY,
		0, 0, 1,
	})
}

func wrapAngle(a float64) float64 {
	for a <= -math.Pi {
		a += 2 * math.Pi
	}
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}
