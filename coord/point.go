package coord

import (
	"math"
)

// Point is a 3-axis position. A NaN component means the axis value is unknown.
type Point struct{ X, Y, Z float64 }

// Unknown returns a point with every axis unknown.
func Unknown() Point {
	return Point{X: math.NaN(), Y: math.NaN(), Z: math.NaN()}
}

func (p Point) Equal(b Point) bool {
	return p.X == b.X && p.Y == b.Y && p.Z == b.Z
}

// Known returns true if neither X nor Y is NaN.
func (p Point) Known() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y)
}

// Near returns true if every axis of p is within eps of b. Unknown
// axes only compare equal to other unknown axes.
func (p Point) Near(b Point, eps float64) bool {
	return near(p.X, b.X, eps) && near(p.Y, b.Y, eps) && near(p.Z, b.Z, eps)
}

// NearXY is Near ignoring Z.
func (p Point) NearXY(b Point, eps float64) bool {
	return near(p.X, b.X, eps) && near(p.Y, b.Y, eps)
}

func near(a, b, eps float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Abs(a-b) <= eps
}

func (p Point) Cross(op Point) Point {
	return Point{
		p.Y*op.Z - p.Z*op.Y,
		p.Z*op.X - p.X*op.Z,
		p.X*op.Y - p.Y*op.X,
	}
}
func (p Point) Dot(op Point) float64 {
	return p.X*op.X + p.Y*op.Y + p.Z*op.Z
}
func (p Point) Mul(val float64) Point {
	p.X *= val
	p.Y *= val
	p.Z *= val
	return p
}

func (p Point) Div(val float64) Point {
	p.X /= val
	p.Y /= val
	p.Z /= val
	return p
}

// Add will add the target values to p.
func (p Point) Add(target Point) Point {
	p.X += target.X
	p.Y += target.Y
	p.Z += target.Z
	return p
}

// Sub will subtract the target values from p.
func (p Point) Sub(target Point) Point {
	p.X -= target.X
	p.Y -= target.Y
	p.Z -= target.Z
	return p
}

// DistanceXY will return the 2D distance to p from (x,y).
func (p Point) DistanceXY(x, y float64) float64 {
	return math.Hypot(x-p.X, y-p.Y)
}

// Axis returns the value of axis i (0=X, 1=Y, 2=Z).
func (p Point) Axis(i int) float64 {
	switch i {
	case 0:
		return p.X
	case 1:
		return p.Y
	case 2:
		return p.Z
	}
	panic("coord: axis out of range")
}

// WithAxis returns p with axis i set to v.
func (p Point) WithAxis(i int, v float64) Point {
	switch i {
	case 0:
		p.X = v
	case 1:
		p.Y = v
	case 2:
		p.Z = v
	default:
		panic("coord: axis out of range")
	}
	return p
}
