package coord

import (
	"math"
)

const (
	// Epsilon is the max error when checking containment.
	Epsilon   = 0.001
	epsilonSq = Epsilon * Epsilon
)

// Triangle is a probed surface facet.
type Triangle struct{ A, B, C Point }

// ContainsXY returns true if the 2D projection of the triangle
// has the point x,y (edges count, within Epsilon).
func (t Triangle) ContainsXY(x, y float64) bool {
	pt := Point{X: x, Y: y}
	if !t.boundsContainXY(pt) {
		return false
	}

	// all three edge tests on the same side, for either winding
	s1, s2, s3 := side(t.A, t.B, pt), side(t.B, t.C, pt), side(t.C, t.A, pt)
	if (s1 >= 0 && s2 >= 0 && s3 >= 0) || (s1 <= 0 && s2 <= 0 && s3 <= 0) {
		return true
	}

	// fallback for points sitting on (or very near) an edge
	return segmentDistanceSq(t.A, t.B, pt) <= epsilonSq ||
		segmentDistanceSq(t.B, t.C, pt) <= epsilonSq ||
		segmentDistanceSq(t.C, t.A, pt) <= epsilonSq
}

// Z will give the Z-coordinate on the plane defined by the triangle
// where it intersects x,y.
func (t Triangle) Z(x, y float64) float64 {
	n := t.C.Sub(t.A).Cross(t.B.Sub(t.A))
	d := n.Dot(t.C)

	return (d - n.X*x - n.Y*y) / n.Z
}

func (t Triangle) boundsContainXY(pt Point) bool {
	xMin := math.Min(t.A.X, math.Min(t.B.X, t.C.X)) - Epsilon
	xMax := math.Max(t.A.X, math.Max(t.B.X, t.C.X)) + Epsilon
	yMin := math.Min(t.A.Y, math.Min(t.B.Y, t.C.Y)) - Epsilon
	yMax := math.Max(t.A.Y, math.Max(t.B.Y, t.C.Y)) + Epsilon

	return pt.X >= xMin && pt.X <= xMax && pt.Y >= yMin && pt.Y <= yMax
}

// adapted from https://totologic.blogspot.com/2014/01/accurate-point-in-triangle-test.html

func side(a, b, pt Point) float64 {
	return (b.Y-a.Y)*(pt.X-a.X) + (a.X-b.X)*(pt.Y-a.Y)
}

func segmentDistanceSq(a, b, pt Point) float64 {
	lenSq := (b.X-a.X)*(b.X-a.X) + (b.Y-a.Y)*(b.Y-a.Y)
	dot := ((pt.X-a.X)*(b.X-a.X) + (pt.Y-a.Y)*(b.Y-a.Y)) / lenSq
	switch {
	case dot < 0:
		return (pt.X-a.X)*(pt.X-a.X) + (pt.Y-a.Y)*(pt.Y-a.Y)
	case dot <= 1:
		apSq := (a.X-pt.X)*(a.X-pt.X) + (a.Y-pt.Y)*(a.Y-pt.Y)
		return apSq - dot*dot*lenSq
	}
	return (pt.X-b.X)*(pt.X-b.X) + (pt.Y-b.Y)*(pt.Y-b.Y)
}
