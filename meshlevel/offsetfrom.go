package meshlevel

import (
	"github.com/mastercactapus/engrave/coord"
)

// OffsetFrom translates probe points so origin becomes 0,0,0. Passing the
// work coordinate offset turns machine coordinates into work coordinates.
func OffsetFrom(origin coord.Point, points []coord.Point) []coord.Point {
	p := make([]coord.Point, len(points))
	for i, pt := range points {
		p[i] = pt.Sub(origin)
	}
	return p
}
