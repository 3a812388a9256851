package meshlevel

import (
	"errors"
	"fmt"
	"math"

	"github.com/fogleman/delaunay"
	"github.com/mastercactapus/engrave/coord"
)

// ErrTooFewPoints is returned by NewMesh when fewer than three distinct XY
// positions were probed.
var ErrTooFewPoints = errors.New("mesh needs at least 3 distinct points")

// ZOffsetter reports the surface height at a work XY; ok is false outside
// the known area.
type ZOffsetter interface {
	OffsetZ(x, y float64) (ok bool, z float64)
}

// flat is used when a leveler has no surface.
type flat struct{}

func (flat) OffsetZ(x, y float64) (bool, float64) { return false, 0 }

// Mesh is a surface built from probe points. Heights between points are
// interpolated over a Delaunay triangulation.
type Mesh struct {
	min, max  coord.Point
	triangles []coord.Triangle
}

// NewMesh triangulates points. When several points share an XY the first
// one wins.
func NewMesh(points []coord.Point) (*Mesh, error) {
	if len(points) == 0 {
		return nil, ErrTooFewPoints
	}

	byXY := make(map[delaunay.Point]coord.Point, len(points))
	xy := make([]delaunay.Point, 0, len(points))
	m := &Mesh{min: points[0], max: points[0]}
	for _, p := range points {
		m.min.X, m.max.X = math.Min(m.min.X, p.X), math.Max(m.max.X, p.X)
		m.min.Y, m.max.Y = math.Min(m.min.Y, p.Y), math.Max(m.max.Y, p.Y)

		d := delaunay.Point{X: p.X, Y: p.Y}
		if _, ok := byXY[d]; ok {
			continue
		}
		byXY[d] = p
		xy = append(xy, d)
	}
	if len(xy) < 3 {
		return nil, ErrTooFewPoints
	}

	tri, err := delaunay.Triangulate(xy)
	if err != nil {
		return nil, fmt.Errorf("triangulate: %w", err)
	}

	m.triangles = make([]coord.Triangle, 0, len(tri.Triangles)/3)
	for i := 0; i+2 < len(tri.Triangles); i += 3 {
		m.triangles = append(m.triangles, coord.Triangle{
			A: byXY[tri.Points[tri.Triangles[i]]],
			B: byXY[tri.Points[tri.Triangles[i+1]]],
			C: byXY[tri.Points[tri.Triangles[i+2]]],
		})
	}
	return m, nil
}

// Bounds returns the XY corners of the probed area.
func (m *Mesh) Bounds() (min, max coord.Point) {
	return coord.Point{X: m.min.X, Y: m.min.Y}, coord.Point{X: m.max.X, Y: m.max.Y}
}

func (m *Mesh) OffsetZ(x, y float64) (bool, float64) {
	e := coord.Epsilon
	if x < m.min.X-e || x > m.max.X+e || y < m.min.Y-e || y > m.max.Y+e {
		return false, 0
	}
	for _, t := range m.triangles {
		if t.ContainsXY(x, y) {
			return true, t.Z(x, y)
		}
	}
	return false, 0
}
