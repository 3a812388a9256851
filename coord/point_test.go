package coord

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPoint_Add(t *testing.T) {
	a := Point{X: 1, Y: 2, Z: 3}
	b := Point{X: 4, Y: 5, Z: 6}

	assert.Equal(t, Point{X: 5, Y: 7, Z: 9}, a.Add(b))
	assert.Equal(t, Point{X: 3, Y: 3, Z: 3}, b.Sub(a))
}

func TestPoint_DistanceXY(t *testing.T) {
	dist := Point{X: 1, Y: 2, Z: 3}.DistanceXY(4, 5)
	assert.InEpsilon(t, 4.24264, dist, .01)
}

func TestPoint_Near(t *testing.T) {
	a := Point{X: 1, Y: 2, Z: math.NaN()}

	assert.True(t, a.Near(Point{X: 1.0001, Y: 2, Z: math.NaN()}, 0.001))
	assert.False(t, a.Near(Point{X: 1, Y: 2, Z: 0}, 0.001))
	assert.True(t, a.NearXY(Point{X: 1, Y: 2, Z: 0}, 0.001))
	assert.False(t, Unknown().Known())
}

func TestPoint_Axis(t *testing.T) {
	p := Point{X: 1, Y: 2, Z: 3}
	assert.Equal(t, 2.0, p.Axis(1))
	assert.Equal(t, Point{X: 1, Y: 7, Z: 3}, p.WithAxis(1, 7))
	assert.Panics(t, func() { p.Axis(3) })
}
