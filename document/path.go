package document

import (
	"github.com/gogpu/gg"
	"github.com/mastercactapus/engrave/engrave"
	"github.com/mastercactapus/engrave/gcode"
)

// Path is an outline cut along its stroke.
type Path struct {
	Label string
	Props engrave.Properties
	Path  *gg.Path
}

// NewPath wraps p with unset properties.
func NewPath(label string, p *gg.Path) *Path {
	return &Path{Label: label, Props: engrave.New(), Path: p}
}

// Rect returns a rectangular outline.
func Rect(label string, x, y, w, h float64) *Path {
	p := gg.NewPath()
	p.Rectangle(x, y, w, h)
	return NewPath(label, p)
}

// Circle returns a circular outline.
func Circle(label string, cx, cy, r float64) *Path {
	p := gg.NewPath()
	p.Circle(cx, cy, r)
	return NewPath(label, p)
}

func (p *Path) Name() string                   { return p.Label }
func (p *Path) Properties() engrave.Properties { return p.Props }

func (p *Path) Blocks(tol float64) []gcode.Block {
	return polylineBlocks(Polylines(p.Path, tol))
}

func (p *Path) FirstPoint() (gg.Point, bool) { return firstPoint(p.Path) }
func (p *Path) LastPoint() (gg.Point, bool)  { return lastPoint(p.Path) }

// Polylines flattens every subpath of p separately. A closed subpath ends
// on its starting point.
func Polylines(p *gg.Path, tol float64) [][]gg.Point {
	if p == nil {
		return nil
	}

	var res [][]gg.Point
	var sub *gg.Path
	flush := func() {
		if sub == nil {
			return
		}
		if pts := dedupe(sub.Flatten(tol)); len(pts) > 1 {
			res = append(res, pts)
		}
		sub = nil
	}

	for _, e := range p.Elements() {
		switch e := e.(type) {
		case gg.MoveTo:
			flush()
			sub = gg.NewPath()
			sub.MoveTo(e.Point.X, e.Point.Y)
			continue
		}
		if sub == nil {
			// drawing without a MoveTo starts at the origin
			sub = gg.NewPath()
			sub.MoveTo(0, 0)
		}
		switch e := e.(type) {
		case gg.LineTo:
			sub.LineTo(e.Point.X, e.Point.Y)
		case gg.QuadTo:
			sub.QuadraticTo(e.Control.X, e.Control.Y, e.Point.X, e.Point.Y)
		case gg.CubicTo:
			sub.CubicTo(e.Control1.X, e.Control1.Y, e.Control2.X, e.Control2.Y, e.Point.X, e.Point.Y)
		case gg.Close:
			sub.Close()
		}
	}
	flush()

	return res
}

func dedupe(pts []gg.Point) []gg.Point {
	res := pts[:0]
	for i, pt := range pts {
		if i > 0 && pt == res[len(res)-1] {
			continue
		}
		res = append(res, pt)
	}
	return res
}

// polylineBlocks turns polylines into a transit to each start followed by
// cuts along it.
func polylineBlocks(lines [][]gg.Point) []gcode.Block {
	var res []gcode.Block
	for _, line := range lines {
		for i, pt := range line {
			g := 1.0
			if i == 0 {
				g = 0
			}
			res = append(res, gcode.Block{
				{W: 'G', Arg: g},
				{W: 'X', Arg: pt.X},
				{W: 'Y', Arg: pt.Y},
			})
		}
	}
	return res
}

func firstPoint(p *gg.Path) (gg.Point, bool) {
	if p == nil {
		return gg.Point{}, false
	}
	for _, e := range p.Elements() {
		if m, ok := e.(gg.MoveTo); ok {
			return m.Point, true
		}
	}
	return gg.Point{}, false
}

func lastPoint(p *gg.Path) (gg.Point, bool) {
	if p == nil || len(p.Elements()) == 0 {
		return gg.Point{}, false
	}
	var start, cur gg.Point
	for _, e := range p.Elements() {
		switch e := e.(type) {
		case gg.MoveTo:
			start, cur = e.Point, e.Point
		case gg.LineTo:
			cur = e.Point
		case gg.QuadTo:
			cur = e.Point
		case gg.CubicTo:
			cur = e.Point
		case gg.Close:
			cur = start
		}
	}
	return cur, true
}
