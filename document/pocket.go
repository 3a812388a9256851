package document

import (
	"math"
	"sort"

	"github.com/gogpu/gg"
	"github.com/mastercactapus/engrave/engrave"
	"github.com/mastercactapus/engrave/gcode"
)

// Pocket clears the whole area inside Outline instead of following it.
// InlayDepth is the thickness left standing at the bottom of the Z span:
// passes deeper than ZEnd+InlayDepth are skipped.
type Pocket struct {
	Label      string
	Props      engrave.Properties
	Outline    *gg.Path
	InlayDepth float64
}

func NewPocket(label string, outline *gg.Path) *Pocket {
	return &Pocket{Label: label, Props: engrave.New(), Outline: outline}
}

func (p *Pocket) Name() string                   { return p.Label }
func (p *Pocket) Properties() engrave.Properties { return p.Props }

// Blocks returns the outline itself; the cleared area comes from ScanLines.
func (p *Pocket) Blocks(tol float64) []gcode.Block {
	return polylineBlocks(Polylines(p.Outline, tol))
}

func (p *Pocket) FirstPoint() (gg.Point, bool) { return firstPoint(p.Outline) }
func (p *Pocket) LastPoint() (gg.Point, bool)  { return lastPoint(p.Outline) }

// Cuts reports whether a pass at z removes material of the pocket: the
// material left above the bottom must be at least the inlay depth.
func (p *Pocket) Cuts(z, zEnd float64) bool {
	if math.IsNaN(z) || math.IsNaN(zEnd) || p.InlayDepth <= 0 {
		return true
	}
	return z-zEnd >= p.InlayDepth-1e-6
}

// Segment is a straight cut from A to B.
type Segment struct {
	A, B gg.Point
}

// ScanLines fills the outline with horizontal cuts spaced step apart, kept
// radius inside every edge. Rows alternate direction so consecutive cuts
// start near where the previous one ended.
func (p *Pocket) ScanLines(tol, radius, step float64) []Segment {
	polys := Polylines(p.Outline, tol)
	if len(polys) == 0 || step <= 0 {
		return nil
	}
	bb := p.Outline.BoundingBox()

	var res []Segment
	reverse := false
	for y := bb.Min.Y + radius; y <= bb.Max.Y-radius+1e-9; y += step {
		row := scanRow(polys, y, radius)
		var kept []Segment
		for _, s := range row {
			mid := gg.Pt((s.A.X+s.B.X)/2, y)
			if !p.Outline.Contains(mid) {
				continue
			}
			kept = append(kept, s)
		}
		if reverse {
			for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
				kept[i], kept[j] = kept[j], kept[i]
			}
			for i := range kept {
				kept[i].A, kept[i].B = kept[i].B, kept[i].A
			}
		}
		if len(kept) > 0 {
			reverse = !reverse
		}
		res = append(res, kept...)
	}
	return res
}

// scanRow intersects the horizontal line at y with the polygon edges and
// returns the inside spans shrunk by radius on each end.
func scanRow(polys [][]gg.Point, y, radius float64) []Segment {
	var xs []float64
	for _, poly := range polys {
		n := len(poly)
		for i := 0; i < n; i++ {
			a, b := poly[i], poly[(i+1)%n]
			if (a.Y <= y) == (b.Y <= y) {
				continue
			}
			t := (y - a.Y) / (b.Y - a.Y)
			xs = append(xs, a.X+t*(b.X-a.X))
		}
	}
	sort.Float64s(xs)

	var res []Segment
	for i := 0; i+1 < len(xs); i += 2 {
		x0, x1 := xs[i]+radius, xs[i+1]-radius
		if x1 < x0 {
			continue
		}
		res = append(res, Segment{A: gg.Pt(x0, y), B: gg.Pt(x1, y)})
	}
	return res
}
