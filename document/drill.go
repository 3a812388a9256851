package document

import (
	"github.com/gogpu/gg"
	"github.com/mastercactapus/engrave/engrave"
	"github.com/mastercactapus/engrave/gcode"
)

// DrillPoint is a hole drilled at a single point. Cycle is the nominal
// canned cycle (G81, G82, G83, ...) whose Z, R, Q, P and F words tune the
// emulated drilling; its X and Y are ignored in favor of At.
type DrillPoint struct {
	Label string
	Props engrave.Properties
	At    gg.Point
	Cycle gcode.Block
}

// NewDrillPoint returns a plain G81 drill at x, y.
func NewDrillPoint(label string, x, y float64) *DrillPoint {
	return &DrillPoint{
		Label: label,
		Props: engrave.New(),
		At:    gg.Pt(x, y),
		Cycle: gcode.Block{{W: 'G', Arg: 81}},
	}
}

func (d *DrillPoint) Name() string                   { return d.Label }
func (d *DrillPoint) Properties() engrave.Properties { return d.Props }

// Blocks returns the nominal cycle at the drill position.
func (d *DrillPoint) Blocks(float64) []gcode.Block {
	b := d.Cycle.Without('X', 'Y')
	if len(b) == 0 {
		b = gcode.Block{{W: 'G', Arg: 81}}
	}
	return []gcode.Block{b.SetArg('X', d.At.X).SetArg('Y', d.At.Y)}
}

func (d *DrillPoint) FirstPoint() (gg.Point, bool) { return d.At, true }
func (d *DrillPoint) LastPoint() (gg.Point, bool)  { return d.At, true }
