package render

import (
	"fmt"
	"math"

	"github.com/gogpu/gg"
	"github.com/mastercactapus/engrave/document"
	"github.com/mastercactapus/engrave/engrave"
	"github.com/mastercactapus/engrave/gcode"
)

// pocket clears the inside of pk at height z with alternating rows. Rows
// that end next to each other are linked at depth when the link stays
// inside the outline; anything else is a safe move.
func (w *walker) pocket(pk *document.Pocket, z float64, p engrave.Properties) error {
	if math.IsNaN(z) && !w.opt.Laser {
		return fmt.Errorf("pocket %q: %w", pk.Name(), ErrNoPocketZ)
	}
	zEnd := pk.Props.ZEnd
	if math.IsNaN(zEnd) {
		zEnd = p.ZEnd
	}
	if !pk.Cuts(z, zEnd) {
		return nil
	}

	step := w.opt.ToolDiameter * w.opt.StepOver
	radius := w.opt.ToolDiameter / 2
	for _, seg := range pk.ScanLines(w.opt.Tolerance, radius, step) {
		if err := w.pocketLead(pk, seg.A, z, step); err != nil {
			return err
		}
		if err := w.emit(gcode.Block{{W: 'G', Arg: 1}, {W: 'X', Arg: seg.B.X}, {W: 'Y', Arg: seg.B.Y}}); err != nil {
			return err
		}
	}
	return nil
}

func (w *walker) pocketLead(pk *document.Pocket, to gg.Point, z, step float64) error {
	pos := w.pos()
	atZ := math.IsNaN(z) || isNear(pos.Z, z)
	if atZ && pos.Known() {
		from := gg.Pt(pos.X, pos.Y)
		mid := from.Lerp(to, 0.5)
		if from.Distance(to) <= step*1.5 && pk.Outline.Contains(mid) {
			return w.emit(gcode.Block{{W: 'G', Arg: 1}, {W: 'X', Arg: to.X}, {W: 'Y', Arg: to.Y}})
		}
	}
	return w.safeMoveTo(to.X, to.Y, z)
}
