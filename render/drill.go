package render

import (
	"fmt"
	"math"

	"github.com/mastercactapus/engrave/coord"
	"github.com/mastercactapus/engrave/document"
	"github.com/mastercactapus/engrave/engrave"
	"github.com/mastercactapus/engrave/gcode"
)

// drillTolerance is how close a peck must get to the bottom to count as
// done.
const drillTolerance = 1e-5

// drillParams are the values of a drill cycle after defaults.
type drillParams struct {
	top, bottom, retract float64
	peck, dwell, feed    float64
}

func drillParamsFor(cycle gcode.Block, p engrave.Properties, safeZ float64) drillParams {
	d := drillParams{
		top:     p.ZStart,
		bottom:  p.ZEnd,
		retract: safeZ,
		peck:    p.PassDepth,
		feed:    p.Feed,
	}
	if ok, v := cycle.Arg('Z'); ok {
		d.bottom = v
	}
	if ok, v := cycle.Arg('R'); ok {
		d.retract = v
	}
	if ok, v := cycle.Arg('Q'); ok {
		d.peck = math.Abs(v)
	}
	if ok, v := cycle.Arg('P'); ok {
		d.dwell = v
	}
	if ok, v := cycle.Arg('F'); ok {
		d.feed = v
	}
	if math.IsNaN(d.top) {
		d.top = d.retract
	}
	return d
}

// pecks is the number of plunges: ceil(span/peck)+1, at least 1.
func (d drillParams) pecks() int {
	if math.IsNaN(d.peck) || d.peck <= 0 || d.top-d.bottom <= drillTolerance {
		return 1
	}
	n := int(math.Ceil((d.top-d.bottom)/d.peck)) + 1
	if n < 1 {
		n = 1
	}
	return n
}

// drill emulates a canned drill cycle with plain moves: a single plunge
// when no peck depth is known, otherwise pecks of the peck depth each
// followed by a retract to R. In laser mode it is a dwell on the spot.
func (w *walker) drill(e *document.DrillPoint, p engrave.Properties) error {
	d := drillParamsFor(e.Cycle, p, w.opt.SafeZ)
	if w.opt.Laser {
		w.progress(e.Name(), 1, 1, math.NaN(), p)
		if err := w.safeMoveTo(e.At.X, e.At.Y, math.NaN()); err != nil {
			return err
		}
		return w.dwell(d.dwell)
	}
	if math.IsNaN(d.bottom) {
		return fmt.Errorf("drill %q: %w", e.Name(), ErrNoDrillZ)
	}

	count := d.pecks()
	w.progress(e.Name(), 1, count, d.bottom, p)

	pos := w.pos()
	if !pos.NearXY(coord.Point{X: e.At.X, Y: e.At.Y}, 1e-6) {
		if !(pos.Z >= w.opt.SafeZ) {
			if err := w.rapidZ(w.opt.SafeZ); err != nil {
				return err
			}
		}
		if err := w.emit(gcode.Block{{W: 'G', Arg: 0}, {W: 'X', Arg: e.At.X}, {W: 'Y', Arg: e.At.Y}}); err != nil {
			return err
		}
	}
	if !isNear(w.pos().Z, d.retract) {
		if err := w.rapidZ(d.retract); err != nil {
			return err
		}
	}

	if count == 1 {
		return w.peck(d.bottom, d)
	}
	for z := d.top; z > d.bottom+drillTolerance; {
		z = math.Max(z-d.peck, d.bottom)
		if err := w.peck(z, d); err != nil {
			return err
		}
	}
	return nil
}

// peck plunges to z at feed, dwells and retracts to R.
func (w *walker) peck(z float64, d drillParams) error {
	b := gcode.Block{{W: 'G', Arg: 1}, {W: 'Z', Arg: z}}
	if !math.IsNaN(d.feed) && d.feed != w.feed {
		b = append(b, gcode.Word{W: 'F', Arg: d.feed})
	}
	if err := w.emit(b); err != nil {
		return err
	}
	if err := w.dwell(d.dwell); err != nil {
		return err
	}
	return w.rapidZ(d.retract)
}

func (w *walker) dwell(sec float64) error {
	if sec <= 0 {
		return nil
	}
	return w.emit(gcode.Block{{W: 'G', Arg: 4}, {W: 'P', Arg: sec}})
}

func (w *walker) rapidZ(z float64) error {
	return w.emit(gcode.Block{{W: 'G', Arg: 0}, {W: 'Z', Arg: z}})
}
