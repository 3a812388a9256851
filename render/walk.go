package render

import (
	"context"
	"fmt"
	"math"

	"github.com/mastercactapus/engrave/coord"
	"github.com/mastercactapus/engrave/document"
	"github.com/mastercactapus/engrave/engrave"
	"github.com/mastercactapus/engrave/gcode"
)

// walker holds the state of a single render.
type walker struct {
	ctx  context.Context
	r    *Renderer
	opt  Options
	sink Sink

	// modal tracks what was emitted so far, including the position
	modal *gcode.State

	feed      float64
	power     int
	spindleOn bool

	groupName string
	block     int
	lines     int
}

func newWalker(ctx context.Context, r *Renderer, sink Sink) *walker {
	return &walker{
		ctx:   ctx,
		r:     r,
		opt:   r.opt,
		sink:  sink,
		modal: gcode.NewState(),
		feed:  math.NaN(),
		power: engrave.Unset,
	}
}

func (w *walker) run(doc *document.Group) error {
	if err := w.emit(gcode.Block{{W: 'G', Arg: 21}}); err != nil {
		return err
	}
	if err := w.emit(gcode.Block{{W: 'G', Arg: 90}}); err != nil {
		return err
	}
	if err := w.group(doc, *w.opt.Defaults); err != nil {
		return err
	}

	if err := w.emit(gcode.Block{{W: 'M', Arg: 5}}); err != nil {
		return err
	}
	if err := w.emit(gcode.Block{{W: 'G', Arg: 0}, {W: 'Z', Arg: w.opt.SafeZ}}); err != nil {
		return err
	}
	return w.emit(gcode.Block{{W: 'M', Arg: 2}})
}

func (w *walker) pos() coord.Point { return w.modal.Position() }

// emit sends a single line. It is the only place lines leave the walker.
func (w *walker) emit(b gcode.Block) error {
	if w.r.stop.Load() {
		return ErrStopped
	}
	if err := w.ctx.Err(); err != nil {
		return err
	}
	b = sendable(b)
	if len(b) == 0 {
		return nil
	}
	if err := w.sink.Send(b); err != nil {
		return err
	}
	w.lines++
	w.modal.Update(b)
	if ok, f := b.Arg('F'); ok {
		w.feed = f
	}
	return nil
}

func (w *walker) progress(element string, pass, count int, z float64, p engrave.Properties) {
	w.r.hub.Publish(Progress{
		Group:     w.groupName,
		Element:   element,
		Block:     w.block,
		Line:      w.lines,
		Pass:      pass,
		PassCount: count,
		Z:         z,
		ZStart:    p.ZStart,
		ZEnd:      p.ZEnd,
	})
}

// setFeedPower emits the feed and power of p where they differ from what
// is active. The spindle (or laser) is switched on with the first power.
func (w *walker) setFeedPower(p engrave.Properties) error {
	if p.HasFeed() && p.Feed != w.feed {
		if err := w.emit(gcode.Block{{W: 'F', Arg: p.Feed}}); err != nil {
			return err
		}
	}
	if p.HasPower() && p.Power != w.power {
		b := gcode.Block{{W: 'S', Arg: float64(p.Power)}}
		if !w.spindleOn {
			m := 3.0
			if w.opt.Laser {
				m = 4
			}
			b = append(gcode.Block{{W: 'M', Arg: m}}, b...)
		}
		if err := w.emit(b); err != nil {
			return err
		}
		w.spindleOn = true
		w.power = p.Power
	}
	return nil
}

// flatMerge applies only the enable flag and the feed and power overrides
// of own, for nodes below an all-at-once group.
func flatMerge(own, in engrave.Properties) engrave.Properties {
	res := in
	res.Enabled = in.Enabled && own.Enabled
	if own.HasFeed() {
		res.Feed = own.Feed
	}
	if own.HasPower() {
		res.Power = own.Power
	}
	return res
}

func (w *walker) node(n document.Node, in engrave.Properties) error {
	switch n := n.(type) {
	case *document.Group:
		return w.group(n, in)
	case document.Element:
		return w.element(n, in)
	}
	return fmt.Errorf("unsupported document node %T", n)
}

func (w *walker) group(g *document.Group, in engrave.Properties) error {
	if in.AllAtOnce {
		// an ancestor fixed the height already
		merged := flatMerge(g.Props, in)
		if !merged.Enabled {
			return nil
		}
		for _, c := range g.Children {
			if err := w.node(c, merged); err != nil {
				return err
			}
		}
		return nil
	}

	merged := g.Props.InheritFrom(in)
	if !merged.Enabled {
		return nil
	}
	prev := w.groupName
	w.groupName = g.Label
	defer func() { w.groupName = prev }()

	if !g.Props.AllAtOnce {
		for _, c := range g.Children {
			if err := w.node(c, merged); err != nil {
				return err
			}
		}
		return nil
	}

	merged.ValidatePass(false)
	heights := merged.Passes().Heights()
	for i, z := range heights {
		adhoc := merged
		adhoc.AllAtOnce = true
		adhoc.PassCount = 1
		adhoc.ZStart, adhoc.ZEnd = z, z
		adhoc.PassDepth = math.NaN()

		w.progress("", i+1, len(heights), z, merged)
		marker := fmt.Sprintf("%s pass %d/%d", g.Label, i+1, len(heights))
		if err := w.emit(gcode.Block{{W: gcode.Comment, Text: marker}}); err != nil {
			return err
		}
		for _, c := range g.Children {
			if err := w.node(c, adhoc); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *walker) element(e document.Element, in engrave.Properties) error {
	w.block++

	flat := in.AllAtOnce
	var merged engrave.Properties
	if flat {
		merged = flatMerge(e.Properties(), in)
	} else {
		merged = e.Properties().InheritFrom(in)
	}
	if !merged.Enabled {
		return nil
	}
	if err := w.setFeedPower(merged); err != nil {
		return err
	}

	if d, ok := e.(*document.DrillPoint); ok {
		return w.drill(d, merged)
	}

	if flat {
		w.progress(e.Name(), 1, 1, merged.ZStart, merged)
		return w.cut(e, merged.ZStart, merged)
	}

	heights := merged.Passes().Heights()
	for i, z := range heights {
		w.progress(e.Name(), i+1, len(heights), z, merged)
		if err := w.cut(e, z, merged); err != nil {
			return err
		}
	}
	return nil
}

// cut emits one pass of e at height z (NaN leaves Z alone).
func (w *walker) cut(e document.Element, z float64, p engrave.Properties) error {
	if pk, ok := e.(*document.Pocket); ok {
		return w.pocket(pk, z, p)
	}

	for _, b := range e.Blocks(w.opt.Tolerance) {
		if isTransit(b) && !w.modal.RelativeMotion() {
			_, x := b.Arg('X')
			_, y := b.Arg('Y')
			if err := w.safeMoveTo(x, y, z); err != nil {
				return err
			}
			continue
		}
		if err := w.emit(b); err != nil {
			return err
		}
	}
	return nil
}

// isTransit reports whether b is a rapid XY move with no Z of its own.
func isTransit(b gcode.Block) bool {
	ok, g := b.Motion()
	return ok && g == 0 && b.Has('X') && b.Has('Y') && !b.Has('Z')
}

// safeMoveTo travels to x, y and ends at height z. Outside laser mode the
// tool is raised to the safe Z for the XY move and lowered at feed. A NaN
// z keeps the current height.
func (w *walker) safeMoveTo(x, y, z float64) error {
	pos := w.pos()
	haveZ := !math.IsNaN(z)
	atZ := !haveZ || isNear(pos.Z, z)

	if pos.NearXY(coord.Point{X: x, Y: y}, 1e-6) {
		if atZ {
			return nil
		}
		g := 1.0
		if pos.Z < z {
			g = 0
		}
		return w.emit(gcode.Block{{W: 'G', Arg: g}, {W: 'Z', Arg: z}})
	}

	move := gcode.Block{{W: 'G', Arg: 0}, {W: 'X', Arg: x}, {W: 'Y', Arg: y}}
	if w.opt.Laser {
		if !atZ {
			move = append(move, gcode.Word{W: 'Z', Arg: z})
		}
		return w.emit(move)
	}
	if !haveZ {
		return w.emit(move)
	}

	curZ := pos.Z
	if !(curZ >= w.opt.SafeZ) {
		if err := w.emit(gcode.Block{{W: 'G', Arg: 0}, {W: 'Z', Arg: w.opt.SafeZ}}); err != nil {
			return err
		}
		curZ = w.opt.SafeZ
	}
	if err := w.emit(move); err != nil {
		return err
	}
	if isNear(curZ, z) {
		return nil
	}
	return w.emit(gcode.Block{{W: 'G', Arg: 1}, {W: 'Z', Arg: z}})
}
