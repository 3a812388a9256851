package meshlevel

import (
	"context"
	"math"

	"github.com/mastercactapus/engrave/coord"
	"github.com/mastercactapus/engrave/gcode"
)

// Sink receives the leveled lines.
type Sink interface {
	Send(gcode.Block) error
	Close() error
}

type Config struct {
	ZOffsetter  ZOffsetter
	Granularity float64

	// Position is the work position the first line starts from. Unknown
	// axes leave lines untouched until an absolute move sets them.
	Position coord.Point

	Next Sink
}

// Leveler splits straight moves longer than the granularity and raises or
// lowers each piece by the surface height under it.
type Leveler struct {
	granularity float64
	offsetter   ZOffsetter

	state *gcode.State
	next  Sink
}

func New(cfg Config) *Leveler {
	l := &Leveler{
		granularity: cfg.Granularity,
		offsetter:   cfg.ZOffsetter,
		state:       gcode.NewState(),
		next:        cfg.Next,
	}
	if l.offsetter == nil {
		l.offsetter = flat{}
	}
	l.state.SetPosition(cfg.Position)
	return l
}

func (l *Leveler) offset(x, y float64) float64 {
	ok, z := l.offsetter.OffsetZ(x, y)
	if !ok {
		return 0
	}
	return z
}

func known(p coord.Point) bool { return p.Known() && !math.IsNaN(p.Z) }

func (l *Leveler) Send(b gcode.Block) error {
	from := l.state.Position()
	l.state.Update(b)
	to := l.state.Position()

	if !b.IsMove() || b.IsArc() || b.IsSpline() || !known(from) || !known(to) {
		return l.next.Send(b)
	}

	n := 1
	if dist := from.DistanceXY(to.X, to.Y); l.granularity > 0 && dist > l.granularity {
		n = int(math.Ceil(dist / l.granularity))
	}
	step := to.Sub(from).Div(float64(n))
	rel := l.state.RelativeMotion()

	prev := from
	for i := 1; i <= n; i++ {
		pt := from.Add(step.Mul(float64(i)))
		if i == n {
			pt = to
		}

		var bl gcode.Block
		if rel {
			d := pt.Sub(prev)
			dz := d.Z + l.offset(pt.X, pt.Y) - l.offset(prev.X, prev.Y)
			bl = setAxes(b, d.X, d.Y, dz, dz != 0)
		} else {
			bl = setAxes(b, pt.X, pt.Y, pt.Z+l.offset(pt.X, pt.Y), true)
		}
		if err := l.next.Send(bl); err != nil {
			return err
		}
		prev = pt
	}
	return nil
}

func setAxes(b gcode.Block, x, y, z float64, withZ bool) gcode.Block {
	bl := b.Clone()
	if b.Has('X') {
		bl = bl.SetArg('X', x)
	}
	if b.Has('Y') {
		bl = bl.SetArg('Y', y)
	}
	if withZ || b.Has('Z') {
		bl = bl.SetArg('Z', z)
	}
	return bl
}

func (l *Leveler) Close() error { return l.next.Close() }

// Abort forwards to the next sink if it can abort, otherwise closes it.
func (l *Leveler) Abort(ctx context.Context) error {
	if a, ok := l.next.(interface{ Abort(context.Context) error }); ok {
		return a.Abort(ctx)
	}
	return l.next.Close()
}
