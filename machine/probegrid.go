package machine

import (
	"context"
	"math"

	"github.com/mastercactapus/engrave/coord"
	"github.com/mastercactapus/engrave/gcode"
)

// ProbeGridOptions configure a grid-pattern z-probe operation.
type ProbeGridOptions struct {
	ProbeOptions

	DistanceX, DistanceY float64
	Granularity          float64
}

// ProbeZGrid performs a quick five point scan to find the highest surface
// point, then a dense zig-zag grid at that height. The returned points are
// in machine coordinates.
func (m *Machine) ProbeZGrid(ctx context.Context, opt ProbeGridOptions) ([]ProbeResult, error) {
	if err := m.idle(); err != nil {
		return nil, err
	}
	stat := m.Status()

	m.ResetProbes()
	err := m.runBlocks(ctx, opt.generateGridQuick(stat.MPos))
	if err != nil {
		return nil, err
	}

	startProbes := m.Probes()
	if len(startProbes) == 0 {
		return nil, ErrNoProbe
	}

	maxZ := startProbes[0].Z
	for _, p := range startProbes[1:] {
		maxZ = math.Max(maxZ, p.Z)
	}
	maxZ += 0.2

	m.ResetProbes()
	err = m.runBlocks(ctx, opt.generateGridSequence(stat.MPos, maxZ))
	if err != nil {
		return nil, err
	}

	return m.Probes(), nil
}

func moveXY(mPos coord.Point, x, y float64) gcode.Block {
	return rapidMachine(gcode.Word{W: 'X', Arg: mPos.X + x}, gcode.Word{W: 'Y', Arg: mPos.Y + y})
}

// generateGridQuick probes the origin, the far corners and the center from
// the current height.
func (opt ProbeGridOptions) generateGridQuick(mPos coord.Point) []gcode.Block {
	b := opt.probeCommand(opt.ZeroZAxis, mPos.Z)

	probe := func(x, y float64) {
		b = append(b, moveXY(mPos, x, y))
		b = append(b, opt.probeCommand(false, mPos.Z)...)
	}
	probe(0, opt.DistanceY)
	probe(opt.DistanceX/2, opt.DistanceY/2)
	probe(opt.DistanceX, 0)
	probe(opt.DistanceX, opt.DistanceY)

	return append(b, moveXY(mPos, 0, 0))
}

// generateGridSequence generates a scan where no two points are farther
// than Granularity apart, lifting to zHeight between points and returning
// to mPos after.
func (opt ProbeGridOptions) generateGridSequence(mPos coord.Point, zHeight float64) []gcode.Block {
	opt.MaxTravel += zHeight - mPos.Z

	xyDist := math.Sqrt(opt.Granularity * opt.Granularity / 2)

	xCount := max(int(math.Ceil(opt.DistanceX/xyDist)), 1)
	yCount := max(int(math.Ceil(opt.DistanceY/xyDist)), 1)

	b := []gcode.Block{rapidMachine(gcode.Word{W: 'Z', Arg: zHeight})}
	for y := 0; y <= yCount; y++ {
		for x := 0; x <= xCount; x++ {
			xVal := opt.DistanceX / float64(xCount) * float64(x)
			if y%2 != 0 {
				xVal = opt.DistanceX - xVal
			}
			b = append(b, moveXY(mPos, xVal, opt.DistanceY/float64(yCount)*float64(y)))
			b = append(b, opt.probeCommand(false, zHeight)...)
		}
	}

	return append(b,
		rapidMachine(gcode.Word{W: 'Z', Arg: mPos.Z}),
		moveXY(mPos, 0, 0),
	)
}
