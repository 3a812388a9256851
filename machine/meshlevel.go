package machine

import (
	"github.com/mastercactapus/engrave/coord"
	"github.com/mastercactapus/engrave/meshlevel"
)

// Level returns a sink that corrects every move sent to next by the surface
// described by probe points (machine coordinates, as returned by
// ProbeZGrid).
func (m *Machine) Level(next meshlevel.Sink, granularity float64, points []coord.Point) (*meshlevel.Leveler, error) {
	if err := m.idle(); err != nil {
		return nil, err
	}
	stat := m.Status()

	mesh, err := meshlevel.NewMesh(meshlevel.OffsetFrom(stat.WCO, points))
	if err != nil {
		return nil, err
	}

	return meshlevel.New(meshlevel.Config{
		ZOffsetter:  mesh,
		Position:    stat.WPos,
		Granularity: granularity,
		Next:        next,
	}), nil
}
