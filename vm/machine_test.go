package vm

import (
	"testing"

	"github.com/mastercactapus/engrave/coord"
	"github.com/mastercactapus/engrave/gcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, m *Machine, lines ...string) {
	t.Helper()
	for _, l := range lines {
		require.NoError(t, m.Run(gcode.ParseLine(l)), l)
	}
}

func TestMachine_Moves(t *testing.T) {
	m := NewMachine()
	run(t, m, "G0 X10 Y10", "G1 Z-1 F100")
	assert.Equal(t, coord.Point{X: 10, Y: 10, Z: -1}, m.MPos())

	run(t, m, "G91", "X1 Y-1", "G90")
	assert.Equal(t, coord.Point{X: 11, Y: 9, Z: -1}, m.MPos())

	run(t, m, "G20", "G0 X1")
	assert.InDelta(t, 25.4, m.MPos().X, 1e-9)
	assert.True(t, m.Inches())
}

func TestMachine_Offsets(t *testing.T) {
	m := NewMachine()
	run(t, m, "G0 X10 Y20 Z5", "G10 L20 P0 X0 Y0 Z0")
	assert.Equal(t, coord.Point{X: 10, Y: 20, Z: 5}, m.WCO())
	assert.Equal(t, coord.Point{}, m.WPos())

	run(t, m, "G0 X1")
	assert.Equal(t, coord.Point{X: 11, Y: 20, Z: 5}, m.MPos())

	run(t, m, "G53 G0 Z0")
	assert.Equal(t, coord.Point{X: 11, Y: 20}, m.MPos())
	assert.Equal(t, -5.0, m.WPos().Z)
}

func TestMachine_Probe(t *testing.T) {
	m := NewMachine()
	m.Surface = -2
	run(t, m, "G91", "G38.2 Z-5 F50")

	p, valid, fresh := m.Probe()
	assert.True(t, valid)
	assert.True(t, fresh)
	assert.Equal(t, -2.0, p.Z)
	assert.Equal(t, -2.0, m.MPos().Z)

	_, _, fresh = m.Probe()
	assert.False(t, fresh)

	m.Surface = -10
	err := m.Run(gcode.ParseLine("G38.2 Z-1 F50"))
	assert.ErrorIs(t, err, ErrProbeMissed)
	_, valid, fresh = m.Probe()
	assert.False(t, valid)
	assert.True(t, fresh)
}

func TestMachine_Unsupported(t *testing.T) {
	m := NewMachine()
	assert.Error(t, m.Run(gcode.ParseLine("G81 X1 Y1 R1 Z-1")))
	assert.Error(t, m.Run(gcode.ParseLine("G0 G1 X1")))
}
