package vm

import (
	"errors"
	"math"

	"github.com/mastercactapus/engrave/coord"
	"github.com/mastercactapus/engrave/gcode"
)

// ErrProbeMissed is returned by Run when a G38.2 move ends without contact.
var ErrProbeMissed = errors.New("probe did not contact")

// Machine executes motion lines instantly, tracking the same positions and
// offsets grbl would report.
type Machine struct {
	pos coord.Point
	wco coord.Point

	modal *gcode.State

	// Surface is the machine Z a probe makes contact at.
	Surface float64

	probe      coord.Point
	probeValid bool
	probed     bool
}

func NewMachine() *Machine {
	m := &Machine{modal: gcode.NewState(), Surface: math.Inf(-1)}
	return m
}

// Reset restores power-on modes. Position and offsets are kept, like grbl.
func (m *Machine) Reset() {
	m.modal.Reset()
	m.probed = false
}

func (m *Machine) Inches() bool         { return m.modal.Inches() }
func (m *Machine) RelativeMotion() bool { return m.modal.RelativeMotion() }

func (m *Machine) WPos() coord.Point { return m.pos.Sub(m.wco) }
func (m *Machine) MPos() coord.Point { return m.pos }
func (m *Machine) WCO() coord.Point  { return m.wco }

// Modal returns the active modes, e.g. for a $G report.
func (m *Machine) Modal() *gcode.State { return m.modal }

// SetMPos teleports the machine (homing).
func (m *Machine) SetMPos(p coord.Point) { m.pos = p }

// Probe returns the last probe result, and whether a probe ran since it
// was last read.
func (m *Machine) Probe() (p coord.Point, valid, fresh bool) {
	fresh = m.probed
	m.probed = false
	return m.probe, m.probeValid, fresh
}

func isSupported(g gcode.Word) bool {
	if g.IsAxis() || g.IsComment() {
		return true
	}

	switch g.W {
	case 'G':
		switch g.Arg {
		case 0, 1, 2, 3, 4, 10, 17, 20, 21, 38.2, 53, 54, 90, 91, 91.1, 92, 94:
			return true
		}
	case 'M':
		switch g.Arg {
		case 0, 2, 3, 4, 5, 8, 9, 30:
			return true
		}
	case 'F', 'S', 'T', 'P', 'L', 'I', 'J', 'N':
		return true
	}

	return false
}

func applyBlock(p coord.Point, b gcode.Block, mul float64) coord.Point {
	for _, g := range b {
		switch g.W {
		case 'X':
			p.X = g.Arg * mul
		case 'Y':
			p.Y = g.Arg * mul
		case 'Z':
			p.Z = g.Arg * mul
		}
	}

	return p
}

func (m *Machine) Run(b gcode.Block) error {
	err := b.Validate()
	if err != nil {
		return err
	}
	var machineCoords, setOffset, setTemp, probe bool
	for _, g := range b {
		if !isSupported(g) {
			return errors.New("unsupported code: " + g.String())
		}
		switch {
		case g.Is('G', 53):
			machineCoords = true
		case g.Is('G', 10):
			setOffset = true
		case g.Is('G', 92):
			setTemp = true
		case g.Is('G', 38.2):
			probe = true
		}
	}
	m.modal.Update(b)

	var axes gcode.Block
	for _, g := range b {
		if g.IsAxis() {
			axes = append(axes, g)
		}
	}
	if len(axes) == 0 {
		return nil
	}

	mul := 1.0
	if m.Inches() {
		mul = 25.4
	}

	// offsets: the given axes become the current work position
	if setOffset || setTemp {
		w := applyBlock(m.WPos(), axes, mul)
		m.wco = m.pos.Sub(w)
		return nil
	}

	var target coord.Point
	switch {
	case machineCoords:
		target = applyBlock(m.pos, axes, 1)
	case m.RelativeMotion():
		target = m.pos.Add(applyBlock(coord.Point{}, axes, mul))
	default:
		target = applyBlock(m.WPos(), axes, mul).Add(m.wco)
	}

	if probe {
		m.probed = true
		if target.Z <= m.Surface && m.Surface <= m.pos.Z {
			target.Z = m.Surface
			m.pos = target
			m.probe, m.probeValid = target, true
			return nil
		}
		m.pos = target
		m.probe, m.probeValid = target, false
		return ErrProbeMissed
	}

	m.pos = target
	return nil
}
