package machine

import (
	"context"

	"github.com/mastercactapus/engrave/coord"
	"github.com/mastercactapus/engrave/gcode"
)

// Machine runs higher level routines (probing, leveling) on a connected
// controller.
type Machine struct {
	Adapter
}

// ProbeResult is the payload of a finished probe cycle.
type ProbeResult struct {
	coord.Point
	Valid bool
}

func NewMachine(a Adapter) *Machine {
	return &Machine{Adapter: a}
}

func (m *Machine) runBlocks(ctx context.Context, b []gcode.Block) error {
	lines := make([]string, len(b))
	for i, bl := range b {
		lines[i] = bl.String()
	}
	m.Adapter.Push(lines...)
	return m.Adapter.Drain(ctx)
}

func (m *Machine) idle() error {
	st := m.Status().State
	if st != StateIdle {
		return &StateError{Want: StateIdle, Got: st}
	}
	return nil
}

// StateError is returned when a routine requires a different machine state.
type StateError struct {
	Want, Got State
}

func (e *StateError) Error() string {
	return "machine " + e.Got.String() + ", expected " + e.Want.String()
}

func rapidMachine(axes ...gcode.Word) gcode.Block {
	return append(gcode.Block{{W: 'G', Arg: 53}, {W: 'G', Arg: 0}}, axes...)
}
