package machine

import (
	"context"
	"errors"

	"github.com/mastercactapus/engrave/gcode"
)

// ErrNoProbe is returned when a probe cycle finished without a [PRB:] report.
var ErrNoProbe = errors.New("no probe data returned")

// ProbeOptions configure a straight z-probe operation.
type ProbeOptions struct {
	ZeroZAxis bool

	// Offset is the work Z assigned to the touch point when ZeroZAxis is set.
	Offset float64

	FeedRate  float64
	MaxTravel float64
}

// ProbeZ performs a straight z-probe from the current location and returns
// to the starting machine height.
func (m *Machine) ProbeZ(ctx context.Context, opt ProbeOptions) (*ProbeResult, error) {
	stat := m.Status()
	if stat.State != StateIdle && stat.State != StateHold {
		return nil, &StateError{Want: StateIdle, Got: stat.State}
	}

	m.ResetProbes()
	err := m.runBlocks(ctx, opt.probeCommand(opt.ZeroZAxis, stat.MPos.Z))
	if err != nil {
		return nil, err
	}
	p := m.Probes()
	if len(p) == 0 {
		return nil, ErrNoProbe
	}

	return &p[0], nil
}

// probeCommand probes down by MaxTravel, optionally zeroes Z and lifts back
// to the machine height lift.
func (opt ProbeOptions) probeCommand(zero bool, lift float64) []gcode.Block {
	b := []gcode.Block{
		{
			{W: 'G', Arg: 91},
		},
		{
			{W: 'G', Arg: 38.2},
			{W: 'Z', Arg: -opt.MaxTravel},
			{W: 'F', Arg: opt.FeedRate},
		},
		{
			{W: 'G', Arg: 90},
		},
	}
	if zero {
		b = append(b, gcode.Block{
			{W: 'G', Arg: 10},
			{W: 'L', Arg: 20},
			{W: 'P', Arg: 0},
			{W: 'Z', Arg: opt.Offset},
		})
	}
	return append(b, rapidMachine(gcode.Word{W: 'Z', Arg: lift}))
}
