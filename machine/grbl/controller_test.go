package grbl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mastercactapus/engrave/coord"
	"github.com/mastercactapus/engrave/events"
	"github.com/mastercactapus/engrave/machine"
	"github.com/mastercactapus/engrave/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevice never answers; tests feed replies through handleLine.
type fakeDevice struct {
	*io.PipeReader
	w *io.PipeWriter

	mx   sync.Mutex
	sent bytes.Buffer
}

func newFakeDevice() *fakeDevice {
	r, w := io.Pipe()
	return &fakeDevice{PipeReader: r, w: w}
}

func (f *fakeDevice) Write(p []byte) (int, error) {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.sent.Write(p)
}

func (f *fakeDevice) Close() error { return f.PipeReader.Close() }

func (f *fakeDevice) Sent() string {
	f.mx.Lock()
	defer f.mx.Unlock()
	return f.sent.String()
}

func newTestController(t *testing.T, cfg Config) (*Controller, *fakeDevice) {
	t.Helper()
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Hour
	}
	dev := newFakeDevice()
	c := NewController(dev, cfg)
	t.Cleanup(func() { c.Close() })
	return c, dev
}

func collect(t *testing.T, sub *events.Subscription[Event], n int, keep func(Event) bool) []Event {
	t.Helper()
	var res []Event
	timeout := time.After(2 * time.Second)
	for len(res) < n {
		select {
		case e, ok := <-sub.C():
			require.True(t, ok, "subscription closed after %v", res)
			if keep(e) {
				res = append(res, e)
			}
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %v", res)
		}
	}
	return res
}

func TestController_Status(t *testing.T) {
	c, dev := newTestController(t, Config{})
	sub := c.Events()
	defer sub.Close()

	c.handleLine("<Idle|MPos:10.000,20.000,-1.000|FS:0,0|WCO:1.000,2.000,3.000|Ov:100,100,100>")
	st := c.Status()
	assert.Equal(t, machine.StateIdle, st.State)
	assert.True(t, st.WPos.Near(coord.Point{X: 9, Y: 18, Z: -4}, 1e-9))

	// identical report, then a change below the epsilon
	c.handleLine("<Idle|MPos:10.000,20.000,-1.000|FS:0,0|WCO:1.000,2.000,3.000|Ov:100,100,100>")
	c.handleLine("<Run|MPos:10.0001,20.000,-1.000|FS:500,0|Ov:100,100,100>")

	evs := collect(t, sub, 5, func(e Event) bool {
		switch e.(type) {
		case LineReceived, LineSent:
			return false
		}
		return true
	})
	require.IsType(t, PositionChanged{}, evs[0])
	require.IsType(t, OverrideChanged{}, evs[1])
	assert.Equal(t, StateChanged{From: machine.StateInit, To: machine.StateIdle}, evs[2])
	assert.Equal(t, FeedSpindleChanged{Feed: 500}, evs[3])
	assert.Equal(t, StateChanged{From: machine.StateIdle, To: machine.StateRun}, evs[4])

	// the first Idle asks for the build info, offsets, modes and settings
	require.Eventually(t, func() bool { return dev.Sent() == "$I\n$#\n$G\n$$\n" }, time.Second, 5*time.Millisecond)
}

func TestController_WPosReport(t *testing.T) {
	c, _ := newTestController(t, Config{})

	c.handleLine("<Idle|WPos:1.000,1.000,1.000|WCO:1.000,2.000,3.000>")
	st := c.Status()
	assert.True(t, st.MPos.Near(coord.Point{X: 2, Y: 3, Z: 4}, 1e-9))
	assert.True(t, st.WPos.Near(coord.Point{X: 1, Y: 1, Z: 1}, 1e-9))
}

func TestController_Door(t *testing.T) {
	c, _ := newTestController(t, Config{})

	c.handleLine("<Door:2|MPos:0.000,0.000,0.000|Pn:D>")
	st := c.Status()
	assert.Equal(t, machine.StateDoor, st.State)
	assert.Equal(t, 2, st.Substate)
	assert.Equal(t, "D", st.Pins)

	c.handleLine("<Hold:1|MPos:0.000,0.000,0.000>")
	st = c.Status()
	assert.Equal(t, machine.StateHolding, st.State)
	assert.Equal(t, "", st.Pins)
}

func TestController_SettingsReady(t *testing.T) {
	c, _ := newTestController(t, Config{})
	sub := c.Events()
	defer sub.Close()

	c.handleLine("$0=10")
	c.handleLine("$23=3")
	assert.False(t, c.SettingsReady())
	c.handleLine("$132=200.000")
	assert.True(t, c.SettingsReady())

	v, ok := c.Setting(23)
	assert.True(t, ok)
	assert.Equal(t, "3", v)

	evs := collect(t, sub, 1, func(e Event) bool { _, ok := e.(SettingsReady); return ok })
	assert.Equal(t, "200.000", evs[0].(SettingsReady).Settings[132])
}

func TestController_ErrorAck(t *testing.T) {
	c, dev := newTestController(t, Config{})
	sub := c.Events()
	defer sub.Close()

	c.Push("G1X1F100", "G1X2")
	require.Eventually(t, func() bool { return c.Outstanding() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, DefaultBufferSize-len("G1X1F100\n")-len("X2\n"), c.BytesFree())

	// a rejected line leaves the parser state unknown until $G answers
	c.handleLine("error:20")
	require.Eventually(t, func() bool { return c.Outstanding() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "G1X1F100\nX2\n$G\n", dev.Sent())
	assert.True(t, math.IsNaN(c.Modal().Position().X))
	assert.False(t, c.Modal().RelativeMotion())

	c.handleLine("ok")
	assert.Equal(t, 1, c.Outstanding())
	c.handleLine("ok")
	assert.Equal(t, 0, c.Outstanding())
	assert.Equal(t, DefaultBufferSize, c.BytesFree())

	evs := collect(t, sub, 1, func(e Event) bool { _, ok := e.(ErrorReceived); return ok })
	assert.Equal(t, ErrorReceived{Code: 20, Line: "G1X1F100"}, evs[0])
}

func TestController_ErrorForgetsPosition(t *testing.T) {
	c, sim := newSimController(t)
	sub := c.Events()
	defer sub.Close()

	c.Push("G1X10Y10F100", "G1X20X20Y20")
	collect(t, sub, 1, func(e Event) bool { _, ok := e.(ErrorReceived); return ok })

	// X20 was never reached, so it must not be stripped
	c.Push("G1X20Y30")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Drain(ctx))
	assert.Equal(t, coord.Point{X: 20, Y: 30}, sim.Machine().WPos())
}

func TestController_LongLine(t *testing.T) {
	c, dev := newTestController(t, Config{})

	c.Push("$N0="+strings.Repeat("G4P0", 40), "G1X1F100")
	require.Eventually(t, func() bool { return c.Queued() == 0 && c.Outstanding() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "G1X1F100\n", dev.Sent())
	assert.Equal(t, DefaultBufferSize-len("G1X1F100\n"), c.BytesFree())
}

func TestController_CleanForm(t *testing.T) {
	c, dev := newTestController(t, Config{})

	c.Push("G1 X10 F100 (first)", "G1 X10 F100", "G1 X20 F100", "M5", "G4 P1")
	require.Eventually(t, func() bool { return c.Queued() == 0 && c.Outstanding() == 3 }, time.Second, 5*time.Millisecond)

	// duplicates are dropped entirely, default modes are never sent
	assert.Equal(t, "G1X10F100\nX20\nG4P1\n", dev.Sent())
	assert.Equal(t, 20.0, c.Modal().Position().X)
}

func TestController_Backlash(t *testing.T) {
	c, dev := newTestController(t, Config{BacklashX: 0.2})

	c.Push("G1X10F100", "G1X20", "G1X15")
	require.Eventually(t, func() bool { return c.Outstanding() == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "G1X10F100\nX20\nX19.8\nX14.8\n", dev.Sent())
}

func TestController_AlarmFilter(t *testing.T) {
	c, dev := newTestController(t, Config{})

	c.handleLine("ALARM:1")
	assert.Equal(t, machine.StateAlarm, c.Status().State)

	c.Push("G0X1", "$X")
	require.Eventually(t, func() bool { return c.Outstanding() == 1 && c.Queued() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "$X\n", dev.Sent())
}

func TestController_Realtime(t *testing.T) {
	c, dev := newTestController(t, Config{})

	// fill the buffer; nothing is ever acknowledged
	for i := 0; i < 10; i++ {
		c.Push(fmt.Sprintf("G1X%d.123Y%d.456Z%d.789", i+10, i+10, i+10))
	}
	require.Eventually(t, func() bool { return c.Outstanding() == 5 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.FeedHold())
	require.NoError(t, c.Override(OvFeedPlus10))
	assert.True(t, strings.HasSuffix(dev.Sent(), "!\x91"))
	assert.Error(t, c.Override(CmdSoftReset))
}

func TestController_Offsets(t *testing.T) {
	c, _ := newTestController(t, Config{})

	c.handleLine("<Idle|MPos:10.000,10.000,0.000|WCO:0.000,0.000,0.000>")
	c.handleLine("[G54:5.000,4.000,-1.000]")
	c.handleLine("[G55:1.000,1.000,1.000]")
	c.handleLine("[TLO:0.500]")

	st := c.Status()
	assert.True(t, st.WCO.Near(coord.Point{X: 5, Y: 4, Z: -0.5}, 1e-9))
	assert.True(t, st.WPos.Near(coord.Point{X: 5, Y: 6, Z: 0.5}, 1e-9))

	p, ok := c.CoordinateSystem("G55")
	assert.True(t, ok)
	assert.Equal(t, coord.Point{X: 1, Y: 1, Z: 1}, p)
}

func TestController_Banner(t *testing.T) {
	c, _ := newTestController(t, Config{})

	c.handleLine("[OPT:V,15,256]")
	assert.Equal(t, 256, c.BufferSize())
	c.handleLine("[GC:G1 G54 G17 G21 G91 G94 M5 M9 T0 F500 S0]")
	assert.True(t, c.Modal().RelativeMotion())
	c.handleLine("[PRB:1.000,2.000,-3.000:1]")
	require.Len(t, c.Probes(), 1)
	assert.True(t, c.Probes()[0].Valid)

	c.handleLine("<Idle|MPos:0.000,0.000,0.000>")
	c.handleLine("Grbl 1.1h ['$' for help]")
	assert.Equal(t, DefaultBufferSize, c.BufferSize())
	assert.Equal(t, machine.StateInit, c.Status().State)
	assert.False(t, c.Modal().RelativeMotion())
	assert.Empty(t, c.Probes())
	assert.Equal(t, 0, c.Queued())
}

// newSim returns a simulator with its power-on banner already consumed,
// so the banner cannot reset a controller after lines were pushed.
func newSim() *vm.Sim {
	sim := vm.NewSim()
	buf := make([]byte, 256)
	sim.Read(buf)
	return sim
}

func newSimController(t *testing.T) (*Controller, *vm.Sim) {
	t.Helper()
	sim := newSim()
	c := NewController(sim, Config{PollInterval: 50 * time.Millisecond})
	t.Cleanup(func() { c.Close() })
	return c, sim
}

func TestController_AlarmRecovery(t *testing.T) {
	sim := newSim()
	sim.Pause()
	c := NewController(sim, Config{PollInterval: time.Hour})
	defer c.Close()

	// three lines fit the 128 byte buffer, the fourth waits in the sender
	for i := 0; i < 6; i++ {
		c.Push(fmt.Sprintf("G1X%d.111Y%d.222Z%d.333", i+100000, i+100000, i+100000))
	}
	require.Eventually(t, func() bool {
		return c.Outstanding() == 3 && c.Queued() == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, sim.Pending())
	assert.False(t, sim.Overflow())

	sim.Alarm(1)
	require.Eventually(t, func() bool {
		return c.Status().State == machine.StateAlarm
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, c.Outstanding())
	assert.Equal(t, 0, c.Queued())
	assert.Equal(t, c.BufferSize(), c.BytesFree())

	// the line held by the sender is dropped too
	sim.Resume()
	c.Unlock()
	require.Eventually(t, func() bool { return c.Outstanding() == 0 && c.Queued() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"$X"}, sim.Received())
}

func TestController_FlowControl(t *testing.T) {
	c, sim := newSimController(t)
	sim.Pause()

	var lines []string
	for i := 0; i < 40; i++ {
		lines = append(lines, fmt.Sprintf("G1X%d.5Y%d.25F%d", i, i*2, 100+i))
	}
	c.Push(lines...)

	require.Eventually(t, func() bool { return c.Outstanding() > 0 }, time.Second, 5*time.Millisecond)
	for i := 0; i < 20; i++ {
		free := c.BytesFree()
		assert.GreaterOrEqual(t, free, 0)
		assert.LessOrEqual(t, free, c.BufferSize())
		time.Sleep(time.Millisecond)
	}
	assert.False(t, sim.Overflow())

	sim.Resume()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Drain(ctx))
	require.Eventually(t, func() bool {
		return c.Outstanding() == 0 && c.Queued() == 0 && c.BytesFree() == c.BufferSize()
	}, time.Second, 5*time.Millisecond)
	assert.False(t, sim.Overflow())

	var moves int
	for _, l := range sim.Received() {
		if !strings.HasPrefix(l, "$") {
			moves++
		}
	}
	assert.Equal(t, 40, moves)
	assert.True(t, c.SettingsReady())
}

func TestController_HoldAndReset(t *testing.T) {
	c, _ := newSimController(t)
	sub := c.Events()
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.HoldAndReset(ctx))

	// feed hold, then the reset banner
	collect(t, sub, 1, func(e Event) bool { s, ok := e.(StateChanged); return ok && s.To == machine.StateHold })
	collect(t, sub, 1, func(e Event) bool { m, ok := e.(Message); return ok && strings.HasPrefix(m.Text, "Grbl") })
}

func TestController_Close(t *testing.T) {
	c, _ := newSimController(t)
	sub := c.Events()

	require.NoError(t, c.Close())
	evs := collect(t, sub, 1, func(e Event) bool { _, ok := e.(Disconnected); return ok })
	assert.Equal(t, Disconnected{Err: ErrDisconnected}, evs[0])

	assert.ErrorIs(t, c.StatusQuery(), ErrDisconnected)
	assert.ErrorIs(t, c.Drain(context.Background()), ErrDisconnected)
}
