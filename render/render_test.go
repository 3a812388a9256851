package render

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gogpu/gg"
	"github.com/mastercactapus/engrave/coord"
	"github.com/mastercactapus/engrave/document"
	"github.com/mastercactapus/engrave/gcode"
	"github.com/mastercactapus/engrave/machine"
	"github.com/mastercactapus/engrave/machine/grbl"
	"github.com/mastercactapus/engrave/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	lines  []string
	closed bool

	// onSend runs after every recorded line
	onSend func(n int)
}

func (r *recorder) Send(b gcode.Block) error {
	r.lines = append(r.lines, b.String())
	if r.onSend != nil {
		r.onSend(len(r.lines))
	}
	return nil
}

func (r *recorder) Close() error {
	r.closed = true
	return nil
}

func (r *recorder) with(prefix string) []string {
	var res []string
	for _, l := range r.lines {
		if strings.HasPrefix(l, prefix) {
			res = append(res, l)
		}
	}
	return res
}

func allEvents(t *testing.T, r *Renderer, sub interface{ C() <-chan Event }) []Event {
	t.Helper()
	r.Close()
	var res []Event
	timeout := time.After(time.Second)
	for {
		select {
		case e, ok := <-sub.C():
			if !ok {
				return res
			}
			res = append(res, e)
		case <-timeout:
			t.Fatal("timeout waiting for events")
		}
	}
}

func TestRender_MultiPass(t *testing.T) {
	rect := document.Rect("r", 0, 0, 10, 5)
	rect.Props.Feed = 100
	rect.Props.ZStart = 0
	rect.Props.ZEnd = -1
	rect.Props.PassDepth = 0.5

	r := New(Options{})
	sub := r.Events()
	var rec recorder
	require.NoError(t, r.Render(context.Background(), document.NewGroup("doc", rect), &rec))

	cuts := []string{"G1X10Y0", "G1X10Y5", "G1X0Y5", "G1X0Y0"}
	var exp []string
	exp = append(exp, "G21", "G90", "F100", "G0Z5", "G0X0Y0", "G1Z0")
	exp = append(exp, cuts...)
	exp = append(exp, "G1Z-0.5")
	exp = append(exp, cuts...)
	exp = append(exp, "G1Z-1")
	exp = append(exp, cuts...)
	exp = append(exp, "M5", "G0Z5", "M2")
	assert.Equal(t, exp, rec.lines)
	assert.True(t, rec.closed)

	ev := allEvents(t, r, sub)
	require.Len(t, ev, 4)
	for i, z := range []float64{0, -0.5, -1} {
		p, ok := ev[i].(Progress)
		require.True(t, ok)
		assert.Equal(t, "doc", p.Group)
		assert.Equal(t, "r", p.Element)
		assert.Equal(t, i+1, p.Pass)
		assert.Equal(t, 3, p.PassCount)
		assert.Equal(t, z, p.Z)
	}
	assert.Equal(t, Finished{Lines: len(exp)}, ev[3])
}

func passGroup(allAtOnce bool) *document.Group {
	g := document.NewGroup("g",
		document.Rect("a", 0, 0, 1, 1),
		document.Rect("b", 5, 5, 1, 1),
	)
	g.Props.AllAtOnce = allAtOnce
	g.Props.ZStart = 0
	g.Props.ZEnd = -1
	g.Props.PassDepth = 1
	return g
}

func TestRender_AllAtOnce(t *testing.T) {
	r := New(Options{})
	var rec recorder
	require.NoError(t, r.Render(context.Background(), document.NewGroup("doc", passGroup(true)), &rec))

	assert.Equal(t, []string{"(g pass 1/2)", "(g pass 2/2)"}, rec.with("("))
	assert.Equal(t, []string{"G0X0Y0", "G0X5Y5", "G0X0Y0", "G0X5Y5"}, rec.with("G0X"))
	assert.Equal(t, []string{"G1Z0", "G1Z0", "G1Z-1", "G1Z-1"}, rec.with("G1Z"))
}

func TestRender_Sequential(t *testing.T) {
	r := New(Options{})
	var rec recorder
	require.NoError(t, r.Render(context.Background(), document.NewGroup("doc", passGroup(false)), &rec))

	assert.Empty(t, rec.with("("))
	assert.Equal(t, []string{"G0X0Y0", "G0X5Y5"}, rec.with("G0X"))
	assert.Equal(t, []string{"G1Z0", "G1Z-1", "G1Z0", "G1Z-1"}, rec.with("G1Z"))
}

func TestRender_Disabled(t *testing.T) {
	g := passGroup(false)
	g.Children[1].(*document.Path).Props.Enabled = false

	r := New(Options{})
	var rec recorder
	require.NoError(t, r.Render(context.Background(), document.NewGroup("doc", g), &rec))
	assert.Equal(t, []string{"G0X0Y0"}, rec.with("G0X"))
}

func TestRender_Power(t *testing.T) {
	rect := document.Rect("r", 0, 0, 1, 1)
	rect.Props.Power = 300
	rect.Props.Feed = 50

	r := New(Options{Laser: true})
	var rec recorder
	require.NoError(t, r.Render(context.Background(), document.NewGroup("doc", rect), &rec))
	assert.Equal(t, []string{"G21", "G90", "F50", "M4S300", "G0X0Y0"}, rec.lines[:5])
}

func TestWalker_SafeMoveTo(t *testing.T) {
	var rec recorder
	w := newWalker(context.Background(), New(Options{SafeZ: 20}), &rec)
	w.modal.SetPosition(coord.Point{X: 0, Y: 0, Z: 5})
	require.NoError(t, w.safeMoveTo(10, 10, 0))
	assert.Equal(t, []string{"G0Z20", "G0X10Y10", "G1Z0"}, rec.lines)

	// same XY only changes height
	rec.lines = nil
	require.NoError(t, w.safeMoveTo(10, 10, -1))
	require.NoError(t, w.safeMoveTo(10, 10, 2))
	assert.Equal(t, []string{"G1Z-1", "G0Z2"}, rec.lines)

	rec.lines = nil
	w = newWalker(context.Background(), New(Options{SafeZ: 20, Laser: true}), &rec)
	w.modal.SetPosition(coord.Point{X: 0, Y: 0, Z: 5})
	require.NoError(t, w.safeMoveTo(10, 10, 0))
	assert.Equal(t, []string{"G0X10Y10Z0"}, rec.lines)
}

func TestRender_PeckDrill(t *testing.T) {
	d := document.NewDrillPoint("d", 3, 4)
	d.Cycle = gcode.Block{{W: 'G', Arg: 83}, {W: 'Z', Arg: -3}, {W: 'R', Arg: 1}, {W: 'Q', Arg: 1}}

	r := New(Options{})
	sub := r.Events()
	var rec recorder
	require.NoError(t, r.Render(context.Background(), document.NewGroup("doc", d), &rec))
	assert.Equal(t, []string{
		"G21", "G90",
		"G0Z5", "G0X3Y4", "G0Z1",
		"G1Z0", "G0Z1",
		"G1Z-1", "G0Z1",
		"G1Z-2", "G0Z1",
		"G1Z-3", "G0Z1",
		"M5", "G0Z5", "M2",
	}, rec.lines)

	ev := allEvents(t, r, sub)
	require.NotEmpty(t, ev)
	p, ok := ev[0].(Progress)
	require.True(t, ok)
	assert.Equal(t, 5, p.PassCount)
}

func TestRender_Drill(t *testing.T) {
	d := document.NewDrillPoint("h", 1, 2)
	d.Props.ZEnd = -2
	d.Props.Feed = 30

	r := New(Options{})
	var rec recorder
	require.NoError(t, r.Render(context.Background(), document.NewGroup("doc", d), &rec))
	assert.Equal(t, []string{
		"G21", "G90", "F30",
		"G0Z5", "G0X1Y2",
		"G1Z-2", "G0Z5",
		"M5", "G0Z5", "M2",
	}, rec.lines)

	r = New(Options{})
	rec = recorder{}
	err := r.Render(context.Background(), document.NewGroup("doc", document.NewDrillPoint("x", 0, 0)), &rec)
	assert.ErrorIs(t, err, ErrNoDrillZ)
}

func TestRender_Pocket(t *testing.T) {
	outline := gg.NewPath()
	outline.Rectangle(0, 0, 10, 10)
	pk := document.NewPocket("p", outline)
	pk.Props.ZStart = -1
	pk.Props.ZEnd = -1

	r := New(Options{ToolDiameter: 2, StepOver: 1})
	var rec recorder
	require.NoError(t, r.Render(context.Background(), document.NewGroup("doc", pk), &rec))
	assert.Equal(t, []string{
		"G21", "G90",
		"G0Z5", "G0X1Y1", "G1Z-1",
		"G1X9Y1", "G1X9Y3",
		"G1X1Y3", "G1X1Y5",
		"G1X9Y5", "G1X9Y7",
		"G1X1Y7", "G1X1Y9",
		"G1X9Y9",
		"M5", "G0Z5", "M2",
	}, rec.lines)
}

func TestRender_PocketNoZ(t *testing.T) {
	outline := gg.NewPath()
	outline.Rectangle(0, 0, 10, 10)

	r := New(Options{})
	sub := r.Events()
	var rec recorder
	err := r.Render(context.Background(), document.NewGroup("doc", document.NewPocket("p", outline)), &rec)
	assert.ErrorIs(t, err, ErrNoPocketZ)
	assert.True(t, rec.closed)

	ev := allEvents(t, r, sub)
	require.NotEmpty(t, ev)
	f, ok := ev[len(ev)-1].(Failed)
	require.True(t, ok)
	assert.ErrorIs(t, f.Err, ErrNoPocketZ)
}

func TestRender_Stop(t *testing.T) {
	rect := document.Rect("r", 0, 0, 10, 5)
	rect.Props.ZStart = 0
	rect.Props.ZEnd = -1
	rect.Props.PassDepth = 0.1

	r := New(Options{})
	sub := r.Events()
	rec := recorder{onSend: func(n int) {
		if n == 5 {
			r.Stop()
		}
	}}
	err := r.Render(context.Background(), document.NewGroup("doc", rect), &rec)
	assert.ErrorIs(t, err, ErrStopped)
	assert.Len(t, rec.lines, 5)
	assert.True(t, rec.closed)

	ev := allEvents(t, r, sub)
	require.NotEmpty(t, ev)
	assert.Equal(t, Finished{Lines: 5, Stopped: true}, ev[len(ev)-1])
}

func TestRender_Running(t *testing.T) {
	r := New(Options{})
	var rec recorder
	var inner error
	rec.onSend = func(n int) {
		if n == 1 {
			inner = r.Render(context.Background(), document.NewGroup("x"), &recorder{})
		}
	}
	require.NoError(t, r.Render(context.Background(), document.NewGroup("doc"), &rec))
	assert.ErrorIs(t, inner, ErrRunning)
}

type fakeDevice struct {
	mx      sync.Mutex
	pushed  []string
	waitErr error
	aborted bool
	drained bool
}

func (d *fakeDevice) Push(lines ...string) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.pushed = append(d.pushed, lines...)
}

func (d *fakeDevice) Epoch() int { return 0 }

func (d *fakeDevice) WaitQueueBelow(context.Context, int, int) error { return d.waitErr }

func (d *fakeDevice) Drain(context.Context) error {
	d.drained = true
	return nil
}

func (d *fakeDevice) HoldAndReset(context.Context) error {
	d.aborted = true
	return nil
}

func TestRender_DeviceFailure(t *testing.T) {
	dev := &fakeDevice{waitErr: errors.New("gone")}

	r := New(Options{})
	sub := r.Events()
	err := r.Render(context.Background(), document.NewGroup("doc", document.Rect("r", 0, 0, 1, 1)), NewDeviceSink(context.Background(), dev))
	assert.EqualError(t, err, "gone")
	assert.True(t, dev.aborted)
	assert.False(t, dev.drained)
	assert.Empty(t, dev.pushed)

	ev := allEvents(t, r, sub)
	require.Len(t, ev, 1)
	assert.IsType(t, Failed{}, ev[0])
}

func TestRender_DeviceSink(t *testing.T) {
	dev := &fakeDevice{}
	r := New(Options{})
	require.NoError(t, r.Render(context.Background(), document.NewGroup("doc", document.Rect("r", 0, 0, 1, 1)), NewDeviceSink(context.Background(), dev)))
	assert.True(t, dev.drained)
	assert.False(t, dev.aborted)
	assert.Equal(t, []string{"G21", "G90", "G0X0Y0"}, dev.pushed[:3])
}

func TestRender_Controller(t *testing.T) {
	sim := vm.NewSim()
	buf := make([]byte, 256)
	sim.Read(buf) // banner

	c := grbl.NewController(sim, grbl.Config{PollInterval: 50 * time.Millisecond})
	defer c.Close()

	rect := document.Rect("r", 0, 0, 10, 5)
	rect.Props.Feed = 200
	rect.Props.ZStart = 0
	rect.Props.ZEnd = -2
	rect.Props.PassDepth = 0.5
	doc := document.NewGroup("doc", document.NewGroup("all", rect))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r := New(Options{})
	require.NoError(t, r.Render(ctx, doc, NewDeviceSink(ctx, c)))

	assert.False(t, sim.Overflow())
	assert.Contains(t, sim.Received(), "M2")
	assert.Equal(t, coord.Point{X: 0, Y: 0, Z: 5}, sim.Machine().WPos())
}

func TestRender_ControllerAlarm(t *testing.T) {
	sim := vm.NewSim()
	buf := make([]byte, 256)
	sim.Read(buf) // banner

	c := grbl.NewController(sim, grbl.Config{PollInterval: 50 * time.Millisecond})
	defer c.Close()

	rect := document.Rect("r", 0, 0, 10, 5)
	rect.Props.Feed = 200
	rect.Props.ZStart = 0
	rect.Props.ZEnd = -5000
	rect.Props.PassDepth = 1

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r := New(Options{})
	sub := r.Events()

	sim.Pause()
	errCh := make(chan error, 1)
	go func() { errCh <- r.Render(ctx, document.NewGroup("doc", rect), NewDeviceSink(ctx, c)) }()
	require.Eventually(t, func() bool { return sim.Pending() > 0 }, 2*time.Second, 5*time.Millisecond)

	sim.Alarm(1)
	sim.Resume()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, grbl.ErrAlarm)
	case <-ctx.Done():
		t.Fatal("render kept running after alarm")
	}

	ev := allEvents(t, r, sub)
	require.NotEmpty(t, ev)
	assert.IsType(t, Failed{}, ev[len(ev)-1])

	c.Unlock()
	require.Eventually(t, func() bool { return c.Status().State == machine.StateIdle }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(200 * time.Millisecond)

	rcv := sim.Received()
	unlocked := -1
	for i, l := range rcv {
		if l == "$X" {
			unlocked = i
		}
	}
	require.NotEqual(t, -1, unlocked)
	for _, l := range rcv[unlocked+1:] {
		assert.True(t, strings.HasPrefix(l, "$"), "job line %q ran after unlock", l)
	}
	assert.NotContains(t, rcv, "M2")
}

func TestWriterSink(t *testing.T) {
	var sb strings.Builder
	s := NewWriterSink(&sb)
	require.NoError(t, s.Send(gcode.MustParseLine("G1 X1 Y2")))
	require.NoError(t, s.Send(gcode.Block{{W: gcode.Comment, Text: "done"}}))
	require.NoError(t, s.Close())
	assert.Equal(t, "G1X1Y2\n(done)\n", sb.String())
}

type closeRecorder struct {
	strings.Builder
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestWriterSink_Close(t *testing.T) {
	var w closeRecorder
	s := NewWriterSink(&w)
	require.NoError(t, s.Send(gcode.MustParseLine("M2")))
	require.NoError(t, s.Close())
	assert.Equal(t, "M2\n", w.String())
	assert.False(t, w.closed)

	var f closeRecorder
	s = NewFileSink(&f)
	require.NoError(t, s.Send(gcode.MustParseLine("M2")))
	require.NoError(t, s.Close())
	assert.Equal(t, "M2\n", f.String())
	assert.True(t, f.closed)
}
