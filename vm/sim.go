package vm

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/mastercactapus/engrave/coord"
	"github.com/mastercactapus/engrave/gcode"
	"github.com/mastercactapus/engrave/machine"
)

// Banner is printed on power-up and after a soft reset.
const Banner = "Grbl 1.1h ['$' for help]"

// DefaultSettings is the `$$` table of a freshly flashed controller.
var DefaultSettings = map[int]string{
	0: "10", 1: "25", 2: "0", 3: "0", 4: "0", 5: "0", 6: "0",
	10: "1", 11: "0.010", 12: "0.002", 13: "0",
	20: "0", 21: "0", 22: "0", 23: "0", 24: "25.000", 25: "500.000", 26: "250", 27: "1.000",
	30: "1000", 31: "0", 32: "0",
	100: "250.000", 101: "250.000", 102: "250.000",
	110: "500.000", 111: "500.000", 112: "500.000",
	120: "10.000", 121: "10.000", 122: "10.000",
	130: "200.000", 131: "200.000", 132: "200.000",
}

// Sim is an in-process grbl device. Lines written to it are executed by a
// Machine and answered the way the firmware would; Read returns the
// replies. It keeps a byte count of the lines it has not acknowledged
// yet and records an overflow if a host ever exceeds BufferSize.
type Sim struct {
	BufferSize int

	mx       sync.Mutex
	m        *Machine
	state    machine.State
	settings map[int]string
	ov       machine.Overrides
	feed     float64
	spindle  float64

	line    []byte
	pending []string
	rxUsed  int
	paused  bool

	overflow bool
	received []string

	out     bytes.Buffer
	outCond *sync.Cond
	closed  bool
}

var _ io.ReadWriteCloser = &Sim{}

// NewSim returns a simulator that has just printed its banner.
func NewSim() *Sim {
	s := &Sim{
		BufferSize: 128,
		m:          NewMachine(),
		state:      machine.StateIdle,
		settings:   make(map[int]string, len(DefaultSettings)),
		ov:         machine.Overrides{Feed: 100, Rapid: 100, Spindle: 100},
	}
	s.outCond = sync.NewCond(&s.mx)
	for k, v := range DefaultSettings {
		s.settings[k] = v
	}
	s.reply("", Banner)
	return s
}

// Machine returns the simulated motion state. Callers must not use it
// concurrently with writes.
func (s *Sim) Machine() *Machine { return s.m }

func (s *Sim) Read(p []byte) (int, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	for s.out.Len() == 0 {
		if s.closed {
			return 0, io.EOF
		}
		s.outCond.Wait()
	}
	return s.out.Read(p)
}

func (s *Sim) Close() error {
	s.mx.Lock()
	s.closed = true
	s.outCond.Broadcast()
	s.mx.Unlock()
	return nil
}

func (s *Sim) Write(p []byte) (int, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}

	for _, ch := range p {
		switch {
		case ch == '?':
			s.statusReport()
		case ch == '!':
			if s.state == machine.StateIdle || s.state == machine.StateRun || s.state == machine.StateJog {
				s.state = machine.StateHold
			}
		case ch == '~':
			if s.state == machine.StateHold {
				s.state = machine.StateIdle
				s.process()
			}
		case ch == 0x18:
			s.softReset()
		case ch >= 0x80:
			s.override(ch)
		case ch == '\r':
		case ch == '\n':
			s.pending = append(s.pending, string(s.line))
			s.rxUsed += len(s.line) + 1
			if s.rxUsed > s.BufferSize {
				s.overflow = true
			}
			s.line = s.line[:0]
			s.process()
		default:
			s.line = append(s.line, ch)
		}
	}
	return len(p), nil
}

// Pause stops executing received lines; they stay in the receive buffer
// until Resume.
func (s *Sim) Pause() {
	s.mx.Lock()
	s.paused = true
	s.mx.Unlock()
}

func (s *Sim) Resume() {
	s.mx.Lock()
	s.paused = false
	s.process()
	s.mx.Unlock()
}

// Overflow reports whether the host ever sent more than BufferSize bytes
// of unacknowledged lines.
func (s *Sim) Overflow() bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.overflow
}

// Pending returns the number of received lines not yet acknowledged.
func (s *Sim) Pending() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return len(s.pending)
}

// Received returns every line executed so far.
func (s *Sim) Received() []string {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([]string(nil), s.received...)
}

// Alarm raises an alarm, discarding the receive buffer like the firmware.
func (s *Sim) Alarm(code int) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.alarm(code)
}

func (s *Sim) alarm(code int) {
	s.pending = nil
	s.rxUsed = 0
	s.state = machine.StateAlarm
	s.reply("ALARM:" + strconv.Itoa(code))
}

func (s *Sim) reply(lines ...string) {
	for _, l := range lines {
		s.out.WriteString(l + "\r\n")
	}
	s.outCond.Broadcast()
}

func (s *Sim) softReset() {
	s.pending = nil
	s.rxUsed = 0
	s.line = s.line[:0]
	s.m.Reset()
	switch s.state {
	case machine.StateRun, machine.StateJog, machine.StateHome:
		s.state = machine.StateAlarm
		s.reply("", Banner, "[MSG:'$H'|'$X' to unlock]")
		return
	case machine.StateAlarm:
	default:
		s.state = machine.StateIdle
	}
	s.reply("", Banner)
}

func (s *Sim) override(ch byte) {
	clamp := func(v, lo, hi int) int { return max(lo, min(hi, v)) }
	switch ch {
	case 0x90:
		s.ov.Feed = 100
	case 0x91:
		s.ov.Feed = clamp(s.ov.Feed+10, 10, 200)
	case 0x92:
		s.ov.Feed = clamp(s.ov.Feed-10, 10, 200)
	case 0x93:
		s.ov.Feed = clamp(s.ov.Feed+1, 10, 200)
	case 0x94:
		s.ov.Feed = clamp(s.ov.Feed-1, 10, 200)
	case 0x95:
		s.ov.Rapid = 100
	case 0x96:
		s.ov.Rapid = 50
	case 0x97:
		s.ov.Rapid = 25
	case 0x99:
		s.ov.Spindle = 100
	case 0x9A:
		s.ov.Spindle = clamp(s.ov.Spindle+10, 10, 200)
	case 0x9B:
		s.ov.Spindle = clamp(s.ov.Spindle-10, 10, 200)
	case 0x9C:
		s.ov.Spindle = clamp(s.ov.Spindle+1, 10, 200)
	case 0x9D:
		s.ov.Spindle = clamp(s.ov.Spindle-1, 10, 200)
	}
}

func fmtCoords(p coord.Point) string {
	return fmt.Sprintf("%.3f,%.3f,%.3f", p.X, p.Y, p.Z)
}

func (s *Sim) statusReport() {
	st := s.state.String()
	if s.state == machine.StateHold {
		st = "Hold:0"
	}
	s.reply(fmt.Sprintf("<%s|MPos:%s|Bf:15,%d|FS:%g,%g|WCO:%s|Ov:%d,%d,%d>",
		st, fmtCoords(s.m.MPos()), s.BufferSize-s.rxUsed, s.feed, s.spindle,
		fmtCoords(s.m.WCO()), s.ov.Feed, s.ov.Rapid, s.ov.Spindle))
}

// process executes pending lines unless paused or held.
func (s *Sim) process() {
	for len(s.pending) > 0 && !s.paused && s.state != machine.StateHold {
		line := s.pending[0]
		s.pending = s.pending[1:]
		s.rxUsed -= len(line) + 1
		s.received = append(s.received, line)
		s.execute(line)
	}
}

func (s *Sim) execute(line string) {
	if strings.HasPrefix(line, "$") {
		s.system(line)
		return
	}
	if s.state == machine.StateAlarm {
		s.reply("error:9")
		return
	}

	b := gcode.ParseLine(line)
	if b.IsEmpty() {
		s.reply("ok")
		return
	}
	err := s.m.Run(b)
	if err == ErrProbeMissed {
		s.alarm(5)
		return
	}
	if err != nil {
		s.reply("error:20")
		return
	}
	if ok, f := b.Arg('F'); ok {
		s.feed = f
	}
	if ok, v := b.Arg('S'); ok {
		s.spindle = v
	}
	if p, valid, fresh := s.m.Probe(); fresh {
		flag := "0"
		if valid {
			flag = "1"
		}
		s.reply("[PRB:" + fmtCoords(p) + ":" + flag + "]")
	}
	s.reply("ok")
}

func (s *Sim) system(line string) {
	switch {
	case line == "$$":
		keys := make([]int, 0, len(s.settings))
		for k := range s.settings {
			keys = append(keys, k)
		}
		sort.Ints(keys)
		for _, k := range keys {
			s.reply("$" + strconv.Itoa(k) + "=" + s.settings[k])
		}
	case line == "$I":
		s.reply("[VER:1.1h.20190825:]", "[OPT:V,15,"+strconv.Itoa(s.BufferSize)+"]")
	case line == "$G":
		s.reply("[GC:" + modalReport(s.m.Modal()) + "]")
	case line == "$#":
		wco := s.m.WCO()
		s.reply(
			"[G54:"+fmtCoords(wco)+"]",
			"[G55:0.000,0.000,0.000]",
			"[G56:0.000,0.000,0.000]",
			"[G57:0.000,0.000,0.000]",
			"[G58:0.000,0.000,0.000]",
			"[G59:0.000,0.000,0.000]",
			"[G28:0.000,0.000,0.000]",
			"[G30:0.000,0.000,0.000]",
			"[G92:0.000,0.000,0.000]",
			"[TLO:0.000]",
			"[PRB:0.000,0.000,0.000:0]",
		)
	case line == "$X":
		if s.state == machine.StateAlarm {
			s.state = machine.StateIdle
			s.reply("[MSG:Caution: Unlocked]")
		}
	case line == "$H":
		s.m.SetMPos(coord.Point{})
		s.state = machine.StateIdle
	case line == "$RST=$":
		for k, v := range DefaultSettings {
			s.settings[k] = v
		}
	case line == "$SLP":
		s.state = machine.StateSleep
	case strings.HasPrefix(line, "$J="):
		if s.state == machine.StateAlarm {
			s.reply("error:9")
			return
		}
		// jogs never change the modal state
		dist := s.m.Modal().Value(gcode.SlotDistance)
		err := s.m.Run(gcode.ParseLine(line[3:]))
		s.m.Modal().Set(gcode.SlotDistance, dist)
		if err != nil {
			s.reply("error:16")
			return
		}
	default:
		k, v, ok := strings.Cut(line[1:], "=")
		n, err := strconv.Atoi(k)
		if !ok || err != nil {
			s.reply("error:3")
			return
		}
		s.settings[n] = v
	}
	s.reply("ok")
}

func modalReport(st *gcode.State) string {
	f := func(slot gcode.Slot) string {
		return strconv.FormatFloat(st.Value(slot), 'f', -1, 64)
	}
	return "G" + f(gcode.SlotMotion) +
		" G" + f(gcode.SlotCoordinateSystem) +
		" G" + f(gcode.SlotPlane) +
		" G" + f(gcode.SlotUnits) +
		" G" + f(gcode.SlotDistance) +
		" G" + f(gcode.SlotFeedMode) +
		" M" + f(gcode.SlotSpindle) +
		" M" + f(gcode.SlotCoolant) +
		" T" + f(gcode.SlotTool) +
		" F" + f(gcode.SlotFeed) +
		" S" + f(gcode.SlotSpindleSpeed)
}
