package grbl

import (
	"bufio"
	"context"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/mastercactapus/engrave/coord"
	"github.com/mastercactapus/engrave/events"
	"github.com/mastercactapus/engrave/gcode"
	"github.com/mastercactapus/engrave/machine"
)

const (
	// DefaultBufferSize is the serial RX buffer of a stock grbl build. The
	// real size is taken from the [OPT:] report when available.
	DefaultBufferSize = 128

	positionEpsilon = 0.0005
)

// Config holds the controller options. The zero value is usable.
type Config struct {
	// BacklashX and BacklashY enable backlash compensation (work units).
	BacklashX, BacklashY float64

	// PollInterval is the status report interval, 1s if unset.
	PollInterval time.Duration

	// Transcript logs every line sent and received.
	Transcript bool
}

type senderState int

const (
	senderIdle senderState = iota
	senderRunning
)

type sentLine struct {
	line string
	n    int
}

// Controller talks to a grbl device over a byte stream. Commands queue
// without bound and are sent by a single background sender that never lets
// the unacknowledged bytes exceed the device buffer. A reader goroutine is
// the only writer of machine state.
type Controller struct {
	rw  io.ReadWriter
	cfg Config

	// wMx serializes writes to rw
	wMx sync.Mutex

	mx      sync.Mutex
	changed chan struct{}
	closeCh chan struct{}
	err     error

	status  machine.Status
	reports int
	modal   *gcode.State
	version string

	settings      Settings
	settingsReady bool
	infoRequested bool

	coords map[string]coord.Point
	tlo    float64
	probes []machine.ProbeResult

	backlash *Backlash

	bufferSize  int
	used        int
	outstanding []sentLine
	queue       []string
	sender      senderState

	// epoch increments whenever the device discards its buffer (alarm,
	// reset) so a sender waiting on budget drops what it prepared.
	epoch int

	hub *events.Hub[Event]
	wg  sync.WaitGroup
}

var _ machine.Adapter = &Controller{}

// NewController starts talking to a grbl device on rw. If rw implements
// io.Closer it is closed when the controller disconnects.
func NewController(rw io.ReadWriter, cfg Config) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	c := &Controller{
		rw:      rw,
		cfg:     cfg,
		changed: make(chan struct{}),
		closeCh: make(chan struct{}),
		status: machine.Status{
			State: machine.StateInit,
			MPos:  coord.Unknown(),
			WPos:  coord.Unknown(),
		},
		modal:      gcode.NewState(),
		settings:   make(Settings),
		coords:     make(map[string]coord.Point),
		backlash:   NewBacklash(cfg.BacklashX, cfg.BacklashY),
		bufferSize: DefaultBufferSize,
		hub:        events.NewHub[Event](),
	}

	c.wg.Add(1)
	go c.pollLoop()
	go c.readLoop()

	return c
}

// Events subscribes to the controller events. The subscription ends after
// the Disconnected event.
func (c *Controller) Events() *events.Subscription[Event] { return c.hub.Subscribe() }

// Close disconnects and waits for the background goroutines to exit.
func (c *Controller) Close() error {
	err := c.disconnect(ErrDisconnected)
	c.wg.Wait()
	return err
}

func (c *Controller) disconnect(cause error) error {
	c.mx.Lock()
	if c.err != nil {
		c.mx.Unlock()
		return nil
	}
	c.err = cause
	close(c.closeCh)
	c.clearBuffers()
	c.backlash.Reset()
	c.setState(machine.StateDisconnected, 0)
	c.hub.Publish(Disconnected{Err: cause})
	c.notify()
	c.mx.Unlock()

	c.hub.Close()
	if closer, ok := c.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// notify wakes everything blocked in waitFor. Called with mx held.
func (c *Controller) notify() {
	close(c.changed)
	c.changed = make(chan struct{})
}

// waitFor blocks until cond, evaluated with mx held, is true.
func (c *Controller) waitFor(ctx context.Context, cond func() bool) error {
	c.mx.Lock()
	defer c.mx.Unlock()
	for !cond() {
		if c.err != nil {
			return ErrDisconnected
		}
		ch := c.changed
		c.mx.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			c.mx.Lock()
			return ctx.Err()
		}
		c.mx.Lock()
	}
	return nil
}

// clearBuffers forgets everything queued or in flight. Called with mx held.
func (c *Controller) clearBuffers() {
	c.outstanding = nil
	c.used = 0
	c.queue = nil
	c.epoch++
}

func (c *Controller) pollLoop() {
	defer c.wg.Done()
	t := time.NewTicker(c.cfg.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-c.closeCh:
			return
		case <-t.C:
			if c.StatusQuery() != nil {
				return
			}
		}
	}
}

func (c *Controller) readLoop() {
	scan := bufio.NewScanner(c.rw)
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" {
			continue
		}
		c.handleLine(line)
	}
	err := scan.Err()
	if err == nil {
		err = io.EOF
	}
	c.mx.Lock()
	closed := c.err != nil
	c.mx.Unlock()
	if !closed {
		log.Println("ERROR: read from device:", err)
	}
	c.disconnect(err)
}

// Push queues lines for sending. Multi-line strings are split; blank lines
// are skipped.
func (c *Controller) Push(lines ...string) {
	c.mx.Lock()
	defer c.mx.Unlock()
	for _, l := range lines {
		for _, s := range strings.Split(l, "\n") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			c.queue = append(c.queue, s)
		}
	}
	c.kick()
	c.notify()
}

// kick starts the sender if there is work and none is running. Called
// with mx held.
func (c *Controller) kick() {
	if c.sender == senderRunning || c.err != nil || len(c.queue) == 0 {
		return
	}
	c.sender = senderRunning
	c.wg.Add(1)
	go c.sendLoop()
}

func (c *Controller) sendLoop() {
	defer c.wg.Done()
	c.mx.Lock()
	defer c.mx.Unlock()
	defer func() {
		c.sender = senderIdle
		c.notify()
	}()

	for c.err == nil && len(c.queue) > 0 {
		raw := c.queue[0]
		c.queue = c.queue[1:]
		if !c.allowed(raw) {
			log.Printf("WARN: dropped %q while %s", raw, c.status.State)
			c.notify()
			continue
		}

		epoch := c.epoch
		for _, line := range c.prepare(raw) {
			if len(line)+1 > c.bufferSize {
				log.Printf("ERROR: dropped %q: longer than the %d byte device buffer", line, c.bufferSize)
				c.modal.Forget()
				c.backlash.Reset()
				continue
			}
			if !c.waitBudget(len(line)+1, epoch) {
				break
			}
			if c.transmit(line) != nil {
				return
			}
		}
		c.notify()
	}
}

// allowed reports whether a line may be sent in the current state. Called
// with mx held.
func (c *Controller) allowed(line string) bool {
	switch c.status.State {
	case machine.StateSleep:
		return false
	case machine.StateAlarm:
		return line == "$X" || line == "$H"
	}
	return true
}

// prepare turns a queued line into the lines to transmit: backlash
// compensation, then the clean form against the modal state. Called with
// mx held.
func (c *Controller) prepare(line string) []string {
	if line[0] == '$' {
		if strings.HasPrefix(line, "$J=") || line == "$H" {
			c.modal.Invalidate()
			c.backlash.Reset()
		}
		return []string{line}
	}

	var res []string
	for _, b := range c.backlash.Apply(gcode.ParseLine(line), c.modal, c.status.WPos) {
		clean := c.modal.Clean(b)
		c.modal.Update(b)
		if clean.IsEmpty() {
			continue
		}
		res = append(res, clean.String())
	}
	return res
}

// waitBudget blocks until n more bytes fit in the device buffer. It
// returns false if the device discarded its buffer or the connection
// closed meanwhile. Called with mx held.
func (c *Controller) waitBudget(n, epoch int) bool {
	for c.bufferSize-c.used < n {
		if c.err != nil || c.epoch != epoch || n > c.bufferSize {
			return false
		}
		ch := c.changed
		c.mx.Unlock()
		<-ch
		c.mx.Lock()
	}
	return c.err == nil && c.epoch == epoch
}

// transmit records line as outstanding and writes it. Called with mx held;
// the lock is released during the write.
func (c *Controller) transmit(line string) error {
	data := line + "\n"
	c.outstanding = append(c.outstanding, sentLine{line: line, n: len(data)})
	c.used += len(data)
	c.hub.Publish(LineSent{Line: line})
	c.mx.Unlock()

	if c.cfg.Transcript {
		log.Println(">", line)
	}
	c.wMx.Lock()
	_, err := io.WriteString(c.rw, data)
	c.wMx.Unlock()
	if err != nil {
		log.Println("ERROR: write to device:", err)
		c.disconnect(err)
	}

	c.mx.Lock()
	return err
}

// Drain blocks until every pushed line has been acknowledged and the
// machine reports Idle. It returns ErrAlarm or ErrGrblReset if the device
// discarded its buffer first.
func (c *Controller) Drain(ctx context.Context) error {
	c.mx.Lock()
	epoch := c.epoch
	c.mx.Unlock()

	err := c.waitFor(ctx, func() bool {
		return c.epoch != epoch ||
			(len(c.queue) == 0 && c.sender == senderIdle && len(c.outstanding) == 0)
	})
	if err != nil {
		return err
	}

	c.mx.Lock()
	st, reset := c.status.State, c.epoch != epoch
	c.mx.Unlock()
	switch {
	case st == machine.StateAlarm:
		return ErrAlarm
	case reset && st != machine.StateDisconnected:
		return ErrGrblReset
	}
	return c.WaitIdle(ctx)
}

// WaitIdle requests a fresh status report and blocks until the machine
// reports Idle (or Check).
func (c *Controller) WaitIdle(ctx context.Context) error {
	c.mx.Lock()
	seen := c.reports
	c.mx.Unlock()

	if err := c.StatusQuery(); err != nil {
		return err
	}

	var alarm bool
	err := c.waitFor(ctx, func() bool {
		if c.reports == seen {
			return false
		}
		switch c.status.State {
		case machine.StateIdle, machine.StateCheck:
			return true
		case machine.StateAlarm:
			alarm = true
			return true
		}
		return false
	})
	if err != nil {
		return err
	}
	if alarm {
		return ErrAlarm
	}
	return nil
}

// Epoch identifies the device buffer lines are currently queued for. It
// changes every time the device discards its buffer: on an alarm, a reset
// or a disconnect.
func (c *Controller) Epoch() int {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.epoch
}

// WaitQueueBelow blocks until fewer than n lines are waiting to be sent.
// Once the device has discarded its buffer after epoch it returns
// ErrAlarm, ErrGrblReset or ErrDisconnected instead.
func (c *Controller) WaitQueueBelow(ctx context.Context, n, epoch int) error {
	err := c.waitFor(ctx, func() bool { return c.epoch != epoch || len(c.queue) < n })
	if err != nil {
		return err
	}
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.epochErr(epoch)
}

// epochErr describes why the buffer of epoch is gone, or returns nil if it
// is still current. Called with mx held.
func (c *Controller) epochErr(epoch int) error {
	switch {
	case c.epoch == epoch:
		return nil
	case c.err != nil:
		return ErrDisconnected
	case c.status.State == machine.StateAlarm:
		return ErrAlarm
	}
	return ErrGrblReset
}

func (c *Controller) Status() machine.Status {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.status
}

func (c *Controller) Settings() Settings {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.settings.Clone()
}

func (c *Controller) Setting(n int) (string, bool) {
	c.mx.Lock()
	defer c.mx.Unlock()
	v, ok := c.settings[n]
	return v, ok
}

// SettingsReady reports whether the settings table has been received.
func (c *Controller) SettingsReady() bool {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.settingsReady
}

// Modal returns a copy of the parser state the sender cleans lines against.
func (c *Controller) Modal() *gcode.State {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.modal.Clone()
}

// Version is the [VER:] build info, once received.
func (c *Controller) Version() string {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.version
}

// CoordinateSystem returns the cached offset of a work coordinate system
// (e.g. "G54", "G92") from the last `$#` report.
func (c *Controller) CoordinateSystem(name string) (coord.Point, bool) {
	c.mx.Lock()
	defer c.mx.Unlock()
	p, ok := c.coords[name]
	return p, ok
}

func (c *Controller) BufferSize() int {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.bufferSize
}

// BytesFree is the device buffer space not taken by unacknowledged lines.
func (c *Controller) BytesFree() int {
	c.mx.Lock()
	defer c.mx.Unlock()
	return c.bufferSize - c.used
}

// Outstanding is the number of lines sent but not yet acknowledged.
func (c *Controller) Outstanding() int {
	c.mx.Lock()
	defer c.mx.Unlock()
	return len(c.outstanding)
}

// Queued is the number of lines waiting to be sent.
func (c *Controller) Queued() int {
	c.mx.Lock()
	defer c.mx.Unlock()
	return len(c.queue)
}

func (c *Controller) Probes() []machine.ProbeResult {
	c.mx.Lock()
	defer c.mx.Unlock()
	return append([]machine.ProbeResult(nil), c.probes...)
}

func (c *Controller) ResetProbes() {
	c.mx.Lock()
	c.probes = nil
	c.mx.Unlock()
}
