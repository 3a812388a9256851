package grbl

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mastercactapus/engrave/gcode"
	"github.com/mastercactapus/engrave/machine"
)

// Realtime control bytes. They are acted on by grbl as soon as they are
// received, independent of the line buffer.
const (
	CmdSoftReset   byte = 0x18
	CmdStatusQuery byte = '?'
	CmdCycleStart  byte = '~'
	CmdFeedHold    byte = '!'
	CmdSafetyDoor  byte = 0x84
	CmdJogCancel   byte = 0x85

	OvFeedReset       byte = 0x90
	OvFeedPlus10      byte = 0x91
	OvFeedMinus10     byte = 0x92
	OvFeedPlus1       byte = 0x93
	OvFeedMinus1      byte = 0x94
	OvRapidReset      byte = 0x95
	OvRapidHalf       byte = 0x96
	OvRapidQuarter    byte = 0x97
	OvSpindleReset    byte = 0x99
	OvSpindlePlus10   byte = 0x9A
	OvSpindleMinus10  byte = 0x9B
	OvSpindlePlus1    byte = 0x9C
	OvSpindleMinus1   byte = 0x9D
	ToggleSpindleStop byte = 0x9E
	ToggleFlood       byte = 0xA0
	ToggleMist        byte = 0xA1
)

const (
	holdAttempts = 20
	holdPoll     = 100 * time.Millisecond
)

// Realtime writes a single control byte immediately, bypassing the queue
// and the buffer budget.
func (c *Controller) Realtime(b byte) error {
	select {
	case <-c.closeCh:
		return ErrDisconnected
	default:
	}
	if c.cfg.Transcript && b != CmdStatusQuery {
		log.Printf("> 0x%02x", b)
	}

	c.wMx.Lock()
	_, err := c.rw.Write([]byte{b})
	c.wMx.Unlock()
	if err != nil {
		log.Println("ERROR: write to device:", err)
		c.disconnect(err)
		return err
	}
	return nil
}

func (c *Controller) FeedHold() error    { return c.Realtime(CmdFeedHold) }
func (c *Controller) CycleStart() error  { return c.Realtime(CmdCycleStart) }
func (c *Controller) JogCancel() error   { return c.Realtime(CmdJogCancel) }
func (c *Controller) StatusQuery() error { return c.Realtime(CmdStatusQuery) }

// Override sends one of the feed, rapid or spindle override steps
// (0x90-0x9D).
func (c *Controller) Override(cmd byte) error {
	if cmd < OvFeedReset || cmd > OvSpindleMinus1 {
		return fmt.Errorf("invalid override command 0x%02x", cmd)
	}
	return c.Realtime(cmd)
}

// SoftReset resets grbl. Everything queued or in flight is dropped.
func (c *Controller) SoftReset() error {
	err := c.Realtime(CmdSoftReset)

	c.mx.Lock()
	c.clearBuffers()
	c.backlash.Reset()
	c.modal.Invalidate()
	c.notify()
	c.mx.Unlock()

	return err
}

// HoldAndReset brings the machine to a controlled stop: a feed hold, a
// bounded wait for Hold (or Alarm), then a soft reset regardless.
func (c *Controller) HoldAndReset(ctx context.Context) error {
	if err := c.FeedHold(); err != nil {
		return err
	}

	stopped := func() bool {
		st := c.status.State
		return st == machine.StateHold || st == machine.StateAlarm
	}
	for i := 0; i < holdAttempts; i++ {
		if err := c.StatusQuery(); err != nil {
			return err
		}
		wctx, cancel := context.WithTimeout(ctx, holdPoll)
		err := c.waitFor(wctx, stopped)
		cancel()
		if err == nil || ctx.Err() != nil {
			break
		}
		if errors.Is(err, ErrDisconnected) {
			return err
		}
	}

	return c.SoftReset()
}

// Jog queues a relative jog. Zero distances are left out.
func (c *Controller) Jog(x, y, z, feed float64) {
	b := gcode.Block{{W: 'G', Arg: 91}}
	for _, w := range []gcode.Word{{W: 'X', Arg: x}, {W: 'Y', Arg: y}, {W: 'Z', Arg: z}} {
		if w.Arg != 0 {
			b = append(b, w)
		}
	}
	b = append(b, gcode.Word{W: 'F', Arg: feed})
	c.Push("$J=" + b.String())
}

func (c *Controller) Home()          { c.Push("$H") }
func (c *Controller) Unlock()        { c.Push("$X") }
func (c *Controller) ResetSettings() { c.Push("$RST=$") }

// SetSetting queues `$n=value` and records the value locally.
func (c *Controller) SetSetting(n int, value string) {
	c.Push(fmt.Sprintf("$%d=%s", n, value))

	c.mx.Lock()
	c.settings[n] = value
	c.mx.Unlock()
}
