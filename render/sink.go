package render

import (
	"bufio"
	"context"
	"io"

	"github.com/mastercactapus/engrave/gcode"
)

// Sink receives rendered lines in order.
type Sink interface {
	Send(gcode.Block) error
	Close() error
}

// Aborter is implemented by sinks that can bring a running machine to a
// safe stop when a render fails.
type Aborter interface {
	Abort(ctx context.Context) error
}

// WriterSink writes lines to a file or any other writer, one per line.
// There is no flow control.
type WriterSink struct {
	w *bufio.Writer
	c io.Closer
}

// NewWriterSink writes to w. Close flushes but leaves w open.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: bufio.NewWriter(w)}
}

// NewFileSink writes to f and closes it on Close.
func NewFileSink(f io.WriteCloser) *WriterSink {
	return &WriterSink{w: bufio.NewWriter(f), c: f}
}

func (s *WriterSink) Send(b gcode.Block) error {
	_, err := s.w.WriteString(b.String() + "\n")
	return err
}

func (s *WriterSink) Close() error {
	err := s.w.Flush()
	if s.c != nil {
		if cErr := s.c.Close(); err == nil {
			err = cErr
		}
	}
	return err
}

// Device is the part of a machine controller a render drives.
type Device interface {
	Push(lines ...string)
	Epoch() int
	WaitQueueBelow(ctx context.Context, n, epoch int) error
	Drain(ctx context.Context) error
	HoldAndReset(ctx context.Context) error
}

// deviceQueueLimit is how many rendered lines may wait in the controller
// queue before Send blocks.
const deviceQueueLimit = 32

// DeviceSink streams lines to a live controller. Once the device drops
// its buffer (alarm or reset) every further Send fails, so a job never
// continues after the machine lost track of it.
type DeviceSink struct {
	ctx   context.Context
	dev   Device
	epoch int
}

// NewDeviceSink streams to dev. Blocking waits end when ctx is done.
func NewDeviceSink(ctx context.Context, dev Device) *DeviceSink {
	return &DeviceSink{ctx: ctx, dev: dev, epoch: dev.Epoch()}
}

// Send queues b once the controller queue is short enough.
func (s *DeviceSink) Send(b gcode.Block) error {
	if err := s.dev.WaitQueueBelow(s.ctx, deviceQueueLimit, s.epoch); err != nil {
		return err
	}
	s.dev.Push(b.String())
	return nil
}

// Close waits for every line to run and the machine to go idle.
func (s *DeviceSink) Close() error {
	if err := s.dev.WaitQueueBelow(s.ctx, 1, s.epoch); err != nil {
		return err
	}
	return s.dev.Drain(s.ctx)
}

// Abort feed-holds and resets the controller.
func (s *DeviceSink) Abort(ctx context.Context) error {
	return s.dev.HoldAndReset(ctx)
}
