// Package render turns a document tree into an ordered stream of gcode
// lines. Properties are merged down the tree as it is walked; every element
// is cut once per pass height, or, below an all-at-once group, every child
// is cut at one height before the group steps down to the next.
package render

import (
	"context"
	"errors"
	"log"
	"math"
	"sync/atomic"
	"time"

	"github.com/mastercactapus/engrave/document"
	"github.com/mastercactapus/engrave/engrave"
	"github.com/mastercactapus/engrave/events"
	"github.com/mastercactapus/engrave/gcode"
)

var (
	// ErrStopped is returned by Render after Stop.
	ErrStopped = errors.New("render stopped")

	// ErrRunning is returned when Render is called during another render.
	ErrRunning = errors.New("render already running")

	// ErrNoPocketZ is returned when a pocket would be cut without a Z
	// level outside laser mode.
	ErrNoPocketZ = errors.New("pocket pass has no Z level")

	// ErrNoDrillZ is returned when a drill has no bottom outside laser
	// mode.
	ErrNoDrillZ = errors.New("drill has no depth")
)

// Defaults for zero Options fields.
const (
	DefaultSafeZ        = 5
	DefaultToolDiameter = 1
	DefaultStepOver     = 0.5
	DefaultTolerance    = 0.01
)

const abortTimeout = 10 * time.Second

type Options struct {
	// SafeZ is the work Z travel moves happen at.
	SafeZ float64

	// ToolDiameter and StepOver (a fraction of the diameter) space the
	// rows of pocket fills.
	ToolDiameter float64
	StepOver     float64

	// Tolerance is the maximum distance between a curve and the segments
	// it is flattened to.
	Tolerance float64

	// Laser combines travel moves into a single rapid and turns the beam
	// on with M4.
	Laser bool

	// Defaults are the properties the document root inherits from. Nil
	// means engrave.New().
	Defaults *engrave.Properties
}

func (o Options) withDefaults() Options {
	if o.SafeZ == 0 {
		o.SafeZ = DefaultSafeZ
	}
	if o.ToolDiameter <= 0 {
		o.ToolDiameter = DefaultToolDiameter
	}
	if o.StepOver <= 0 || o.StepOver > 1 {
		o.StepOver = DefaultStepOver
	}
	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.Defaults == nil {
		p := engrave.New()
		o.Defaults = &p
	}
	return o
}

// Renderer renders documents one at a time.
type Renderer struct {
	opt Options
	hub *events.Hub[Event]

	stop    atomic.Bool
	running atomic.Bool
}

func New(opt Options) *Renderer {
	return &Renderer{opt: opt.withDefaults(), hub: events.NewHub[Event]()}
}

// Events subscribes to progress and completion events.
func (r *Renderer) Events() *events.Subscription[Event] { return r.hub.Subscribe() }

// Stop ends the running render before its next line. The lines already
// sent still run; Render returns ErrStopped.
func (r *Renderer) Stop() { r.stop.Store(true) }

// Close ends every event subscription.
func (r *Renderer) Close() { r.hub.Close() }

// Render walks doc and sends the resulting lines to sink, then closes it.
//
// If anything fails (the sink, the context, or the document itself) the
// sink is aborted when it implements Aborter, a Failed event is published
// and the error returned.
func (r *Renderer) Render(ctx context.Context, doc *document.Group, sink Sink) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer r.running.Store(false)
	r.stop.Store(false)

	w := newWalker(ctx, r, sink)
	err := w.run(doc)
	switch {
	case err == nil:
		if err = sink.Close(); err != nil {
			r.hub.Publish(Failed{Err: err})
			return err
		}
		r.hub.Publish(Finished{Lines: w.lines})
		return nil
	case errors.Is(err, ErrStopped):
		if cErr := sink.Close(); cErr != nil {
			log.Println("ERROR: close after stop:", cErr)
		}
		r.hub.Publish(Finished{Lines: w.lines, Stopped: true})
		return err
	}

	r.abort(sink)
	r.hub.Publish(Failed{Err: err})
	return err
}

func (r *Renderer) abort(sink Sink) {
	a, ok := sink.(Aborter)
	if !ok {
		if err := sink.Close(); err != nil {
			log.Println("ERROR: close after failure:", err)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), abortTimeout)
	defer cancel()
	if err := a.Abort(ctx); err != nil {
		log.Println("ERROR: abort:", err)
	}
}

// isNear compares heights, treating two unknowns as equal.
func isNear(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return math.Abs(a-b) < 1e-6
}

// sendable drops the words a device would reject.
func sendable(b gcode.Block) gcode.Block {
	res := make(gcode.Block, 0, len(b))
	for _, w := range b {
		if w.W == gcode.Undefined || w.W == gcode.Percent {
			continue
		}
		res = append(res, w)
	}
	return res
}
