package grbl

import (
	"math"

	"github.com/mastercactapus/engrave/coord"
	"github.com/mastercactapus/engrave/gcode"
)

const backlashEpsilon = 1e-6

var backlashAxes = [2]byte{'X', 'Y'}

// Backlash adds a per-axis offset to X and Y destinations that flips on
// every direction reversal, arcs included. Feed moves (G1) that reverse
// first get a short take-up move so the slack is gone before cutting
// starts. Z is never compensated.
type Backlash struct {
	slack [2]float64

	seeded bool

	// dir is true for positive travel; dirKnown is false until the axis
	// has moved (or homing told us).
	dir      [2]bool
	dirKnown [2]bool

	offset    [2]float64
	requested [2]float64
	corrected [2]float64
}

func NewBacklash(x, y float64) *Backlash {
	bl := &Backlash{slack: [2]float64{x, y}}
	bl.Reset()
	return bl
}

func (bl *Backlash) Enabled() bool { return bl.slack[0] != 0 || bl.slack[1] != 0 }

// Reset forgets the last destination and offset; the next move is used to
// seed them.
func (bl *Backlash) Reset() {
	bl.seeded = false
	for i := range bl.offset {
		bl.offset[i] = 0
		bl.requested[i] = math.NaN()
		bl.corrected[i] = math.NaN()
	}
}

// Home resets the state and takes the last travel direction from the
// homing direction invert mask ($23). Pull-off travels away from the
// switch, so an inverted (negative seeking) axis last moved positive.
func (bl *Backlash) Home(dirMask int) {
	bl.Reset()
	for i := range bl.dir {
		bl.dir[i] = dirMask&(1<<i) != 0
		bl.dirKnown[i] = true
	}
}

// Offset returns the accumulated compensation for X and Y.
func (bl *Backlash) Offset() (x, y float64) { return bl.offset[0], bl.offset[1] }

// Corrected returns the last transmitted X and Y destination.
func (bl *Backlash) Corrected() (x, y float64) { return bl.corrected[0], bl.corrected[1] }

func relativeAfter(b gcode.Block, relative bool) bool {
	for _, w := range b {
		switch {
		case w.Is('G', 90):
			relative = false
		case w.Is('G', 91):
			relative = true
		}
	}
	return relative
}

func hasNonModal(b gcode.Block) bool {
	for _, w := range b {
		if w.W == 'G' && w.ModalGroup() == gcode.ModalGroupNonModal {
			return true
		}
	}
	return false
}

// Apply returns the lines to send in place of b. modal is the parser state
// before b, wpos the live work position used to seed the first move.
func (bl *Backlash) Apply(b gcode.Block, modal *gcode.State, wpos coord.Point) []gcode.Block {
	if !bl.Enabled() || !b.IsMove() || !(b.Has('X') || b.Has('Y')) {
		return []gcode.Block{b}
	}
	if math.IsNaN(modal.Value(gcode.SlotDistance)) || relativeAfter(b, modal.RelativeMotion()) || hasNonModal(b) {
		// machine coordinates or incremental moves: the tracked
		// destination is meaningless afterwards
		bl.Reset()
		return []gcode.Block{b}
	}

	if !bl.seeded {
		bl.seeded = true
		bl.requested = [2]float64{wpos.X, wpos.Y}
	}

	var target [2]float64
	var has [2]bool
	var reversed bool
	for i, axis := range backlashAxes {
		has[i], target[i] = b.Arg(axis)
		if !has[i] {
			continue
		}
		if math.IsNaN(bl.requested[i]) {
			bl.requested[i] = target[i]
			continue
		}
		d := target[i] - bl.requested[i]
		if math.Abs(d) < backlashEpsilon {
			continue
		}
		positive := d > 0
		if bl.dirKnown[i] && positive != bl.dir[i] {
			if positive {
				bl.offset[i] += bl.slack[i]
			} else {
				bl.offset[i] -= bl.slack[i]
			}
			reversed = reversed || bl.slack[i] != 0
		}
		bl.dir[i] = positive
		bl.dirKnown[i] = true
	}

	motion, g := b.Motion()
	if !motion {
		g = modal.Value(gcode.SlotMotion)
	}

	var out []gcode.Block
	if reversed && g == 1 {
		takeUp := gcode.Block{{W: 'G', Arg: 1}}
		for i, axis := range backlashAxes {
			if !math.IsNaN(bl.requested[i]) {
				takeUp = append(takeUp, gcode.Word{W: axis, Arg: bl.requested[i] + bl.offset[i]})
			}
		}
		out = append(out, takeUp)
	}

	moved := b.Clone()
	for i, axis := range backlashAxes {
		if !has[i] {
			continue
		}
		bl.requested[i] = target[i]
		bl.corrected[i] = target[i] + bl.offset[i]
		moved = moved.SetArg(axis, bl.corrected[i])
	}
	return append(out, moved)
}
