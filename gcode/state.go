package gcode

import (
	"math"

	"github.com/mastercactapus/engrave/coord"
)

// Slot identifies one piece of modal state.
type Slot int

const (
	SlotMotion Slot = iota
	SlotCoordinateSystem
	SlotPlane
	SlotUnits
	SlotDistance
	SlotArcDistance
	SlotFeedMode
	SlotToolLength
	SlotSpindle
	SlotCoolant
	SlotTool
	SlotFeed
	SlotSpindleSpeed
	SlotX
	SlotY
	SlotZ
	SlotA
	SlotB
	SlotC
	SlotE

	slotCount
)

// cleanEpsilon is half of the last printed digit; values closer than
// this are written identically.
const cleanEpsilon = 0.0005

// State tracks modal gcode state as seen by the controller: the active
// modes, feed and spindle values, and the last commanded position
// (work coordinates, unknown until first commanded).
//
// The zero value is not usable; use NewState.
type State struct {
	slots [slotCount]float64
}

// NewState constructs a new State with grbl power-on defaults.
func NewState() *State {
	s := &State{}
	s.Reset()
	return s
}

// Reset restores grbl power-on defaults and forgets the position.
func (s *State) Reset() {
	s.slots[SlotMotion] = 0
	s.slots[SlotCoordinateSystem] = 54
	s.slots[SlotPlane] = 17
	s.slots[SlotUnits] = 21
	s.slots[SlotDistance] = 90
	s.slots[SlotArcDistance] = 91.1
	s.slots[SlotFeedMode] = 94
	s.slots[SlotToolLength] = 49
	s.slots[SlotSpindle] = 5
	s.slots[SlotCoolant] = 9
	s.slots[SlotTool] = 0
	s.slots[SlotFeed] = 0
	s.slots[SlotSpindleSpeed] = 0
	s.Invalidate()
}

// Forget marks every slot unknown, modes included. Nothing is stripped by
// Clean until the slots are set again.
func (s *State) Forget() {
	for sl := range s.slots {
		s.slots[sl] = math.NaN()
	}
}

// Clone returns an independent copy.
func (s *State) Clone() *State {
	c := *s
	return &c
}

func (s *State) Value(slot Slot) float64 { return s.slots[slot] }
func (s *State) Set(slot Slot, v float64) { s.slots[slot] = v }

func (s *State) Inches() bool         { return s.slots[SlotUnits] == 20 }
func (s *State) RelativeMotion() bool { return s.slots[SlotDistance] == 91 }

// Position returns the last commanded X, Y and Z.
func (s *State) Position() coord.Point {
	return coord.Point{X: s.slots[SlotX], Y: s.slots[SlotY], Z: s.slots[SlotZ]}
}

// SetPosition overwrites the positional X, Y and Z slots.
func (s *State) SetPosition(p coord.Point) {
	s.slots[SlotX] = p.X
	s.slots[SlotY] = p.Y
	s.slots[SlotZ] = p.Z
}

// Invalidate marks the given axes unknown, or every positional slot when
// called without arguments.
func (s *State) Invalidate(axes ...byte) {
	if len(axes) == 0 {
		for sl := SlotX; sl <= SlotE; sl++ {
			s.slots[sl] = math.NaN()
		}
		return
	}
	for _, a := range axes {
		if sl, ok := axisSlot(a); ok {
			s.slots[sl] = math.NaN()
		}
	}
}

func axisSlot(w byte) (Slot, bool) {
	switch w {
	case 'X':
		return SlotX, true
	case 'Y':
		return SlotY, true
	case 'Z':
		return SlotZ, true
	case 'A':
		return SlotA, true
	case 'B':
		return SlotB, true
	case 'C':
		return SlotC, true
	case 'E':
		return SlotE, true
	}
	return 0, false
}

func slotFor(w Word) (Slot, bool) {
	switch w.W {
	case 'G':
		switch w.ModalGroup() {
		case ModalGroupMotion:
			return SlotMotion, true
		case ModalGroupCoordinateSystem:
			return SlotCoordinateSystem, true
		case ModalGroupPlaneSelection:
			return SlotPlane, true
		case ModalGroupUnits:
			return SlotUnits, true
		case ModalGroupDistanceMode:
			return SlotDistance, true
		case ModalGroupArcDistanceMode:
			return SlotArcDistance, true
		case ModalGroupFeedRateMode:
			return SlotFeedMode, true
		case ModalGroupToolLength:
			return SlotToolLength, true
		}
	case 'M':
		switch w.ModalGroup() {
		case ModalGroupSpindle:
			return SlotSpindle, true
		case ModalGroupCoolant:
			return SlotCoolant, true
		}
	case 'T':
		return SlotTool, true
	case 'F':
		return SlotFeed, true
	case 'S':
		return SlotSpindleSpeed, true
	}
	return axisSlot(w.W)
}

func sameValue(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return false
	}
	return math.Abs(a-b) < cleanEpsilon
}

// Update applies a line to the state and reports whether any slot
// changed. Unknown letters are ignored. In relative distance mode
// positional words accumulate.
func (s *State) Update(b Block) bool {
	var changed bool
	var nonModal []float64
	for _, w := range b {
		if w.IsAxis() {
			continue
		}
		if w.W == 'G' && w.ModalGroup() == ModalGroupNonModal {
			nonModal = append(nonModal, w.Arg)
			continue
		}
		slot, ok := slotFor(w)
		if !ok {
			continue
		}
		if !sameValue(s.slots[slot], w.Arg) {
			s.slots[slot] = w.Arg
			changed = true
		}
	}

	for _, g := range nonModal {
		switch g {
		case 4:
			// dwell, P is not an axis
		case 53:
			// machine coordinates: the axes given are not work positions
			for _, w := range b {
				if slot, ok := axisSlot(w.W); ok {
					s.slots[slot] = math.NaN()
					changed = true
				}
			}
			return changed
		default:
			// homing, offsets and coordinate changes move the work origin
			s.Invalidate()
			return true
		}
	}

	rel := s.RelativeMotion()
	unknown := math.IsNaN(s.slots[SlotDistance])
	for _, w := range b {
		slot, ok := axisSlot(w.W)
		if !ok {
			continue
		}
		if unknown {
			// absolute or incremental, the target can't be known
			s.slots[slot] = math.NaN()
			changed = true
			continue
		}
		if rel {
			if w.Arg != 0 {
				s.slots[slot] += w.Arg
				changed = true
			}
			continue
		}
		if !sameValue(s.slots[slot], w.Arg) {
			s.slots[slot] = w.Arg
			changed = true
		}
	}

	return changed
}

// Clean returns the form of b to send to grbl: words whose value already
// matches the modal state are stripped, as are comments. A line carrying
// any G code other than G0-G3 is returned unmodified.
func (s *State) Clean(b Block) Block {
	for _, w := range b {
		if w.W == 'G' && w.Arg != 0 && w.Arg != 1 && w.Arg != 2 && w.Arg != 3 {
			return b.Clone()
		}
	}

	rel := s.RelativeMotion()
	res := make(Block, 0, len(b))
	for _, w := range b {
		if w.IsComment() {
			continue
		}
		slot, ok := slotFor(w)
		if ok && !(rel && w.IsAxis()) && sameValue(s.slots[slot], w.Arg) {
			continue
		}
		res = append(res, w)
	}
	return res
}
