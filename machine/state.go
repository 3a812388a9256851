package machine

import (
	"strconv"
	"strings"

	"github.com/mastercactapus/engrave/coord"
)

// State is the controller state as reported by the device.
type State int

const (
	StateDisconnected State = iota
	StateInit
	StateIdle
	StateRun
	StateHold
	StateHolding
	StateJog
	StateAlarm
	StateDoor
	StateCheck
	StateHome
	StateSleep
)

var stateNames = [...]string{
	StateDisconnected: "Disconnected",
	StateInit:         "Init",
	StateIdle:         "Idle",
	StateRun:          "Run",
	StateHold:         "Hold",
	StateHolding:      "Holding",
	StateJog:          "Jog",
	StateAlarm:        "Alarm",
	StateDoor:         "Door",
	StateCheck:        "Check",
	StateHome:         "Home",
	StateSleep:        "Sleep",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ParseState parses the first field of a status report (e.g. "Idle",
// "Hold:1", "Door:2"). Hold:1 (still decelerating) is reported as
// StateHolding.
func ParseState(field string) (st State, substate int, ok bool) {
	name := field
	if i := strings.IndexByte(field, ':'); i >= 0 {
		name = field[:i]
		substate, _ = strconv.Atoi(field[i+1:])
	}
	switch name {
	case "Idle":
		return StateIdle, 0, true
	case "Run":
		return StateRun, 0, true
	case "Hold":
		if substate == 1 {
			return StateHolding, substate, true
		}
		return StateHold, substate, true
	case "Jog":
		return StateJog, 0, true
	case "Alarm":
		return StateAlarm, 0, true
	case "Door":
		return StateDoor, substate, true
	case "Check":
		return StateCheck, 0, true
	case "Home":
		return StateHome, 0, true
	case "Sleep":
		return StateSleep, 0, true
	}
	return StateDisconnected, 0, false
}

// Overrides are the feed, rapid and spindle override percentages.
type Overrides struct {
	Feed, Rapid, Spindle int
}

// Accessories are the accessory flags of a status report (A:).
type Accessories struct {
	SpindleCW, SpindleCCW bool
	Flood, Mist           bool
}

// Status is the last known machine status.
type Status struct {
	State    State
	Substate int

	MPos coord.Point
	WCO  coord.Point

	// WPos is always MPos - WCO.
	WPos coord.Point

	Feed    float64
	Spindle float64

	Overrides   Overrides
	Accessories Accessories

	// Pins holds the active input pin letters (limits, probe, door).
	Pins string

	PlannerFree int
	SerialFree  int
	Line        int
}
