package grbl

import (
	"github.com/mastercactapus/engrave/coord"
	"github.com/mastercactapus/engrave/machine"
)

// Event is published on the controller's event hub. The concrete types
// below are the only implementations.
type Event interface {
	// Name is a short stable identifier, used as the SSE event type.
	Name() string
}

type StateChanged struct {
	From, To machine.State
	Substate int
}

// SettingsReady fires once per connection when the full `$$` table has
// been received.
type SettingsReady struct {
	Settings Settings
}

type ErrorReceived struct {
	Code ErrorCode
	// Line is the command the controller rejected.
	Line string
}

type AlarmReceived struct {
	Code AlarmCode
}

// Message is an informational line from the controller ([MSG:], [VER:],
// the startup banner).
type Message struct {
	Text string
}

type AccessoryChanged struct {
	machine.Accessories
}

type FeedSpindleChanged struct {
	Feed, Spindle float64
}

type OverrideChanged struct {
	machine.Overrides
}

type LineSent struct {
	Line string
}

type LineReceived struct {
	Line string
}

type ProbeFinished struct {
	machine.ProbeResult
}

// LimitChanged carries the active input pins (e.g. "XZP"), empty when none.
type LimitChanged struct {
	Pins string
}

type PositionChanged struct {
	MPos, WPos coord.Point
}

type Disconnected struct {
	Err error
}

func (StateChanged) Name() string       { return "state" }
func (SettingsReady) Name() string      { return "settings" }
func (ErrorReceived) Name() string      { return "error" }
func (AlarmReceived) Name() string      { return "alarm" }
func (Message) Name() string            { return "message" }
func (AccessoryChanged) Name() string   { return "accessory" }
func (FeedSpindleChanged) Name() string { return "feedspindle" }
func (OverrideChanged) Name() string    { return "override" }
func (LineSent) Name() string           { return "sent" }
func (LineReceived) Name() string       { return "received" }
func (ProbeFinished) Name() string      { return "probe" }
func (LimitChanged) Name() string       { return "limit" }
func (PositionChanged) Name() string    { return "position" }
func (Disconnected) Name() string       { return "disconnected" }
