package grbl

import (
	"log"
	"strconv"
	"strings"

	"github.com/mastercactapus/engrave/coord"
	"github.com/mastercactapus/engrave/gcode"
	"github.com/mastercactapus/engrave/machine"
)

// info requests sent on the first Idle after connecting
var infoCommands = []string{"$I", "$#", "$G", "$$"}

func (c *Controller) handleLine(line string) {
	if c.cfg.Transcript && line[0] != '<' {
		log.Println("<", line)
	}

	c.mx.Lock()
	defer c.mx.Unlock()
	defer c.notify()

	c.hub.Publish(LineReceived{Line: line})

	switch {
	case line == "ok":
		c.ack(nil)
	case strings.HasPrefix(line, "error:"):
		n, err := parseCode(line, "error:")
		if err != nil {
			log.Println("ERROR: parse:", err)
		}
		code := ErrorCode(n)
		c.ack(&code)
	case strings.HasPrefix(line, "ALARM:"):
		n, err := parseCode(line, "ALARM:")
		if err != nil {
			log.Println("ERROR: parse:", err)
		}
		c.alarm(AlarmCode(n))
	case line[0] == '<':
		c.handleStatus(line)
	case line[0] == '[':
		c.handleBracket(line)
	case line[0] == '$':
		c.handleSetting(line)
	case strings.HasPrefix(line, "Grbl "):
		c.handleBanner(line)
	default:
		c.hub.Publish(Message{Text: line})
	}
}

// ack credits back the oldest outstanding line.
func (c *Controller) ack(code *ErrorCode) {
	if len(c.outstanding) == 0 {
		log.Println("WARN: response with nothing outstanding")
		if code != nil {
			c.hub.Publish(ErrorReceived{Code: *code})
		}
		return
	}

	head := c.outstanding[0]
	c.outstanding = c.outstanding[1:]
	c.used -= head.n

	if code != nil {
		c.hub.Publish(ErrorReceived{Code: *code, Line: head.line})

		// the rejected line was already applied to the modal state
		c.modal.Forget()
		c.backlash.Reset()
		if len(c.queue) == 0 && head.line != "$G" {
			c.queue = append(c.queue, "$G")
		}
	}
	if head.line == "$$" {
		c.markSettingsReady()
	}
	c.kick()
}

// alarm handles ALARM:N. grbl has thrown away its buffer, so do we.
func (c *Controller) alarm(code AlarmCode) {
	c.clearBuffers()
	c.backlash.Reset()
	c.modal.Invalidate()
	c.setState(machine.StateAlarm, 0)
	c.hub.Publish(AlarmReceived{Code: code})
}

func (c *Controller) handleBanner(line string) {
	c.clearBuffers()
	c.modal.Reset()
	c.backlash.Reset()
	c.settingsReady = false
	c.infoRequested = false
	c.bufferSize = DefaultBufferSize
	c.coords = make(map[string]coord.Point)
	c.tlo = 0
	c.probes = nil
	c.setState(machine.StateInit, 0)
	c.hub.Publish(Message{Text: line})
}

func (c *Controller) markSettingsReady() {
	if c.settingsReady {
		return
	}
	c.settingsReady = true
	c.hub.Publish(SettingsReady{Settings: c.settings.Clone()})
}

func (c *Controller) handleSetting(line string) {
	n, val, ok := parseSetting(line)
	if !ok {
		c.hub.Publish(Message{Text: line})
		return
	}
	c.settings[n] = val
	if n == SettingLast {
		c.markSettingsReady()
	}
}

// setState records a state transition and runs its side effects.
func (c *Controller) setState(st machine.State, substate int) {
	old := c.status.State
	if old == st && c.status.Substate == substate {
		return
	}
	c.status.State = st
	c.status.Substate = substate
	c.hub.Publish(StateChanged{From: old, To: st, Substate: substate})

	if old == machine.StateHome && st != machine.StateHome {
		mask, _ := c.settings.Int(SettingHomingDirMask)
		c.backlash.Home(mask)
		c.modal.Invalidate()
	}
	if st == machine.StateIdle && !c.infoRequested {
		c.infoRequested = true
		c.queue = append(c.queue, infoCommands...)
		c.kick()
	}
}

// setPosition updates MPos and WCO, deriving WPos. Observers are only told
// about changes larger than positionEpsilon.
func (c *Controller) setPosition(mpos, wco coord.Point) {
	wpos := mpos.Sub(wco)
	changed := !mpos.Near(c.status.MPos, positionEpsilon) || !wpos.Near(c.status.WPos, positionEpsilon)

	c.status.MPos = mpos
	c.status.WCO = wco
	c.status.WPos = wpos
	if changed {
		c.hub.Publish(PositionChanged{MPos: mpos, WPos: wpos})
	}
}

func (c *Controller) handleStatus(line string) {
	rep, err := parseStatus(line)
	if err != nil {
		log.Println("ERROR: parse status:", err)
		return
	}
	c.reports++
	st := &c.status

	wco := st.WCO
	if rep.HasWCO {
		wco = rep.WCO
	}
	mpos := st.MPos
	switch {
	case rep.HasMPos:
		mpos = rep.MPos
	case rep.HasWPos:
		mpos = rep.WPos.Add(wco)
	}
	c.setPosition(mpos, wco)

	if rep.HasFS && (rep.Feed != st.Feed || rep.Spindle != st.Spindle) {
		st.Feed, st.Spindle = rep.Feed, rep.Spindle
		c.hub.Publish(FeedSpindleChanged{Feed: st.Feed, Spindle: st.Spindle})
	}
	if rep.HasOverrides {
		if rep.Overrides != st.Overrides {
			st.Overrides = rep.Overrides
			c.hub.Publish(OverrideChanged{Overrides: st.Overrides})
		}
		// A: rides along with Ov: and is left out when nothing is on
		if rep.Accessories != st.Accessories {
			st.Accessories = rep.Accessories
			c.hub.Publish(AccessoryChanged{Accessories: st.Accessories})
		}
	}
	if rep.Pins != st.Pins {
		st.Pins = rep.Pins
		c.hub.Publish(LimitChanged{Pins: st.Pins})
	}
	if rep.HasBuffer {
		st.PlannerFree, st.SerialFree = rep.PlannerFree, rep.SerialFree
	}
	if rep.HasLine {
		st.Line = rep.Line
	}

	c.setState(rep.State, rep.Substate)
}

func (c *Controller) handleBracket(line string) {
	name, value := parseBracket(line)
	switch name {
	case "MSG":
		c.hub.Publish(Message{Text: value})
	case "VER":
		c.version = value
		c.hub.Publish(Message{Text: line})
	case "OPT":
		parts := strings.Split(value, ",")
		if len(parts) < 3 {
			return
		}
		if n, err := strconv.Atoi(parts[2]); err == nil && n > 0 {
			c.bufferSize = n
		}
	case "GC":
		// only trust the report while nothing else is in flight,
		// otherwise it describes an older state than the one we track
		if len(c.queue) == 0 && len(c.outstanding) <= 1 {
			c.modal.Update(gcode.ParseLine(value))
		}
	case "G54", "G55", "G56", "G57", "G58", "G59", "G28", "G30", "G92":
		p, err := parseCoords(value)
		if err != nil {
			log.Println("ERROR: parse:", err)
			return
		}
		c.coords[name] = p
		c.foldOffsets()
	case "TLO":
		tlo, err := strconv.ParseFloat(value, 64)
		if err != nil {
			log.Println("ERROR: parse:", err)
			return
		}
		c.tlo = tlo
		c.foldOffsets()
	case "PRB":
		prb, err := parseProbe(value)
		if err != nil {
			log.Println("ERROR: parse:", err)
			return
		}
		if len(c.outstanding) > 0 && c.outstanding[0].line == "$#" {
			// `$#` repeats the last probe, it is not a new one
			return
		}
		c.probes = append(c.probes, *prb)
		c.hub.Publish(ProbeFinished{ProbeResult: *prb})
	case "echo":
	default:
		c.hub.Publish(Message{Text: line})
	}
}

// foldOffsets recomputes WCO from the cached offsets of the active
// coordinate system.
func (c *Controller) foldOffsets() {
	name := "G" + strconv.FormatFloat(c.modal.Value(gcode.SlotCoordinateSystem), 'f', -1, 64)
	base, ok := c.coords[name]
	if !ok {
		return
	}
	wco := base.Add(c.coords["G92"])
	wco.Z += c.tlo
	c.setPosition(c.status.MPos, wco)
}
