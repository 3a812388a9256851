package main

import (
	"encoding/json"
	"log"
	"math"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/mastercactapus/engrave/coord"
	"github.com/mastercactapus/engrave/machine"
	"github.com/mastercactapus/engrave/machine/grbl"
	"github.com/mastercactapus/engrave/render"
)

const (
	machineChannel = "/events/machine"
	renderChannel  = "/events/render"
)

// num is a JSON number that encodes NaN (unknown) as null.
type num float64

func (n num) MarshalJSON() ([]byte, error) {
	if math.IsNaN(float64(n)) || math.IsInf(float64(n), 0) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(n))
}

type point struct {
	X, Y, Z num
}

func jsonPoint(p coord.Point) point { return point{X: num(p.X), Y: num(p.Y), Z: num(p.Z)} }

type statusJSON struct {
	State    machine.State
	Substate int

	MPos, WCO, WPos point

	Feed, Spindle float64

	Overrides   machine.Overrides
	Accessories machine.Accessories
	Pins        string

	PlannerFree, SerialFree int
}

func newStatusJSON(st machine.Status) statusJSON {
	return statusJSON{
		State:       st.State,
		Substate:    st.Substate,
		MPos:        jsonPoint(st.MPos),
		WCO:         jsonPoint(st.WCO),
		WPos:        jsonPoint(st.WPos),
		Feed:        st.Feed,
		Spindle:     st.Spindle,
		Overrides:   st.Overrides,
		Accessories: st.Accessories,
		Pins:        st.Pins,
		PlannerFree: st.PlannerFree,
		SerialFree:  st.SerialFree,
	}
}

type eventJSON struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// eventData returns the JSON body of a controller or render event.
func eventData(name string, e interface{}) eventJSON {
	var data interface{} = e
	switch e := e.(type) {
	case grbl.PositionChanged:
		data = struct{ MPos, WPos point }{jsonPoint(e.MPos), jsonPoint(e.WPos)}
	case grbl.ProbeFinished:
		data = struct {
			point
			Valid bool
		}{jsonPoint(e.Point), e.Valid}
	case grbl.ErrorReceived:
		data = struct {
			Code        int
			Description string
			Line        string
		}{int(e.Code), e.Code.Description(), e.Line}
	case grbl.AlarmReceived:
		data = struct {
			Code        int
			Description string
		}{int(e.Code), e.Code.Description()}
	case grbl.Disconnected:
		data = struct{ Err string }{errString(e.Err)}
	case render.Failed:
		data = struct{ Err string }{errString(e.Err)}
	case render.Progress:
		data = struct {
			Group, Element  string
			Block, Line     int
			Pass, PassCount int
			Z, ZStart, ZEnd num
		}{e.Group, e.Element, e.Block, e.Line, e.Pass, e.PassCount, num(e.Z), num(e.ZStart), num(e.ZEnd)}
	}
	return eventJSON{Type: name, Data: data}
}

func sendEvent(s *sse.Server, channel, name string, e interface{}) {
	data, err := json.Marshal(eventData(name, e))
	if err != nil {
		log.Printf("ERROR: marshal json: %+v", err)
		return
	}
	s.SendMessage(channel, sse.SimpleMessage(string(data)))
}

// forwardMachine publishes controller events until the subscription ends.
// Sent and received lines are left out of the stream.
func forwardMachine(s *sse.Server, sub interface{ C() <-chan grbl.Event }) {
	for e := range sub.C() {
		switch e.(type) {
		case grbl.LineSent, grbl.LineReceived:
			continue
		}
		sendEvent(s, machineChannel, e.Name(), e)
	}
}

func forwardRender(s *sse.Server, sub interface{ C() <-chan render.Event }) {
	for e := range sub.C() {
		sendEvent(s, renderChannel, e.Name(), e)
	}
}
