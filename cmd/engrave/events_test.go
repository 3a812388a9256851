package main

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/mastercactapus/engrave/coord"
	"github.com/mastercactapus/engrave/machine/grbl"
	"github.com/mastercactapus/engrave/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventData(t *testing.T) {
	enc := func(name string, e interface{}) string {
		data, err := json.Marshal(eventData(name, e))
		require.NoError(t, err)
		return string(data)
	}

	assert.JSONEq(t,
		`{"type":"position","data":{"MPos":{"X":1,"Y":2,"Z":3},"WPos":{"X":null,"Y":null,"Z":null}}}`,
		enc("position", grbl.PositionChanged{MPos: coord.Point{X: 1, Y: 2, Z: 3}, WPos: coord.Unknown()}),
	)
	assert.JSONEq(t,
		`{"type":"error","data":{"Code":20,"Description":"Unsupported or invalid g-code command found in block.","Line":"G5"}}`,
		enc("error", grbl.ErrorReceived{Code: 20, Line: "G5"}),
	)
	assert.JSONEq(t,
		`{"type":"failed","data":{"Err":"boom"}}`,
		enc("failed", render.Failed{Err: errors.New("boom")}),
	)
	assert.JSONEq(t,
		`{"type":"progress","data":{"Group":"","Element":"r","Block":1,"Line":4,"Pass":1,"PassCount":1,"Z":null,"ZStart":null,"ZEnd":null}}`,
		enc("progress", render.Progress{Element: "r", Block: 1, Line: 4, Pass: 1, PassCount: 1, Z: math.NaN(), ZStart: math.NaN(), ZEnd: math.NaN()}),
	)
	assert.JSONEq(t,
		`{"type":"feedspindle","data":{"Feed":500,"Spindle":0}}`,
		enc("feedspindle", grbl.FeedSpindleChanged{Feed: 500}),
	)
}
