package gcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLine(t *testing.T) {
	check := func(in, exp string) {
		t.Helper()
		assert.Equal(t, exp, ParseLine(in).String(), in)
	}

	check("G1 X10 Y5 F200", "G1X10Y5F200")
	check("g0x-1.5y+2", "G0X-1.5Y2")
	check("G1 X1 ; trailing comment", "G1X1(trailing comment)")
	check("(header) G21", "(header)G21")
	check("%", "%")
	check("G1 X 10", "G1X10")
}

func TestParseLine_Malformed(t *testing.T) {
	b := ParseLine("G1 X1..2 Y3")
	if assert.Len(t, b, 3) {
		assert.Equal(t, Word{W: 'G', Arg: 1}, b[0])
		assert.Equal(t, Undefined, b[1].W)
		assert.Equal(t, "X1..2", b[1].Text)
		assert.Equal(t, Word{W: 'Y', Arg: 3}, b[2])
	}

	b = ParseLine("G1 (unterminated")
	if assert.Len(t, b, 2) {
		assert.Equal(t, Undefined, b[1].W)
	}

	assert.Panics(t, func() { MustParseLine("G1 #5") })
}

func TestParse(t *testing.T) {
	blocks, err := Parse("G21\n\nG90\n  \nG0 X1\n")
	assert.NoError(t, err)
	assert.Len(t, blocks, 3)
}
