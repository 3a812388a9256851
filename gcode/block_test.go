package gcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlock_Queries(t *testing.T) {
	b := MustParseLine("G1 X10 Y5 F200")
	assert.True(t, b.IsMove())
	assert.True(t, b.IsPoint())
	assert.False(t, b.IsArc())
	assert.False(t, b.IsDrill())

	assert.True(t, MustParseLine("G2 X1 Y1 I1 J0").IsArc())
	assert.True(t, MustParseLine("G5 X1 Y1 I1 J0 P1 Q1").IsSpline())
	assert.True(t, MustParseLine("G81 X1 Y1 Z-2 R1").IsDrill())
	assert.True(t, MustParseLine("X4").IsMove())
	assert.False(t, MustParseLine("X4").IsPoint())
	assert.False(t, MustParseLine("G4 P1").IsMove())
	assert.False(t, MustParseLine("M3 S100").IsMove())
	assert.False(t, MustParseLine("G81 X1 Y1 Z-2 R1").IsMove())
	assert.False(t, MustParseLine("G38.2 Z-5 F10").IsMove())
}

func TestBlock_Edit(t *testing.T) {
	b := MustParseLine("G1 X10 X10 Y5")

	// duplicate words are addressed by position
	r := b.Remove(1)
	assert.Equal(t, "G1X10Y5", r.String())
	assert.Equal(t, "G1X10X10Y5", b.String())

	assert.Equal(t, "G1Y5", b.Without('X').String())
	assert.Equal(t, "G1X10X10Y5Z-1", b.Clone().SetArg('Z', -1).String())
	assert.Equal(t, "G1X3X10Y5", b.Clone().SetArg('X', 3).String())
}

func TestBlock_Validate(t *testing.T) {
	assert.NoError(t, MustParseLine("G91 G38.2 Z-10 F100").Validate())
	assert.Error(t, MustParseLine("G0 G1 X1").Validate())
	assert.Error(t, MustParseLine("G1 X1 X2").Validate())
	assert.Error(t, ParseLine("G1 X1 #").Validate())
}
