// Package engrave holds the per-node engraving parameters of a document
// and the rules for merging them down the tree.
package engrave

import (
	"math"
)

// Unset is the Power value of a Properties that does not define one.
const Unset = -1

// passEpsilon is the slack allowed when deciding whether a pass count
// reaches the bottom of the span.
const passEpsilon = 0.001

// Properties are the engraving parameters of a single group or element.
// Unset float fields are NaN, unset Power is Unset and an unset PassCount
// is 0.
type Properties struct {
	Enabled   bool
	AllAtOnce bool

	Feed  float64
	Power int

	PassCount int
	ZStart    float64
	ZEnd      float64
	PassDepth float64
}

// New returns enabled Properties with every value unset.
func New() Properties {
	return Properties{
		Enabled:   true,
		Feed:      math.NaN(),
		Power:     Unset,
		ZStart:    math.NaN(),
		ZEnd:      math.NaN(),
		PassDepth: math.NaN(),
	}
}

func isSet(v float64) bool { return !math.IsNaN(v) }

// HasFeed reports whether Feed is defined.
func (p Properties) HasFeed() bool { return isSet(p.Feed) }

// HasPower reports whether Power is defined.
func (p Properties) HasPower() bool { return p.Power != Unset }

// HasZ reports whether both Z bounds are defined.
func (p Properties) HasZ() bool { return isSet(p.ZStart) && isSet(p.ZEnd) }

// InheritFrom merges p over its parent. A child can never enable what an
// ancestor disabled, and all-at-once propagates down once set. Z and pass
// fields are only inherited when p itself is not all-at-once.
func (p Properties) InheritFrom(parent Properties) Properties {
	res := p
	res.Enabled = parent.Enabled && p.Enabled
	res.AllAtOnce = parent.AllAtOnce || p.AllAtOnce
	if !isSet(res.Feed) {
		res.Feed = parent.Feed
	}
	if res.Power == Unset {
		res.Power = parent.Power
	}

	if p.AllAtOnce {
		return res
	}

	priorityToCount := false
	if !isSet(res.ZStart) {
		res.ZStart = parent.ZStart
	}
	if !isSet(res.ZEnd) {
		res.ZEnd = parent.ZEnd
	}
	if !isSet(res.PassDepth) {
		res.PassDepth = parent.PassDepth
		if res.PassCount > 0 {
			// an explicit count on the child wins over an inherited depth
			priorityToCount = true
		}
	}
	if res.PassCount == 0 {
		res.PassCount = parent.PassCount
	}
	res.ValidatePass(priorityToCount)
	return res
}

// SetPassDepth sets the depth of each pass and recomputes the pass count.
func (p *Properties) SetPassDepth(depth float64) {
	p.PassDepth = math.Abs(depth)
	p.ValidatePass(false)
}

// SetPassCount sets the number of passes and recomputes the pass depth.
func (p *Properties) SetPassCount(n int) {
	if n < 1 {
		n = 1
	}
	p.PassCount = n
	p.ValidatePass(true)
}

// ValidatePass keeps PassDepth and PassCount consistent with the Z span.
//
// When priorityToCount is set (or no usable depth exists for a non-zero
// span) the depth is derived from the count, otherwise the count is
// derived from the depth. The count always equals the number of heights
// Passes will yield, top and bottom included.
func (p *Properties) ValidatePass(priorityToCount bool) {
	if !p.HasZ() {
		return
	}
	if p.ZEnd > p.ZStart {
		p.ZEnd = p.ZStart
	}
	span := p.ZStart - p.ZEnd
	if span == 0 {
		return
	}

	noDepth := !isSet(p.PassDepth) || p.PassDepth <= 0
	if priorityToCount || noDepth {
		n := p.PassCount
		if n < 2 {
			n = 2
		}
		p.PassDepth = span / float64(n-1)
	}
	p.PassCount = countPasses(span, p.PassDepth)
}

// countPasses returns the number of heights visited stepping down span by
// depth, starting at the top and clamping the last step to the bottom.
func countPasses(span, depth float64) int {
	steps := int(math.Ceil(span / depth))
	if float64(steps-1)*depth >= span-passEpsilon {
		// the previous step already reaches the bottom within tolerance
		steps--
	}
	if steps < 1 {
		steps = 1
	}
	return steps + 1
}

// Fixed reports whether p cuts without any Z stepping: every pass happens
// at ZStart (or without a Z change when ZStart is unset).
func (p Properties) Fixed() bool {
	return !p.HasZ() || p.ZStart == p.ZEnd || !isSet(p.PassDepth) || p.PassDepth <= 0
}
