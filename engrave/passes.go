package engrave

import "math"

// PassIter yields the Z height of every pass of a Properties.
//
// In fixed mode it yields PassCount copies of ZStart (NaN when unset).
// Otherwise it starts at ZStart, steps down by PassDepth, clamps the last
// step to ZEnd and stops once ZEnd has been reached. Heights are always
// monotonic non-increasing.
type PassIter struct {
	fixed     bool
	remaining int

	z, end, depth float64
	started       bool
	done          bool
}

// Passes returns an iterator over the pass heights of p.
func (p Properties) Passes() *PassIter {
	if p.Fixed() {
		n := p.PassCount
		if n < 1 {
			n = 1
		}
		return &PassIter{fixed: true, remaining: n, z: p.ZStart}
	}
	return &PassIter{z: p.ZStart, end: p.ZEnd, depth: p.PassDepth}
}

// Next returns the next height, or false once every pass was yielded.
func (it *PassIter) Next() (float64, bool) {
	if it.fixed {
		if it.remaining == 0 {
			return 0, false
		}
		it.remaining--
		return it.z, true
	}

	if it.done {
		return 0, false
	}
	if !it.started {
		it.started = true
		if it.z <= it.end {
			it.done = true
		}
		return it.z, true
	}

	it.z -= it.depth
	if it.z < it.end+passEpsilon {
		it.z = it.end
		it.done = true
	}
	return it.z, true
}

// Heights collects every remaining height.
func (it *PassIter) Heights() []float64 {
	var res []float64
	for {
		z, ok := it.Next()
		if !ok {
			return res
		}
		res = append(res, z)
	}
}

// Count returns the number of passes p will produce.
func (p Properties) Count() int {
	return len(p.Passes().Heights())
}

// IsFixedZ reports whether a height from a fixed iterator carries no Z.
func IsFixedZ(z float64) bool { return math.IsNaN(z) }
